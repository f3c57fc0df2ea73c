// Package httpauth implements the bridge's login/verify/refresh HTTP
// surface backed by internal/domain/auth's static credential store and
// token service.
package httpauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sentineldock/acpgate/internal/domain/auth"
)

// Handler serves /auth/login, /auth/verify, /auth/refresh.
type Handler struct {
	credentials auth.CredentialStore
	tokens      *auth.TokenService
	logger      *slog.Logger
}

// NewHandler creates an httpauth Handler.
func NewHandler(credentials auth.CredentialStore, tokens *auth.TokenService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{credentials: credentials, tokens: tokens, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
}

type refreshRequest struct {
	Token string `json:"token"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Login handles POST /auth/login {username,password} -> {token,expires_at}.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	principal, err := h.credentials.Authenticate(req.Username, req.Password)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Error("credential check failed", "error", err)
		}
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, expiresAt, err := h.tokens.Issue(principal.Username, principal.Roles)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt.Format(httpTimeLayout)})
}

// Verify handles GET /auth/verify, validating the Authorization: Bearer header.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing bearer token")
		return
	}

	principal, err := h.tokens.Verify(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"subject": principal.Username})
}

// Refresh handles POST /auth/refresh {token} -> {token}.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, expiresAt, err := h.tokens.Refresh(req.Token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "token cannot be refreshed")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt.Format(httpTimeLayout)})
}

const httpTimeLayout = "2006-01-02T15:04:05Z07:00"

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) <= len(prefix) || h[:len(prefix)] != prefix {
		return ""
	}
	return h[len(prefix):]
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
