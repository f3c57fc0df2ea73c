package httpauth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sentineldock/acpgate/internal/domain/auth"
)

func newTestHandler(t *testing.T) (*Handler, *auth.StaticCredentialStore, *auth.TokenService) {
	t.Helper()

	hash, err := auth.HashPassword("correct-horse-battery-staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	creds := &auth.StaticCredentialStore{
		Username:     "demo",
		PasswordHash: hash,
		Roles:        []auth.Role{auth.RoleAdmin},
	}
	tokens := auth.NewTokenService("test-secret-at-least-16-bytes", time.Hour, 24*time.Hour)

	return NewHandler(creds, tokens, nil), creds, tokens
}

func doJSON(h http.HandlerFunc, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Login_Success(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	rec := doJSON(h.Login, http.MethodPost, "/auth/login", loginRequest{
		Username: "demo",
		Password: "correct-horse-battery-staple",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected non-empty token")
	}
	if resp.ExpiresAt == "" {
		t.Error("expected non-empty expires_at")
	}
}

func TestHandler_Login_WrongPassword(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	rec := doJSON(h.Login, http.MethodPost, "/auth/login", loginRequest{
		Username: "demo",
		Password: "wrong-password",
	})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_Login_MalformedBody(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_Login_WrongMethod(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/login", nil)
	rec := httptest.NewRecorder()
	h.Login(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
}

func TestHandler_Verify_ValidToken(t *testing.T) {
	t.Parallel()

	h, _, tokens := newTestHandler(t)
	token, _, err := tokens.Issue("demo", []auth.Role{auth.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestHandler_Verify_MissingHeader(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_Verify_ExpiredToken(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenService("test-secret-at-least-16-bytes", 10*time.Millisecond, 24*time.Hour)
	h := NewHandler(&auth.StaticCredentialStore{Username: "demo"}, tokens, nil)

	token, _, err := tokens.Issue("demo", nil)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.Verify(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestHandler_Refresh_WithinGraceWindow(t *testing.T) {
	t.Parallel()

	h, _, tokens := newTestHandler(t)
	token, _, err := tokens.Issue("demo", []auth.Role{auth.RoleAdmin})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	rec := doJSON(h.Refresh, http.MethodPost, "/auth/refresh", refreshRequest{Token: token})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token == "" {
		t.Error("expected non-empty refreshed token")
	}
}

func TestHandler_Refresh_BadSignature(t *testing.T) {
	t.Parallel()

	h, _, _ := newTestHandler(t)
	rec := doJSON(h.Refresh, http.MethodPost, "/auth/refresh", refreshRequest{Token: "a.b.c"})

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
