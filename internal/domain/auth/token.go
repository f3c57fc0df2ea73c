package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidToken is returned for malformed tokens or a bad signature.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrTokenExpired is returned by Verify for a token past its expiry.
var ErrTokenExpired = errors.New("auth: token expired")

// ErrRefreshWindowElapsed is returned by Refresh once a token is older than
// its expiry plus the configured refresh grace period.
var ErrRefreshWindowElapsed = errors.New("auth: token too old to refresh")

// tokenHeader is fixed: the bridge signs with exactly one algorithm, so the
// header carries no negotiable fields, only a version marker for future
// format changes.
const tokenHeader = "HS256"

// TokenService issues and verifies opaque bearer tokens of the form
// "header.claims.sig", each segment base64url-encoded, signed with
// HMAC-SHA256 over "header.claims". This is deliberately not a general JWT
// library: the bridge needs exactly one algorithm and one claim shape.
type TokenService struct {
	secret       []byte
	ttl          time.Duration
	refreshGrace time.Duration
}

// NewTokenService creates a TokenService. secret must not be empty in
// production; ttl and refreshGrace default to 1h/24h if zero.
func NewTokenService(secret string, ttl, refreshGrace time.Duration) *TokenService {
	if ttl == 0 {
		ttl = time.Hour
	}
	if refreshGrace == 0 {
		refreshGrace = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, refreshGrace: refreshGrace}
}

// Issue signs a fresh token for subject, valid for the service's TTL.
func (s *TokenService) Issue(subject string, roles []Role) (token string, expiresAt time.Time, err error) {
	now := time.Now().UTC()
	claims := Claims{Subject: subject, Roles: roles, IssuedAt: now, ExpiresAt: now.Add(s.ttl)}
	token, err = s.sign(claims)
	return token, claims.ExpiresAt, err
}

// Verify checks a token's signature and expiry and returns its principal.
func (s *TokenService) Verify(token string) (*Principal, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.IsExpired(time.Now().UTC()) {
		return nil, ErrTokenExpired
	}
	return &Principal{ID: claims.Subject, Username: claims.Subject, Roles: claims.Roles}, nil
}

// Refresh re-signs a token for the same subject provided it is not older
// than its expiry plus RefreshGrace. An expired-but-within-grace token
// refreshes successfully; a bad signature never does.
func (s *TokenService) Refresh(token string) (string, time.Time, error) {
	claims, err := s.parse(token)
	if err != nil {
		return "", time.Time{}, err
	}
	if time.Now().UTC().After(claims.ExpiresAt.Add(s.refreshGrace)) {
		return "", time.Time{}, ErrRefreshWindowElapsed
	}
	return s.Issue(claims.Subject, claims.Roles)
}

func (s *TokenService) sign(claims Claims) (string, error) {
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("auth: marshal claims: %w", err)
	}
	headerPart := base64.RawURLEncoding.EncodeToString([]byte(tokenHeader))
	claimsPart := base64.RawURLEncoding.EncodeToString(claimsJSON)
	signingInput := headerPart + "." + claimsPart

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(signingInput))
	sigPart := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return signingInput + "." + sigPart, nil
}

func (s *TokenService) parse(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}
	headerPart, claimsPart, sigPart := parts[0], parts[1], parts[2]

	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(headerPart + "." + claimsPart))
	wantSig := mac.Sum(nil)

	gotSig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil || !hmac.Equal(gotSig, wantSig) {
		return nil, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(claimsPart)
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
