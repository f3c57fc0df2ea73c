package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidCredentials is returned by Authenticate for any username/password
// mismatch; it deliberately does not distinguish "unknown user" from "wrong
// password" in its message.
var ErrInvalidCredentials = errors.New("auth: invalid username or password")

// argon2idParams follows OWASP's minimum recommendation for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashPassword returns an Argon2id hash of password in PHC format, used by
// the hash-token CLI subcommand to produce an AuthConfig.PasswordHash value.
func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, argon2idParams)
}

// CredentialStore resolves the bridge's single login to its principal.
type CredentialStore interface {
	Authenticate(username, password string) (*Principal, error)
}

// StaticCredentialStore checks a password against one configured argon2id
// hash: the bridge has exactly one login, seeded from AuthConfig.
type StaticCredentialStore struct {
	Username     string
	PasswordHash string
	Roles        []Role
}

// Authenticate verifies username and password against the configured pair.
// The password hash is always checked, even on a username mismatch, so a
// bad username doesn't short-circuit before the (comparatively expensive)
// Argon2id comparison and leak validity through response timing.
func (s *StaticCredentialStore) Authenticate(username, password string) (*Principal, error) {
	match, err := safeComparePasswordAndHash(password, s.PasswordHash)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(username), []byte(s.Username)) != 1 || !match {
		return nil, ErrInvalidCredentials
	}
	return &Principal{ID: s.Username, Username: s.Username, Roles: s.Roles}, nil
}

// safeComparePasswordAndHash wraps argon2id.ComparePasswordAndHash with
// panic recovery: the underlying library panics on malformed PHC strings
// (e.g. t=0 rounds), which a misconfigured PasswordHash could trigger.
func safeComparePasswordAndHash(password, hash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("auth: invalid password hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(password, hash)
}
