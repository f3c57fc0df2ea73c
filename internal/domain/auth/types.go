// Package auth issues and verifies the bridge's bearer tokens. The bridge
// has exactly one configured login (spec.md's single-identity model): there
// is no user store, only a demo username/password pair checked against the
// configured argon2id hash.
package auth

import "time"

// Role represents a permission-policy role for CEL evaluation.
type Role string

const (
	// RoleAdmin has full access to all operations.
	RoleAdmin Role = "admin"
	// RoleUser has standard access to most operations.
	RoleUser Role = "user"
	// RoleReadOnly has read-only access to operations.
	RoleReadOnly Role = "read-only"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleReadOnly:
		return true
	default:
		return false
	}
}

// Principal is the identity behind a verified bearer token.
type Principal struct {
	ID       string
	Username string
	Roles    []Role
}

// HasRole returns true if the principal has the specified role.
func (p *Principal) HasRole(role Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Claims is the signed payload embedded in a bridge token.
type Claims struct {
	Subject   string    `json:"sub"`
	Roles     []Role    `json:"roles,omitempty"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
}

// IsExpired reports whether now is past the claims' expiry.
func (c Claims) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
