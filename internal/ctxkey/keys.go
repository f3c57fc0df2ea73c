// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with request_id fields.
type LoggerKey struct{}

// ConnectionIDKey is the context key type for the owning connection id,
// set once a socket has completed the auth handshake.
type ConnectionIDKey struct{}

// PrincipalKey is the context key type for the authenticated identity name.
type PrincipalKey struct{}

// IPAddressKey is the context key type for the client's real IP address,
// as determined by RealIPMiddleware.
type IPAddressKey struct{}
