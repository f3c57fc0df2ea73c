// Package service implements the protocol dispatcher: the translation
// layer between the client-facing envelope vocabulary (internal/domain/envelope)
// and the ACP JSON-RPC dialect spoken to an agent subprocess
// (internal/adapter/outbound/agentproc, pkg/acpwire).
package service

import "github.com/sentineldock/acpgate/internal/domain/envelope"

// ClientConn is the narrow view of a client connection the dispatcher needs
// to address a reply. Implemented by the connection server (internal/adapter/inbound/ws);
// the dispatcher knows nothing about transport, framing, or liveness.
type ClientConn interface {
	ID() string
	PrincipalID() string
	Roles() []string
	Send(env *envelope.Envelope) error
}

// ConnectionRegistry resolves a connection id to its live ClientConn. An
// absent entry means the connection has already disconnected; callers drop
// the reply rather than treating it as an error.
type ConnectionRegistry interface {
	Get(connID string) (ClientConn, bool)
}
