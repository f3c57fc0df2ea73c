// Package session models the bridge session: the pairing between a client
// connection, an authenticated principal, and the agent subprocess handle
// backing one ACP conversation.
package session

import "time"

// Status is a Session's lifecycle state.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

// Session is the bridge's record of one ACP conversation. ID is mutable
// exactly once: allocated as a tentative value when the session is created,
// then rewritten in place if the agent's session/new response returns a
// different id (§4.5 step 7). Callers must read ID through a Session
// pointer rather than copying it into a closure before migration can occur.
type Session struct {
	ID           string
	ConnectionID string
	PrincipalID  string
	CWD          string
	ModelHint    string
	AuthMethods  []string
	Roles        []string
	Status       Status
	CreatedAt    time.Time
}

// IsActive reports whether the session is still accepting prompts.
func (s *Session) IsActive() bool {
	return s.Status == StatusActive
}
