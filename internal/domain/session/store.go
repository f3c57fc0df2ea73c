package session

import (
	"context"
	"errors"
)

// ErrSessionNotFound is returned when a session doesn't exist.
var ErrSessionNotFound = errors.New("session not found")

// Store provides in-process session bookkeeping. There is no persistence
// requirement: all session state lives for the process lifetime only.
type Store interface {
	// Create registers a new session under sess.ID.
	Create(ctx context.Context, sess *Session) error

	// Get retrieves a session by its current id.
	// Returns ErrSessionNotFound if no session is registered under id.
	Get(ctx context.Context, id string) (*Session, error)

	// Rekey moves a session from oldID to newID, e.g. after session/new
	// migration. Returns ErrSessionNotFound if oldID isn't registered.
	Rekey(ctx context.Context, oldID, newID string) error

	// Delete removes a session by id.
	Delete(ctx context.Context, id string) error

	// ListByConnection returns every session owned by connectionID, used
	// to cascade-close sessions when their connection drops.
	ListByConnection(ctx context.Context, connectionID string) ([]*Session, error)
}
