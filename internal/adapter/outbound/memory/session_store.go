// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/sentineldock/acpgate/internal/domain/session"
)

// MemorySessionStore implements session.Store with an in-memory map.
// Thread-safe for concurrent access. Sessions live for the process lifetime
// only: there is no idle-timeout expiry, so no background cleanup is
// required. A session is removed explicitly via Delete, typically when its
// connection drops or the client sends session/close.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	byConn   map[string]map[string]struct{}
}

// NewSessionStore creates an empty in-memory session store.
func NewSessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*session.Session),
		byConn:   make(map[string]map[string]struct{}),
	}
}

// Create registers a new session under sess.ID.
func (s *MemorySessionStore) Create(ctx context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sessCopy := copySession(sess)
	s.sessions[sess.ID] = sessCopy
	s.indexConn(sessCopy.ConnectionID, sessCopy.ID)
	return nil
}

// Get retrieves a session by its current id.
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return copySession(sess), nil
}

// Rekey moves a session from oldID to newID, preserving its stored state.
func (s *MemorySessionStore) Rekey(ctx context.Context, oldID, newID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[oldID]
	if !ok {
		return session.ErrSessionNotFound
	}
	delete(s.sessions, oldID)
	sess.ID = newID
	s.sessions[newID] = sess

	if conn, ok := s.byConn[sess.ConnectionID]; ok {
		delete(conn, oldID)
		conn[newID] = struct{}{}
	}
	return nil
}

// Delete removes a session by id. Deleting an unknown id is not an error.
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	delete(s.sessions, id)
	if conn, ok := s.byConn[sess.ConnectionID]; ok {
		delete(conn, id)
		if len(conn) == 0 {
			delete(s.byConn, sess.ConnectionID)
		}
	}
	return nil
}

// ListByConnection returns every session owned by connectionID.
func (s *MemorySessionStore) ListByConnection(ctx context.Context, connectionID string) ([]*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byConn[connectionID]
	out := make([]*session.Session, 0, len(ids))
	for id := range ids {
		if sess, ok := s.sessions[id]; ok {
			out = append(out, copySession(sess))
		}
	}
	return out, nil
}

// Size returns the number of sessions currently stored. Useful for tests.
func (s *MemorySessionStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// indexConn must be called with s.mu held for writing.
func (s *MemorySessionStore) indexConn(connectionID, sessionID string) {
	if connectionID == "" {
		return
	}
	conn, ok := s.byConn[connectionID]
	if !ok {
		conn = make(map[string]struct{})
		s.byConn[connectionID] = conn
	}
	conn[sessionID] = struct{}{}
}

// copySession creates a shallow copy of a session to prevent callers from
// mutating store-internal state through a returned pointer.
func copySession(sess *session.Session) *session.Session {
	sessCopy := *sess
	sessCopy.AuthMethods = make([]string, len(sess.AuthMethods))
	copy(sessCopy.AuthMethods, sess.AuthMethods)
	return &sessCopy
}

// Compile-time interface verification.
var _ session.Store = (*MemorySessionStore)(nil)
