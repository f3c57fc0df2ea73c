package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentineldock/acpgate/internal/domain/session"
)

func TestSessionStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	sess := &session.Session{
		ID:           "sess-1",
		ConnectionID: "conn-1",
		PrincipalID:  "user-1",
		Status:       session.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}

	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("ID = %q, want %q", got.ID, "sess-1")
	}
	if got.PrincipalID != "user-1" {
		t.Errorf("PrincipalID = %q, want %q", got.PrincipalID, "user-1")
	}
}

func TestSessionStore_GetNonExistent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	_, err := store.Get(ctx, "nonexistent")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_Rekey(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	sess := &session.Session{ID: "tentative-1", ConnectionID: "conn-1", Status: session.StatusActive}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := store.Rekey(ctx, "tentative-1", "final-1"); err != nil {
		t.Fatalf("Rekey() error: %v", err)
	}

	if _, err := store.Get(ctx, "tentative-1"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("old id should no longer resolve, got err=%v", err)
	}

	got, err := store.Get(ctx, "final-1")
	if err != nil {
		t.Fatalf("Get(final-1) error: %v", err)
	}
	if got.ID != "final-1" {
		t.Errorf("ID = %q, want %q", got.ID, "final-1")
	}

	sessions, err := store.ListByConnection(ctx, "conn-1")
	if err != nil {
		t.Fatalf("ListByConnection() error: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "final-1" {
		t.Errorf("ListByConnection() = %+v, want single session with id final-1", sessions)
	}
}

func TestSessionStore_RekeyNonExistent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	err := store.Rekey(ctx, "nonexistent", "new-id")
	if !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Rekey() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionStore_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	sess := &session.Session{ID: "sess-delete", ConnectionID: "conn-1"}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	if err := store.Delete(ctx, "sess-delete"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	if _, err := store.Get(ctx, "sess-delete"); !errors.Is(err, session.ErrSessionNotFound) {
		t.Errorf("Get() after Delete() should return ErrSessionNotFound, got %v", err)
	}

	sessions, err := store.ListByConnection(ctx, "conn-1")
	if err != nil {
		t.Fatalf("ListByConnection() error: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("ListByConnection() after Delete = %+v, want empty", sessions)
	}
}

func TestSessionStore_DeleteNonExistent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	if err := store.Delete(ctx, "nonexistent"); err != nil {
		t.Errorf("Delete() on non-existent session should not error, got %v", err)
	}
}

func TestSessionStore_ListByConnection_MultipleSessions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	for _, id := range []string{"s1", "s2", "s3"} {
		sess := &session.Session{ID: id, ConnectionID: "conn-shared"}
		if err := store.Create(ctx, sess); err != nil {
			t.Fatalf("Create(%s) error: %v", id, err)
		}
	}
	_ = store.Create(ctx, &session.Session{ID: "s4", ConnectionID: "conn-other"})

	sessions, err := store.ListByConnection(ctx, "conn-shared")
	if err != nil {
		t.Fatalf("ListByConnection() error: %v", err)
	}
	if len(sessions) != 3 {
		t.Errorf("ListByConnection() returned %d sessions, want 3", len(sessions))
	}
}

func TestSessionStore_CopyOnReturn(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	sess := &session.Session{ID: "sess-copy-test", PrincipalID: "user-1", AuthMethods: []string{"bearer"}}
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got1, err := store.Get(ctx, "sess-copy-test")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	got1.PrincipalID = "modified-user"
	got1.AuthMethods = append(got1.AuthMethods, "oauth")

	got2, err := store.Get(ctx, "sess-copy-test")
	if err != nil {
		t.Fatalf("Get() second call error: %v", err)
	}
	if got2.PrincipalID == "modified-user" {
		t.Error("store returned reference instead of copy (PrincipalID was modified)")
	}
	if len(got2.AuthMethods) != 1 {
		t.Errorf("store returned reference instead of copy (AuthMethods length = %d, want 1)", len(got2.AuthMethods))
	}
}

func TestSessionStore_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewSessionStore()

	for i := 0; i < 10; i++ {
		sess := &session.Session{ID: "sess-concurrent-" + string(rune('0'+i)), ConnectionID: "conn-1"}
		if err := store.Create(ctx, sess); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	var wg sync.WaitGroup
	errCh := make(chan error, 300)

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sessID := "sess-concurrent-" + string(rune('0'+(idx%10)))
			_, err := store.Get(ctx, sessID)
			if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
				errCh <- err
			}
		}(i)
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sess := &session.Session{ID: "sess-new-" + string(rune('a'+idx)), ConnectionID: "conn-2"}
			if err := store.Create(ctx, sess); err != nil {
				errCh <- err
			}
		}(i)
	}

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			sessID := "sess-concurrent-" + string(rune('0'+(idx%10)))
			if err := store.Delete(ctx, sessID); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		t.Errorf("concurrent access error: %v", err)
	}
}
