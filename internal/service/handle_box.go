package service

import (
	"sync"

	"github.com/sentineldock/acpgate/internal/adapter/outbound/agentproc"
)

// handleBox lets a subprocess's OnStderr/OnExit callbacks observe the
// *agentproc.Handle that Supervisor.Spawn hasn't finished returning yet:
// those callbacks can fire from the supervisor's read goroutines before
// Spawn's return value is assigned in the caller. The box is set once,
// immediately after Spawn returns; a nil read (the narrow startup window
// before that assignment) is treated as "nothing to report against yet" and
// the callback drops its line rather than guessing a session id.
type handleBox struct {
	mu sync.Mutex
	h  *agentproc.Handle
}

func (b *handleBox) set(h *agentproc.Handle) {
	b.mu.Lock()
	b.h = h
	b.mu.Unlock()
}

func (b *handleBox) get() *agentproc.Handle {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.h
}
