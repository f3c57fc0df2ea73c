// Package agentproc supervises one ACP agent subprocess per session: spawn,
// stdio wiring, JSON-RPC line dispatch, stderr classification, and
// controlled teardown.
package agentproc

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentineldock/acpgate/internal/adapter/outbound/correlator"
	"github.com/sentineldock/acpgate/pkg/acpwire"
)

// Status is a Handle's lifecycle state.
type Status int32

const (
	StatusInitializing Status = iota
	StatusReady
	StatusError
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle is one live agent subprocess bound to a session. Its session id is
// mutable exactly once, at session-id migration (§4.5 step 7): callers must
// read it through CurrentID rather than capturing the id that was true at
// spawn time, so a closure created before migration still resolves to the
// session's current identity afterward.
type Handle struct {
	idMu sync.RWMutex
	id   string

	CWD   string
	Model string

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	encMu  sync.Mutex
	enc    *acpwire.Encoder
	status atomic.Int32

	// Correlator owns this subprocess's JSON-RPC pending-request table and
	// routes notifications / agent-initiated requests to whatever handler
	// the dispatcher has currently registered for this session.
	Correlator *correlator.Correlator

	killGrace time.Duration

	closeOnce sync.Once
	done      chan struct{}
	exitErr   error
}

// CurrentID returns the session id this handle is presently bound to.
func (h *Handle) CurrentID() string {
	h.idMu.RLock()
	defer h.idMu.RUnlock()
	return h.id
}

// SetID rebinds this handle to a new session id, e.g. when session/new
// returns a session id different from the tentative id allocated before the
// handshake.
func (h *Handle) SetID(id string) {
	h.idMu.Lock()
	defer h.idMu.Unlock()
	h.id = id
}

// Status returns the handle's current lifecycle state.
func (h *Handle) Status() Status {
	return Status(h.status.Load())
}

func (h *Handle) setStatus(s Status) {
	h.status.Store(int32(s))
}

// Send writes a single JSON-RPC message (request, response, or
// notification) to the subprocess's stdin, synchronized against concurrent
// writers.
func (h *Handle) Send(v interface{}) error {
	h.encMu.Lock()
	defer h.encMu.Unlock()
	return h.enc.Encode(v)
}

// SendRequest writes a JSON-RPC request and blocks for its response or
// until ctx is done / the correlator's default timeout elapses.
func (h *Handle) SendRequest(ctx context.Context, method string, params interface{}) (*acpwire.Response, error) {
	id, await := h.Correlator.NewRequest()
	req, err := acpwire.WrapMessage(id, method, params)
	if err != nil {
		return nil, err
	}
	if err := h.Send(req); err != nil {
		return nil, fmt.Errorf("agentproc: write %s: %w", method, err)
	}
	return await(ctx)
}

// SendNotification writes a JSON-RPC notification and returns immediately
// without waiting for any reply (session/prompt and session/cancel are both
// sent this way: §4.5 fire-and-forget, §9 Open Question (a)).
func (h *Handle) SendNotification(method string, params interface{}) error {
	n, err := acpwire.WrapNotification(method, params)
	if err != nil {
		return err
	}
	return h.Send(n)
}

// Done returns a channel closed once the subprocess has exited.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// ExitErr returns the error the subprocess exited with, valid only after
// Done() is closed. nil means a clean exit.
func (h *Handle) ExitErr() error {
	<-h.done
	return h.exitErr
}

// Kill sends SIGTERM, waits killGrace for a clean exit, then sends SIGKILL.
// Safe to call more than once and safe to call after the process has
// already exited on its own.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	if err := terminate(h.cmd.Process); err != nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-time.After(h.killGrace):
	}
	return kill(h.cmd.Process)
}
