// Package correlator matches JSON-RPC responses arriving on an agent
// subprocess's stdout back to the request that solicited them, and routes
// everything else (notifications, and agent-initiated requests such as
// session/request_permission) to the owning session's current handler.
//
// One Correlator is created per subprocess: request ids are scoped to a
// single JSON-RPC conversation, so there is no need to partition the
// pending table by session.
package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sentineldock/acpgate/pkg/acpwire"
)

// DefaultTimeout is how long a pending request waits for its response
// before Await returns ErrTimeout.
const DefaultTimeout = 30 * time.Second

// sweepInterval is how often the background goroutine checks pending
// entries for expiry.
const sweepInterval = time.Second

// ErrTimeout is returned by Await when a request's deadline elapses before
// a matching response arrives.
var ErrTimeout = errors.New("correlator: request timed out")

// ErrClosed is returned by Await (and delivered to any requests already
// waiting) once the Correlator has been closed, e.g. because the owning
// subprocess exited or the session was closed.
var ErrClosed = errors.New("correlator: closed")

// Inbound is everything the Correlator routes to a session's handler that
// isn't a resolved response: unsolicited JSON-RPC notifications from the
// agent (session/update) and agent-initiated requests expecting a reply
// (session/request_permission).
type Inbound struct {
	Notification *acpwire.Notification
	Request      *acpwire.Request
}

// Handler processes an Inbound message. Handlers are replaced wholesale on
// session-id migration (SetHandler), never captured by value in a closure
// that outlives the migration.
type Handler func(in Inbound)

type pendingResult struct {
	resp *acpwire.Response
	err  error
}

type pendingEntry struct {
	ch       chan pendingResult
	deadline time.Time
}

// Correlator owns the pending-request table for one subprocess conversation.
type Correlator struct {
	nextID int64

	mu      sync.Mutex
	pending map[int64]*pendingEntry
	handler Handler
	closed  bool

	timeout time.Duration
	stop    chan struct{}
	stopped sync.Once
}

// New creates a Correlator with the given default per-request timeout
// (DefaultTimeout if zero) and starts its background expiry sweep.
func New(timeout time.Duration, handler Handler) *Correlator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Correlator{
		pending: make(map[int64]*pendingEntry),
		handler: handler,
		timeout: timeout,
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// SetHandler replaces the notification/request handler. Call this
// immediately after a session migrates to a new id so in-flight
// notifications are routed under the session's current identity rather
// than a handler closure still referencing the old one.
func (c *Correlator) SetHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// NewRequest allocates the next monotonic JSON-RPC id and registers a
// pending entry for it, returning the id and an Await function. Register
// before writing the request to the subprocess's stdin, so a response that
// arrives immediately cannot race ahead of registration.
func (c *Correlator) NewRequest() (id int64, await func(ctx context.Context) (*acpwire.Response, error)) {
	id = atomic.AddInt64(&c.nextID, 1)
	entry := &pendingEntry{
		ch:       make(chan pendingResult, 1),
		deadline: time.Now().Add(c.timeout),
	}

	c.mu.Lock()
	if c.closed {
		entry.ch <- pendingResult{err: ErrClosed}
	} else {
		c.pending[id] = entry
	}
	c.mu.Unlock()

	await = func(ctx context.Context) (*acpwire.Response, error) {
		select {
		case r := <-entry.ch:
			return r.resp, r.err
		case <-ctx.Done():
			c.mu.Lock()
			delete(c.pending, id)
			c.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	return id, await
}

// Dispatch classifies one decoded message from the subprocess's stdout:
//
//   - a Response whose id is pending resolves that request's Await.
//   - a Response whose id is NOT pending (the agent answered a
//     fire-and-forget session/prompt call) is forwarded to the handler as a
//     synthesized "session/prompt" notification.
//   - a Request or Notification is forwarded to the handler directly.
func (c *Correlator) Dispatch(msg *acpwire.Message) {
	switch {
	case msg.Response != nil:
		c.dispatchResponse(msg.Response)
	case msg.Request != nil:
		c.deliver(Inbound{Request: msg.Request})
	case msg.Notification != nil:
		c.deliver(Inbound{Notification: msg.Notification})
	}
}

func (c *Correlator) dispatchResponse(resp *acpwire.Response) {
	c.mu.Lock()
	entry, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if ok {
		var err error
		if resp.Error != nil {
			err = resp.Error
		}
		entry.ch <- pendingResult{resp: resp, err: err}
		return
	}

	// Unknown id: this is the async response to a fire-and-forget
	// session/prompt call. Synthesize the params the dispatcher expects.
	params := resp.Result
	if resp.Error != nil || len(params) == 0 {
		params, _ = json.Marshal(acpwire.SessionPromptResult{StopReason: acpwire.StopReasonUnknown})
	}
	c.deliver(Inbound{Notification: &acpwire.Notification{
		JSONRPC: "2.0",
		Method:  "session/prompt",
		Params:  params,
	}})
}

func (c *Correlator) deliver(in Inbound) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h(in)
	}
}

// Close rejects every currently pending request with ErrClosed and stops
// the expiry sweep. Call this when the owning subprocess exits or the
// session is closed.
func (c *Correlator) Close() {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]*pendingEntry)
	c.closed = true
	c.mu.Unlock()

	for _, entry := range pending {
		entry.ch <- pendingResult{err: ErrClosed}
	}

	c.stopped.Do(func() { close(c.stop) })
}

func (c *Correlator) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Correlator) sweepExpired() {
	now := time.Now()
	var expired []*pendingEntry

	c.mu.Lock()
	for id, entry := range c.pending {
		if now.After(entry.deadline) {
			expired = append(expired, entry)
			delete(c.pending, id)
		}
	}
	c.mu.Unlock()

	for _, entry := range expired {
		entry.ch <- pendingResult{err: ErrTimeout}
	}
}
