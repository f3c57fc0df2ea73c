// Package ws implements the client-facing WebSocket connection server: the
// bridge's C3 component. It terminates the browser client's connection,
// authenticates it, frames typed envelopes on and off the wire, and drives
// the per-connection liveness ticker. Everything session- and prompt-shaped
// is delegated to internal/service's Dispatcher through the narrow
// service.ClientConn / service.ConnectionRegistry ports.
package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/sentineldock/acpgate/internal/domain/envelope"
)

// Connection wraps one upgraded WebSocket, adding the write-mutex and
// liveness bookkeeping the connection server needs. It satisfies
// service.ClientConn.
type Connection struct {
	id          string
	principalID string
	remoteAddr  string
	roles       []string

	conn    *websocket.Conn
	writeMu sync.Mutex

	alive atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

func newConnection(id, principalID, remoteAddr string, roles []string, conn *websocket.Conn) *Connection {
	c := &Connection{
		id:          id,
		principalID: principalID,
		remoteAddr:  remoteAddr,
		roles:       roles,
		conn:        conn,
		done:        make(chan struct{}),
	}
	c.alive.Store(true)
	return c
}

// ID returns the bridge-assigned connection id.
func (c *Connection) ID() string { return c.id }

// PrincipalID returns the authenticated identity that owns this connection.
func (c *Connection) PrincipalID() string { return c.principalID }

// RemoteAddr returns the client's real IP address, as resolved before upgrade.
func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// Roles returns the authenticated principal's roles, as carried by the
// bearer token verified at upgrade time.
func (c *Connection) Roles() []string { return c.roles }

// Send writes one envelope as a single text frame, synchronized against
// concurrent writers (the dispatcher may reply from several goroutines: the
// read loop, agent notification callbacks, the heartbeat ticker).
func (c *Connection) Send(env *envelope.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// MarkAlive sets the liveness flag, called on receipt of any application
// message or frame-level pong.
func (c *Connection) MarkAlive() {
	c.alive.Store(true)
}

// CheckAndClearAlive atomically reads and clears the liveness flag,
// returning the value observed before clearing. The heartbeat loop
// terminates the connection when this returns false (no traffic since the
// last check) and otherwise sends a fresh ping.
func (c *Connection) CheckAndClearAlive() bool {
	return c.alive.Swap(false)
}

// Done returns a channel closed once the connection has been torn down.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Close closes the underlying socket exactly once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}
