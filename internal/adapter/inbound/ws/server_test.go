package ws

import (
	"context"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sentineldock/acpgate/internal/domain/auth"
	"github.com/sentineldock/acpgate/internal/domain/envelope"
	"github.com/sentineldock/acpgate/internal/service"
)

// fakeDispatcher records every envelope routed to it and every connection
// drop, standing in for internal/service.Dispatcher.
type fakeDispatcher struct {
	mu       sync.Mutex
	handled  []*envelope.Envelope
	conns    []service.ClientConn
	closedID string
}

func (f *fakeDispatcher) HandleEnvelope(ctx context.Context, conn service.ClientConn, env *envelope.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, env)
	f.conns = append(f.conns, conn)
}

func (f *fakeDispatcher) HandleConnectionClosed(ctx context.Context, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closedID = connID
}

func (f *fakeDispatcher) last() *envelope.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.handled) == 0 {
		return nil
	}
	return f.handled[len(f.handled)-1]
}

func newTestServer(t *testing.T, disp Dispatcher, tokens *auth.TokenService) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(disp, tokens, 50*time.Millisecond, nil, nil)
	hs := httptest.NewServer(s)
	t.Cleanup(hs.Close)
	return s, hs
}

func wsURL(t *testing.T, hs *httptest.Server, token string) string {
	t.Helper()
	u, err := url.Parse(hs.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	u.Scheme = "ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func TestServeHTTP_RejectsMissingToken(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenService("test-secret", time.Hour, time.Hour)
	disp := &fakeDispatcher{}
	_, hs := newTestServer(t, disp, tokens)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, hs, ""), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	if err == nil {
		t.Fatal("expected the server to close the connection for a missing token")
	}
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Errorf("expected policy-violation close, got %v", err)
	}
}

func TestServeHTTP_AcceptsValidToken(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenService("test-secret", time.Hour, time.Hour)
	token, _, err := tokens.Issue("alice", []auth.Role{auth.RoleUser})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	disp := &fakeDispatcher{}
	_, hs := newTestServer(t, disp, tokens)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, hs, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), envelope.TypeConnectionEstablishedSuccess) {
		t.Errorf("expected a connection:established:success frame, got %s", data)
	}
}

func TestHandleFrame_UnknownTypeRejectedWithoutReachingDispatcher(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenService("test-secret", time.Hour, time.Hour)
	token, _, _ := tokens.Issue("alice", nil)
	disp := &fakeDispatcher{}
	_, hs := newTestServer(t, disp, tokens)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, hs, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Drain the initial connection:established:success frame.
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("ReadMessage (established): %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"not:a:real:type"}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage (error): %v", err)
	}
	if !strings.Contains(string(data), envelope.CodeUnknownType) {
		t.Errorf("expected an %s error, got %s", envelope.CodeUnknownType, data)
	}

	if disp.last() != nil {
		t.Errorf("dispatcher should not see a structurally invalid envelope, got %+v", disp.last())
	}
}

func TestHandleFrame_ValidEnvelopeReachesDispatcher(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenService("test-secret", time.Hour, time.Hour)
	token, _, _ := tokens.Issue("alice", nil)
	disp := &fakeDispatcher{}
	_, hs := newTestServer(t, disp, tokens)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, hs, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("ReadMessage (established): %v", err)
	}

	frame := `{"type":"connection:heartbeat:request","id":"h1","timestamp":0}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if env := disp.last(); env != nil {
			if env.Type != envelope.TypeConnectionHeartbeatRequest {
				t.Errorf("dispatcher saw type %q, want %q", env.Type, envelope.TypeConnectionHeartbeatRequest)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("dispatcher never observed the heartbeat envelope")
}

func TestConnectionClosed_NotifiesDispatcher(t *testing.T) {
	t.Parallel()

	tokens := auth.NewTokenService("test-secret", time.Hour, time.Hour)
	token, _, _ := tokens.Issue("alice", nil)
	disp := &fakeDispatcher{}
	_, hs := newTestServer(t, disp, tokens)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(t, hs, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err != nil {
		t.Fatalf("ReadMessage (established): %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		disp.mu.Lock()
		closed := disp.closedID
		disp.mu.Unlock()
		if closed != "" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("dispatcher was never notified of the dropped connection")
}
