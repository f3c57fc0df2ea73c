package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sentineldock/acpgate/internal/adapter/inbound/httpobs"
	"github.com/sentineldock/acpgate/internal/ctxkey"
	"github.com/sentineldock/acpgate/internal/domain/auth"
	"github.com/sentineldock/acpgate/internal/domain/envelope"
	"github.com/sentineldock/acpgate/internal/domain/ratelimit"
	"github.com/sentineldock/acpgate/internal/service"
	"github.com/sentineldock/acpgate/pkg/acpwire"
)

const maxMessageBytes = 4 << 20 // 4 MiB, generous for large tool-call arguments

// Dispatcher is the narrow view of internal/service.Dispatcher the
// connection server drives: route a validated envelope, or tear down every
// session a dropped connection owned.
type Dispatcher interface {
	HandleEnvelope(ctx context.Context, conn service.ClientConn, env *envelope.Envelope)
	HandleConnectionClosed(ctx context.Context, connID string)
}

// Server upgrades HTTP connections to WebSocket, authenticates them with a
// bridge bearer token, and runs the per-connection read/heartbeat loops.
type Server struct {
	upgrader          websocket.Upgrader
	dispatcher        Dispatcher
	tokens            *auth.TokenService
	rateLimiter       ratelimit.RateLimiter
	rateLimitCfg      ratelimit.RateLimitConfig
	heartbeatInterval time.Duration
	metrics           *httpobs.Metrics
	logger            *slog.Logger

	mu    sync.RWMutex
	conns map[string]*Connection
}

// Option configures optional Server behavior.
type Option func(*Server)

// WithRateLimiter bounds per-IP connection attempts. Omit to accept every
// upgrade unconditionally (e.g. in tests).
func WithRateLimiter(limiter ratelimit.RateLimiter, cfg ratelimit.RateLimitConfig) Option {
	return func(s *Server) {
		s.rateLimiter = limiter
		s.rateLimitCfg = cfg
	}
}

// NewServer creates a connection Server. heartbeatInterval defaults to 25s.
func NewServer(dispatcher Dispatcher, tokens *auth.TokenService, heartbeatInterval time.Duration, metrics *httpobs.Metrics, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeatInterval <= 0 {
		heartbeatInterval = 25 * time.Second
	}
	s := &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin enforcement happens in the OriginAllowlist HTTP
			// middleware ahead of this handler, not here.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		dispatcher:        dispatcher,
		tokens:            tokens,
		heartbeatInterval: heartbeatInterval,
		metrics:           metrics,
		logger:            logger,
		conns:             make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServeHTTP upgrades the request to a WebSocket and serves it until the
// client disconnects. Auth is checked after upgrade so a failure can be
// reported with a WebSocket close code (1008) rather than an HTTP status.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.rateLimited(r) {
		http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
		return
	}

	token := r.URL.Query().Get("token")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	principal, err := s.tokens.Verify(token)
	if err != nil {
		reason := "Invalid token"
		if token == "" {
			reason = "Authentication required"
		}
		s.closeWithPolicyViolation(conn, reason)
		return
	}

	roles := make([]string, len(principal.Roles))
	for i, role := range principal.Roles {
		roles[i] = string(role)
	}

	c := newConnection(uuid.NewString(), principal.Username, realIP(r), roles, conn)
	s.register(c)

	established := envelope.ConnectionEstablishedPayload{ConnectionID: c.ID(), ProtocolVersion: acpwire.ProtocolVersion}
	if env, err := envelope.New(envelope.TypeConnectionEstablishedSuccess, established); err == nil {
		_ = c.Send(env)
	}

	s.serveConnection(c)
}

func (s *Server) rateLimited(r *http.Request) bool {
	if s.rateLimiter == nil {
		return false
	}
	key := ratelimit.FormatKey(ratelimit.KeyTypeIP, realIP(r))
	result, err := s.rateLimiter.Allow(r.Context(), key, s.rateLimitCfg)
	if err != nil {
		return false
	}
	return !result.Allowed
}

func (s *Server) closeWithPolicyViolation(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
	_ = conn.Close()
}

func (s *Server) serveConnection(c *Connection) {
	defer s.teardown(c)

	c.conn.SetReadLimit(maxMessageBytes)
	c.conn.SetPongHandler(func(string) error {
		c.MarkAlive()
		return nil
	})

	go s.livenessLoop(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.MarkAlive()
		s.handleFrame(c, data)
	}
}

// livenessLoop implements the flag-clear-and-ping protocol: every tick, a
// still-false flag (no traffic since the last tick) terminates the
// connection; otherwise the flag is cleared and a fresh ping is sent.
func (s *Server) livenessLoop(c *Connection) {
	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			if !c.CheckAndClearAlive() {
				_ = c.Close()
				return
			}
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
		}
	}
}

func (s *Server) handleFrame(c *Connection, data []byte) {
	var env envelope.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.sendSystemError(c, envelope.CodeInvalidMessage, "malformed JSON")
		return
	}
	if env.Type == "" {
		s.sendSystemError(c, envelope.CodeInvalidMessage, "missing type")
		return
	}
	if err := envelope.Validate(env.Type, env.Payload); err != nil {
		var verr *envelope.ValidationError
		if errors.As(err, &verr) {
			s.sendTypedError(c, env.Type, verr.Code, verr.Message)
			return
		}
		s.sendSystemError(c, envelope.CodeInvalidMessage, err.Error())
		return
	}
	s.dispatcher.HandleEnvelope(context.Background(), c, &env)
}

func (s *Server) sendSystemError(c *Connection, code, message string) {
	env, err := envelope.NewError(envelope.TypeSystemError, code, message, nil)
	if err != nil {
		return
	}
	_ = c.Send(env)
}

func (s *Server) sendTypedError(c *Connection, reqType, code, message string) {
	env, err := envelope.NewError(envelope.ErrorSibling(reqType), code, message, nil)
	if err != nil {
		return
	}
	_ = c.Send(env)
}

func (s *Server) teardown(c *Connection) {
	s.unregister(c)
	_ = c.Close()
	s.dispatcher.HandleConnectionClosed(context.Background(), c.ID())
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Dec()
	}
}

func (s *Server) register(c *Connection) {
	s.mu.Lock()
	s.conns[c.ID()] = c
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectionsActive.Inc()
	}
}

func (s *Server) unregister(c *Connection) {
	s.mu.Lock()
	delete(s.conns, c.ID())
	s.mu.Unlock()
}

// Get implements service.ConnectionRegistry.
func (s *Server) Get(connID string) (service.ClientConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[connID]
	return c, ok
}

func realIP(r *http.Request) string {
	if ip, ok := r.Context().Value(ctxkey.IPAddressKey{}).(string); ok && ip != "" {
		return ip
	}
	return r.RemoteAddr
}
