package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentineldock/acpgate/internal/adapter/inbound/httpobs"
	"github.com/sentineldock/acpgate/internal/adapter/outbound/agentproc"
	"github.com/sentineldock/acpgate/internal/adapter/outbound/correlator"
	"github.com/sentineldock/acpgate/internal/config"
	"github.com/sentineldock/acpgate/internal/domain/envelope"
	"github.com/sentineldock/acpgate/internal/domain/policy"
	"github.com/sentineldock/acpgate/internal/domain/session"
	acpgateerrors "github.com/sentineldock/acpgate/internal/errors"
	"github.com/sentineldock/acpgate/pkg/acpwire"
)

// tracerName identifies this package's spans in the configured TracerProvider.
const tracerName = "github.com/sentineldock/acpgate/internal/service"

type pendingPrompt struct {
	requestID string
	span      trace.Span
}

type pendingPermission struct {
	jsonrpcID int64
}

// Dispatcher is the hard core of the bridge: it owns session lifecycle,
// translates between the envelope vocabulary and the ACP JSON-RPC dialect,
// and routes agent-initiated notifications and requests back to the owning
// client connection.
type Dispatcher struct {
	sessions     session.Store
	supervisor   *agentproc.Supervisor
	agentCfg     config.AgentConfig
	conns        ConnectionRegistry
	metrics      *httpobs.Metrics
	logger       *slog.Logger
	policyEngine policy.Engine
	tracer       trace.Tracer

	mu          sync.Mutex
	prompts     map[string]pendingPrompt     // sessionID -> pending client prompt
	permissions map[string]pendingPermission // sessionID+":"+requestID -> pending agent request
}

// NewDispatcher creates a Dispatcher. Call SetConnections once the
// connection server exists, before any traffic flows: the two are built in
// opposite dependency order (the connection server needs the dispatcher to
// route envelopes; the dispatcher needs the connection server to address
// replies), so the cycle is broken with setter injection. policyEngine may
// be nil, in which case session/request_permission always forwards the
// agent's options unchanged (or the default set, if the agent sent none).
func NewDispatcher(sessions session.Store, supervisor *agentproc.Supervisor, agentCfg config.AgentConfig, metrics *httpobs.Metrics, logger *slog.Logger, policyEngine policy.Engine) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sessions:     sessions,
		supervisor:   supervisor,
		agentCfg:     agentCfg,
		metrics:      metrics,
		logger:       logger,
		policyEngine: policyEngine,
		tracer:       otel.Tracer(tracerName),
		prompts:      make(map[string]pendingPrompt),
		permissions:  make(map[string]pendingPermission),
	}
}

// SetConnections wires the connection registry used to address replies.
func (d *Dispatcher) SetConnections(conns ConnectionRegistry) {
	d.conns = conns
}

// HandleEnvelope routes one client envelope, already structurally validated
// against the registry, to its handler.
func (d *Dispatcher) HandleEnvelope(ctx context.Context, conn ClientConn, env *envelope.Envelope) {
	switch env.Type {
	case envelope.TypeACPSessionCreateRequest:
		d.handleSessionCreate(ctx, conn, env)
	case envelope.TypeACPSessionCloseRequest:
		d.handleSessionClose(ctx, conn, env)
	case envelope.TypeACPPromptSendRequest:
		d.handlePromptSend(ctx, conn, env)
	case envelope.TypeACPPromptCancelRequest:
		d.handlePromptCancel(ctx, conn, env)
	case envelope.TypeACPPermissionResponse:
		d.handlePermissionResponse(ctx, conn, env)
	case envelope.TypeConnectionHeartbeatRequest:
		d.handleHeartbeat(conn, env)
	default:
		d.sendUnsupported(conn, env)
	}
}

// HandleConnectionClosed cascade-closes every session owned by a connection
// that just dropped.
func (d *Dispatcher) HandleConnectionClosed(ctx context.Context, connID string) {
	sessions, err := d.sessions.ListByConnection(ctx, connID)
	if err != nil {
		return
	}
	for _, sess := range sessions {
		d.closeSession(ctx, sess.ID)
	}
}

func (d *Dispatcher) sendUnsupported(conn ClientConn, env *envelope.Envelope) {
	msg := fmt.Sprintf("unsupported operation: %s", env.Type)
	errEnv, err := envelope.NewError(envelope.ErrorSibling(env.Type), envelope.CodeInvalidParams, msg, nil)
	if err != nil {
		return
	}
	_ = conn.Send(errEnv)
}

// --- session create -------------------------------------------------------

func (d *Dispatcher) handleSessionCreate(ctx context.Context, conn ClientConn, env *envelope.Envelope) {
	ctx, span := d.tracer.Start(ctx, "acpgate.session.create")
	defer span.End()

	var payload envelope.SessionCreateRequestPayload
	if len(env.Payload) > 0 {
		_ = json.Unmarshal(env.Payload, &payload)
	}

	model := payload.Model
	if model == "" {
		model = d.agentCfg.DefaultModel
	}
	span.SetAttributes(attribute.String("acpgate.model", model), attribute.String("acpgate.connection_id", conn.ID()))

	tentativeID := uuid.NewString()
	sess := &session.Session{
		ID:           tentativeID,
		ConnectionID: conn.ID(),
		PrincipalID:  conn.PrincipalID(),
		CWD:          payload.CWD,
		ModelHint:    model,
		Roles:        conn.Roles(),
		Status:       session.StatusActive,
		CreatedAt:    time.Now().UTC(),
	}
	if err := d.sessions.Create(ctx, sess); err != nil {
		d.failSessionCreate(span, conn, "could not allocate session", err)
		return
	}

	var box handleBox
	handle, err := d.supervisor.Spawn(agentproc.SpawnParams{
		SessionID: tentativeID,
		CWD:       payload.CWD,
		Model:     model,
		OnMessage: d.makeHandler(conn.ID(), tentativeID),
		OnStderr:  func(line string) { d.onStderr(&box, conn.ID(), line) },
		OnExit:    func(exitErr error) { d.onExit(&box, conn.ID(), exitErr) },
	})
	if err != nil {
		_ = d.sessions.Delete(ctx, tentativeID)
		d.failSessionCreate(span, conn, "failed to start agent process", err)
		return
	}
	box.set(handle)

	spawnCtx, cancel := context.WithTimeout(ctx, d.spawnTimeout())
	defer cancel()

	initResult, err := d.initializeAgent(spawnCtx, handle)
	if err != nil {
		d.teardownFailedSession(tentativeID)
		d.failSessionCreate(span, conn, "agent initialize failed", err)
		return
	}

	newResult, err := d.createAgentSession(spawnCtx, handle, payload.CWD, model)
	if err != nil {
		d.teardownFailedSession(tentativeID)
		d.failSessionCreate(span, conn, "agent session/new failed", err)
		return
	}

	finalID := tentativeID
	if newResult.SessionID != "" && newResult.SessionID != tentativeID {
		finalID = newResult.SessionID
		if err := d.migrate(ctx, tentativeID, finalID); err != nil {
			d.teardownFailedSession(tentativeID)
			d.failSessionCreate(span, conn, "session migration failed", err)
			return
		}
	}
	span.SetAttributes(attribute.String("acpgate.session_id", finalID))

	if len(initResult.AuthMethods) > 0 {
		methods := make([]string, 0, len(initResult.AuthMethods))
		for _, m := range initResult.AuthMethods {
			methods = append(methods, m.ID)
		}
		d.recordAuthMethods(ctx, finalID, methods)
	}

	resp := envelope.SessionCreateSuccessPayload{
		SessionID:       finalID,
		AvailableModels: newResult.Models,
		CurrentModel:    newResult.CurrentModel,
		Modes:           translateModes(newResult.Modes),
	}
	d.reply(conn, envelope.TypeACPSessionCreateSuccess, resp)
	span.SetStatus(codes.Ok, "")

	if d.metrics != nil {
		d.metrics.SessionsActive.Set(float64(d.supervisor.Count()))
	}
}

func (d *Dispatcher) failSessionCreate(span trace.Span, conn ClientConn, message string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, message)
	d.sendCreateError(conn, message)
}

func translateModes(m *acpwire.Modes) *envelope.ModesPayload {
	if m == nil {
		return nil
	}
	out := &envelope.ModesPayload{CurrentModeID: m.CurrentModeID}
	for _, mode := range m.AvailableModes {
		out.AvailableModes = append(out.AvailableModes, envelope.ModeInfoPayload{ID: mode.ID, Name: mode.Name})
	}
	return out
}

func (d *Dispatcher) spawnTimeout() time.Duration {
	if d.agentCfg.SpawnTimeout > 0 {
		return d.agentCfg.SpawnTimeout
	}
	return 30 * time.Second
}

func (d *Dispatcher) initializeAgent(ctx context.Context, handle *agentproc.Handle) (*acpwire.InitializeResult, error) {
	params := acpwire.InitializeParams{
		ProtocolVersion:    acpwire.ProtocolVersion,
		ClientCapabilities: acpwire.ClientCapabilities{FS: acpwire.FSCapabilities{}},
		ClientInfo:         acpwire.ClientInfo{Name: "acpgate", Version: "1"},
	}
	resp, err := handle.SendRequest(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result acpwire.InitializeResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("service: decode initialize result: %w", err)
	}
	return &result, nil
}

func (d *Dispatcher) createAgentSession(ctx context.Context, handle *agentproc.Handle, cwd, model string) (*acpwire.SessionNewResult, error) {
	params := acpwire.SessionNewParams{CWD: cwd, MCPServers: []acpwire.MCPServer{}, Model: model}
	resp, err := handle.SendRequest(ctx, "session/new", params)
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	var result acpwire.SessionNewResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("service: decode session/new result: %w", err)
	}
	return &result, nil
}

// migrate re-keys the session's bookkeeping and process registration from
// oldID to newID, then re-registers the correlator's notification handler
// under a closure bound to newID. The old closure, still bound to oldID, is
// discarded: nothing dispatched through it afterward would be routable.
func (d *Dispatcher) migrate(ctx context.Context, oldID, newID string) error {
	if err := d.supervisor.Migrate(oldID, newID); err != nil {
		return err
	}
	if err := d.sessions.Rekey(ctx, oldID, newID); err != nil {
		return err
	}
	handle, ok := d.supervisor.Get(newID)
	if !ok {
		return fmt.Errorf("service: migrate: handle missing for %q after rekey", newID)
	}
	sess, err := d.sessions.Get(ctx, newID)
	if err != nil {
		return err
	}
	handle.Correlator.SetHandler(d.makeHandler(sess.ConnectionID, newID))
	return nil
}

func (d *Dispatcher) recordAuthMethods(ctx context.Context, sessionID string, methods []string) {
	sess, err := d.sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}
	sess.AuthMethods = methods
	_ = d.sessions.Delete(ctx, sessionID)
	_ = d.sessions.Create(ctx, sess)
}

func (d *Dispatcher) teardownFailedSession(sessionID string) {
	_ = d.supervisor.Kill(sessionID)
	_ = d.sessions.Delete(context.Background(), sessionID)
}

func (d *Dispatcher) sendCreateError(conn ClientConn, message string) {
	env, err := envelope.NewError(envelope.TypeACPSessionCreateError, envelope.CodeAPIError, message, nil)
	if err != nil {
		return
	}
	_ = conn.Send(env)
}

// --- session close ---------------------------------------------------------

func (d *Dispatcher) handleSessionClose(ctx context.Context, conn ClientConn, env *envelope.Envelope) {
	var payload envelope.SessionClosePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}

	sess, err := d.sessions.Get(ctx, payload.SessionID)
	if err != nil {
		// Closing an already-closed (or never-existing) session is a no-op
		// success: the client's view and the bridge's view agree either way.
		d.reply(conn, envelope.TypeACPSessionCloseSuccess, payload)
		return
	}
	if sess.ConnectionID != conn.ID() {
		errEnv, err := envelope.NewError(envelope.TypeACPSessionCloseError, envelope.CodeUnauthorized, "session not owned by this connection", nil)
		if err == nil {
			_ = conn.Send(errEnv)
		}
		return
	}

	d.closeSession(ctx, payload.SessionID)
	d.reply(conn, envelope.TypeACPSessionCloseSuccess, payload)
}

func (d *Dispatcher) closeSession(ctx context.Context, sessionID string) {
	_ = d.supervisor.Kill(sessionID)
	_ = d.sessions.Delete(ctx, sessionID)
	d.clearPendingPrompt(sessionID)

	if d.metrics != nil {
		d.metrics.SessionsActive.Set(float64(d.supervisor.Count()))
	}
}

// --- prompt send / cancel ---------------------------------------------------

func (d *Dispatcher) handlePromptSend(ctx context.Context, conn ClientConn, env *envelope.Envelope) {
	var payload envelope.PromptSendRequestPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		d.sendPromptError(conn, "", envelope.CodeInvalidParams, "malformed prompt payload")
		return
	}

	sess, err := d.sessions.Get(ctx, payload.SessionID)
	if err != nil || !sess.IsActive() {
		d.sendPromptError(conn, payload.SessionID, envelope.CodeSessionNotFound, "session not found")
		return
	}
	if sess.ConnectionID != conn.ID() {
		d.sendPromptError(conn, payload.SessionID, envelope.CodeUnauthorized, "session not owned by this connection")
		return
	}

	handle, ok := d.supervisor.Get(payload.SessionID)
	if !ok {
		d.sendPromptError(conn, payload.SessionID, envelope.CodeSessionNotFound, "agent process not found")
		return
	}

	content := make([]acpwire.ContentBlock, 0, len(payload.Content))
	for _, c := range payload.Content {
		content = append(content, acpwire.ContentBlock{Type: c.Type, Text: c.Text})
	}

	_, span := d.tracer.Start(ctx, "acpgate.prompt.turn")
	span.SetAttributes(attribute.String("acpgate.session_id", payload.SessionID))
	d.setPendingPrompt(payload.SessionID, env.ID, span)

	params := acpwire.SessionPromptParams{SessionID: payload.SessionID, Prompt: content, AgentMode: payload.AgentMode}
	if err := handle.SendNotification("session/prompt", params); err != nil {
		d.endPendingPrompt(payload.SessionID, "", err)
		d.sendPromptError(conn, payload.SessionID, envelope.CodeAPIError, "failed to send prompt to agent")
		return
	}

	d.reply(conn, envelope.TypeACPPromptSendSuccess, envelope.PromptSendSuccessPayload{RequestID: env.ID, Status: "accepted"})
}

func (d *Dispatcher) sendPromptError(conn ClientConn, sessionID, code, message string) {
	var payload any
	if sessionID != "" {
		payload = envelope.SessionClosePayload{SessionID: sessionID}
	}
	env, err := envelope.NewError(envelope.TypeACPPromptSendError, code, message, payload)
	if err != nil {
		return
	}
	_ = conn.Send(env)
}

func (d *Dispatcher) handlePromptCancel(ctx context.Context, conn ClientConn, env *envelope.Envelope) {
	var payload envelope.PromptCancelRequestPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}

	sess, err := d.sessions.Get(ctx, payload.SessionID)
	if err != nil || sess.ConnectionID != conn.ID() {
		errEnv, err := envelope.NewError(envelope.TypeACPPromptCancelError, envelope.CodeSessionNotFound, "session not found", nil)
		if err == nil {
			_ = conn.Send(errEnv)
		}
		return
	}

	if handle, ok := d.supervisor.Get(payload.SessionID); ok {
		_ = handle.SendNotification("session/cancel", acpwire.SessionCancelParams{SessionID: payload.SessionID})
	}

	d.reply(conn, envelope.TypeACPPromptCancelSuccess, map[string]string{
		"sessionId": payload.SessionID,
		"requestId": payload.RequestID,
	})
}

// --- permission bridging ----------------------------------------------------

func (d *Dispatcher) handlePermissionResponse(ctx context.Context, conn ClientConn, env *envelope.Envelope) {
	var payload envelope.PermissionResponsePayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		return
	}

	sess, err := d.sessions.Get(ctx, payload.SessionID)
	if err != nil || sess.ConnectionID != conn.ID() {
		return
	}

	jsonrpcID, ok := d.popPendingPermission(payload.SessionID, payload.RequestID)
	if !ok {
		return
	}

	handle, ok := d.supervisor.Get(payload.SessionID)
	if !ok {
		return
	}

	result := acpwire.SessionRequestPermissionResult{
		Outcome: acpwire.PermissionOutcome{Outcome: payload.Outcome.Outcome, OptionID: payload.Outcome.OptionID},
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return
	}
	_ = handle.Send(&acpwire.Response{JSONRPC: "2.0", ID: jsonrpcID, Result: resultJSON})
}

// --- heartbeat ---------------------------------------------------------------

func (d *Dispatcher) handleHeartbeat(conn ClientConn, env *envelope.Envelope) {
	latency := time.Since(time.UnixMilli(env.Timestamp)).Milliseconds()
	if latency < 0 {
		latency = 0
	}
	d.reply(conn, envelope.TypeConnectionHeartbeatSuccess, envelope.HeartbeatSuccessPayload{Latency: latency})
}

// --- agent-originated notifications / requests ------------------------------

// makeHandler returns a correlator.Handler bound to sessionID and connID by
// value. It is re-created (never mutated) at migration time so a handler
// registered before migration can't route under a stale session id.
func (d *Dispatcher) makeHandler(connID, sessionID string) correlator.Handler {
	return func(in correlator.Inbound) {
		switch {
		case in.Notification != nil:
			d.handleAgentNotification(connID, sessionID, in.Notification)
		case in.Request != nil:
			d.handleAgentRequest(connID, sessionID, in.Request)
		}
	}
}

func (d *Dispatcher) handleAgentNotification(connID, sessionID string, n *acpwire.Notification) {
	switch n.Method {
	case "session/update":
		d.handleSessionUpdate(connID, sessionID, n.Params)
	case "session/prompt":
		d.handlePromptCompletion(connID, sessionID, n.Params)
	default:
		d.logger.Debug("unhandled agent notification", "method", n.Method, "session", sessionID)
	}
}

func (d *Dispatcher) handleSessionUpdate(connID, sessionID string, raw json.RawMessage) {
	var params acpwire.SessionUpdateParams
	if err := json.Unmarshal(raw, &params); err != nil {
		d.logger.Warn("malformed session/update", "error", err, "session", sessionID)
		return
	}
	conn, ok := d.conns.Get(connID)
	if !ok {
		return
	}

	payload := envelope.PromptUpdatePayload{
		SessionID: sessionID,
		RequestID: d.currentPromptRequestID(sessionID),
		Update:    translateUpdate(params.Update),
	}
	d.reply(conn, envelope.TypeACPPromptUpdate, payload)
}

func (d *Dispatcher) handlePromptCompletion(connID, sessionID string, raw json.RawMessage) {
	var result struct {
		Content    []acpwire.ContentBlock `json:"content,omitempty"`
		StopReason string                 `json:"stopReason,omitempty"`
	}
	_ = json.Unmarshal(raw, &result)

	stopReason := result.StopReason
	if stopReason == "" {
		stopReason = acpwire.StopReasonEndTurn
	}

	requestID, span, ok := d.popPendingPrompt(sessionID)
	if !ok {
		return
	}
	if span != nil {
		span.SetAttributes(attribute.String("acpgate.stop_reason", stopReason))
		span.SetStatus(codes.Ok, "")
		span.End()
	}
	conn, ok := d.conns.Get(connID)
	if !ok {
		return
	}

	payload := envelope.PromptCompletePayload{
		SessionID: sessionID,
		RequestID: requestID,
		Result:    envelope.PromptResultPayload{Content: contentPayloads(result.Content), StopReason: stopReason},
	}
	d.reply(conn, envelope.TypeACPPromptComplete, payload)

	if d.metrics != nil {
		d.metrics.PromptTurnsTotal.WithLabelValues(stopReason).Inc()
	}
}

func (d *Dispatcher) handleAgentRequest(connID, sessionID string, req *acpwire.Request) {
	if req.Method != "session/request_permission" {
		d.logger.Warn("unhandled agent request", "method", req.Method, "session", sessionID)
		return
	}

	var params acpwire.SessionRequestPermissionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		d.logger.Warn("malformed session/request_permission", "error", err, "session", sessionID)
		return
	}
	conn, ok := d.conns.Get(connID)
	if !ok {
		return
	}

	options := params.Options
	if len(options) == 0 {
		options = d.defaultPermissionOptions(sessionID, params.ToolCall)
	}

	requestID := strconv.FormatInt(req.ID, 10)
	d.setPendingPermission(sessionID, requestID, req.ID)

	payload := envelope.PermissionRequestPayload{
		SessionID: sessionID,
		RequestID: requestID,
		ToolCall:  params.ToolCall,
		Options:   options,
	}
	d.reply(conn, envelope.TypeACPPermissionRequest, payload)
}

// defaultPermissionOptions fills in the option list when the agent's
// session/request_permission omits one. If a policy rule is configured and
// matches the tool call, its allow/deny verdict picks the default: a deny
// narrows the list to a single reject-like option, an allow (or no match)
// falls back to the full default set untouched. The policy engine is never
// consulted when the agent already sent its own option list.
func (d *Dispatcher) defaultPermissionOptions(sessionID string, toolCall acpwire.ToolCallInfo) []acpwire.PermissionOption {
	if d.policyEngine == nil {
		return acpwire.DefaultPermissionOptions
	}

	var roles []string
	if sess, err := d.sessions.Get(context.Background(), sessionID); err == nil {
		roles = sess.Roles
	}

	decision, err := d.policyEngine.Evaluate(context.Background(), policy.EvaluationContext{
		ToolCall: policy.ToolCall{Name: toolCall.ToolName, Arguments: toolCall.Arguments},
		Session:  policy.Session{Roles: roles},
	})
	if err != nil {
		d.logger.Warn("policy evaluation failed", "error", err, "session", sessionID)
		return acpwire.DefaultPermissionOptions
	}
	if !decision.Matched || decision.Allowed {
		return acpwire.DefaultPermissionOptions
	}

	for _, opt := range acpwire.DefaultPermissionOptions {
		if opt.Kind == "reject_once" {
			return []acpwire.PermissionOption{opt}
		}
	}
	return acpwire.DefaultPermissionOptions
}

// --- stderr / exit promotion -------------------------------------------------

func (d *Dispatcher) onStderr(box *handleBox, connID, line string) {
	pattern, matched := acpgateerrors.ClassifyStderr(line)
	handle := box.get()
	sessionID := ""
	if handle != nil {
		sessionID = handle.CurrentID()
	}
	if !matched {
		d.logger.Debug("agent stderr", "session", sessionID, "line", line)
		return
	}
	d.logger.Warn("agent stderr pattern matched", "session", sessionID, "pattern", pattern)
	d.sendSessionError(connID, sessionID, acpgateerrors.CodeForSource(acpgateerrors.SourceSubprocessStderr), humanizeStderrPattern(pattern), line)
}

func (d *Dispatcher) onExit(box *handleBox, connID string, exitErr error) {
	handle := box.get()
	sessionID := ""
	if handle != nil {
		sessionID = handle.CurrentID()
	}

	message := "Agent process exited unexpectedly."
	if exitErr != nil {
		message = fmt.Sprintf("Agent process exited: %v", exitErr)
	}
	d.sendSessionError(connID, sessionID, acpgateerrors.CodeForSource(acpgateerrors.SourceSubprocessExit), message, "")

	_ = d.sessions.Delete(context.Background(), sessionID)
	d.endPendingPrompt(sessionID, "", exitErr)

	if d.metrics != nil {
		d.metrics.SessionsActive.Set(float64(d.supervisor.Count()))
	}
}

func humanizeStderrPattern(pattern string) string {
	switch pattern {
	case "rate_limit":
		return "Rate limit exceeded. Please try again later."
	case "unauthorized":
		return "Authentication failed with the upstream provider."
	case "forbidden":
		return "Access forbidden by the upstream provider."
	case "invalid_key":
		return "The configured API key was rejected."
	case "quota":
		return "Upstream quota exceeded."
	default:
		return "The agent reported an API error."
	}
}

func (d *Dispatcher) sendSessionError(connID, sessionID, code, message, details string) {
	if sessionID == "" {
		return
	}
	conn, ok := d.conns.Get(connID)
	if !ok {
		return
	}
	env, err := envelope.NewError(envelope.TypeACPSessionError, code, message, envelope.SessionClosePayload{SessionID: sessionID})
	if err != nil {
		return
	}
	env.Error.Details = details
	_ = conn.Send(env)
}

// --- small helpers -----------------------------------------------------------

func (d *Dispatcher) reply(conn ClientConn, msgType string, payload any) {
	env, err := envelope.New(msgType, payload)
	if err != nil {
		d.logger.Error("build envelope", "type", msgType, "error", err)
		return
	}
	_ = conn.Send(env)
}

func (d *Dispatcher) setPendingPrompt(sessionID, requestID string, span trace.Span) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prompts[sessionID] = pendingPrompt{requestID: requestID, span: span}
}

func (d *Dispatcher) currentPromptRequestID(sessionID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.prompts[sessionID].requestID
}

func (d *Dispatcher) popPendingPrompt(sessionID string) (string, trace.Span, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.prompts[sessionID]
	if !ok {
		return "", nil, false
	}
	delete(d.prompts, sessionID)
	return p.requestID, p.span, true
}

// endPendingPrompt drops the pending prompt for sessionID, if any, ending
// its span with the given stopReason (or recording err, if non-nil) so a
// prompt turn cut short by cancellation or an agent crash still closes its
// acpgate.prompt.turn span instead of leaking it.
func (d *Dispatcher) endPendingPrompt(sessionID, stopReason string, err error) {
	d.mu.Lock()
	p, ok := d.prompts[sessionID]
	if ok {
		delete(d.prompts, sessionID)
	}
	d.mu.Unlock()
	if !ok || p.span == nil {
		return
	}
	if stopReason != "" {
		p.span.SetAttributes(attribute.String("acpgate.stop_reason", stopReason))
	}
	if err != nil {
		p.span.RecordError(err)
		p.span.SetStatus(codes.Error, err.Error())
	} else {
		p.span.SetStatus(codes.Ok, "")
	}
	p.span.End()
}

func (d *Dispatcher) clearPendingPrompt(sessionID string) {
	d.endPendingPrompt(sessionID, acpwire.StopReasonCancelled, nil)
}

func permissionKey(sessionID, requestID string) string {
	return sessionID + ":" + requestID
}

func (d *Dispatcher) setPendingPermission(sessionID, requestID string, jsonrpcID int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.permissions[permissionKey(sessionID, requestID)] = pendingPermission{jsonrpcID: jsonrpcID}
}

func (d *Dispatcher) popPendingPermission(sessionID, requestID string) (int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := permissionKey(sessionID, requestID)
	p, ok := d.permissions[key]
	if !ok {
		return 0, false
	}
	delete(d.permissions, key)
	return p.jsonrpcID, true
}
