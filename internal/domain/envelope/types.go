package envelope

// Closed enumeration of envelope types. Every type the client or server may
// send appears here; Validate rejects anything else with CodeUnknownType.
const (
	TypeConnectionEstablishedSuccess = "connection:established:success"
	TypeConnectionHeartbeatRequest   = "connection:heartbeat:request"
	TypeConnectionHeartbeatSuccess   = "connection:heartbeat:success"

	TypeACPInitializeRequest = "acp:initialize:request"
	TypeACPInitializeSuccess = "acp:initialize:success"
	TypeACPInitializeError   = "acp:initialize:error"

	TypeACPSessionCreateRequest = "acp:session:create:request"
	TypeACPSessionCreateSuccess = "acp:session:create:success"
	TypeACPSessionCreateError   = "acp:session:create:error"

	TypeACPSessionLoadRequest = "acp:session:load:request"
	TypeACPSessionLoadSuccess = "acp:session:load:success"
	TypeACPSessionLoadError   = "acp:session:load:error"

	TypeACPSessionCloseRequest = "acp:session:close:request"
	TypeACPSessionCloseSuccess = "acp:session:close:success"
	TypeACPSessionCloseError   = "acp:session:close:error"

	TypeACPSessionError = "acp:session:error"

	TypeACPPromptSendRequest = "acp:prompt:send:request"
	TypeACPPromptSendSuccess = "acp:prompt:send:success"
	TypeACPPromptSendError   = "acp:prompt:send:error"

	TypeACPPromptUpdate   = "acp:prompt:update"
	TypeACPPromptComplete = "acp:prompt:complete"
	TypeACPPromptError    = "acp:prompt:error"

	TypeACPPromptCancelRequest = "acp:prompt:cancel:request"
	TypeACPPromptCancelSuccess = "acp:prompt:cancel:success"
	TypeACPPromptCancelError   = "acp:prompt:cancel:error"

	TypeACPPermissionRequest  = "acp:permission:request"
	TypeACPPermissionResponse = "acp:permission:response"

	TypeSystemError = "system:error"
)

// ContentBlockPayload mirrors acpwire.ContentBlock for the client-facing
// envelope vocabulary, kept separate so the client wire format does not
// depend on the agent wire format.
type ContentBlockPayload struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// SessionCreateRequestPayload is the payload of acp:session:create:request.
type SessionCreateRequestPayload struct {
	CWD   string `json:"cwd,omitempty"`
	Model string `json:"model,omitempty"`
}

// ModeInfoPayload is one entry of SessionCreateSuccessPayload.Modes.AvailableModes.
type ModeInfoPayload struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ModesPayload describes the session's current and available operating modes.
type ModesPayload struct {
	CurrentModeID  string            `json:"currentModeId"`
	AvailableModes []ModeInfoPayload `json:"availableModes,omitempty"`
}

// SessionCreateSuccessPayload is the payload of acp:session:create:success.
type SessionCreateSuccessPayload struct {
	SessionID       string        `json:"sessionId"`
	AvailableModels []string      `json:"availableModels,omitempty"`
	CurrentModel    string        `json:"currentModel,omitempty"`
	Modes           *ModesPayload `json:"modes,omitempty"`
}

// SessionClosePayload is the payload of acp:session:close:request/:success.
type SessionClosePayload struct {
	SessionID string `json:"sessionId"`
}

// PromptSendRequestPayload is the payload of acp:prompt:send:request.
type PromptSendRequestPayload struct {
	SessionID string                `json:"sessionId"`
	Content   []ContentBlockPayload `json:"content"`
	AgentMode string                `json:"agentMode,omitempty"`
}

// PromptSendSuccessPayload is the payload of acp:prompt:send:success.
type PromptSendSuccessPayload struct {
	RequestID string `json:"requestId"`
	Status    string `json:"status"`
}

// PromptUpdatePayload is the payload of acp:prompt:update.
type PromptUpdatePayload struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	Update    any    `json:"update"`
}

// PromptResultPayload is the result carried by acp:prompt:complete.
type PromptResultPayload struct {
	Content    []ContentBlockPayload `json:"content"`
	StopReason string                `json:"stopReason"`
}

// PromptCompletePayload is the payload of acp:prompt:complete.
type PromptCompletePayload struct {
	SessionID string               `json:"sessionId"`
	RequestID string               `json:"requestId"`
	Result    PromptResultPayload  `json:"result"`
}

// PromptCancelRequestPayload is the payload of acp:prompt:cancel:request.
type PromptCancelRequestPayload struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
}

// PermissionRequestPayload is the payload of acp:permission:request.
type PermissionRequestPayload struct {
	SessionID string `json:"sessionId"`
	RequestID string `json:"requestId"`
	ToolCall  any    `json:"toolCall"`
	Options   any    `json:"options"`
}

// PermissionOutcomePayload is the outcome object nested in
// acp:permission:response.
type PermissionOutcomePayload struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// PermissionResponsePayload is the payload of acp:permission:response.
type PermissionResponsePayload struct {
	SessionID string                   `json:"sessionId"`
	RequestID string                   `json:"requestId"`
	Outcome   PermissionOutcomePayload `json:"outcome"`
}

// HeartbeatSuccessPayload is the payload of connection:heartbeat:success.
type HeartbeatSuccessPayload struct {
	Latency int64 `json:"latency"`
}

// ConnectionEstablishedPayload is the payload of connection:established:success.
type ConnectionEstablishedPayload struct {
	ConnectionID    string `json:"connectionId"`
	ProtocolVersion int    `json:"protocolVersion"`
}
