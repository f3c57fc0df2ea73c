package acpwire

import "encoding/json"

// ClientInfo identifies the bridge gateway to the agent during initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// AgentInfo identifies the agent, as returned from initialize.
type AgentInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// FSCapabilities advertises filesystem-related client capabilities. The
// gateway does not implement fs/read_text_file or fs/write_text_file, so
// both are left false.
type FSCapabilities struct {
	ReadTextFile  bool `json:"readTextFile"`
	WriteTextFile bool `json:"writeTextFile"`
}

// ClientCapabilities is sent with initialize to describe what the bridge
// gateway supports on behalf of the connected browser client.
type ClientCapabilities struct {
	FS FSCapabilities `json:"fs"`
}

// PromptCapabilities describes which content block kinds the agent accepts
// in session/prompt, as returned from initialize.
type PromptCapabilities struct {
	Image          bool `json:"image,omitempty"`
	Audio          bool `json:"audio,omitempty"`
	EmbeddedContext bool `json:"embeddedContext,omitempty"`
}

// MCPCapabilities describes MCP transport support, as returned from initialize.
type MCPCapabilities struct {
	HTTP bool `json:"http,omitempty"`
	SSE  bool `json:"sse,omitempty"`
}

// AgentCapabilities is returned from initialize, describing what the agent supports.
type AgentCapabilities struct {
	LoadSession bool               `json:"loadSession,omitempty"`
	Prompt      PromptCapabilities `json:"promptCapabilities,omitempty"`
	MCP         MCPCapabilities    `json:"mcpCapabilities,omitempty"`
}

// InitializeParams are the params of the initialize request, sent once per
// subprocess immediately after spawn.
type InitializeParams struct {
	ProtocolVersion    int                `json:"protocolVersion"`
	ClientCapabilities ClientCapabilities `json:"clientCapabilities"`
	ClientInfo         ClientInfo         `json:"clientInfo"`
}

// InitializeResult is the result of initialize.
type InitializeResult struct {
	ProtocolVersion   int               `json:"protocolVersion"`
	AgentCapabilities AgentCapabilities `json:"agentCapabilities"`
	AgentInfo         AgentInfo         `json:"agentInfo"`
	AuthMethods       []AuthMethod      `json:"authMethods,omitempty"`
}

// AuthMethod describes one of the agent's supported authentication schemes.
// The gateway records these informationally; it does not act on them.
type AuthMethod struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// EnvVariable is a single environment variable passed to an MCP server.
type EnvVariable struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// HTTPHeader is a single HTTP header passed to an MCP server reached over
// HTTP or SSE transport.
type HTTPHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MCPServer describes one MCP server the agent should make available to the
// session. The gateway always sends an empty slice: MCP server configuration
// beyond passthrough is out of scope.
type MCPServer struct {
	Name    string        `json:"name"`
	Command string        `json:"command,omitempty"`
	Args    []string      `json:"args,omitempty"`
	Env     []EnvVariable `json:"env,omitempty"`
	URL     string        `json:"url,omitempty"`
	Headers []HTTPHeader  `json:"headers,omitempty"`
}

// SessionNewParams are the params of session/new.
type SessionNewParams struct {
	CWD        string      `json:"cwd"`
	MCPServers []MCPServer `json:"mcpServers"`
	Model      string      `json:"model,omitempty"`
}

// ModeInfo describes one available agent mode (e.g. "build", "plan").
type ModeInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// Modes describes the session's current and available operating modes.
type Modes struct {
	CurrentModeID  string     `json:"currentModeId"`
	AvailableModes []ModeInfo `json:"availableModes,omitempty"`
}

// SessionNewResult is the result of session/new. SessionID may differ from
// the tentative id the gateway allocated before the handshake completed, in
// which case the caller must migrate the session under the returned id.
type SessionNewResult struct {
	SessionID      string     `json:"sessionId"`
	Models         []string   `json:"models,omitempty"`
	CurrentModel   string     `json:"currentModel,omitempty"`
	Modes          *Modes     `json:"modes,omitempty"`
}

// Resource is an embedded or referenced resource attached to a content block.
type Resource struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// ContentBlock is one block of prompt or response content. Type is one of
// "text", "image", "audio", or "resource"; the remaining fields are
// populated according to Type.
type ContentBlock struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	Data     string    `json:"data,omitempty"`
	MimeType string    `json:"mimeType,omitempty"`
	Resource *Resource `json:"resource,omitempty"`
}

// SessionPromptParams are the params of session/prompt.
type SessionPromptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []ContentBlock `json:"prompt"`
	AgentMode string         `json:"agentMode,omitempty"`
}

// SessionPromptResult is the result of session/prompt, delivered as the
// synthesized response to a fire-and-forget prompt turn.
type SessionPromptResult struct {
	StopReason string `json:"stopReason"`
}

// Recognized SessionPromptResult.StopReason values.
const (
	StopReasonEndTurn   = "end_turn"
	StopReasonToolUse   = "tool_use"
	StopReasonCancelled = "cancelled"
	StopReasonError     = "error"
	StopReasonUnknown   = "unknown"
)

// PlanEntry is a single step in a session/update plan notification.
type PlanEntry struct {
	Content  string `json:"content"`
	Status   string `json:"status,omitempty"`
	Priority string `json:"priority,omitempty"`
}

// ToolCallUpdateResult carries the outcome of a finished tool call, used by
// a tool_call_update session/update whose status is "completed" or "error".
type ToolCallUpdateResult struct {
	Content []ContentBlock `json:"content,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// SessionUpdate is the params.update payload of a session/update
// notification. Which fields are populated depends on SessionUpdate (the
// update kind): agent_message_chunk/agent_thought_chunk/thought_chunk use
// Content; tool_call/tool_call_update use ToolCallID/Title/Kind/Status/Result;
// plan uses Entries; available_commands/current_mode_update/config_options
// pass their Raw payload through unmodified.
type SessionUpdate struct {
	SessionUpdate string                `json:"sessionUpdate"`
	Content       *ContentBlock         `json:"content,omitempty"`
	ToolCallID    string                `json:"toolCallId,omitempty"`
	Title         string                `json:"title,omitempty"`
	Kind          string                `json:"kind,omitempty"`
	Status        string                `json:"status,omitempty"`
	Arguments     map[string]any        `json:"arguments,omitempty"`
	Result        *ToolCallUpdateResult `json:"result,omitempty"`
	Entries       []PlanEntry           `json:"entries,omitempty"`
	Raw           map[string]any        `json:"-"`
}

// UnmarshalJSON decodes the typed fields and also keeps the whole update
// object in Raw, so kinds without typed fields can be passed through.
func (u *SessionUpdate) UnmarshalJSON(data []byte) error {
	type plain SessionUpdate
	if err := json.Unmarshal(data, (*plain)(u)); err != nil {
		return err
	}
	return json.Unmarshal(data, &u.Raw)
}

// SessionUpdateParams are the params of a session/update notification sent
// by the agent while a prompt turn is in flight.
type SessionUpdateParams struct {
	SessionID string        `json:"sessionId"`
	Update    SessionUpdate `json:"update"`
}

// Recognized SessionUpdate.SessionUpdate kinds.
const (
	UpdateAgentMessageChunk  = "agent_message_chunk"
	UpdateAgentThoughtChunk  = "agent_thought_chunk"
	UpdateThoughtChunk       = "thought_chunk"
	UpdateToolCall           = "tool_call"
	UpdateToolCallUpdate     = "tool_call_update"
	UpdatePlan               = "plan"
	UpdateAvailableCommands  = "available_commands"
	UpdateCurrentModeUpdate  = "current_mode_update"
	UpdateConfigOptions      = "config_options"
)

// SessionCancelParams are the params of the session/cancel notification.
type SessionCancelParams struct {
	SessionID string `json:"sessionId"`
}

// PermissionOption is one choice the client may pick in response to a
// session/request_permission request.
type PermissionOption struct {
	OptionID string `json:"optionId"`
	Name     string `json:"name,omitempty"`
	Kind     string `json:"kind,omitempty"`
}

// Default permission options injected when the agent's request omits them.
var DefaultPermissionOptions = []PermissionOption{
	{OptionID: "allow", Name: "Allow", Kind: "allow_once"},
	{OptionID: "allow_always", Name: "Always Allow", Kind: "allow_always"},
	{OptionID: "reject", Name: "Reject", Kind: "reject_once"},
}

// ToolCallInfo describes the tool call a permission request is gating.
type ToolCallInfo struct {
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName,omitempty"`
	Title      string         `json:"title,omitempty"`
	Kind       string         `json:"kind,omitempty"`
	Arguments  map[string]any `json:"arguments,omitempty"`
}

// SessionRequestPermissionParams are the params of the agent's
// session/request_permission request.
type SessionRequestPermissionParams struct {
	SessionID string             `json:"sessionId"`
	ToolCall  ToolCallInfo       `json:"toolCall"`
	Options   []PermissionOption `json:"options,omitempty"`
}

// PermissionOutcome is the client's decision on a permission request.
type PermissionOutcome struct {
	Outcome  string `json:"outcome"`
	OptionID string `json:"optionId,omitempty"`
}

// SessionRequestPermissionResult is the result sent back upstream in
// response to session/request_permission.
type SessionRequestPermissionResult struct {
	Outcome PermissionOutcome `json:"outcome"`
}
