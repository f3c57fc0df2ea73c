package service

import (
	"github.com/sentineldock/acpgate/internal/domain/envelope"
	"github.com/sentineldock/acpgate/pkg/acpwire"
)

// translateUpdate rewrites one agent session/update into the shape
// acp:prompt:update carries to the client. Kinds the table doesn't name are
// forwarded with their raw sessionUpdate kind so the client can at least see
// that something happened.
func translateUpdate(u acpwire.SessionUpdate) map[string]any {
	switch u.SessionUpdate {
	case acpwire.UpdateAgentMessageChunk:
		return map[string]any{"kind": u.SessionUpdate, "content": contentPayload(u.Content)}

	case acpwire.UpdateAgentThoughtChunk, acpwire.UpdateThoughtChunk:
		text := ""
		if u.Content != nil {
			text = u.Content.Text
		}
		return map[string]any{"kind": "thought_chunk", "content": map[string]string{"thought": text}}

	case acpwire.UpdateToolCall:
		status := u.Status
		if status == "" {
			status = "pending"
		}
		return map[string]any{"kind": u.SessionUpdate, "toolCall": map[string]any{
			"toolCallId": u.ToolCallID,
			"toolName":   u.Title,
			"arguments":  u.Arguments,
			"status":     status,
		}}

	case acpwire.UpdateToolCallUpdate:
		tc := map[string]any{"toolCallId": u.ToolCallID, "status": u.Status}
		if u.Result != nil {
			if u.Status == "error" {
				tc["error"] = u.Result.Error
			} else {
				tc["output"] = contentPayloads(u.Result.Content)
			}
		}
		return map[string]any{"kind": u.SessionUpdate, "toolCall": tc}

	case acpwire.UpdatePlan:
		steps := make([]map[string]any, 0, len(u.Entries))
		for _, e := range u.Entries {
			steps = append(steps, map[string]any{
				"content":  e.Content,
				"status":   e.Status,
				"priority": e.Priority,
			})
		}
		return map[string]any{"kind": u.SessionUpdate, "plan": map[string]any{"steps": steps}}

	case acpwire.UpdateAvailableCommands, acpwire.UpdateCurrentModeUpdate, acpwire.UpdateConfigOptions:
		return map[string]any{"kind": u.SessionUpdate, "raw": u.Raw}

	default:
		return map[string]any{"kind": u.SessionUpdate, "raw": u.Raw}
	}
}

func contentPayload(c *acpwire.ContentBlock) envelope.ContentBlockPayload {
	if c == nil {
		return envelope.ContentBlockPayload{}
	}
	return envelope.ContentBlockPayload{Type: c.Type, Text: c.Text}
}

func contentPayloads(cs []acpwire.ContentBlock) []envelope.ContentBlockPayload {
	out := make([]envelope.ContentBlockPayload, 0, len(cs))
	for i := range cs {
		out = append(out, contentPayload(&cs[i]))
	}
	return out
}
