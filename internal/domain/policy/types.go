// Package policy evaluates whether a tool call an agent wants to make
// should be auto-allowed, auto-denied, or left for the client to decide.
package policy

import "time"

// Action is the outcome a matched Rule assigns to a tool call.
type Action string

const (
	// ActionAllow marks the default permission option as an allow choice.
	ActionAllow Action = "allow"
	// ActionDeny marks the default permission option as a deny choice.
	ActionDeny Action = "deny"
)

// Rule is one ordered entry in the permission bridge's rule list, loaded
// from config.PolicyConfig at startup.
type Rule struct {
	// Name identifies the rule in logs and Decision.Reason.
	Name string
	// Priority orders evaluation; lower runs first. Rules loaded from config
	// keep their file order when priorities tie.
	Priority int
	// ToolMatch is a glob pattern (path/filepath.Match syntax) against the
	// tool call's name. Empty matches every tool.
	ToolMatch string
	// Condition is a CEL expression over tool_call.name, tool_call.arguments,
	// and session.roles. Empty means the rule matches unconditionally once
	// ToolMatch matches.
	Condition string
	// Action is the decision applied when ToolMatch and Condition both match.
	Action Action
	// CreatedAt records when the rule was loaded, for diagnostics only.
	CreatedAt time.Time
}

// Decision is the result of evaluating a ToolCall against the rule list.
type Decision struct {
	// Matched is false when no rule's ToolMatch/Condition applied; callers
	// must forward the agent's original option list unchanged in that case.
	Matched bool
	// Allowed is only meaningful when Matched is true.
	Allowed bool
	// RuleName names the rule that matched.
	RuleName string
	// Reason explains the decision for logs.
	Reason string
}
