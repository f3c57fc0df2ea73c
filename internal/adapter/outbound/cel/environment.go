package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// NewPolicyEnvironment creates a CEL environment scoped to the permission
// bridge's two variables: tool_call (name, arguments) and session (roles).
func NewPolicyEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		cel.Variable("tool_call", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("session", cel.MapType(cel.StringType, cel.DynType)),
	)
}

// buildActivation turns an EvaluationContext into the CEL variable bindings
// tool_call.name, tool_call.arguments, and session.roles resolve against.
func buildActivation(toolName string, toolArgs map[string]any, sessionRoles []string) map[string]any {
	if toolArgs == nil {
		toolArgs = map[string]any{}
	}
	roles := make([]any, len(sessionRoles))
	for i, r := range sessionRoles {
		roles[i] = r
	}
	return map[string]any{
		"tool_call": map[string]any{
			"name":      toolName,
			"arguments": toolArgs,
		},
		"session": map[string]any{
			"roles": roles,
		},
	}
}
