package policy

import "context"

// Engine evaluates a ToolCall against an ordered rule list. Implemented by
// internal/adapter/outbound/cel.Engine.
type Engine interface {
	Evaluate(ctx context.Context, evalCtx EvaluationContext) (Decision, error)
}
