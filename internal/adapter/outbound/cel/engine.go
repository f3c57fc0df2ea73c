package cel

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/google/cel-go/cel"

	"github.com/sentineldock/acpgate/internal/domain/policy"
)

// compiledRule pairs a policy.Rule with its pre-compiled Condition program,
// so Evaluate never recompiles on the request path.
type compiledRule struct {
	rule    policy.Rule
	program cel.Program // nil when Condition is empty (unconditional match)
}

// Engine evaluates an ordered, config-loaded rule list against incoming
// tool calls. It implements policy.Engine.
type Engine struct {
	evaluator *Evaluator
	rules     []compiledRule
}

// NewEngine compiles every rule's Condition up front and sorts the rule
// list by Priority (ascending, stable so config order breaks ties), so
// the first matching rule at evaluation time is always the highest
// priority one.
func NewEngine(rules []policy.Rule) (*Engine, error) {
	evaluator, err := NewEvaluator()
	if err != nil {
		return nil, err
	}

	sorted := make([]policy.Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	compiled := make([]compiledRule, 0, len(sorted))
	for _, r := range sorted {
		cr := compiledRule{rule: r}
		if r.Condition != "" {
			prg, err := evaluator.Compile(r.Condition)
			if err != nil {
				return nil, fmt.Errorf("policy rule %q: %w", r.Name, err)
			}
			cr.program = prg
		}
		compiled = append(compiled, cr)
	}

	return &Engine{evaluator: evaluator, rules: compiled}, nil
}

// Evaluate returns the first rule whose ToolMatch glob and (optional)
// Condition both hold for evalCtx. A rule with no Condition matches on
// ToolMatch alone. An unmatched Engine (or an empty rule list) reports
// Decision{Matched: false}.
func (e *Engine) Evaluate(ctx context.Context, evalCtx policy.EvaluationContext) (policy.Decision, error) {
	for _, cr := range e.rules {
		if cr.rule.ToolMatch != "" {
			matched, err := filepath.Match(cr.rule.ToolMatch, evalCtx.ToolCall.Name)
			if err != nil || !matched {
				continue
			}
		}

		if cr.program != nil {
			held, err := e.evaluator.Evaluate(cr.program, evalCtx.ToolCall.Name, evalCtx.ToolCall.Arguments, evalCtx.Session.Roles)
			if err != nil {
				return policy.Decision{}, fmt.Errorf("policy rule %q: %w", cr.rule.Name, err)
			}
			if !held {
				continue
			}
		}

		return policy.Decision{
			Matched:  true,
			Allowed:  cr.rule.Action == policy.ActionAllow,
			RuleName: cr.rule.Name,
			Reason:   fmt.Sprintf("rule %q matched", cr.rule.Name),
		}, nil
	}
	return policy.Decision{Matched: false}, nil
}

var _ policy.Engine = (*Engine)(nil)
