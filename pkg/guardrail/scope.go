package guardrail

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/complyon/autonomy/pkg/contracts"
)

// ScopeRule is the compiled form of the operator's guardrail_scope_expression
// setting: a CEL expression over a candidate's shape. A true result blocks
// the candidate. Compiled once per scan cycle from the settings snapshot.
type ScopeRule struct {
	program cel.Program
}

// CompileScopeRule compiles the expression, or returns (nil, nil) for an
// empty expression (no scope rule configured). A compile error is returned
// to the caller, which fails closed: no candidates proceed until the
// expression is fixed.
func CompileScopeRule(expr string) (*ScopeRule, error) {
	if expr == "" {
		return nil, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("intent_type", cel.StringType),
		cel.Variable("priority", cel.StringType),
		cel.Variable("confidence", cel.DoubleType),
		cel.Variable("target_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("scope rule env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("scope rule compile: %w", issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("scope rule program: %w", err)
	}
	return &ScopeRule{program: prg}, nil
}

// Blocks evaluates the rule for a candidate. Evaluation errors fail closed.
func (r *ScopeRule) Blocks(c *contracts.IntentCandidate) (bool, error) {
	if r == nil {
		return false, nil
	}
	targetType := ""
	if len(c.Actions) > 0 {
		targetType = c.Actions[0].TargetEntityType
	}
	out, _, err := r.program.Eval(map[string]any{
		"intent_type": string(c.IntentType),
		"priority":    string(c.Priority),
		"confidence":  c.ConfidenceScore,
		"target_type": targetType,
	})
	if err != nil {
		return true, fmt.Errorf("scope rule eval: %w", err)
	}
	blocked, ok := out.Value().(bool)
	if !ok {
		return true, fmt.Errorf("scope rule returned %T, want bool", out.Value())
	}
	return blocked, nil
}
