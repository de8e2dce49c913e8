package policy

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// CELEvaluator evaluates cel_expression rules. It exists only at the cloud:
// the edge enforcer treats cel_expression (and any other non-closed-set
// type) as a pass-through per spec §4.4.
type CELEvaluator struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program // rule ID -> compiled program
}

// NewCELEvaluator builds the CEL environment with the variables action,
// resource, amount, trust_score, tier and context.
func NewCELEvaluator() (*CELEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("resource", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("trust_score", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("context", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("policy: cel env: %w", err)
	}
	return &CELEvaluator{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Compile compiles and caches a rule's CEL expression; called at bundle
// publish time so a bad expression is rejected before it ever reaches
// evaluation (spec §9 "unknown parameter shapes fail bundle validation at
// publish time in the cloud").
func (c *CELEvaluator) Compile(ruleID, expression string) error {
	ast, issues := c.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return fmt.Errorf("policy: cel compile %s: %w", ruleID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return fmt.Errorf("policy: cel expression %s must evaluate to bool", ruleID)
	}
	prg, err := c.env.Program(ast)
	if err != nil {
		return fmt.Errorf("policy: cel program %s: %w", ruleID, err)
	}

	c.mu.Lock()
	c.programs[ruleID] = prg
	c.mu.Unlock()
	return nil
}

// EvalInput is the input surface a cel_expression rule evaluates against.
type EvalInput struct {
	Action     string
	Resource   string
	Amount     float64
	TrustScore float64
	Tier       string
	Context    map[string]any
}

// Evaluate runs a compiled cel_expression rule, returning whether it
// passed. Must have been Compile'd first; an uncompiled rule is treated as
// a fail-closed deny, since the cloud must reject unknown shapes rather
// than silently pass them (spec §4.4 "the cloud pipeline must reject
// unknown types").
func (c *CELEvaluator) Evaluate(ruleID string, in EvalInput) (bool, error) {
	c.mu.RLock()
	prg, ok := c.programs[ruleID]
	c.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("policy: rule %s not compiled", ruleID)
	}

	ctx := in.Context
	if ctx == nil {
		ctx = map[string]any{}
	}

	out, _, err := prg.Eval(map[string]any{
		"action":      in.Action,
		"resource":    in.Resource,
		"amount":      in.Amount,
		"trust_score": in.TrustScore,
		"tier":        in.Tier,
		"context":     ctx,
	})
	if err != nil {
		return false, fmt.Errorf("policy: cel eval %s: %w", ruleID, err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("policy: cel rule %s did not return bool", ruleID)
	}
	return b, nil
}
