package policy

import "fmt"

// Publisher wraps a Store with the cloud-side publish-time validation spec
// §4.4/§9 require: unknown rule types and malformed parameter shapes must
// be rejected before a bundle ever reaches an edge gateway. The edge's
// enforcer never performs this validation — it only fails open on types it
// doesn't recognize.
type Publisher struct {
	store   *Store
	schemas *ParamSchemas
	cel     *CELEvaluator
}

// NewPublisher builds a Publisher around a Store, a ParamSchemas validator,
// and a CELEvaluator for compiling cel_expression rules.
func NewPublisher(store *Store, schemas *ParamSchemas, celEval *CELEvaluator) *Publisher {
	return &Publisher{store: store, schemas: schemas, cel: celEval}
}

// Publish validates every rule in the candidate set, then creates and
// publishes the bundle. No partial publish: the first invalid rule aborts
// the whole bundle.
func (p *Publisher) Publish(rules []Rule, metadata map[string]string) (*Bundle, error) {
	for _, r := range rules {
		if !KnownRuleTypes[r.Type] && r.Type != RuleCELExpression {
			return nil, fmt.Errorf("policy: rule %s has unrecognized type %q (cloud must reject, not pass through)", r.ID, r.Type)
		}
		if err := p.schemas.ValidateParameters(r); err != nil {
			return nil, err
		}
		if r.Type == RuleCELExpression {
			if err := p.cel.Compile(r.ID, r.Parameters.Expression); err != nil {
				return nil, err
			}
		}
	}

	return p.store.CreateBundle(rules, metadata)
}
