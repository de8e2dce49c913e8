package policy

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParamSchemas holds JSON Schemas (one per rule type) used to validate a
// rule's Parameters.Raw shape at bundle publish time, at the cloud (spec §9
// design notes: "unknown parameter shapes fail bundle validation at publish
// time in the cloud").
type ParamSchemas struct {
	mu       sync.RWMutex
	compiled map[RuleType]*jsonschema.Schema
}

// defaultSchemas is the JSON-Schema text for each closed rule type's
// parameter shape.
var defaultSchemas = map[RuleType]string{
	RuleAmountLimit: `{
		"type": "object",
		"properties": {"max_amount": {"type": "number", "minimum": 0}},
		"required": ["max_amount"]
	}`,
	RuleTrustMinimum: `{
		"type": "object",
		"properties": {"min_trust": {"type": "number", "minimum": 0, "maximum": 1}},
		"required": ["min_trust"]
	}`,
	RuleTierRequired: `{
		"type": "object",
		"properties": {"allowed_tiers": {"type": "array", "items": {"type": "string", "enum": ["T1","T2","T3","T4"]}, "minItems": 1}},
		"required": ["allowed_tiers"]
	}`,
	RuleTierMinimum: `{
		"type": "object",
		"properties": {"min_tier": {"type": "string", "enum": ["T1","T2","T3","T4"]}},
		"required": ["min_tier"]
	}`,
	RuleActionAllowed: `{
		"type": "object",
		"properties": {"allowed_actions": {"type": "array", "items": {"type": "string"}, "minItems": 1}},
		"required": ["allowed_actions"]
	}`,
	RuleAuthorityLimit: `{
		"type": "object"
	}`,
	RuleStatusCheck: `{
		"type": "object"
	}`,
	RuleSplitDetection: `{
		"type": "object",
		"properties": {
			"max_requests": {"type": "integer", "minimum": 1},
			"window_minutes": {"type": "integer", "minimum": 1}
		},
		"required": ["max_requests", "window_minutes"]
	}`,
	RuleCELExpression: `{
		"type": "object",
		"properties": {"expression": {"type": "string", "minLength": 1}},
		"required": ["expression"]
	}`,
}

// NewParamSchemas compiles the default schema set.
func NewParamSchemas() (*ParamSchemas, error) {
	ps := &ParamSchemas{compiled: make(map[RuleType]*jsonschema.Schema)}
	for rt, src := range defaultSchemas {
		if err := ps.register(rt, src); err != nil {
			return nil, err
		}
	}
	return ps, nil
}

func (ps *ParamSchemas) register(rt RuleType, schemaSrc string) error {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("mem://agentgovern/policy/%s.schema.json", rt)
	if err := compiler.AddResource(url, strings.NewReader(schemaSrc)); err != nil {
		return fmt.Errorf("policy: add schema resource %s: %w", rt, err)
	}
	compiled, err := compiler.Compile(url)
	if err != nil {
		return fmt.Errorf("policy: compile schema %s: %w", rt, err)
	}

	ps.mu.Lock()
	ps.compiled[rt] = compiled
	ps.mu.Unlock()
	return nil
}

// ValidateParameters validates rule.Parameters.Raw against the schema
// registered for rule.Type. Rule types outside the closed set (no
// registered schema) are a validation error at the cloud: spec §4.4 says
// unknown types must be evaluated (or, here, rejected at publish) by the
// cloud, never silently accepted.
func (ps *ParamSchemas) ValidateParameters(rule Rule) error {
	ps.mu.RLock()
	schema, ok := ps.compiled[rule.Type]
	ps.mu.RUnlock()
	if !ok {
		return fmt.Errorf("policy: unknown rule type %q has no registered parameter schema", rule.Type)
	}

	raw := rule.Parameters.Raw
	if raw == nil {
		raw = parametersToMap(rule.Parameters)
	}

	// jsonschema validates against decoded JSON values (map[string]interface{}
	// with json.Number), so round-trip through json to get that shape.
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("policy: marshal parameters: %w", err)
	}
	var decoded interface{}
	if err := json.Unmarshal(b, &decoded); err != nil {
		return fmt.Errorf("policy: decode parameters: %w", err)
	}

	if err := schema.Validate(decoded); err != nil {
		return fmt.Errorf("policy: rule %s (%s) failed parameter validation: %w", rule.ID, rule.Type, err)
	}
	return nil
}

func parametersToMap(p Parameters) map[string]any {
	b, err := json.Marshal(p)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	_ = json.Unmarshal(b, &m)
	return m
}
