// Package policy implements the policy store & bundler (C3): the canonical,
// mutable rule set and the immutable, hash-chained bundles produced from it
// (spec §4.3).
package policy

import "github.com/Ritinpaul/AgentGovern-OS/pkg/passport"

// RuleType is the closed set of rule types the edge enforcer understands
// natively (spec §3/§4.4). Any other string is a pass-through type: the
// edge fails open on it, the cloud must reject or evaluate it.
type RuleType string

const (
	RuleAmountLimit     RuleType = "amount_limit"
	RuleTrustMinimum    RuleType = "trust_minimum"
	RuleTierRequired    RuleType = "tier_required"
	RuleTierMinimum     RuleType = "tier_minimum"
	RuleActionAllowed   RuleType = "action_allowed"
	RuleAuthorityLimit  RuleType = "authority_limit"
	RuleStatusCheck     RuleType = "status_check"
	RuleSplitDetection  RuleType = "split_detection"
	// RuleCELExpression is a domain-stack extension: an arbitrary CEL boolean
	// expression over {action, resource, amount, trust_score, tier, context}, evaluated only
	// at the cloud (spec §4.4 "additional type values... must be evaluated at
	// the cloud for actions that reach it").
	RuleCELExpression RuleType = "cel_expression"
)

// KnownRuleTypes is the closed set natively evaluated at the edge.
var KnownRuleTypes = map[RuleType]bool{
	RuleAmountLimit:    true,
	RuleTrustMinimum:   true,
	RuleTierRequired:   true,
	RuleTierMinimum:    true,
	RuleActionAllowed:  true,
	RuleAuthorityLimit: true,
	RuleStatusCheck:    true,
	RuleSplitDetection: true,
}

// OnFail selects the verdict a failing rule produces.
type OnFail string

const (
	OnFailDeny      OnFail = "deny"
	OnFailEscalate  OnFail = "escalate"
)

// Parameters is the tagged variant over the closed parameter shapes of
// spec §9: represented as a flat struct with the fields each rule type
// uses, rather than an untyped map, so the enforcer never type-asserts.
// Unused fields for a given Type are simply zero.
type Parameters struct {
	MaxAmount       float64          `json:"max_amount,omitempty" yaml:"max_amount,omitempty"`
	MinTrust        float64          `json:"min_trust,omitempty" yaml:"min_trust,omitempty"`
	AllowedTiers    []passport.Tier  `json:"allowed_tiers,omitempty" yaml:"allowed_tiers,omitempty"`
	MinTier         passport.Tier    `json:"min_tier,omitempty" yaml:"min_tier,omitempty"`
	AllowedActions  []string         `json:"allowed_actions,omitempty" yaml:"allowed_actions,omitempty"`
	MaxRequests     int              `json:"max_requests,omitempty" yaml:"max_requests,omitempty"`
	WindowMinutes   int              `json:"window_minutes,omitempty" yaml:"window_minutes,omitempty"`
	Expression      string           `json:"expression,omitempty" yaml:"expression,omitempty"`
	Raw             map[string]any   `json:"-" yaml:"-"` // preserved for unknown/pass-through types
}

// Rule is a single policy rule (spec §3).
type Rule struct {
	ID                string                  `json:"id" yaml:"id"`
	Name              string                  `json:"name" yaml:"name"`
	Type              RuleType                `json:"type" yaml:"type"`
	Parameters        Parameters              `json:"parameters" yaml:"parameters"`
	OnFail            OnFail                  `json:"on_fail" yaml:"on_fail"`
	EnvironmentScope  []passport.Environment  `json:"environment_scope" yaml:"environment_scope"`
	Active            bool                    `json:"active" yaml:"active"`
}

// InScope reports whether the rule applies to env.
func (r Rule) InScope(env passport.Environment) bool {
	for _, e := range r.EnvironmentScope {
		if e == env {
			return true
		}
	}
	return false
}
