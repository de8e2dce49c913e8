// Package enforcer implements the local policy enforcer (C4): a pure
// function over (bundle, agent claims, action) that never performs network
// I/O (spec §4.4).
package enforcer

import (
	"fmt"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
)

// Verdict is the enforcer's decision.
type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictDeny     Verdict = "deny"
	VerdictEscalate Verdict = "escalate"
)

// Action is the request being evaluated.
type Action struct {
	Type    string
	Amount  float64
	Context map[string]any
}

// AgentStatus is read from claims or an external lookup for status_check;
// the core treats it as an opaque input, consistent with spec §4.4 ("where
// status is derived from claims or lookup").
type AgentStatus string

const AgentStatusActive AgentStatus = "active"

// SplitDetector backs the split_detection rule: a short-TTL per-agent
// request counter (spec §4.4). Implementations must not block or error in
// a way that changes the verdict on transient failure; a detector that
// cannot answer should be treated as "has not exceeded" by its own
// implementation, since the enforcer has nowhere to fail open on a per-rule
// basis other than the rule's own on_fail.
type SplitDetector interface {
	// CountSimilarRequests returns how many requests resembling action from
	// agentID have been seen within the last windowMinutes.
	CountSimilarRequests(agentID string, action Action, windowMinutes int) (int, error)
}

// Input bundles everything Evaluate needs beyond the bundle: the verified
// claims of the acting agent, the action, and the agent's status.
type Input struct {
	AgentID    string
	Claims     passport.Claims
	Action     Action
	Status     AgentStatus
	SplitCheck SplitDetector
}

// Result is Evaluate's output (spec §4.4).
type Result struct {
	Verdict          Verdict
	Reason           string
	RulesCheckedCount int
}

// Evaluate applies bundle rules in order (the bundle's own iteration order,
// spec §4.4 "Determinism"); the first failing rule decides the verdict via
// its on_fail field. If every rule passes, the verdict is allow. Unknown
// rule types pass (fail-open) at the edge only; policy.Publisher is
// responsible for ensuring the cloud never publishes an unrecognized type
// in the first place, but a stale bundle or future type is still handled
// safely here.
func Evaluate(bundle *policy.Bundle, in Input) Result {
	checked := 0
	for _, rule := range bundle.Rules {
		if !rule.Active {
			continue
		}
		checked++

		passed, evalErr := evaluateRule(rule, in)
		if evalErr != nil {
			// Unknown rule type: pass-through at the edge (fail-open for
			// rule-type unknowns only, never for evaluation failures within
			// a known type).
			continue
		}
		if passed {
			continue
		}

		verdict := VerdictDeny
		if rule.OnFail == policy.OnFailEscalate {
			verdict = VerdictEscalate
		}
		return Result{
			Verdict:           verdict,
			Reason:            fmt.Sprintf("denied by rule %s (%s): %s", rule.ID, rule.Name, rule.Type),
			RulesCheckedCount: checked,
		}
	}

	return Result{
		Verdict:           VerdictAllow,
		Reason:            "all rules passed",
		RulesCheckedCount: checked,
	}
}

// evaluateRule returns (passed, err). err is non-nil only for an
// unrecognized rule type, signaling the pass-through case to Evaluate.
func evaluateRule(rule policy.Rule, in Input) (bool, error) {
	switch rule.Type {
	case policy.RuleAmountLimit:
		return in.Action.Amount <= rule.Parameters.MaxAmount, nil

	case policy.RuleAuthorityLimit:
		return in.Action.Amount <= in.Claims.AuthorityLimit, nil

	case policy.RuleTrustMinimum:
		return in.Claims.TrustScore >= rule.Parameters.MinTrust, nil

	case policy.RuleTierRequired:
		for _, t := range rule.Parameters.AllowedTiers {
			if t == in.Claims.Tier {
				return true, nil
			}
		}
		return false, nil

	case policy.RuleTierMinimum:
		return passport.Rank(in.Claims.Tier) >= passport.Rank(rule.Parameters.MinTier), nil

	case policy.RuleActionAllowed:
		for _, a := range rule.Parameters.AllowedActions {
			if a == in.Action.Type {
				return true, nil
			}
		}
		return false, nil

	case policy.RuleStatusCheck:
		return in.Status == AgentStatusActive, nil

	case policy.RuleSplitDetection:
		if in.SplitCheck == nil {
			return true, nil
		}
		count, err := in.SplitCheck.CountSimilarRequests(in.AgentID, in.Action, rule.Parameters.WindowMinutes)
		if err != nil {
			return true, nil // transient counter failure: don't block on split-detection alone
		}
		return count < rule.Parameters.MaxRequests, nil

	default:
		return false, fmt.Errorf("enforcer: unknown rule type %q", rule.Type)
	}
}
