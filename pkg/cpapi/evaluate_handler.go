package cpapi

import (
	"net/http"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/enforcer"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
)

// evaluateAction is the action sub-object of POST /api/v1/sentinel/evaluate.
type evaluateAction struct {
	Type     string  `json:"type" validate:"required"`
	Amount   float64 `json:"amount"`
	Resource string  `json:"resource"`
}

// evaluateRequest is the wire shape of POST /api/v1/sentinel/evaluate (spec
// §6): "used when edge is bypassed or as a secondary check". The spec's
// literal body is {agent_id, action, context}; it carries no passport_token
// because a bypassing caller has nothing to present one from. Since
// enforcer.Evaluate needs the agent's governance claims regardless, this
// adds an explicit claims block (the same shape the edge would have
// derived from a verified passport) and an environment, required because
// bundles are environment-scoped.
type evaluateRequest struct {
	AgentID     string          `json:"agent_id" validate:"required"`
	Environment string          `json:"environment" validate:"required"`
	Action      evaluateAction  `json:"action" validate:"required"`
	Claims      passport.Claims `json:"claims" validate:"required"`
	Context     map[string]any  `json:"context"`
}

type policyResult struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Passed   bool   `json:"passed"`
}

type evaluateResponse struct {
	Verdict        string         `json:"verdict"`
	Reasoning      string         `json:"reasoning"`
	PolicyResults  []policyResult `json:"policy_results"`
	Confidence     float64        `json:"confidence"`
}

// handleEvaluate serves POST /api/v1/sentinel/evaluate. It reuses
// enforcer.Evaluate for the aggregate first-failing-rule verdict, then
// evaluates each active, in-scope rule again individually against a
// synthetic one-rule bundle to recover the per-rule policy_results the
// spec's response shape needs — enforcer.evaluateRule, which could answer
// this directly, is deliberately unexported (spec §4.4 keeps the rule
// dispatch internal to Evaluate's first-failure short-circuit).
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	bundle, ok := s.deps.Bundles.Current()
	if !ok {
		RespondError(w, http.StatusServiceUnavailable, "no_current_bundle", "no policy bundle has been published")
		return
	}
	scoped := bundle.ForEnvironment(passport.Environment(req.Environment))

	input := enforcer.Input{
		AgentID: req.AgentID,
		Claims:  req.Claims,
		Action: enforcer.Action{
			Type:    req.Action.Type,
			Amount:  req.Action.Amount,
			Context: req.Context,
		},
		Status: enforcer.AgentStatusActive,
	}

	aggregate := enforcer.Evaluate(&scoped, input)

	results := make([]policyResult, 0, len(scoped.Rules))
	passedCount := 0
	for _, rule := range scoped.Rules {
		if !rule.Active {
			continue
		}
		single := policy.Bundle{Rules: []policy.Rule{rule}}
		out := enforcer.Evaluate(&single, input)
		passed := out.Verdict == enforcer.VerdictAllow
		if passed {
			passedCount++
		}
		results = append(results, policyResult{RuleID: rule.ID, RuleName: rule.Name, Passed: passed})
	}

	confidence := 1.0
	if len(results) > 0 {
		confidence = 0.5 + 0.5*float64(passedCount)/float64(len(results))
	}

	Respond(w, http.StatusOK, evaluateResponse{
		Verdict:       string(aggregate.Verdict),
		Reasoning:     aggregate.Reason,
		PolicyResults: results,
		Confidence:    confidence,
	})
}
