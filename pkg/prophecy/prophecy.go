// Package prophecy implements the deterministic, I/O-free three-path
// simulator (part of C7): for a given action it scores an approve, a deny,
// and an escalate path and recommends whichever scores highest. It never
// overrides the enforcer's verdict — recommendation_weight is advisory
// metadata attached to the decision record (spec §4.7).
package prophecy

import (
	"math"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
)

// PathType names one of the three simulated paths.
type PathType string

const (
	PathApprove  PathType = "approve"
	PathDeny     PathType = "deny"
	PathEscalate PathType = "escalate"
)

// ComplianceRisk is a coarse risk bucket attached to each path.
type ComplianceRisk string

const (
	ComplianceNone   ComplianceRisk = "none"
	ComplianceLow    ComplianceRisk = "low"
	ComplianceMedium ComplianceRisk = "medium"
	ComplianceHigh   ComplianceRisk = "high"
)

// Input is everything Simulate needs (spec §4.7).
type Input struct {
	TrustScore       float64
	Amount           float64
	AuthorityLimit   float64
	HistoryCount     int
	HistoricalSuccess float64 // fraction of the agent's past actions that succeeded
	Tier             passport.Tier
}

// Result is Simulate's output: three paths plus the recommendation.
type Result struct {
	Paths          []ledger.ProphecyPath
	Recommended    PathType
	Confidence     float64
}

// ShouldTrigger implements the trigger predicate (spec §4.7): "amount /
// authority_limit >= 0.70 OR trust_score < 0.60 OR history_count < 5".
func ShouldTrigger(trustScore, amount, authorityLimit float64, historyCount int) bool {
	authRatio := authRatio(amount, authorityLimit)
	return authRatio >= 0.70 || trustScore < 0.60 || historyCount < 5
}

func authRatio(amount, authorityLimit float64) float64 {
	if authorityLimit <= 0 {
		if amount <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return amount / authorityLimit
}

// Simulate runs the three normative paths and returns the recommendation.
// Deterministic: identical input always yields byte-identical output.
func Simulate(in Input) Result {
	ratio := authRatio(in.Amount, in.AuthorityLimit)

	approve := approvePath(in, ratio)
	deny := denyPath(in, ratio)
	escalate := escalatePath(in, ratio)

	weights := map[PathType]float64{
		PathApprove:  approve.RecommendationWeight,
		PathDeny:     deny.RecommendationWeight,
		PathEscalate: escalate.RecommendationWeight,
	}

	recommended, confidence := argmaxWithConfidence(weights)

	return Result{
		Paths:       []ledger.ProphecyPath{approve, deny, escalate},
		Recommended: recommended,
		Confidence:  confidence,
	}
}

func approvePath(in Input, ratio float64) ledger.ProphecyPath {
	var trustDelta, baseRisk float64
	switch {
	case in.HistoricalSuccess >= 0.85:
		trustDelta, baseRisk = 0.03, 0.1+0.2*ratio
	case in.HistoricalSuccess >= 0.65:
		trustDelta, baseRisk = 0.01, 0.3+0.3*ratio
	default:
		trustDelta, baseRisk = -0.05, 0.5+0.4*ratio
	}

	risk := baseRisk
	if ratio >= 0.90 {
		risk = math.Min(risk+0.2, 1.0)
	}

	exposure := in.Amount * risk
	compliance := complianceFor(risk)
	weight := in.HistoricalSuccess * (1 - risk) * 0.8

	return ledger.ProphecyPath{
		PathType:             string(PathApprove),
		PredictedTrustDelta:  trustDelta,
		RiskScore:            risk,
		FinancialExposure:    exposure,
		ComplianceRisk:       string(compliance),
		RecommendationWeight: clamp01(weight),
		Reasoning:            "approve: historical success and authority ratio within bounds",
	}
}

func denyPath(in Input, ratio float64) ledger.ProphecyPath {
	trustDelta := 0.0
	if in.Tier == passport.TierT1 || in.Tier == passport.TierT2 {
		trustDelta = -0.01
	}

	weight := 0.3 * (1 - ratio)

	return ledger.ProphecyPath{
		PathType:             string(PathDeny),
		PredictedTrustDelta:  trustDelta,
		RiskScore:            0.05,
		FinancialExposure:    0,
		ComplianceRisk:       string(ComplianceNone),
		RecommendationWeight: clamp01(weight),
		Reasoning:            "deny: action withheld, no exposure incurred",
	}
}

func escalatePath(in Input, ratio float64) ledger.ProphecyPath {
	risk := 0.15
	if in.Amount > 50000 {
		risk = 0.10
	}
	exposure := in.Amount * 0.05

	weight := 0.5*ratio + 0.3*(1-in.TrustScore)
	if in.TrustScore < 0.5 {
		weight += 0.2
	}

	return ledger.ProphecyPath{
		PathType:             string(PathEscalate),
		PredictedTrustDelta:  0.02,
		RiskScore:            risk,
		FinancialExposure:    exposure,
		ComplianceRisk:       string(ComplianceLow),
		RecommendationWeight: clamp01(weight),
		Reasoning:            "escalate: human review recommended given ratio/trust profile",
	}
}

func complianceFor(risk float64) ComplianceRisk {
	switch {
	case risk > 0.7:
		return ComplianceHigh
	case risk > 0.4:
		return ComplianceMedium
	default:
		return ComplianceLow
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// argmaxWithConfidence picks the highest-weighted path; confidence is
// min(0.5 + (w1 - w2), 1.0) where w1/w2 are the top two weights (spec §4.7).
func argmaxWithConfidence(weights map[PathType]float64) (PathType, float64) {
	order := []PathType{PathApprove, PathDeny, PathEscalate}

	best := order[0]
	for _, p := range order {
		if weights[p] > weights[best] {
			best = p
		}
	}

	w1 := weights[best]
	w2 := math.Inf(-1)
	for _, p := range order {
		if p == best {
			continue
		}
		if weights[p] > w2 {
			w2 = weights[p]
		}
	}

	confidence := math.Min(0.5+(w1-w2), 1.0)
	return best, confidence
}
