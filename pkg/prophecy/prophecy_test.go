package prophecy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShouldTrigger_HighAuthRatio(t *testing.T) {
	require.True(t, ShouldTrigger(0.9, 7000, 10000, 20))
}

func TestShouldTrigger_LowTrust(t *testing.T) {
	require.True(t, ShouldTrigger(0.5, 100, 10000, 20))
}

func TestShouldTrigger_ShortHistory(t *testing.T) {
	require.True(t, ShouldTrigger(0.9, 100, 10000, 2))
}

func TestShouldTrigger_NoneOfTheConditionsMet(t *testing.T) {
	require.False(t, ShouldTrigger(0.9, 100, 10000, 20))
}

// S7: Claims {trust: 0.55, authority_limit: 10000}, amount 9000,
// historical_success 0.8. Expected recommendation: escalate, weight 0.585.
func TestSimulate_S7_WorkedExample(t *testing.T) {
	result := Simulate(Input{
		TrustScore:        0.55,
		Amount:            9000,
		AuthorityLimit:    10000,
		HistoryCount:      20,
		HistoricalSuccess: 0.8,
	})

	require.Len(t, result.Paths, 3)

	byType := map[string]float64{}
	for _, p := range result.Paths {
		byType[p.PathType] = p.RecommendationWeight
	}

	require.InDelta(t, 0.147, byType["approve"], 1e-3)
	require.InDelta(t, 0.03, byType["deny"], 1e-3)
	require.InDelta(t, 0.585, byType["escalate"], 1e-3)
	require.Equal(t, PathEscalate, result.Recommended)
}

func TestSimulate_ApprovePath_HighSuccessLowRisk(t *testing.T) {
	result := Simulate(Input{
		TrustScore:        0.95,
		Amount:            1000,
		AuthorityLimit:    50000,
		HistoricalSuccess: 0.95,
	})
	var approve *float64
	for _, p := range result.Paths {
		if p.PathType == string(PathApprove) {
			v := p.RiskScore
			approve = &v
		}
	}
	require.NotNil(t, approve)
	require.InDelta(t, 0.1+0.2*0.02, *approve, 1e-3)
}

func TestSimulate_DenyPath_TrustDeltaNegativeForHighTiers(t *testing.T) {
	result := Simulate(Input{TrustScore: 0.9, Amount: 100, AuthorityLimit: 100000, Tier: "T1"})
	for _, p := range result.Paths {
		if p.PathType == string(PathDeny) {
			require.Equal(t, -0.01, p.PredictedTrustDelta)
		}
	}
}

func TestSimulate_EscalatePath_LowerRiskAboveFiftyThousand(t *testing.T) {
	result := Simulate(Input{TrustScore: 0.5, Amount: 60000, AuthorityLimit: 100000})
	for _, p := range result.Paths {
		if p.PathType == string(PathEscalate) {
			require.InDelta(t, 0.10, p.RiskScore, 1e-9)
		}
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	in := Input{TrustScore: 0.6, Amount: 5000, AuthorityLimit: 10000, HistoricalSuccess: 0.7, HistoryCount: 10}
	r1 := Simulate(in)
	r2 := Simulate(in)
	require.Equal(t, r1, r2)
}
