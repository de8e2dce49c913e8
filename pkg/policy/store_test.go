package policy

import (
	"testing"
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func sampleRules() []Rule {
	return []Rule{
		{
			ID:               "POL-1",
			Name:             "amount-limit",
			Type:             RuleAmountLimit,
			Parameters:       Parameters{MaxAmount: 100000},
			OnFail:           OnFailDeny,
			EnvironmentScope: []passport.Environment{passport.EnvEdge},
			Active:           true,
		},
	}
}

func TestCreateBundle_AssignsVersionHashParent(t *testing.T) {
	s := NewStore()
	s.WithClock(fixedClock(time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)))

	b1, err := s.CreateBundle(sampleRules(), nil)
	require.NoError(t, err)
	require.Equal(t, "v2026.07.30-001", b1.Version)
	require.Equal(t, "", b1.ParentHash)
	ok, err := b1.VerifyHash()
	require.NoError(t, err)
	require.True(t, ok)

	b2, err := s.CreateBundle(sampleRules(), nil)
	require.NoError(t, err)
	require.Equal(t, "v2026.07.30-002", b2.Version)
	require.Equal(t, b1.Hash, b2.ParentHash)
}

func TestCreateBundle_NoTwoBundlesShareParentHash(t *testing.T) {
	s := NewStore()
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		b, err := s.CreateBundle(sampleRules(), map[string]string{"i": string(rune('a' + i))})
		require.NoError(t, err)
		require.False(t, seen[b.ParentHash])
		seen[b.ParentHash] = true
	}
}

func TestByVersion_AndHistory(t *testing.T) {
	s := NewStore()
	b1, _ := s.CreateBundle(sampleRules(), nil)
	b2, _ := s.CreateBundle(sampleRules(), nil)

	got, ok := s.ByVersion(b1.Version)
	require.True(t, ok)
	require.Equal(t, b1.Hash, got.Hash)

	require.Equal(t, []string{b1.Version, b2.Version}, s.History())
}

func TestRollback_RepointsCurrentWithoutNewBundle(t *testing.T) {
	s := NewStore()
	b1, _ := s.CreateBundle(sampleRules(), nil)
	_, _ = s.CreateBundle(sampleRules(), nil)

	historyBefore := s.History()

	rolled, err := s.Rollback(b1.Version)
	require.NoError(t, err)
	require.Equal(t, b1.Hash, rolled.Hash)

	current, ok := s.Current()
	require.True(t, ok)
	require.Equal(t, b1.Version, current.Version)
	require.Equal(t, historyBefore, s.History(), "rollback must not create a new bundle")
}

func TestVerifyChain_DetectsTamper(t *testing.T) {
	s := NewStore()
	b1, _ := s.CreateBundle(sampleRules(), nil)
	_, _ = s.CreateBundle(sampleRules(), nil)

	b1.Rules[0].Parameters.MaxAmount = 999999 // mutate in place without recomputing hash

	ok, reason := s.VerifyChain()
	require.False(t, ok)
	require.Contains(t, reason, "hash mismatch")
}

func TestDiff_AddedRemovedModified(t *testing.T) {
	s := NewStore()
	b1, _ := s.CreateBundle([]Rule{
		{ID: "1", Name: "a", Type: RuleAmountLimit, Parameters: Parameters{MaxAmount: 100}, Active: true},
		{ID: "2", Name: "b", Type: RuleTrustMinimum, Parameters: Parameters{MinTrust: 0.5}, Active: true},
	}, nil)
	b2, _ := s.CreateBundle([]Rule{
		{ID: "1", Name: "a", Type: RuleAmountLimit, Parameters: Parameters{MaxAmount: 200}, Active: true}, // modified
		{ID: "3", Name: "c", Type: RuleActionAllowed, Parameters: Parameters{AllowedActions: []string{"write"}}, Active: true}, // added
		// "b" removed
	}, nil)

	diff, err := s.Diff(b1.Version, b2.Version)
	require.NoError(t, err)
	require.Len(t, diff.Added, 1)
	require.Equal(t, "c", diff.Added[0].Name)
	require.Len(t, diff.Removed, 1)
	require.Equal(t, "b", diff.Removed[0].Name)
	require.Len(t, diff.Modified, 1)
	require.Equal(t, "a", diff.Modified[0].Name)
}

func TestForEnvironment_FiltersActiveAndScope(t *testing.T) {
	b := Bundle{
		Version: "v1",
		Rules: []Rule{
			{ID: "1", Name: "edge-rule", Active: true, EnvironmentScope: []passport.Environment{passport.EnvEdge}},
			{ID: "2", Name: "cloud-rule", Active: true, EnvironmentScope: []passport.Environment{passport.EnvCloud}},
			{ID: "3", Name: "inactive-edge", Active: false, EnvironmentScope: []passport.Environment{passport.EnvEdge}},
		},
	}
	edge := b.ForEnvironment(passport.EnvEdge)
	require.Len(t, edge.Rules, 1)
	require.Equal(t, "edge-rule", edge.Rules[0].Name)
	require.Equal(t, b.Version, edge.Version)
}
