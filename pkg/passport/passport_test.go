package passport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeRevocation struct {
	set map[string]bool
}

func newFakeRevocation() *fakeRevocation { return &fakeRevocation{set: map[string]bool{}} }

func (f *fakeRevocation) Contains(jti string) bool { return f.set[jti] }
func (f *fakeRevocation) Add(jti string)            { f.set[jti] = true }

func newTestService(t *testing.T, rev RevocationChecker) *Service {
	t.Helper()
	ks, err := NewHMACKeySet([]byte("test-root-secret-0123456789"))
	require.NoError(t, err)
	return NewService(ks, rev)
}

func validData() Data {
	return Data{
		AgentID:             "agent-1",
		Role:                "purchasing-agent",
		TrustScore:          0.80,
		AuthorityLimit:      50000,
		AllowedEnvironments: []Environment{EnvEdge},
	}
}

func TestIssueThenVerify_RoundTripsClaims(t *testing.T) {
	svc := newTestService(t, newFakeRevocation())
	token, err := svc.Issue(validData())
	require.NoError(t, err)

	claims, err := svc.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "agent-1", claims.Subject)
	require.Equal(t, TierT2, claims.Tier)
	require.Equal(t, 0.80, claims.TrustScore)
	require.Equal(t, float64(50000), claims.AuthorityLimit)
	require.True(t, claims.AllowsEnvironment(EnvEdge))
	require.False(t, claims.AllowsEnvironment(EnvCloud))
	require.NotEmpty(t, claims.JTI)
}

func TestIssue_RejectsUnknownEnvironment(t *testing.T) {
	svc := newTestService(t, newFakeRevocation())
	data := validData()
	data.AllowedEnvironments = []Environment{"moon-base"}
	_, err := svc.Issue(data)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestIssue_RejectsEmptyEnvironments(t *testing.T) {
	svc := newTestService(t, newFakeRevocation())
	data := validData()
	data.AllowedEnvironments = nil
	_, err := svc.Issue(data)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestVerify_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc := newTestService(t, newFakeRevocation())
	svc.WithClock(func() time.Time { return now })

	data := validData()
	data.TTL = time.Second
	token, err := svc.Issue(data)
	require.NoError(t, err)

	svc.WithClock(func() time.Time { return now.Add(time.Hour) })
	_, err = svc.Verify(token)
	require.ErrorIs(t, err, ErrExpired)
}

func TestVerify_Malformed(t *testing.T) {
	svc := newTestService(t, newFakeRevocation())
	_, err := svc.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrMalformed)
}

func TestVerify_BadSignature(t *testing.T) {
	svc1 := newTestService(t, newFakeRevocation())
	svc2 := newTestService(t, newFakeRevocation())

	token, err := svc1.Issue(validData())
	require.NoError(t, err)

	_, err = svc2.Verify(token)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestRotate_RevokesOldAndIssuesUsableNew(t *testing.T) {
	rev := newFakeRevocation()
	svc := newTestService(t, rev)

	oldToken, err := svc.Issue(validData())
	require.NoError(t, err)
	oldClaims, err := svc.Verify(oldToken)
	require.NoError(t, err)

	newToken, err := svc.Rotate(oldToken, rev, validData())
	require.NoError(t, err)

	_, err = svc.Verify(oldToken)
	require.ErrorIs(t, err, ErrRevoked)
	require.True(t, rev.Contains(oldClaims.JTI))

	newClaims, err := svc.Verify(newToken)
	require.NoError(t, err)
	require.NotEqual(t, oldClaims.JTI, newClaims.JTI)
}

func TestRevoke_Idempotent(t *testing.T) {
	rev := newFakeRevocation()
	rev.Add("jti-1")
	rev.Add("jti-1")
	require.True(t, rev.Contains("jti-1"))
}

func TestTierForTrustScore_Boundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Tier
	}{
		{0.0, TierT4},
		{0.59, TierT4},
		{0.60, TierT3},
		{0.74, TierT3},
		{0.75, TierT2},
		{0.89, TierT2},
		{0.90, TierT1},
		{1.00, TierT1},
	}
	for _, c := range cases {
		require.Equal(t, c.want, TierForTrustScore(c.score), "score=%v", c.score)
	}
}

func TestRank_Ordering(t *testing.T) {
	require.Less(t, Rank(TierT4), Rank(TierT3))
	require.Less(t, Rank(TierT3), Rank(TierT2))
	require.Less(t, Rank(TierT2), Rank(TierT1))
}
