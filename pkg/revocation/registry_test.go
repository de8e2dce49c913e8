package revocation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAdd_Idempotent(t *testing.T) {
	r := New()
	r.Add("jti-1")
	id1, set1 := r.Snapshot()
	r.Add("jti-1")
	id2, set2 := r.Snapshot()

	require.Equal(t, id1, id2)
	require.Equal(t, set1, set2)
	require.True(t, r.Contains("jti-1"))
}

func TestDiffSince_AppliedInOrderMatchesLatestSnapshot(t *testing.T) {
	r := New()
	r.Add("a")
	id1, _ := r.Snapshot()
	r.Add("b")
	id2, _ := r.Snapshot()
	r.Add("c")

	replica := New()
	replica.ApplyDiff(r.DiffSince(0))
	_ = id1
	replica2 := New()
	replica2.ApplyDiff(r.DiffSince(0)[:1]) // simulate applying up to id1
	replica2.ApplyDiff(r.DiffSince(id1))
	_ = id2

	_, want := r.Snapshot()
	_, got := replica.Snapshot()
	require.ElementsMatch(t, want, got)
	_, gotInOrder := replica2.Snapshot()
	require.ElementsMatch(t, want, gotInOrder)
}

func TestContains_NotRevoked(t *testing.T) {
	r := New()
	require.False(t, r.Contains("unknown"))
}

func TestReplaceWithSnapshot(t *testing.T) {
	r := New()
	r.Add("stale")
	r.ReplaceWithSnapshot([]string{"fresh-1", "fresh-2"})

	require.False(t, r.Contains("stale"))
	require.True(t, r.Contains("fresh-1"))
	require.True(t, r.Contains("fresh-2"))
}

func TestDiffSince_EmptyWhenNothingNew(t *testing.T) {
	r := New()
	r.Add("a")
	id, _ := r.Snapshot()
	require.Empty(t, r.DiffSince(id))
}
