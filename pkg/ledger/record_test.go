package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeHash_DeterministicForSameFields(t *testing.T) {
	r := Record{
		ID: "rec-1", AgentID: "agent-1", ActionType: "write",
		Verdict: VerdictAllow, Amount: 45000, Environment: "edge",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), PrevHash: "abc",
	}
	h1, err := ComputeHash(r)
	require.NoError(t, err)
	h2, err := ComputeHash(r)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestComputeHash_IgnoresFieldsOutsideHashPayload(t *testing.T) {
	r := Record{
		ID: "rec-1", AgentID: "agent-1", ActionType: "write",
		Verdict: VerdictAllow, Amount: 45000, Environment: "edge",
		Timestamp: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	h1, err := ComputeHash(r)
	require.NoError(t, err)

	r.Reason = "changing an unhashed field"
	r.Resource = "something-else"
	h2, err := ComputeHash(r)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestVerifyHash_DetectsTamper(t *testing.T) {
	r := Record{ID: "rec-1", AgentID: "agent-1", ActionType: "write", Verdict: VerdictAllow, Amount: 10}
	h, err := ComputeHash(r)
	require.NoError(t, err)
	r.Hash = h

	ok, err := VerifyHash(r)
	require.NoError(t, err)
	require.True(t, ok)

	r.Amount = 999
	ok, err = VerifyHash(r)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyRecords_EmptyIsValid(t *testing.T) {
	result := VerifyRecords(nil)
	require.True(t, result.Valid)
	require.Equal(t, 0, result.Checked)
	require.InDelta(t, 100.0, result.IntegrityPct, 1e-9)
}

func TestVerifyRecords_ChainOfThreeIsValid(t *testing.T) {
	var records []Record
	prevHash := ""
	for i := 0; i < 3; i++ {
		r := Record{ID: string(rune('a' + i)), AgentID: "agent-1", ActionType: "write", Verdict: VerdictAllow, PrevHash: prevHash}
		h, err := ComputeHash(r)
		require.NoError(t, err)
		r.Hash = h
		records = append(records, r)
		prevHash = h
	}

	result := VerifyRecords(records)
	require.True(t, result.Valid)
	require.Equal(t, 3, result.Checked)
}
