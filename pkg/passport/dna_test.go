package passport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeDNAFingerprint_NoGenes(t *testing.T) {
	require.Equal(t, hashString("no-genes"), ComputeDNAFingerprint(nil))
	require.Equal(t, hashString("no-genes"), ComputeDNAFingerprint([]Gene{{Name: "weak", Type: "skill", Strength: 0.5}}))
}

func TestComputeDNAFingerprint_DeterministicOrder(t *testing.T) {
	a := []Gene{
		{Name: "zeta", Type: "skill", Strength: 0.90},
		{Name: "alpha", Type: "skill", Strength: 0.95},
	}
	b := []Gene{
		{Name: "alpha", Type: "skill", Strength: 0.95},
		{Name: "zeta", Type: "skill", Strength: 0.90},
	}
	require.Equal(t, ComputeDNAFingerprint(a), ComputeDNAFingerprint(b))
}

func TestComputeDNAFingerprint_RoundsStrength(t *testing.T) {
	a := []Gene{{Name: "x", Type: "t", Strength: 0.901}}
	b := []Gene{{Name: "x", Type: "t", Strength: 0.904}}
	require.Equal(t, ComputeDNAFingerprint(a), ComputeDNAFingerprint(b))
}

func TestComputeDNAFingerprint_Length(t *testing.T) {
	fp := ComputeDNAFingerprint([]Gene{{Name: "x", Type: "t", Strength: 0.9}})
	require.Len(t, fp, 64)
}
