package passport

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ComputeDNAFingerprint computes the privacy-preserving hash of an agent's
// dominant capability genes (spec §3): SHA-256 of a canonically-sorted list
// of (gene_name, gene_type, round(strength,2)) triples for genes with
// strength >= DominantThreshold, or SHA-256("no-genes") if none qualify.
func ComputeDNAFingerprint(genes []Gene) string {
	type triple struct {
		name     string
		typ      string
		strength float64
	}

	var dominant []triple
	for _, g := range genes {
		if g.Strength >= DominantThreshold {
			dominant = append(dominant, triple{
				name:     g.Name,
				typ:      g.Type,
				strength: round2(g.Strength),
			})
		}
	}

	if len(dominant) == 0 {
		return hashString("no-genes")
	}

	sort.Slice(dominant, func(i, j int) bool {
		if dominant[i].name != dominant[j].name {
			return dominant[i].name < dominant[j].name
		}
		if dominant[i].typ != dominant[j].typ {
			return dominant[i].typ < dominant[j].typ
		}
		return dominant[i].strength < dominant[j].strength
	})

	var sb strings.Builder
	for _, t := range dominant {
		fmt.Fprintf(&sb, "(%s,%s,%.2f)", t.name, t.typ, t.strength)
	}

	return hashString(sb.String())
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func hashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
