package policy

import (
	"fmt"
	"sort"
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/canonicalize"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
)

// Bundle is an immutable, hash-chained snapshot of the active policy rules
// (spec §3).
type Bundle struct {
	Version    string    `json:"version"`
	Rules      []Rule    `json:"rules"`
	Hash       string    `json:"hash"`
	ParentHash string    `json:"parent_hash"`
	ValidFrom  time.Time `json:"valid_from"`
	ValidUntil time.Time `json:"valid_until,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// hashPayload is exactly the fields the hash covers, per spec §3:
// "SHA-256 over canonicalized JSON of {version, rules (sorted by id), parent_hash}".
type hashPayload struct {
	Version    string `json:"version"`
	Rules      []Rule `json:"rules"`
	ParentHash string `json:"parent_hash"`
}

// ComputeHash recomputes a bundle's content hash from its canonical payload,
// independent of whatever Hash field is currently stored — used both to
// assign Hash at publish time and to detect tampering later.
func ComputeHash(version string, rules []Rule, parentHash string) (string, error) {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	return canonicalize.Hash(hashPayload{
		Version:    version,
		Rules:      sorted,
		ParentHash: parentHash,
	})
}

// VerifyHash reports whether b.Hash matches a fresh recomputation from its
// payload (spec §4.3 "Bundle integrity check must recompute hash... and
// reject mutated bundles").
func (b Bundle) VerifyHash() (bool, error) {
	recomputed, err := ComputeHash(b.Version, b.Rules, b.ParentHash)
	if err != nil {
		return false, err
	}
	return recomputed == b.Hash, nil
}

// ForEnvironment filters a bundle down to active rules scoped to env,
// keeping the same version and hash as identity markers (spec §4.3: "the
// edge bundle carries the same version and hash as the full bundle"). The
// returned value's Hash is no longer verifiable against its own (now
// partial) Rules — callers must verify the full bundle's hash before
// filtering, not after.
func (b Bundle) ForEnvironment(env passport.Environment) Bundle {
	filtered := make([]Rule, 0, len(b.Rules))
	for _, r := range b.Rules {
		if r.Active && r.InScope(env) {
			filtered = append(filtered, r)
		}
	}
	out := b
	out.Rules = filtered
	return out
}

func formatVersion(t time.Time, seq int) string {
	return fmt.Sprintf("v%04d.%02d.%02d-%03d", t.Year(), t.Month(), t.Day(), seq)
}
