// Package ledger implements the hash-chained decision ledger (C5): a local
// append-only buffer per gateway and a master chain at the control plane
// (spec §4.5).
package ledger

import (
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/canonicalize"
)

// Verdict mirrors enforcer.Verdict without importing it, keeping ledger
// free of a dependency on the enforcer package.
type Verdict string

const (
	VerdictAllow    Verdict = "allow"
	VerdictDeny     Verdict = "deny"
	VerdictEscalate Verdict = "escalate"
)

// ProphecyPath is carried on a record when the prophecy simulator ran for
// that decision (spec §3 "prophecy_paths?").
type ProphecyPath struct {
	PathType               string   `json:"path_type"`
	PredictedTrustDelta    float64  `json:"predicted_trust_delta"`
	RiskScore              float64  `json:"risk_score"`
	FinancialExposure      float64  `json:"financial_exposure"`
	ComplianceRisk         string   `json:"compliance_risk"`
	CascadeEffects         []string `json:"cascade_effects,omitempty"`
	RecommendationWeight   float64  `json:"recommendation_weight"`
	Reasoning              string   `json:"reasoning"`
}

// Record is a decision record (spec §3). Immutable once hashed.
type Record struct {
	ID              string                 `json:"id"`
	AgentID         string                 `json:"agent_id"`
	ActionType      string                 `json:"action_type"`
	Resource        string                 `json:"resource"`
	Amount          float64                `json:"amount"`
	Currency        string                 `json:"currency"`
	Environment     string                 `json:"environment"`
	Verdict         Verdict                `json:"verdict"`
	Reason          string                 `json:"reason"`
	PassportJTI     string                 `json:"passport_jti"`
	GatewayID       string                 `json:"gateway_id"`
	Timestamp       time.Time              `json:"timestamp"`
	InputContext    map[string]interface{} `json:"input_context,omitempty"`
	ReasoningTrace  string                 `json:"reasoning_trace,omitempty"`
	ProphecyPaths   []ProphecyPath         `json:"prophecy_paths,omitempty"`
	PrevHash        string                 `json:"prev_hash"`
	Hash            string                 `json:"hash"`

	// MasterPrevHash and LocalHash are populated only once a record has
	// been ingested into the master chain (spec §4.5 BulkIngest): the
	// master re-chains against its own tip, and the gateway-local hash is
	// retained as provenance rather than as the chain key.
	MasterPrevHash string `json:"master_prev_hash,omitempty"`
	LocalHash      string `json:"local_hash,omitempty"`
}

// hashPayload is exactly the fields the hash covers, per spec §3:
// "SHA-256 over canonicalized {id, agent_id, action_type, verdict, amount,
// environment, timestamp, prev_hash}".
type hashPayload struct {
	ID          string    `json:"id"`
	AgentID     string    `json:"agent_id"`
	ActionType  string    `json:"action_type"`
	Verdict     Verdict   `json:"verdict"`
	Amount      float64   `json:"amount"`
	Environment string    `json:"environment"`
	Timestamp   string    `json:"timestamp"`
	PrevHash    string    `json:"prev_hash"`
}

// ComputeHash computes a record's content hash from the fields the spec
// covers, formatting the timestamp as millisecond-precision UTC ISO-8601
// per spec §6 "Canonical hashing".
func ComputeHash(r Record) (string, error) {
	return canonicalize.Hash(hashPayload{
		ID:          r.ID,
		AgentID:     r.AgentID,
		ActionType:  r.ActionType,
		Verdict:     r.Verdict,
		Amount:      r.Amount,
		Environment: r.Environment,
		Timestamp:   r.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		PrevHash:    r.PrevHash,
	})
}

// VerifyHash reports whether r.Hash matches a fresh recomputation.
func VerifyHash(r Record) (bool, error) {
	recomputed, err := ComputeHash(r)
	if err != nil {
		return false, err
	}
	return recomputed == r.Hash, nil
}

// ChainResult is the output of VerifyChain (spec §4.5).
type ChainResult struct {
	Valid         bool    `json:"valid"`
	Checked       int     `json:"checked"`
	BrokenAt      string  `json:"broken_at,omitempty"`
	IntegrityPct  float64 `json:"integrity_pct"`
}

// VerifyRecords checks a sequence of records for hash-chain integrity,
// continuing past a break so IntegrityPct is meaningful (spec §4.5).
func VerifyRecords(records []Record) ChainResult {
	if len(records) == 0 {
		return ChainResult{Valid: true, Checked: 0, IntegrityPct: 100}
	}

	prevHash := ""
	good := 0
	brokenAt := ""
	for _, r := range records {
		ok, err := VerifyHash(r)
		chainOK := r.PrevHash == prevHash
		if err == nil && ok && chainOK {
			good++
		} else if brokenAt == "" {
			brokenAt = r.ID
		}
		prevHash = r.Hash
	}

	return ChainResult{
		Valid:        brokenAt == "",
		Checked:      len(records),
		BrokenAt:     brokenAt,
		IntegrityPct: 100 * float64(good) / float64(len(records)),
	}
}
