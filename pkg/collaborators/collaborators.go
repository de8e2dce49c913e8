// Package collaborators represents the systems the core calls into but
// does not implement: agent orchestration, trust-score updates, gene and
// capability extraction, and compliance report rendering (spec §1
// Non-goals). The core depends only on these narrow interfaces; a
// concrete agent orchestrator, trust engine, and so on are deployed
// alongside the gateway, not inside this module.
package collaborators

import (
	"context"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/enforcer"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
)

// AgentOrchestrator supplies an agent's operational history and current
// status. These fields are owned by external collaborators, not by
// passport claims or the core itself (spec §3). A type satisfying this
// interface also satisfies pipeline.HistoryProvider and
// pipeline.StatusProvider without any adapter, since the method shapes
// are identical by construction.
type AgentOrchestrator interface {
	// History returns how many past actions this agent has taken and what
	// fraction succeeded, feeding the prophecy simulator (spec §4.7).
	History(ctx context.Context, agentID string) (historyCount int, historicalSuccess float64, err error)
	// AgentStatus resolves the agent's current operational status for the
	// enforcer's status_check rule (spec §4.4).
	AgentStatus(ctx context.Context, agentID string) (enforcer.AgentStatus, error)
}

// TrustScoreUpdater receives a decision outcome so an external trust
// engine can recompute trust_score ahead of the agent's next passport
// issuance (spec §1 "trust-score updates"). The core never recomputes
// trust_score itself; it only reports what happened.
type TrustScoreUpdater interface {
	RecordOutcome(ctx context.Context, agentID string, verdict string, predictedTrustDelta float64) error
}

// GeneExtractor discovers the capability genes behind DNA fingerprinting
// at passport Issue time (spec §1 "gene/capability extraction"). The core
// only ever consumes the resulting []passport.Gene; it never infers genes
// from agent behavior on its own.
type GeneExtractor interface {
	ExtractGenes(ctx context.Context, agentID string) ([]passport.Gene, error)
}

// ComplianceReporter renders human-facing reports from ledger records
// (spec §1 "compliance report rendering"). The core produces and verifies
// the records; rendering them for an auditor is out of scope.
type ComplianceReporter interface {
	Render(ctx context.Context, records []ledger.Record) ([]byte, error)
}
