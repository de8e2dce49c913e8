package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Master is the control-plane, Postgres-backed chain that gateways sync
// into (spec §4.5 "Master ledger (control plane)"). Unlike Local, Master
// re-chains incoming records against its own tip rather than trusting the
// gateway-supplied prev_hash, since two gateways pushing concurrently would
// otherwise race to extend the same chain position.
type Master struct {
	db *sql.DB
}

const masterSchema = `
CREATE TABLE IF NOT EXISTS decision_records (
	id TEXT PRIMARY KEY,
	agent_id TEXT NOT NULL,
	action_type TEXT NOT NULL,
	resource TEXT,
	amount DOUBLE PRECISION,
	currency TEXT,
	environment TEXT,
	verdict TEXT NOT NULL,
	reason TEXT,
	passport_jti TEXT,
	gateway_id TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	input_context JSONB,
	reasoning_trace TEXT,
	prophecy_paths JSONB,
	local_hash TEXT NOT NULL,
	master_prev_hash TEXT NOT NULL,
	master_hash TEXT NOT NULL,
	seq BIGSERIAL,
	ingested_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_master_records_gateway ON decision_records(gateway_id);
CREATE INDEX IF NOT EXISTS idx_master_records_ingested ON decision_records(ingested_at);
`

// dedupeWindow bounds how far back BulkIngest looks for an id collision; a
// record id re-appearing after this long is treated as a new record rather
// than a resync retry (spec §4.6 "dedupe-by-id within a 7-day window").
const dedupeWindow = 7 * 24 * time.Hour

func OpenMaster(ctx context.Context, dsn string) (*Master, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open master db: %w", err)
	}
	if _, err := db.ExecContext(ctx, masterSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: init master schema: %w", err)
	}
	return NewMasterWithDB(db), nil
}

// NewMasterWithDB wraps an already-open *sql.DB as a Master, skipping schema
// initialization. Used by OpenMaster itself and by callers (tests across
// package boundaries, e.g. pkg/cpapi) that need to inject a mock or
// already-migrated connection.
func NewMasterWithDB(db *sql.DB) *Master {
	return &Master{db: db}
}

func (m *Master) Close() error {
	return m.db.Close()
}

// IngestResult reports how a BulkIngest call resolved (spec §4.6).
type IngestResult struct {
	Accepted int
	Deduped  int
}

// BulkIngest appends a batch of gateway-local records to the master chain,
// re-chaining each on the master's own tip and skipping any id seen within
// dedupeWindow (a gateway retrying a push whose ack was lost must not
// double-count).
func (m *Master) BulkIngest(ctx context.Context, gatewayID string, records []Record) (IngestResult, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, fmt.Errorf("ledger: begin bulk ingest: %w", err)
	}
	defer tx.Rollback()

	var tipHash string
	row := tx.QueryRowContext(ctx, `SELECT master_hash FROM decision_records ORDER BY seq DESC LIMIT 1`)
	switch err := row.Scan(&tipHash); {
	case err == sql.ErrNoRows:
		tipHash = ""
	case err != nil:
		return IngestResult{}, fmt.Errorf("ledger: read master tip: %w", err)
	}

	result := IngestResult{}
	cutoff := time.Now().Add(-dedupeWindow)

	for _, r := range records {
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM decision_records WHERE id = $1 AND ingested_at > $2)`,
			r.ID, cutoff).Scan(&exists)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ledger: dedupe check: %w", err)
		}
		if exists {
			result.Deduped++
			continue
		}

		r.GatewayID = gatewayID
		r.LocalHash = r.Hash
		r.MasterPrevHash = tipHash

		masterHash, err := ComputeHash(Record{
			ID: r.ID, AgentID: r.AgentID, ActionType: r.ActionType, Verdict: r.Verdict,
			Amount: r.Amount, Environment: r.Environment, Timestamp: r.Timestamp,
			PrevHash: tipHash,
		})
		if err != nil {
			return IngestResult{}, fmt.Errorf("ledger: compute master hash: %w", err)
		}

		inputCtx, err := json.Marshal(r.InputContext)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ledger: marshal input_context: %w", err)
		}
		prophecyPaths, err := json.Marshal(r.ProphecyPaths)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ledger: marshal prophecy_paths: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO decision_records
				(id, agent_id, action_type, resource, amount, currency, environment, verdict, reason,
				 passport_jti, gateway_id, occurred_at, input_context, reasoning_trace, prophecy_paths,
				 local_hash, master_prev_hash, master_hash)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
			r.ID, r.AgentID, r.ActionType, r.Resource, r.Amount, r.Currency, r.Environment,
			string(r.Verdict), r.Reason, r.PassportJTI, r.GatewayID, r.Timestamp,
			inputCtx, r.ReasoningTrace, prophecyPaths, r.LocalHash, r.MasterPrevHash, masterHash,
		)
		if err != nil {
			return IngestResult{}, fmt.Errorf("ledger: insert master record: %w", err)
		}

		tipHash = masterHash
		result.Accepted++
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{}, fmt.Errorf("ledger: commit bulk ingest: %w", err)
	}
	return result, nil
}

// VerifyChain checks the master chain's integrity, optionally scoped to a
// single gateway.
func (m *Master) VerifyChain(ctx context.Context, gatewayID string) (ChainResult, error) {
	query := `SELECT id, agent_id, action_type, verdict, amount, environment, occurred_at, master_prev_hash, master_hash
	          FROM decision_records`
	args := []any{}
	if gatewayID != "" {
		query += ` WHERE gateway_id = $1`
		args = append(args, gatewayID)
	}
	query += ` ORDER BY seq ASC`

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return ChainResult{}, fmt.Errorf("ledger: query master for verify: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var verdict string
		if err := rows.Scan(&r.ID, &r.AgentID, &r.ActionType, &verdict, &r.Amount, &r.Environment,
			&r.Timestamp, &r.PrevHash, &r.Hash); err != nil {
			return ChainResult{}, fmt.Errorf("ledger: scan master record: %w", err)
		}
		r.Verdict = Verdict(verdict)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return ChainResult{}, err
	}

	if gatewayID != "" {
		// Scoping to a gateway breaks the master-wide chain linkage the same
		// way agent-scoped Local.VerifyChain does: fall back to per-record
		// hash checks only.
		good := 0
		brokenAt := ""
		for _, r := range records {
			ok, err := VerifyHash(r)
			if err == nil && ok {
				good++
			} else if brokenAt == "" {
				brokenAt = r.ID
			}
		}
		if len(records) == 0 {
			return ChainResult{Valid: true, IntegrityPct: 100}, nil
		}
		return ChainResult{
			Valid:        brokenAt == "",
			Checked:      len(records),
			BrokenAt:     brokenAt,
			IntegrityPct: 100 * float64(good) / float64(len(records)),
		}, nil
	}

	return VerifyRecords(records), nil
}
