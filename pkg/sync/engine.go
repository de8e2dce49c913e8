// Package sync implements the control-plane <-> edge reconciliation loop
// (C6): periodic pull of policy bundle and revocation diff, push of ledger
// batches, and degraded-mode bookkeeping.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/revocation"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/telemetry"
)

// Mode mirrors the edge gateway's self-reported sync health (spec §4.6).
type Mode string

const (
	ModeOnline   Mode = "online"
	ModeDegraded Mode = "degraded"
)

// DefaultFlushBatch is the number of unsynced records pushed per tick
// (spec §4.6 "POST up to N records (default 500)").
const DefaultFlushBatch = 500

// SoftCap and HardCap are the unsynced-buffer backpressure thresholds
// (spec §5 "Backpressure").
const (
	SoftCap = 10_000
	HardCap = 100_000
)

// PolicyPuller fetches the control plane's current, unfiltered bundle,
// passing env as a query parameter (spec §4.6 step 1, §6
// "GET /sentinel/policies/bundle?env="); scoping to env happens locally.
type PolicyPuller interface {
	PullPolicies(ctx context.Context, env string) (*policy.Bundle, error)
}

// RevocationPuller fetches a revocation diff or full snapshot (spec §4.6
// step 2, §6 "GET /identity/revocation-list?since=").
type RevocationPuller interface {
	PullRevocations(ctx context.Context, since uint64) (snapshotID uint64, revokedJTIs []string, full bool, err error)
}

// LedgerPusher pushes a batch of local records to the master (spec §4.6
// step 3, §6 "POST /ancestor/bulk-record").
type LedgerPusher interface {
	PushRecords(ctx context.Context, records []ledger.Record) error
}

// LocalLedger is the subset of *ledger.Local the engine needs.
type LocalLedger interface {
	Unsynced(ctx context.Context, limit int) ([]ledger.Record, error)
	UnsyncedCount(ctx context.Context) (int, error)
	MarkSynced(ctx context.Context, ids []string) error
}

// BundleSwapper is the subset of *policy.Store the engine needs to learn
// the current bundle version before deciding whether a pull is newer.
type BundleSwapper interface {
	Current() (*policy.Bundle, bool)
	Swap(b *policy.Bundle)
}

// Status is the snapshot GET /status reports (spec §6).
type Status struct {
	Mode           Mode
	LastSyncAt     time.Time
	LastSyncErr    string
	ConsecutiveMisses int
}

// Engine runs the periodic reconciliation tick described in spec §4.6.
type Engine struct {
	mu sync.RWMutex

	policies    PolicyPuller
	revocations RevocationPuller
	pusher      LedgerPusher
	local       LocalLedger
	bundles     BundleSwapper
	revocationSet *revocation.Registry

	environment string
	interval    time.Duration
	flushLimit  int
	softCap     int
	hardCap     int
	lastSnapshotID uint64

	status Status

	pullLimiter *rate.Limiter
	clock       func() time.Time
}

// Config configures an Engine (spec §6 configuration keys). SoftCap and
// HardCap default to the package-level SoftCap/HardCap constants when
// zero; set them from LEDGER_SOFT_CAP/LEDGER_HARD_CAP to match whatever
// cap pkg/pipeline was also configured with, since both read from the
// same two env vars.
type Config struct {
	Environment    string
	SyncInterval   time.Duration
	FlushBatchSize int
	SoftCap        int
	HardCap        int
}

func NewEngine(cfg Config, policies PolicyPuller, revocations RevocationPuller, pusher LedgerPusher, local LocalLedger, bundles BundleSwapper, revocationSet *revocation.Registry) *Engine {
	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	flushLimit := cfg.FlushBatchSize
	if flushLimit <= 0 {
		flushLimit = DefaultFlushBatch
	}
	softCap := cfg.SoftCap
	if softCap <= 0 {
		softCap = SoftCap
	}
	hardCap := cfg.HardCap
	if hardCap <= 0 {
		hardCap = HardCap
	}

	return &Engine{
		policies:      policies,
		revocations:   revocations,
		pusher:        pusher,
		local:         local,
		bundles:       bundles,
		revocationSet: revocationSet,
		environment:   cfg.Environment,
		interval:      interval,
		flushLimit:    flushLimit,
		softCap:       softCap,
		hardCap:       hardCap,
		status:        Status{Mode: ModeDegraded},
		pullLimiter:   rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
		clock:         time.Now,
	}
}

// Status returns a point-in-time snapshot of sync health.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Mode reports the engine's current mode as a string, satisfying
// pipeline.ModeProvider so the authorize hot path can stamp its response
// with the gateway's sync health (spec §8 invariant 7).
func (e *Engine) Mode() string {
	return string(e.Status().Mode)
}

// StartupSync performs the synchronous initial pull required before the
// gateway accepts requests (spec §4.6 "Startup"). Failure of both pulls is
// not returned as an error: the gateway must still start, in degraded mode.
func (e *Engine) StartupSync(ctx context.Context) {
	if err := e.Tick(ctx); err != nil {
		slog.Warn("sync: startup pull failed, starting in degraded mode", "error", err)
	}
}

// Run drives the periodic tick loop until ctx is cancelled, retrying failed
// ticks with capped exponential backoff and widening the tick frequency
// under ledger backpressure (spec §4.6, §5). It supervises the tick loop
// and a final flush-on-shutdown as two cooperative tasks.
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.loop(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	// Shutdown: finish the current flush or persist the unsynced set
	// before exit (spec §5 "Cancellation & timeouts").
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.flushLedger(flushCtx); err != nil {
		slog.Warn("sync: final flush on shutdown incomplete", "error", err)
	}
	return nil
}

func (e *Engine) loop(ctx context.Context) error {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var bo *backoff.ExponentialBackOff
	consecutiveFailures := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			err := e.Tick(ctx)
			if err == nil {
				consecutiveFailures = 0
				bo = nil
				ticker.Reset(e.tickInterval())
				continue
			}

			consecutiveFailures++
			if bo == nil {
				bo = backoff.NewExponentialBackOff()
				bo.InitialInterval = e.interval
				bo.MaxInterval = 5 * time.Minute
			}
			next, nextErr := bo.NextBackOff()
			if nextErr != nil {
				next = 5 * time.Minute
			}
			ticker.Reset(next)
		}
	}
}

// tickInterval widens the tick frequency under backpressure: a soft-cap
// breach makes the engine sync more often, trying to drain the buffer
// before it reaches the hard cap (spec §5 "Backpressure").
func (e *Engine) tickInterval() time.Duration {
	count, err := e.local.UnsyncedCount(context.Background())
	if err != nil {
		return e.interval
	}
	telemetry.LedgerUnsyncedGauge.Set(float64(count))
	if count > e.softCap {
		fast := e.interval / 4
		if fast < time.Second {
			fast = time.Second
		}
		return fast
	}
	return e.interval
}

// Tick runs one reconciliation pass: pull policies, pull revocations, flush
// the ledger, in that strict order (spec §4.6).
func (e *Engine) Tick(ctx context.Context) error {
	if err := e.pullLimiter.Wait(ctx); err != nil {
		return err
	}

	var failures []string

	pullCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := e.pullBundle(pullCtx); err != nil {
		failures = append(failures, fmt.Sprintf("pull policies: %v", err))
	}
	cancel()

	revCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := e.pullRevocations(revCtx); err != nil {
		failures = append(failures, fmt.Sprintf("pull revocations: %v", err))
	}
	cancel()

	e.mu.Lock()
	if len(failures) > 0 {
		e.status.Mode = ModeDegraded
		e.status.ConsecutiveMisses++
		e.status.LastSyncErr = failures[0]
	} else {
		e.status.Mode = ModeOnline
		e.status.ConsecutiveMisses = 0
		e.status.LastSyncErr = ""
		e.status.LastSyncAt = e.clock()
	}
	e.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	flushErr := e.flushLedger(flushCtx)
	cancel()
	if flushErr != nil {
		failures = append(failures, fmt.Sprintf("flush ledger: %v", flushErr))
	}

	if len(failures) > 0 {
		telemetry.SyncTickTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("sync: tick incomplete: %v", failures)
	}
	telemetry.SyncTickTotal.WithLabelValues("ok").Inc()
	return nil
}

func (e *Engine) pullBundle(ctx context.Context) error {
	// PullPolicies returns the control plane's full, unfiltered bundle so its
	// hash can be recomputed and verified directly (spec §4.3 "the edge
	// bundle carries the same version and hash as the full bundle"):
	// recomputing over an already-scoped subset would only match the served
	// hash when every rule happened to be active and in this environment's
	// scope. Environment scoping is applied locally, after verification.
	bundle, err := e.policies.PullPolicies(ctx, e.environment)
	if err != nil {
		return err
	}
	ok, err := bundle.VerifyHash()
	if err != nil {
		return fmt.Errorf("verify pulled bundle hash: %w", err)
	}
	if !ok {
		return errors.New("pulled bundle hash did not recompute")
	}

	current, hasCurrent := e.bundles.Current()
	if hasCurrent && bundle.Version <= current.Version {
		return nil
	}
	scoped := bundle.ForEnvironment(passport.Environment(e.environment))
	e.bundles.Swap(&scoped)
	return nil
}

func (e *Engine) pullRevocations(ctx context.Context) error {
	since := e.lastSnapshotID
	snapshotID, jtis, full, err := e.revocations.PullRevocations(ctx, since)
	if err != nil {
		return err
	}
	if full {
		e.revocationSet.ReplaceWithSnapshot(jtis)
	} else {
		e.revocationSet.ApplyDiff(jtis)
	}
	e.lastSnapshotID = snapshotID
	return nil
}

func (e *Engine) flushLedger(ctx context.Context) error {
	records, err := e.local.Unsynced(ctx, e.flushLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	if err := e.pusher.PushRecords(ctx, records); err != nil {
		return err
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return e.local.MarkSynced(ctx, ids)
}
