// Package pipeline implements the authorization pipeline (C7): the
// strictly-sequential hot path that ties together passport verification,
// the environment registry's allowed-environment check, the prophecy
// simulator, the local enforcer, and the decision ledger (spec §4.7).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/enforcer"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/prophecy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/sync"
)

// DefaultDeadline is the authorize handler's caller deadline when none is
// supplied (spec §5 "Cancellation & timeouts").
const DefaultDeadline = 5 * time.Second

var (
	// ErrDeadlineExceeded is returned when the caller's deadline passed
	// before the ledger append; the append never ran (no half-commit).
	ErrDeadlineExceeded = errors.New("pipeline: deadline exceeded before ledger append")
	// ErrAppendFailed wraps a ledger append failure; the caller must treat
	// this as a failed authorize, not as an implicit deny (spec §7).
	ErrAppendFailed = errors.New("pipeline: ledger append failed")
)

// HistoryProvider supplies the agent track record prophecy needs
// (history_count, historical_success). These fields are owned by external
// collaborators (spec §3 "owned by external collaborators"), not by the
// passport claims or the core itself.
type HistoryProvider interface {
	History(ctx context.Context, agentID string) (count int, historicalSuccess float64, err error)
}

// StatusProvider resolves an agent's current status for the enforcer's
// status_check rule. Claims carry no status field, so this is an external
// lookup (spec §4.4 "status is derived from claims or lookup").
type StatusProvider interface {
	AgentStatus(ctx context.Context, agentID string) (enforcer.AgentStatus, error)
}

// ModeProvider reports the gateway's current sync health for the
// response's `mode` field (spec §4.7 step 6, §8 invariant 7).
type ModeProvider interface {
	Mode() string
}

// Request is the Authorize input (spec §4.7).
type Request struct {
	PassportToken string
	ActionType    string
	Resource      string
	Amount        float64
	Currency      string
	Environment   string
	Context       map[string]any
}

// Response is the Authorize output (spec §4.7 step 6).
type Response struct {
	Authorized bool    `json:"authorized"`
	Verdict    string  `json:"verdict"`
	Reason     string  `json:"reason"`
	AgentID    string  `json:"agent_id"`
	AgentTier  string  `json:"agent_tier"`
	GatewayID  string  `json:"gateway_id"`
	LatencyMS  float64 `json:"latency_ms"`
	Mode       string  `json:"mode"`
	DecisionID string  `json:"decision_id"`
}

// Pipeline wires C1/C3/C4/C5/C7 into the Authorize hot path. All of verify,
// environment check, prophecy, and enforce run in memory with no
// suspension point; the only suspension point is the ledger append (spec
// §5 "Suspension points").
type Pipeline struct {
	passportSvc *passport.Service
	bundles     *policy.Store
	ledger      *ledger.Local

	split        enforcer.SplitDetector
	history      HistoryProvider
	statusLookup StatusProvider
	mode         ModeProvider

	gatewayID string
	deadline  time.Duration
	hardCap   int
	clock     func() time.Time
}

// NewPipeline constructs a Pipeline with the given gatewayID and the
// component instances it orchestrates. Optional collaborators (split
// detector, history/status lookups, mode reporting) are attached via the
// With* methods.
func NewPipeline(passportSvc *passport.Service, bundles *policy.Store, ledgerLocal *ledger.Local, gatewayID string) *Pipeline {
	return &Pipeline{
		passportSvc: passportSvc,
		bundles:     bundles,
		ledger:      ledgerLocal,
		gatewayID:   gatewayID,
		deadline:    DefaultDeadline,
		clock:       time.Now,
	}
}

func (p *Pipeline) WithSplitDetector(d enforcer.SplitDetector) *Pipeline {
	p.split = d
	return p
}

func (p *Pipeline) WithHistoryProvider(h HistoryProvider) *Pipeline {
	p.history = h
	return p
}

func (p *Pipeline) WithStatusProvider(s StatusProvider) *Pipeline {
	p.statusLookup = s
	return p
}

func (p *Pipeline) WithModeProvider(m ModeProvider) *Pipeline {
	p.mode = m
	return p
}

// WithDeadline overrides the default 5s authorize deadline.
func (p *Pipeline) WithDeadline(d time.Duration) *Pipeline {
	p.deadline = d
	return p
}

// WithHardCap overrides the unsynced-buffer hard cap (default sync.HardCap).
func (p *Pipeline) WithHardCap(n int) *Pipeline {
	p.hardCap = n
	return p
}

// WithClock overrides the clock for deterministic tests.
func (p *Pipeline) WithClock(clock func() time.Time) *Pipeline {
	p.clock = clock
	return p
}

// Authorize runs the six-step sequential flow of spec §4.7. A non-nil error
// means no verdict was produced: either the passport failed verification
// (map to HTTP 401 at the transport layer), the deadline passed before the
// ledger append (map to 504), or the append itself failed (map to 503).
// Every other outcome, including deny and escalate, is a normal Response
// with a ledger record behind it.
func (p *Pipeline) Authorize(ctx context.Context, req Request) (Response, error) {
	start := p.clock()

	deadline := p.deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// Step 1: verify. No ledger write on failure (spec §7 "Authentication").
	claims, err := p.passportSvc.Verify(req.PassportToken)
	if err != nil {
		return Response{}, err
	}

	mode := "online"
	if p.mode != nil {
		mode = p.mode.Mode()
	}

	// Step 2: environment check.
	if !claims.AllowsEnvironment(passport.Environment(req.Environment)) {
		return p.finish(ctx, claims, req, ledger.VerdictDeny, "environment not permitted", nil, mode, start)
	}

	historyCount, historicalSuccess := 0, 0.0
	if p.history != nil {
		if c, s, herr := p.history.History(ctx, claims.Subject); herr == nil {
			historyCount, historicalSuccess = c, s
		}
	}

	// Step 3: prophecy, advisory only.
	var prophecyPaths []ledger.ProphecyPath
	if prophecy.ShouldTrigger(claims.TrustScore, req.Amount, claims.AuthorityLimit, historyCount) {
		result := prophecy.Simulate(prophecy.Input{
			TrustScore:        claims.TrustScore,
			Amount:            req.Amount,
			AuthorityLimit:    claims.AuthorityLimit,
			HistoryCount:      historyCount,
			HistoricalSuccess: historicalSuccess,
			Tier:              claims.Tier,
		})
		prophecyPaths = result.Paths
	}

	// A gateway that has never synced a bundle starts degraded, not broken
	// (spec §4.6 "Startup"): it evaluates against an empty rule set, which
	// allow()s everything past the environment check above rather than
	// refusing every request outright.
	bundle, ok := p.bundles.Current()
	if !ok {
		bundle = &policy.Bundle{}
	}

	status := enforcer.AgentStatusActive
	if p.statusLookup != nil {
		if s, serr := p.statusLookup.AgentStatus(ctx, claims.Subject); serr == nil {
			status = s
		}
	}

	// Step 4: enforce. The enforcer is authoritative; prophecy never
	// overrides its verdict.
	result := enforcer.Evaluate(bundle, enforcer.Input{
		AgentID:    claims.Subject,
		Claims:     claims.Claims,
		Action:     enforcer.Action{Type: req.ActionType, Amount: req.Amount, Context: req.Context},
		Status:     status,
		SplitCheck: p.split,
	})

	verdict := ledger.Verdict(result.Verdict)
	reason := result.Reason

	// Backpressure: an allow under a hard-capped unsynced buffer is
	// downgraded to escalate, fail-safe, rather than returned as allow
	// (spec §5 "Backpressure"). Soft-cap handling lives in the sync engine
	// (it widens its own tick frequency); it has no effect on Authorize.
	if verdict == ledger.VerdictAllow {
		if over, cerr := p.overHardCap(ctx); cerr == nil && over {
			verdict = ledger.VerdictEscalate
			reason = "ledger backpressure"
		}
	}

	return p.finish(ctx, claims, req, verdict, reason, prophecyPaths, mode, start)
}

func (p *Pipeline) overHardCap(ctx context.Context) (bool, error) {
	hardCap := p.hardCap
	if hardCap <= 0 {
		hardCap = sync.HardCap
	}
	count, err := p.ledger.UnsyncedCount(ctx)
	if err != nil {
		return false, err
	}
	return count > hardCap, nil
}

// finish constructs the decision record, appends it (step 5), and builds
// the response (step 6). It refuses to append once the deadline has
// already passed, so a timeout never produces a half-committed record.
func (p *Pipeline) finish(ctx context.Context, claims *passport.VerifiedClaims, req Request, verdict ledger.Verdict, reason string, prophecyPaths []ledger.ProphecyPath, mode string, start time.Time) (Response, error) {
	if ctx.Err() != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
	}

	record := ledger.Record{
		AgentID:       claims.Subject,
		ActionType:    req.ActionType,
		Resource:      req.Resource,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Environment:   req.Environment,
		Verdict:       verdict,
		Reason:        reason,
		PassportJTI:   claims.JTI,
		Timestamp:     p.clock().UTC(),
		InputContext:  req.Context,
		ProphecyPaths: prophecyPaths,
	}

	appended, err := p.ledger.Append(ctx, record)
	if err != nil {
		if ctx.Err() != nil {
			return Response{}, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
		}
		return Response{}, fmt.Errorf("%w: %v", ErrAppendFailed, err)
	}

	return Response{
		Authorized: verdict == ledger.VerdictAllow,
		Verdict:    string(verdict),
		Reason:     reason,
		AgentID:    claims.Subject,
		AgentTier:  string(claims.Tier),
		GatewayID:  p.gatewayID,
		LatencyMS:  float64(p.clock().Sub(start).Microseconds()) / 1000.0,
		Mode:       mode,
		DecisionID: appended.ID,
	}, nil
}
