package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/ledger"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/policy"
	"github.com/Ritinpaul/AgentGovern-OS/pkg/revocation"
)

type fakePolicyPuller struct {
	bundle *policy.Bundle
	err    error
}

func (f *fakePolicyPuller) PullPolicies(ctx context.Context, env string) (*policy.Bundle, error) {
	return f.bundle, f.err
}

type fakeRevocationPuller struct {
	snapshotID uint64
	jtis       []string
	full       bool
	err        error
}

func (f *fakeRevocationPuller) PullRevocations(ctx context.Context, since uint64) (uint64, []string, bool, error) {
	return f.snapshotID, f.jtis, f.full, f.err
}

type fakePusher struct {
	pushed []ledger.Record
	err    error
}

func (f *fakePusher) PushRecords(ctx context.Context, records []ledger.Record) error {
	if f.err != nil {
		return f.err
	}
	f.pushed = append(f.pushed, records...)
	return nil
}

type fakeLocalLedger struct {
	records []ledger.Record
	synced  map[string]bool
}

func newFakeLocalLedger(records []ledger.Record) *fakeLocalLedger {
	return &fakeLocalLedger{records: records, synced: map[string]bool{}}
}

func (f *fakeLocalLedger) Unsynced(ctx context.Context, limit int) ([]ledger.Record, error) {
	var out []ledger.Record
	for _, r := range f.records {
		if !f.synced[r.ID] {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeLocalLedger) UnsyncedCount(ctx context.Context) (int, error) {
	count := 0
	for _, r := range f.records {
		if !f.synced[r.ID] {
			count++
		}
	}
	return count, nil
}

func (f *fakeLocalLedger) MarkSynced(ctx context.Context, ids []string) error {
	for _, id := range ids {
		f.synced[id] = true
	}
	return nil
}

func validBundle(t *testing.T, version string) *policy.Bundle {
	t.Helper()
	hash, err := policy.ComputeHash(version, nil, "")
	require.NoError(t, err)
	return &policy.Bundle{Version: version, Hash: hash}
}

func newEngine(t *testing.T, pp PolicyPuller, rp RevocationPuller, pusher LedgerPusher, local LocalLedger) *Engine {
	t.Helper()
	store := policy.NewStore()
	rev := revocation.New()
	return NewEngine(Config{Environment: "edge"}, pp, rp, pusher, local, store, rev)
}

func TestTick_SuccessGoesOnline(t *testing.T) {
	e := newEngine(t,
		&fakePolicyPuller{bundle: validBundle(t, "v0001.01.01-001")},
		&fakeRevocationPuller{snapshotID: 1, jtis: nil, full: true},
		&fakePusher{},
		newFakeLocalLedger(nil),
	)

	err := e.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, ModeOnline, e.Status().Mode)
}

func TestTick_PolicyPullFailureGoesDegraded(t *testing.T) {
	e := newEngine(t,
		&fakePolicyPuller{err: errors.New("control plane unreachable")},
		&fakeRevocationPuller{snapshotID: 1, full: true},
		&fakePusher{},
		newFakeLocalLedger(nil),
	)

	err := e.Tick(context.Background())
	require.Error(t, err)
	require.Equal(t, ModeDegraded, e.Status().Mode)
	require.Equal(t, 1, e.Status().ConsecutiveMisses)
}

func TestTick_SwapsBundleOnlyWhenNewer(t *testing.T) {
	store := policy.NewStore()
	existing := validBundle(t, "v0002.01.01-001")
	store.Swap(existing)

	e := &Engine{
		policies:      &fakePolicyPuller{bundle: validBundle(t, "v0001.01.01-001")},
		revocations:   &fakeRevocationPuller{full: true},
		pusher:        &fakePusher{},
		local:         newFakeLocalLedger(nil),
		bundles:       store,
		revocationSet: revocation.New(),
		interval:      time.Second,
		flushLimit:    DefaultFlushBatch,
		pullLimiter:   rate.NewLimiter(rate.Inf, 1),
		clock:         time.Now,
	}

	require.NoError(t, e.Tick(context.Background()))
	current, ok := store.Current()
	require.True(t, ok)
	require.Equal(t, "v0002.01.01-001", current.Version)
}

func TestFlushLedger_PushesAndMarksSynced(t *testing.T) {
	records := []ledger.Record{{ID: "r1"}, {ID: "r2"}}
	local := newFakeLocalLedger(records)
	pusher := &fakePusher{}

	e := newEngine(t, &fakePolicyPuller{bundle: validBundle(t, "v0001.01.01-001")},
		&fakeRevocationPuller{full: true}, pusher, local)

	require.NoError(t, e.flushLedger(context.Background()))
	require.Len(t, pusher.pushed, 2)

	remaining, err := local.Unsynced(context.Background(), 10)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

func TestFlushLedger_NoOpWhenEmpty(t *testing.T) {
	pusher := &fakePusher{}
	e := newEngine(t, &fakePolicyPuller{bundle: validBundle(t, "v0001.01.01-001")},
		&fakeRevocationPuller{full: true}, pusher, newFakeLocalLedger(nil))

	require.NoError(t, e.flushLedger(context.Background()))
	require.Empty(t, pusher.pushed)
}

// S4: degraded mode — after the first successful tick, a run of failures
// increments ConsecutiveMisses without touching the last-known bundle.
func TestTick_S4_DegradedThenRecovers(t *testing.T) {
	pp := &fakePolicyPuller{bundle: validBundle(t, "v0001.01.01-001")}
	rp := &fakeRevocationPuller{full: true}
	e := newEngine(t, pp, rp, &fakePusher{}, newFakeLocalLedger(nil))

	require.NoError(t, e.Tick(context.Background()))
	require.Equal(t, ModeOnline, e.Status().Mode)

	pp.err = errors.New("control plane unreachable")
	require.Error(t, e.Tick(context.Background()))
	require.Error(t, e.Tick(context.Background()))
	require.Equal(t, ModeDegraded, e.Status().Mode)
	require.Equal(t, 2, e.Status().ConsecutiveMisses)

	pp.err = nil
	pp.bundle = validBundle(t, "v0001.01.02-001")
	require.NoError(t, e.Tick(context.Background()))
	require.Equal(t, ModeOnline, e.Status().Mode)
	require.Equal(t, 0, e.Status().ConsecutiveMisses)
}
