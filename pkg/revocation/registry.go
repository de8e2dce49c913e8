// Package revocation implements the revocation registry (C2): a monotonic
// set of revoked passport jtis, diffable by snapshot id so the edge can
// pull incremental updates and fall back to a full snapshot on any gap.
package revocation

import "sync"

// Registry holds revoked jtis with a monotonically increasing snapshot id.
// Every Add advances the snapshot id, recording which id a jti became
// visible at so DiffSince can reconstruct exactly what changed.
type Registry struct {
	mu       sync.RWMutex
	revoked  map[string]uint64 // jti -> snapshot id at which it was added
	addOrder []string          // insertion order, parallel to snapshot ids
	nextID   uint64
}

// New creates an empty revocation registry.
func New() *Registry {
	return &Registry{
		revoked: make(map[string]uint64),
	}
}

// Add adds jti to the revoked set. Idempotent: revoking an already-revoked
// jti does not advance the snapshot id or create a duplicate entry.
func (r *Registry) Add(jti string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.revoked[jti]; exists {
		return
	}
	r.nextID++
	r.revoked[jti] = r.nextID
	r.addOrder = append(r.addOrder, jti)
}

// Contains reports whether jti is currently revoked. Safe to call
// concurrently with Add; a single call observes a consistent snapshot.
func (r *Registry) Contains(jti string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.revoked[jti]
	return ok
}

// Snapshot returns the current snapshot id and the full set of revoked
// jtis in the order they were added.
func (r *Registry) Snapshot() (uint64, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.addOrder))
	copy(out, r.addOrder)
	return r.nextID, out
}

// DiffSince returns the jtis added after since. Applying DiffSince results
// from every prior snapshot id in order yields the same set Snapshot
// returns from the latest id. DiffSince does no gap detection of its own;
// the control plane's revocation-list handler compares since against
// CurrentSnapshotID before calling it.
func (r *Registry) DiffSince(since uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var added []string
	for _, jti := range r.addOrder {
		if r.revoked[jti] > since {
			added = append(added, jti)
		}
	}
	return added
}

// CurrentSnapshotID returns the latest snapshot id without materializing
// the full set, for cheap gap detection.
func (r *Registry) CurrentSnapshotID() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID
}

// ApplyDiff merges a diff (jtis added upstream) into a local replica
// registry without trying to reconstruct the upstream's snapshot id
// sequence — used by the edge gateway after a successful PullRevocations.
func (r *Registry) ApplyDiff(jtis []string) {
	for _, jti := range jtis {
		r.Add(jti)
	}
}

// ReplaceWithSnapshot discards the current set and replaces it with a full
// snapshot pulled from upstream, used on a detected sequence gap (spec
// §4.2 "the edge falls back to full snapshot on any sequence gap").
func (r *Registry) ReplaceWithSnapshot(jtis []string) {
	r.mu.Lock()
	r.revoked = make(map[string]uint64, len(jtis))
	r.addOrder = make([]string, 0, len(jtis))
	r.nextID = 0
	r.mu.Unlock()

	r.ApplyDiff(jtis)
}
