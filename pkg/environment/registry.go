// Package environment implements the heartbeat/location table (part of
// C7): liveness classification, forbidden-environment-transition alerts,
// and fleet status reporting. The registry holds no persistent state; a
// restart resets every agent to unknown (spec §4.7).
package environment

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/Ritinpaul/AgentGovern-OS/pkg/passport"
)

// Liveness buckets an agent's last-seen age (spec §4.7).
type Liveness string

const (
	LivenessAlive   Liveness = "alive"
	LivenessStale   Liveness = "stale"
	LivenessDead    Liveness = "dead"
	LivenessUnknown Liveness = "unknown"
)

const (
	aliveThreshold = 90 * time.Second
	staleThreshold = 300 * time.Second
)

// Classify buckets age since last heartbeat into a liveness state.
func Classify(age time.Duration) Liveness {
	switch {
	case age < aliveThreshold:
		return LivenessAlive
	case age < staleThreshold:
		return LivenessStale
	default:
		return LivenessDead
	}
}

// DefaultAlertRingSize and MinAlertRingSize bound the recent-alerts ring
// (spec §4.7 "bounded recent-alerts ring of size >= 10").
const (
	DefaultAlertRingSize = 32
	MinAlertRingSize     = 10
)

// Transition is an (from, to) environment pair.
type Transition struct {
	From passport.Environment
	To   passport.Environment
}

// Alert is raised when an agent's location jumps across a forbidden
// transition.
type Alert struct {
	AgentID   string
	From      passport.Environment
	To        passport.Environment
	HostID    string
	Timestamp time.Time
}

// Location is one agent's last-known position.
type Location struct {
	AgentID     string
	Environment passport.Environment
	HostID      string
	Region      string
	AgentVersion string
	LastSeen    time.Time
}

// Registry is the in-memory heartbeat table.
type Registry struct {
	mu        sync.RWMutex
	locations map[string]Location
	forbidden map[Transition]bool
	alerts    []Alert
	ringSize  int
	clock     func() time.Time
}

// NewRegistry builds a registry with the default forbidden-transition set
// (spec §4.7 "the default is {(client, cloud)}").
func NewRegistry() *Registry {
	return &Registry{
		locations: make(map[string]Location),
		forbidden: map[Transition]bool{
			{From: passport.EnvClient, To: passport.EnvCloud}: true,
		},
		ringSize: DefaultAlertRingSize,
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// WithRingSize overrides the recent-alerts ring size, floored at
// MinAlertRingSize.
func (r *Registry) WithRingSize(size int) *Registry {
	if size < MinAlertRingSize {
		size = MinAlertRingSize
	}
	r.ringSize = size
	return r
}

// WithForbiddenTransitions replaces the forbidden-transition set
// (configuration-driven per spec §4.7).
func (r *Registry) WithForbiddenTransitions(transitions []Transition) *Registry {
	forbidden := make(map[Transition]bool, len(transitions))
	for _, t := range transitions {
		forbidden[t] = true
	}
	r.forbidden = forbidden
	return r
}

// HeartbeatResult is Heartbeat's return value.
type HeartbeatResult struct {
	Status string // "ok" | "alert"
	Alert  *Alert
}

// Heartbeat updates the in-memory table for agentID and reports whether the
// transition from the previously observed environment is forbidden.
func (r *Registry) Heartbeat(agentID string, env passport.Environment, hostID, region, agentVersion string) HeartbeatResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	prev, hadPrev := r.locations[agentID]

	r.locations[agentID] = Location{
		AgentID:      agentID,
		Environment:  env,
		HostID:       hostID,
		Region:       region,
		AgentVersion: agentVersion,
		LastSeen:     now,
	}

	if hadPrev && prev.Environment != env && r.forbidden[Transition{From: prev.Environment, To: env}] {
		alert := Alert{AgentID: agentID, From: prev.Environment, To: env, HostID: hostID, Timestamp: now}
		r.pushAlert(alert)
		return HeartbeatResult{Status: "alert", Alert: &alert}
	}

	return HeartbeatResult{Status: "ok"}
}

func (r *Registry) pushAlert(a Alert) {
	r.alerts = append(r.alerts, a)
	if len(r.alerts) > r.ringSize {
		r.alerts = r.alerts[len(r.alerts)-r.ringSize:]
	}
}

// RecentAlerts returns the alert ring, oldest first.
func (r *Registry) RecentAlerts() []Alert {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Alert, len(r.alerts))
	copy(out, r.alerts)
	return out
}

// FleetStatus summarizes the table by environment and liveness bucket,
// plus the recent-alerts ring (spec §4.7).
type FleetStatus struct {
	ByEnvironment map[passport.Environment]int
	ByLiveness    map[Liveness]int
	RecentAlerts  []Alert
}

func (r *Registry) FleetStatus() FleetStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.clock()
	status := FleetStatus{
		ByEnvironment: make(map[passport.Environment]int),
		ByLiveness:    make(map[Liveness]int),
	}
	for _, loc := range r.locations {
		status.ByEnvironment[loc.Environment]++
		status.ByLiveness[Classify(now.Sub(loc.LastSeen))]++
	}
	status.RecentAlerts = make([]Alert, len(r.alerts))
	copy(status.RecentAlerts, r.alerts)
	return status
}

// Locations returns a sorted-by-agent-id snapshot, useful for admin
// surfaces and tests.
func (r *Registry) Locations() []Location {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Location, 0, len(r.locations))
	for _, loc := range r.locations {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// OutdatedAgentVersions returns every known location whose reported
// agent_version is older than minimum, sorted by agent_id. A location with
// an unparseable or empty version is treated as outdated: a gateway that
// can't prove compliance doesn't get the benefit of the doubt. minimum
// itself must parse as a valid semver or this returns an error.
func (r *Registry) OutdatedAgentVersions(minimum string) ([]Location, error) {
	min, err := semver.NewVersion(minimum)
	if err != nil {
		return nil, fmt.Errorf("environment: minimum agent version %q: %w", minimum, err)
	}

	var out []Location
	for _, loc := range r.Locations() {
		v, err := semver.NewVersion(loc.AgentVersion)
		if err != nil || v.LessThan(min) {
			out = append(out, loc)
		}
	}
	return out, nil
}
