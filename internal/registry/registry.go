// Package registry implements the agent registry and heartbeat sweep
// (§4.7): agent lifecycle, availability rules, and deterministic selection
// ordering for the task delegator.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status is an agent's lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusBusy     Status = "busy"
	StatusInactive Status = "inactive"
	StatusFailed   Status = "failed"
)

// Agent is one registered worker in the swarm.
type Agent struct {
	ID              string
	Kind            string
	Capabilities    map[string]bool
	Status          Status
	SuccessRate     float64
	AvgLatencyMs    float64
	LastHeartbeat   time.Time
	missedHeartbeats int
}

func (a *Agent) hasCapabilities(required []string) bool {
	for _, c := range required {
		if !a.Capabilities[c] {
			return false
		}
	}
	return true
}

// clampedLatency mirrors §4.6's min(avg_latency_ms, 60000)/60000.
func (a *Agent) clampedLatency() float64 {
	l := a.AvgLatencyMs
	if l > 60000 {
		l = 60000
	}
	return l / 60000
}

// Query filters find_available results (§4.7).
type Query struct {
	Kind           string // optional: restrict to agents of this kind
	Capabilities   []string
	PreferredKind  string // optional: prefer, but don't require, this kind
}

const (
	defaultHeartbeatInterval = 10 * time.Second
	defaultHeartbeatTimeout  = 30 * time.Second
	maxMissedBeforeFailed    = 3
)

// Registry tracks every agent's lifecycle and runs the heartbeat sweep.
type Registry struct {
	log zerolog.Logger

	mu     sync.RWMutex
	agents map[string]*Agent

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
}

// New creates a Registry with the given heartbeat interval/timeout.
func New(log zerolog.Logger, heartbeatInterval, heartbeatTimeout time.Duration) *Registry {
	if heartbeatInterval <= 0 {
		heartbeatInterval = defaultHeartbeatInterval
	}
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = defaultHeartbeatTimeout
	}
	return &Registry{
		log:               log.With().Str("component", "registry").Logger(),
		agents:            make(map[string]*Agent),
		heartbeatInterval: heartbeatInterval,
		heartbeatTimeout:  heartbeatTimeout,
	}
}

// Register adds a new agent and returns its assigned id.
func (r *Registry) Register(kind string, capabilities []string) string {
	id := uuid.NewString()
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[id] = &Agent{
		ID:            id,
		Kind:          kind,
		Capabilities:  caps,
		Status:        StatusIdle,
		SuccessRate:   0.5,
		LastHeartbeat: time.Now(),
	}
	return id
}

// Unregister removes an agent entirely.
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, id)
}

// SetStatus transitions an agent's status directly (e.g. Busy on assignment).
func (r *Registry) SetStatus(id string, status Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	a.Status = status
	return true
}

// Heartbeat refreshes an agent's liveness and clears its missed-beat count.
func (r *Registry) Heartbeat(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return false
	}
	a.LastHeartbeat = time.Now()
	a.missedHeartbeats = 0
	if a.Status == StatusInactive {
		a.Status = StatusIdle
	}
	return true
}

// RecordOutcome updates an agent's rolling success rate and latency EMA
// (α=0.1, matching the teacher's heartbeat/stats smoothing idiom).
func (r *Registry) RecordOutcome(id string, success bool, latencyMs float64) {
	const alpha = 0.1
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.agents[id]
	if !ok {
		return
	}
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	a.SuccessRate = a.SuccessRate + alpha*(outcome-a.SuccessRate)
	if a.AvgLatencyMs == 0 {
		a.AvgLatencyMs = latencyMs
	} else {
		a.AvgLatencyMs = a.AvgLatencyMs + alpha*(latencyMs-a.AvgLatencyMs)
	}
}

// Get returns a copy of one agent's current state.
func (r *Registry) Get(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return Agent{}, false
	}
	return *a, true
}

// FindAvailable returns agent ids matching Query, excluding Inactive/Failed/
// Busy agents, ordered deterministically: preferred kind first, then by
// rolling success rate descending, then by id ascending (§4.7).
func (r *Registry) FindAvailable(q Query) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var candidates []*Agent
	for _, a := range r.agents {
		if a.Status == StatusInactive || a.Status == StatusFailed || a.Status == StatusBusy {
			continue
		}
		if q.Kind != "" && a.Kind != q.Kind {
			continue
		}
		if !a.hasCapabilities(q.Capabilities) {
			continue
		}
		candidates = append(candidates, a)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if q.PreferredKind != "" {
			aPref := a.Kind == q.PreferredKind
			bPref := b.Kind == q.PreferredKind
			if aPref != bPref {
				return aPref
			}
		}
		if a.SuccessRate != b.SuccessRate {
			return a.SuccessRate > b.SuccessRate
		}
		return a.ID < b.ID
	})

	ids := make([]string, len(candidates))
	for i, a := range candidates {
		ids[i] = a.ID
	}
	return ids
}

// score implements §4.6 step 3's candidate scoring formula.
func score(a *Agent) float64 {
	return 0.7*a.SuccessRate + 0.3*(1-a.clampedLatency())
}

// BestAvailable applies Query then the task delegator's scoring formula,
// breaking ties by earlier LastHeartbeat. Returns ("", false) if none match.
func (r *Registry) BestAvailable(q Query) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Agent
	var bestScore float64
	for _, a := range r.agents {
		if a.Status == StatusInactive || a.Status == StatusFailed || a.Status == StatusBusy {
			continue
		}
		if q.Kind != "" && a.Kind != q.Kind {
			continue
		}
		if q.PreferredKind != "" && a.Kind != q.PreferredKind {
			continue
		}
		if !a.hasCapabilities(q.Capabilities) {
			continue
		}
		s := score(a)
		switch {
		case best == nil:
			best, bestScore = a, s
		case s > bestScore:
			best, bestScore = a, s
		case s == bestScore && a.LastHeartbeat.Before(best.LastHeartbeat):
			best, bestScore = a, s
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// SweepHeartbeats runs one pass of the heartbeat sweep (§4.7): agents past
// heartbeat_timeout go Inactive; repeated misses demote to Failed.
func (r *Registry) SweepHeartbeats() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, a := range r.agents {
		if a.Status == StatusFailed {
			continue
		}
		if now.Sub(a.LastHeartbeat) > r.heartbeatTimeout {
			a.missedHeartbeats++
			if a.missedHeartbeats >= maxMissedBeforeFailed {
				a.Status = StatusFailed
			} else {
				a.Status = StatusInactive
			}
		}
	}
}

// RunSweepLoop runs SweepHeartbeats on a ticker until ctx-like stop is
// signaled by closing done.
func (r *Registry) RunSweepLoop(done <-chan struct{}) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.SweepHeartbeats()
		}
	}
}
