package registry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestRegisterHeartbeatAndFind(t *testing.T) {
	r := New(zerolog.Nop(), time.Hour, time.Hour)
	id := r.Register("scout", []string{"risk_analysis"})

	found := r.FindAvailable(Query{Capabilities: []string{"risk_analysis"}})
	require.Equal(t, []string{id}, found)

	require.True(t, r.Heartbeat(id))
}

func TestFindAvailableNeverReturnsBusyInactiveOrFailed(t *testing.T) {
	r := New(zerolog.Nop(), time.Hour, time.Hour)
	busy := r.Register("scout", nil)
	r.SetStatus(busy, StatusBusy)

	inactive := r.Register("scout", nil)
	r.SetStatus(inactive, StatusInactive)

	failed := r.Register("scout", nil)
	r.SetStatus(failed, StatusFailed)

	idle := r.Register("scout", nil)

	found := r.FindAvailable(Query{})
	require.Equal(t, []string{idle}, found)
}

func TestFindAvailableDeterministicOrderBySuccessThenID(t *testing.T) {
	r := New(zerolog.Nop(), time.Hour, time.Hour)
	a := r.Register("scout", nil)
	b := r.Register("scout", nil)
	r.RecordOutcome(a, true, 100)
	r.RecordOutcome(a, true, 100)
	r.RecordOutcome(b, false, 100)

	found := r.FindAvailable(Query{})
	require.Equal(t, []string{a, b}, found, "higher success rate must sort first")
}

// §4.7 sweep: heartbeat_timeout exceeded -> Inactive; repeated misses -> Failed.
func TestSweepHeartbeatsDemotesOnTimeoutThenFailed(t *testing.T) {
	r := New(zerolog.Nop(), time.Millisecond, time.Millisecond)
	id := r.Register("scout", nil)

	time.Sleep(5 * time.Millisecond)
	r.SweepHeartbeats()
	a, _ := r.Get(id)
	require.Equal(t, StatusInactive, a.Status)

	for i := 0; i < maxMissedBeforeFailed-1; i++ {
		time.Sleep(5 * time.Millisecond)
		r.SweepHeartbeats()
	}
	a, _ = r.Get(id)
	require.Equal(t, StatusFailed, a.Status)
}

func TestHeartbeatRevivesInactiveAgent(t *testing.T) {
	r := New(zerolog.Nop(), time.Millisecond, time.Millisecond)
	id := r.Register("scout", nil)
	time.Sleep(5 * time.Millisecond)
	r.SweepHeartbeats()

	a, _ := r.Get(id)
	require.Equal(t, StatusInactive, a.Status)

	r.Heartbeat(id)
	a, _ = r.Get(id)
	require.Equal(t, StatusIdle, a.Status)
}

func TestBestAvailableAppliesScoringFormula(t *testing.T) {
	r := New(zerolog.Nop(), time.Hour, time.Hour)
	fast := r.Register("scout", []string{"risk_analysis"})
	slow := r.Register("scout", []string{"risk_analysis"})

	r.RecordOutcome(fast, true, 1000)
	r.RecordOutcome(slow, true, 1000)
	// Push fast's latency down and slow's up via repeated EMA updates.
	for i := 0; i < 20; i++ {
		r.RecordOutcome(fast, true, 100)
		r.RecordOutcome(slow, true, 50000)
	}

	id, ok := r.BestAvailable(Query{Capabilities: []string{"risk_analysis"}})
	require.True(t, ok)
	require.Equal(t, fast, id)
}

func TestBestAvailableReturnsFalseWhenNoneMatch(t *testing.T) {
	r := New(zerolog.Nop(), time.Hour, time.Hour)
	_, ok := r.BestAvailable(Query{Capabilities: []string{"nonexistent_capability"}})
	require.False(t, ok)
}
