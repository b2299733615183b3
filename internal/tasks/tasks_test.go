package tasks

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
	"github.com/ajitpratap0/cryptofunk/internal/registry"
)

func newTestDelegator(t *testing.T) (*Delegator, *registry.Registry) {
	t.Helper()
	reg := registry.New(zerolog.Nop(), time.Hour, time.Hour)
	return New(zerolog.Nop(), reg), reg
}

func TestDequeueScansPriorityOrder(t *testing.T) {
	d, reg := newTestDelegator(t)
	reg.Register("scout", nil)

	d.Enqueue("scan", PriorityLow, nil, nil, "", 0)
	d.Enqueue("scan", PriorityCritical, nil, nil, "", 0)
	d.Enqueue("scan", PriorityMedium, nil, nil, "", 0)

	task, err := d.DequeueNext()
	require.NoError(t, err)
	require.Equal(t, PriorityCritical, task.Priority)
}

func TestDequeueReturnsErrNoAgentWhenNoneAvailable(t *testing.T) {
	d, _ := newTestDelegator(t)
	d.Enqueue("scan", PriorityHigh, nil, []string{"risk_analysis"}, "", 0)

	_, err := d.DequeueNext()
	require.ErrorIs(t, err, errs.ErrNoAgent)
}

// P6 — a terminal task never transitions again.
func TestTerminalTaskNeverTransitionsAgain(t *testing.T) {
	d, reg := newTestDelegator(t)
	reg.Register("scout", nil)
	task := d.Enqueue("scan", PriorityHigh, nil, nil, "", 0)

	assigned, err := d.DequeueNext()
	require.NoError(t, err)
	require.Equal(t, task.ID, assigned.ID)

	d.Complete(Result{TaskID: task.ID, AgentID: assigned.AssignedAgentID, Success: true})
	require.True(t, task.Status.terminal())
	require.False(t, d.Cancel(task.ID), "a completed task must not accept further transitions")
}

// P9 — a re-enqueued task keeps its id and payload; retry_count increases
// monotonically up to max_retries.
func TestRetryPreservesIdentityAndIncrementsRetryCount(t *testing.T) {
	d, reg := newTestDelegator(t)
	reg.Register("scout", nil)

	task := d.Enqueue("scan", PriorityHigh, "payload-v1", nil, "", 2)
	originalID := task.ID

	assigned, err := d.DequeueNext()
	require.NoError(t, err)
	d.Complete(Result{TaskID: assigned.ID, AgentID: assigned.AssignedAgentID, Success: false})
	require.Equal(t, originalID, task.ID)
	require.Equal(t, "payload-v1", task.Payload)
	require.Equal(t, 1, task.RetryCount)
	require.Equal(t, StatusPending, task.Status)

	assigned2, err := d.DequeueNext()
	require.NoError(t, err)
	require.Equal(t, originalID, assigned2.ID)
	d.Complete(Result{TaskID: assigned2.ID, AgentID: assigned2.AssignedAgentID, Success: false})
	require.Equal(t, 2, task.RetryCount)

	// max_retries=2 allows a third attempt; its failure exhausts the retries.
	assigned3, err := d.DequeueNext()
	require.NoError(t, err)
	require.Equal(t, originalID, assigned3.ID)
	d.Complete(Result{TaskID: assigned3.ID, AgentID: assigned3.AssignedAgentID, Success: false})
	require.Equal(t, 2, task.RetryCount)
	require.Equal(t, StatusFailed, task.Status, "exhausting max_retries records Failed")
}

// S5 — task past its deadline is swept to TimedOut.
func TestSweepExpiredTransitionsActiveTaskToTimedOut(t *testing.T) {
	d, reg := newTestDelegator(t)
	reg.Register("scout", nil)

	task := d.Enqueue("scan", PriorityHigh, nil, nil, "", 2)
	task.Deadline = time.Now().Add(-time.Millisecond)

	assigned, err := d.DequeueNext()
	require.NoError(t, err)
	require.Equal(t, task.ID, assigned.ID)

	purged := d.SweepExpired()
	require.Equal(t, 1, purged)
	require.Equal(t, StatusTimedOut, task.Status)

	stats := d.Stats()
	require.EqualValues(t, 1, stats.TimedOutTasks)
}

func TestSweepExpiredPurgesFromQueueToo(t *testing.T) {
	d, _ := newTestDelegator(t)
	task := d.Enqueue("scan", PriorityLow, nil, nil, "", 0)
	task.Deadline = time.Now().Add(-time.Millisecond)

	purged := d.SweepExpired()
	require.Equal(t, 1, purged)
	require.Equal(t, StatusTimedOut, task.Status)

	stats := d.Stats()
	require.Equal(t, 0, stats.QueueSizes[PriorityLow])
}

func TestStatsTracksQueueSizesAndActiveCount(t *testing.T) {
	d, reg := newTestDelegator(t)
	reg.Register("scout", nil)

	d.Enqueue("scan", PriorityLow, nil, nil, "", 0)
	d.Enqueue("scan", PriorityHigh, nil, nil, "", 0)
	_, err := d.DequeueNext()
	require.NoError(t, err)

	stats := d.Stats()
	require.Equal(t, 1, stats.ActiveCount)
	require.Equal(t, 1, stats.QueueSizes[PriorityLow])
	require.Equal(t, 0, stats.QueueSizes[PriorityHigh])
}
