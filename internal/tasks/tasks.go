// Package tasks implements the task queue and delegator (§4.6): four
// priority FIFO queues, capability-matched agent selection, deadline
// derivation, and the retry/timeout sweep.
package tasks

import (
	"container/ring"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ajitpratap0/cryptofunk/internal/errs"
	"github.com/ajitpratap0/cryptofunk/internal/registry"
)

// Priority is a task's dispatch priority, also driving its deadline (§3).
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// priorityOrder is the dequeue scan order: Critical -> High -> Medium -> Low.
var priorityOrder = []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

// deadlineFor returns the priority-derived deadline duration (§3).
func deadlineFor(p Priority) time.Duration {
	switch p {
	case PriorityCritical:
		return 5 * time.Second
	case PriorityHigh:
		return 30 * time.Second
	case PriorityMedium:
		return 120 * time.Second
	default:
		return 300 * time.Second
	}
}

// Status is a task's lifecycle state. Transitions follow the DAG in §3:
// Pending -> Assigned -> InProgress -> {Completed|Failed|Cancelled|TimedOut}.
type Status string

const (
	StatusPending     Status = "pending"
	StatusAssigned    Status = "assigned"
	StatusInProgress  Status = "in_progress"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
	StatusTimedOut    Status = "timed_out"
)

func (s Status) terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	default:
		return false
	}
}

// Task is one unit of delegated work (§3).
type Task struct {
	ID                   string
	Kind                 string
	Priority             Priority
	Status               Status
	Payload              any
	RequiredCapabilities []string
	PreferredAgentKind   string
	Deadline             time.Time
	RetryCount           int
	MaxRetries           int
	AssignedAgentID      string
	CreatedAt            time.Time
}

// Result is a TaskResult (§3).
type Result struct {
	TaskID      string
	AgentID     string
	Success     bool
	Value       any
	Err         error
	StartedAt   time.Time
	CompletedAt time.Time
	ExecutionMs float64
}

// Stats is the rolling delegator stats snapshot (§4.6).
type Stats struct {
	CompletedTasks int64
	FailedTasks    int64
	TimedOutTasks  int64
	AvgExecutionMs float64
	QueueSizes     map[Priority]int
	ActiveCount    int
}

// Delegator owns the four priority queues, the active set, and bounded
// history. It delegates agent selection to a registry.Registry.
type Delegator struct {
	log zerolog.Logger
	reg *registry.Registry

	mu       sync.Mutex
	queues   map[Priority][]*Task
	active   map[string]*Task
	history  *ring.Ring
	histSize int

	completed int64
	failed    int64
	timedOut  int64
	avgExecMs float64
}

const historyCapacity = 1000

// New creates a Delegator backed by reg for capability-matched agent selection.
func New(log zerolog.Logger, reg *registry.Registry) *Delegator {
	return &Delegator{
		log:      log.With().Str("component", "tasks").Logger(),
		reg:      reg,
		queues:   make(map[Priority][]*Task),
		active:   make(map[string]*Task),
		history:  ring.New(historyCapacity),
		histSize: historyCapacity,
	}
}

// Enqueue creates a new Pending task with a priority-derived deadline and
// places it at the back of its priority queue.
func (d *Delegator) Enqueue(kind string, priority Priority, payload any, requiredCapabilities []string, preferredKind string, maxRetries int) *Task {
	t := &Task{
		ID:                   uuid.NewString(),
		Kind:                 kind,
		Priority:             priority,
		Status:               StatusPending,
		Payload:              payload,
		RequiredCapabilities: requiredCapabilities,
		PreferredAgentKind:   preferredKind,
		Deadline:             time.Now().Add(deadlineFor(priority)),
		MaxRetries:           maxRetries,
		CreatedAt:            time.Now(),
	}
	d.mu.Lock()
	d.queues[priority] = append(d.queues[priority], t)
	d.mu.Unlock()
	return t
}

// DequeueNext scans queues Critical -> High -> Medium -> Low and attempts to
// assign the next eligible task to the best matching agent (§4.6 steps 1-4).
// Returns (nil, ErrNoAgent) if a task exists but no agent is available; the
// task is returned to its queue in that case.
func (d *Delegator) DequeueNext() (*Task, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, p := range priorityOrder {
		q := d.queues[p]
		if len(q) == 0 {
			continue
		}
		t := q[0]

		agentID, ok := d.reg.BestAvailable(registry.Query{
			Capabilities:  t.RequiredCapabilities,
			PreferredKind: t.PreferredAgentKind,
		})
		if !ok {
			return nil, errs.ErrNoAgent
		}

		d.queues[p] = q[1:]
		t.Status = StatusAssigned
		t.AssignedAgentID = agentID
		d.active[t.ID] = t
		d.reg.SetStatus(agentID, registry.StatusBusy)
		return t, nil
	}
	return nil, nil
}

// Start transitions a task Assigned -> InProgress.
func (d *Delegator) Start(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.active[taskID]
	if !ok || t.Status != StatusAssigned {
		return false
	}
	t.Status = StatusInProgress
	return true
}

// Complete processes a TaskResult: on success, moves to history as
// Completed; on failure, retries (re-enqueue with retry_count+1, same
// priority) if retry_count < max_retries and the task hasn't expired,
// otherwise records Failed (§4.6 Completion).
func (d *Delegator) Complete(result Result) {
	d.mu.Lock()
	defer d.mu.Unlock()

	t, ok := d.active[result.TaskID]
	if !ok {
		return
	}
	delete(d.active, result.TaskID)
	d.reg.SetStatus(result.AgentID, registry.StatusIdle)
	d.reg.RecordOutcome(result.AgentID, result.Success, result.ExecutionMs)

	d.updateAvgExecMs(result.ExecutionMs)

	if result.Success {
		t.Status = StatusCompleted
		d.completed++
		d.pushHistory(t)
		return
	}

	if t.RetryCount < t.MaxRetries && time.Now().Before(t.Deadline) {
		t.RetryCount++
		t.Status = StatusPending
		t.AssignedAgentID = ""
		d.queues[t.Priority] = append(d.queues[t.Priority], t)
		return
	}

	t.Status = StatusFailed
	d.failed++
	d.pushHistory(t)
}

func (d *Delegator) updateAvgExecMs(ms float64) {
	const alpha = 0.1
	if d.avgExecMs == 0 {
		d.avgExecMs = ms
		return
	}
	d.avgExecMs = d.avgExecMs + alpha*(ms-d.avgExecMs)
}

func (d *Delegator) pushHistory(t *Task) {
	d.history.Value = *t
	d.history = d.history.Next()
}

// SweepExpired purges tasks past their deadline from both the queues and the
// active set, transitioning them to TimedOut (§4.6).
func (d *Delegator) SweepExpired() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	purged := 0

	for p, q := range d.queues {
		var kept []*Task
		for _, t := range q {
			if now.After(t.Deadline) {
				t.Status = StatusTimedOut
				d.timedOut++
				d.pushHistory(t)
				purged++
			} else {
				kept = append(kept, t)
			}
		}
		d.queues[p] = kept
	}

	for id, t := range d.active {
		if now.After(t.Deadline) {
			t.Status = StatusTimedOut
			d.timedOut++
			d.pushHistory(t)
			delete(d.active, id)
			if t.AssignedAgentID != "" {
				d.reg.SetStatus(t.AssignedAgentID, registry.StatusIdle)
			}
			purged++
		}
	}
	return purged
}

// Cancel transitions a Pending or Assigned task to Cancelled; terminal
// tasks never transition again (P6).
func (d *Delegator) Cancel(taskID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if t, ok := d.active[taskID]; ok {
		if t.Status.terminal() {
			return false
		}
		t.Status = StatusCancelled
		delete(d.active, taskID)
		d.pushHistory(t)
		return true
	}

	for p, q := range d.queues {
		for i, t := range q {
			if t.ID == taskID {
				t.Status = StatusCancelled
				d.queues[p] = append(q[:i], q[i+1:]...)
				d.pushHistory(t)
				return true
			}
		}
	}
	return false
}

// Stats returns a snapshot of rolling delegator statistics.
func (d *Delegator) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	sizes := make(map[Priority]int, len(priorityOrder))
	for _, p := range priorityOrder {
		sizes[p] = len(d.queues[p])
	}
	return Stats{
		CompletedTasks: d.completed,
		FailedTasks:    d.failed,
		TimedOutTasks:  d.timedOut,
		AvgExecutionMs: d.avgExecMs,
		QueueSizes:     sizes,
		ActiveCount:    len(d.active),
	}
}

// History returns up to the last historyCapacity terminal tasks, oldest first.
func (d *Delegator) History() []Task {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []Task
	d.history.Do(func(v any) {
		if v == nil {
			return
		}
		out = append(out, v.(Task))
	})
	return out
}

// RunSweepLoop periodically invokes SweepExpired until done is closed.
func (d *Delegator) RunSweepLoop(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			d.SweepExpired()
		}
	}
}
