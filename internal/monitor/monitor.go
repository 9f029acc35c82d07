// Package monitor implements the self-healing sweep: it watches active
// workflows for deadlocks and overrunning tasks, escalates, and forces
// recovery when the grace window passes without progress.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkorhonen/overseer/internal/bus"
	"github.com/pkorhonen/overseer/internal/scheduler"
	"github.com/pkorhonen/overseer/internal/workflow"
	"github.com/pkorhonen/overseer/pkg/models"
)

// Target is the surface the monitor heals. The workflow engine implements it.
type Target interface {
	// Snapshots returns the current view of every workflow.
	Snapshots() []workflow.Snapshot
	// FailWorkflow force-fails a workflow that cannot recover.
	FailWorkflow(id, reason string) error
	// CancelTask cancels one running task; the scheduler's retry path
	// decides what happens next.
	CancelTask(workflowID, taskID string) bool
}

// TimeoutPolicy returns the task timeout for an agent type.
type TimeoutPolicy func(agentType string) time.Duration

// Monitor periodically sweeps the target for stuck workflows.
type Monitor struct {
	target   Target
	bus      *bus.Bus
	interval time.Duration
	grace    time.Duration
	timeout  TimeoutPolicy
	now      func() time.Time

	mu sync.Mutex
	// suspected maps workflow ID to when it was first seen deadlocked,
	// together with the progress marker observed at that time.
	suspected map[string]suspicion
	// cancelled tracks tasks already cancelled for timeout, keyed by
	// workflow ID + task ID, so one overrun is cancelled once per dispatch.
	cancelled map[string]time.Time
}

// suspicion records a deadlock candidate between sweeps.
type suspicion struct {
	since time.Time
	done  int
}

// New creates a monitor. interval is the sweep period; grace is how long a
// suspected deadlock may persist after escalation before the workflow is
// force-failed.
func New(target Target, b *bus.Bus, interval, grace time.Duration, timeout TimeoutPolicy) *Monitor {
	if timeout == nil {
		timeout = func(string) time.Duration { return 0 }
	}
	return &Monitor{
		target:    target,
		bus:       b,
		interval:  interval,
		grace:     grace,
		timeout:   timeout,
		now:       time.Now,
		suspected: make(map[string]suspicion),
		cancelled: make(map[string]time.Time),
	}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep inspects every workflow once. Exported so tests and callers can
// drive the monitor without the ticker.
func (m *Monitor) Sweep() {
	now := m.now()
	active := make(map[string]bool)

	for _, snap := range m.target.Snapshots() {
		if snap.Status.Terminal() {
			continue
		}
		active[snap.ID] = true
		m.checkTimeouts(snap, now)
		m.checkDeadlock(snap, now)
	}

	// Forget state for workflows that finished or recovered.
	m.mu.Lock()
	for id := range m.suspected {
		if !active[id] {
			delete(m.suspected, id)
		}
	}
	m.mu.Unlock()
}

// checkTimeouts cancels running tasks that exceeded their agent type's
// timeout. The cancellation flows through the scheduler's report path, so
// the task is retried within its budget before failing.
func (m *Monitor) checkTimeouts(snap workflow.Snapshot, now time.Time) {
	for _, task := range snap.RunningTasks {
		limit := m.timeout(task.AgentType)
		if limit <= 0 || task.StartedAt.IsZero() || now.Sub(task.StartedAt) < limit {
			continue
		}

		key := snap.ID + "/" + task.ID
		m.mu.Lock()
		if started, ok := m.cancelled[key]; ok && started.Equal(task.StartedAt) {
			m.mu.Unlock()
			continue
		}
		m.cancelled[key] = task.StartedAt
		m.mu.Unlock()

		m.escalate(snap.ID, models.PriorityHigh, map[string]interface{}{
			"workflow_id": snap.ID,
			"task_id":     task.ID,
			"agent_type":  task.AgentType,
			"reason":      fmt.Sprintf("task running %s, timeout %s", now.Sub(task.StartedAt).Round(time.Second), limit),
		})
		m.target.CancelTask(snap.ID, task.ID)
	}
}

// checkDeadlock detects workflows in EXECUTING with nothing running and no
// progress since the previous sweep. First detection escalates; persisting
// past the grace window force-fails the workflow.
func (m *Monitor) checkDeadlock(snap workflow.Snapshot, now time.Time) {
	if snap.Status != models.StatusExecuting || len(snap.RunningTasks) > 0 {
		m.clear(snap.ID)
		return
	}

	m.mu.Lock()
	s, ok := m.suspected[snap.ID]
	if ok && snap.TasksDone > s.done {
		// Progress since the suspicion was raised; start over.
		delete(m.suspected, snap.ID)
		ok = false
	}
	if !ok {
		m.suspected[snap.ID] = suspicion{since: now, done: snap.TasksDone}
		m.mu.Unlock()
		m.escalate(snap.ID, models.PriorityCritical, map[string]interface{}{
			"workflow_id": snap.ID,
			"reason":      "no running tasks and no dispatch progress",
		})
		return
	}
	stuck := now.Sub(s.since)
	m.mu.Unlock()

	if stuck >= m.grace {
		m.clear(snap.ID)
		m.target.FailWorkflow(snap.ID, fmt.Sprintf(
			"deadlock detected: no progress for %s", stuck.Round(time.Second)))
	}
}

// clear drops the suspicion for a workflow.
func (m *Monitor) clear(workflowID string) {
	m.mu.Lock()
	delete(m.suspected, workflowID)
	m.mu.Unlock()
}

// escalate posts an ESCALATE message on the bus.
func (m *Monitor) escalate(workflowID string, priority models.Priority, payload map[string]interface{}) {
	if m.bus == nil {
		return
	}
	m.bus.Send(&models.Message{
		Sender:   scheduler.MonitorInbox,
		Receiver: "board",
		Intent:   models.IntentEscalate,
		Priority: priority,
		Payload:  payload,
	})
}
