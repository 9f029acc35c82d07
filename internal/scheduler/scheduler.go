// Package scheduler dispatches the tasks of one workflow over its
// dependency graph, bounded by a concurrency limit, and folds agent reports
// back into the graph until the plan completes or can make no progress.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pkorhonen/overseer/internal/agent"
	"github.com/pkorhonen/overseer/internal/bus"
	"github.com/pkorhonen/overseer/internal/graph"
	"github.com/pkorhonen/overseer/internal/memory"
	"github.com/pkorhonen/overseer/internal/metrics"
	"github.com/pkorhonen/overseer/pkg/models"
)

// DefaultConcurrencyLimit caps in-flight tasks when no limit is configured.
const DefaultConcurrencyLimit = 5

// DefaultTaskRetries is the per-task transient failure budget.
const DefaultTaskRetries = 2

// MonitorInbox is the bus receiver escalations are addressed to.
const MonitorInbox = "monitor"

// Inbox returns the bus receiver the scheduler for a workflow listens on.
// Agents report task completion here.
func Inbox(workflowID string) string {
	return "scheduler:" + workflowID
}

// StallError reports a workflow that can make no further progress: nothing
// is running, nothing is ready, and the plan is not complete.
type StallError struct {
	WorkflowID string
}

func (e *StallError) Error() string {
	return fmt.Sprintf("workflow %s stalled: no runnable tasks remain", e.WorkflowID)
}

// TaskFailureError reports a plan that cannot complete because tasks failed
// after exhausting their retries.
type TaskFailureError struct {
	WorkflowID string
	TaskIDs    []string
}

func (e *TaskFailureError) Error() string {
	return fmt.Sprintf("workflow %s: tasks failed: %s",
		e.WorkflowID, strings.Join(e.TaskIDs, ", "))
}

// Stats is a point-in-time view of scheduler progress.
type Stats struct {
	Total     int
	Running   int
	Done      int
	Failed    int
	Cancelled int
	Ready     int
}

// Scheduler runs one workflow's plan.
type Scheduler struct {
	workflowID string
	graph      *graph.DependencyGraph
	registry   *agent.Registry
	bus        *bus.Bus
	memory     memory.Store
	metrics    *metrics.Collector

	limit       int
	taskRetries int

	mu sync.Mutex
	// running maps task ID to the cancel func of its execution.
	running map[string]context.CancelFunc
	// escalated tracks which tasks already raised an unavailable-agent
	// escalation so each is raised once.
	escalated map[string]bool
	// failed accumulates task IDs that exhausted their retries.
	failed []string
}

// Options configures a Scheduler.
type Options struct {
	// ConcurrencyLimit caps in-flight tasks. Zero means the default.
	ConcurrencyLimit int
	// TaskRetries bounds per-task re-dispatch after transient failures.
	// Negative means zero retries; zero means the default.
	TaskRetries int
	// Memory receives task outcome writes. Optional.
	Memory memory.Store
	// Metrics receives task execution events. Optional.
	Metrics *metrics.Collector
}

// New creates a scheduler over a built dependency graph.
func New(workflowID string, g *graph.DependencyGraph, reg *agent.Registry, b *bus.Bus, opts Options) *Scheduler {
	limit := opts.ConcurrencyLimit
	if limit <= 0 {
		limit = DefaultConcurrencyLimit
	}
	retries := opts.TaskRetries
	if retries == 0 {
		retries = DefaultTaskRetries
	} else if retries < 0 {
		retries = 0
	}
	return &Scheduler{
		workflowID:  workflowID,
		graph:       g,
		registry:    reg,
		bus:         b,
		memory:      opts.Memory,
		metrics:     opts.Metrics,
		limit:       limit,
		taskRetries: retries,
		running:     make(map[string]context.CancelFunc),
		escalated:   make(map[string]bool),
	}
}

// Run dispatches ready tasks and consumes agent reports until the plan
// completes, fails, or ctx is cancelled. A failed task blocks only its
// direct dependents; independent branches run to completion before Run
// returns a TaskFailureError.
func (s *Scheduler) Run(ctx context.Context) error {
	inbox := Inbox(s.workflowID)

	for {
		dispatchable := s.dispatch(ctx)

		if s.graph.IsComplete() {
			return nil
		}

		s.mu.Lock()
		runningCount := len(s.running)
		failed := append([]string(nil), s.failed...)
		s.mu.Unlock()

		ready := s.graph.GetReady()
		if runningCount == 0 && len(ready) == 0 {
			// Nothing in flight and nothing will become ready. Failed tasks
			// explain the halt when present; otherwise the plan stalled with
			// work that can never unblock.
			if len(failed) > 0 {
				return &TaskFailureError{WorkflowID: s.workflowID, TaskIDs: failed}
			}
			return &StallError{WorkflowID: s.workflowID}
		}
		if runningCount == 0 && !dispatchable {
			// Ready tasks exist but none could be dispatched, typically an
			// unregistered agent type. Block for a report or cancellation;
			// the monitor owns escalating and eventually failing this state.
			msg, err := s.bus.Receive(ctx, inbox)
			if err != nil {
				return err
			}
			s.handleReport(msg)
			continue
		}

		msg, err := s.bus.Receive(ctx, inbox)
		if err != nil {
			return err
		}
		s.handleReport(msg)
	}
}

// dispatch starts ready tasks up to the concurrency limit. It reports
// whether at least one task was started this pass.
func (s *Scheduler) dispatch(ctx context.Context) bool {
	dispatched := false
	for _, id := range s.graph.GetReady() {
		s.mu.Lock()
		slots := s.limit - len(s.running)
		s.mu.Unlock()
		if slots <= 0 {
			break
		}

		task := s.graph.Snapshot(id)
		if task == nil || task.Status != models.TaskStatusPending {
			continue
		}

		a, err := s.registry.Resolve(task.AgentType)
		if err != nil {
			s.escalateUnavailable(task, err)
			continue
		}

		task.AssignedTo = task.AgentType + "-" + uuid.New().String()[:8]
		if !s.graph.MarkRunning(id, task.AssignedTo, time.Now()) {
			continue
		}

		taskCtx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.running[id] = cancel
		s.mu.Unlock()

		go s.execute(taskCtx, a, task)
		dispatched = true
	}
	return dispatched
}

// execute runs one task on its agent and posts the outcome as a REPORT
// message to the scheduler inbox.
func (s *Scheduler) execute(ctx context.Context, a agent.Agent, task *models.Task) {
	start := time.Now()
	result, err := a.Execute(ctx, task)
	duration := time.Since(start)

	payload := map[string]interface{}{
		"task_id":  task.ID,
		"duration": duration,
	}
	switch {
	case err != nil:
		payload["status"] = models.ResultStatusFailed
		payload["error"] = (&agent.ExecutionError{TaskID: task.ID, Err: err}).Error()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			payload["outcome"] = metrics.OutcomeTimeout
		}
	case result.Succeeded():
		payload["status"] = models.ResultStatusCompleted
		payload["result"] = result
	default:
		payload["status"] = models.ResultStatusFailed
		payload["result"] = result
		if result != nil && result.Error != "" {
			payload["error"] = result.Error
		} else {
			payload["error"] = "agent reported failure"
		}
	}

	s.bus.Send(&models.Message{
		Sender:   task.AssignedTo,
		Receiver: Inbox(s.workflowID),
		Intent:   models.IntentReport,
		Priority: models.PriorityHigh,
		Payload:  payload,
	})
}

// handleReport folds one agent report into the graph.
func (s *Scheduler) handleReport(msg *models.Message) {
	if msg.Intent != models.IntentReport {
		return
	}
	taskID, _ := msg.Payload["task_id"].(string)
	task := s.graph.Snapshot(taskID)
	if task == nil {
		return
	}

	s.mu.Lock()
	if cancel, ok := s.running[taskID]; ok {
		cancel()
		delete(s.running, taskID)
	}
	s.mu.Unlock()

	status, _ := msg.Payload["status"].(string)
	duration, _ := msg.Payload["duration"].(time.Duration)
	result, _ := msg.Payload["result"].(*models.Result)
	errMsg, _ := msg.Payload["error"].(string)
	outcome, _ := msg.Payload["outcome"].(string)
	if outcome == "" {
		outcome = metrics.OutcomeFailure
	}

	if status == models.ResultStatusCompleted {
		s.graph.MarkDone(taskID, result, time.Now())
		s.record(task, duration, metrics.OutcomeSuccess, "")
		s.remember(task, true, duration)
		return
	}

	if task.Retries < s.taskRetries {
		// Transient failure: send the task back to the ready set.
		s.graph.Requeue(taskID)
		s.record(task, duration, outcome, errMsg)
		return
	}

	s.graph.MarkFailed(taskID, errMsg, time.Now())
	s.record(task, duration, outcome, errMsg)
	s.remember(task, false, duration)

	s.mu.Lock()
	s.failed = append(s.failed, taskID)
	s.mu.Unlock()

	s.cancelDependents(taskID)
}

// cancelDependents marks the direct dependents of a failed task as
// cancelled. Transitive dependents never become ready and are left pending;
// independent branches are untouched.
func (s *Scheduler) cancelDependents(taskID string) {
	for _, depID := range s.graph.GetDependents(taskID) {
		s.graph.MarkCancelled(depID, fmt.Sprintf("dependency failed: %s", taskID), time.Now())
	}
}

// escalateUnavailable raises one ESCALATE per task whose agent type has no
// registered agent. The task stays queued; the monitor decides its fate.
func (s *Scheduler) escalateUnavailable(task *models.Task, cause error) {
	s.mu.Lock()
	already := s.escalated[task.ID]
	s.escalated[task.ID] = true
	s.mu.Unlock()
	if already {
		return
	}

	s.bus.Send(&models.Message{
		Sender:   Inbox(s.workflowID),
		Receiver: MonitorInbox,
		Intent:   models.IntentEscalate,
		Priority: models.PriorityHigh,
		Payload: map[string]interface{}{
			"workflow_id": s.workflowID,
			"task_id":     task.ID,
			"agent_type":  task.AgentType,
			"reason":      cause.Error(),
		},
	})
}

// CancelTask cancels a running task's execution context. The agent's
// cancellation error flows back through the normal report path, so the task
// gets its retry budget before failing. Returns false if the task is not
// running.
func (s *Scheduler) CancelTask(taskID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.running[taskID]
	if !ok {
		return false
	}
	cancel()
	return true
}

// Stats returns a snapshot of scheduler progress.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	runningCount := len(s.running)
	s.mu.Unlock()

	stats := Stats{Running: runningCount, Ready: len(s.graph.GetReady())}
	for _, task := range s.graph.SnapshotTasks() {
		stats.Total++
		switch task.Status {
		case models.TaskStatusDone:
			stats.Done++
		case models.TaskStatusFailed:
			stats.Failed++
		case models.TaskStatusCancelled:
			stats.Cancelled++
		}
	}
	return stats
}

// record forwards a task event to the metrics collector when configured.
func (s *Scheduler) record(task *models.Task, duration time.Duration, outcome, errMsg string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordEvent(task.AgentType, task.ID, duration, outcome, errMsg)
}

// remember writes the task outcome to the knowledge store when configured.
// Store errors are deliberately dropped; memory is advisory, not part of
// the workflow's success criteria.
func (s *Scheduler) remember(task *models.Task, success bool, duration time.Duration) {
	if s.memory == nil {
		return
	}
	rate := 0.0
	if success {
		rate = 1.0
	}
	value := map[string]interface{}{
		"workflow_id": s.workflowID,
		"description": task.Description,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	}
	_ = s.memory.Store(task.AgentType, "task_outcome", task.ID, value, rate)
	_ = s.memory.UpdateSuccessRate(task.AgentType, "task_outcome", task.ID, success)
}
