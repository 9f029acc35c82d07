package workflow

import (
	"time"

	"github.com/pkorhonen/overseer/pkg/models"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventWorkflowStarted indicates a workflow entered planning.
	EventWorkflowStarted EventType = "workflow_started"
	// EventTransition indicates a workflow status change.
	EventTransition EventType = "transition"
	// EventBoardDecision indicates the board reviewed the workflow.
	EventBoardDecision EventType = "board_decision"
	// EventGatesFailed indicates a quality gate round failed.
	EventGatesFailed EventType = "gates_failed"
	// EventRetry indicates a quality gate retry round is starting.
	EventRetry EventType = "retry"
	// EventWorkflowCompleted indicates a workflow finished successfully.
	EventWorkflowCompleted EventType = "workflow_completed"
	// EventWorkflowFailed indicates a workflow ended in failure.
	EventWorkflowFailed EventType = "workflow_failed"
	// EventWorkflowAborted indicates a workflow was cancelled.
	EventWorkflowAborted EventType = "workflow_aborted"
)

// Event is emitted by the engine as workflows progress. Consumers that fall
// behind lose events; the engine never blocks on its event channel.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// WorkflowID identifies the workflow.
	WorkflowID string
	// Status is the workflow status after the event, if applicable.
	Status models.WorkflowStatus
	// Message provides additional context.
	Message string
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// emit sends an event without blocking, counting drops.
func (e *Engine) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case e.events <- ev:
	default:
		e.mu.Lock()
		e.droppedEvents++
		e.mu.Unlock()
	}
}

// Events returns the engine's event stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// DroppedEvents returns how many events were discarded because the
// consumer fell behind.
func (e *Engine) DroppedEvents() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.droppedEvents
}
