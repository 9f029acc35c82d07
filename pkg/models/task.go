package models

import "time"

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning indicates the task is being executed by an agent.
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusDone indicates the task completed successfully.
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before or during
	// execution, typically because a dependency failed or the workflow aborted.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusRunning, TaskStatusDone,
		TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the task will not run again in this generation.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusDone, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Task represents a unit of work in a workflow plan.
type Task struct {
	// ID is the unique identifier for this task within its plan.
	ID string `json:"id" yaml:"id"`
	// AgentType selects the agent capability that executes this task.
	AgentType string `json:"agent_type" yaml:"agent_type"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status" yaml:"-"`
	// AssignedTo is the handle of the agent invocation working on this task.
	AssignedTo string `json:"assigned_to,omitempty" yaml:"-"`
	// Result holds the agent output after a successful execution.
	Result *Result `json:"result,omitempty" yaml:"-"`
	// Error contains the error message if the task failed or was cancelled.
	Error string `json:"error,omitempty" yaml:"-"`
	// Retries is the number of times this task has been re-dispatched after
	// a transient failure. Independent of the workflow-level retry budget.
	Retries int `json:"retries,omitempty" yaml:"-"`
	// StartedAt is when the task was last dispatched.
	StartedAt *time.Time `json:"started_at,omitempty" yaml:"-"`
	// CompletedAt is when the task reached a terminal status.
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"-"`
}

// Clone returns a shallow copy of the task suitable for snapshots.
// The Result pointer is shared; results are treated as immutable once set.
func (t *Task) Clone() *Task {
	c := *t
	c.DependsOn = append([]string(nil), t.DependsOn...)
	return &c
}

// Result holds the output of a completed agent execution.
type Result struct {
	// Status is the agent-reported status, "completed" or "failed".
	Status string `json:"status"`
	// Output carries the produced artifact data, keyed by artifact name.
	Output map[string]interface{} `json:"output,omitempty"`
	// Error describes the failure when Status is "failed".
	Error string `json:"error,omitempty"`
	// Duration is the wall-clock execution time.
	Duration time.Duration `json:"duration"`
}

// Succeeded returns true if the agent reported a successful execution.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == ResultStatusCompleted
}

const (
	// ResultStatusCompleted marks a successful agent execution.
	ResultStatusCompleted = "completed"
	// ResultStatusFailed marks a failed agent execution.
	ResultStatusFailed = "failed"
)
