// Package models defines the shared data types for the orchestration core.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	// StatusPending indicates the workflow has been created but not started.
	StatusPending WorkflowStatus = "pending"
	// StatusPlanning indicates the plan is being validated.
	StatusPlanning WorkflowStatus = "planning"
	// StatusExecuting indicates tasks are being dispatched.
	StatusExecuting WorkflowStatus = "executing"
	// StatusQualityCheck indicates quality gates are being evaluated.
	StatusQualityCheck WorkflowStatus = "quality_check"
	// StatusCompleted indicates all tasks finished and all gates passed.
	StatusCompleted WorkflowStatus = "completed"
	// StatusFailed indicates the workflow ended unsuccessfully.
	StatusFailed WorkflowStatus = "failed"
	// StatusAborted indicates the workflow was cancelled externally.
	StatusAborted WorkflowStatus = "aborted"
)

// Valid returns true if the status is a known value.
func (s WorkflowStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPlanning, StatusExecuting, StatusQualityCheck,
		StatusCompleted, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are possible from this status.
func (s WorkflowStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusAborted:
		return true
	default:
		return false
	}
}

// Transition records a single status change on a workflow.
// The full transition history is retained for post-mortem analysis.
type Transition struct {
	// From is the status before the transition.
	From WorkflowStatus `json:"from"`
	// To is the status after the transition.
	To WorkflowStatus `json:"to"`
	// Reason describes why the transition happened.
	Reason string `json:"reason,omitempty"`
	// At is when the transition occurred.
	At time.Time `json:"at"`
}
