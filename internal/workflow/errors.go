package workflow

import "errors"

// ErrWorkflowNotFound is returned when no workflow has the given ID.
var ErrWorkflowNotFound = errors.New("workflow not found")

// ErrRetryExhausted is returned when quality gates still fail after the
// workflow's retry budget is spent.
var ErrRetryExhausted = errors.New("quality gate retries exhausted")

// ErrAlreadyTerminal is returned when an abort targets a workflow that has
// already reached a terminal status.
var ErrAlreadyTerminal = errors.New("workflow already terminal")
