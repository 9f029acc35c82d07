package models

import "fmt"

// ValidationError reports malformed input: a plan referencing unknown task
// IDs, a cyclic dependency graph, or an out-of-range complexity score.
type ValidationError struct {
	// Detail describes what failed validation.
	Detail string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return "validation failed: " + e.Detail
}

// NewValidationError creates a ValidationError with a formatted detail.
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Detail: fmt.Sprintf(format, args...)}
}
