// Package store provides standardized error types for storage operations.
package store

import (
	"errors"
	"fmt"
)

// Standard storage error types that all implementations should use.
var (
	// ErrExecutionNotFound indicates an execution was not found by the given identifier.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrExecutionNotClaimable indicates an execution could not be claimed
	// because it is not currently scheduled (already claimed, completed,
	// failed or deleted).
	ErrExecutionNotClaimable = errors.New("execution not claimable")

	// ErrRecurrenceNotFound indicates a recurrence was not found by the given identifier.
	ErrRecurrenceNotFound = errors.New("recurrence not found")
)

// ExecutionError wraps execution storage errors with additional context.
type ExecutionError struct {
	Op          string // Operation being performed (e.g., "ExecutionByID", "Claim")
	ExecutionID string // Execution ID if applicable
	Err         error  // Underlying error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for execution %s: %v", e.Op, e.ExecutionID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// NewExecutionError creates a new ExecutionError with context.
func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:          op,
		ExecutionID: executionID,
		Err:         err,
	}
}

// IsExecutionNotFound checks if an error indicates an execution was not found.
func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

// IsExecutionNotClaimable checks if an error indicates a failed claim.
func IsExecutionNotClaimable(err error) bool {
	return errors.Is(err, ErrExecutionNotClaimable)
}

// IsRecurrenceNotFound checks if an error indicates a recurrence was not found.
func IsRecurrenceNotFound(err error) bool {
	return errors.Is(err, ErrRecurrenceNotFound)
}
