// Package persistence provides standardized error types for storage operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrTreeFlowNotFound indicates a flow was not found by the given identifier.
	ErrTreeFlowNotFound = errors.New("tree flow not found")

	// ErrTreeFlowAlreadyExists indicates a flow with the same identifier or slug already exists.
	ErrTreeFlowAlreadyExists = errors.New("tree flow already exists")

	// ErrStepNotFound indicates a step was not found by the given identifier.
	ErrStepNotFound = errors.New("step not found")

	// ErrInputNotFound indicates an input port was not found by the given identifier.
	ErrInputNotFound = errors.New("step input not found")

	// ErrOutputNotFound indicates an output port was not found by the given identifier.
	ErrOutputNotFound = errors.New("step output not found")

	// ErrConnectionNotFound indicates a connection was not found by the given identifier.
	ErrConnectionNotFound = errors.New("step connection not found")
)

// TreeFlowError wraps flow-related errors with operation context.
type TreeFlowError struct {
	Op     string // Operation being performed (e.g. "GetByID", "Save", "Delete")
	FlowID string
	Err    error
}

func (e *TreeFlowError) Error() string {
	return fmt.Sprintf("%s operation failed for tree flow %s: %v", e.Op, e.FlowID, e.Err)
}

func (e *TreeFlowError) Unwrap() error {
	return e.Err
}

func (e *TreeFlowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewTreeFlowError creates a new flow error with context.
func NewTreeFlowError(op, flowID string, err error) *TreeFlowError {
	return &TreeFlowError{Op: op, FlowID: flowID, Err: err}
}

// StepError wraps step-related errors with operation context.
type StepError struct {
	Op     string
	FlowID string
	StepID string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s operation failed for step %s in tree flow %s: %v", e.Op, e.StepID, e.FlowID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsTreeFlowNotFound checks if an error indicates a flow was not found.
func IsTreeFlowNotFound(err error) bool {
	return errors.Is(err, ErrTreeFlowNotFound)
}

// IsStepNotFound checks if an error indicates a step was not found.
func IsStepNotFound(err error) bool {
	return errors.Is(err, ErrStepNotFound)
}

// IsConnectionNotFound checks if an error indicates a connection was not found.
func IsConnectionNotFound(err error) bool {
	return errors.Is(err, ErrConnectionNotFound)
}
