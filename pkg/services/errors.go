// Package services provides the business operations over TreeFlow graphs.
package services

import (
	"errors"
	"fmt"

	"github.com/dialogkit/treeflow/pkg/graph"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrTreeFlowNil  = errors.New("tree flow cannot be nil")
	ErrNameRequired = errors.New("tree flow name is required")
	ErrStepNil      = errors.New("step cannot be nil")
	ErrStepNameRequired = errors.New("step name is required")
	ErrPortNameRequired = errors.New("port name is required")
	ErrInvalidInputType = errors.New("invalid input classification")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrTreeFlowNil) ||
		errors.Is(err, ErrNameRequired) ||
		errors.Is(err, ErrStepNil) ||
		errors.Is(err, ErrStepNameRequired) ||
		errors.Is(err, ErrPortNameRequired) ||
		errors.Is(err, ErrInvalidInputType)
}

// IsConnectionRejected checks if an error is one of the connection
// validator's rejection reasons.
func IsConnectionRejected(err error) bool {
	return graph.IsRejectedConnection(err)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
