package graph

import (
	"errors"
	"fmt"

	"github.com/dialogkit/treeflow/pkg/models"
)

// Connection rejection reasons. Each one is surfaced to the caller as-is so a
// UI can explain why the edge was refused.
var (
	// ErrSelfLoop indicates the output and input belong to the same step.
	ErrSelfLoop = errors.New("output and input belong to the same step")

	// ErrOutputAlreadyConnected indicates the output already sources a connection.
	ErrOutputAlreadyConnected = errors.New("output already has a connection")

	// ErrDuplicateConnection indicates this exact (output, input) pair already exists.
	ErrDuplicateConnection = errors.New("connection between this output and input already exists")
)

// RejectedConnectionError wraps a rejection reason with the endpoints of the
// attempted edge.
type RejectedConnectionError struct {
	OutputID string
	InputID  string
	Err      error
}

func (e *RejectedConnectionError) Error() string {
	return fmt.Sprintf("connection %s -> %s rejected: %v", e.OutputID, e.InputID, e.Err)
}

func (e *RejectedConnectionError) Unwrap() error {
	return e.Err
}

// IsRejectedConnection checks whether an error is one of the connection
// rejection reasons.
func IsRejectedConnection(err error) bool {
	return errors.Is(err, ErrSelfLoop) ||
		errors.Is(err, ErrOutputAlreadyConnected) ||
		errors.Is(err, ErrDuplicateConnection)
}

// ValidateConnection decides whether an edge from output to input may be
// added, given the connections already indexed. Rules apply in order and the
// first failure wins:
//
//  1. the edge must not loop back onto its own step,
//  2. the output must not already source a connection,
//  3. the exact (output, input) pair must not already exist.
//
// The function is pure: it never mutates the graph or the index, so it can be
// run against hypothetical states. On success the caller inserts the edge and
// updates the index.
func ValidateConnection(output *models.StepOutput, input *models.StepInput, index *ConnectionIndex) error {
	if output.StepID == input.StepID {
		return &RejectedConnectionError{OutputID: output.ID, InputID: input.ID, Err: ErrSelfLoop}
	}

	if index.SourceConnection(output.ID) != nil {
		return &RejectedConnectionError{OutputID: output.ID, InputID: input.ID, Err: ErrOutputAlreadyConnected}
	}

	if index.HasPair(output.ID, input.ID) {
		return &RejectedConnectionError{OutputID: output.ID, InputID: input.ID, Err: ErrDuplicateConnection}
	}

	return nil
}
