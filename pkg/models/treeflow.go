// Package models defines the core domain models for conversation-flow graphs.
package models

import (
	"encoding/json"
	"time"
)

// Field names reported on update events. The dirty tracker uses these to
// tell structural edits apart from cache and layout writes.
const (
	FieldJSONVersion     = "json_version"
	FieldTemplateVersion = "template_version"
	FieldCanvasLayout    = "canvas_layout"
	FieldIsEntryPoint    = "is_entry_point"
)

// TreeFlow is the root aggregate of one conversation-flow definition. It owns
// its Steps and the Connections between their ports. JSONVersion and
// TemplateVersion are derived caches maintained by the materializer; the graph
// below them is the sole source of truth.
type TreeFlow struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"   validate:"required,min=3"`
	Slug            string            `json:"slug"   validate:"required"`
	Active          bool              `json:"active"`
	Steps           []*Step           `json:"steps"`
	Connections     []*StepConnection `json:"connections"`
	JSONVersion     json.RawMessage   `json:"json_version,omitempty"`
	TemplateVersion json.RawMessage   `json:"template_version,omitempty"`
	CanvasLayout    json.RawMessage   `json:"canvas_layout,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// AttachStep adds a step to the flow and wires its back-reference.
func (tf *TreeFlow) AttachStep(step *Step) {
	step.flow = tf
	if tf.ID != "" {
		step.TreeFlowID = tf.ID
	}

	tf.Steps = append(tf.Steps, step)
}

// Rewire restores the unexported parent references after the aggregate has
// been decoded from storage. Repositories must call it before handing a flow
// to anything that navigates upward.
func (tf *TreeFlow) Rewire() {
	for _, step := range tf.Steps {
		step.flow = tf

		for _, input := range step.Inputs {
			input.step = step
		}

		for _, output := range step.Outputs {
			output.step = step
		}
	}

	for _, conn := range tf.Connections {
		conn.source = tf.OutputByID(conn.SourceOutputID)
		conn.target = tf.InputByID(conn.TargetInputID)
	}
}

// StepByID returns the step with the given ID, or nil.
func (tf *TreeFlow) StepByID(id string) *Step {
	for _, step := range tf.Steps {
		if step.ID == id {
			return step
		}
	}

	return nil
}

// OutputByID returns the output port with the given ID from any step, or nil.
func (tf *TreeFlow) OutputByID(id string) *StepOutput {
	for _, step := range tf.Steps {
		for _, output := range step.Outputs {
			if output.ID == id {
				return output
			}
		}
	}

	return nil
}

// InputByID returns the input port with the given ID from any step, or nil.
func (tf *TreeFlow) InputByID(id string) *StepInput {
	for _, step := range tf.Steps {
		for _, input := range step.Inputs {
			if input.ID == id {
				return input
			}
		}
	}

	return nil
}

// ConnectionByID returns the connection with the given ID, or nil.
func (tf *TreeFlow) ConnectionByID(id string) *StepConnection {
	for _, conn := range tf.Connections {
		if conn.ID == id {
			return conn
		}
	}

	return nil
}

// EntryStep returns the step flagged as the flow's entry point, or nil.
func (tf *TreeFlow) EntryStep() *Step {
	for _, step := range tf.Steps {
		if step.IsEntryPoint {
			return step
		}
	}

	return nil
}

// Connect creates a connection between an output and an input of this flow.
// It performs no validation; callers run the connection validator first.
func (tf *TreeFlow) Connect(id string, output *StepOutput, input *StepInput) *StepConnection {
	conn := &StepConnection{
		ID:             id,
		SourceOutputID: output.ID,
		TargetInputID:  input.ID,
		SourceStepID:   output.StepID,
		TargetStepID:   input.StepID,
		source:         output,
		target:         input,
	}

	tf.Connections = append(tf.Connections, conn)

	return conn
}

// RemoveConnection detaches a connection by ID and returns it, or nil if the
// flow has no such connection.
func (tf *TreeFlow) RemoveConnection(id string) *StepConnection {
	for i, conn := range tf.Connections {
		if conn.ID == id {
			tf.Connections = append(tf.Connections[:i], tf.Connections[i+1:]...)

			return conn
		}
	}

	return nil
}

// RemoveStep detaches a step and cascades to every connection touching one of
// its ports. It returns the removed step and the removed connections.
func (tf *TreeFlow) RemoveStep(id string) (*Step, []*StepConnection) {
	step := tf.StepByID(id)
	if step == nil {
		return nil, nil
	}

	removed := tf.removeConnectionsWhere(func(conn *StepConnection) bool {
		return conn.SourceStepID == id || conn.TargetStepID == id
	})

	for i, candidate := range tf.Steps {
		if candidate.ID == id {
			tf.Steps = append(tf.Steps[:i], tf.Steps[i+1:]...)

			break
		}
	}

	return step, removed
}

// RemoveInput detaches an input port from its step and cascades to the
// connections targeting it.
func (tf *TreeFlow) RemoveInput(inputID string) (*StepInput, []*StepConnection) {
	input := tf.InputByID(inputID)
	if input == nil {
		return nil, nil
	}

	removed := tf.removeConnectionsWhere(func(conn *StepConnection) bool {
		return conn.TargetInputID == inputID
	})

	step := input.Step()
	if step != nil {
		for i, candidate := range step.Inputs {
			if candidate.ID == inputID {
				step.Inputs = append(step.Inputs[:i], step.Inputs[i+1:]...)

				break
			}
		}
	}

	return input, removed
}

// RemoveOutput detaches an output port from its step and cascades to the
// connection sourced from it.
func (tf *TreeFlow) RemoveOutput(outputID string) (*StepOutput, []*StepConnection) {
	output := tf.OutputByID(outputID)
	if output == nil {
		return nil, nil
	}

	removed := tf.removeConnectionsWhere(func(conn *StepConnection) bool {
		return conn.SourceOutputID == outputID
	})

	step := output.Step()
	if step != nil {
		for i, candidate := range step.Outputs {
			if candidate.ID == outputID {
				step.Outputs = append(step.Outputs[:i], step.Outputs[i+1:]...)

				break
			}
		}
	}

	return output, removed
}

func (tf *TreeFlow) removeConnectionsWhere(match func(*StepConnection) bool) []*StepConnection {
	kept := tf.Connections[:0]
	removed := make([]*StepConnection, 0)

	for _, conn := range tf.Connections {
		if match(conn) {
			removed = append(removed, conn)
		} else {
			kept = append(kept, conn)
		}
	}

	tf.Connections = kept

	return removed
}
