package models

// StepConnection is a directed edge from one step's output to another step's
// input. The (source, target) pair is the tuple identity for uniqueness; the
// ID only names the edge. A connection references its endpoints but does not
// own them: deleting either endpoint cascades to the connection.
type StepConnection struct {
	ID             string `json:"id"`
	SourceOutputID string `json:"source_output_id" validate:"required"`
	TargetInputID  string `json:"target_input_id"  validate:"required"`
	SourceStepID   string `json:"source_step_id"`
	TargetStepID   string `json:"target_step_id"`

	source *StepOutput
	target *StepInput
}

// Source returns the output port the edge leaves from, or nil when the
// relationship has not been populated yet.
func (c *StepConnection) Source() *StepOutput {
	return c.source
}

// Target returns the input port the edge arrives at, or nil when the
// relationship has not been populated yet.
func (c *StepConnection) Target() *StepInput {
	return c.target
}
