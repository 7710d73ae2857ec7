package models

// Step is one node of a TreeFlow graph, representing a single conversation
// stage. At most one step per flow carries the entry-point flag; the
// entry-point enforcer maintains that invariant.
type Step struct {
	ID           string        `json:"id"`
	TreeFlowID   string        `json:"tree_flow_id"`
	Name         string        `json:"name" validate:"required,min=1"`
	Slug         string        `json:"slug"`
	IsEntryPoint bool          `json:"is_entry_point"`
	Prompt       string        `json:"prompt"`
	Objective    string        `json:"objective"`
	Inputs       []*StepInput  `json:"inputs"`
	Outputs      []*StepOutput `json:"outputs"`

	flow *TreeFlow
}

// Flow returns the owning TreeFlow, or nil when the relationship has not been
// populated yet.
func (s *Step) Flow() *TreeFlow {
	return s.flow
}

// AttachInput adds an input port to the step and wires its back-reference.
func (s *Step) AttachInput(input *StepInput) {
	input.step = s
	if s.ID != "" {
		input.StepID = s.ID
	}

	s.Inputs = append(s.Inputs, input)
}

// AttachOutput adds an output port to the step and wires its back-reference.
func (s *Step) AttachOutput(output *StepOutput) {
	output.step = s
	if s.ID != "" {
		output.StepID = s.ID
	}

	s.Outputs = append(s.Outputs, output)
}

// InputByID returns the step's input port with the given ID, or nil.
func (s *Step) InputByID(id string) *StepInput {
	for _, input := range s.Inputs {
		if input.ID == id {
			return input
		}
	}

	return nil
}

// OutputByID returns the step's output port with the given ID, or nil.
func (s *Step) OutputByID(id string) *StepOutput {
	for _, output := range s.Outputs {
		if output.ID == id {
			return output
		}
	}

	return nil
}
