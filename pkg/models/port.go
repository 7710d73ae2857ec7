package models

// InputType classifies how a conversation stage was left before control moves
// through an input port.
type InputType string

const (
	InputTypeCompleted    InputType = "completed"     // Previous stage fully completed
	InputTypeNotCompleted InputType = "not_completed" // Previous stage gave up after max attempts
	InputTypeAny          InputType = "any"           // Accepts control regardless of outcome
)

// StepInput is an inbound port on a Step. Fan-in is unbounded: any number of
// connections may target the same input.
type StepInput struct {
	ID        string    `json:"id"`
	StepID    string    `json:"step_id"`
	Name      string    `json:"name" validate:"required,min=1"`
	InputType InputType `json:"input_type"`

	step *Step
}

// Step returns the owning Step, or nil when the relationship has not been
// populated yet.
func (in *StepInput) Step() *Step {
	return in.step
}

// StepOutput is an outbound port on a Step. An output may source at most one
// connection; Condition is an opaque guard expression evaluated by the
// execution engine.
type StepOutput struct {
	ID        string `json:"id"`
	StepID    string `json:"step_id"`
	Name      string `json:"name" validate:"required,min=1"`
	Condition string `json:"condition,omitempty"`

	step *Step
}

// Step returns the owning Step, or nil when the relationship has not been
// populated yet.
func (out *StepOutput) Step() *Step {
	return out.step
}
