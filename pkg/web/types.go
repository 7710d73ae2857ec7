// Package web provides HTTP request and response types for the tree-flow API.
package web

import "github.com/dialogkit/treeflow/pkg/models"

// CreateTreeFlowRequest represents the request body for creating a new flow.
type CreateTreeFlowRequest struct {
	Name  string              `json:"name"  validate:"required,min=3"`
	Slug  string              `json:"slug,omitempty"`
	Steps []CreateStepRequest `json:"steps,omitempty"`
}

// UpdateTreeFlowRequest represents the request body for updating a flow.
// All fields are optional to support partial updates.
type UpdateTreeFlowRequest struct {
	Name   *string `json:"name,omitempty" validate:"omitempty,min=3"`
	Slug   *string `json:"slug,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// CreateStepRequest represents the request body for creating a step.
type CreateStepRequest struct {
	Name         string              `json:"name"      validate:"required,min=1"`
	Slug         string              `json:"slug,omitempty"`
	Prompt       string              `json:"prompt"`
	Objective    string              `json:"objective"`
	IsEntryPoint bool                `json:"is_entry_point"`
	Inputs       []CreatePortRequest `json:"inputs,omitempty"`
	Outputs      []CreatePortRequest `json:"outputs,omitempty"`
}

// UpdateStepRequest represents the request body for updating a step.
type UpdateStepRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,min=1"`
	Prompt       *string `json:"prompt,omitempty"`
	Objective    *string `json:"objective,omitempty"`
	IsEntryPoint *bool   `json:"is_entry_point,omitempty"`
}

// CreatePortRequest represents the request body for creating a step port.
// InputType only applies to input ports; Condition only to output ports.
type CreatePortRequest struct {
	Name      string `json:"name"       validate:"required,min=1"`
	InputType string `json:"input_type" validate:"omitempty,oneof=completed not_completed any"`
	Condition string `json:"condition,omitempty"`
}

// CreateConnectionRequest represents the request body for connecting an
// output port to an input port.
type CreateConnectionRequest struct {
	SourceOutputID string `json:"source_output_id" validate:"required"`
	TargetInputID  string `json:"target_input_id"  validate:"required"`
}

// UpdateCanvasLayoutRequest carries the editor's layout blob.
type UpdateCanvasLayoutRequest struct {
	Layout map[string]any `json:"layout" validate:"required"`
}

func stepFromRequest(req CreateStepRequest) *models.Step {
	step := &models.Step{
		Name:         req.Name,
		Slug:         req.Slug,
		Prompt:       req.Prompt,
		Objective:    req.Objective,
		IsEntryPoint: req.IsEntryPoint,
	}

	for _, in := range req.Inputs {
		step.AttachInput(&models.StepInput{
			Name:      in.Name,
			InputType: models.InputType(in.InputType),
		})
	}

	for _, out := range req.Outputs {
		step.AttachOutput(&models.StepOutput{
			Name:      out.Name,
			Condition: out.Condition,
		})
	}

	return step
}
