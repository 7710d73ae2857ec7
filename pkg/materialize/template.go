package materialize

import (
	"encoding/json"
	"sort"

	"github.com/dialogkit/treeflow/pkg/models"
)

// ExecutionTemplate is the flattened projection of a flow consumed by the
// TalkFlow runner at conversation time. The entry step comes first and every
// output is pre-resolved to the step and input it feeds, so the runner never
// walks the relational graph.
type ExecutionTemplate struct {
	FlowID      string         `json:"flow_id"`
	Slug        string         `json:"slug"`
	EntryStepID string         `json:"entry_step_id,omitempty"`
	Steps       []TemplateStep `json:"steps"`
}

type TemplateStep struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	EntryPoint bool            `json:"entry_point"`
	Prompt     string          `json:"prompt,omitempty"`
	Objective  string          `json:"objective,omitempty"`
	Inputs     []TemplateInput `json:"inputs"`
	Routes     []TemplateRoute `json:"routes"`
}

type TemplateInput struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	InputType models.InputType `json:"input_type"`
}

// TemplateRoute is one output of a step with its destination resolved. An
// unconnected output keeps empty next fields; the runner treats it as a dead
// end.
type TemplateRoute struct {
	OutputID      string           `json:"output_id"`
	OutputName    string           `json:"output_name"`
	Condition     string           `json:"condition,omitempty"`
	NextStepID    string           `json:"next_step_id,omitempty"`
	NextInputID   string           `json:"next_input_id,omitempty"`
	NextInputType models.InputType `json:"next_input_type,omitempty"`
}

// BuildTemplate flattens a flow into its execution template. Like the
// snapshot, the projection is deterministic: steps are ordered entry-first
// then by ID, ports by ID.
func BuildTemplate(flow *models.TreeFlow) *ExecutionTemplate {
	template := &ExecutionTemplate{
		FlowID: flow.ID,
		Slug:   flow.Slug,
		Steps:  make([]TemplateStep, 0, len(flow.Steps)),
	}

	if entry := flow.EntryStep(); entry != nil {
		template.EntryStepID = entry.ID
	}

	routesByOutput := make(map[string]*models.StepConnection, len(flow.Connections))
	for _, conn := range flow.Connections {
		routesByOutput[conn.SourceOutputID] = conn
	}

	for _, step := range flow.Steps {
		template.Steps = append(template.Steps, buildTemplateStep(flow, step, routesByOutput))
	}

	sort.Slice(template.Steps, func(i, j int) bool {
		a, b := template.Steps[i], template.Steps[j]
		if a.EntryPoint != b.EntryPoint {
			return a.EntryPoint
		}

		return a.ID < b.ID
	})

	return template
}

func buildTemplateStep(flow *models.TreeFlow, step *models.Step, routesByOutput map[string]*models.StepConnection) TemplateStep {
	out := TemplateStep{
		ID:         step.ID,
		Name:       step.Name,
		EntryPoint: step.IsEntryPoint,
		Prompt:     step.Prompt,
		Objective:  step.Objective,
		Inputs:     make([]TemplateInput, 0, len(step.Inputs)),
		Routes:     make([]TemplateRoute, 0, len(step.Outputs)),
	}

	for _, input := range step.Inputs {
		out.Inputs = append(out.Inputs, TemplateInput{
			ID:        input.ID,
			Name:      input.Name,
			InputType: input.InputType,
		})
	}

	sort.Slice(out.Inputs, func(i, j int) bool { return out.Inputs[i].ID < out.Inputs[j].ID })

	for _, output := range step.Outputs {
		route := TemplateRoute{
			OutputID:   output.ID,
			OutputName: output.Name,
			Condition:  output.Condition,
		}

		if conn, ok := routesByOutput[output.ID]; ok {
			route.NextStepID = conn.TargetStepID
			route.NextInputID = conn.TargetInputID

			if input := flow.InputByID(conn.TargetInputID); input != nil {
				route.NextInputType = input.InputType
			}
		}

		out.Routes = append(out.Routes, route)
	}

	sort.Slice(out.Routes, func(i, j int) bool { return out.Routes[i].OutputID < out.Routes[j].OutputID })

	return out
}

// EncodeTemplate serializes the execution template deterministically.
func EncodeTemplate(flow *models.TreeFlow) (json.RawMessage, error) {
	return json.Marshal(BuildTemplate(flow))
}

// DecodeTemplate parses a stored execution template.
func DecodeTemplate(raw json.RawMessage) (*ExecutionTemplate, error) {
	var template ExecutionTemplate

	if err := json.Unmarshal(raw, &template); err != nil {
		return nil, err
	}

	return &template, nil
}
