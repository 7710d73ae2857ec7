// Package materialize recomputes the derived views of a TreeFlow: the
// structural JSON snapshot and the flattened execution template. Both are
// pure functions of graph state; an unchanged graph always yields
// byte-identical output.
package materialize

import (
	"encoding/json"
	"sort"

	"github.com/dialogkit/treeflow/pkg/models"
)

// GraphSnapshot is the full structural serialization of one flow's graph.
// It carries enough to reconstruct the graph exactly: every step with its
// ports, and every edge by its (source output, target input) pair.
type GraphSnapshot struct {
	FlowID      string               `json:"flow_id"`
	Name        string               `json:"name"`
	Slug        string               `json:"slug"`
	Steps       []SnapshotStep       `json:"steps"`
	Connections []SnapshotConnection `json:"connections"`
}

type SnapshotStep struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Slug       string           `json:"slug,omitempty"`
	EntryPoint bool             `json:"entry_point"`
	Prompt     string           `json:"prompt,omitempty"`
	Objective  string           `json:"objective,omitempty"`
	Inputs     []SnapshotInput  `json:"inputs"`
	Outputs    []SnapshotOutput `json:"outputs"`
}

type SnapshotInput struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	InputType models.InputType `json:"input_type"`
}

type SnapshotOutput struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Condition string `json:"condition,omitempty"`
}

type SnapshotConnection struct {
	SourceOutputID string `json:"source_output_id"`
	TargetInputID  string `json:"target_input_id"`
}

// BuildSnapshot projects a flow's graph into its snapshot form. Collections
// are ordered by ID so that structurally identical graphs produce identical
// snapshots regardless of in-memory ordering.
func BuildSnapshot(flow *models.TreeFlow) *GraphSnapshot {
	snapshot := &GraphSnapshot{
		FlowID:      flow.ID,
		Name:        flow.Name,
		Slug:        flow.Slug,
		Steps:       make([]SnapshotStep, 0, len(flow.Steps)),
		Connections: make([]SnapshotConnection, 0, len(flow.Connections)),
	}

	for _, step := range flow.Steps {
		snapshot.Steps = append(snapshot.Steps, buildSnapshotStep(step))
	}

	sort.Slice(snapshot.Steps, func(i, j int) bool {
		return snapshot.Steps[i].ID < snapshot.Steps[j].ID
	})

	for _, conn := range flow.Connections {
		snapshot.Connections = append(snapshot.Connections, SnapshotConnection{
			SourceOutputID: conn.SourceOutputID,
			TargetInputID:  conn.TargetInputID,
		})
	}

	sort.Slice(snapshot.Connections, func(i, j int) bool {
		a, b := snapshot.Connections[i], snapshot.Connections[j]
		if a.SourceOutputID != b.SourceOutputID {
			return a.SourceOutputID < b.SourceOutputID
		}

		return a.TargetInputID < b.TargetInputID
	})

	return snapshot
}

func buildSnapshotStep(step *models.Step) SnapshotStep {
	out := SnapshotStep{
		ID:         step.ID,
		Name:       step.Name,
		Slug:       step.Slug,
		EntryPoint: step.IsEntryPoint,
		Prompt:     step.Prompt,
		Objective:  step.Objective,
		Inputs:     make([]SnapshotInput, 0, len(step.Inputs)),
		Outputs:    make([]SnapshotOutput, 0, len(step.Outputs)),
	}

	for _, input := range step.Inputs {
		out.Inputs = append(out.Inputs, SnapshotInput{
			ID:        input.ID,
			Name:      input.Name,
			InputType: input.InputType,
		})
	}

	sort.Slice(out.Inputs, func(i, j int) bool { return out.Inputs[i].ID < out.Inputs[j].ID })

	for _, output := range step.Outputs {
		out.Outputs = append(out.Outputs, SnapshotOutput{
			ID:        output.ID,
			Name:      output.Name,
			Condition: output.Condition,
		})
	}

	sort.Slice(out.Outputs, func(i, j int) bool { return out.Outputs[i].ID < out.Outputs[j].ID })

	return out
}

// EncodeSnapshot serializes the snapshot deterministically.
func EncodeSnapshot(flow *models.TreeFlow) (json.RawMessage, error) {
	return json.Marshal(BuildSnapshot(flow))
}

// RestoreGraph rebuilds a TreeFlow aggregate from a snapshot. The result is
// structurally equivalent to the graph the snapshot was taken from; edge IDs
// are not part of the snapshot and come back empty.
func RestoreGraph(raw json.RawMessage) (*models.TreeFlow, error) {
	var snapshot GraphSnapshot

	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, err
	}

	flow := &models.TreeFlow{
		ID:   snapshot.FlowID,
		Name: snapshot.Name,
		Slug: snapshot.Slug,
	}

	for _, snapStep := range snapshot.Steps {
		step := &models.Step{
			ID:           snapStep.ID,
			TreeFlowID:   flow.ID,
			Name:         snapStep.Name,
			Slug:         snapStep.Slug,
			IsEntryPoint: snapStep.EntryPoint,
			Prompt:       snapStep.Prompt,
			Objective:    snapStep.Objective,
		}

		for _, snapInput := range snapStep.Inputs {
			step.AttachInput(&models.StepInput{
				ID:        snapInput.ID,
				StepID:    step.ID,
				Name:      snapInput.Name,
				InputType: snapInput.InputType,
			})
		}

		for _, snapOutput := range snapStep.Outputs {
			step.AttachOutput(&models.StepOutput{
				ID:        snapOutput.ID,
				StepID:    step.ID,
				Name:      snapOutput.Name,
				Condition: snapOutput.Condition,
			})
		}

		flow.AttachStep(step)
	}

	for _, snapConn := range snapshot.Connections {
		output := flow.OutputByID(snapConn.SourceOutputID)
		input := flow.InputByID(snapConn.TargetInputID)

		if output == nil || input == nil {
			continue
		}

		flow.Connect("", output, input)
	}

	return flow, nil
}
