package track_test

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/track"
)

func trackedFlow(t *testing.T) (*models.TreeFlow, *track.DirtySet, *track.Tracker) {
	t.Helper()

	flow := &models.TreeFlow{ID: "flow-1", Name: "Billing", Slug: "billing"}

	collect := &models.Step{ID: "step-collect", Name: "Collect"}
	collect.AttachInput(&models.StepInput{ID: "in-collect", Name: "start", InputType: models.InputTypeAny})
	collect.AttachOutput(&models.StepOutput{ID: "out-collect", Name: "done"})

	confirm := &models.Step{ID: "step-confirm", Name: "Confirm"}
	confirm.AttachInput(&models.StepInput{ID: "in-confirm", Name: "from-collect", InputType: models.InputTypeCompleted})

	flow.AttachStep(collect)
	flow.AttachStep(confirm)
	flow.Connect("conn-1", flow.OutputByID("out-collect"), flow.InputByID("in-confirm"))
	flow.Rewire()

	set := track.NewDirtySet()

	return flow, set, track.NewTracker(set, slog.Default())
}

func TestResolveOwningFlow(t *testing.T) {
	t.Parallel()

	flow, _, _ := trackedFlow(t)

	tests := []struct {
		name   string
		entity any
	}{
		{name: "tree flow resolves to itself", entity: flow},
		{name: "step resolves through its flow", entity: flow.StepByID("step-collect")},
		{name: "input resolves through its step", entity: flow.InputByID("in-confirm")},
		{name: "output resolves through its step", entity: flow.OutputByID("out-collect")},
		{name: "connection resolves through its source output", entity: flow.ConnectionByID("conn-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resolved, err := track.ResolveOwningFlow(tt.entity)
			require.NoError(t, err)
			assert.Same(t, flow, resolved)
		})
	}
}

func TestResolveOwningFlow_UnresolvedNavigation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		entity any
	}{
		{name: "detached step", entity: &models.Step{ID: "step-x", Name: "X"}},
		{name: "detached input", entity: &models.StepInput{ID: "in-x", Name: "x"}},
		{name: "detached output", entity: &models.StepOutput{ID: "out-x", Name: "x"}},
		{name: "detached connection", entity: &models.StepConnection{ID: "conn-x"}},
		{name: "unknown entity kind", entity: "not a graph entity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := track.ResolveOwningFlow(tt.entity)
			assert.ErrorIs(t, err, track.ErrOwnerUnresolved)
		})
	}
}

func TestTracker_MarksOwnerOnMutations(t *testing.T) {
	t.Parallel()

	flow, set, tracker := trackedFlow(t)

	tracker.BeforeInsert(flow.StepByID("step-collect"))
	assert.True(t, set.Contains(flow))

	set.Clear()
	tracker.BeforeUpdate(flow.InputByID("in-confirm"), []string{"name"})
	assert.True(t, set.Contains(flow))

	set.Clear()
	tracker.BeforeDelete(flow.ConnectionByID("conn-1"))
	assert.True(t, set.Contains(flow))
}

func TestTracker_SkipsUnresolvableEntities(t *testing.T) {
	t.Parallel()

	_, set, tracker := trackedFlow(t)
	set.Clear()

	// A step whose flow relationship is not populated yet: skipped silently.
	tracker.BeforeInsert(&models.Step{ID: "step-orphan", Name: "Orphan"})

	assert.Equal(t, 0, set.Len())
}

func TestTracker_SuppressesCacheOnlyUpdates(t *testing.T) {
	t.Parallel()

	flow, set, tracker := trackedFlow(t)

	tracker.BeforeUpdate(flow, []string{models.FieldJSONVersion, models.FieldTemplateVersion})
	assert.Equal(t, 0, set.Len(), "cache-field writes are not structural")

	tracker.BeforeUpdate(flow, []string{models.FieldCanvasLayout})
	assert.Equal(t, 0, set.Len(), "layout writes are not structural")

	tracker.BeforeUpdate(flow, []string{models.FieldJSONVersion, "name"})
	assert.True(t, set.Contains(flow), "mixed updates are structural")
}

func TestTracker_EmptyChangedFieldListIsStructural(t *testing.T) {
	t.Parallel()

	flow, set, tracker := trackedFlow(t)

	tracker.BeforeUpdate(flow, nil)
	assert.True(t, set.Contains(flow))
}

func TestTracker_DeletedFlowLeavesTheSet(t *testing.T) {
	t.Parallel()

	flow, set, tracker := trackedFlow(t)

	set.Mark(flow)
	require.True(t, set.Contains(flow))

	tracker.BeforeDelete(flow)
	assert.False(t, set.Contains(flow))
}

func TestTracker_SuppressionDoesNotApplyToSteps(t *testing.T) {
	t.Parallel()

	flow, set, tracker := trackedFlow(t)

	// The field filter is specific to the flow entity; a step update with
	// any field list always marks.
	tracker.BeforeUpdate(flow.StepByID("step-confirm"), []string{models.FieldCanvasLayout})
	assert.True(t, set.Contains(flow))
}
