package materialize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogkit/treeflow/pkg/materialize"
	"github.com/dialogkit/treeflow/pkg/models"
)

func sampleFlow(t *testing.T) *models.TreeFlow {
	t.Helper()

	flow := &models.TreeFlow{ID: "flow-1", Name: "Checkout", Slug: "checkout"}

	cart := &models.Step{ID: "step-b-cart", Name: "Cart", IsEntryPoint: true, Prompt: "What would you like?"}
	cart.AttachInput(&models.StepInput{ID: "in-cart", Name: "start", InputType: models.InputTypeAny})
	cart.AttachOutput(&models.StepOutput{ID: "out-cart-pay", Name: "ready", Condition: "cart.items > 0"})
	cart.AttachOutput(&models.StepOutput{ID: "out-cart-abandon", Name: "abandoned"})

	pay := &models.Step{ID: "step-a-pay", Name: "Pay"}
	pay.AttachInput(&models.StepInput{ID: "in-pay", Name: "from-cart", InputType: models.InputTypeCompleted})
	pay.AttachOutput(&models.StepOutput{ID: "out-pay", Name: "done"})

	flow.AttachStep(cart)
	flow.AttachStep(pay)
	flow.Connect("conn-1", flow.OutputByID("out-cart-pay"), flow.InputByID("in-pay"))

	return flow
}

func TestBuildSnapshot_SortsCollectionsByID(t *testing.T) {
	t.Parallel()

	snapshot := materialize.BuildSnapshot(sampleFlow(t))

	require.Len(t, snapshot.Steps, 2)
	assert.Equal(t, "step-a-pay", snapshot.Steps[0].ID)
	assert.Equal(t, "step-b-cart", snapshot.Steps[1].ID)

	cart := snapshot.Steps[1]
	require.Len(t, cart.Outputs, 2)
	assert.Equal(t, "out-cart-abandon", cart.Outputs[0].ID)
	assert.Equal(t, "out-cart-pay", cart.Outputs[1].ID)
}

func TestEncodeSnapshot_DeterministicAcrossOrderings(t *testing.T) {
	t.Parallel()

	first, err := materialize.EncodeSnapshot(sampleFlow(t))
	require.NoError(t, err)

	// Same graph, steps attached in the opposite order.
	reordered := sampleFlow(t)
	reordered.Steps[0], reordered.Steps[1] = reordered.Steps[1], reordered.Steps[0]

	second, err := materialize.EncodeSnapshot(reordered)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestEncodeSnapshot_StableAcrossRepeatedRuns(t *testing.T) {
	t.Parallel()

	flow := sampleFlow(t)

	first, err := materialize.EncodeSnapshot(flow)
	require.NoError(t, err)

	second, err := materialize.EncodeSnapshot(flow)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}

func TestRestoreGraph_RoundTrip(t *testing.T) {
	t.Parallel()

	original := sampleFlow(t)

	encoded, err := materialize.EncodeSnapshot(original)
	require.NoError(t, err)

	restored, err := materialize.RestoreGraph(encoded)
	require.NoError(t, err)

	assert.Equal(t, original.ID, restored.ID)
	assert.Equal(t, original.Slug, restored.Slug)
	require.Len(t, restored.Steps, 2)

	cart := restored.StepByID("step-b-cart")
	require.NotNil(t, cart)
	assert.True(t, cart.IsEntryPoint)
	assert.Equal(t, "What would you like?", cart.Prompt)
	assert.Len(t, cart.Outputs, 2)

	require.Len(t, restored.Connections, 1)
	conn := restored.Connections[0]
	assert.Equal(t, "out-cart-pay", conn.SourceOutputID)
	assert.Equal(t, "in-pay", conn.TargetInputID)
	assert.Equal(t, "step-b-cart", conn.SourceStepID)
	assert.Equal(t, "step-a-pay", conn.TargetStepID)

	// Edge IDs are not part of the snapshot.
	assert.Empty(t, conn.ID)

	// And the restored graph snapshots back to the same bytes.
	reencoded, err := materialize.EncodeSnapshot(restored)
	require.NoError(t, err)
	assert.Equal(t, string(encoded), string(reencoded))
}

func TestValidateSnapshot(t *testing.T) {
	t.Parallel()

	encoded, err := materialize.EncodeSnapshot(sampleFlow(t))
	require.NoError(t, err)
	require.NoError(t, materialize.ValidateSnapshot(encoded))

	assert.Error(t, materialize.ValidateSnapshot([]byte(`{"flow_id": 42}`)))
	assert.Error(t, materialize.ValidateSnapshot([]byte(`{"name": "missing ids"}`)))
}
