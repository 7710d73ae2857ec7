package materialize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogkit/treeflow/pkg/materialize"
	"github.com/dialogkit/treeflow/pkg/models"
)

func TestBuildTemplate_EntryStepFirst(t *testing.T) {
	t.Parallel()

	template := materialize.BuildTemplate(sampleFlow(t))

	assert.Equal(t, "step-b-cart", template.EntryStepID)
	require.Len(t, template.Steps, 2)

	// "step-b-cart" sorts after "step-a-pay" by ID, but the entry step leads.
	assert.Equal(t, "step-b-cart", template.Steps[0].ID)
	assert.True(t, template.Steps[0].EntryPoint)
	assert.Equal(t, "step-a-pay", template.Steps[1].ID)
}

func TestBuildTemplate_ResolvesRoutes(t *testing.T) {
	t.Parallel()

	template := materialize.BuildTemplate(sampleFlow(t))

	cart := template.Steps[0]
	require.Len(t, cart.Routes, 2)

	// Routes sort by output ID: abandoned first, then the connected one.
	abandoned := cart.Routes[0]
	assert.Equal(t, "out-cart-abandon", abandoned.OutputID)
	assert.Empty(t, abandoned.NextStepID, "unconnected output is a dead end")
	assert.Empty(t, abandoned.NextInputID)

	ready := cart.Routes[1]
	assert.Equal(t, "out-cart-pay", ready.OutputID)
	assert.Equal(t, "cart.items > 0", ready.Condition)
	assert.Equal(t, "step-a-pay", ready.NextStepID)
	assert.Equal(t, "in-pay", ready.NextInputID)
	assert.Equal(t, models.InputTypeCompleted, ready.NextInputType)
}

func TestBuildTemplate_NoEntryStep(t *testing.T) {
	t.Parallel()

	flow := sampleFlow(t)
	flow.StepByID("step-b-cart").IsEntryPoint = false

	template := materialize.BuildTemplate(flow)

	assert.Empty(t, template.EntryStepID)
	require.Len(t, template.Steps, 2)
	assert.Equal(t, "step-a-pay", template.Steps[0].ID, "plain ID order without an entry step")
}

func TestEncodeTemplate_RoundTrip(t *testing.T) {
	t.Parallel()

	encoded, err := materialize.EncodeTemplate(sampleFlow(t))
	require.NoError(t, err)

	decoded, err := materialize.DecodeTemplate(encoded)
	require.NoError(t, err)

	assert.Equal(t, "flow-1", decoded.FlowID)
	assert.Equal(t, "checkout", decoded.Slug)
	assert.Equal(t, "step-b-cart", decoded.EntryStepID)
	assert.Len(t, decoded.Steps, 2)
}

func TestEncodeTemplate_DeterministicAcrossOrderings(t *testing.T) {
	t.Parallel()

	first, err := materialize.EncodeTemplate(sampleFlow(t))
	require.NoError(t, err)

	reordered := sampleFlow(t)
	reordered.Steps[0], reordered.Steps[1] = reordered.Steps[1], reordered.Steps[0]

	second, err := materialize.EncodeTemplate(reordered)
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
}
