package main

import (
	"context"
	"log/slog"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogkit/treeflow/pkg/channels/gochannel"
	"github.com/dialogkit/treeflow/pkg/eventbus"
	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/persistence/file"
)

func TestSweep_HealsStaleCaches(t *testing.T) {
	ctx := context.Background()
	p := file.NewPersistence(t.TempDir())

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	// An active flow whose views were never written.
	flow := &models.TreeFlow{ID: "flow-stale", Name: "Stale Flow", Slug: "stale-flow", Active: true}
	step := &models.Step{ID: "step-1", Name: "Only", IsEntryPoint: true}
	flow.AttachStep(step)
	require.NoError(t, p.TreeFlows().Save(ctx, flow))

	// An inactive flow stays untouched.
	dormant := &models.TreeFlow{ID: "flow-dormant", Name: "Dormant Flow", Slug: "dormant-flow", Active: false}
	require.NoError(t, p.TreeFlows().Save(ctx, dormant))

	sweeper := NewSweeper(slog.Default(), p, eventbus.NewWatermillEventBus(pub, sub))
	sweeper.Sweep(ctx)

	healed, err := p.TreeFlows().GetByID(ctx, "flow-stale")
	require.NoError(t, err)
	assert.NotEmpty(t, healed.JSONVersion)
	assert.NotEmpty(t, healed.TemplateVersion)

	untouched, err := p.TreeFlows().GetByID(ctx, "flow-dormant")
	require.NoError(t, err)
	assert.Empty(t, untouched.JSONVersion)
}
