package talkflow_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogkit/treeflow/pkg/channels/gochannel"
	"github.com/dialogkit/treeflow/pkg/eventbus"
	"github.com/dialogkit/treeflow/pkg/events"
	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/persistence/file"
	"github.com/dialogkit/treeflow/pkg/talkflow"
)

func setupTalkFlow(t *testing.T) (*talkflow.Service, persistence.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	cache, err := talkflow.NewLRUCache(16)
	require.NoError(t, err)

	return talkflow.NewService(p, cache, slog.Default()), p
}

func materializedFlow(t *testing.T, p persistence.Persistence, id string) {
	t.Helper()

	ctx := context.Background()
	flow := &models.TreeFlow{ID: id, Name: "Flow " + id, Slug: "flow-" + id, Active: true}

	require.NoError(t, p.TreeFlows().Save(ctx, flow))
	require.NoError(t, p.TreeFlows().UpdateCachedViews(ctx, id,
		json.RawMessage(`{"flow_id":"`+id+`","version":1}`),
		json.RawMessage(`{"flow_id":"`+id+`","steps":[]}`),
	))
}

func TestTalkFlow_SnapshotAndTemplate(t *testing.T) {
	t.Parallel()

	service, p := setupTalkFlow(t)
	ctx := context.Background()

	materializedFlow(t, p, "flow-1")

	snapshot, err := service.Snapshot(ctx, "flow-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"flow_id":"flow-1","version":1}`, string(snapshot))

	template, err := service.Template(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, "flow-1", template.FlowID)
	assert.Empty(t, template.Steps)
}

func TestTalkFlow_MissingFlow(t *testing.T) {
	t.Parallel()

	service, _ := setupTalkFlow(t)

	_, err := service.Snapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, persistence.ErrTreeFlowNotFound)
}

func TestTalkFlow_UnmaterializedFlow(t *testing.T) {
	t.Parallel()

	service, p := setupTalkFlow(t)
	ctx := context.Background()

	require.NoError(t, p.TreeFlows().Save(ctx, &models.TreeFlow{ID: "flow-1", Name: "Bare", Slug: "bare"}))

	_, err := service.Snapshot(ctx, "flow-1")
	assert.ErrorIs(t, err, persistence.ErrTreeFlowNotFound)

	_, err = service.TemplateBytes(ctx, "flow-1")
	assert.ErrorIs(t, err, persistence.ErrTreeFlowNotFound)
}

func TestTalkFlow_ServesFromCacheUntilInvalidated(t *testing.T) {
	t.Parallel()

	service, p := setupTalkFlow(t)
	ctx := context.Background()

	materializedFlow(t, p, "flow-1")

	first, err := service.Snapshot(ctx, "flow-1")
	require.NoError(t, err)

	// The store moves on, the cache does not.
	require.NoError(t, p.TreeFlows().UpdateCachedViews(ctx, "flow-1",
		json.RawMessage(`{"flow_id":"flow-1","version":2}`),
		json.RawMessage(`{"flow_id":"flow-1","steps":[]}`),
	))

	cached, err := service.Snapshot(ctx, "flow-1")
	require.NoError(t, err)
	assert.Equal(t, string(first), string(cached))

	service.Invalidate(ctx, "flow-1")

	fresh, err := service.Snapshot(ctx, "flow-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"flow_id":"flow-1","version":2}`, string(fresh))
}

func TestTalkFlow_EventDrivenInvalidation(t *testing.T) {
	t.Parallel()

	service, p := setupTalkFlow(t)
	ctx := context.Background()

	materializedFlow(t, p, "flow-1")

	pub, sub, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(slog.Default()))
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)

	require.NoError(t, service.SubscribeInvalidation(ctx, bus))

	// Warm the cache, then move the store underneath it.
	_, err = service.Snapshot(ctx, "flow-1")
	require.NoError(t, err)

	require.NoError(t, p.TreeFlows().UpdateCachedViews(ctx, "flow-1",
		json.RawMessage(`{"flow_id":"flow-1","version":2}`),
		json.RawMessage(`{"flow_id":"flow-1","steps":[]}`),
	))

	err = bus.Publish(ctx, "flow-1", events.TreeFlowMaterialized{
		BaseEvent: events.BaseEvent{
			Type:      events.TreeFlowMaterializedEvent,
			Timestamp: time.Now().UTC(),
			FlowID:    "flow-1",
		},
		Slug: "flow-flow-1",
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		snapshot, err := service.Snapshot(ctx, "flow-1")
		if err != nil {
			return false
		}

		var decoded struct {
			Version int `json:"version"`
		}

		return json.Unmarshal(snapshot, &decoded) == nil && decoded.Version == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Close())
}
