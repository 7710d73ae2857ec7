package materialize

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dialogkit/treeflow/pkg/eventbus"
	"github.com/dialogkit/treeflow/pkg/events"
	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/otelhelper"
	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/track"
)

// MaterializationError reports that recomputing the derived views of one
// flow failed. It never aborts the batch or the enclosing commit.
type MaterializationError struct {
	FlowID string
	Err    error
}

func (e *MaterializationError) Error() string {
	return fmt.Sprintf("materialization failed for tree flow %s: %v", e.FlowID, e.Err)
}

func (e *MaterializationError) Unwrap() error {
	return e.Err
}

// Materializer recomputes and persists the cached snapshot and execution
// template of every dirty flow at the commit boundary.
type Materializer struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	tracer      trace.Tracer
	logger      *slog.Logger
}

// NewMaterializer creates a materializer. The publisher and tracer are
// optional; pass nil to skip event publishing or tracing.
func NewMaterializer(
	p persistence.Persistence,
	publisher eventbus.EventPublisher,
	tracer trace.Tracer,
	logger *slog.Logger,
) *Materializer {
	return &Materializer{
		persistence: p,
		publisher:   publisher,
		tracer:      tracer,
		logger:      logger,
	}
}

// Flush recomputes the derived views for every flow in the dirty set. It runs
// at most once per commit boundary: if a guard is already held, the call is a
// nested boundary triggered by the materializer's own writes and returns
// immediately. Each flow is materialized independently; failures are logged
// per flow and never stop the batch. The dirty set is cleared before the
// cache writes begin, so those writes (the second unit of work) cannot feed
// the set again.
func (m *Materializer) Flush(ctx context.Context, dirty *track.DirtySet) {
	if dirty.Len() == 0 {
		return
	}

	guard, ok := dirty.BeginMaterialize()
	if !ok {
		return
	}
	defer guard.Release()

	flows := dirty.Flows()
	dirty.Clear()

	if m.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, m.tracer, "treeflow.materialize.batch",
			attribute.Int("treeflow.batch.size", len(flows)),
		)
		defer span.End()
	}

	for _, flow := range flows {
		if err := m.materializeFlow(ctx, flow); err != nil {
			m.logger.ErrorContext(ctx, "materialization failed",
				"tree_flow_id", flow.ID,
				"error", err,
			)
		}
	}
}

func (m *Materializer) materializeFlow(ctx context.Context, flow *models.TreeFlow) error {
	// A flow created and discarded inside the same unit of work never
	// reached the store; nothing to regenerate.
	if flow.ID == "" {
		return nil
	}

	if m.tracer != nil {
		var span trace.Span

		ctx, span = otelhelper.StartSpan(ctx, m.tracer, "treeflow.materialize.flow",
			attribute.String(otelhelper.FlowIDKey, flow.ID),
		)
		defer span.End()
	}

	repo := m.persistence.TreeFlows()

	// Reload for a consistent view of all structural writes in this unit
	// of work. A flow deleted concurrently is a no-op, not an error.
	fresh, err := repo.GetByID(ctx, flow.ID)
	if err != nil {
		return &MaterializationError{FlowID: flow.ID, Err: err}
	}

	if fresh == nil {
		m.logger.DebugContext(ctx, "skipping materialization of deleted tree flow", "tree_flow_id", flow.ID)

		return nil
	}

	snapshot, err := EncodeSnapshot(fresh)
	if err != nil {
		return &MaterializationError{FlowID: flow.ID, Err: err}
	}

	if err := ValidateSnapshot(snapshot); err != nil {
		return &MaterializationError{FlowID: flow.ID, Err: err}
	}

	template, err := EncodeTemplate(fresh)
	if err != nil {
		return &MaterializationError{FlowID: flow.ID, Err: err}
	}

	if err := repo.UpdateCachedViews(ctx, fresh.ID, snapshot, template); err != nil {
		return &MaterializationError{FlowID: flow.ID, Err: err}
	}

	m.publishMaterialized(ctx, fresh, len(snapshot), len(template))

	return nil
}

func (m *Materializer) publishMaterialized(ctx context.Context, flow *models.TreeFlow, snapshotBytes, templateBytes int) {
	if m.publisher == nil {
		return
	}

	now := time.Now().UTC()
	event := events.TreeFlowMaterialized{
		BaseEvent: events.BaseEvent{
			Type:      events.TreeFlowMaterializedEvent,
			Timestamp: now,
			FlowID:    flow.ID,
		},
		Slug:           flow.Slug,
		SnapshotBytes:  snapshotBytes,
		TemplateBytes:  templateBytes,
		MaterializedAt: now,
	}

	if err := m.publisher.Publish(ctx, flow.ID, event); err != nil {
		m.logger.WarnContext(ctx, "failed to publish materialized event",
			"tree_flow_id", flow.ID,
			"error", err,
		)
	}
}
