package talkflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dialogkit/treeflow/pkg/eventbus"
	"github.com/dialogkit/treeflow/pkg/events"
	"github.com/dialogkit/treeflow/pkg/materialize"
	"github.com/dialogkit/treeflow/pkg/persistence"
)

// Service serves materialized flow artifacts to conversation runners.
type Service struct {
	persistence persistence.Persistence
	cache       ArtifactCache
	logger      *slog.Logger
}

// NewService creates a talkflow read service backed by the given persistence
// layer and artifact cache.
func NewService(p persistence.Persistence, cache ArtifactCache, logger *slog.Logger) *Service {
	return &Service{
		persistence: p,
		cache:       cache,
		logger:      logger.With("module", "talkflow"),
	}
}

func snapshotKey(flowID string) string { return flowID + ":snapshot" }
func templateKey(flowID string) string { return flowID + ":template" }

// Snapshot returns the encoded graph snapshot for a flow.
func (s *Service) Snapshot(ctx context.Context, flowID string) ([]byte, error) {
	if cached, ok := s.cache.Get(ctx, snapshotKey(flowID)); ok {
		return cached, nil
	}

	flow, err := s.persistence.TreeFlows().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("fetch tree flow %s: %w", flowID, err)
	}

	if flow == nil || len(flow.JSONVersion) == 0 {
		return nil, persistence.NewTreeFlowError("snapshot", flowID, persistence.ErrTreeFlowNotFound)
	}

	data := []byte(flow.JSONVersion)
	s.cache.Set(ctx, snapshotKey(flowID), data)

	return data, nil
}

// Template returns the decoded execution template for a flow.
func (s *Service) Template(ctx context.Context, flowID string) (*materialize.ExecutionTemplate, error) {
	data, err := s.TemplateBytes(ctx, flowID)
	if err != nil {
		return nil, err
	}

	template, err := materialize.DecodeTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("decode template for tree flow %s: %w", flowID, err)
	}

	return template, nil
}

// TemplateBytes returns the encoded execution template for a flow.
func (s *Service) TemplateBytes(ctx context.Context, flowID string) ([]byte, error) {
	if cached, ok := s.cache.Get(ctx, templateKey(flowID)); ok {
		return cached, nil
	}

	flow, err := s.persistence.TreeFlows().GetByID(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("fetch tree flow %s: %w", flowID, err)
	}

	if flow == nil || len(flow.TemplateVersion) == 0 {
		return nil, persistence.NewTreeFlowError("template", flowID, persistence.ErrTreeFlowNotFound)
	}

	data := []byte(flow.TemplateVersion)
	s.cache.Set(ctx, templateKey(flowID), data)

	return data, nil
}

// Invalidate drops the cached artifacts of a flow.
func (s *Service) Invalidate(ctx context.Context, flowID string) {
	s.cache.Remove(ctx, snapshotKey(flowID))
	s.cache.Remove(ctx, templateKey(flowID))
}

// SubscribeInvalidation wires cache invalidation to materialization and
// deletion events.
func (s *Service) SubscribeInvalidation(ctx context.Context, bus eventbus.EventBus) error {
	err := bus.Handle(events.TreeFlowMaterializedEvent, func(ctx context.Context, event any) error {
		materialized, ok := event.(*events.TreeFlowMaterialized)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		s.logger.DebugContext(ctx, "Invalidating cached artifacts", "tree_flow_id", materialized.FlowID)
		s.Invalidate(ctx, materialized.FlowID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("register materialized handler: %w", err)
	}

	err = bus.Handle(events.TreeFlowDeletedEvent, func(ctx context.Context, event any) error {
		deleted, ok := event.(*events.TreeFlowDeleted)
		if !ok {
			return fmt.Errorf("unexpected event payload %T", event)
		}

		s.logger.DebugContext(ctx, "Invalidating cached artifacts", "tree_flow_id", deleted.FlowID)
		s.Invalidate(ctx, deleted.FlowID)

		return nil
	})
	if err != nil {
		return fmt.Errorf("register deleted handler: %w", err)
	}

	return bus.Subscribe(ctx)
}
