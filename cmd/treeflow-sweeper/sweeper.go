// Package main provides the TreeFlow sweeper, a cron-driven worker that
// re-materializes active flows so caches left stale by earlier
// materialization failures eventually heal.
package main

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/dialogkit/treeflow/pkg/eventbus"
	"github.com/dialogkit/treeflow/pkg/materialize"
	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/services"
)

const sweepPageSize = 100

type Sweeper struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	service     *services.TreeFlow
}

func NewSweeper(logger *slog.Logger, p persistence.Persistence, eventBus eventbus.EventBus) *Sweeper {
	materializer := materialize.NewMaterializer(p, eventBus, nil, logger)

	return &Sweeper{
		logger:      logger,
		persistence: p,
		service:     services.NewTreeFlow(p, materializer, eventBus, logger),
	}
}

// Run blocks until the context is cancelled, sweeping on the given cron
// schedule.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(schedule, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Sweeper started", "schedule", schedule)
	scheduler.Start()

	<-ctx.Done()

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	return nil
}

// Sweep re-materializes every active flow, page by page. Failures are logged
// per flow and never stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	active := true
	offset := 0

	for {
		result, err := s.persistence.TreeFlows().List(ctx, persistence.ListOptions{
			Limit:  sweepPageSize,
			Offset: offset,
			Active: &active,
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to list tree flows", "error", err)

			return
		}

		for _, flow := range result.Flows {
			if err := s.service.Rematerialize(ctx, flow.ID); err != nil {
				s.logger.WarnContext(ctx, "Failed to re-materialize tree flow",
					"tree_flow_id", flow.ID,
					"error", err,
				)
			}
		}

		if !result.HasNextPage {
			return
		}

		offset += sweepPageSize
	}
}
