// Package main provides the TreeFlow API server implementation.
package main

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"go.opentelemetry.io/otel/trace"

	"github.com/dialogkit/treeflow/pkg/eventbus"
	"github.com/dialogkit/treeflow/pkg/materialize"
	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/services"
	"github.com/dialogkit/treeflow/pkg/talkflow"
	"github.com/dialogkit/treeflow/pkg/web"
)

const artifactCacheSize = 256

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	tracer      trace.Tracer
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	tracer trace.Tracer,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		eventBus:    eventBus,
		tracer:      tracer,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App(ctx context.Context) (*fiber.App, error) {
	materializer := materialize.NewMaterializer(a.persistence, a.eventBus, a.tracer, a.logger)
	treeFlowService := services.NewTreeFlow(a.persistence, materializer, a.eventBus, a.logger)

	cache, err := talkflow.NewLRUCache(artifactCacheSize)
	if err != nil {
		return nil, err
	}

	talkFlowService := talkflow.NewService(a.persistence, cache, a.logger)
	if err := talkFlowService.SubscribeInvalidation(ctx, a.eventBus); err != nil {
		return nil, err
	}

	handlers := web.NewAPIHandlers(treeFlowService, talkFlowService, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("TreeFlow API")
	})

	t := app.Group("/tree-flows")
	t.Get("/", handlers.GetTreeFlows)
	t.Post("/", handlers.CreateTreeFlow)
	t.Get("/slug/:slug", handlers.GetTreeFlowBySlug)
	t.Get("/:id", handlers.GetTreeFlow)
	t.Patch("/:id", handlers.UpdateTreeFlow)
	t.Delete("/:id", handlers.DeleteTreeFlow)
	t.Put("/:id/canvas-layout", handlers.UpdateCanvasLayout)

	// Step endpoints:
	t.Post("/:id/steps", handlers.CreateStep)
	t.Patch("/:id/steps/:stepId", handlers.UpdateStep)
	t.Delete("/:id/steps/:stepId", handlers.DeleteStep)
	t.Post("/:id/steps/:stepId/entry-point", handlers.SetEntryPoint)

	// Port endpoints:
	t.Post("/:id/steps/:stepId/inputs", handlers.CreateInput)
	t.Post("/:id/steps/:stepId/outputs", handlers.CreateOutput)
	t.Delete("/:id/inputs/:inputId", handlers.DeleteInput)
	t.Delete("/:id/outputs/:outputId", handlers.DeleteOutput)

	// Connection endpoints:
	t.Post("/:id/connections", handlers.CreateConnection)
	t.Delete("/:id/connections/:connectionId", handlers.DeleteConnection)

	// Materialized views served to the execution side:
	t.Get("/:id/snapshot", handlers.GetSnapshot)
	t.Get("/:id/template", handlers.GetTemplate)

	app.Get("/health", handlers.HealthCheck)

	return app, nil
}

func (a *API) Start(ctx context.Context, port int) error {
	app, err := a.App(ctx)
	if err != nil {
		return err
	}

	return app.Listen(":" + strconv.Itoa(port))
}
