package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dialogkit/treeflow/pkg/materialize"
	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/persistence/file"
	"github.com/dialogkit/treeflow/pkg/services"
	"github.com/dialogkit/treeflow/pkg/talkflow"
	"github.com/dialogkit/treeflow/pkg/web"
)

func setupTestApp(t *testing.T) (*fiber.App, *services.TreeFlow) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	materializer := materialize.NewMaterializer(p, nil, nil, slog.Default())
	treeFlowService := services.NewTreeFlow(p, materializer, nil, slog.Default())

	cache, err := talkflow.NewLRUCache(16)
	require.NoError(t, err)

	talkFlowService := talkflow.NewService(p, cache, slog.Default())
	validate := validator.New(validator.WithRequiredStructEnabled())

	handlers := web.NewAPIHandlers(treeFlowService, talkFlowService, validate)

	app := fiber.New()

	tf := app.Group("/tree-flows")
	tf.Get("/", handlers.GetTreeFlows)
	tf.Post("/", handlers.CreateTreeFlow)
	tf.Get("/slug/:slug", handlers.GetTreeFlowBySlug)
	tf.Get("/:id", handlers.GetTreeFlow)
	tf.Patch("/:id", handlers.UpdateTreeFlow)
	tf.Delete("/:id", handlers.DeleteTreeFlow)
	tf.Put("/:id/canvas-layout", handlers.UpdateCanvasLayout)
	tf.Post("/:id/steps", handlers.CreateStep)
	tf.Patch("/:id/steps/:stepId", handlers.UpdateStep)
	tf.Delete("/:id/steps/:stepId", handlers.DeleteStep)
	tf.Post("/:id/steps/:stepId/entry-point", handlers.SetEntryPoint)
	tf.Post("/:id/steps/:stepId/inputs", handlers.CreateInput)
	tf.Post("/:id/steps/:stepId/outputs", handlers.CreateOutput)
	tf.Post("/:id/connections", handlers.CreateConnection)
	tf.Delete("/:id/connections/:connectionId", handlers.DeleteConnection)
	tf.Get("/:id/snapshot", handlers.GetSnapshot)
	tf.Get("/:id/template", handlers.GetTemplate)

	return app, treeFlowService
}

func doJSON(t *testing.T, app *fiber.App, method, url string, payload any) *http.Response {
	t.Helper()

	var body io.Reader

	if payload != nil {
		encoded, err := json.Marshal(payload)
		require.NoError(t, err)

		body = bytes.NewBuffer(encoded)
	}

	req := httptest.NewRequest(method, url, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out T

	require.NoError(t, json.Unmarshal(body, &out))

	return out
}

func TestCreateTreeFlow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{Name: "Web Flow"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	flow := decodeBody[models.TreeFlow](t, resp)
	assert.NotEmpty(t, flow.ID)
	assert.Equal(t, "Web Flow", flow.Name)
	assert.Equal(t, "web-flow", flow.Slug)
}

func TestCreateTreeFlow_Validation(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{Name: "ab"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetTreeFlow_NotFound(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/tree-flows/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTreeFlowLifecycleOverHTTP(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	// Create a flow with two steps.
	resp := doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{Name: "Lifecycle"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	flow := decodeBody[models.TreeFlow](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/tree-flows/"+flow.ID+"/steps", web.CreateStepRequest{
		Name:         "Ask",
		IsEntryPoint: true,
		Inputs:       []web.CreatePortRequest{{Name: "start", InputType: "any"}},
		Outputs:      []web.CreatePortRequest{{Name: "answered"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ask := decodeBody[models.Step](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/tree-flows/"+flow.ID+"/steps", web.CreateStepRequest{
		Name:   "Resolve",
		Inputs: []web.CreatePortRequest{{Name: "from-ask", InputType: "completed"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resolve := decodeBody[models.Step](t, resp)

	// Connect them.
	resp = doJSON(t, app, http.MethodPost, "/tree-flows/"+flow.ID+"/connections", web.CreateConnectionRequest{
		SourceOutputID: ask.Outputs[0].ID,
		TargetInputID:  resolve.Inputs[0].ID,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// The materialized template is served back.
	resp = doJSON(t, app, http.MethodGet, "/tree-flows/"+flow.ID+"/template", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	template := decodeBody[materialize.ExecutionTemplate](t, resp)
	assert.Equal(t, ask.ID, template.EntryStepID)
	require.Len(t, template.Steps, 2)

	resp = doJSON(t, app, http.MethodGet, "/tree-flows/"+flow.ID+"/snapshot", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Delete the flow; artifacts disappear with it.
	resp = doJSON(t, app, http.MethodDelete, "/tree-flows/"+flow.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/tree-flows/"+flow.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateConnection_RejectionProblemTypes(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{Name: "Rejections"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	flow := decodeBody[models.TreeFlow](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/tree-flows/"+flow.ID+"/steps", web.CreateStepRequest{
		Name:    "Loop",
		Inputs:  []web.CreatePortRequest{{Name: "in"}},
		Outputs: []web.CreatePortRequest{{Name: "out"}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	step := decodeBody[models.Step](t, resp)

	resp = doJSON(t, app, http.MethodPost, "/tree-flows/"+flow.ID+"/connections", web.CreateConnectionRequest{
		SourceOutputID: step.Outputs[0].ID,
		TargetInputID:  step.Inputs[0].ID,
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	problem := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "self_loop", problem["type"])
}

func TestUpdateTreeFlow(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{Name: "Before"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	flow := decodeBody[models.TreeFlow](t, resp)

	name := "After Rename"
	active := true

	resp = doJSON(t, app, http.MethodPatch, "/tree-flows/"+flow.ID, web.UpdateTreeFlowRequest{Name: &name, Active: &active})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	updated := decodeBody[models.TreeFlow](t, resp)
	assert.Equal(t, "After Rename", updated.Name)
	assert.True(t, updated.Active)
}

func TestSetEntryPointOverHTTP(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{
		Name: "Entry Moves",
		Steps: []web.CreateStepRequest{
			{Name: "First", IsEntryPoint: true},
			{Name: "Second"},
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	flow := decodeBody[models.TreeFlow](t, resp)
	require.Len(t, flow.Steps, 2)

	second := flow.Steps[1]

	resp = doJSON(t, app, http.MethodPost, "/tree-flows/"+flow.ID+"/steps/"+second.ID+"/entry-point", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/tree-flows/"+flow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reloaded := decodeBody[models.TreeFlow](t, resp)

	var entryCount int

	for _, step := range reloaded.Steps {
		if step.IsEntryPoint {
			entryCount++
			assert.Equal(t, second.ID, step.ID)
		}
	}

	assert.Equal(t, 1, entryCount)
}

func TestCanvasLayoutEndpoint(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodPost, "/tree-flows", web.CreateTreeFlowRequest{Name: "Layout"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	flow := decodeBody[models.TreeFlow](t, resp)

	resp = doJSON(t, app, http.MethodPut, "/tree-flows/"+flow.ID+"/canvas-layout", web.UpdateCanvasLayoutRequest{
		Layout: map[string]any{"zoom": 2},
	})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = doJSON(t, app, http.MethodGet, "/tree-flows/"+flow.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reloaded := decodeBody[models.TreeFlow](t, resp)
	assert.JSONEq(t, `{"zoom":2}`, string(reloaded.CanvasLayout))
}

func TestListTreeFlows(t *testing.T) {
	t.Parallel()

	app, service := setupTestApp(t)
	ctx := context.Background()

	for _, name := range []string{"Alpha Flow", "Beta Flow"} {
		_, err := service.Create(ctx, &models.TreeFlow{Name: name})
		require.NoError(t, err)
	}

	resp := doJSON(t, app, http.MethodGet, "/tree-flows/?sort_by=name&sort_order=asc", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listing := decodeBody[map[string]any](t, resp)
	assert.EqualValues(t, 2, listing["total_count"])

	resp = doJSON(t, app, http.MethodGet, "/tree-flows/?limit=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSnapshotEndpoint_NotMaterialized(t *testing.T) {
	t.Parallel()

	app, _ := setupTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/tree-flows/missing/snapshot", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
