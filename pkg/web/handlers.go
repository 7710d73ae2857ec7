// Package web provides HTTP handlers and REST API endpoints for tree-flow
// management.
package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/services"
	"github.com/dialogkit/treeflow/pkg/talkflow"
)

type APIHandlers struct {
	treeFlowService *services.TreeFlow
	talkFlowService *talkflow.Service
	validator       *validator.Validate
}

func NewAPIHandlers(
	treeFlowService *services.TreeFlow,
	talkFlowService *talkflow.Service,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		treeFlowService: treeFlowService,
		talkFlowService: talkFlowService,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.treeFlowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "TreeFlow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "TreeFlow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetTreeFlows(c fiber.Ctx) error {
	opts, err := h.parseListOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.treeFlowService.List(c.Context(), *opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"tree_flows":    result.Flows,
		"total_count":   result.TotalCount,
		"has_next_page": result.HasNextPage,
		"pagination": fiber.Map{
			"limit":  opts.Limit,
			"offset": opts.Offset,
		},
	})
}

// parseListOptions parses and validates query parameters for listing flows.
func (h *APIHandlers) parseListOptions(c fiber.Ctx) (*persistence.ListOptions, error) {
	opts := &persistence.ListOptions{}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return nil, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return nil, err
		}

		opts.Offset = offset
	}

	if activeStr := c.Query("active"); activeStr != "" {
		active, err := strconv.ParseBool(activeStr)
		if err != nil {
			return nil, err
		}

		opts.Active = &active
	}

	opts.SortBy = c.Query("sort_by")
	opts.SortOrder = c.Query("sort_order")

	return opts, nil
}

func (h *APIHandlers) GetTreeFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	flow, err := h.treeFlowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsTreeFlowNotFound(err) {
			return notFound(c, "Tree flow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) GetTreeFlowBySlug(c fiber.Ctx) error {
	slug := c.Params("slug")
	if slug == "" {
		return badRequest(c, "Tree flow slug is required")
	}

	flow, err := h.treeFlowService.FetchBySlug(c.Context(), slug)
	if err != nil {
		if persistence.IsTreeFlowNotFound(err) {
			return notFound(c, "Tree flow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(flow)
}

func (h *APIHandlers) CreateTreeFlow(c fiber.Ctx) error {
	var req CreateTreeFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	flow := &models.TreeFlow{
		Name: req.Name,
		Slug: req.Slug,
	}

	for _, stepReq := range req.Steps {
		flow.AttachStep(stepFromRequest(stepReq))
	}

	created, err := h.treeFlowService.Create(c.Context(), flow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateTreeFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	var req UpdateTreeFlowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.treeFlowService.Update(c.Context(), id, services.UpdateTreeFlowRequest{
		Name:   req.Name,
		Slug:   req.Slug,
		Active: req.Active,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) UpdateCanvasLayout(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	var req UpdateCanvasLayoutRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	layout, err := json.Marshal(req.Layout)
	if err != nil {
		return badRequest(c, "Invalid layout payload")
	}

	if err := h.treeFlowService.UpdateCanvasLayout(c.Context(), id, layout); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeleteTreeFlow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	err := h.treeFlowService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsTreeFlowNotFound(err) {
			return notFound(c, "Tree flow not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateStep(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	var req CreateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.treeFlowService.AddStep(c.Context(), id, stepFromRequest(req))
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(step)
}

func (h *APIHandlers) UpdateStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Tree flow ID and step ID are required")
	}

	var req UpdateStepRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	step, err := h.treeFlowService.UpdateStep(c.Context(), id, stepID, services.UpdateStepRequest{
		Name:         req.Name,
		Prompt:       req.Prompt,
		Objective:    req.Objective,
		IsEntryPoint: req.IsEntryPoint,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) SetEntryPoint(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Tree flow ID and step ID are required")
	}

	step, err := h.treeFlowService.SetEntryPoint(c.Context(), id, stepID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(step)
}

func (h *APIHandlers) DeleteStep(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Tree flow ID and step ID are required")
	}

	if err := h.treeFlowService.DeleteStep(c.Context(), id, stepID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateInput(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Tree flow ID and step ID are required")
	}

	var req CreatePortRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	input, err := h.treeFlowService.AddInput(c.Context(), id, stepID, &models.StepInput{
		Name:      req.Name,
		InputType: models.InputType(req.InputType),
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(input)
}

func (h *APIHandlers) CreateOutput(c fiber.Ctx) error {
	id := c.Params("id")
	stepID := c.Params("stepId")

	if id == "" || stepID == "" {
		return badRequest(c, "Tree flow ID and step ID are required")
	}

	var req CreatePortRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	output, err := h.treeFlowService.AddOutput(c.Context(), id, stepID, &models.StepOutput{
		Name:      req.Name,
		Condition: req.Condition,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(output)
}

func (h *APIHandlers) DeleteInput(c fiber.Ctx) error {
	id := c.Params("id")
	inputID := c.Params("inputId")

	if id == "" || inputID == "" {
		return badRequest(c, "Tree flow ID and input ID are required")
	}

	if err := h.treeFlowService.DeleteInput(c.Context(), id, inputID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) DeleteOutput(c fiber.Ctx) error {
	id := c.Params("id")
	outputID := c.Params("outputId")

	if id == "" || outputID == "" {
		return badRequest(c, "Tree flow ID and output ID are required")
	}

	if err := h.treeFlowService.DeleteOutput(c.Context(), id, outputID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CreateConnection(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	var req CreateConnectionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	conn, err := h.treeFlowService.Connect(c.Context(), id, req.SourceOutputID, req.TargetInputID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(conn)
}

func (h *APIHandlers) DeleteConnection(c fiber.Ctx) error {
	id := c.Params("id")
	connectionID := c.Params("connectionId")

	if id == "" || connectionID == "" {
		return badRequest(c, "Tree flow ID and connection ID are required")
	}

	if err := h.treeFlowService.Disconnect(c.Context(), id, connectionID); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// GetSnapshot serves the materialized graph snapshot of a flow.
func (h *APIHandlers) GetSnapshot(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	data, err := h.talkFlowService.Snapshot(c.Context(), id)
	if err != nil {
		if persistence.IsTreeFlowNotFound(err) {
			return notFound(c, "Tree flow has no materialized snapshot")
		}

		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(data)
}

// GetTemplate serves the materialized execution template of a flow.
func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Tree flow ID is required")
	}

	data, err := h.talkFlowService.TemplateBytes(c.Context(), id)
	if err != nil {
		if persistence.IsTreeFlowNotFound(err) {
			return notFound(c, "Tree flow has no materialized template")
		}

		return internalError(c, err)
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(data)
}
