package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dialogkit/treeflow/pkg/eventbus"
	"github.com/dialogkit/treeflow/pkg/events"
	"github.com/dialogkit/treeflow/pkg/graph"
	"github.com/dialogkit/treeflow/pkg/materialize"
	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/track"
	"github.com/dialogkit/treeflow/pkg/uow"
)

var (
	// ErrTreeFlowNotFound is returned when a flow is not found.
	ErrTreeFlowNotFound = persistence.ErrTreeFlowNotFound

	// ErrStepNotFound is returned when a step is not found.
	ErrStepNotFound = persistence.ErrStepNotFound

	// ErrConnectionNotFound is returned when a connection is not found.
	ErrConnectionNotFound = persistence.ErrConnectionNotFound
)

// TreeFlow implements the flow editing operations. Every mutating operation
// runs inside its own unit of work: entity mutations feed the dirty tracker,
// the structural write is staged, and committing triggers materialization of
// the affected flow's derived views.
type TreeFlow struct {
	persistence  persistence.Persistence
	materializer *materialize.Materializer
	publisher    eventbus.EventPublisher
	logger       *slog.Logger
}

// NewTreeFlow creates the flow service. The publisher is optional.
func NewTreeFlow(
	p persistence.Persistence,
	materializer *materialize.Materializer,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *TreeFlow {
	return &TreeFlow{
		persistence:  p,
		materializer: materializer,
		publisher:    publisher,
		logger:       logger,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *TreeFlow) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

func (s *TreeFlow) begin() *uow.UnitOfWork {
	return uow.New(s.logger, s.materializer)
}

func (s *TreeFlow) load(ctx context.Context, flowID string) (*models.TreeFlow, error) {
	flow, err := s.persistence.TreeFlows().GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow == nil {
		return nil, ErrTreeFlowNotFound
	}

	return flow, nil
}

func (s *TreeFlow) stageSave(u *uow.UnitOfWork, flow *models.TreeFlow) {
	u.Stage(func(ctx context.Context) error {
		return s.persistence.TreeFlows().Save(ctx, flow)
	})
}

// Create persists a new flow. The aggregate may arrive with steps already
// attached; each one gets an identity and entry-point enforcement applies.
func (s *TreeFlow) Create(ctx context.Context, flow *models.TreeFlow) (*models.TreeFlow, error) {
	if flow == nil {
		return nil, ErrTreeFlowNil
	}

	if strings.TrimSpace(flow.Name) == "" {
		return nil, ErrNameRequired
	}

	if flow.Slug == "" {
		flow.Slug = slugify(flow.Name)
	}

	now := time.Now().UTC()
	flow.ID = uuid.New().String()
	flow.CreatedAt = now
	flow.UpdatedAt = now

	for _, step := range flow.Steps {
		s.adoptStep(flow, step)
	}

	flow.Rewire()

	u := s.begin()
	u.Insert(flow)

	for _, step := range flow.Steps {
		u.Insert(step)

		for _, other := range graph.EnforceEntryPoint(flow, step) {
			u.Update(other, models.FieldIsEntryPoint)
		}
	}

	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to create tree flow: %w", err)
	}

	s.publish(ctx, flow.ID, events.TreeFlowCreated{
		BaseEvent: events.BaseEvent{
			Type:      events.TreeFlowCreatedEvent,
			Timestamp: time.Now().UTC(),
			FlowID:    flow.ID,
		},
		Slug: flow.Slug,
	})

	return flow, nil
}

// FetchByID retrieves a flow by its ID.
func (s *TreeFlow) FetchByID(ctx context.Context, flowID string) (*models.TreeFlow, error) {
	return s.load(ctx, flowID)
}

// FetchBySlug retrieves a flow by its slug.
func (s *TreeFlow) FetchBySlug(ctx context.Context, slug string) (*models.TreeFlow, error) {
	flow, err := s.persistence.TreeFlows().GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if flow == nil {
		return nil, ErrTreeFlowNotFound
	}

	return flow, nil
}

// List retrieves flows with filtering and pagination.
func (s *TreeFlow) List(ctx context.Context, opts persistence.ListOptions) (*persistence.ListResult, error) {
	return s.persistence.TreeFlows().List(ctx, opts)
}

// UpdateTreeFlowRequest patches flow metadata. Nil fields are left alone.
type UpdateTreeFlowRequest struct {
	Name   *string
	Slug   *string
	Active *bool
}

// Update patches a flow's metadata.
func (s *TreeFlow) Update(ctx context.Context, flowID string, req UpdateTreeFlowRequest) (*models.TreeFlow, error) {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}

	changed := make([]string, 0, 3)

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrNameRequired
		}

		flow.Name = *req.Name
		changed = append(changed, "name")
	}

	if req.Slug != nil {
		flow.Slug = *req.Slug
		changed = append(changed, "slug")
	}

	if req.Active != nil {
		flow.Active = *req.Active
		changed = append(changed, "active")
	}

	if len(changed) == 0 {
		return flow, nil
	}

	u := s.begin()
	u.Update(flow, changed...)
	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to update tree flow: %w", err)
	}

	return flow, nil
}

// UpdateCanvasLayout stores the UI layout blob. Layout is not graph
// structure, so the flow's derived views are left untouched.
func (s *TreeFlow) UpdateCanvasLayout(ctx context.Context, flowID string, layout []byte) error {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return err
	}

	flow.CanvasLayout = layout

	u := s.begin()
	u.Update(flow, models.FieldCanvasLayout)
	s.stageSave(u, flow)

	return u.Commit(ctx)
}

// Delete removes a flow and its entire graph, and drops it from any pending
// dirty set.
func (s *TreeFlow) Delete(ctx context.Context, flowID string) error {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return err
	}

	u := s.begin()
	u.Delete(flow)
	u.Stage(func(ctx context.Context) error {
		return s.persistence.TreeFlows().Delete(ctx, flowID)
	})

	if err := u.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete tree flow: %w", err)
	}

	s.publish(ctx, flowID, events.TreeFlowDeleted{
		BaseEvent: events.BaseEvent{
			Type:      events.TreeFlowDeletedEvent,
			Timestamp: time.Now().UTC(),
			FlowID:    flowID,
		},
	})

	return nil
}

// AddStep adds a step to a flow. If the step claims the entry point, every
// other step's flag is cleared in the same unit of work.
func (s *TreeFlow) AddStep(ctx context.Context, flowID string, step *models.Step) (*models.Step, error) {
	if step == nil {
		return nil, ErrStepNil
	}

	if strings.TrimSpace(step.Name) == "" {
		return nil, ErrStepNameRequired
	}

	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}

	s.adoptStep(flow, step)
	flow.AttachStep(step)
	flow.Rewire()

	u := s.begin()
	u.Insert(step)

	for _, input := range step.Inputs {
		u.Insert(input)
	}

	for _, output := range step.Outputs {
		u.Insert(output)
	}

	for _, other := range graph.EnforceEntryPoint(flow, step) {
		u.Update(other, models.FieldIsEntryPoint)
	}

	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to add step: %w", err)
	}

	return step, nil
}

func (s *TreeFlow) adoptStep(flow *models.TreeFlow, step *models.Step) {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}

	step.TreeFlowID = flow.ID

	if step.Slug == "" {
		step.Slug = slugify(step.Name)
	}

	for _, input := range step.Inputs {
		if input.ID == "" {
			input.ID = uuid.New().String()
		}

		input.StepID = step.ID

		if input.InputType == "" {
			input.InputType = models.InputTypeAny
		}
	}

	for _, output := range step.Outputs {
		if output.ID == "" {
			output.ID = uuid.New().String()
		}

		output.StepID = step.ID
	}
}

// UpdateStepRequest patches a step. Nil fields are left alone.
type UpdateStepRequest struct {
	Name         *string
	Prompt       *string
	Objective    *string
	IsEntryPoint *bool
}

// UpdateStep patches a step's fields, enforcing the entry-point invariant
// when the flag is turned on.
func (s *TreeFlow) UpdateStep(ctx context.Context, flowID, stepID string, req UpdateStepRequest) (*models.Step, error) {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}

	step := flow.StepByID(stepID)
	if step == nil {
		return nil, ErrStepNotFound
	}

	changed := make([]string, 0, 4)

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return nil, ErrStepNameRequired
		}

		step.Name = *req.Name
		changed = append(changed, "name")
	}

	if req.Prompt != nil {
		step.Prompt = *req.Prompt
		changed = append(changed, "prompt")
	}

	if req.Objective != nil {
		step.Objective = *req.Objective
		changed = append(changed, "objective")
	}

	if req.IsEntryPoint != nil {
		step.IsEntryPoint = *req.IsEntryPoint
		changed = append(changed, models.FieldIsEntryPoint)
	}

	if len(changed) == 0 {
		return step, nil
	}

	u := s.begin()
	u.Update(step, changed...)

	for _, other := range graph.EnforceEntryPoint(flow, step) {
		u.Update(other, models.FieldIsEntryPoint)
	}

	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to update step: %w", err)
	}

	return step, nil
}

// SetEntryPoint flags a step as the flow's entry point, clearing the flag on
// every other step in the same unit of work.
func (s *TreeFlow) SetEntryPoint(ctx context.Context, flowID, stepID string) (*models.Step, error) {
	entry := true

	return s.UpdateStep(ctx, flowID, stepID, UpdateStepRequest{IsEntryPoint: &entry})
}

// DeleteStep removes a step, cascading to its ports and any connection
// touching them.
func (s *TreeFlow) DeleteStep(ctx context.Context, flowID, stepID string) error {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return err
	}

	step, removedConns := flow.RemoveStep(stepID)
	if step == nil {
		return ErrStepNotFound
	}

	u := s.begin()

	for _, conn := range removedConns {
		u.Delete(conn)
	}

	u.Delete(step)
	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return fmt.Errorf("failed to delete step: %w", err)
	}

	return nil
}

// AddInput adds an inbound port to a step.
func (s *TreeFlow) AddInput(ctx context.Context, flowID, stepID string, input *models.StepInput) (*models.StepInput, error) {
	if input == nil || strings.TrimSpace(input.Name) == "" {
		return nil, ErrPortNameRequired
	}

	switch input.InputType {
	case "", models.InputTypeAny, models.InputTypeCompleted, models.InputTypeNotCompleted:
	default:
		return nil, ErrInvalidInputType
	}

	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}

	step := flow.StepByID(stepID)
	if step == nil {
		return nil, ErrStepNotFound
	}

	input.ID = uuid.New().String()

	if input.InputType == "" {
		input.InputType = models.InputTypeAny
	}

	step.AttachInput(input)

	u := s.begin()
	u.Insert(input)
	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to add input: %w", err)
	}

	return input, nil
}

// AddOutput adds an outbound port to a step.
func (s *TreeFlow) AddOutput(ctx context.Context, flowID, stepID string, output *models.StepOutput) (*models.StepOutput, error) {
	if output == nil || strings.TrimSpace(output.Name) == "" {
		return nil, ErrPortNameRequired
	}

	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}

	step := flow.StepByID(stepID)
	if step == nil {
		return nil, ErrStepNotFound
	}

	output.ID = uuid.New().String()
	step.AttachOutput(output)

	u := s.begin()
	u.Insert(output)
	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to add output: %w", err)
	}

	return output, nil
}

// DeleteInput removes an inbound port, cascading to connections targeting it.
func (s *TreeFlow) DeleteInput(ctx context.Context, flowID, inputID string) error {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return err
	}

	input, removedConns := flow.RemoveInput(inputID)
	if input == nil {
		return persistence.ErrInputNotFound
	}

	u := s.begin()

	for _, conn := range removedConns {
		u.Delete(conn)
	}

	u.Delete(input)
	s.stageSave(u, flow)

	return u.Commit(ctx)
}

// DeleteOutput removes an outbound port, cascading to its connection.
func (s *TreeFlow) DeleteOutput(ctx context.Context, flowID, outputID string) error {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return err
	}

	output, removedConns := flow.RemoveOutput(outputID)
	if output == nil {
		return persistence.ErrOutputNotFound
	}

	u := s.begin()

	for _, conn := range removedConns {
		u.Delete(conn)
	}

	u.Delete(output)
	s.stageSave(u, flow)

	return u.Commit(ctx)
}

// Connect validates and creates an edge from an output port to an input
// port. Rejections carry the specific reason (self-loop, output exhausted,
// duplicate pair) so callers can explain the refusal.
func (s *TreeFlow) Connect(ctx context.Context, flowID, outputID, inputID string) (*models.StepConnection, error) {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return nil, err
	}

	output := flow.OutputByID(outputID)
	if output == nil {
		return nil, persistence.ErrOutputNotFound
	}

	input := flow.InputByID(inputID)
	if input == nil {
		return nil, persistence.ErrInputNotFound
	}

	index := graph.IndexTreeFlow(flow)
	if err := graph.ValidateConnection(output, input, index); err != nil {
		return nil, err
	}

	conn := flow.Connect(uuid.New().String(), output, input)

	u := s.begin()
	u.Insert(conn)
	s.stageSave(u, flow)

	if err := u.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	return conn, nil
}

// Disconnect removes an edge by its ID.
func (s *TreeFlow) Disconnect(ctx context.Context, flowID, connectionID string) error {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return err
	}

	conn := flow.RemoveConnection(connectionID)
	if conn == nil {
		return ErrConnectionNotFound
	}

	u := s.begin()
	u.Delete(conn)
	s.stageSave(u, flow)

	return u.Commit(ctx)
}

// Rematerialize forces a fresh derived-view computation for one flow,
// regardless of tracked staleness. The sweeper uses it to heal caches left
// stale by earlier materialization failures.
func (s *TreeFlow) Rematerialize(ctx context.Context, flowID string) error {
	flow, err := s.load(ctx, flowID)
	if err != nil {
		return err
	}

	dirty := track.NewDirtySet()
	dirty.Mark(flow)
	s.materializer.Flush(ctx, dirty)

	return nil
}

func (s *TreeFlow) publish(ctx context.Context, key string, event eventbus.Event) {
	if s.publisher == nil {
		return
	}

	if err := s.publisher.Publish(ctx, key, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event",
			"event_type", event.GetType(),
			"error", err,
		)
	}
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)

	return strings.Trim(slug, "-")
}
