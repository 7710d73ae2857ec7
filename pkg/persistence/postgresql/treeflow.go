package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/persistence"
)

// TreeFlowRepository handles tree-flow database operations. Aggregates are
// written whole: the flow row is upserted and the child rows replaced inside
// one transaction.
type TreeFlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTreeFlowRepository creates a new flow repository.
func NewTreeFlowRepository(db *sql.DB, logger *slog.Logger) *TreeFlowRepository {
	return &TreeFlowRepository{db: db, logger: logger}
}

// List returns paginated and filtered flows.
func (r *TreeFlowRepository) List(ctx context.Context, opts persistence.ListOptions) (*persistence.ListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	sortBy := "created_at"
	if opts.SortBy == "updated_at" || opts.SortBy == "name" {
		sortBy = opts.SortBy
	}

	direction := "DESC"
	if opts.SortOrder == "asc" {
		direction = "ASC"
	}

	where := ""
	args := []any{}

	if opts.Active != nil {
		where = "WHERE active = $1"
		args = append(args, *opts.Active)
	}

	var totalCount int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tree_flows "+where, args...).Scan(&totalCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count tree flows: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, name, slug, active, json_version, template_version, canvas_layout, created_at, updated_at
		FROM tree_flows
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d
	`, where, sortBy, direction, len(args)+1, len(args)+2)

	args = append(args, opts.Limit, opts.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tree flows: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flows := make([]*models.TreeFlow, 0)

	for rows.Next() {
		flow, err := r.scanFlowBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tree flow: %w", err)
		}

		if err := r.loadGraph(ctx, flow); err != nil {
			return nil, fmt.Errorf("failed to load tree flow graph: %w", err)
		}

		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tree flows: %w", err)
	}

	return &persistence.ListResult{
		Flows:       flows,
		TotalCount:  totalCount,
		HasNextPage: int64(opts.Offset+len(flows)) < totalCount,
	}, nil
}

// GetByID retrieves a flow with its full graph, returning nil when absent.
func (r *TreeFlowRepository) GetByID(ctx context.Context, id string) (*models.TreeFlow, error) {
	return r.getByField(ctx, "id", id)
}

// GetBySlug retrieves a flow by slug, returning nil when absent.
func (r *TreeFlowRepository) GetBySlug(ctx context.Context, slug string) (*models.TreeFlow, error) {
	return r.getByField(ctx, "slug", slug)
}

func (r *TreeFlowRepository) getByField(ctx context.Context, field, value string) (*models.TreeFlow, error) {
	query := fmt.Sprintf(`
		SELECT id, name, slug, active, json_version, template_version, canvas_layout, created_at, updated_at
		FROM tree_flows
		WHERE %s = $1
	`, field)

	row := r.db.QueryRowContext(ctx, query, value)

	flow, err := r.scanFlowBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan tree flow: %w", err)
	}

	if err := r.loadGraph(ctx, flow); err != nil {
		return nil, fmt.Errorf("failed to load tree flow graph: %w", err)
	}

	return flow, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *TreeFlowRepository) scanFlowBase(row rowScanner) (*models.TreeFlow, error) {
	var (
		flow            models.TreeFlow
		jsonVersion     sql.NullString
		templateVersion sql.NullString
		canvasLayout    sql.NullString
	)

	err := row.Scan(
		&flow.ID,
		&flow.Name,
		&flow.Slug,
		&flow.Active,
		&jsonVersion,
		&templateVersion,
		&canvasLayout,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if jsonVersion.Valid {
		flow.JSONVersion = json.RawMessage(jsonVersion.String)
	}

	if templateVersion.Valid {
		flow.TemplateVersion = json.RawMessage(templateVersion.String)
	}

	if canvasLayout.Valid {
		flow.CanvasLayout = json.RawMessage(canvasLayout.String)
	}

	return &flow, nil
}

func (r *TreeFlowRepository) loadGraph(ctx context.Context, flow *models.TreeFlow) error {
	if err := r.loadSteps(ctx, flow); err != nil {
		return err
	}

	if err := r.loadPorts(ctx, flow); err != nil {
		return err
	}

	if err := r.loadConnections(ctx, flow); err != nil {
		return err
	}

	flow.Rewire()

	return nil
}

func (r *TreeFlowRepository) loadSteps(ctx context.Context, flow *models.TreeFlow) error {
	query := `
		SELECT id, tree_flow_id, name, COALESCE(slug, ''), is_entry_point, COALESCE(prompt, ''), COALESCE(objective, '')
		FROM steps
		WHERE tree_flow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to query steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flow.Steps = make([]*models.Step, 0)

	for rows.Next() {
		var step models.Step

		err := rows.Scan(&step.ID, &step.TreeFlowID, &step.Name, &step.Slug, &step.IsEntryPoint, &step.Prompt, &step.Objective)
		if err != nil {
			return fmt.Errorf("failed to scan step: %w", err)
		}

		step.Inputs = make([]*models.StepInput, 0)
		step.Outputs = make([]*models.StepOutput, 0)
		flow.Steps = append(flow.Steps, &step)
	}

	return rows.Err()
}

func (r *TreeFlowRepository) loadPorts(ctx context.Context, flow *models.TreeFlow) error {
	stepsByID := make(map[string]*models.Step, len(flow.Steps))
	for _, step := range flow.Steps {
		stepsByID[step.ID] = step
	}

	inputQuery := `
		SELECT i.id, i.step_id, i.name, i.input_type
		FROM step_inputs i
		JOIN steps s ON s.id = i.step_id
		WHERE s.tree_flow_id = $1
		ORDER BY i.id
	`

	inputRows, err := r.db.QueryContext(ctx, inputQuery, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to query step inputs: %w", err)
	}

	defer func() {
		if err := inputRows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for inputRows.Next() {
		var input models.StepInput

		err := inputRows.Scan(&input.ID, &input.StepID, &input.Name, &input.InputType)
		if err != nil {
			return fmt.Errorf("failed to scan step input: %w", err)
		}

		if step, ok := stepsByID[input.StepID]; ok {
			step.Inputs = append(step.Inputs, &input)
		}
	}

	if err := inputRows.Err(); err != nil {
		return err
	}

	outputQuery := `
		SELECT o.id, o.step_id, o.name, COALESCE(o.condition, '')
		FROM step_outputs o
		JOIN steps s ON s.id = o.step_id
		WHERE s.tree_flow_id = $1
		ORDER BY o.id
	`

	outputRows, err := r.db.QueryContext(ctx, outputQuery, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to query step outputs: %w", err)
	}

	defer func() {
		if err := outputRows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	for outputRows.Next() {
		var output models.StepOutput

		err := outputRows.Scan(&output.ID, &output.StepID, &output.Name, &output.Condition)
		if err != nil {
			return fmt.Errorf("failed to scan step output: %w", err)
		}

		if step, ok := stepsByID[output.StepID]; ok {
			step.Outputs = append(step.Outputs, &output)
		}
	}

	return outputRows.Err()
}

func (r *TreeFlowRepository) loadConnections(ctx context.Context, flow *models.TreeFlow) error {
	query := `
		SELECT id, source_output_id, target_input_id, source_step_id, target_step_id
		FROM step_connections
		WHERE tree_flow_id = $1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, flow.ID)
	if err != nil {
		return fmt.Errorf("failed to query step connections: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	flow.Connections = make([]*models.StepConnection, 0)

	for rows.Next() {
		var conn models.StepConnection

		err := rows.Scan(&conn.ID, &conn.SourceOutputID, &conn.TargetInputID, &conn.SourceStepID, &conn.TargetStepID)
		if err != nil {
			return fmt.Errorf("failed to scan step connection: %w", err)
		}

		flow.Connections = append(flow.Connections, &conn)
	}

	return rows.Err()
}

// Save writes the whole aggregate inside one transaction.
func (r *TreeFlowRepository) Save(ctx context.Context, flow *models.TreeFlow) error {
	now := time.Now().UTC()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	upsert := `
		INSERT INTO tree_flows (id, name, slug, active, json_version, template_version, canvas_layout, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			slug = EXCLUDED.slug,
			active = EXCLUDED.active,
			canvas_layout = EXCLUDED.canvas_layout,
			updated_at = EXCLUDED.updated_at
	`

	_, err = tx.ExecContext(ctx, upsert,
		flow.ID,
		flow.Name,
		flow.Slug,
		flow.Active,
		nullableJSON(flow.JSONVersion),
		nullableJSON(flow.TemplateVersion),
		nullableJSON(flow.CanvasLayout),
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert tree flow %s: %w", flow.ID, err)
	}

	// Replace the graph wholesale; connection rows cascade from steps.
	_, err = tx.ExecContext(ctx, "DELETE FROM steps WHERE tree_flow_id = $1", flow.ID)
	if err != nil {
		return fmt.Errorf("failed to clear steps for tree flow %s: %w", flow.ID, err)
	}

	for _, step := range flow.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO steps (id, tree_flow_id, name, slug, is_entry_point, prompt, objective)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, step.ID, flow.ID, step.Name, step.Slug, step.IsEntryPoint, step.Prompt, step.Objective)
		if err != nil {
			return fmt.Errorf("failed to insert step %s: %w", step.ID, err)
		}

		for _, input := range step.Inputs {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO step_inputs (id, step_id, name, input_type)
				VALUES ($1, $2, $3, $4)
			`, input.ID, step.ID, input.Name, input.InputType)
			if err != nil {
				return fmt.Errorf("failed to insert step input %s: %w", input.ID, err)
			}
		}

		for _, output := range step.Outputs {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO step_outputs (id, step_id, name, condition)
				VALUES ($1, $2, $3, $4)
			`, output.ID, step.ID, output.Name, output.Condition)
			if err != nil {
				return fmt.Errorf("failed to insert step output %s: %w", output.ID, err)
			}
		}
	}

	for _, conn := range flow.Connections {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO step_connections (id, tree_flow_id, source_output_id, target_input_id, source_step_id, target_step_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, conn.ID, flow.ID, conn.SourceOutputID, conn.TargetInputID, conn.SourceStepID, conn.TargetStepID)
		if err != nil {
			return fmt.Errorf("failed to insert step connection %s: %w", conn.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tree flow %s: %w", flow.ID, err)
	}

	return nil
}

// Delete removes a flow; child rows cascade.
func (r *TreeFlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tree_flows WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete tree flow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result for tree flow %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.NewTreeFlowError("Delete", id, persistence.ErrTreeFlowNotFound)
	}

	return nil
}

// UpdateCachedViews writes only the derived-view columns.
func (r *TreeFlowRepository) UpdateCachedViews(ctx context.Context, id string, snapshot, template json.RawMessage) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE tree_flows
		SET json_version = $2, template_version = $3, updated_at = $4
		WHERE id = $1
	`, id, nullableJSON(snapshot), nullableJSON(template), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update cached views for tree flow %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read update result for tree flow %s: %w", id, err)
	}

	if affected == 0 {
		return persistence.NewTreeFlowError("UpdateCachedViews", id, persistence.ErrTreeFlowNotFound)
	}

	return nil
}

// EntryPointSteps returns entry-flagged steps of a flow excluding one step ID.
func (r *TreeFlowRepository) EntryPointSteps(ctx context.Context, flowID, excludeStepID string) ([]*models.Step, error) {
	query := `
		SELECT id, tree_flow_id, name, COALESCE(slug, ''), is_entry_point, COALESCE(prompt, ''), COALESCE(objective, '')
		FROM steps
		WHERE tree_flow_id = $1 AND is_entry_point = true AND id <> $2
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query, flowID, excludeStepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query entry point steps: %w", err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	steps := make([]*models.Step, 0)

	for rows.Next() {
		var step models.Step

		err := rows.Scan(&step.ID, &step.TreeFlowID, &step.Name, &step.Slug, &step.IsEntryPoint, &step.Prompt, &step.Objective)
		if err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return steps, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}

	return string(raw)
}
