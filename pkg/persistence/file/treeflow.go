package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/dialogkit/treeflow/pkg/models"
	"github.com/dialogkit/treeflow/pkg/persistence"
)

// TreeFlowRepository stores each flow aggregate as one JSON document under
// <root>/treeflows/<id>.json.
type TreeFlowRepository struct {
	root string
}

// NewTreeFlowRepository creates a new flow repository.
func NewTreeFlowRepository(root string) *TreeFlowRepository {
	return &TreeFlowRepository{root: root}
}

// List returns paginated and filtered flows with in-memory operations.
func (r *TreeFlowRepository) List(ctx context.Context, opts persistence.ListOptions) (*persistence.ListResult, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 20
	}

	if opts.SortBy == "" {
		opts.SortBy = "created_at"
	}

	if opts.SortOrder == "" {
		opts.SortOrder = "desc"
	}

	root := os.DirFS(path.Join(r.root, "treeflows"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list tree flow files: %w", err)
	}

	all := make([]*models.TreeFlow, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		flowID := file[:len(file)-5] // Remove .json extension

		flow, err := r.GetByID(ctx, flowID)
		if err != nil {
			return nil, fmt.Errorf("failed to load tree flow %s: %w", flowID, err)
		}

		if flow == nil {
			continue
		}

		if opts.Active != nil && flow.Active != *opts.Active {
			continue
		}

		all = append(all, flow)
	}

	r.sortFlows(all, opts.SortBy, opts.SortOrder)

	totalCount := int64(len(all))
	startIdx := opts.Offset
	endIdx := opts.Offset + opts.Limit

	if startIdx >= len(all) {
		return &persistence.ListResult{
			Flows:       make([]*models.TreeFlow, 0),
			TotalCount:  totalCount,
			HasNextPage: false,
		}, nil
	}

	if endIdx > len(all) {
		endIdx = len(all)
	}

	return &persistence.ListResult{
		Flows:       all[startIdx:endIdx],
		TotalCount:  totalCount,
		HasNextPage: endIdx < len(all),
	}, nil
}

func (r *TreeFlowRepository) sortFlows(flows []*models.TreeFlow, sortBy, sortOrder string) {
	sort.Slice(flows, func(i, j int) bool {
		var less bool

		switch sortBy {
		case "updated_at":
			less = flows[i].UpdatedAt.Before(flows[j].UpdatedAt)
		case "name":
			less = flows[i].Name < flows[j].Name
		default:
			less = flows[i].CreatedAt.Before(flows[j].CreatedAt)
		}

		if sortOrder == "desc" {
			return !less
		}

		return less
	})
}

// GetByID retrieves a flow by its ID, returning nil when it does not exist.
func (r *TreeFlowRepository) GetByID(_ context.Context, flowID string) (*models.TreeFlow, error) {
	filePath := filepath.Clean(path.Join(r.root, "treeflows", flowID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to fetch tree flow %s: %w", flowID, err)
	}

	var flow models.TreeFlow

	err = json.Unmarshal(body, &flow)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal tree flow %s: %w", flowID, err)
	}

	flow.Rewire()

	return &flow, nil
}

// GetBySlug retrieves a flow by its slug, returning nil when none matches.
func (r *TreeFlowRepository) GetBySlug(ctx context.Context, slug string) (*models.TreeFlow, error) {
	root := os.DirFS(path.Join(r.root, "treeflows"))

	jsonFiles, err := fs.Glob(root, "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list tree flow files: %w", err)
	}

	for _, file := range jsonFiles {
		flow, err := r.GetByID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if flow != nil && flow.Slug == slug {
			return flow, nil
		}
	}

	return nil, nil
}

// Save writes the whole aggregate to disk.
func (r *TreeFlowRepository) Save(_ context.Context, flow *models.TreeFlow) error {
	err := os.MkdirAll(path.Join(r.root, "treeflows"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create treeflows directory: %w", err)
	}

	now := time.Now().UTC()
	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	flow.UpdatedAt = now

	data, err := json.MarshalIndent(flow, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal tree flow %s: %w", flow.ID, err)
	}

	filePath := filepath.Clean(path.Join(r.root, "treeflows", flow.ID+".json"))

	err = os.WriteFile(filePath, data, 0600)
	if err != nil {
		return fmt.Errorf("failed to write tree flow %s: %w", flow.ID, err)
	}

	return nil
}

// Delete removes a flow document. The owned steps, ports and connections live
// inside it, so the cascade is implicit.
func (r *TreeFlowRepository) Delete(_ context.Context, flowID string) error {
	filePath := filepath.Clean(path.Join(r.root, "treeflows", flowID+".json"))

	err := os.Remove(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewTreeFlowError("Delete", flowID, persistence.ErrTreeFlowNotFound)
		}

		return fmt.Errorf("failed to delete tree flow %s: %w", flowID, err)
	}

	return nil
}

// UpdateCachedViews rewrites only the two derived-view fields of a stored
// flow.
func (r *TreeFlowRepository) UpdateCachedViews(ctx context.Context, flowID string, snapshot, template json.RawMessage) error {
	flow, err := r.GetByID(ctx, flowID)
	if err != nil {
		return err
	}

	if flow == nil {
		return persistence.NewTreeFlowError("UpdateCachedViews", flowID, persistence.ErrTreeFlowNotFound)
	}

	flow.JSONVersion = snapshot
	flow.TemplateVersion = template

	return r.Save(ctx, flow)
}

// EntryPointSteps returns the entry-flagged steps of a flow, excluding the
// given step ID.
func (r *TreeFlowRepository) EntryPointSteps(ctx context.Context, flowID, excludeStepID string) ([]*models.Step, error) {
	flow, err := r.GetByID(ctx, flowID)
	if err != nil {
		return nil, err
	}

	if flow == nil {
		return nil, persistence.NewTreeFlowError("EntryPointSteps", flowID, persistence.ErrTreeFlowNotFound)
	}

	steps := make([]*models.Step, 0)

	for _, step := range flow.Steps {
		if step.IsEntryPoint && step.ID != excludeStepID {
			steps = append(steps, step)
		}
	}

	return steps, nil
}
