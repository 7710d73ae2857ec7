// Package persistence provides the storage abstraction for TreeFlow graphs.
package persistence

import (
	"context"
	"encoding/json"

	"github.com/dialogkit/treeflow/pkg/models"
)

// Persistence is the entry point to a storage backend.
type Persistence interface {
	TreeFlows() TreeFlowRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListOptions controls pagination, filtering and sorting of flow listings.
type ListOptions struct {
	Limit     int
	Offset    int
	Active    *bool
	SortBy    string
	SortOrder string
}

// ListResult carries one page of flows plus pagination metadata.
type ListResult struct {
	Flows       []*models.TreeFlow `json:"flows"`
	TotalCount  int64              `json:"total_count"`
	HasNextPage bool               `json:"has_next_page"`
}

// TreeFlowRepository stores whole TreeFlow aggregates. Implementations must
// call Rewire on every aggregate they hand out, so parent navigation works.
type TreeFlowRepository interface {
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
	GetByID(ctx context.Context, id string) (*models.TreeFlow, error)
	GetBySlug(ctx context.Context, slug string) (*models.TreeFlow, error)
	Save(ctx context.Context, flow *models.TreeFlow) error
	Delete(ctx context.Context, id string) error

	// UpdateCachedViews writes only the two derived-view fields. It is the
	// single write path for them; user-facing mutations never touch the
	// caches directly.
	UpdateCachedViews(ctx context.Context, id string, snapshot, template json.RawMessage) error

	// EntryPointSteps returns the steps of a flow flagged as entry point,
	// excluding the step with the given ID (pass "" to exclude none).
	EntryPointSteps(ctx context.Context, flowID, excludeStepID string) ([]*models.Step, error)
}
