// Package file provides file-based persistence for TreeFlow aggregates,
// meant for development and tests.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/dialogkit/treeflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of the file system.
type Persistence struct {
	root         string
	treeFlowRepo *TreeFlowRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
// A "file://" prefix is stripped, so database URLs can be passed verbatim.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:         cleanRoot,
		treeFlowRepo: NewTreeFlowRepository(cleanRoot),
	}
}

// TreeFlows returns the flow repository.
func (fp *Persistence) TreeFlows() persistence.TreeFlowRepository {
	return fp.treeFlowRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close is a no-op for file persistence.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
