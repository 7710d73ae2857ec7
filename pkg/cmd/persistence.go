// Package cmd provides common initialization functions for command-line
// applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dialogkit/treeflow/pkg/persistence"
	"github.com/dialogkit/treeflow/pkg/persistence/file"
	"github.com/dialogkit/treeflow/pkg/persistence/postgresql"
)

// NewPersistence picks a storage backend from the database URL scheme.
// postgres:// and postgresql:// select PostgreSQL; anything else falls back to
// file storage rooted at the URL path.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	switch provider {
	case "postgres", "postgresql":
		return "postgresql"
	default:
		return "file"
	}
}
