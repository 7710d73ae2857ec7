// Package uow scopes one logical transaction over a TreeFlow graph: it
// collects entity mutations, dispatches them to registered observers, and
// runs the materialization pass at the commit boundary.
package uow

import (
	"context"
	"log/slog"

	"github.com/dialogkit/treeflow/pkg/track"
)

// Flusher recomputes and persists the derived views of every flow in the
// dirty set. It is called exactly once per commit, after all staged writes
// have been applied. Flusher implementations report per-flow failures
// themselves; a failed view recomputation never fails the commit.
type Flusher interface {
	Flush(ctx context.Context, dirty *track.DirtySet)
}

// UnitOfWork owns the dirty set for one logical transaction. Services notify
// it of every entity mutation and stage their persistence writes on it; Commit
// applies the writes and then triggers materialization.
type UnitOfWork struct {
	dirty     *track.DirtySet
	observers []track.Observer
	stages    []func(context.Context) error
	flusher   Flusher
	logger    *slog.Logger
}

// New creates a unit of work with a fresh dirty set and a tracker already
// observing it.
func New(logger *slog.Logger, flusher Flusher) *UnitOfWork {
	dirty := track.NewDirtySet()

	u := &UnitOfWork{
		dirty:   dirty,
		flusher: flusher,
		logger:  logger,
	}
	u.Observe(track.NewTracker(dirty, logger))

	return u
}

// Observe registers an additional mutation observer.
func (u *UnitOfWork) Observe(observer track.Observer) {
	u.observers = append(u.observers, observer)
}

// Dirty exposes the unit's dirty set.
func (u *UnitOfWork) Dirty() *track.DirtySet {
	return u.dirty
}

// Insert notifies observers that an entity was created in this unit of work.
func (u *UnitOfWork) Insert(entity any) {
	for _, observer := range u.observers {
		observer.BeforeInsert(entity)
	}
}

// Update notifies observers that an entity was changed, naming the fields
// that were touched.
func (u *UnitOfWork) Update(entity any, changedFields ...string) {
	for _, observer := range u.observers {
		observer.BeforeUpdate(entity, changedFields)
	}
}

// Delete notifies observers that an entity was removed.
func (u *UnitOfWork) Delete(entity any) {
	for _, observer := range u.observers {
		observer.BeforeDelete(entity)
	}
}

// Stage queues a persistence write to run at commit, before materialization.
func (u *UnitOfWork) Stage(write func(context.Context) error) {
	u.stages = append(u.stages, write)
}

// Commit applies all staged writes in order, then hands the dirty set to the
// flusher. Structural writes are fully applied before the flusher reloads
// anything, and a staged-write failure aborts the commit before any view is
// recomputed. The flusher itself never fails the commit: a stale cache is
// preferable to losing the caller's edit.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	for _, write := range u.stages {
		if err := write(ctx); err != nil {
			return err
		}
	}

	u.stages = nil

	if u.flusher != nil {
		u.flusher.Flush(ctx, u.dirty)
	}

	return nil
}
