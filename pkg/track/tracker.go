package track

import (
	"errors"
	"log/slog"

	"github.com/dialogkit/treeflow/pkg/models"
)

// ErrOwnerUnresolved signals that the owning TreeFlow of a mutated entity
// could not be reached through its relationships. The event is skipped, on
// the assumption that the entity will be revisited by a fully-populated event
// before the unit of work commits. Never surfaced to callers.
var ErrOwnerUnresolved = errors.New("owning tree flow could not be resolved")

// Tracker observes graph mutations and marks the owning TreeFlow of every
// touched entity in the dirty set. Each mutation resolves to a flow as
// follows: a TreeFlow to itself, a Step to its flow, a port to its step's
// flow, and a connection to the flow of its source output's step.
type Tracker struct {
	set    *DirtySet
	logger *slog.Logger
}

// NewTracker creates a tracker writing into the given dirty set.
func NewTracker(set *DirtySet, logger *slog.Logger) *Tracker {
	return &Tracker{set: set, logger: logger}
}

// BeforeInsert marks the owning flow of a freshly created entity.
func (t *Tracker) BeforeInsert(entity any) {
	t.mark(entity)
}

// BeforeUpdate marks the owning flow of an updated entity. Updates touching
// only the two cache fields, or only the canvas-layout field, are not
// structural changes and leave the dirty set alone.
func (t *Tracker) BeforeUpdate(entity any, changedFields []string) {
	if _, ok := entity.(*models.TreeFlow); ok {
		if onlyFields(changedFields, models.FieldJSONVersion, models.FieldTemplateVersion) {
			return
		}

		if onlyFields(changedFields, models.FieldCanvasLayout) {
			return
		}
	}

	t.mark(entity)
}

// BeforeDelete marks the owning flow, except when the flow itself is being
// deleted: a deleted flow has no view left to regenerate and is dropped from
// the set instead.
func (t *Tracker) BeforeDelete(entity any) {
	if flow, ok := entity.(*models.TreeFlow); ok {
		t.set.Remove(flow)

		return
	}

	t.mark(entity)
}

func (t *Tracker) mark(entity any) {
	flow, err := ResolveOwningFlow(entity)
	if err != nil {
		// Transiently unresolvable during some creation sequences; a
		// later event will carry the populated relationship.
		t.logger.Debug("skipping dirty tracking for unresolvable entity", "error", err)

		return
	}

	t.set.Mark(flow)
}

// ResolveOwningFlow walks from a graph entity to the TreeFlow owning it. It
// returns ErrOwnerUnresolved when a required relationship is not populated.
func ResolveOwningFlow(entity any) (*models.TreeFlow, error) {
	switch e := entity.(type) {
	case *models.TreeFlow:
		return e, nil
	case *models.Step:
		if e.Flow() == nil {
			return nil, ErrOwnerUnresolved
		}

		return e.Flow(), nil
	case *models.StepInput:
		return flowOfStep(e.Step())
	case *models.StepOutput:
		return flowOfStep(e.Step())
	case *models.StepConnection:
		// The edge is attributed to the flow owning its source side.
		source := e.Source()
		if source == nil {
			return nil, ErrOwnerUnresolved
		}

		return flowOfStep(source.Step())
	default:
		return nil, ErrOwnerUnresolved
	}
}

func flowOfStep(step *models.Step) (*models.TreeFlow, error) {
	if step == nil || step.Flow() == nil {
		return nil, ErrOwnerUnresolved
	}

	return step.Flow(), nil
}

func onlyFields(changed []string, allowed ...string) bool {
	if len(changed) == 0 {
		return false
	}

	for _, field := range changed {
		found := false

		for _, candidate := range allowed {
			if field == candidate {
				found = true

				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}
