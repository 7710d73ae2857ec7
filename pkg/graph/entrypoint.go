package graph

import "github.com/dialogkit/treeflow/pkg/models"

// EnforceEntryPoint keeps the "at most one entry step per flow" invariant
// after the given step's entry flag was set. It unsets the flag on every
// other step of the flow and returns the steps it changed, so the caller can
// record the compensating writes in the same unit of work.
//
// The enforcer never rejects anything, and it is idempotent: on an already
// consistent flow it returns nothing.
//
// Identity handling follows three cases:
//   - the flow itself is uncommitted: it cannot own committed steps yet, so
//     there is nothing to unset;
//   - the step is uncommitted: it has no durable ID, so siblings are compared
//     by object identity;
//   - the step is committed: siblings are compared by durable ID.
func EnforceEntryPoint(flow *models.TreeFlow, step *models.Step) []*models.Step {
	if flow == nil || flow.ID == "" {
		return nil
	}

	if step == nil || !step.IsEntryPoint {
		return nil
	}

	var unset []*models.Step

	for _, other := range flow.Steps {
		if other == step {
			continue
		}

		if step.ID != "" && other.ID == step.ID {
			continue
		}

		if other.IsEntryPoint {
			other.IsEntryPoint = false
			unset = append(unset, other)
		}
	}

	return unset
}
