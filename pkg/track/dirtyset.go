package track

import "github.com/dialogkit/treeflow/pkg/models"

// DirtySet is the per-unit-of-work accumulator of TreeFlows whose cached
// views need recomputation. Flows are keyed by GraphKey: durable ID when they
// have one, a stable local token otherwise. The set is owned by exactly one
// unit of work and is not safe for concurrent use.
type DirtySet struct {
	flows         map[models.GraphKey]*models.TreeFlow
	order         []models.GraphKey
	pendingTokens map[*models.TreeFlow]uint64
	nextToken     uint64
	materializing bool
}

// NewDirtySet creates an empty dirty set.
func NewDirtySet() *DirtySet {
	return &DirtySet{
		flows:         make(map[models.GraphKey]*models.TreeFlow),
		pendingTokens: make(map[*models.TreeFlow]uint64),
	}
}

// KeyFor returns the graph key for a flow, minting a local token the first
// time an uncommitted flow is seen.
func (d *DirtySet) KeyFor(flow *models.TreeFlow) models.GraphKey {
	if flow.ID != "" {
		return models.CommittedKey(flow.ID)
	}

	token, ok := d.pendingTokens[flow]
	if !ok {
		d.nextToken++
		token = d.nextToken
		d.pendingTokens[flow] = token
	}

	return models.PendingKey(token)
}

// Mark records a flow as stale. Marking is suppressed while a
// materialization guard is held.
func (d *DirtySet) Mark(flow *models.TreeFlow) {
	if d.materializing {
		return
	}

	key := d.KeyFor(flow)
	if _, ok := d.flows[key]; ok {
		return
	}

	d.flows[key] = flow
	d.order = append(d.order, key)
}

// Remove drops a flow from the set, used when the flow itself is deleted
// within the same unit of work.
func (d *DirtySet) Remove(flow *models.TreeFlow) {
	key := d.KeyFor(flow)
	if _, ok := d.flows[key]; !ok {
		return
	}

	delete(d.flows, key)

	for i, k := range d.order {
		if k == key {
			d.order = append(d.order[:i], d.order[i+1:]...)

			break
		}
	}
}

// Contains reports whether the flow is currently marked stale.
func (d *DirtySet) Contains(flow *models.TreeFlow) bool {
	_, ok := d.flows[d.KeyFor(flow)]

	return ok
}

// Len returns the number of stale flows.
func (d *DirtySet) Len() int {
	return len(d.flows)
}

// Flows returns the stale flows in the order they were first marked.
func (d *DirtySet) Flows() []*models.TreeFlow {
	flows := make([]*models.TreeFlow, 0, len(d.order))
	for _, key := range d.order {
		flows = append(flows, d.flows[key])
	}

	return flows
}

// Clear empties the set.
func (d *DirtySet) Clear() {
	d.flows = make(map[models.GraphKey]*models.TreeFlow)
	d.order = d.order[:0]
}

// Materializing reports whether a materialization guard is currently held.
func (d *DirtySet) Materializing() bool {
	return d.materializing
}
