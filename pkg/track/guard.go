package track

// MaterializeGuard suppresses dirty tracking for the duration of a
// materialization pass, so the materializer's own cache writes cannot
// re-mark the flows it is recomputing. Release is safe to defer and to call
// more than once.
type MaterializeGuard struct {
	set      *DirtySet
	released bool
}

// BeginMaterialize acquires the guard. It fails when a guard is already held,
// which is how a nested commit boundary detects it must not start a second
// materialization pass.
func (d *DirtySet) BeginMaterialize() (*MaterializeGuard, bool) {
	if d.materializing {
		return nil, false
	}

	d.materializing = true

	return &MaterializeGuard{set: d}, true
}

// Release re-enables dirty tracking.
func (g *MaterializeGuard) Release() {
	if g.released {
		return
	}

	g.released = true
	g.set.materializing = false
}
