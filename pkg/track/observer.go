// Package track accumulates the set of TreeFlows whose derived views went
// stale during one unit of work.
package track

// Observer receives graph entity lifecycle notifications from a unit of work.
// The persistence-facing layer invokes these synchronously: BeforeInsert and
// BeforeDelete with the entity, BeforeUpdate additionally with the names of
// the changed fields.
type Observer interface {
	BeforeInsert(entity any)
	BeforeUpdate(entity any, changedFields []string)
	BeforeDelete(entity any)
}
