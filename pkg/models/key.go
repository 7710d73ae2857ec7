package models

import "strconv"

// GraphKey identifies a TreeFlow across the persisted/unpersisted divide. A
// flow that already has a durable ID is keyed by it; a flow that is still
// uncommitted is keyed by a process-local token handed out by the unit of
// work. The zero value is not a valid key.
type GraphKey struct {
	durable string
	local   uint64
}

// CommittedKey builds a key for a flow with a durable identity.
func CommittedKey(id string) GraphKey {
	return GraphKey{durable: id}
}

// PendingKey builds a key for a flow that has no durable identity yet.
func PendingKey(token uint64) GraphKey {
	return GraphKey{local: token}
}

// Pending reports whether the key refers to an uncommitted flow.
func (k GraphKey) Pending() bool {
	return k.durable == ""
}

// DurableID returns the durable identity and whether the key carries one.
func (k GraphKey) DurableID() (string, bool) {
	return k.durable, k.durable != ""
}

func (k GraphKey) String() string {
	if k.durable != "" {
		return "flow:" + k.durable
	}

	return "pending:" + strconv.FormatUint(k.local, 10)
}
