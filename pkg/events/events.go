// Package events defines event types published on the tree-flow lifecycle,
// consumed by the TalkFlow execution side to refresh what it serves.
package events

import "time"

type EventType string

// Topic carries all tree-flow lifecycle events.
const Topic = "treeflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	TreeFlowCreatedEvent      EventType = "treeflow.created"
	TreeFlowMaterializedEvent EventType = "treeflow.materialized"
	TreeFlowDeletedEvent      EventType = "treeflow.deleted"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	FlowID    string         `json:"flow_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// TreeFlowCreated is published when a new flow aggregate is first persisted.
type TreeFlowCreated struct {
	BaseEvent

	Slug string `json:"slug"`
}

func (e TreeFlowCreated) GetType() EventType {
	return TreeFlowCreatedEvent
}

// TreeFlowMaterialized is published after a flow's snapshot and execution
// template were recomputed and persisted. Consumers drop any cached copy of
// the flow's artifacts when they see it.
type TreeFlowMaterialized struct {
	BaseEvent

	Slug           string    `json:"slug"`
	SnapshotBytes  int       `json:"snapshot_bytes"`
	TemplateBytes  int       `json:"template_bytes"`
	MaterializedAt time.Time `json:"materialized_at"`
}

func (e TreeFlowMaterialized) GetType() EventType {
	return TreeFlowMaterializedEvent
}

// TreeFlowDeleted is published when a flow and its graph were removed.
type TreeFlowDeleted struct {
	BaseEvent
}

func (e TreeFlowDeleted) GetType() EventType {
	return TreeFlowDeletedEvent
}
