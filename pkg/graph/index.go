// Package graph implements the structural rules of TreeFlow graphs:
// connection validation and entry-point enforcement.
package graph

import "github.com/dialogkit/treeflow/pkg/models"

type connectionPair struct {
	outputID string
	inputID  string
}

// ConnectionIndex answers the two lookups the connection validator needs in
// constant time: "is this output already connected" and "does this exact
// (output, input) pair already exist". It can be built from any hypothetical
// set of connections, so validation never has to mutate a graph.
type ConnectionIndex struct {
	bySource map[string]*models.StepConnection
	byPair   map[connectionPair]*models.StepConnection
}

// NewConnectionIndex builds an index over the given connections.
func NewConnectionIndex(connections []*models.StepConnection) *ConnectionIndex {
	index := &ConnectionIndex{
		bySource: make(map[string]*models.StepConnection, len(connections)),
		byPair:   make(map[connectionPair]*models.StepConnection, len(connections)),
	}

	for _, conn := range connections {
		index.Add(conn)
	}

	return index
}

// IndexTreeFlow builds a connection index over a flow's current edges.
func IndexTreeFlow(flow *models.TreeFlow) *ConnectionIndex {
	return NewConnectionIndex(flow.Connections)
}

// Add registers a connection in the index.
func (ix *ConnectionIndex) Add(conn *models.StepConnection) {
	ix.bySource[conn.SourceOutputID] = conn
	ix.byPair[connectionPair{outputID: conn.SourceOutputID, inputID: conn.TargetInputID}] = conn
}

// Remove drops a connection from the index.
func (ix *ConnectionIndex) Remove(conn *models.StepConnection) {
	delete(ix.bySource, conn.SourceOutputID)
	delete(ix.byPair, connectionPair{outputID: conn.SourceOutputID, inputID: conn.TargetInputID})
}

// SourceConnection returns the connection sourced from the given output, or
// nil when the output is unconnected.
func (ix *ConnectionIndex) SourceConnection(outputID string) *models.StepConnection {
	return ix.bySource[outputID]
}

// HasPair reports whether a connection with this exact (output, input) pair
// exists.
func (ix *ConnectionIndex) HasPair(outputID, inputID string) bool {
	_, ok := ix.byPair[connectionPair{outputID: outputID, inputID: inputID}]

	return ok
}
