// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph integrity violations. Each rejected
// mutation leaves the graph in its last valid state.
var (
	// ErrNodeExists indicates an add_node reused an existing node id.
	ErrNodeExists = errors.New("node id already exists")

	// ErrNodeNotFound indicates a remove_node named a missing node.
	ErrNodeNotFound = errors.New("node not found")

	// ErrEdgeExists indicates an add_edge reused an existing edge id.
	ErrEdgeExists = errors.New("edge id already exists")

	// ErrEdgeNotFound indicates a remove_edge named a missing edge.
	ErrEdgeNotFound = errors.New("edge not found")

	// ErrInvalidMutation indicates a malformed mutation (missing
	// payload, empty ids, unknown op).
	ErrInvalidMutation = errors.New("invalid mutation")
)

// DanglingEdgeError reports an add_edge whose source or target node is
// absent from the graph. This is also the deterministic resolution for
// the remove-node-vs-add-edge race: the removal wins and the edge add
// is rejected rather than silently dropped.
type DanglingEdgeError struct {
	EdgeID    string
	MissingID string
}

func (e *DanglingEdgeError) Error() string {
	return fmt.Sprintf("edge %q references missing node %q", e.EdgeID, e.MissingID)
}
