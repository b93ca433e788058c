// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package graph maintains the canonical node/edge store for a design
// session and produces immutable snapshots for requirement evaluation.
//
// # Description
//
// A design is a directed graph: nodes are infrastructure components
// placed by the player (web servers, databases, load balancers), edges
// are the connections between them. Collaborators on the same session
// mutate a shared Model; every applied mutation yields a fresh
// Snapshot, so evaluation always reads a consistent, frozen view of
// the design regardless of edits arriving mid-pass.
//
// # Thread Safety
//
// Model is safe for concurrent use. Snapshot values are immutable once
// returned and may be read from any goroutine without locking.
package graph

import "time"

// Node is a single placed component instance.
type Node struct {
	// ID is unique within a graph. Assigned by the client that placed
	// the component, typically a UUID.
	ID string `json:"id"`

	// ComponentTypeID references the component catalogue entry
	// (e.g. "web_server", "database", "load_balancer").
	ComponentTypeID string `json:"component_type_id"`

	// Label is an optional display name, never interpreted.
	Label string `json:"label,omitempty"`

	// Attrs carries free-form numeric instance attributes such as
	// monthly cost or capacity overrides. Consumed by the estimator,
	// never by the validator itself.
	Attrs map[string]float64 `json:"attrs,omitempty"`
}

// Edge is a directed connection between two nodes. Direction is
// semantically significant: a load_balancer -> web_server edge is not
// the same connection as its reverse.
type Edge struct {
	ID       string `json:"id"`
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

// Snapshot is an immutable view of the graph at a point in time.
//
// The maps are shared between snapshots via copy-on-write: a Snapshot
// must never be mutated after creation. Evaluators treat it as a pure
// value input.
type Snapshot struct {
	Nodes map[string]Node
	Edges map[string]Edge

	// Seq is the sequence number of the last mutation applied before
	// this snapshot was taken. Seq 0 is the empty graph.
	Seq uint64
}

// NodesByType returns the count of nodes whose ComponentTypeID is in
// the given set. An empty set matches nothing.
func (s *Snapshot) NodesByType(typeIDs map[string]bool) int {
	n := 0
	for _, node := range s.Nodes {
		if typeIDs[node.ComponentTypeID] {
			n++
		}
	}
	return n
}

// OpKind identifies a mutation operation.
type OpKind string

const (
	OpAddNode    OpKind = "add_node"
	OpRemoveNode OpKind = "remove_node"
	OpAddEdge    OpKind = "add_edge"
	OpRemoveEdge OpKind = "remove_edge"
)

// Mutation is a single graph edit issued by a collaborator. Exactly
// one of Node or Edge is set for add operations; TargetID names the
// node or edge id for removals.
type Mutation struct {
	Op       OpKind `json:"op"`
	Node     *Node  `json:"node,omitempty"`
	Edge     *Edge  `json:"edge,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

// AppliedMutation is a mutation log entry. The log is append-only and
// ordered by Seq; Source tags the originating collaborator session.
type AppliedMutation struct {
	Seq    uint64    `json:"seq"`
	Source string    `json:"source"`
	Op     Mutation  `json:"op"`
	At     time.Time `json:"at"`
}
