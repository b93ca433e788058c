// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"fmt"
	"sync"
	"time"
)

// Model is the mutable graph store for one design session.
//
// # Description
//
// Apply validates and applies one mutation at a time under an internal
// lock, producing a new Snapshot via copy-on-write. Snapshot() is an
// O(1) pointer read, so evaluation can run concurrently with further
// incoming mutations: a mutation landing mid-evaluation never corrupts
// the snapshot that evaluation is reading.
//
// Independent mutations (disjoint node/edge ids, no dangling-edge
// dependency) commute: the id-keyed maps make the final state
// order-independent. Dependent conflicts resolve deterministically via
// the integrity checks in Apply.
type Model struct {
	mu   sync.Mutex
	snap *Snapshot
	log  []AppliedMutation
}

// NewModel returns an empty graph model.
func NewModel() *Model {
	return &Model{
		snap: &Snapshot{
			Nodes: map[string]Node{},
			Edges: map[string]Edge{},
		},
	}
}

// Snapshot returns the current immutable snapshot.
func (m *Model) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Log returns a copy of the applied-mutation log.
func (m *Model) Log() []AppliedMutation {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AppliedMutation, len(m.log))
	copy(out, m.log)
	return out
}

// Apply validates and applies one mutation from the given source.
//
// # Inputs
//
//   - source: originating collaborator session id (log bookkeeping only)
//   - op: the mutation to apply
//
// # Outputs
//
//   - *Snapshot: the snapshot after the mutation, nil on rejection
//   - error: ErrInvalidMutation, ErrNodeExists, ErrNodeNotFound,
//     ErrEdgeExists, ErrEdgeNotFound or *DanglingEdgeError. A rejected
//     mutation leaves the graph unchanged.
//
// Apply never blocks on anything but the internal lock and never
// suspends; evaluation is the caller's concern.
func (m *Model) Apply(source string, op Mutation) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.applyLocked(op)
	if err != nil {
		return nil, err
	}

	next.Seq = m.snap.Seq + 1
	m.snap = next
	m.log = append(m.log, AppliedMutation{
		Seq:    next.Seq,
		Source: source,
		Op:     op,
		At:     time.Now().UTC(),
	})
	return next, nil
}

func (m *Model) applyLocked(op Mutation) (*Snapshot, error) {
	switch op.Op {
	case OpAddNode:
		if op.Node == nil || op.Node.ID == "" || op.Node.ComponentTypeID == "" {
			return nil, fmt.Errorf("%w: add_node requires a node with id and component type", ErrInvalidMutation)
		}
		if _, ok := m.snap.Nodes[op.Node.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrNodeExists, op.Node.ID)
		}
		next := m.snap.clone()
		next.Nodes[op.Node.ID] = *op.Node
		return next, nil

	case OpRemoveNode:
		if op.TargetID == "" {
			return nil, fmt.Errorf("%w: remove_node requires target_id", ErrInvalidMutation)
		}
		if _, ok := m.snap.Nodes[op.TargetID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, op.TargetID)
		}
		next := m.snap.clone()
		// Cascade: drop every edge touching the node before the node
		// itself, in the same atomic application. No dangling edge
		// ever persists.
		for id, e := range next.Edges {
			if e.SourceID == op.TargetID || e.TargetID == op.TargetID {
				delete(next.Edges, id)
			}
		}
		delete(next.Nodes, op.TargetID)
		return next, nil

	case OpAddEdge:
		if op.Edge == nil || op.Edge.ID == "" || op.Edge.SourceID == "" || op.Edge.TargetID == "" {
			return nil, fmt.Errorf("%w: add_edge requires an edge with id and both endpoints", ErrInvalidMutation)
		}
		if _, ok := m.snap.Edges[op.Edge.ID]; ok {
			return nil, fmt.Errorf("%w: %q", ErrEdgeExists, op.Edge.ID)
		}
		if _, ok := m.snap.Nodes[op.Edge.SourceID]; !ok {
			return nil, &DanglingEdgeError{EdgeID: op.Edge.ID, MissingID: op.Edge.SourceID}
		}
		if _, ok := m.snap.Nodes[op.Edge.TargetID]; !ok {
			return nil, &DanglingEdgeError{EdgeID: op.Edge.ID, MissingID: op.Edge.TargetID}
		}
		next := m.snap.clone()
		next.Edges[op.Edge.ID] = *op.Edge
		return next, nil

	case OpRemoveEdge:
		if op.TargetID == "" {
			return nil, fmt.Errorf("%w: remove_edge requires target_id", ErrInvalidMutation)
		}
		if _, ok := m.snap.Edges[op.TargetID]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrEdgeNotFound, op.TargetID)
		}
		next := m.snap.clone()
		delete(next.Edges, op.TargetID)
		return next, nil

	default:
		return nil, fmt.Errorf("%w: unknown op %q", ErrInvalidMutation, op.Op)
	}
}

// clone makes a shallow copy of the snapshot maps. Node and Edge are
// value types, so the copies are independent.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		Nodes: make(map[string]Node, len(s.Nodes)),
		Edges: make(map[string]Edge, len(s.Edges)),
	}
	for id, n := range s.Nodes {
		next.Nodes[id] = n
	}
	for id, e := range s.Edges {
		next.Edges[id] = e
	}
	return next
}
