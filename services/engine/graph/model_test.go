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
	"reflect"
	"testing"
)

func addNode(id, typeID string) Mutation {
	return Mutation{Op: OpAddNode, Node: &Node{ID: id, ComponentTypeID: typeID}}
}

func addEdge(id, src, dst string) Mutation {
	return Mutation{Op: OpAddEdge, Edge: &Edge{ID: id, SourceID: src, TargetID: dst}}
}

func TestModel_ApplyBasics(t *testing.T) {
	m := NewModel()

	if _, err := m.Apply("s1", addNode("n1", "web_server")); err != nil {
		t.Fatalf("add node failed: %v", err)
	}
	if _, err := m.Apply("s1", addNode("n2", "database")); err != nil {
		t.Fatalf("add node failed: %v", err)
	}
	snap, err := m.Apply("s1", addEdge("e1", "n1", "n2"))
	if err != nil {
		t.Fatalf("add edge failed: %v", err)
	}

	if len(snap.Nodes) != 2 || len(snap.Edges) != 1 {
		t.Errorf("expected 2 nodes / 1 edge, got %d / %d", len(snap.Nodes), len(snap.Edges))
	}
	if snap.Seq != 3 {
		t.Errorf("expected seq 3, got %d", snap.Seq)
	}
	if got := len(m.Log()); got != 3 {
		t.Errorf("expected 3 log entries, got %d", got)
	}
}

func TestModel_RejectsDanglingEdge(t *testing.T) {
	m := NewModel()
	if _, err := m.Apply("s1", addNode("n1", "web_server")); err != nil {
		t.Fatalf("add node failed: %v", err)
	}

	before := m.Snapshot()
	_, err := m.Apply("s1", addEdge("e1", "n1", "ghost"))

	var dangling *DanglingEdgeError
	if !errors.As(err, &dangling) {
		t.Fatalf("expected DanglingEdgeError, got %v", err)
	}
	if dangling.MissingID != "ghost" {
		t.Errorf("expected missing id %q, got %q", "ghost", dangling.MissingID)
	}

	// Graph must be unchanged after rejection.
	after := m.Snapshot()
	if after != before {
		t.Error("rejected mutation produced a new snapshot")
	}
	if len(after.Edges) != 0 {
		t.Errorf("expected 0 edges, got %d", len(after.Edges))
	}
}

func TestModel_RemoveNodeCascades(t *testing.T) {
	m := NewModel()
	for _, op := range []Mutation{
		addNode("lb", "load_balancer"),
		addNode("web", "web_server"),
		addNode("db", "database"),
		addEdge("e1", "lb", "web"),
		addEdge("e2", "web", "db"),
	} {
		if _, err := m.Apply("s1", op); err != nil {
			t.Fatalf("setup failed on %v: %v", op.Op, err)
		}
	}

	snap, err := m.Apply("s1", Mutation{Op: OpRemoveNode, TargetID: "web"})
	if err != nil {
		t.Fatalf("remove node failed: %v", err)
	}
	if len(snap.Nodes) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(snap.Nodes))
	}
	if len(snap.Edges) != 0 {
		t.Errorf("expected all edges cascaded, got %d left", len(snap.Edges))
	}
}

func TestModel_ApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   []Mutation
		op      Mutation
		wantErr error
	}{
		{
			name:    "duplicate node id",
			setup:   []Mutation{addNode("n1", "database")},
			op:      addNode("n1", "database"),
			wantErr: ErrNodeExists,
		},
		{
			name:    "remove missing node",
			op:      Mutation{Op: OpRemoveNode, TargetID: "nope"},
			wantErr: ErrNodeNotFound,
		},
		{
			name:    "remove missing edge",
			op:      Mutation{Op: OpRemoveEdge, TargetID: "nope"},
			wantErr: ErrEdgeNotFound,
		},
		{
			name: "duplicate edge id",
			setup: []Mutation{
				addNode("a", "web_server"), addNode("b", "database"),
				addEdge("e1", "a", "b"),
			},
			op:      addEdge("e1", "b", "a"),
			wantErr: ErrEdgeExists,
		},
		{
			name:    "missing payload",
			op:      Mutation{Op: OpAddNode},
			wantErr: ErrInvalidMutation,
		},
		{
			name:    "unknown op",
			op:      Mutation{Op: OpKind("explode")},
			wantErr: ErrInvalidMutation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := NewModel()
			for _, op := range tc.setup {
				if _, err := m.Apply("s1", op); err != nil {
					t.Fatalf("setup failed: %v", err)
				}
			}
			_, err := m.Apply("s1", tc.op)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

// TestModel_SnapshotIsolation verifies that a snapshot taken before a
// mutation is unaffected by it.
func TestModel_SnapshotIsolation(t *testing.T) {
	m := NewModel()
	if _, err := m.Apply("s1", addNode("n1", "web_server")); err != nil {
		t.Fatalf("add node failed: %v", err)
	}
	frozen := m.Snapshot()

	if _, err := m.Apply("s2", addNode("n2", "database")); err != nil {
		t.Fatalf("add node failed: %v", err)
	}

	if len(frozen.Nodes) != 1 {
		t.Errorf("frozen snapshot mutated: %d nodes", len(frozen.Nodes))
	}
	if len(m.Snapshot().Nodes) != 2 {
		t.Errorf("current snapshot missing node: %d nodes", len(m.Snapshot().Nodes))
	}
}

// TestModel_IndependentMutationsCommute applies two disjoint mutation
// sets in both orders and expects identical final graphs.
func TestModel_IndependentMutationsCommute(t *testing.T) {
	setA := []Mutation{addNode("a1", "web_server"), addNode("a2", "database"), addEdge("ae", "a1", "a2")}
	setB := []Mutation{addNode("b1", "load_balancer"), addNode("b2", "cache"), addEdge("be", "b1", "b2")}

	run := func(first, second []Mutation) *Snapshot {
		m := NewModel()
		for _, op := range first {
			if _, err := m.Apply("s1", op); err != nil {
				t.Fatalf("apply failed: %v", err)
			}
		}
		for _, op := range second {
			if _, err := m.Apply("s2", op); err != nil {
				t.Fatalf("apply failed: %v", err)
			}
		}
		return m.Snapshot()
	}

	ab := run(setA, setB)
	ba := run(setB, setA)

	if len(ab.Nodes) != len(ba.Nodes) || len(ab.Edges) != len(ba.Edges) {
		t.Fatalf("order-dependent sizes: %d/%d vs %d/%d",
			len(ab.Nodes), len(ab.Edges), len(ba.Nodes), len(ba.Edges))
	}
	for id, n := range ab.Nodes {
		if !reflect.DeepEqual(ba.Nodes[id], n) {
			t.Errorf("node %q differs between orders", id)
		}
	}
	for id, e := range ab.Edges {
		if ba.Edges[id] != e {
			t.Errorf("edge %q differs between orders", id)
		}
	}
}

func TestModel_ConcurrentApply(t *testing.T) {
	m := NewModel()
	done := make(chan error, 2)

	go func() {
		for i := 0; i < 50; i++ {
			if _, err := m.Apply("s1", addNode(fmt.Sprintf("a%d", i), "web_server")); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	go func() {
		for i := 0; i < 50; i++ {
			if _, err := m.Apply("s2", addNode(fmt.Sprintf("b%d", i), "database")); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()

	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent apply failed: %v", err)
		}
	}
	if got := len(m.Snapshot().Nodes); got != 100 {
		t.Errorf("expected 100 nodes, got %d", got)
	}
	if got := m.Snapshot().Seq; got != 100 {
		t.Errorf("expected seq 100, got %d", got)
	}
}
