// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package estimate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueprint-sim/blueprint/services/engine/catalog"
	"github.com/blueprint-sim/blueprint/services/engine/graph"
)

var testTypes = map[string]TypeMetadata{
	"load_balancer": {MonthlyCost: 20, CapacityRPS: 5000, BaseLatencyMs: 2},
	"web_server":    {MonthlyCost: 25, CapacityRPS: 1000, BaseLatencyMs: 15},
	"database":      {MonthlyCost: 60, CapacityRPS: 500, BaseLatencyMs: 5},
}

func apply(t *testing.T, m *graph.Model, op graph.Mutation) {
	t.Helper()
	_, err := m.Apply("test", op)
	require.NoError(t, err)
}

func TestMetadataEstimator_Estimate(t *testing.T) {
	m := graph.NewModel()
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "lb", ComponentTypeID: "load_balancer"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "web", ComponentTypeID: "web_server"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "db", ComponentTypeID: "database"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e1", SourceID: "lb", TargetID: "web"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e2", SourceID: "web", TargetID: "db"}})

	est, err := New(testTypes).Estimate(m.Snapshot())
	require.NoError(t, err)

	// Cost is additive over all nodes.
	assert.InDelta(t, 20+25+60, est.MonthlyCost, 0.001)
	// Only the load balancer has no incoming edge.
	assert.InDelta(t, 5000, est.ThroughputRPS, 0.001)
	// Deepest path: lb -> web -> db.
	assert.InDelta(t, 2+15+5, est.LatencyMs, 0.001)
}

func TestMetadataEstimator_NodeAttrOverrides(t *testing.T) {
	m := graph.NewModel()
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{
		ID: "web", ComponentTypeID: "web_server",
		Attrs: map[string]float64{AttrMonthlyCost: 99, AttrCapacityRPS: 4200},
	}})

	est, err := New(testTypes).Estimate(m.Snapshot())
	require.NoError(t, err)
	assert.InDelta(t, 99, est.MonthlyCost, 0.001)
	assert.InDelta(t, 4200, est.ThroughputRPS, 0.001)
}

func TestMetadataEstimator_UnknownTypeFails(t *testing.T) {
	m := graph.NewModel()
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "x", ComponentTypeID: "quantum_cache"}})

	_, err := New(testTypes).Estimate(m.Snapshot())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quantum_cache")
}

func TestMetadataEstimator_CyclicDesignTerminates(t *testing.T) {
	m := graph.NewModel()
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "a", ComponentTypeID: "web_server"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "b", ComponentTypeID: "web_server"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "entry", ComponentTypeID: "load_balancer"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e0", SourceID: "entry", TargetID: "a"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e1", SourceID: "a", TargetID: "b"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e2", SourceID: "b", TargetID: "a"}})

	est, err := New(testTypes).Estimate(m.Snapshot())
	require.NoError(t, err)
	assert.Greater(t, est.LatencyMs, 0.0)
}

func TestMetadataEstimator_DiamondDeepestPath(t *testing.T) {
	m := graph.NewModel()
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "lb", ComponentTypeID: "load_balancer"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "web", ComponentTypeID: "web_server"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "cache", ComponentTypeID: "database"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "db", ComponentTypeID: "database"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e0", SourceID: "lb", TargetID: "web"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e1", SourceID: "lb", TargetID: "cache"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e2", SourceID: "web", TargetID: "db"}})
	apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{ID: "e3", SourceID: "cache", TargetID: "db"}})

	est, err := New(testTypes).Estimate(m.Snapshot())
	require.NoError(t, err)
	// Deepest path goes through the web server branch: lb -> web -> db.
	assert.InDelta(t, 2+15+5, est.LatencyMs, 0.001)
}

func TestMetadataEstimator_DenseLayeredDesign(t *testing.T) {
	// Fully connected layers would enumerate width^depth paths if each
	// path were walked independently; the shared suffixes must be
	// reused for this to finish, and the answer is still exact.
	const layers, width = 16, 4

	m := graph.NewModel()
	apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: "entry", ComponentTypeID: "load_balancer"}})
	edgeID := 0
	for l := 0; l < layers; l++ {
		for i := 0; i < width; i++ {
			id := fmt.Sprintf("n%d-%d", l, i)
			apply(t, m, graph.Mutation{Op: graph.OpAddNode, Node: &graph.Node{ID: id, ComponentTypeID: "web_server"}})
			if l == 0 {
				apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{
					ID: fmt.Sprintf("e%d", edgeID), SourceID: "entry", TargetID: id,
				}})
				edgeID++
				continue
			}
			for j := 0; j < width; j++ {
				apply(t, m, graph.Mutation{Op: graph.OpAddEdge, Edge: &graph.Edge{
					ID:       fmt.Sprintf("e%d", edgeID),
					SourceID: fmt.Sprintf("n%d-%d", l-1, j),
					TargetID: id,
				}})
				edgeID++
			}
		}
	}

	est, err := New(testTypes).Estimate(m.Snapshot())
	require.NoError(t, err)
	assert.InDelta(t, 2+15*layers, est.LatencyMs, 0.001)
}

func TestFromComponentTypes(t *testing.T) {
	types := FromComponentTypes(map[string]catalog.ComponentType{
		"cache": {ID: "cache", MonthlyCost: 15, CapacityRPS: 8000, BaseLatencyMs: 1},
	})
	assert.Equal(t, TypeMetadata{MonthlyCost: 15, CapacityRPS: 8000, BaseLatencyMs: 1}, types["cache"])
}
