// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package estimate provides the default performance/cost estimator
// backed by component type reference data.
//
// The validation engine treats the estimator as an injected pure
// function; this package is the production injection. Deployments with
// a richer simulation model can substitute their own eval.Estimator.
package estimate

import (
	"fmt"

	"github.com/blueprint-sim/blueprint/services/engine/catalog"
	"github.com/blueprint-sim/blueprint/services/engine/eval"
	"github.com/blueprint-sim/blueprint/services/engine/graph"
)

// Attribute names a node may carry to override type defaults.
const (
	AttrMonthlyCost = "monthly_cost"
	AttrCapacityRPS = "capacity_rps"
)

// TypeMetadata is the subset of component reference data the estimator
// consumes.
type TypeMetadata struct {
	MonthlyCost   float64
	CapacityRPS   float64
	BaseLatencyMs float64
}

// MetadataEstimator derives an Estimate from per-type cost/capacity
// metadata. Pure: the same snapshot always yields the same numbers.
//
// The model is deliberately coarse. Cost is additive over nodes.
// Throughput is the total capacity of entry nodes (nodes with no
// incoming edge); a design with no entry node has zero throughput.
// Latency is the sum of per-hop base latencies along the deepest
// request path from any entry node.
type MetadataEstimator struct {
	types map[string]TypeMetadata
}

// New creates a MetadataEstimator over the given type metadata.
func New(types map[string]TypeMetadata) *MetadataEstimator {
	return &MetadataEstimator{types: types}
}

// Estimate implements eval.Estimator.
//
// Returns an error if any node references an unknown component type;
// the engine treats that as an estimator failure (requirement
// unsatisfied for the pass) rather than guessing at numbers.
func (e *MetadataEstimator) Estimate(snap *graph.Snapshot) (eval.Estimate, error) {
	var out eval.Estimate

	hasIncoming := map[string]bool{}
	for _, edge := range snap.Edges {
		hasIncoming[edge.TargetID] = true
	}

	for id, node := range snap.Nodes {
		meta, ok := e.types[node.ComponentTypeID]
		if !ok {
			return eval.Estimate{}, fmt.Errorf("unknown component type %q on node %q", node.ComponentTypeID, id)
		}

		cost := meta.MonthlyCost
		if v, ok := node.Attrs[AttrMonthlyCost]; ok {
			cost = v
		}
		out.MonthlyCost += cost

		if !hasIncoming[id] {
			capacity := meta.CapacityRPS
			if v, ok := node.Attrs[AttrCapacityRPS]; ok {
				capacity = v
			}
			out.ThroughputRPS += capacity
		}
	}

	out.LatencyMs = e.deepestPathLatency(snap, hasIncoming)
	return out, nil
}

// deepestPathLatency returns the largest accumulated base latency on
// any forward path from an entry node. Per-node deepest-suffix results
// are memoized, so dense diamond-shaped designs stay linear in edges
// instead of enumerating every path. A node already on the current
// path ends that path there, so a cyclic design (players can draw
// those) terminates; subtrees cut short by a cycle are not memoized
// because their value depends on the path that reached them.
func (e *MetadataEstimator) deepestPathLatency(snap *graph.Snapshot, hasIncoming map[string]bool) float64 {
	outgoing := map[string][]string{}
	for _, edge := range snap.Edges {
		outgoing[edge.SourceID] = append(outgoing[edge.SourceID], edge.TargetID)
	}

	memo := map[string]float64{}
	onPath := map[string]bool{}

	// deepestFrom returns the deepest latency of any path starting at
	// id, and whether that value is path-independent (no cycle cut it).
	var deepestFrom func(id string) (float64, bool)
	deepestFrom = func(id string) (float64, bool) {
		if v, ok := memo[id]; ok {
			return v, true
		}
		node, ok := snap.Nodes[id]
		if !ok {
			return 0, true
		}
		if onPath[id] {
			return 0, false
		}
		onPath[id] = true

		var deepestNext float64
		clean := true
		for _, next := range outgoing[id] {
			v, ok := deepestFrom(next)
			if !ok {
				clean = false
			}
			if v > deepestNext {
				deepestNext = v
			}
		}
		delete(onPath, id)

		total := e.types[node.ComponentTypeID].BaseLatencyMs + deepestNext
		if clean {
			memo[id] = total
		}
		return total, clean
	}

	var deepest float64
	for id := range snap.Nodes {
		if !hasIncoming[id] {
			if v, _ := deepestFrom(id); v > deepest {
				deepest = v
			}
		}
	}
	return deepest
}

// FromComponentTypes converts component catalogue reference data into
// estimator metadata keyed by type id.
func FromComponentTypes(types map[string]catalog.ComponentType) map[string]TypeMetadata {
	out := make(map[string]TypeMetadata, len(types))
	for id, ct := range types {
		out[id] = TypeMetadata{
			MonthlyCost:   ct.MonthlyCost,
			CapacityRPS:   ct.CapacityRPS,
			BaseLatencyMs: ct.BaseLatencyMs,
		}
	}
	return out
}
