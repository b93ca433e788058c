// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package eval implements the predicate evaluators: one pure function
// per requirement kind, mapping (snapshot, config, estimator) to a
// pass/fail result with a human-readable detail.
//
// Evaluators are deterministic and side-effect-free. Identical inputs
// always yield identical results, independent of call order, which is
// what makes concurrent re-evaluation under collaborator editing safe.
package eval

import (
	"fmt"

	"github.com/blueprint-sim/blueprint/services/engine/catalog"
	"github.com/blueprint-sim/blueprint/services/engine/graph"
)

// Estimate is the externally computed performance/cost profile of a
// design. How the numbers are derived is not this engine's concern.
type Estimate struct {
	LatencyMs     float64 `json:"latency_ms"`
	ThroughputRPS float64 `json:"throughput_rps"`
	MonthlyCost   float64 `json:"monthly_cost"`
}

// Estimator translates a graph snapshot into an Estimate.
// Implementations must be pure with respect to the snapshot.
type Estimator interface {
	Estimate(snap *graph.Snapshot) (Estimate, error)
}

// Result is the outcome of evaluating one requirement.
type Result struct {
	// Satisfied is the live pass/fail status against the snapshot.
	Satisfied bool `json:"satisfied"`

	// Detail explains the outcome for diagnostics and hints. Never
	// player-facing blame; the catalogue messages are the player text.
	Detail string `json:"detail,omitempty"`
}

// Evaluate runs the requirement's predicate against a snapshot.
//
// Estimator failures make estimator-backed requirements Unsatisfied
// for the pass (fail-safe, never fail-open); the failure is carried in
// Detail as a diagnostic.
func Evaluate(snap *graph.Snapshot, req *catalog.Requirement, est Estimator) Result {
	switch cfg := req.Config.(type) {
	case *catalog.ComponentRequiredConfig:
		return evalComponentRequired(snap, cfg)
	case *catalog.ConnectionRequiredConfig:
		return evalConnectionRequired(snap, cfg)
	case *catalog.PerformanceTargetConfig:
		return evalPerformanceTarget(snap, cfg, est)
	case *catalog.CostConstraintConfig:
		return evalCostConstraint(snap, cfg, est)
	default:
		// Unreachable for catalogues that passed loading; surfaced as
		// unsatisfied rather than panicking mid-session.
		return Result{Satisfied: false, Detail: fmt.Sprintf("no evaluator for config %T", req.Config)}
	}
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func evalComponentRequired(snap *graph.Snapshot, cfg *catalog.ComponentRequiredConfig) Result {
	required := toSet(cfg.RequiredComponents)
	forbidden := toSet(cfg.ForbiddenPatterns)

	// With both lists present, any forbidden node fails the
	// requirement outright, regardless of the count bounds.
	if len(required) > 0 && len(forbidden) > 0 {
		if n := snap.NodesByType(forbidden); n > 0 {
			return Result{Satisfied: false,
				Detail: fmt.Sprintf("%d forbidden component(s) present", n)}
		}
	}

	// With no required list, the count bounds apply to the forbidden
	// types: max_instances 0 asserts absence.
	counted := required
	if len(counted) == 0 {
		counted = forbidden
	}
	matching := snap.NodesByType(counted)

	if cfg.MinInstances != nil && matching < *cfg.MinInstances {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("%d matching component(s), need at least %d", matching, *cfg.MinInstances)}
	}
	if cfg.MaxInstances != nil && matching > *cfg.MaxInstances {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("%d matching component(s), allowed at most %d", matching, *cfg.MaxInstances)}
	}
	return Result{Satisfied: true, Detail: fmt.Sprintf("%d matching component(s)", matching)}
}

func evalConnectionRequired(snap *graph.Snapshot, cfg *catalog.ConnectionRequiredConfig) Result {
	sources := toSet(cfg.SourceTypes)
	targets := toSet(cfg.TargetTypes)

	matching := 0
	for _, e := range snap.Edges {
		src, ok := snap.Nodes[e.SourceID]
		if !ok || !sources[src.ComponentTypeID] {
			continue
		}
		dst, ok := snap.Nodes[e.TargetID]
		if !ok || !targets[dst.ComponentTypeID] {
			continue
		}
		matching++
	}

	if matching < cfg.MinConnections {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("%d matching connection(s), need at least %d", matching, cfg.MinConnections)}
	}
	if cfg.MaxConnections != nil && matching > *cfg.MaxConnections {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("%d matching connection(s), allowed at most %d", matching, *cfg.MaxConnections)}
	}
	return Result{Satisfied: true, Detail: fmt.Sprintf("%d matching connection(s)", matching)}
}

func evalPerformanceTarget(snap *graph.Snapshot, cfg *catalog.PerformanceTargetConfig, est Estimator) Result {
	if cfg.Vacuous() {
		return Result{Satisfied: true, Detail: "no performance bounds configured"}
	}

	estimate, err := est.Estimate(snap)
	if err != nil {
		return Result{Satisfied: false, Detail: fmt.Sprintf("estimator unavailable: %v", err)}
	}

	if cfg.MaxLatencyMs != nil && estimate.LatencyMs > *cfg.MaxLatencyMs {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("estimated latency %.1fms exceeds %.1fms", estimate.LatencyMs, *cfg.MaxLatencyMs)}
	}
	if cfg.MinThroughputRPS != nil && estimate.ThroughputRPS < *cfg.MinThroughputRPS {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("estimated throughput %.0frps below %.0frps", estimate.ThroughputRPS, *cfg.MinThroughputRPS)}
	}
	if cfg.MaxCostMonthly != nil && estimate.MonthlyCost > *cfg.MaxCostMonthly {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("estimated cost $%.2f/month exceeds $%.2f/month", estimate.MonthlyCost, *cfg.MaxCostMonthly)}
	}
	return Result{Satisfied: true, Detail: "all performance bounds hold"}
}

func evalCostConstraint(snap *graph.Snapshot, cfg *catalog.CostConstraintConfig, est Estimator) Result {
	estimate, err := est.Estimate(snap)
	if err != nil {
		return Result{Satisfied: false, Detail: fmt.Sprintf("estimator unavailable: %v", err)}
	}

	if estimate.MonthlyCost > cfg.MaxMonthlyCost {
		return Result{Satisfied: false,
			Detail: fmt.Sprintf("estimated cost $%.2f/month exceeds $%.2f/month", estimate.MonthlyCost, cfg.MaxMonthlyCost)}
	}

	detail := fmt.Sprintf("estimated cost $%.2f/month within $%.2f/month", estimate.MonthlyCost, cfg.MaxMonthlyCost)
	if cfg.CostOptimizationRequired {
		// Informational only; no optimization predicate is defined.
		detail += " (cost optimization flagged)"
	}
	return Result{Satisfied: true, Detail: detail}
}
