// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability exposes Prometheus metrics for the engine.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for the Validation Engine
// =============================================================================

var (
	// MutationsTotal counts graph mutations by operation and outcome.
	// Labels: op (add_node, remove_node, add_edge, remove_edge),
	// status (applied, rejected)
	MutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "mutations_total",
		Help:      "Total graph mutations by operation and outcome",
	}, []string{"op", "status"})

	// EvaluationsTotal counts full requirement evaluation passes.
	// Labels: stage
	EvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "evaluations_total",
		Help:      "Total requirement evaluation passes",
	}, []string{"stage"})

	// EvaluationDuration measures a full evaluation pass over a stage.
	// Labels: stage
	EvaluationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "evaluation_duration_seconds",
		Help:      "Requirement evaluation pass latency in seconds",
		Buckets:   []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}, []string{"stage"})

	// RequirementsAchievedTotal counts requirements newly achieved.
	// Labels: stage, kind
	RequirementsAchievedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "requirements_achieved_total",
		Help:      "Total requirements newly achieved by stage and kind",
	}, []string{"stage", "kind"})

	// StagesCompletedTotal counts stage completions.
	// Labels: stage
	StagesCompletedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "stages_completed_total",
		Help:      "Total stage completions",
	}, []string{"stage"})

	// ActiveSessions tracks the number of live sessions in the registry.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "active_sessions",
		Help:      "Number of live sessions in the registry",
	})

	// WebsocketClients tracks the number of connected collaborators.
	WebsocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "websocket_clients",
		Help:      "Number of connected websocket collaborators",
	})

	// PersistFailuresTotal counts failed progress writes.
	PersistFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blueprint",
		Subsystem: "engine",
		Name:      "persist_failures_total",
		Help:      "Total failed progress persistence writes",
	})
)
