// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package catalog loads and indexes the requirement catalogue for a
// stage: the declarative pass/fail rules a player's design must
// satisfy, their unlock prerequisites, and their messaging metadata.
//
// Catalogues are authored as YAML. The predicate vocabulary is fixed
// and closed: unknown kinds and unknown config fields are load
// failures, never interpreted permissively. A stage either loads
// completely or not at all.
package catalog

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kind identifies a requirement's predicate evaluator. The set is
// closed; anything else is rejected at load time.
type Kind string

const (
	KindComponentRequired  Kind = "component_required"
	KindConnectionRequired Kind = "connection_required"
	KindPerformanceTarget  Kind = "performance_target"
	KindCostConstraint     Kind = "cost_constraint"
)

// UnmarshalYAML rejects unknown kinds at decode time.
func (k *Kind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	incoming := Kind(s)
	switch incoming {
	case KindComponentRequired, KindConnectionRequired, KindPerformanceTarget, KindCostConstraint:
		*k = incoming
		return nil
	default:
		return fmt.Errorf("unknown requirement kind: %q", incoming)
	}
}

// ValidationConfig is the kind-specific predicate configuration.
// Exactly one concrete type exists per Kind.
type ValidationConfig interface {
	// validate checks kind-specific semantic constraints that struct
	// tags cannot express (bound ordering, required lists).
	validate() error
}

// ComponentRequiredConfig bounds the number of node instances of given
// component types.
//
// When RequiredComponents is empty, the count applies to
// ForbiddenPatterns instead, which together with MaxInstances=0
// asserts absence. When both lists are present, any node matching
// ForbiddenPatterns fails the requirement regardless of the count
// bounds on RequiredComponents.
type ComponentRequiredConfig struct {
	RequiredComponents []string `yaml:"required_components"`
	ForbiddenPatterns  []string `yaml:"forbidden_patterns"`

	// MinInstances / MaxInstances bound the matching node count.
	// A nil bound is unbounded on that side.
	MinInstances *int `yaml:"min_instances" validate:"omitempty,gte=0"`
	MaxInstances *int `yaml:"max_instances" validate:"omitempty,gte=0"`
}

func (c *ComponentRequiredConfig) validate() error {
	if len(c.RequiredComponents) == 0 && len(c.ForbiddenPatterns) == 0 {
		return fmt.Errorf("component_required needs required_components or forbidden_patterns")
	}
	if c.MinInstances != nil && c.MaxInstances != nil && *c.MinInstances > *c.MaxInstances {
		return fmt.Errorf("min_instances %d exceeds max_instances %d", *c.MinInstances, *c.MaxInstances)
	}
	return nil
}

// ConnectionRequiredConfig bounds the number of directed edges from
// SourceTypes components to TargetTypes components. Direction is
// significant; a reversed edge never counts.
type ConnectionRequiredConfig struct {
	SourceTypes    []string `yaml:"source_types" validate:"required,min=1"`
	TargetTypes    []string `yaml:"target_types" validate:"required,min=1"`
	MinConnections int      `yaml:"min_connections" validate:"gte=0"`

	// MaxConnections nil means unbounded.
	MaxConnections *int `yaml:"max_connections" validate:"omitempty,gte=0"`
}

func (c *ConnectionRequiredConfig) validate() error {
	if c.MaxConnections != nil && c.MinConnections > *c.MaxConnections {
		return fmt.Errorf("min_connections %d exceeds max_connections %d", c.MinConnections, *c.MaxConnections)
	}
	return nil
}

// PerformanceTargetConfig bounds estimator outputs. A nil bound is not
// checked. A config with no bounds at all is vacuously satisfied; the
// loader allows it but flags it as suspicious.
type PerformanceTargetConfig struct {
	MaxLatencyMs     *float64 `yaml:"max_latency_ms" validate:"omitempty,gt=0"`
	MinThroughputRPS *float64 `yaml:"min_throughput_rps" validate:"omitempty,gt=0"`
	MaxCostMonthly   *float64 `yaml:"max_cost_monthly" validate:"omitempty,gt=0"`
}

func (c *PerformanceTargetConfig) validate() error { return nil }

// Vacuous reports whether no bound is configured.
func (c *PerformanceTargetConfig) Vacuous() bool {
	return c.MaxLatencyMs == nil && c.MinThroughputRPS == nil && c.MaxCostMonthly == nil
}

// CostConstraintConfig is a ceiling on estimated monthly cost.
// CostOptimizationRequired is carried through but informational only;
// it does not change the predicate.
type CostConstraintConfig struct {
	MaxMonthlyCost           float64 `yaml:"max_monthly_cost" validate:"gt=0"`
	CostOptimizationRequired bool    `yaml:"cost_optimization_required"`
}

func (c *CostConstraintConfig) validate() error { return nil }

// Messages holds the player-facing text for a requirement.
type Messages struct {
	Error   string `yaml:"error" json:"error,omitempty"`
	Hint    string `yaml:"hint" json:"hint,omitempty"`
	Success string `yaml:"success" json:"success,omitempty"`
}

// Requirement is one declarative rule in a stage catalogue. Immutable
// once loaded.
type Requirement struct {
	ID          string `yaml:"id" json:"id" validate:"required"`
	StageID     string `yaml:"-" json:"-"`
	Kind        Kind   `yaml:"kind" json:"kind" validate:"required"`
	Title       string `yaml:"title" json:"title" validate:"required"`
	Description string `yaml:"description" json:"description,omitempty"`

	// RawConfig is the deferred validation_config node; Config is the
	// decoded kind-specific variant. Neither crosses the wire.
	RawConfig yaml.Node        `yaml:"validation_config" json:"-"`
	Config    ValidationConfig `yaml:"-" json:"-"`

	// Priority orders display and processing; lower is more urgent.
	// It is NOT a completion gate: a stage completes only when every
	// requirement is achieved, whatever its priority.
	Priority    int `yaml:"priority" json:"priority"`
	PointsValue int `yaml:"points_value" json:"points_value" validate:"gte=0"`
	UnlockOrder int `yaml:"unlock_order" json:"-"`

	// InitiallyVisible requirements show from stage start; the rest
	// unlock once every ShowAfter prerequisite has been achieved.
	InitiallyVisible bool     `yaml:"initially_visible" json:"-"`
	ShowAfter        []string `yaml:"show_after" json:"-"`

	Messages Messages `yaml:"messages" json:"messages"`
}

// Stage is a loaded, indexed, validated catalogue for one stage.
type Stage struct {
	ID           string
	Requirements []Requirement

	byID map[string]*Requirement
}

// NewStage builds a Stage from already-decoded requirements, running
// the same structural checks as the loader (duplicate ids, prerequisite
// resolution, reachability, cycles). Intended for programmatic
// catalogues and tests; file-based catalogues go through Loader.
func NewStage(id string, reqs []Requirement) (*Stage, error) {
	st := &Stage{
		ID:           id,
		Requirements: reqs,
		byID:         make(map[string]*Requirement, len(reqs)),
	}
	for i := range st.Requirements {
		req := &st.Requirements[i]
		req.StageID = id
		if _, dup := st.byID[req.ID]; dup {
			return nil, &ConfigError{StageID: id, RequirementIDs: []string{req.ID},
				Reason: "duplicate requirement id"}
		}
		st.byID[req.ID] = req
	}
	if err := checkPrerequisites(st); err != nil {
		return nil, err
	}
	SortRequirements(st.Requirements)
	for i := range st.Requirements {
		st.byID[st.Requirements[i].ID] = &st.Requirements[i]
	}
	return st, nil
}

// Requirement returns the requirement with the given id, or nil.
func (s *Stage) Requirement(id string) *Requirement {
	return s.byID[id]
}

// TotalPoints is the sum of points over all requirements.
func (s *Stage) TotalPoints() int {
	total := 0
	for i := range s.Requirements {
		total += s.Requirements[i].PointsValue
	}
	return total
}

// IsVisible reports whether a requirement should be shown given the
// current achieved set: initially visible, or every prerequisite
// achieved.
func IsVisible(req *Requirement, achieved map[string]bool) bool {
	if req.InitiallyVisible {
		return true
	}
	for _, id := range req.ShowAfter {
		if !achieved[id] {
			return false
		}
	}
	return len(req.ShowAfter) > 0
}

// SortRequirements orders requirements by (priority asc, unlock_order
// asc, id asc) for a deterministic total order.
func SortRequirements(reqs []Requirement) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].Priority != reqs[j].Priority {
			return reqs[i].Priority < reqs[j].Priority
		}
		if reqs[i].UnlockOrder != reqs[j].UnlockOrder {
			return reqs[i].UnlockOrder < reqs[j].UnlockOrder
		}
		return reqs[i].ID < reqs[j].ID
	})
}

// ComponentType is reference data about a placeable component.
// Advisory only: the validator never enforces compatibility, but the
// default estimator consults the cost/capacity metadata.
type ComponentType struct {
	ID             string   `yaml:"id" validate:"required"`
	Category       string   `yaml:"category"`
	CompatibleWith []string `yaml:"compatible_with"`

	MonthlyCost   float64 `yaml:"monthly_cost" validate:"gte=0"`
	CapacityRPS   float64 `yaml:"capacity_rps" validate:"gte=0"`
	BaseLatencyMs float64 `yaml:"base_latency_ms" validate:"gte=0"`
}

// ConfigError is a fatal catalogue authoring error. The stage cannot
// start; nothing is partially loaded.
type ConfigError struct {
	StageID        string
	RequirementIDs []string
	Reason         string
}

func (e *ConfigError) Error() string {
	if len(e.RequirementIDs) == 0 {
		return fmt.Sprintf("stage %q: %s", e.StageID, e.Reason)
	}
	return fmt.Sprintf("stage %q: %s (requirements: %s)",
		e.StageID, e.Reason, strings.Join(e.RequirementIDs, ", "))
}
