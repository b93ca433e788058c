// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package catalog

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/blueprint-sim/blueprint/pkg/validation"
)

// Loader reads stage catalogues and component type reference data
// from a directory of YAML files.
//
// # Description
//
// Stage files are named "<stageID>.yaml"; component types live in
// "components.yaml". Loaded stages are cached until invalidated (the
// Watcher invalidates on file change). Loading is strict: a stage with
// any authoring error fails completely with a *ConfigError.
//
// # Thread Safety
//
// Safe for concurrent use.
type Loader struct {
	dir      string
	validate *validator.Validate

	mu    sync.RWMutex
	cache map[string]*Stage
}

// NewLoader creates a Loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{
		dir:      dir,
		validate: validator.New(),
		cache:    map[string]*Stage{},
	}
}

// Invalidate drops one stage from the cache. Empty id drops everything.
func (l *Loader) Invalidate(stageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if stageID == "" {
		l.cache = map[string]*Stage{}
		return
	}
	delete(l.cache, stageID)
}

// LoadStage returns the validated catalogue for a stage.
//
// # Outputs
//
//   - *Stage: fully loaded and indexed, requirements in deterministic
//     display order
//   - error: *ConfigError for authoring problems, wrapped I/O errors
//     otherwise
func (l *Loader) LoadStage(stageID string) (*Stage, error) {
	if err := validation.ValidateStageID(stageID); err != nil {
		return nil, &ConfigError{StageID: stageID, Reason: err.Error()}
	}

	l.mu.RLock()
	if st, ok := l.cache[stageID]; ok {
		l.mu.RUnlock()
		return st, nil
	}
	l.mu.RUnlock()

	path := filepath.Join(l.dir, stageID+".yaml")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stage catalogue %q: %w", path, err)
	}
	defer f.Close()

	st, err := l.parseStage(stageID, f)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.cache[stageID] = st
	l.mu.Unlock()
	return st, nil
}

// stageFile mirrors the on-disk stage document.
type stageFile struct {
	StageID      string        `yaml:"stage_id"`
	Requirements []Requirement `yaml:"requirements"`
}

func (l *Loader) parseStage(stageID string, r io.Reader) (*Stage, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var file stageFile
	if err := dec.Decode(&file); err != nil {
		return nil, &ConfigError{StageID: stageID, Reason: fmt.Sprintf("malformed catalogue: %v", err)}
	}
	if file.StageID != "" && file.StageID != stageID {
		return nil, &ConfigError{StageID: stageID,
			Reason: fmt.Sprintf("stage_id %q does not match file name", file.StageID)}
	}
	if len(file.Requirements) == 0 {
		return nil, &ConfigError{StageID: stageID, Reason: "stage has no requirements"}
	}

	for i := range file.Requirements {
		req := &file.Requirements[i]
		req.StageID = stageID

		if err := l.validate.Struct(req); err != nil {
			return nil, &ConfigError{StageID: stageID, RequirementIDs: []string{req.ID},
				Reason: fmt.Sprintf("invalid requirement record: %v", err)}
		}

		cfg, err := decodeConfig(req.Kind, &req.RawConfig)
		if err != nil {
			return nil, &ConfigError{StageID: stageID, RequirementIDs: []string{req.ID},
				Reason: fmt.Sprintf("invalid validation_config: %v", err)}
		}
		if err := l.validate.Struct(cfg); err != nil {
			return nil, &ConfigError{StageID: stageID, RequirementIDs: []string{req.ID},
				Reason: fmt.Sprintf("invalid validation_config: %v", err)}
		}
		if err := cfg.validate(); err != nil {
			return nil, &ConfigError{StageID: stageID, RequirementIDs: []string{req.ID},
				Reason: fmt.Sprintf("invalid validation_config: %v", err)}
		}
		req.Config = cfg

		if pt, ok := cfg.(*PerformanceTargetConfig); ok && pt.Vacuous() {
			slog.Warn("performance_target with no bounds is vacuously satisfied",
				"stage", stageID, "requirement", req.ID)
		}
	}

	// Duplicate ids are a hard failure inside NewStage. Silent
	// first-wins precedence would hide authoring bugs.
	st, err := NewStage(stageID, file.Requirements)
	if err != nil {
		return nil, err
	}

	slog.Info("stage catalogue loaded", "stage", stageID, "requirements", len(st.Requirements))
	return st, nil
}

// decodeConfig decodes the deferred validation_config node into the
// kind's concrete struct, rejecting unknown fields.
func decodeConfig(kind Kind, node *yaml.Node) (ValidationConfig, error) {
	var cfg ValidationConfig
	switch kind {
	case KindComponentRequired:
		cfg = &ComponentRequiredConfig{}
	case KindConnectionRequired:
		cfg = &ConnectionRequiredConfig{}
	case KindPerformanceTarget:
		cfg = &PerformanceTargetConfig{}
	case KindCostConstraint:
		cfg = &CostConstraintConfig{}
	default:
		return nil, fmt.Errorf("unknown requirement kind: %q", kind)
	}

	if node.Kind == 0 {
		return nil, fmt.Errorf("validation_config is required")
	}

	// yaml.Node.Decode has no strict mode, so round-trip through a
	// KnownFields decoder to reject unrecognized config fields.
	raw, err := yaml.Marshal(node)
	if err != nil {
		return nil, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkPrerequisites validates the show_after dependency graph:
// references must resolve in-stage, hidden requirements must have a
// path to visibility, and prerequisite chains must be acyclic.
func checkPrerequisites(st *Stage) error {
	for i := range st.Requirements {
		req := &st.Requirements[i]

		if !req.InitiallyVisible && len(req.ShowAfter) == 0 {
			return &ConfigError{StageID: st.ID, RequirementIDs: []string{req.ID},
				Reason: "requirement is never visible: not initially_visible and no show_after prerequisites"}
		}
		for _, dep := range req.ShowAfter {
			if st.byID[dep] == nil {
				return &ConfigError{StageID: st.ID, RequirementIDs: []string{req.ID, dep},
					Reason: "show_after references unknown requirement"}
			}
			if dep == req.ID {
				return &ConfigError{StageID: st.ID, RequirementIDs: []string{req.ID},
					Reason: "requirement is its own prerequisite"}
			}
		}
	}

	// Three-color DFS over show_after edges.
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(st.Requirements))
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		for _, dep := range st.byID[id].ShowAfter {
			switch color[dep] {
			case gray:
				cycle = append(cycle, id, dep)
				return false
			case white:
				if !visit(dep) {
					return false
				}
			}
		}
		color[id] = black
		return true
	}

	for i := range st.Requirements {
		id := st.Requirements[i].ID
		if color[id] == white && !visit(id) {
			sort.Strings(cycle)
			return &ConfigError{StageID: st.ID, RequirementIDs: cycle,
				Reason: "cyclic show_after prerequisite chain"}
		}
	}
	return nil
}

// componentsFile mirrors the on-disk component type document.
type componentsFile struct {
	ComponentTypes []ComponentType `yaml:"component_types"`
}

// LoadComponentTypes reads the component type reference data.
func (l *Loader) LoadComponentTypes() (map[string]ComponentType, error) {
	path := filepath.Join(l.dir, "components.yaml")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read component types %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	var file componentsFile
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("malformed component types %q: %w", path, err)
	}

	types := make(map[string]ComponentType, len(file.ComponentTypes))
	for _, ct := range file.ComponentTypes {
		if err := l.validate.Struct(ct); err != nil {
			return nil, fmt.Errorf("invalid component type %q: %w", ct.ID, err)
		}
		if _, dup := types[ct.ID]; dup {
			return nil, fmt.Errorf("duplicate component type id %q", ct.ID)
		}
		types[ct.ID] = ct
	}
	return types, nil
}
