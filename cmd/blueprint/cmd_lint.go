// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blueprint-sim/blueprint/pkg/ux"
	"github.com/blueprint-sim/blueprint/services/engine/catalog"
)

var lintCmd = &cobra.Command{
	Use:   "lint [stage-id...]",
	Short: "Validate stage catalogue files without starting the engine",
	Long: `Lint parses stage definitions the same way the engine does at
session start: strict YAML, per-kind validation config, prerequisite
graph checks. With no arguments every stage file in the catalogue
directory is linted.`,
	RunE: runLint,
}

func runLint(cmd *cobra.Command, args []string) error {
	stageIDs := args
	if len(stageIDs) == 0 {
		found, err := discoverStages(catalogDir)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			ux.Warning("no stage files found in " + catalogDir)
			return nil
		}
		stageIDs = found
	}

	loader := catalog.NewLoader(catalogDir)

	ux.Title("Blueprint Stage Lint")
	ux.Muted(catalogDir)

	passed, failed := 0, 0
	for _, id := range stageIDs {
		st, err := loader.LoadStage(id)
		if err != nil {
			failed++
			var cfgErr *catalog.ConfigError
			if errors.As(err, &cfgErr) {
				reason := cfgErr.Reason
				if len(cfgErr.RequirementIDs) > 0 {
					reason += " [" + strings.Join(cfgErr.RequirementIDs, ", ") + "]"
				}
				ux.ItemStatus(id, ux.IconError, reason)
			} else {
				ux.ItemStatus(id, ux.IconError, err.Error())
			}
			continue
		}
		passed++
		ux.ItemStatus(id, ux.IconSuccess,
			fmt.Sprintf("%d requirements, %d points", len(st.Requirements), st.TotalPoints()))
	}

	warnings := 0
	if _, err := loader.LoadComponentTypes(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			warnings++
			ux.Warning("components.yaml missing: sessions cannot start without it")
		} else {
			failed++
			ux.ItemStatus("components", ux.IconError, err.Error())
		}
	}

	ux.Summary(passed, warnings, len(stageIDs))

	if failed > 0 {
		return fmt.Errorf("%d of %d stage files failed lint", failed, len(stageIDs))
	}
	return nil
}

// discoverStages lists stage ids from yaml files in the catalogue
// directory, excluding the component reference file.
func discoverStages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read catalogue directory %q: %w", dir, err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		id := strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		if id == "components" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
