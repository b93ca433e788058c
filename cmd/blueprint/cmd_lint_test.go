// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const lintTestStage = `
stage_id: stage-1
requirements:
  - id: req-db
    kind: component_required
    title: Add Dedicated Database Server
    priority: 1
    points_value: 20
    unlock_order: 1
    initially_visible: true
    validation_config:
      required_components: [database]
      min_instances: 1
    messages:
      error: Your design needs a dedicated database.
      success: Dedicated database added.
`

const lintTestComponents = `
component_types:
  - id: database
    category: storage
    monthly_cost: 80
    capacity_rps: 500
    base_latency_ms: 5
`

func writeCatalog(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func withCatalogDir(t *testing.T, dir string) {
	t.Helper()
	prev := catalogDir
	catalogDir = dir
	t.Cleanup(func() { catalogDir = prev })
}

func TestDiscoverStages(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"stage-1.yaml":    lintTestStage,
		"stage-2.yml":     lintTestStage,
		"components.yaml": lintTestComponents,
		"notes.txt":       "not a stage",
	})
	if err := os.Mkdir(filepath.Join(dir, "archive"), 0o755); err != nil {
		t.Fatal(err)
	}

	ids, err := discoverStages(dir)
	if err != nil {
		t.Fatalf("discoverStages: %v", err)
	}
	want := []string{"stage-1", "stage-2"}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("discoverStages = %v, want %v", ids, want)
	}
}

func TestDiscoverStagesMissingDir(t *testing.T) {
	if _, err := discoverStages(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing catalogue directory")
	}
}

func TestRunLintPasses(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"stage-1.yaml":    lintTestStage,
		"components.yaml": lintTestComponents,
	})
	withCatalogDir(t, dir)

	if err := runLint(lintCmd, nil); err != nil {
		t.Errorf("runLint: %v", err)
	}
}

func TestRunLintReportsBrokenStage(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"stage-1.yaml":    lintTestStage,
		"broken.yaml":     "stage_id: broken\nrequirements: {not-a-list: true}\n",
		"components.yaml": lintTestComponents,
	})
	withCatalogDir(t, dir)

	err := runLint(lintCmd, nil)
	if err == nil {
		t.Fatal("expected lint failure for malformed stage file")
	}
}

func TestRunLintExplicitUnknownStage(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"components.yaml": lintTestComponents,
	})
	withCatalogDir(t, dir)

	if err := runLint(lintCmd, []string{"does-not-exist"}); err == nil {
		t.Error("expected lint failure for unknown stage id")
	}
}

func TestRunLintEmptyCatalogIsNotAnError(t *testing.T) {
	dir := writeCatalog(t, map[string]string{
		"components.yaml": lintTestComponents,
	})
	withCatalogDir(t, dir)

	if err := runLint(lintCmd, nil); err != nil {
		t.Errorf("runLint on empty catalogue: %v", err)
	}
}
