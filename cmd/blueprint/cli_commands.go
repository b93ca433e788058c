// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blueprint-sim/blueprint/pkg/logging"
	"github.com/blueprint-sim/blueprint/pkg/ux"
)

var (
	engineURL  string
	catalogDir string
	logger     = logging.Default()

	rootCmd = &cobra.Command{
		Use:   "blueprint",
		Short: "A CLI to lint stage catalogues and manage Blueprint design sessions",
		Long: `Blueprint is the command line companion for the Blueprint engine.
It validates stage catalogue files before they reach players and talks
to a running engine service to start, inspect and reset sessions.`,
	}

	sessionCmd = &cobra.Command{
		Use:   "session",
		Short: "Manage design sessions on a running engine",
	}

	sessionStartCmd = &cobra.Command{
		Use:   "start [stage-id]",
		Short: "Start a new design session for a stage",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionStart,
	}

	sessionStatusCmd = &cobra.Command{
		Use:   "status [session-id]",
		Short: "Show a session's progression state",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionStatus,
	}

	sessionDeleteCmd = &cobra.Command{
		Use:   "delete [session-id]",
		Short: "Delete a session, resetting the stage",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionDelete,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&engineURL, "engine-url",
		envOr("BLUEPRINT_ENGINE_URL", "http://localhost:12300"),
		"Base URL of the engine service")

	lintCmd.Flags().StringVar(&catalogDir, "catalog",
		envOr("BLUEPRINT_CATALOG_DIR", "./catalog"),
		"Directory containing stage and component catalogue files")

	sessionCmd.AddCommand(sessionStartCmd, sessionStatusCmd, sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd, lintCmd)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func engineRequest(method, path string, body any) (map[string]any, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequest(method, engineURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("engine unreachable at %s: %w", engineURL, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	var parsed map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return nil, resp.StatusCode, fmt.Errorf("malformed engine response: %w", err)
		}
	}
	return parsed, resp.StatusCode, nil
}

func runSessionStart(cmd *cobra.Command, args []string) error {
	stageID := args[0]

	resp, status, err := engineRequest("POST", "/v1/sessions", map[string]any{"stage_id": stageID})
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		ux.Error(fmt.Sprintf("engine refused session (%d): %v", status, resp["error"]))
		return fmt.Errorf("session start failed with status %d", status)
	}

	sessionID, _ := resp["session_id"].(string)
	ux.Success("session started")
	ux.Info("session id: " + sessionID)
	ux.Info("stage:      " + stageID)
	logger.Info("session started", "session_id", sessionID, "stage_id", stageID)
	return nil
}

func runSessionStatus(cmd *cobra.Command, args []string) error {
	resp, status, err := engineRequest("GET", "/v1/sessions/"+args[0], nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		ux.Error(fmt.Sprintf("engine returned %d: %v", status, resp["error"]))
		return fmt.Errorf("session status failed with status %d", status)
	}

	result, _ := resp["result"].(map[string]any)
	if result == nil {
		return fmt.Errorf("engine response missing result")
	}

	ux.Title("Session " + args[0])
	score, _ := result["score"].(float64)
	completed, _ := result["completed"].(bool)
	perStatus, _ := result["per_requirement_status"].(map[string]any)
	visible, _ := result["visible_requirements"].([]any)

	for _, v := range visible {
		req, _ := v.(map[string]any)
		if req == nil {
			continue
		}
		id, _ := req["id"].(string)
		title, _ := req["title"].(string)
		icon := ux.IconPending
		reason := ""
		if s, ok := perStatus[id].(string); ok && s == "satisfied" {
			icon = ux.IconSuccess
			reason = "satisfied"
		}
		ux.ItemStatus(title, icon, reason)
	}

	ux.Info(fmt.Sprintf("score: %d", int(score)))
	if completed {
		ux.Success("stage complete")
	}
	return nil
}

func runSessionDelete(cmd *cobra.Command, args []string) error {
	resp, status, err := engineRequest("DELETE", "/v1/sessions/"+args[0], nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		ux.Error(fmt.Sprintf("engine returned %d: %v", status, resp["error"]))
		return fmt.Errorf("session delete failed with status %d", status)
	}
	ux.Success("session deleted")
	return nil
}
