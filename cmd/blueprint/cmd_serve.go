// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blueprint-sim/blueprint/pkg/ux"
	"github.com/blueprint-sim/blueprint/services/engine"
)

var (
	servePort       string
	serveCatalogDir string
	serveDataDir    string
	serveSessionTTL time.Duration

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the Blueprint engine in the foreground",
		Long: `Serve runs the engine HTTP server until interrupted. Flags override
the corresponding BLUEPRINT_* environment variables.`,
		RunE: runServe,
	}
)

func runServe(cmd *cobra.Command, args []string) error {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := engine.ConfigFromEnv()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("port") {
		cfg.Port = servePort
	}
	if cmd.Flags().Changed("catalog") {
		cfg.CatalogDir = serveCatalogDir
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = serveDataDir
	}
	if cmd.Flags().Changed("session-ttl") {
		cfg.IdleTTL = serveSessionTTL
	}

	ux.Title("Blueprint Engine")
	ux.Info("listening on :" + cfg.Port)
	ux.Info("catalogue: " + cfg.CatalogDir)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx, cfg)
}

func init() {
	serveCmd.Flags().StringVar(&servePort, "port", "12300", "HTTP listen port")
	serveCmd.Flags().StringVar(&serveCatalogDir, "catalog", "./catalog", "Stage catalogue directory")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Progress store directory (empty disables persistence)")
	serveCmd.Flags().DurationVar(&serveSessionTTL, "session-ttl", 2*time.Hour, "Idle session eviction")
	rootCmd.AddCommand(serveCmd)
}
