// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command engine starts the Blueprint engine HTTP server.
//
// This is the entry point for the containerized engine service. It
// reads configuration from environment variables and runs until
// SIGINT or SIGTERM.
//
// # Usage
//
//	go build -o engine ./cmd/engine
//	BLUEPRINT_CATALOG_DIR=./catalog ./engine
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/blueprint-sim/blueprint/services/engine"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := engine.ConfigFromEnv()
	if err != nil {
		log.Fatalf("Failed to load engine config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := engine.Run(ctx, cfg); err != nil {
		log.Fatalf("Engine error: %v", err)
	}
}
