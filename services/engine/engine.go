// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine hosts the Blueprint validation and progression
// engine: stage catalogues, collaborative design sessions, and the
// REST/websocket surface the canvas UI talks to.
//
// # Description
//
// Run wires the full service from a Config and blocks until the
// context is cancelled: gin router with tracing middleware, session
// registry with idle reaping, catalogue hot reload, and the optional
// Badger-backed progress store. Callers (the CLI serve command, a
// container entrypoint) own signal handling and logger setup.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/blueprint-sim/blueprint/pkg/extensions"
	"github.com/blueprint-sim/blueprint/services/engine/catalog"
	"github.com/blueprint-sim/blueprint/services/engine/handlers"
	"github.com/blueprint-sim/blueprint/services/engine/progression"
	"github.com/blueprint-sim/blueprint/services/engine/routes"
	"github.com/blueprint-sim/blueprint/services/engine/storage/badgerstore"
)

const serviceName = "blueprint-engine"

// Config holds the engine service configuration. Zero values fall back
// to the documented defaults in ConfigFromEnv.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// CatalogDir holds the stage and component YAML files.
	CatalogDir string

	// DataDir enables Badger-backed progress persistence when set.
	DataDir string

	// IdleTTL evicts sessions with no mutations for this long.
	IdleTTL time.Duration

	// OTelEndpoint enables OTLP trace export when set.
	OTelEndpoint string

	// Options carries the hosted-deployment extension points.
	Options *extensions.ServiceOptions
}

// ConfigFromEnv builds a Config from environment variables.
//
// # Environment Variables
//
//   - BLUEPRINT_PORT: HTTP server port (default: 12300)
//   - BLUEPRINT_CATALOG_DIR: stage catalogue directory (default: ./catalog)
//   - BLUEPRINT_DATA_DIR: progress store directory (optional; unset
//     disables persistence)
//   - BLUEPRINT_SESSION_TTL: idle session eviction, Go duration syntax
//     (default: 2h)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Port:         envOr("BLUEPRINT_PORT", "12300"),
		CatalogDir:   envOr("BLUEPRINT_CATALOG_DIR", "./catalog"),
		DataDir:      os.Getenv("BLUEPRINT_DATA_DIR"),
		IdleTTL:      progression.DefaultIdleTTL,
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	if raw := os.Getenv("BLUEPRINT_SESSION_TTL"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid BLUEPRINT_SESSION_TTL %q: %w", raw, err)
		}
		cfg.IdleTTL = d
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Run starts the engine service and blocks until ctx is cancelled or a
// component fails. Shutdown is graceful with a 10 second drain.
func Run(ctx context.Context, cfg Config) error {
	opts := cfg.Options
	if opts == nil {
		defaults := extensions.DefaultOptions()
		opts = &defaults
	}

	cleanup, err := initTracer(ctx, cfg.OTelEndpoint)
	if err != nil {
		return fmt.Errorf("setup OTLP tracer: %w", err)
	}
	defer cleanup(context.Background())

	idleTTL := cfg.IdleTTL
	if idleTTL <= 0 {
		idleTTL = progression.DefaultIdleTTL
	}

	deps := handlers.Deps{
		Registry: progression.NewRegistry(idleTTL, nil),
		Catalog:  catalog.NewLoader(cfg.CatalogDir),
		Audit:    opts.AuditLogger,
	}

	var store *badgerstore.Store
	if cfg.DataDir != "" {
		store, err = badgerstore.Open(badgerstore.DefaultConfig(cfg.DataDir))
		if err != nil {
			return fmt.Errorf("open progress store: %w", err)
		}
		defer store.Close()
		deps.Store = store
		deps.Reader = store
		slog.Info("progress persistence enabled", "dir", cfg.DataDir)
	} else {
		slog.Info("BLUEPRINT_DATA_DIR not set, progress persistence disabled")
	}

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, deps, opts.AuthProvider)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting engine server", "port", cfg.Port, "catalog", cfg.CatalogDir)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		watcher, err := catalog.NewWatcher(deps.Catalog)
		if err != nil {
			slog.Warn("catalogue watcher unavailable, edits need a restart", "error", err)
			return nil
		}
		return watcher.Run(gctx)
	})

	g.Go(func() error {
		return deps.Registry.Run(gctx, 5*time.Minute)
	})

	if store != nil {
		g.Go(func() error {
			store.RunGC(gctx)
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("engine stopped")
	return nil
}

// initTracer sets up OTLP trace export. An empty endpoint disables
// tracing and returns a no-op cleanup.
func initTracer(ctx context.Context, endpoint string) (func(context.Context), error) {
	if endpoint == "" {
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
