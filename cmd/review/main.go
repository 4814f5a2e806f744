// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command review starts the Aleutian Review API server.
//
// Aleutian Review provides diff-scoped call-site verification with:
//   - Syntax-aware definition indexing (Python, TypeScript, JavaScript, Go)
//   - Immutable per-commit contract snapshots
//   - Deterministic, template-based fix suggestions
//   - Run supersedure: a newer push cancels the in-flight review
//
// Usage:
//
//	go run ./cmd/review
//	go run ./cmd/review -port 9191
//	go run ./cmd/review -config review.yaml -debug
//
// With snapshot persistence:
//
//	REVIEW_DATA_DIR=~/.aleutian/review go run ./cmd/review
//
// Example requests:
//
//	# Health check
//	curl http://localhost:9191/v1/review/health
//
//	# Index a commit
//	curl -X POST http://localhost:9191/v1/review/index \
//	  -H "Content-Type: application/json" \
//	  -d '{"repo_id": "acme/billing", "commit_sha": "abc123", "files": [...]}'
//
//	# Run a review
//	curl -X POST http://localhost:9191/v1/review/run \
//	  -H "Content-Type: application/json" \
//	  -d '{"repo_id": "acme/billing", "pr_number": 7, ...}'
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianReview/services/review"
	"github.com/AleutianAI/AleutianReview/services/review/config"
	badgerstore "github.com/AleutianAI/AleutianReview/services/review/storage/badger"
	"github.com/AleutianAI/AleutianReview/services/review/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	port := flag.Int("port", 9191, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	configPath := flag.String("config", "", "Path to a YAML config overlay")
	stdoutTraces := flag.Bool("stdout-traces", false, "Write spans to stdout for local debugging")
	flag.Parse()

	setupLogging(*debug)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Telemetry first so every later component picks up the global
	// providers and propagator.
	shutdownTelemetry, err := telemetry.Setup(telemetry.Config{
		ServiceName:    "aleutian-review",
		ServiceVersion: serviceVersion,
		StdoutTraces:   *stdoutTraces,
	})
	if err != nil {
		slog.Error("Failed to set up telemetry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Open the snapshot BadgerDB. Graceful degradation: without it the
	// service still works, snapshots just do not survive restarts.
	var store *badgerstore.SnapshotStore
	var storeDB *badgerstore.DB
	dataDir := os.Getenv("REVIEW_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			dataDir = filepath.Join(home, ".aleutian", "review", "snapshots")
		}
	}
	if dataDir != "" {
		storeCfg := badgerstore.DefaultConfig()
		storeCfg.Path = dataDir
		db, err := badgerstore.OpenDB(storeCfg)
		if err != nil {
			slog.Warn("Snapshot BadgerDB unavailable, persistence disabled",
				slog.String("path", dataDir),
				slog.String("error", err.Error()),
			)
		} else {
			storeDB = db
			store, err = badgerstore.NewSnapshotStore(db, slog.Default())
			if err != nil {
				slog.Warn("Snapshot store unavailable, persistence disabled",
					slog.String("error", err.Error()))
			} else {
				slog.Info("Snapshot BadgerDB opened",
					slog.String("path", dataDir),
				)
			}
		}
	}

	opts := []review.ServiceOption{}
	if store != nil {
		opts = append(opts, review.WithSnapshotStore(store))
	}
	svc := review.NewService(cfg, opts...)

	// Warm-start repositories named in REVIEW_RESTORE_REPOS get their
	// latest persisted snapshot adopted before the server accepts runs.
	if repos := os.Getenv("REVIEW_RESTORE_REPOS"); repos != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		svc.RestoreSnapshots(ctx, splitRepoList(repos))
		cancel()
	}

	handlers := review.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-review"))
	if *debug {
		router.Use(gin.Logger())
	}

	review.RegisterRoutes(router.Group("/v1/review"), handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(*port, store != nil)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Aleutian Review server")
		if storeDB != nil {
			if err := storeDB.Close(); err != nil {
				slog.Warn("Failed to close snapshot BadgerDB", slog.String("error", err.Error()))
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTelemetry(ctx); err != nil {
			slog.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting Aleutian Review server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupLogging picks a human-readable handler on a terminal and JSON
// otherwise, so container logs stay machine-parseable.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadConfig applies the optional YAML overlay, then environment
// variables, on top of the embedded defaults.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Load(nil)
	}
	return config.LoadFile(path)
}

func splitRepoList(raw string) []string {
	parts := strings.Split(raw, ",")
	repos := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			repos = append(repos, p)
		}
	}
	return repos
}

func printBanner(port int, persistence bool) {
	persistStatus := "DISABLED (set REVIEW_DATA_DIR to enable)"
	if persistence {
		persistStatus = "ENABLED (BadgerDB)"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                      ALEUTIAN REVIEW SERVER                       ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Diff-scoped call-site verification for pull requests.            ║
║  Persistence: %-48s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/review/health            │  ║
║  │                                                             │  ║
║  │ # Index a commit (required before reviewing)                │  ║
║  │ curl -X POST http://localhost:%d/v1/review/index \   │  ║
║  │   -H "Content-Type: application/json" -d @index.json       │  ║
║  │                                                             │  ║
║  │ # Run a review                                              │  ║
║  │ curl -X POST http://localhost:%d/v1/review/run \     │  ║
║  │   -H "Content-Type: application/json" -d @run.json         │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, persistStatus, port, port, port)
}
