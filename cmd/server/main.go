// LinkScope - IoT Device Diagnostic Log Analytics
// Copyright 2026 ProbeLab
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/probelab/linkscope

// Package main is the entry point for the LinkScope server.
//
// LinkScope is a self-hosted analytics service for IoT device diagnostic
// logs. It ingests raw BLE link-layer log captures, extracts canonical
// events, reconstructs device sessions, scores capture quality, evaluates
// assertion rules, and compares runs against stored regression baselines.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: layered defaults, YAML file, environment (Koanf v2)
//  2. Event store: embedded DuckDB with the event, rule, run, and
//     baseline schema
//  3. Blob store: BadgerDB archive of uploaded raw captures, wrapped in a
//     circuit breaker
//  4. Assertion engine: rule evaluation triggered by ingests and the API
//  5. Authorization: optional Casbin RBAC gate fed by reverse-proxy headers
//  6. HTTP server: REST API under /api/v1 plus a Prometheus /metrics endpoint
//  7. Supervisor tree: suture-managed storage and API layers
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (DUCKDB_PATH, BLOB_DIR, HTTP_PORT, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Encrypted Captures
//
// Devices in the field may upload encrypted log containers. Setting
// DECRYPT_SECRET enables transparent decryption during ingest; without it,
// encrypted uploads fail with an explanatory synthetic event.
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Stops blob store maintenance and closes both stores
//
// # Example Usage
//
// Development, everything in memory:
//
//	export DUCKDB_PATH=
//	export BLOB_DIR=
//	./linkscope
//
// Production with persistent stores and the RBAC gate:
//
//	export DUCKDB_PATH=/data/linkscope.duckdb
//	export BLOB_DIR=/data/blobs
//	export CASBIN_ENABLED=true
//	export CORS_ORIGINS=https://linkscope.example.com
//	./linkscope
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/probelab/linkscope/internal/api"
	"github.com/probelab/linkscope/internal/assertion"
	"github.com/probelab/linkscope/internal/authz"
	"github.com/probelab/linkscope/internal/config"
	"github.com/probelab/linkscope/internal/ingest"
	"github.com/probelab/linkscope/internal/logging"
	"github.com/probelab/linkscope/internal/session"
	"github.com/probelab/linkscope/internal/store"
	"github.com/probelab/linkscope/internal/supervisor"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("blob_dir", cfg.Blob.Dir).
		Bool("casbin_enabled", cfg.Security.Casbin.Enabled).
		Msg("Configuration loaded")

	db, err := store.NewDB(store.Config{
		Path:      cfg.Database.Path,
		Threads:   cfg.Database.Threads,
		MaxMemory: cfg.Database.MaxMemory,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize event store")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event store")
		}
	}()
	logging.Info().Msg("Event store initialized")

	badgerStore, err := store.NewBadgerBlobStore(store.BlobConfig{Dir: cfg.Blob.Dir})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open blob store")
	}
	defer func() {
		if err := badgerStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing blob store")
		}
	}()
	blobs := store.NewResilientBlobStore(badgerStore, store.DefaultBreakerConfig())
	logging.Info().Msg("Blob store initialized")

	engine := assertion.NewEngine(db, db)

	// The decryptor is optional; without a secret, encrypted uploads fail
	// their batch with an explanatory synthetic event.
	var dec ingest.Decryptor
	if cfg.Ingest.DecryptSecret != "" {
		d, err := ingest.NewContainerDecryptor(cfg.Ingest.DecryptSecret)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize capture decryptor")
		}
		dec = d
		logging.Info().Msg("Capture decryption enabled")
	} else {
		logging.Info().Msg("Capture decryption disabled (DECRYPT_SECRET not set)")
	}

	gate, err := initAuthz(&cfg.Security.Casbin)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize authorization")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (DISABLE_RATE_LIMIT=true)")
	}

	handler := api.NewHandler(db, blobs, engine, dec,
		session.NewReconstructor(session.Config{}),
		api.HandlerConfig{
			DefaultPageSize: cfg.API.DefaultPageSize,
			MaxPageSize:     cfg.API.MaxPageSize,
			MaxUploadBytes:  cfg.Ingest.MaxUploadBytes,
		})

	mw := api.NewMiddleware(&api.MiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization", authz.SubjectHeader, authz.RolesHeader},
		CORSMaxAge:         86400,
		RateLimitRequests:  cfg.Security.RateLimitReqs,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	})

	router := api.NewRouter(handler, mw, gate)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bridge zerolog to slog for sutureslog compatibility
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())

	// Storage layer: badger value-log GC needs a periodic caller
	tree.AddStorageService(supervisor.NewBlobGCService(badgerStore, 10*time.Minute, 0.5))

	// API layer
	tree.AddAPIService(supervisor.NewHTTPServerService(server, 10*time.Second))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish...")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor finishes
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	if len(unstopped) > 0 {
		logging.Warn().Int("count", len(unstopped)).Msg("Services failed to stop within timeout")
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}

// initAuthz builds the RBAC gate. When disabled, the returned middleware
// passes every request through and no enforcer is created.
func initAuthz(cfg *config.CasbinConfig) (*authz.Middleware, error) {
	if !cfg.Enabled {
		logging.Warn().Msg("Authorization is DISABLED (CASBIN_ENABLED=false); all endpoints are open")
		return authz.NewMiddleware(nil, false), nil
	}

	econf := authz.DefaultEnforcerConfig()
	econf.ModelPath = cfg.ModelPath
	econf.PolicyPath = cfg.PolicyPath
	if cfg.DefaultRole != "" {
		econf.DefaultRole = cfg.DefaultRole
	}

	enforcer, err := authz.NewEnforcer(econf)
	if err != nil {
		return nil, fmt.Errorf("creating enforcer: %w", err)
	}
	logging.Info().
		Str("default_role", econf.DefaultRole).
		Bool("embedded_policy", cfg.PolicyPath == "").
		Msg("RBAC authorization enabled")
	return authz.NewMiddleware(enforcer, true), nil
}
