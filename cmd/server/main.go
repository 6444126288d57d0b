// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package main is the entry point for the Cinetrace server application.
//
// Cinetrace ingests per-user behavioral telemetry from media catalog UIs
// (page views, UI interactions, session boundaries) and folds every event
// into a single per-user tracking document via atomic store operations.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Record store: memory, BadgerDB, or MongoDB, optionally behind a circuit breaker
//  3. Tracking core: envelope validation, session resolution, aggregation
//  4. Authentication: JWT bearer verification or no-auth mode
//  5. HTTP server: Chi router with rate limiting, CORS, and Prometheus metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Environment variables (SERVER_, STORE_, TRACKING_, SECURITY_, LOGGING_ prefixes)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// For JWT authentication (default):
//   - SECURITY_JWT_SECRET: 32+ character secret shared with the token issuer
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes the record store
//
// # Example Usage
//
// Development with the in-memory store:
//
//	export STORE_BACKEND=memory
//	export SECURITY_AUTH_MODE=none  # For development
//	./cinetrace
//
// Single-node production with BadgerDB:
//
//	export STORE_BACKEND=badger
//	export STORE_BADGER_PATH=/data/cinetrace
//	export SECURITY_JWT_SECRET=$(openssl rand -base64 32)
//	./cinetrace
//
// Multi-node production with MongoDB:
//
//	export STORE_BACKEND=mongo
//	export STORE_MONGO_URI=mongodb://mongo:27017
//	export STORE_MONGO_DATABASE=cinetrace
//	export SECURITY_JWT_SECRET=$(openssl rand -base64 32)
//	./cinetrace
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

	"github.com/tomtom215/cinetrace/internal/api"
	"github.com/tomtom215/cinetrace/internal/config"
	"github.com/tomtom215/cinetrace/internal/logging"
	"github.com/tomtom215/cinetrace/internal/store"
	"github.com/tomtom215/cinetrace/internal/tracking"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		// Use default logger for config errors (config not yet available)
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize zerolog with configuration
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("backend", cfg.Store.Backend).
		Str("auth_mode", cfg.Security.AuthMode).
		Msg("Starting Cinetrace")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recordStore, err := store.New(ctx, &cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize record store")
	}
	defer func() {
		if err := recordStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing record store")
		}
	}()

	if cfg.Store.BreakerEnabled {
		logging.Info().
			Uint32("max_failures", cfg.Store.BreakerMaxFailures).
			Dur("timeout", cfg.Store.BreakerTimeout).
			Msg("Store circuit breaker enabled")
	}

	tracker := tracking.New(recordStore, tracking.Config{
		MaxResolveAttempts: cfg.Tracking.MaxResolveAttempts,
	})

	if cfg.Security.AuthMode == "none" {
		logging.Warn().Msg("============================================================")
		logging.Warn().Msg("  SECURITY WARNING: Authentication is DISABLED (AUTH_MODE=none)")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  Any client can write tracking data for any user!")
		logging.Warn().Msg("  This mode should ONLY be used for:")
		logging.Warn().Msg("    - Local development")
		logging.Warn().Msg("    - Completely isolated private networks")
		logging.Warn().Msg("    - CI/CD testing environments")
		logging.Warn().Msg("  ")
		logging.Warn().Msg("  NEVER use AUTH_MODE=none in production or on public networks!")
		logging.Warn().Msg("============================================================")
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (SECURITY_RATE_LIMIT_DISABLED=true)")
		logging.Warn().Msg("This should only be used for load tests!")
	}

	handler := api.NewHandler(tracker, recordStore)
	chiMw := api.NewChiMiddleware(&api.ChiMiddlewareConfig{
		CORSAllowedOrigins: cfg.Security.CORSOrigins,
		RateLimitRequests:  cfg.Security.RateLimitRequests,
		RateLimitWindow:    cfg.Security.RateLimitWindow,
		RateLimitDisabled:  cfg.Security.RateLimitDisabled,
	})
	auth := api.NewAuthMiddleware(&cfg.Security)
	router := api.NewRouter(handler, chiMw, auth)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server failed")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP server shutdown error")
	}

	logging.Info().Msg("Application stopped gracefully")
}
