// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package main is the cinetrace-migrate tool. It moves legacy flat-file user
// records into the document store, remapping each legacy id to a
// deterministic UUID and writing a legacy-to-new mapping file so dependent
// per-user data can be migrated consistently. Re-running the migration is
// safe: deterministic ids make already-migrated users skip, not duplicate.
//
// The target store comes from the standard Cinetrace configuration
// (config.yaml plus STORE_* environment variables).
//
// Usage:
//
//	cinetrace-migrate -file /data/users.json -mapping /data/id-mapping.json
package main

import (
	"context"
	"flag"
	"os"

	"github.com/tomtom215/cinetrace/internal/config"
	"github.com/tomtom215/cinetrace/internal/legacy"
	"github.com/tomtom215/cinetrace/internal/logging"
	"github.com/tomtom215/cinetrace/internal/store"
)

func main() {
	filePath := flag.String("file", "", "path to the legacy user database file (required)")
	mappingPath := flag.String("mapping", "id-mapping.json", "path to write the legacy-to-new id mapping")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})

	if *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	recordStore, err := store.New(ctx, &cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize record store")
	}
	defer func() {
		if err := recordStore.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing record store")
		}
	}()

	migrator := legacy.NewMigrator(recordStore)
	result, err := migrator.Migrate(ctx, *filePath, *mappingPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("Migration failed")
	}

	logging.Info().
		Int("total", result.Total).
		Int("migrated", result.Migrated).
		Int("skipped", result.Skipped).
		Msg("Migration finished")
}
