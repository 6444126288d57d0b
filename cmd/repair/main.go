// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package main is the cinetrace-repair tool. It recovers a corrupt legacy
// flat-file user database, trying restore-from-backup, truncate-to-valid,
// and reset-to-empty in that order. The corrupt file is always snapshotted
// before it is touched.
//
// Usage:
//
//	cinetrace-repair -file /data/users.json [-backup /data/users.json.bak]
package main

import (
	"flag"
	"os"

	"github.com/tomtom215/cinetrace/internal/legacy"
	"github.com/tomtom215/cinetrace/internal/logging"
)

func main() {
	filePath := flag.String("file", "", "path to the legacy user database file (required)")
	backupPath := flag.String("backup", "", "path to a backup of the user database (optional)")
	logLevel := flag.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Format: "console"})

	if *filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	repairer := legacy.NewRepairer(*filePath, *backupPath)
	result, err := repairer.Repair()
	if err != nil {
		logging.Fatal().Err(err).Msg("Repair failed")
	}

	logging.Info().
		Str("outcome", string(result.Outcome)).
		Int("records", result.RecordCount).
		Str("snapshot", result.SnapshotPath).
		Msg("Repair finished")
}
