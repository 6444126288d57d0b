// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package legacy

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinetrace/internal/logging"
)

// RepairOutcome describes which recovery strategy succeeded.
type RepairOutcome string

const (
	// OutcomeIntact means the primary file already parsed; nothing changed.
	OutcomeIntact RepairOutcome = "intact"
	// OutcomeRestored means the file was replaced with a valid backup.
	OutcomeRestored RepairOutcome = "restored_from_backup"
	// OutcomeTruncated means the file was cut back to its last valid prefix.
	OutcomeTruncated RepairOutcome = "truncated"
	// OutcomeReset means no recovery was possible and the file became "[]".
	OutcomeReset RepairOutcome = "reset"
)

// RepairResult summarizes a repair run.
type RepairResult struct {
	Outcome      RepairOutcome
	RecordCount  int
	SnapshotPath string
}

// Repairer recovers a corrupt legacy flat-file user database. Recovery is
// tried in order of how much data each strategy preserves: restore from
// backup, truncate to the last well-formed prefix, reset to an empty array.
// The corrupt primary is always snapshotted before it is mutated.
type Repairer struct {
	primaryPath string
	backupPath  string
	now         func() time.Time
}

// NewRepairer creates a repairer for the given primary file. backupPath may
// be empty when no backup exists.
func NewRepairer(primaryPath, backupPath string) *Repairer {
	return &Repairer{
		primaryPath: primaryPath,
		backupPath:  backupPath,
		now:         time.Now,
	}
}

// Repair runs the recovery ladder and returns what happened.
func (r *Repairer) Repair() (*RepairResult, error) {
	raw, err := os.ReadFile(r.primaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read primary file: %w", err)
	}

	if users, ok := parseUsers(raw); ok {
		logging.Info().
			Str("path", r.primaryPath).
			Int("records", len(users)).
			Msg("Legacy file is intact, no repair needed")
		return &RepairResult{Outcome: OutcomeIntact, RecordCount: len(users)}, nil
	}

	// Preserve the corrupt bytes before any strategy rewrites them.
	snapshotPath, err := r.snapshot(raw)
	if err != nil {
		return nil, err
	}
	logging.Warn().
		Str("path", r.primaryPath).
		Str("snapshot", snapshotPath).
		Msg("Legacy file is corrupt, snapshot written")

	// Strategy 1: restore from backup if the backup itself is valid.
	if r.backupPath != "" {
		if backupRaw, readErr := os.ReadFile(r.backupPath); readErr == nil {
			if users, ok := parseUsers(backupRaw); ok {
				if writeErr := atomicWrite(r.primaryPath, backupRaw); writeErr != nil {
					return nil, writeErr
				}
				logging.Info().
					Str("backup", r.backupPath).
					Int("records", len(users)).
					Msg("Restored legacy file from backup")
				return &RepairResult{
					Outcome:      OutcomeRestored,
					RecordCount:  len(users),
					SnapshotPath: snapshotPath,
				}, nil
			}
			logging.Warn().Str("backup", r.backupPath).Msg("Backup is also corrupt, skipping")
		}
	}

	// Strategy 2: truncate to the longest prefix that still parses. Scans
	// closing delimiters from the end so the most data survives.
	if truncated, users, ok := truncateToValid(raw); ok {
		if writeErr := atomicWrite(r.primaryPath, truncated); writeErr != nil {
			return nil, writeErr
		}
		logging.Info().
			Int("records", len(users)).
			Int("bytes_dropped", len(raw)-len(truncated)).
			Msg("Truncated legacy file to last valid prefix")
		return &RepairResult{
			Outcome:      OutcomeTruncated,
			RecordCount:  len(users),
			SnapshotPath: snapshotPath,
		}, nil
	}

	// Strategy 3: nothing salvageable.
	if writeErr := atomicWrite(r.primaryPath, []byte("[]")); writeErr != nil {
		return nil, writeErr
	}
	logging.Warn().Str("path", r.primaryPath).Msg("Legacy file reset to empty array")
	return &RepairResult{Outcome: OutcomeReset, SnapshotPath: snapshotPath}, nil
}

// snapshot writes the corrupt bytes next to the primary with a timestamped
// suffix and returns the snapshot path.
func (r *Repairer) snapshot(raw []byte) (string, error) {
	path := fmt.Sprintf("%s.corrupt-%s", r.primaryPath, r.now().UTC().Format("20060102T150405Z"))
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return "", fmt.Errorf("failed to snapshot corrupt file: %w", err)
	}
	return path, nil
}

// parseUsers reports whether raw is a well-formed JSON array of user records.
func parseUsers(raw []byte) ([]User, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, false
	}
	var users []User
	if err := json.Unmarshal(trimmed, &users); err != nil {
		return nil, false
	}
	return users, true
}

// truncateToValid finds the longest prefix of raw ending in a closing ']'
// that parses as a user array. Trailing garbage after the delimiter is
// dropped; partial trailing records are cut by patching the preceding
// object boundary.
func truncateToValid(raw []byte) ([]byte, []User, bool) {
	s := string(raw)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != ']' && s[i] != '}' {
			continue
		}
		candidate := s[:i+1]
		if s[i] == '}' {
			// A trailing partial record after this object was cut off, so
			// the array needs reclosing.
			candidate = strings.TrimRight(candidate, " \t\r\n,") + "]"
		}
		if users, ok := parseUsers([]byte(candidate)); ok {
			return []byte(candidate), users, true
		}
	}
	return nil, nil, false
}

// atomicWrite replaces path via a temp file and rename so a crash mid-repair
// never leaves a half-written primary.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
