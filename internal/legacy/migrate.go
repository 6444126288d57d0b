// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package legacy

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/cinetrace/internal/logging"
	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/store"
)

// MigrateResult summarizes a migration run.
type MigrateResult struct {
	Total    int
	Migrated int
	Skipped  int
	Mappings []IDMapping
}

// Migrator moves legacy flat-file user records into the document store.
// Legacy ids are remapped to deterministic UUIDs so re-running the migration
// produces the same store ids and already-migrated users are skipped rather
// than duplicated.
type Migrator struct {
	store store.Store
}

// NewMigrator creates a migrator writing to the given store.
func NewMigrator(s store.Store) *Migrator {
	return &Migrator{store: s}
}

// Migrate reads the legacy file, creates one store record per legacy user,
// and writes the legacy-to-new id mapping to mappingPath.
func (m *Migrator) Migrate(ctx context.Context, legacyPath, mappingPath string) (*MigrateResult, error) {
	raw, err := os.ReadFile(legacyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read legacy file: %w", err)
	}

	users, ok := parseUsers(raw)
	if !ok {
		return nil, fmt.Errorf("legacy file %s is not a valid user array, run repair first", legacyPath)
	}

	result := &MigrateResult{Total: len(users)}
	for i := range users {
		legacyID := normalizeLegacyID(users[i].ID)
		if legacyID == "" {
			logging.Warn().
				Int("index", i).
				Str("username", users[i].Username).
				Msg("Skipping legacy record without id")
			result.Skipped++
			continue
		}

		newID := deterministicUserID(legacyID, users[i].Username)
		record := &models.UserRecord{
			ID:        newID,
			Username:  users[i].Username,
			Email:     users[i].Email,
			CreatedAt: users[i].CreatedAt,
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = time.Now()
		}

		err := m.store.CreateUser(ctx, record)
		switch {
		case errors.Is(err, store.ErrUserExists):
			// Deterministic id means this user was migrated on a prior run.
			result.Skipped++
		case err != nil:
			return nil, fmt.Errorf("failed to migrate user %s: %w", legacyID, err)
		default:
			result.Migrated++
		}

		result.Mappings = append(result.Mappings, IDMapping{
			LegacyID: legacyID,
			NewID:    newID,
			Username: users[i].Username,
		})
	}

	if err := writeMappingFile(mappingPath, result.Mappings); err != nil {
		return nil, err
	}

	logging.Info().
		Int("total", result.Total).
		Int("migrated", result.Migrated).
		Int("skipped", result.Skipped).
		Str("mapping", mappingPath).
		Msg("Legacy migration complete")
	return result, nil
}

// normalizeLegacyID renders the legacy id field as a string regardless of
// whether it was serialized as a number or a string.
func normalizeLegacyID(id interface{}) string {
	switch v := id.(type) {
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; legacy ids were always integers.
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// deterministicUserID derives a stable UUID from the legacy identity so the
// same legacy record always maps to the same store id.
func deterministicUserID(legacyID, username string) string {
	input := fmt.Sprintf("cinetrace-migrate:%s:%s", legacyID, username)
	hash := sha256.Sum256([]byte(input))

	id, err := uuid.FromBytes(hash[:16])
	if err != nil {
		return uuid.New().String()
	}
	id[6] = (id[6] & 0x0f) | 0x50 // Version 5
	id[8] = (id[8] & 0x3f) | 0x80 // Variant 10
	return id.String()
}

// writeMappingFile persists the id mapping as pretty-printed JSON.
func writeMappingFile(path string, mappings []IDMapping) error {
	data, err := json.MarshalIndent(mappings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal mapping file: %w", err)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	return nil
}
