// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package legacy handles the flat-file JSON user database that predates the
// document store: repairing corrupt files in place and migrating their
// records into the store with stable identifier remapping.
package legacy

import "time"

// User is one record in the legacy flat-file array. The legacy system stored
// every user in a single JSON array file and identified users by a numeric
// id, sometimes serialized as a string.
type User struct {
	ID        interface{} `json:"id"`
	Username  string      `json:"username"`
	Email     string      `json:"email"`
	CreatedAt time.Time   `json:"createdAt"`
}

// IDMapping records the legacy id to store id remapping produced by a
// migration run. Dependent per-user data (watchlists, ratings exports) is
// migrated against this file.
type IDMapping struct {
	LegacyID string `json:"legacyId"`
	NewID    string `json:"newId"`
	Username string `json:"username"`
}
