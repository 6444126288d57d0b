// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinetrace/internal/models"
)

// MemoryStore is an in-process Store. A single mutex serializes mutations,
// which provides the atomicity the op contract requires; documents returned
// by Get are deep copies so callers can never mutate shared state.
//
// Suitable for development and tests. No persistence.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*models.UserRecord
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*models.UserRecord)}
}

// Get returns a deep copy of the user record.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec)
}

// AtomicApply applies ops to a private copy under the lock and publishes the
// copy only on full success, so a failed op list leaves the document
// untouched.
func (s *MemoryStore) AtomicApply(ctx context.Context, userID string, ops []Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[userID]
	if !ok {
		return ErrNotFound
	}

	next, err := cloneRecord(rec)
	if err != nil {
		return err
	}
	if err := applyOps(next, ops); err != nil {
		return err
	}

	s.records[userID] = next
	return nil
}

// CreateUser provisions a new user record.
func (s *MemoryStore) CreateUser(ctx context.Context, rec *models.UserRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("create user: empty user ID")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return ErrUserExists
	}

	stored, err := cloneRecord(rec)
	if err != nil {
		return err
	}
	s.records[rec.ID] = stored
	return nil
}

// Close is a no-op for the memory backend.
func (s *MemoryStore) Close() error { return nil }

// cloneRecord deep-copies a record via JSON round-trip. The document is small
// and the copy keeps the backend race-free without field-by-field copy code.
func cloneRecord(rec *models.UserRecord) (*models.UserRecord, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("clone record: %w", err)
	}
	var out models.UserRecord
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone record: %w", err)
	}
	return &out, nil
}
