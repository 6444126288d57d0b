// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cinetrace/internal/models"
)

// Key prefix for user documents in BadgerDB.
const userKeyPrefix = "user:"

// BadgerStore is a Store backed by an embedded BadgerDB. Each user record is
// one JSON document; AtomicApply decodes, applies the op list, and re-encodes
// inside a single read-write transaction, so ops are evaluated by the store
// with full isolation. Badger's SSI detects concurrent writers to the same
// key and fails the later commit, which surfaces as ErrConflict and is
// retried by the caller.
//
// Suitable for single-node production with persistence across restarts.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open BadgerDB handle.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadger opens (or creates) a BadgerDB at the given path with logging
// routed away from badger's default logger.
func OpenBadger(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return db, nil
}

func userKey(userID string) []byte {
	return []byte(userKeyPrefix + userID)
}

// Get retrieves the user record by ID.
func (s *BadgerStore) Get(ctx context.Context, userID string) (*models.UserRecord, error) {
	var rec models.UserRecord

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(userID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AtomicApply evaluates the op list inside one read-write transaction.
func (s *BadgerStore) AtomicApply(ctx context.Context, userID string, ops []Op) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := userKey(userID)

		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get user: %w", err)
		}

		var rec models.UserRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return fmt.Errorf("decode user: %w", err)
		}

		if err := applyOps(&rec, ops); err != nil {
			return err
		}

		data, err := json.Marshal(&rec)
		if err != nil {
			return fmt.Errorf("encode user: %w", err)
		}
		return txn.Set(key, data)
	})

	// A concurrent writer to the same document makes the later commit fail;
	// map it to the adapter's conflict error so the caller retries.
	if errors.Is(err, badger.ErrConflict) {
		return ErrConflict
	}
	return err
}

// CreateUser provisions a new user record, failing if the ID is taken.
func (s *BadgerStore) CreateUser(ctx context.Context, rec *models.UserRecord) error {
	if rec.ID == "" {
		return fmt.Errorf("create user: empty user ID")
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		key := userKey(rec.ID)
		_, err := txn.Get(key)
		if err == nil {
			return ErrUserExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("check user: %w", err)
		}
		return txn.Set(key, data)
	})

	if errors.Is(err, badger.ErrConflict) {
		// Two concurrent creates for the same ID; the other one won.
		return ErrUserExists
	}
	return err
}

// Close closes the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
