// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package store

import (
	"context"
	"fmt"

	"github.com/tomtom215/cinetrace/internal/config"
	"github.com/tomtom215/cinetrace/internal/logging"
)

// New builds the record store selected by configuration, optionally wrapped
// with the circuit breaker.
func New(ctx context.Context, cfg *config.StoreConfig) (Store, error) {
	var backend Store

	switch cfg.Backend {
	case "memory":
		backend = NewMemoryStore()
	case "badger":
		db, openErr := OpenBadger(cfg.BadgerPath)
		if openErr != nil {
			return nil, openErr
		}
		backend = NewBadgerStore(db)
	case "mongo":
		client, connErr := ConnectMongo(ctx, cfg.MongoURI)
		if connErr != nil {
			return nil, connErr
		}
		backend = NewMongoStore(client, cfg.MongoDatabase)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}

	logging.Info().Str("backend", cfg.Backend).Msg("Record store initialized")

	if cfg.BreakerEnabled {
		backend = NewBreakerStore(backend, BreakerConfig{
			MaxFailures: cfg.BreakerMaxFailures,
			Timeout:     cfg.BreakerTimeout,
		})
	}

	return backend, nil
}
