// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package tracking is the ingestion-and-aggregation core: it decides how an
// incoming behavioral event mutates shared per-user state so that concurrent,
// out-of-order, and retried events never lose or double-count data.
//
// Correctness comes entirely from the record store's atomic operation
// guarantees (relative increment, conditional append, positional append); no
// in-process lock is held across a store round-trip, and invocations for the
// same user may run fully concurrently (multiple browser tabs, retried
// requests).
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/cinetrace/internal/logging"
	"github.com/tomtom215/cinetrace/internal/metrics"
	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/store"
)

// Config tunes the tracking core.
type Config struct {
	// MaxResolveAttempts bounds the session resolver's create-or-find loop.
	MaxResolveAttempts int
}

// Tracker is the ingestion facade: envelope validation, session resolution,
// and aggregation, in that order.
type Tracker struct {
	store    store.Store
	resolver *Resolver
	engine   *Engine
}

// New creates a tracker over the given record store.
func New(s store.Store, cfg Config) *Tracker {
	return &Tracker{
		store:    s,
		resolver: NewResolver(s, cfg.MaxResolveAttempts),
		engine:   NewEngine(s),
	}
}

// Track ingests one raw event envelope. The device snapshot is only consulted
// when the event creates a new session.
//
// Error taxonomy (all surfaced, never only logged):
//   - *ValidationError: malformed envelope, no state change
//   - *UserNotFoundError: identity did not resolve, no state change
//   - *SessionResolutionError: create race exceeded retry budget, retryable
//   - *AggregationError: atomic update rejected by the store, retryable
func (t *Tracker) Track(ctx context.Context, env *Envelope, device models.DeviceSnapshot) error {
	start := time.Now()

	ev, err := ParseEnvelope(env, start)
	if err != nil {
		metrics.RecordEvent("invalid", "rejected")
		return err
	}

	if ev.Type == EventUnknown {
		// Forward compatibility: accepted, aggregates nothing, creates no
		// session.
		logger := logging.Ctx(ctx)
		logger.Debug().
			Str("user_id", ev.UserID).
			Str("session_id", ev.SessionID).
			Str("event_type", ev.RawType).
			Msg("Unknown event type accepted as no-op")
		metrics.RecordEvent(string(EventUnknown), "noop")
		return nil
	}

	if _, err := t.resolver.Resolve(ctx, ev.UserID, ev.SessionID, device); err != nil {
		metrics.RecordEvent(string(ev.Type), "rejected")
		return err
	}

	err = t.engine.Apply(ctx, ev)
	if errors.Is(err, store.ErrConflict) {
		// The target document or session no longer matched preconditions.
		// Retry exactly once with a fresh session resolution.
		metrics.StoreConflictsTotal.Inc()
		if _, rerr := t.resolver.Resolve(ctx, ev.UserID, ev.SessionID, device); rerr != nil {
			metrics.RecordEvent(string(ev.Type), "failed")
			return &AggregationError{UserID: ev.UserID, SessionID: ev.SessionID, Err: rerr}
		}
		err = t.engine.Apply(ctx, ev)
	}
	if err != nil {
		metrics.RecordEvent(string(ev.Type), "failed")
		return &AggregationError{UserID: ev.UserID, SessionID: ev.SessionID, Err: err}
	}

	metrics.RecordEvent(string(ev.Type), "accepted")
	metrics.ObserveAggregation(string(ev.Type), time.Since(start))
	return nil
}

// UserTracking returns the tracking block for a user, for the operational
// read endpoint. Returns store.ErrNotFound if the user does not exist; a
// user with no tracked events yet yields an empty block.
func (t *Tracker) UserTracking(ctx context.Context, userID string) (*models.TrackingData, error) {
	rec, err := t.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec.TrackingData == nil {
		return &models.TrackingData{
			Sessions: []models.SessionRecord{},
			BehaviorData: models.BehaviorData{
				MostVisitedPages: []string{},
				SearchQueries:    []string{},
			},
		}, nil
	}
	return rec.TrackingData, nil
}
