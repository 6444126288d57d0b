// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/cinetrace/internal/metrics"
	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/store"
)

// defaultMaxResolveAttempts bounds the create-or-find loop. One retry
// suffices against a single concurrent racer; three attempts also cover a
// first-event that must create the tracking block before the session.
const defaultMaxResolveAttempts = 3

// Resolver maps a (userId, sessionId) pair to a position in the user's
// session history, creating the session entry on first sight.
//
// Session creation is the one place that legitimately needs a read to decide
// (array position), so it is structured as a conditional-create-then-reread
// loop: the store's append-if-absent guarantees at most one entry per
// sessionId no matter how many requests race, and losers resolve to the
// winner's entry on the next read.
type Resolver struct {
	store       store.Store
	maxAttempts int
	now         func() time.Time
}

// NewResolver creates a session resolver over the given store.
func NewResolver(s store.Store, maxAttempts int) *Resolver {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxResolveAttempts
	}
	return &Resolver{store: s, maxAttempts: maxAttempts, now: time.Now}
}

// Resolve returns the index of sessionID within the user's session sequence,
// creating the session (with the given device snapshot) if absent.
//
// Returns UserNotFoundError if the user does not exist (no state is created)
// and SessionResolutionError if the bounded retry budget is exhausted.
func (r *Resolver) Resolve(ctx context.Context, userID, sessionID string, device models.DeviceSnapshot) (int, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.TrackingResolveRetries.Inc()
		}

		rec, err := r.store.Get(ctx, userID)
		if errors.Is(err, store.ErrNotFound) {
			return 0, &UserNotFoundError{UserID: userID}
		}
		if err != nil {
			lastErr = err
			continue
		}

		// Lazy init: the tracking block is created by the first tracked
		// event, as an atomic create-if-absent so two concurrent
		// first-events cannot overwrite each other's structure.
		if rec.TrackingData == nil {
			if err := r.store.AtomicApply(ctx, userID, []store.Op{store.EnsureTracking(r.now())}); err != nil &&
				!errors.Is(err, store.ErrConflict) {
				lastErr = err
			}
			continue
		}

		if idx := rec.TrackingData.SessionIndex(sessionID); idx >= 0 {
			return idx, nil
		}

		sess := models.SessionRecord{
			SessionID:    sessionID,
			StartedAt:    r.now(),
			Device:       device,
			PageViews:    []models.PageView{},
			Interactions: []models.Interaction{},
		}

		err = r.store.AtomicApply(ctx, userID, []store.Op{store.InsertSession(sess)})
		switch {
		case err == nil:
			metrics.TrackingSessionsCreated.Inc()
		case errors.Is(err, store.ErrConflict):
			// Lost the create race; the next read resolves to the
			// winner's entry.
		default:
			lastErr = err
		}
	}

	return 0, &SessionResolutionError{
		UserID:    userID,
		SessionID: sessionID,
		Attempts:  r.maxAttempts,
		Err:       lastErr,
	}
}
