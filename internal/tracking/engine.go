// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package tracking

import (
	"context"
	"time"

	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/store"
)

// Engine translates one validated event into a single atomic mutation of the
// user's record. The sub-operations are independent and order-insensitive so
// two concurrent mutations commute: counters move by store-side relative
// increments, set membership is store-evaluated, and session lists take
// positional appends addressed by sessionId.
//
// The classic load-mutate-store race (two requests read counter=5, both write
// 6) is impossible here because the engine never writes an absolute counter
// value or a whole document.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// NewEngine creates an aggregation engine over the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// Apply folds one event into the user's record. The session referenced by
// the event must already be resolved; if the store reports the precondition
// no longer holds, the raw store.ErrConflict is returned so the caller can
// re-resolve and retry.
func (e *Engine) Apply(ctx context.Context, ev *Event) error {
	return e.store.AtomicApply(ctx, ev.UserID, e.buildOps(ev))
}

// buildOps assembles the op list for one event. Every event refreshes both
// activity timestamps as part of the same atomic operation.
func (e *Engine) buildOps(ev *Event) []store.Op {
	now := e.now()
	ops := []store.Op{
		store.Set(store.PathLastUpdated, now),
		store.Set(store.PathLastActivity, now),
	}

	switch ev.Type {
	case EventPageView:
		pv := *ev.PageView
		ops = append(ops,
			store.Append(store.PathSessionPageViews, ev.SessionID, pv),
			store.Increment(store.PathTotalPageViews, 1),
			store.ConditionalAppend(store.PathMostVisitedPages, pv.URL),
		)

	case EventInteraction:
		in := *ev.Interaction
		ops = append(ops,
			store.Append(store.PathSessionInteractions, ev.SessionID, in),
			store.Increment(store.PathTotalInteractions, 1),
		)
		switch in.Type {
		case models.InteractionSearch:
			if in.Query != "" {
				ops = append(ops, store.ConditionalAppend(store.PathSearchQueries, in.Query))
			}
		case models.InteractionMovieAdd:
			ops = append(ops, store.Increment(store.PathMoviesAdded, 1))
		case models.InteractionRating:
			ops = append(ops, store.Increment(store.PathMoviesRated, 1))
		}

	case EventPageExit:
		// Timestamp refresh only. Session-duration computation from
		// sessionStart/sessionEnd is a planned extension; the data model
		// already carries StartedAt for it.
	}

	return ops
}
