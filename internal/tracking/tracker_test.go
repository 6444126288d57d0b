// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package tracking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/store"
)

func newTestTracker(t *testing.T, userID string) (*Tracker, *store.MemoryStore) {
	t.Helper()
	s := newStoreWithUser(t, userID)
	return New(s, Config{MaxResolveAttempts: 5}), s
}

func pageViewEnvelope(userID, sessionID, url string) *Envelope {
	data, _ := json.Marshal(map[string]string{"url": url})
	return &Envelope{UserID: userID, SessionID: sessionID, Type: "pageview", Data: data}
}

func interactionEnvelope(userID, sessionID string, payload map[string]interface{}) *Envelope {
	data, _ := json.Marshal(payload)
	return &Envelope{UserID: userID, SessionID: sessionID, Type: "interaction", Data: data}
}

// =============================================================================
// Single-Event Aggregation Tests
// =============================================================================

func TestTracker_PageViewAggregation(t *testing.T) {
	tracker, s := newTestTracker(t, "user-1")
	ctx := context.Background()

	err := tracker.Track(ctx, pageViewEnvelope("user-1", "sess-1", "/movies/42"), testDevice)
	if err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	rec, _ := s.Get(ctx, "user-1")
	td := rec.TrackingData
	if td == nil {
		t.Fatal("tracking block not created")
	}
	if got := td.BehaviorData.TotalPageViews; got != 1 {
		t.Errorf("TotalPageViews = %d, want 1", got)
	}
	if got := len(td.Sessions); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
	if got := len(td.Sessions[0].PageViews); got != 1 {
		t.Errorf("session PageViews = %d, want 1", got)
	}
	if got := td.BehaviorData.MostVisitedPages; len(got) != 1 || got[0] != "/movies/42" {
		t.Errorf("MostVisitedPages = %v, want [/movies/42]", got)
	}
	if td.LastUpdated.IsZero() || td.BehaviorData.LastActivity.IsZero() {
		t.Error("activity timestamps were not set")
	}
}

func TestTracker_InteractionSubtypes(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		check   func(t *testing.T, bd models.BehaviorData)
	}{
		{
			name:    "search records query",
			payload: map[string]interface{}{"type": "search", "query": "heat 1995"},
			check: func(t *testing.T, bd models.BehaviorData) {
				if len(bd.SearchQueries) != 1 || bd.SearchQueries[0] != "heat 1995" {
					t.Errorf("SearchQueries = %v, want [heat 1995]", bd.SearchQueries)
				}
			},
		},
		{
			name:    "search with empty query records nothing",
			payload: map[string]interface{}{"type": "search", "query": ""},
			check: func(t *testing.T, bd models.BehaviorData) {
				if len(bd.SearchQueries) != 0 {
					t.Errorf("SearchQueries = %v, want empty", bd.SearchQueries)
				}
			},
		},
		{
			name:    "movie_add increments counter",
			payload: map[string]interface{}{"type": "movie_add", "movieId": "tt0113277"},
			check: func(t *testing.T, bd models.BehaviorData) {
				if bd.MoviesAdded != 1 {
					t.Errorf("MoviesAdded = %d, want 1", bd.MoviesAdded)
				}
			},
		},
		{
			name:    "rating increments counter",
			payload: map[string]interface{}{"type": "rating", "movieId": "tt0113277", "value": 9},
			check: func(t *testing.T, bd models.BehaviorData) {
				if bd.MoviesRated != 1 {
					t.Errorf("MoviesRated = %d, want 1", bd.MoviesRated)
				}
			},
		},
		{
			name:    "plain click only counts the interaction",
			payload: map[string]interface{}{"type": "click", "element": "poster"},
			check: func(t *testing.T, bd models.BehaviorData) {
				if bd.MoviesAdded != 0 || bd.MoviesRated != 0 || len(bd.SearchQueries) != 0 {
					t.Errorf("unexpected subtype aggregation: %+v", bd)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker, s := newTestTracker(t, "user-1")
			ctx := context.Background()

			env := interactionEnvelope("user-1", "sess-1", tt.payload)
			if err := tracker.Track(ctx, env, testDevice); err != nil {
				t.Fatalf("Track() error = %v", err)
			}

			rec, _ := s.Get(ctx, "user-1")
			bd := rec.TrackingData.BehaviorData
			if bd.TotalInteractions != 1 {
				t.Errorf("TotalInteractions = %d, want 1", bd.TotalInteractions)
			}
			if got := len(rec.TrackingData.Sessions[0].Interactions); got != 1 {
				t.Errorf("session Interactions = %d, want 1", got)
			}
			tt.check(t, bd)
		})
	}
}

func TestTracker_UnknownTypeIsAcceptedNoOp(t *testing.T) {
	tracker, s := newTestTracker(t, "user-1")
	ctx := context.Background()

	env := &Envelope{UserID: "user-1", SessionID: "sess-1", Type: "scrollDepth"}
	if err := tracker.Track(ctx, env, testDevice); err != nil {
		t.Fatalf("Track() unknown type error = %v, want accepted", err)
	}

	// No session, no tracking block: unknown events aggregate nothing.
	rec, _ := s.Get(ctx, "user-1")
	if rec.TrackingData != nil {
		t.Errorf("TrackingData = %+v, want nil after unknown-type event", rec.TrackingData)
	}
}

func TestTracker_PageExitRefreshesTimestampsOnly(t *testing.T) {
	tracker, s := newTestTracker(t, "user-1")
	ctx := context.Background()

	if err := tracker.Track(ctx, pageViewEnvelope("user-1", "sess-1", "/home"), testDevice); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	before, _ := s.Get(ctx, "user-1")

	env := &Envelope{UserID: "user-1", SessionID: "sess-1", Type: "pageExit"}
	if err := tracker.Track(ctx, env, testDevice); err != nil {
		t.Fatalf("Track() pageExit error = %v", err)
	}

	after, _ := s.Get(ctx, "user-1")
	if after.TrackingData.BehaviorData.TotalPageViews != before.TrackingData.BehaviorData.TotalPageViews {
		t.Error("pageExit changed counters")
	}
	if after.TrackingData.LastUpdated.Before(before.TrackingData.LastUpdated) {
		t.Error("pageExit did not refresh lastUpdated")
	}
}

func TestTracker_UnknownUserRejectedWithoutStateChange(t *testing.T) {
	tracker, s := newTestTracker(t, "user-1")
	ctx := context.Background()

	err := tracker.Track(ctx, pageViewEnvelope("ghost", "sess-1", "/home"), testDevice)
	var nferr *UserNotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("Track() error = %v, want *UserNotFoundError", err)
	}

	if _, err := s.Get(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Error("tracking for an unknown user must not create a record")
	}
}

func TestTracker_MalformedEnvelopeRejected(t *testing.T) {
	tracker, _ := newTestTracker(t, "user-1")

	env := &Envelope{UserID: "user-1", Type: "pageview"}
	err := tracker.Track(context.Background(), env, testDevice)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("Track() error = %v, want *ValidationError", err)
	}
}

// =============================================================================
// Concurrency Property Tests
// =============================================================================

func TestTracker_ConcurrentPageViewsCountExactly(t *testing.T) {
	tracker, s := newTestTracker(t, "user-1")
	ctx := context.Background()

	const n = 100
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			env := pageViewEnvelope("user-1", "sess-1", fmt.Sprintf("/movies/%d", i))
			if err := tracker.Track(ctx, env, testDevice); err != nil {
				t.Errorf("Track() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	rec, _ := s.Get(ctx, "user-1")
	td := rec.TrackingData
	if got := td.BehaviorData.TotalPageViews; got != n {
		t.Errorf("TotalPageViews = %d, want %d (lost updates)", got, n)
	}
	if got := len(td.Sessions); got != 1 {
		t.Fatalf("sessions = %d, want 1", got)
	}
	if got := len(td.Sessions[0].PageViews); got != n {
		t.Errorf("session PageViews = %d, want %d", got, n)
	}
	if got := len(td.BehaviorData.MostVisitedPages); got != n {
		t.Errorf("MostVisitedPages = %d distinct URLs, want %d", got, n)
	}
}

func TestTracker_ConcurrentDuplicateURLsDeduplicated(t *testing.T) {
	tracker, s := newTestTracker(t, "user-1")
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			env := pageViewEnvelope("user-1", "sess-1", "/movies/42")
			if err := tracker.Track(ctx, env, testDevice); err != nil {
				t.Errorf("Track() error = %v", err)
			}
		}()
	}
	wg.Wait()

	rec, _ := s.Get(ctx, "user-1")
	bd := rec.TrackingData.BehaviorData
	// The counter counts every view; the set keeps one entry per URL.
	if got := bd.TotalPageViews; got != n {
		t.Errorf("TotalPageViews = %d, want %d", got, n)
	}
	if got := len(bd.MostVisitedPages); got != 1 {
		t.Errorf("MostVisitedPages = %v, want single deduplicated entry", bd.MostVisitedPages)
	}
}

func TestTracker_ConcurrentMixedEventsAcrossSessions(t *testing.T) {
	tracker, s := newTestTracker(t, "user-1")
	ctx := context.Background()

	const perKind = 25
	var wg sync.WaitGroup

	for i := 0; i < perKind; i++ {
		wg.Add(3)
		go func(i int) {
			defer wg.Done()
			env := pageViewEnvelope("user-1", "sess-a", fmt.Sprintf("/browse/%d", i))
			if err := tracker.Track(ctx, env, testDevice); err != nil {
				t.Errorf("Track(pageview) error = %v", err)
			}
		}(i)
		go func() {
			defer wg.Done()
			env := interactionEnvelope("user-1", "sess-b", map[string]interface{}{
				"type": "movie_add", "movieId": "tt0113277",
			})
			if err := tracker.Track(ctx, env, testDevice); err != nil {
				t.Errorf("Track(movie_add) error = %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			env := interactionEnvelope("user-1", "sess-b", map[string]interface{}{
				"type": "rating", "movieId": "tt0113277", "value": 9,
			})
			if err := tracker.Track(ctx, env, testDevice); err != nil {
				t.Errorf("Track(rating) error = %v", err)
			}
		}()
	}
	wg.Wait()

	rec, _ := s.Get(ctx, "user-1")
	td := rec.TrackingData
	bd := td.BehaviorData
	if bd.TotalPageViews != perKind {
		t.Errorf("TotalPageViews = %d, want %d", bd.TotalPageViews, perKind)
	}
	if bd.TotalInteractions != 2*perKind {
		t.Errorf("TotalInteractions = %d, want %d", bd.TotalInteractions, 2*perKind)
	}
	if bd.MoviesAdded != perKind {
		t.Errorf("MoviesAdded = %d, want %d", bd.MoviesAdded, perKind)
	}
	if bd.MoviesRated != perKind {
		t.Errorf("MoviesRated = %d, want %d", bd.MoviesRated, perKind)
	}
	if got := len(td.Sessions); got != 2 {
		t.Errorf("sessions = %d, want 2", got)
	}
}

// =============================================================================
// Read Endpoint Tests
// =============================================================================

func TestTracker_UserTrackingEmptyBlockForUntrackedUser(t *testing.T) {
	tracker, _ := newTestTracker(t, "user-1")

	td, err := tracker.UserTracking(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("UserTracking() error = %v", err)
	}
	if td == nil {
		t.Fatal("UserTracking() = nil, want empty block")
	}
	if td.Sessions == nil || td.BehaviorData.MostVisitedPages == nil {
		t.Error("empty block must carry non-nil lists")
	}
	if len(td.Sessions) != 0 {
		t.Errorf("Sessions = %v, want empty", td.Sessions)
	}
}

func TestTracker_UserTrackingNotFound(t *testing.T) {
	tracker, _ := newTestTracker(t, "user-1")

	_, err := tracker.UserTracking(context.Background(), "ghost")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("UserTracking() error = %v, want store.ErrNotFound", err)
	}
}

// conflictOnceStore fails the first data-op apply with ErrConflict to exercise
// the tracker's single re-resolve-and-retry.
type conflictOnceStore struct {
	*store.MemoryStore
	mu     sync.Mutex
	failed bool
}

func (s *conflictOnceStore) AtomicApply(ctx context.Context, userID string, ops []store.Op) error {
	s.mu.Lock()
	shouldFail := false
	if !s.failed {
		for i := range ops {
			if ops[i].Kind == store.KindIncrement {
				s.failed = true
				shouldFail = true
				break
			}
		}
	}
	s.mu.Unlock()

	if shouldFail {
		return store.ErrConflict
	}
	return s.MemoryStore.AtomicApply(ctx, userID, ops)
}

func TestTracker_RetriesOnceOnConflict(t *testing.T) {
	inner := newStoreWithUser(t, "user-1")
	s := &conflictOnceStore{MemoryStore: inner}
	tracker := New(s, Config{MaxResolveAttempts: 5})
	ctx := context.Background()

	err := tracker.Track(ctx, pageViewEnvelope("user-1", "sess-1", "/movies/42"), testDevice)
	if err != nil {
		t.Fatalf("Track() error = %v, want success after conflict retry", err)
	}

	rec, _ := s.Get(ctx, "user-1")
	if got := rec.TrackingData.BehaviorData.TotalPageViews; got != 1 {
		t.Errorf("TotalPageViews = %d, want exactly 1 after retry", got)
	}
}
