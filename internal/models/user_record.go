// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package models

import "time"

// UserRecord is the single per-user document that all tracking writes fold
// into. The tracking fields are owned exclusively by the aggregation engine;
// user identity fields are provisioned externally (auth service or the legacy
// migration) and never mutated here.
//
// TrackingData is nil until the first tracked event for the user arrives.
// The tracking block is then created by an atomic create-if-absent operation
// so that two concurrent first-events cannot overwrite each other's
// initialization.
type UserRecord struct {
	ID           string        `json:"id" bson:"_id"`
	Username     string        `json:"username,omitempty" bson:"username,omitempty"`
	Email        string        `json:"email,omitempty" bson:"email,omitempty"`
	CreatedAt    time.Time     `json:"createdAt" bson:"createdAt"`
	TrackingData *TrackingData `json:"trackingData,omitempty" bson:"trackingData,omitempty"`
}

// TrackingData groups the per-user behavioral telemetry: the ordered session
// history plus running aggregate counters. Sessions are append-only and keep
// first-seen order; they are never deleted by the engine (pruning/export is
// an external concern).
type TrackingData struct {
	Sessions     []SessionRecord `json:"sessions" bson:"sessions"`
	BehaviorData BehaviorData    `json:"behaviorData" bson:"behaviorData"`
	LastUpdated  time.Time       `json:"lastUpdated" bson:"lastUpdated"`
}

// BehaviorData holds the running aggregate counters and small deduplicated
// sets. Counters are only ever advanced by store-side relative increments;
// the sets only by store-side conditional appends. No in-memory copy of this
// struct is ever written back wholesale.
type BehaviorData struct {
	TotalPageViews    int64     `json:"totalPageViews" bson:"totalPageViews"`
	TotalInteractions int64     `json:"totalInteractions" bson:"totalInteractions"`
	MoviesAdded       int64     `json:"moviesAdded" bson:"moviesAdded"`
	MoviesRated       int64     `json:"moviesRated" bson:"moviesRated"`
	MostVisitedPages  []string  `json:"mostVisitedPages" bson:"mostVisitedPages"`
	SearchQueries     []string  `json:"searchQueries" bson:"searchQueries"`
	LastActivity      time.Time `json:"lastActivity" bson:"lastActivity"`
}

// SessionRecord is one client-issued session: a bounded sequence of page
// views and interactions grouped under a sessionId that is unique within the
// user (not globally). The device snapshot is captured once at session
// creation and immutable thereafter.
type SessionRecord struct {
	SessionID    string         `json:"sessionId" bson:"sessionId"`
	StartedAt    time.Time      `json:"startedAt" bson:"startedAt"`
	Device       DeviceSnapshot `json:"device" bson:"device"`
	PageViews    []PageView     `json:"pageViews" bson:"pageViews"`
	Interactions []Interaction  `json:"interactions" bson:"interactions"`
}

// DeviceSnapshot captures the client context visible at session creation.
type DeviceSnapshot struct {
	UserAgent string `json:"userAgent,omitempty" bson:"userAgent,omitempty"`
	Platform  string `json:"platform,omitempty" bson:"platform,omitempty"`
	Language  string `json:"language,omitempty" bson:"language,omitempty"`
	RemoteIP  string `json:"remoteIp,omitempty" bson:"remoteIp,omitempty"`
}

// PageView is one page-view payload as submitted by the client. Payload
// fields are stored verbatim; the media catalog that produced them is an
// external collaborator.
type PageView struct {
	URL       string    `json:"url" bson:"url"`
	Title     string    `json:"title,omitempty" bson:"title,omitempty"`
	Referrer  string    `json:"referrer,omitempty" bson:"referrer,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Interaction is one UI interaction payload. Type drives the aggregation
// side effects: "search" records the query, "movie_add" and "rating" advance
// the corresponding counters.
type Interaction struct {
	Type      string    `json:"type" bson:"type"`
	Element   string    `json:"element,omitempty" bson:"element,omitempty"`
	MovieID   string    `json:"movieId,omitempty" bson:"movieId,omitempty"`
	Query     string    `json:"query,omitempty" bson:"query,omitempty"`
	Value     float64   `json:"value,omitempty" bson:"value,omitempty"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Interaction subtypes with aggregation side effects.
const (
	InteractionSearch   = "search"
	InteractionMovieAdd = "movie_add"
	InteractionRating   = "rating"
)

// SessionIndex returns the position of the session with the given ID in the
// session history, or -1 if absent. Sessions are append-only, so a returned
// index stays valid for the lifetime of the record.
func (t *TrackingData) SessionIndex(sessionID string) int {
	for i := range t.Sessions {
		if t.Sessions[i].SessionID == sessionID {
			return i
		}
	}
	return -1
}
