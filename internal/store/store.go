// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

// Package store implements the record store adapter: per-user documents keyed
// by user ID, mutated only through atomic operations.
//
// The tracking core never overwrites a document wholesale. Every mutation is
// expressed as a list of sub-operations (relative increment, positional
// append, conditional append, timestamp set) that the backend applies
// atomically and evaluates itself - membership checks and session lookups
// happen inside the backend's critical section, never against a caller's
// in-memory copy. Two concurrent op lists for the same user therefore
// commute instead of losing writes.
//
// Three backends implement the same contract: an in-process memory store, an
// embedded BadgerDB store, and MongoDB (where the op vocabulary maps directly
// onto $inc / $push / $addToSet update operators).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/tomtom215/cinetrace/internal/models"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound indicates the user record does not exist.
	ErrNotFound = errors.New("user record not found")

	// ErrConflict indicates an atomic update's precondition did not hold
	// (e.g. the target session does not exist, or a conditional session
	// insert found the session already present). Callers re-resolve and
	// retry; the document was not modified.
	ErrConflict = errors.New("atomic update precondition failed")

	// ErrUserExists indicates a user provisioning attempt for an ID that is
	// already present.
	ErrUserExists = errors.New("user already exists")

	// ErrUnavailable indicates the backend is temporarily unreachable or
	// shedding load (circuit breaker open). Safe to retry with backoff.
	ErrUnavailable = errors.New("record store unavailable")
)

// Kind identifies an atomic sub-operation.
type Kind string

// The closed set of sub-operation kinds.
const (
	// KindIncrement adds Delta to a numeric counter. Relative, never
	// read-modify-write.
	KindIncrement Kind = "increment"

	// KindAppend appends Value to the session-scoped list addressed by Path
	// and SessionID. Fails with ErrConflict if the session is absent.
	KindAppend Kind = "append"

	// KindConditionalAppend appends Value to a set-like list only if not
	// already present. Duplicate inserts are a no-op, not an error.
	KindConditionalAppend Kind = "conditionalAppend"

	// KindSet overwrites a timestamp field.
	KindSet Kind = "set"

	// KindInsertSession appends a new SessionRecord if no session with the
	// same sessionId exists. Fails with ErrConflict if one does.
	KindInsertSession Kind = "insertSession"

	// KindEnsureTracking creates the tracking block if absent. Idempotent.
	KindEnsureTracking Kind = "ensureTracking"
)

// Path addresses a field inside the user document. The vocabulary is closed:
// backends interpret exactly these paths, and for MongoDB they double as the
// literal update-operator field paths ("$" is the positional operator
// resolved by the session filter).
type Path string

// Document field paths.
const (
	PathTracking            Path = "trackingData"
	PathSessions            Path = "trackingData.sessions"
	PathLastUpdated         Path = "trackingData.lastUpdated"
	PathLastActivity        Path = "trackingData.behaviorData.lastActivity"
	PathTotalPageViews      Path = "trackingData.behaviorData.totalPageViews"
	PathTotalInteractions   Path = "trackingData.behaviorData.totalInteractions"
	PathMoviesAdded         Path = "trackingData.behaviorData.moviesAdded"
	PathMoviesRated         Path = "trackingData.behaviorData.moviesRated"
	PathMostVisitedPages    Path = "trackingData.behaviorData.mostVisitedPages"
	PathSearchQueries       Path = "trackingData.behaviorData.searchQueries"
	PathSessionPageViews    Path = "trackingData.sessions.$.pageViews"
	PathSessionInteractions Path = "trackingData.sessions.$.interactions"
)

// Op is one atomic sub-operation. Ops within one AtomicApply call are
// independent and order-insensitive so that concurrent applications commute.
type Op struct {
	Kind      Kind
	Path      Path
	SessionID string // positional target for KindAppend; ignored otherwise
	Delta     int64  // KindIncrement only
	Value     interface{}
}

// Increment returns a relative counter increment op.
func Increment(path Path, delta int64) Op {
	return Op{Kind: KindIncrement, Path: path, Delta: delta}
}

// Append returns a positional append op targeting a session-scoped list.
func Append(path Path, sessionID string, value interface{}) Op {
	return Op{Kind: KindAppend, Path: path, SessionID: sessionID, Value: value}
}

// ConditionalAppend returns a store-evaluated append-if-absent op for a
// set-like string list.
func ConditionalAppend(path Path, value string) Op {
	return Op{Kind: KindConditionalAppend, Path: path, Value: value}
}

// Set returns a timestamp overwrite op.
func Set(path Path, value time.Time) Op {
	return Op{Kind: KindSet, Path: path, Value: value}
}

// InsertSession returns an append-if-absent op for a new session entry.
func InsertSession(sess models.SessionRecord) Op {
	return Op{Kind: KindInsertSession, Path: PathSessions, SessionID: sess.SessionID, Value: sess}
}

// EnsureTracking returns a create-if-absent op for the tracking block.
func EnsureTracking(now time.Time) Op {
	return Op{Kind: KindEnsureTracking, Path: PathTracking, Value: now}
}

// Store is the record store adapter consumed by the tracking core.
type Store interface {
	// Get reads the user record by ID. Returns ErrNotFound if absent.
	Get(ctx context.Context, userID string) (*models.UserRecord, error)

	// AtomicApply applies all ops as one atomic mutation of the user's
	// document. Either every op applies or none does. Returns ErrConflict
	// when a precondition fails and ErrNotFound when the user is absent.
	AtomicApply(ctx context.Context, userID string, ops []Op) error

	// CreateUser provisions a new user record. Returns ErrUserExists if the
	// ID is taken. Used by the legacy migration and by tests; the tracking
	// core itself never creates users.
	CreateUser(ctx context.Context, rec *models.UserRecord) error

	// Close releases backend resources.
	Close() error
}
