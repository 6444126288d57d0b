// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package tracking

import "fmt"

// ValidationError indicates a malformed event envelope. Recoverable: the
// event is rejected and no state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event envelope: %s: %s", e.Field, e.Reason)
}

// UserNotFoundError indicates the event references a user identity that does
// not resolve. Surfaced to the caller as auth-required; no state is created.
type UserNotFoundError struct {
	UserID string
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user %q not found", e.UserID)
}

// SessionResolutionError indicates the session create race exceeded the retry
// budget. Transient: safe to retry.
type SessionResolutionError struct {
	UserID    string
	SessionID string
	Attempts  int
	Err       error
}

func (e *SessionResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to resolve session %q for user %q after %d attempts: %v",
			e.SessionID, e.UserID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed to resolve session %q for user %q after %d attempts",
		e.SessionID, e.UserID, e.Attempts)
}

func (e *SessionResolutionError) Unwrap() error { return e.Err }

// AggregationError indicates the atomic update was rejected by the store even
// after a fresh session resolution. Transient: safe to retry, since all
// sub-operations are designed for at-least-once delivery (counters accept a
// bounded over-count under retried failures, matching the client's
// at-least-once delivery).
type AggregationError struct {
	UserID    string
	SessionID string
	Err       error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("failed to aggregate event for user %q session %q: %v",
		e.UserID, e.SessionID, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
