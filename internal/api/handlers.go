// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/cinetrace/internal/logging"
	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/store"
	"github.com/tomtom215/cinetrace/internal/tracking"
)

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	tracker   *tracking.Tracker
	store     store.Store
	startedAt time.Time
}

// NewHandler creates the handler set.
func NewHandler(tracker *tracking.Tracker, s store.Store) *Handler {
	return &Handler{
		tracker:   tracker,
		store:     s,
		startedAt: time.Now(),
	}
}

// Track ingests one tracking event.
//
// Responses:
//   - 202: event accepted (including unknown types, which aggregate nothing)
//   - 400: malformed envelope, no state change
//   - 401: user identity did not resolve - client should re-authenticate
//   - 503: transient failure - client should retry with backoff (retries are
//     safe; sub-operations are designed for at-least-once delivery)
//
// The mutated record is deliberately not returned.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	var env tracking.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR",
			"Request body is not valid JSON", nil)
		return
	}

	// In jwt mode the token subject must match the userId the event claims.
	if subject := SubjectFromContext(r.Context()); subject != "" && subject != env.UserID {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED",
			"Token subject does not match userId", nil)
		return
	}

	device := models.DeviceSnapshot{
		UserAgent: r.UserAgent(),
		Platform:  r.Header.Get("Sec-CH-UA-Platform"),
		Language:  r.Header.Get("Accept-Language"),
		RemoteIP:  r.RemoteAddr,
	}

	if err := h.tracker.Track(r.Context(), &env, device); err != nil {
		h.respondTrackError(w, r, err)
		return
	}

	respondSuccess(w, http.StatusAccepted, models.TrackAccepted{Accepted: true})
}

// respondTrackError maps the tracking error taxonomy onto HTTP responses.
func (h *Handler) respondTrackError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *tracking.ValidationError
		notFoundErr   *tracking.UserNotFoundError
		resolveErr    *tracking.SessionResolutionError
		aggErr        *tracking.AggregationError
	)

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", validationErr.Error(), nil)

	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED",
			"User identity did not resolve, re-authenticate and retry", nil)

	case errors.As(err, &resolveErr), errors.As(err, &aggErr), errors.Is(err, store.ErrUnavailable):
		w.Header().Set("Retry-After", "1")
		respondError(w, http.StatusServiceUnavailable, "AGGREGATION_ERROR",
			"Transient aggregation failure, retry with backoff", err)

	default:
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("Unexpected tracking failure")
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Internal server error", err)
	}
}

// UserTracking returns the stored tracking block for a user. Used by the
// catalog UI to render history; not consumed by the ingestion path.
func (h *Handler) UserTracking(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "userId is required", nil)
		return
	}

	if subject := SubjectFromContext(r.Context()); subject != "" && subject != userID {
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED",
			"Token subject does not match userId", nil)
		return
	}

	data, err := h.tracker.UserTracking(r.Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "User not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "STORE_ERROR",
			"Record store unavailable", err)
		return
	}

	respondSuccess(w, http.StatusOK, data)
}

// Health reports overall service health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// HealthLive is the liveness probe: the process is up and serving.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, http.StatusOK, map[string]string{"status": "alive"})
}

// HealthReady is the readiness probe: the record store answers reads.
// A Get that reports not-found still proves the store round-trip works.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	_, err := h.store.Get(r.Context(), "readiness-probe")
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY",
			"Record store is not reachable", err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"status": "ready"})
}
