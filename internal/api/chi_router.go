// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/cinetrace/internal/middleware"
)

// Router wires handlers and middleware into the HTTP routing table.
type Router struct {
	handler *Handler
	chiMw   *ChiMiddleware
	auth    *AuthMiddleware
}

// NewRouter creates a router from its parts.
func NewRouter(handler *Handler, chiMw *ChiMiddleware, auth *AuthMiddleware) *Router {
	return &Router{
		handler: handler,
		chiMw:   chiMw,
		auth:    auth,
	}
}

// Setup configures all HTTP routes using the Chi router.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chiMiddleware(middleware.RequestID)) // X-Request-ID with logging context
	r.Use(chimiddleware.RealIP)                // Extract real IP from X-Forwarded-For
	r.Use(chimiddleware.Recoverer)             // Recover from panics
	r.Use(router.chiMw.CORS())                 // CORS must be global to handle OPTIONS preflight

	// Health endpoints: no auth, no rate limit, so orchestrators can probe
	// freely.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	// Ingestion and record endpoints.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMw.RateLimit())
		r.Use(chiMiddleware(middleware.PrometheusMetrics))
		r.Use(chiMiddleware(router.auth.Authenticate))

		r.Post("/track", router.handler.Track)
		r.Get("/users/{userId}/tracking", router.handler.UserTracking)
	})

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
