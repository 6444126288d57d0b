// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/cinetrace/internal/logging"
	"github.com/tomtom215/cinetrace/internal/metrics"
	"github.com/tomtom215/cinetrace/internal/models"
)

// BreakerStore decorates a Store with a circuit breaker so a failing backend
// sheds load instead of stacking up timed-out requests. Logical outcomes
// (ErrNotFound, ErrConflict, ErrUserExists) are part of normal operation and
// never trip the breaker; only transport-level failures count.
type BreakerStore struct {
	inner Store
	cb    *gobreaker.CircuitBreaker[interface{}]
}

// BreakerConfig tunes the circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the consecutive-failure count that opens the breaker.
	MaxFailures uint32

	// Timeout is how long the breaker stays open before probing half-open.
	Timeout time.Duration
}

// NewBreakerStore wraps a backend with circuit breaker protection.
// Uses gobreaker v2 generic API with interface{} type parameter for flexibility.
func NewBreakerStore(inner Store, cfg BreakerConfig) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        "record-store",
		MaxRequests: 1,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrConflict) ||
				errors.Is(err, ErrUserExists)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetStoreBreakerState(to.String())
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Record store circuit breaker state change")
		},
	}

	return &BreakerStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

// Get reads through the breaker.
func (s *BreakerStore) Get(ctx context.Context, userID string) (*models.UserRecord, error) {
	res, err := s.cb.Execute(func() (interface{}, error) {
		return s.inner.Get(ctx, userID)
	})
	if err != nil {
		return nil, breakerErr(err)
	}
	rec, ok := res.(*models.UserRecord)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from record store", res)
	}
	return rec, nil
}

// AtomicApply writes through the breaker.
func (s *BreakerStore) AtomicApply(ctx context.Context, userID string, ops []Op) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.AtomicApply(ctx, userID, ops)
	})
	return breakerErr(err)
}

// CreateUser writes through the breaker.
func (s *BreakerStore) CreateUser(ctx context.Context, rec *models.UserRecord) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.inner.CreateUser(ctx, rec)
	})
	return breakerErr(err)
}

// Close closes the underlying backend.
func (s *BreakerStore) Close() error {
	return s.inner.Close()
}

// State returns the current breaker state for health reporting.
func (s *BreakerStore) State() string {
	return s.cb.State().String()
}

// breakerErr maps breaker rejections to the adapter's transient error.
func breakerErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: circuit breaker rejected request", ErrUnavailable)
	}
	return err
}
