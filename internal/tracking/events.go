// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package tracking

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/validation"
)

// EventType is the closed tagged variant an envelope's type string parses
// into. Unknown is a first-class variant, not a fallthrough error: clients
// may ship new event types before the server learns to aggregate them.
type EventType string

// Event variants.
const (
	EventPageView    EventType = "pageview"
	EventInteraction EventType = "interaction"
	EventPageExit    EventType = "pageExit"
	EventUnknown     EventType = "unknown"
)

// Envelope is the raw event submitted per tracked action, before validation.
type Envelope struct {
	UserID    string          `json:"userId" validate:"required"`
	SessionID string          `json:"sessionId" validate:"required"`
	Type      string          `json:"type" validate:"required"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Event is a validated, typed event ready for aggregation. Exactly one of
// PageView/Interaction is set, matching Type.
type Event struct {
	UserID    string
	SessionID string
	Type      EventType

	// RawType preserves the client's original type string for unknown
	// variants (logged, never aggregated).
	RawType string

	PageView    *models.PageView
	Interaction *models.Interaction

	ReceivedAt time.Time
}

// ParseEnvelope validates and normalizes a raw envelope into a typed event.
// Missing userId, sessionId, or type fails with ValidationError; an
// unrecognized non-empty type parses to the Unknown variant and is accepted.
func ParseEnvelope(env *Envelope, now time.Time) (*Event, error) {
	if verr := validation.ValidateStruct(env); verr != nil {
		first := verr.Errors()[0]
		return nil, &ValidationError{Field: first.Field(), Reason: first.Error()}
	}

	ev := &Event{
		UserID:     env.UserID,
		SessionID:  env.SessionID,
		RawType:    env.Type,
		ReceivedAt: now,
	}

	switch env.Type {
	case string(EventPageView):
		ev.Type = EventPageView
		var pv models.PageView
		if err := decodePayload(env.Data, &pv); err != nil {
			return nil, err
		}
		if pv.URL == "" {
			return nil, &ValidationError{Field: "data.url", Reason: "url is required for pageview events"}
		}
		if pv.Timestamp.IsZero() {
			pv.Timestamp = now
		}
		ev.PageView = &pv

	case string(EventInteraction):
		ev.Type = EventInteraction
		var in models.Interaction
		if err := decodePayload(env.Data, &in); err != nil {
			return nil, err
		}
		if in.Timestamp.IsZero() {
			in.Timestamp = now
		}
		ev.Interaction = &in

	case string(EventPageExit):
		ev.Type = EventPageExit

	default:
		ev.Type = EventUnknown
	}

	return ev, nil
}

func decodePayload(data json.RawMessage, dst interface{}) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return &ValidationError{Field: "data", Reason: "payload is not valid JSON for this event type"}
	}
	return nil
}
