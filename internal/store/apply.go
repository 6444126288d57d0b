// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package store

import (
	"fmt"
	"time"

	"github.com/tomtom215/cinetrace/internal/models"
)

// applyOps evaluates an op list against a decoded user document. The memory
// and badger backends call this inside their critical section (mutex or
// transaction), which is what makes membership checks and session lookups
// store-evaluated rather than caller-evaluated.
//
// The record must be a private copy: on error the caller discards it, so a
// partially applied list never becomes visible.
func applyOps(rec *models.UserRecord, ops []Op) error {
	for i := range ops {
		if err := applyOp(rec, &ops[i]); err != nil {
			return err
		}
	}
	return nil
}

func applyOp(rec *models.UserRecord, op *Op) error {
	switch op.Kind {
	case KindEnsureTracking:
		if rec.TrackingData != nil {
			return nil
		}
		now, ok := op.Value.(time.Time)
		if !ok {
			return fmt.Errorf("ensureTracking: value must be time.Time, got %T", op.Value)
		}
		rec.TrackingData = newTrackingData(now)
		return nil

	case KindInsertSession:
		if rec.TrackingData == nil {
			return ErrConflict
		}
		sess, ok := op.Value.(models.SessionRecord)
		if !ok {
			return fmt.Errorf("insertSession: value must be models.SessionRecord, got %T", op.Value)
		}
		if rec.TrackingData.SessionIndex(sess.SessionID) >= 0 {
			return ErrConflict
		}
		rec.TrackingData.Sessions = append(rec.TrackingData.Sessions, sess)
		return nil

	case KindIncrement:
		if rec.TrackingData == nil {
			return ErrConflict
		}
		bd := &rec.TrackingData.BehaviorData
		switch op.Path {
		case PathTotalPageViews:
			bd.TotalPageViews += op.Delta
		case PathTotalInteractions:
			bd.TotalInteractions += op.Delta
		case PathMoviesAdded:
			bd.MoviesAdded += op.Delta
		case PathMoviesRated:
			bd.MoviesRated += op.Delta
		default:
			return fmt.Errorf("increment: unsupported path %q", op.Path)
		}
		return nil

	case KindAppend:
		if rec.TrackingData == nil {
			return ErrConflict
		}
		idx := rec.TrackingData.SessionIndex(op.SessionID)
		if idx < 0 {
			return ErrConflict
		}
		sess := &rec.TrackingData.Sessions[idx]
		switch op.Path {
		case PathSessionPageViews:
			pv, ok := op.Value.(models.PageView)
			if !ok {
				return fmt.Errorf("append %q: value must be models.PageView, got %T", op.Path, op.Value)
			}
			sess.PageViews = append(sess.PageViews, pv)
		case PathSessionInteractions:
			in, ok := op.Value.(models.Interaction)
			if !ok {
				return fmt.Errorf("append %q: value must be models.Interaction, got %T", op.Path, op.Value)
			}
			sess.Interactions = append(sess.Interactions, in)
		default:
			return fmt.Errorf("append: unsupported path %q", op.Path)
		}
		return nil

	case KindConditionalAppend:
		if rec.TrackingData == nil {
			return ErrConflict
		}
		val, ok := op.Value.(string)
		if !ok {
			return fmt.Errorf("conditionalAppend %q: value must be string, got %T", op.Path, op.Value)
		}
		bd := &rec.TrackingData.BehaviorData
		switch op.Path {
		case PathMostVisitedPages:
			bd.MostVisitedPages = appendIfAbsent(bd.MostVisitedPages, val)
		case PathSearchQueries:
			bd.SearchQueries = appendIfAbsent(bd.SearchQueries, val)
		default:
			return fmt.Errorf("conditionalAppend: unsupported path %q", op.Path)
		}
		return nil

	case KindSet:
		if rec.TrackingData == nil {
			return ErrConflict
		}
		ts, ok := op.Value.(time.Time)
		if !ok {
			return fmt.Errorf("set %q: value must be time.Time, got %T", op.Path, op.Value)
		}
		switch op.Path {
		case PathLastUpdated:
			rec.TrackingData.LastUpdated = ts
		case PathLastActivity:
			rec.TrackingData.BehaviorData.LastActivity = ts
		default:
			return fmt.Errorf("set: unsupported path %q", op.Path)
		}
		return nil

	default:
		return fmt.Errorf("unsupported op kind %q", op.Kind)
	}
}

// newTrackingData returns an empty tracking block. Lists are non-nil so the
// serialized document always carries them, matching what the mongo backend
// initializes via $set.
func newTrackingData(now time.Time) *models.TrackingData {
	return &models.TrackingData{
		Sessions: []models.SessionRecord{},
		BehaviorData: models.BehaviorData{
			MostVisitedPages: []string{},
			SearchQueries:    []string{},
			LastActivity:     now,
		},
		LastUpdated: now,
	}
}

func appendIfAbsent(list []string, val string) []string {
	for _, existing := range list {
		if existing == val {
			return list
		}
	}
	return append(list, val)
}
