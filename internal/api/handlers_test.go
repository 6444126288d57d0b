// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/cinetrace/internal/config"
	"github.com/tomtom215/cinetrace/internal/models"
	"github.com/tomtom215/cinetrace/internal/store"
	"github.com/tomtom215/cinetrace/internal/tracking"
)

const testJWTSecret = "test-secret-with-at-least-32-characters!"

func newTestServer(t *testing.T, authMode string) (*httptest.Server, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	err := s.CreateUser(context.Background(), &models.UserRecord{
		ID:        "user-1",
		Username:  "alice",
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	tracker := tracking.New(s, tracking.Config{MaxResolveAttempts: 3})
	handler := NewHandler(tracker, s)
	chiMw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: []string{"*"},
		RateLimitDisabled:  true,
	})
	auth := NewAuthMiddleware(&config.SecurityConfig{
		AuthMode:  authMode,
		JWTSecret: testJWTSecret,
	})
	router := NewRouter(handler, chiMw, auth)

	srv := httptest.NewServer(router.Setup())
	t.Cleanup(srv.Close)
	return srv, s
}

func postTrack(t *testing.T, srv *httptest.Server, body string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/track", strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) models.APIResponse {
	t.Helper()
	defer resp.Body.Close()
	var out models.APIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return signed
}

// =============================================================================
// Track Endpoint Tests
// =============================================================================

func TestTrack_AcceptsPageView(t *testing.T) {
	srv, s := newTestServer(t, "none")

	body := `{"userId":"user-1","sessionId":"sess-1","type":"pageview","data":{"url":"/movies/42"}}`
	resp := postTrack(t, srv, body, nil)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	if out.Status != "success" {
		t.Errorf("status field = %q, want success", out.Status)
	}

	rec, _ := s.Get(context.Background(), "user-1")
	if rec.TrackingData == nil || rec.TrackingData.BehaviorData.TotalPageViews != 1 {
		t.Errorf("event was not aggregated: %+v", rec.TrackingData)
	}
}

func TestTrack_RejectsMalformedEnvelope(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"userId": broken`},
		{"missing type", `{"userId":"user-1","sessionId":"sess-1"}`},
		{"missing sessionId", `{"userId":"user-1","type":"pageview","data":{"url":"/x"}}`},
		{"pageview without url", `{"userId":"user-1","sessionId":"sess-1","type":"pageview","data":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, "none")
			resp := postTrack(t, srv, tt.body, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			out := decodeResponse(t, resp)
			if out.Error == nil || out.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("error = %+v, want VALIDATION_ERROR", out.Error)
			}
		})
	}
}

func TestTrack_UnknownUserIs401(t *testing.T) {
	srv, _ := newTestServer(t, "none")

	body := `{"userId":"ghost","sessionId":"sess-1","type":"pageview","data":{"url":"/x"}}`
	resp := postTrack(t, srv, body, nil)

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	if out.Error == nil || out.Error.Code != "AUTHENTICATION_REQUIRED" {
		t.Errorf("error = %+v, want AUTHENTICATION_REQUIRED", out.Error)
	}
}

func TestTrack_UnknownTypeAccepted(t *testing.T) {
	srv, s := newTestServer(t, "none")

	body := `{"userId":"user-1","sessionId":"sess-1","type":"scrollDepth"}`
	resp := postTrack(t, srv, body, nil)

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 for unknown event type", resp.StatusCode)
	}
	resp.Body.Close()

	rec, _ := s.Get(context.Background(), "user-1")
	if rec.TrackingData != nil {
		t.Error("unknown event type must not create tracking state")
	}
}

// =============================================================================
// Authentication Tests
// =============================================================================

func TestTrack_JWTModeRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t, "jwt")

	body := `{"userId":"user-1","sessionId":"sess-1","type":"pageview","data":{"url":"/x"}}`

	// No token.
	resp := postTrack(t, srv, body, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without token = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Garbage token.
	resp = postTrack(t, srv, body, map[string]string{"Authorization": "Bearer not-a-token"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status with garbage token = %d, want 401", resp.StatusCode)
	}
	resp.Body.Close()

	// Valid token, matching subject.
	resp = postTrack(t, srv, body, map[string]string{
		"Authorization": "Bearer " + signToken(t, "user-1"),
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("status with valid token = %d, want 202", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTrack_JWTModeRejectsSubjectMismatch(t *testing.T) {
	srv, _ := newTestServer(t, "jwt")

	body := `{"userId":"user-1","sessionId":"sess-1","type":"pageview","data":{"url":"/x"}}`
	resp := postTrack(t, srv, body, map[string]string{
		"Authorization": "Bearer " + signToken(t, "someone-else"),
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 on subject mismatch", resp.StatusCode)
	}
	resp.Body.Close()
}

// =============================================================================
// UserTracking Endpoint Tests
// =============================================================================

func TestUserTracking_ReturnsAggregatedData(t *testing.T) {
	srv, _ := newTestServer(t, "none")

	body := `{"userId":"user-1","sessionId":"sess-1","type":"pageview","data":{"url":"/movies/42"}}`
	resp := postTrack(t, srv, body, nil)
	resp.Body.Close()

	resp, err := srv.Client().Get(srv.URL + "/api/v1/users/user-1/tracking")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decodeResponse(t, resp)

	data, err := json.Marshal(out.Data)
	if err != nil {
		t.Fatalf("re-marshal data: %v", err)
	}
	var td models.TrackingData
	if err := json.Unmarshal(data, &td); err != nil {
		t.Fatalf("decode tracking data: %v", err)
	}
	if td.BehaviorData.TotalPageViews != 1 {
		t.Errorf("TotalPageViews = %d, want 1", td.BehaviorData.TotalPageViews)
	}
	if len(td.Sessions) != 1 {
		t.Errorf("sessions = %d, want 1", len(td.Sessions))
	}
}

func TestUserTracking_NotFound(t *testing.T) {
	srv, _ := newTestServer(t, "none")

	resp, err := srv.Client().Get(srv.URL + "/api/v1/users/ghost/tracking")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	out := decodeResponse(t, resp)
	if out.Error == nil || out.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v, want NOT_FOUND", out.Error)
	}
}

// =============================================================================
// Health Endpoint Tests
// =============================================================================

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "jwt") // health must not require auth

	paths := []string{"/api/v1/health", "/api/v1/health/live", "/api/v1/health/ready"}
	for _, path := range paths {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("Get(%s) error = %v", path, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestMetricsEndpointExposed(t *testing.T) {
	srv, _ := newTestServer(t, "jwt")

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("Get(/metrics) error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", resp.StatusCode)
	}
}
