// Cinetrace - Per-User Behavioral Telemetry for Media Catalog UIs
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/cinetrace

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tomtom215/cinetrace/internal/config"
)

type authContextKey string

// subjectKey is the context key for the authenticated token subject.
const subjectKey authContextKey = "auth_subject"

// AuthMiddleware validates bearer tokens issued by the external auth service.
// Cinetrace never issues tokens; it only verifies the HS256 signature and
// extracts the subject, which handlers compare against the userId the client
// claims to be tracking for.
type AuthMiddleware struct {
	mode   string
	secret []byte
}

// NewAuthMiddleware creates the auth middleware from security config.
func NewAuthMiddleware(cfg *config.SecurityConfig) *AuthMiddleware {
	return &AuthMiddleware{
		mode:   cfg.AuthMode,
		secret: []byte(cfg.JWTSecret),
	}
}

// Authenticate verifies the Authorization header in jwt mode; in none mode it
// passes requests through unchanged.
func (m *AuthMiddleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	if m.mode == "none" {
		return next
	}

	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			respondError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED",
				"Missing bearer token", nil)
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		subject, err := m.verify(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "AUTHENTICATION_REQUIRED",
				"Invalid bearer token", err)
			return
		}

		ctx := context.WithValue(r.Context(), subjectKey, subject)
		next(w, r.WithContext(ctx))
	}
}

// verify parses and validates the token, returning its subject claim.
func (m *AuthMiddleware) verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", fmt.Errorf("token is not valid")
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("token has no subject claim")
	}
	return subject, nil
}

// SubjectFromContext returns the authenticated subject, or empty string when
// auth is disabled or the request is unauthenticated.
func SubjectFromContext(ctx context.Context) string {
	if sub, ok := ctx.Value(subjectKey).(string); ok {
		return sub
	}
	return ""
}
