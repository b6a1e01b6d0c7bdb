// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/models"
)

type contextKey string

// IdentityContextKey is the request context key holding the verified identity.
const IdentityContextKey contextKey = "identity"

// Middleware enforces bearer-token authentication on REST endpoints.
type Middleware struct {
	jwtManager *JWTManager
}

// NewMiddleware creates authentication middleware around a token manager.
func NewMiddleware(jwtManager *JWTManager) *Middleware {
	return &Middleware{jwtManager: jwtManager}
}

// Authenticate rejects requests without a valid bearer token and stores the
// verified identity in the request context for downstream handlers.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			unauthorized(w, "authentication required")
			return
		}

		claims, err := m.jwtManager.ValidateToken(token)
		if err != nil {
			logging.Debug().Err(err).Str("path", r.URL.Path).Msg("token validation failed")
			unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), IdentityContextKey, claims.Identity())
		next(w, r.WithContext(ctx))
	}
}

// IdentityFromContext retrieves the verified identity stored by Authenticate.
func IdentityFromContext(ctx context.Context) (models.Identity, bool) {
	identity, ok := ctx.Value(IdentityContextKey).(models.Identity)
	return identity, ok
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	//nolint:errcheck // best-effort error body
	_, _ = w.Write([]byte(`{"success":false,"error":{"code":"UNAUTHORIZED","message":"` + message + `"}}`))
}
