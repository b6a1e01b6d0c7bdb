// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/studyhall-app/studyhall/internal/config"
)

// ChiMiddleware builds the CORS and rate limiting middleware from the
// security configuration.
type ChiMiddleware struct {
	cors     func(http.Handler) http.Handler
	rateReqs int
	rateWin  time.Duration
}

// NewChiMiddleware constructs the middleware factory. CORS origins default
// to empty, requiring explicit configuration.
func NewChiMiddleware(cfg *config.SecurityConfig) *ChiMiddleware {
	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           86400,
	})

	window := cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}

	return &ChiMiddleware{
		cors:     corsHandler,
		rateReqs: cfg.RateLimitRequests,
		rateWin:  window,
	}
}

// CORS returns the CORS middleware. Must be global so OPTIONS preflights
// reach it.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the default per-IP request limiter.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	if m.rateReqs <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		m.rateReqs,
		m.rateWin,
		httprate.WithKeyFuncs(httprate.KeyByIP),
	)
}

// RateLimitHealth is permissive so monitoring tools can probe frequently.
func (m *ChiMiddleware) RateLimitHealth() func(http.Handler) http.Handler {
	return httprate.LimitByIP(1000, time.Minute)
}
