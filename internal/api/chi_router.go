// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/studyhall-app/studyhall/internal/auth"
	"github.com/studyhall-app/studyhall/internal/config"
	"github.com/studyhall-app/studyhall/internal/middleware"
)

// Router wires the HTTP surface: global middleware, health and metrics
// endpoints, and the authenticated /api/v1 routes including the WebSocket
// handshake.
type Router struct {
	handler        *Handler
	authMiddleware *auth.Middleware
	chiMiddleware  *ChiMiddleware
}

// NewRouter creates the HTTP router from its dependencies.
func NewRouter(handler *Handler, authMiddleware *auth.Middleware, cfg *config.SecurityConfig) *Router {
	return &Router{
		handler:        handler,
		authMiddleware: authMiddleware,
		chiMiddleware:  NewChiMiddleware(cfg),
	}
}

// chiMW adapts http.HandlerFunc middleware to Chi's func(http.Handler) http.Handler
// so the auth middleware can sit in r.Use().
func chiMW(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Setup configures all HTTP routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order. CORS is global so
	// it handles OPTIONS preflights.
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.chiMiddleware.CORS())

	// Health endpoints stay unauthenticated for orchestrator probes, with a
	// permissive limiter against abuse.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimitHealth())
		r.Get("/", router.handler.Health)
		r.Get("/live", router.handler.Health)
		r.Get("/ready", router.handler.Ready)
	})

	// Prometheus scrape endpoint.
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Data endpoints all require a valid bearer token. The WebSocket
	// handshake authenticates itself (query-param token), so it sits outside
	// the Authenticate group.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.chiMiddleware.RateLimit())
		r.Use(middleware.Prometheus)

		r.Get("/ws", router.handler.WebSocket)

		r.Group(func(r chi.Router) {
			r.Use(chiMW(router.authMiddleware.Authenticate))

			r.Post("/groups", router.handler.CreateGroup)
			r.Get("/groups", router.handler.ListGroups)
			r.Post("/groups/join", router.handler.JoinGroup)

			r.Get("/groups/{groupID}/messages", router.handler.ListMessages)
			r.Post("/groups/{groupID}/messages", router.handler.CreateMessage)

			r.Get("/notes/{groupID}", router.handler.GetNote)
			r.Put("/notes/{groupID}", router.handler.UpdateNote)
		})
	})

	return r
}
