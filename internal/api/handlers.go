// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/studyhall-app/studyhall/internal/auth"
	"github.com/studyhall-app/studyhall/internal/config"
	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/models"
	"github.com/studyhall-app/studyhall/internal/realtime"
	"github.com/studyhall-app/studyhall/internal/store"
)

// Handler contains dependencies for the API handlers.
//
// Handler methods are split across files:
//   - handlers.go: Handler struct, constructor, WebSocket handshake (this file)
//   - handlers_groups.go: group management endpoints
//   - handlers_messages.go: message history endpoints
//   - handlers_notes.go: shared note endpoints
//   - handlers_health.go: health endpoints
type Handler struct {
	store      *store.Store
	config     *config.Config
	jwtManager *auth.JWTManager
	hub        *realtime.Hub
	router     *realtime.Router
	startTime  time.Time
}

// NewHandler creates the API handler with its dependencies.
func NewHandler(st *store.Store, cfg *config.Config, jwtManager *auth.JWTManager, hub *realtime.Hub, router *realtime.Router) *Handler {
	return &Handler{
		store:      st,
		config:     cfg,
		jwtManager: jwtManager,
		hub:        hub,
		router:     router,
		startTime:  time.Now(),
	}
}

// getUpgrader creates a WebSocket upgrader with origin checking and a
// handshake timeout against slow-client attacks.
func (h *Handler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      h.checkWebSocketOrigin,
		HandshakeTimeout: 10 * time.Second,
	}
}

// checkWebSocketOrigin validates connection origins against the configured
// CORS list. Requests without an Origin header (non-browser clients) are
// allowed; the credential check is what gates the connection.
func (h *Handler) checkWebSocketOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.config.Security.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
	return false
}

// WebSocket is the handshake endpoint. The credential arrives out-of-band as
// a query parameter; a missing or invalid token terminates the attempt
// before any session state is allocated. On success the session is
// registered and the connected acknowledgement is the first frame sent.
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		NewResponseWriter(w, r).Unauthorized("missing token")
		return
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		logging.Debug().Err(err).Msg("websocket handshake rejected: invalid token")
		NewResponseWriter(w, r).Unauthorized("invalid token")
		return
	}

	upgrader := h.getUpgrader()
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := realtime.NewClient(h.hub, h.router, conn, claims.Identity(), &h.config.Realtime)
	h.hub.Register <- client
	client.Start()
	client.SendConnected()
}

// identityFrom pulls the authenticated identity out of the request context.
// The auth middleware guarantees it is present on protected routes.
func identityFrom(r *http.Request) (models.Identity, bool) {
	return auth.IdentityFromContext(r.Context())
}

// groupIDParam parses the {groupID} URL parameter.
func groupIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "groupID"), 10, 64)
}
