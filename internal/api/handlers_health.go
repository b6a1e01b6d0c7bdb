// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

package api

import (
	"net/http"
	"time"
)

type healthStatus struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Connections int    `json:"connections"`
}

// Health reports process liveness along with basic runtime figures. It is
// unauthenticated so load balancers and orchestrators can probe it.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	rw.Success(healthStatus{
		Status:      "ok",
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Connections: h.hub.ClientCount(),
	})
}

// Ready reports whether the service can take traffic: the store must be
// open and answering.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	if err := h.store.Ping(r.Context()); err != nil {
		rw.Error(http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "store unavailable")
		return
	}
	rw.Success(healthStatus{
		Status:      "ready",
		Uptime:      time.Since(h.startTime).Round(time.Second).String(),
		Connections: h.hub.ClientCount(),
	})
}
