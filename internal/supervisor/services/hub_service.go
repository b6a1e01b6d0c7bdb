// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package services wraps the long-lived components as suture services.
package services

import (
	"context"
)

// ContextHub matches *realtime.Hub's Run method without importing the
// realtime package.
type ContextHub interface {
	Run(ctx context.Context) error
}

// HubService runs the realtime hub under supervision. Run already follows
// the suture.Service pattern (block, return ctx.Err() on cancellation), so
// this wrapper only supplies the service name.
type HubService struct {
	hub ContextHub
}

// NewHubService wraps the hub as a supervised service.
func NewHubService(hub ContextHub) *HubService {
	return &HubService{hub: hub}
}

// Serve implements suture.Service.
func (s *HubService) Serve(ctx context.Context) error {
	return s.hub.Run(ctx)
}

// String implements fmt.Stringer for suture's event logging.
func (s *HubService) String() string {
	return "realtime-hub"
}
