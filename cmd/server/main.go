// Studyhall - Real-Time Study Group Collaboration Backend
// Copyright 2026 Studyhall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/studyhall-app/studyhall

// Package main is the entry point for the Studyhall server.
//
// Studyhall is the real-time backend for small study groups: chat and one
// shared note per group, delivered over authenticated WebSocket connections,
// with a REST surface for group management and history hydration.
//
// The server initializes components in the following order:
//
//  1. Configuration: layered load via Koanf v2 (defaults, config.yaml,
//     STUDYHALL_* environment variables)
//  2. Logging: zerolog, configured from the loaded settings
//  3. Store: BadgerDB with groups, membership, messages, and notes
//  4. Realtime: hub and frame router for WebSocket sessions
//  5. HTTP: Chi router with the REST API, /metrics, and the /ws handshake
//  6. Supervisor: suture tree running the hub and HTTP server
//
// Token issuance is external: the server verifies pre-issued HS256 JWTs
// (SECURITY_JWT_SECRET, 32+ characters) and never mints its own.
//
// The server handles graceful shutdown on SIGINT and SIGTERM: the listener
// drains in-flight requests, the hub closes every connection, and the store
// is closed last.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/studyhall-app/studyhall/internal/api"
	"github.com/studyhall-app/studyhall/internal/auth"
	"github.com/studyhall-app/studyhall/internal/config"
	"github.com/studyhall-app/studyhall/internal/logging"
	"github.com/studyhall-app/studyhall/internal/realtime"
	"github.com/studyhall-app/studyhall/internal/store"
	"github.com/studyhall-app/studyhall/internal/supervisor"
	"github.com/studyhall-app/studyhall/internal/supervisor/services"
)

func main() {
	// Load configuration first to get logging settings.
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Int("port", cfg.Server.Port).
		Msg("Configuration loaded")

	st, err := store.Open(&cfg.Store)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	jwtManager, err := auth.NewJWTManager(&cfg.Security)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize token verification")
	}

	// Realtime layer: the hub owns room membership, the frame router owns
	// dispatch; the store backs both membership checks and persistence.
	hub := realtime.NewHub()
	frameRouter := realtime.NewRouter(hub, st, st)

	handler := api.NewHandler(st, cfg, jwtManager, hub, frameRouter)
	httpRouter := api.NewRouter(handler, auth.NewMiddleware(jwtManager), &cfg.Security)

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           httpRouter.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	treeCfg := supervisor.DefaultTreeConfig()
	if cfg.Server.ShutdownTimeout > 0 {
		treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	tree := supervisor.NewTree(logging.NewSlogLogger(), treeCfg)
	tree.AddRealtimeService(services.NewHubService(hub))
	tree.AddAPIService(services.NewHTTPService(server, treeCfg.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	// Drain until the supervisor has fully stopped.
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Server stopped gracefully")
}
