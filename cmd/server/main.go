// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package main is the Embywatch server entry point.
//
// Embywatch watches an Emby server's Playback Reporting data and turns
// it into notifications and rendered statistics reports. Components are
// started under a suture supervisor tree in two layers: background
// workers (report scheduler, webhook event consumer, websocket hub,
// store maintenance) and the HTTP API, so a crashing worker restarts
// without dropping the listener.
//
// Configuration is layered via Koanf v2 (highest priority wins):
//   - Environment variables (EMBYWATCH_ prefix)
//   - Config file (config.yaml, or EMBYWATCH_CONFIG)
//   - Built-in defaults
//
// Minimal setup against a local Emby server:
//
//	export EMBYWATCH_EMBY_URL=http://localhost:8096
//	export EMBYWATCH_EMBY_API_KEY=your-api-key
//	./embywatch
//
// Admin authentication is enabled by configuring all three of
// EMBYWATCH_SECURITY_JWT_SECRET, EMBYWATCH_SECURITY_ADMIN_USERNAME and
// EMBYWATCH_SECURITY_ADMIN_PASSWORD_HASH (bcrypt). Leaving the username
// empty runs the API open, which is only sensible behind a trusted
// reverse proxy.
//
// The server shuts down gracefully on SIGINT and SIGTERM: the listener
// stops accepting connections, in-flight requests get 10 seconds to
// finish, then workers and the store close.
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

	"github.com/embywatch/embywatch/internal/api"
	"github.com/embywatch/embywatch/internal/auth"
	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/emby"
	"github.com/embywatch/embywatch/internal/events"
	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/report"
	"github.com/embywatch/embywatch/internal/scheduler"
	"github.com/embywatch/embywatch/internal/store"
	"github.com/embywatch/embywatch/internal/supervisor"
	"github.com/embywatch/embywatch/internal/tmdb"
	ws "github.com/embywatch/embywatch/internal/websocket"
)

func main() {
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
		Bool("auth_enabled", cfg.Security.AuthEnabled()).
		Bool("scheduler_enabled", cfg.Scheduler.Enabled).
		Msg("Starting Embywatch")

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing store")
		}
	}()

	if err := st.SeedDefaultTemplates(context.Background()); err != nil {
		logging.Error().Err(err).Msg("Failed to seed default templates")
	}

	// Bootstrap upstream clients from config. Both are optional: report
	// generation needs Emby, poster fallback needs TMDB, and the API
	// answers with a clear error when either is missing.
	var embyClient *emby.Client
	if cfg.Emby.URL != "" {
		embyClient = emby.New(cfg.Emby.URL, cfg.Emby.APIKey, cfg.Emby.Timeout)
		if _, err := embyClient.Ping(context.Background()); err != nil {
			logging.Warn().Err(err).Str("url", cfg.Emby.URL).Msg("Emby server unreachable (will retry on demand)")
		} else {
			logging.Info().Str("url", cfg.Emby.URL).Msg("Connected to Emby server")
		}
	} else {
		logging.Warn().Msg("Emby server not configured; reports and playback statistics are unavailable")
	}

	var tmdbClient *tmdb.Client
	if cfg.TMDB.APIKey != "" {
		tmdbClient = tmdb.New(cfg.TMDB.APIKey, cfg.TMDB.Timeout)
	}

	dispatcher := notify.NewDispatcher(st, cfg.Dispatch)

	hub := ws.NewHub()
	dispatcher.AddSink(hub.BroadcastDelivery)

	bus := events.NewBus()
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing event bus")
		}
	}()
	consumer := events.NewConsumer(bus, st, dispatcher)

	var posters *report.PosterResolver
	var reports *report.Service
	if embyClient != nil {
		if tmdbClient != nil {
			posters = report.NewPosterResolver(embyClient, tmdbClient)
		} else {
			posters = report.NewPosterResolver(embyClient, nil)
		}
		renderer, err := report.NewRenderer(posters)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize report renderer")
		}
		reports = report.NewService(report.NewGenerator(embyClient), renderer, st, dispatcher)
	}

	var jwtManager *auth.JWTManager
	if cfg.Security.AuthEnabled() {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			logging.Fatal().Err(err).Msg("Failed to initialize authentication")
		}
		logging.Info().Str("admin", cfg.Security.AdminUsername).Msg("JWT authentication enabled")
	} else {
		logging.Warn().Msg("Authentication disabled; run behind a trusted proxy only")
	}

	server := api.NewServer(cfg, st, dispatcher, reports, posters, embyClient, tmdbClient, jwtManager, hub, bus)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       120 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	})

	tree.AddWorker(supervisor.NewRunnerService("websocket-hub", hub))
	tree.AddWorker(supervisor.NewRunnerService("event-consumer", consumer))
	tree.AddWorker(supervisor.NewMaintenanceService(st, time.Hour, cfg.Store.LogRetention))
	if reports != nil && cfg.Scheduler.Enabled {
		tree.AddWorker(supervisor.NewSchedulerService(scheduler.New(st, reports, cfg.Scheduler)))
	}
	tree.AddAPI(supervisor.NewHTTPService(httpServer, 10*time.Second))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logging.Info().Str("addr", httpServer.Addr).Msg("Embywatch listening")

	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor tree exited with error")
		os.Exit(1)
	}
	logging.Info().Msg("Embywatch stopped")
}
