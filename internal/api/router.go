// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package api exposes the REST surface: channel registry, templates,
// delivery logs, reports, settings, webhook intake and the live feed.
// Every JSON endpoint answers with the uniform envelope.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/embywatch/embywatch/internal/auth"
	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/emby"
	"github.com/embywatch/embywatch/internal/events"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/report"
	"github.com/embywatch/embywatch/internal/store"
	"github.com/embywatch/embywatch/internal/tmdb"
	"github.com/embywatch/embywatch/internal/websocket"
)

// Server bundles the handler dependencies.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	dispatcher *notify.Dispatcher
	reports    *report.Service
	posters    *report.PosterResolver
	emby       *emby.Client
	tmdb       *tmdb.Client
	jwt        *auth.JWTManager
	hub        *websocket.Hub
	bus        *events.Bus
	startedAt  time.Time
}

// NewServer wires the handlers. emby, tmdb, jwt, hub and bus may be
// nil; the affected endpoints then answer with a clear error or are
// skipped.
func NewServer(
	cfg *config.Config,
	st *store.Store,
	dispatcher *notify.Dispatcher,
	reports *report.Service,
	posters *report.PosterResolver,
	embyClient *emby.Client,
	tmdbClient *tmdb.Client,
	jwtManager *auth.JWTManager,
	hub *websocket.Hub,
	bus *events.Bus,
) *Server {
	return &Server{
		cfg:        cfg,
		store:      st,
		dispatcher: dispatcher,
		reports:    reports,
		posters:    posters,
		emby:       embyClient,
		tmdb:       tmdbClient,
		jwt:        jwtManager,
		hub:        hub,
		bus:        bus,
		startedAt:  time.Now(),
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(metricsMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.rateLimitRequests(), s.rateLimitWindow()))

		r.Get("/health", s.handleHealth)

		// Brute-force protection on login.
		r.With(httprate.LimitByIP(5, 5*time.Minute)).Post("/auth/login", s.handleLogin)

		// Emby pushes webhooks without bearer tokens.
		r.Post("/webhook/emby", s.handleEmbyWebhook)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.jwt))

			r.Route("/channels", func(r chi.Router) {
				r.Get("/", s.handleListChannels)
				r.Post("/", s.handleCreateChannel)
				r.Get("/{id}", s.handleGetChannel)
				r.Put("/{id}", s.handleUpdateChannel)
				r.Delete("/{id}", s.handleDeleteChannel)
				r.Post("/{id}/test", s.handleTestChannel)
			})

			r.Route("/notification-templates", func(r chi.Router) {
				r.Get("/", s.handleListTemplates)
				r.Post("/", s.handleCreateTemplate)
				r.Get("/{id}", s.handleGetTemplate)
				r.Put("/{id}", s.handleUpdateTemplate)
				r.Delete("/{id}", s.handleDeleteTemplate)
				r.Post("/{id}/render", s.handleRenderTemplate)
			})

			// WeCom-scoped aliases kept for dashboard compatibility.
			r.Route("/wecom", func(r chi.Router) {
				r.Get("/configs", s.handleListWeComConfigs)
				r.Post("/configs", s.handleCreateChannel)
				r.Get("/configs/{id}", s.handleGetChannel)
				r.Put("/configs/{id}", s.handleUpdateChannel)
				r.Delete("/configs/{id}", s.handleDeleteChannel)
				r.Post("/configs/{id}/test", s.handleTestChannel)
				r.Post("/test", s.handleTestWeComWebhook)
				r.Post("/send", s.handleSendNotification)
				r.Get("/logs", s.handleListLogs)
				r.Get("/statistics", s.handleStatistics)
			})

			r.Get("/logs", s.handleListLogs)
			r.Get("/statistics", s.handleStatistics)

			r.Get("/config/notification", s.handleGetSettings)
			r.Post("/config/notification", s.handleSaveSettings)

			r.Get("/report/generate", s.handleGenerateReport)
			r.Post("/report/send-image", s.handleSendReport)
			r.Get("/poster/{item_id}", s.handlePoster)

			if s.hub != nil {
				r.Get("/ws", s.hub.ServeWS)
			}
		})
	})

	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.cfg.Server.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.Server.CORSOrigins
}

func (s *Server) rateLimitRequests() int {
	if s.cfg.Server.RateLimitReqs <= 0 {
		return 300
	}
	return s.cfg.Server.RateLimitReqs
}

func (s *Server) rateLimitWindow() time.Duration {
	if s.cfg.Server.RateLimitWindow <= 0 {
		return time.Minute
	}
	return s.cfg.Server.RateLimitWindow
}
