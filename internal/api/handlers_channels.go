// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/embywatch/embywatch/internal/emby"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/store"
	"github.com/embywatch/embywatch/internal/tmdb"
)

// probeTimeout bounds one connectivity test.
const probeTimeout = 15 * time.Second

// handleListChannels returns all channel configurations with secrets
// masked.
//
// GET /api/channels?type=telegram&enabled=true
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter := store.ChannelFilter{Kind: models.ChannelKind(r.URL.Query().Get("type"))}
	if raw := r.URL.Query().Get("enabled"); raw != "" {
		enabled := raw == "true"
		filter.Enabled = &enabled
	}

	channels, err := s.store.ListChannels(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, redactAll(channels), start)
}

// handleListWeComConfigs serves the wecom-scoped alias of the channel
// list.
//
// GET /api/wecom/configs
func (s *Server) handleListWeComConfigs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	channels, err := s.store.ListChannels(r.Context(), store.ChannelFilter{Kind: models.ChannelKindWeCom})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, redactAll(channels), start)
}

// handleCreateChannel validates and persists a new channel.
//
// POST /api/channels
func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var cfg models.ChannelConfig
	if err := decodeJSON(r, &cfg); err != nil {
		respondDomainError(w, err)
		return
	}
	if err := s.store.CreateChannel(r.Context(), &cfg); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, cfg.Redacted(), start)
}

// handleGetChannel returns one channel with secrets masked.
//
// GET /api/channels/{id}
func (s *Server) handleGetChannel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	cfg, err := s.store.GetChannel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, cfg.Redacted(), start)
}

// handleUpdateChannel replaces a channel configuration.
//
// PUT /api/channels/{id}
func (s *Server) handleUpdateChannel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var cfg models.ChannelConfig
	if err := decodeJSON(r, &cfg); err != nil {
		respondDomainError(w, err)
		return
	}
	cfg.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateChannel(r.Context(), &cfg); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, cfg.Redacted(), start)
}

// handleDeleteChannel removes a channel. Its delivery-log entries stay.
//
// DELETE /api/channels/{id}
func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.store.DeleteChannel(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": chi.URLParam(r, "id")}, start)
}

// handleTestChannel runs a connectivity probe without persisting
// anything. Messaging kinds probe their API; emby and tmdb kinds ping
// the upstream service.
//
// POST /api/channels/{id}/test
func (s *Server) handleTestChannel(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	cfg, err := s.store.GetChannel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r, probeTimeout)
	defer cancel()

	switch cfg.Type {
	case models.ChannelKindEmby:
		client := emby.New(cfg.Emby.ServerURL, cfg.Emby.APIKey, probeTimeout)
		info, err := client.Ping(ctx)
		if err != nil {
			respondDomainError(w, err)
			return
		}
		respondSuccess(w, http.StatusOK, map[string]string{
			"result":  "ok",
			"server":  info.ServerName,
			"version": info.Version,
		}, start)
		return

	case models.ChannelKindTMDB:
		client := tmdb.New(cfg.TMDB.APIKey, probeTimeout)
		if err := client.Ping(ctx); err != nil {
			respondDomainError(w, err)
			return
		}
		respondSuccess(w, http.StatusOK, map[string]string{"result": "ok"}, start)
		return
	}

	channel, err := notify.Build(cfg)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if err := channel.Test(ctx); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"result": "ok"}, start)
}

// handleTestWeComWebhook probes a webhook URL that has not been saved
// yet, so the settings form can verify before persisting.
//
// POST /api/wecom/test {"webhook_url": "..."}
func (s *Server) handleTestWeComWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req struct {
		WebhookURL string `json:"webhook_url"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}

	cfg := &models.ChannelConfig{
		Name:  "webhook probe",
		Type:  models.ChannelKindWeCom,
		WeCom: &models.WeComConfig{Mode: models.WeComModeBot, WebhookURL: req.WebhookURL},
	}
	if err := cfg.Validate(); err != nil {
		respondDomainError(w, err)
		return
	}

	channel, err := notify.Build(cfg)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	ctx, cancel := timeoutContext(r, probeTimeout)
	defer cancel()
	if err := channel.Test(ctx); err != nil {
		respondSuccess(w, http.StatusOK, map[string]any{
			"success": false,
			"message": err.Error(),
		}, start)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "webhook reachable",
	}, start)
}

func redactAll(channels []*models.ChannelConfig) []*models.ChannelConfig {
	out := make([]*models.ChannelConfig, 0, len(channels))
	for _, ch := range channels {
		out = append(out, ch.Redacted())
	}
	return out
}
