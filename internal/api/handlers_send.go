// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"

	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/store"
)

// sendRequest triggers one manual notification. Empty config_id fans
// out to every enabled channel.
type sendRequest struct {
	ConfigID   string         `json:"config_id"`
	TemplateID string         `json:"template_id"`
	Context    map[string]any `json:"context"`
	Text       string         `json:"text"`
}

// handleSendNotification renders a template (or raw text) and
// dispatches it. Per-channel outcomes land in the delivery log; the
// response reports the fan-out summary.
//
// POST /api/wecom/send
func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}
	if req.TemplateID == "" && req.Text == "" {
		respondDomainError(w, models.NewValidationError("template_id", "template_id or text is required"))
		return
	}

	channels, err := s.sendTargets(r, req.ConfigID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	if len(channels) == 0 {
		respondDomainError(w, models.NewValidationError("config_id", "no enabled channels to send to"))
		return
	}

	dispatchReq := &notify.DispatchRequest{
		Channels:   channels,
		TemplateID: req.TemplateID,
		Context:    req.Context,
	}
	if req.Text != "" {
		dispatchReq.Message = &notify.Message{Text: req.Text}
	}

	report := s.dispatcher.Dispatch(r.Context(), dispatchReq)
	respondSuccess(w, http.StatusOK, report, start)
}

func (s *Server) sendTargets(r *http.Request, configID string) ([]*models.ChannelConfig, error) {
	if configID != "" {
		cfg, err := s.store.GetChannel(r.Context(), configID)
		if err != nil {
			return nil, err
		}
		return []*models.ChannelConfig{cfg}, nil
	}
	enabled := true
	channels, err := s.store.ListChannels(r.Context(), store.ChannelFilter{Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	return channels, nil
}
