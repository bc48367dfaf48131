// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"

	"github.com/embywatch/embywatch/internal/models"
)

// handleGetSettings returns the notification settings document,
// including the report schedule.
//
// GET /api/config/notification
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	settings, err := s.store.GetSettings(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, settings, start)
}

// handleSaveSettings validates and persists the settings document.
//
// POST /api/config/notification
func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var settings models.NotificationSettings
	if err := decodeJSON(r, &settings); err != nil {
		respondDomainError(w, err)
		return
	}
	if err := s.store.SaveSettings(r.Context(), &settings); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, settings, start)
}
