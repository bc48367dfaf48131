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

// handleEmbyWebhook accepts event pushes from the Emby server and
// hands them to the event bus. The HTTP response never waits for the
// downstream notification fan-out.
//
// POST /api/webhook/emby
func (s *Server) handleEmbyWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.bus == nil {
		respondError(w, http.StatusServiceUnavailable, "EVENTS_DISABLED", "event pipeline is not running", nil)
		return
	}

	var event models.EmbyWebhookEvent
	if err := decodeJSON(r, &event); err != nil {
		respondDomainError(w, err)
		return
	}
	if event.Event == "" {
		respondDomainError(w, models.NewValidationError("Event", "event type is required"))
		return
	}
	if event.Date.IsZero() {
		event.Date = time.Now()
	}

	if err := s.bus.PublishEvent(r.Context(), &event); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to enqueue event", err)
		return
	}
	respondSuccess(w, http.StatusAccepted, map[string]string{"queued": string(event.Event)}, start)
}
