// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"
)

// handleHealth reports liveness plus, when configured, Emby
// reachability.
//
// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	data := map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	}
	if s.emby != nil {
		ctx, cancel := timeoutContext(r, 5*time.Second)
		defer cancel()
		if info, err := s.emby.Ping(ctx); err == nil {
			data["emby"] = map[string]string{
				"status":  "ok",
				"server":  info.ServerName,
				"version": info.Version,
			}
		} else {
			data["emby"] = map[string]string{"status": "unreachable"}
		}
	}

	respondSuccess(w, http.StatusOK, data, start)
}
