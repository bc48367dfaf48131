// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"

	"github.com/embywatch/embywatch/internal/store"
)

// handleListLogs returns delivery-log entries, newest first.
//
// GET /api/logs?config_id=&limit=50&offset=0
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	filter := store.LogFilter{
		ConfigID: r.URL.Query().Get("config_id"),
		Limit:    getIntParam(r, "limit", 50),
		Offset:   getIntParam(r, "offset", 0),
	}
	entries, total, err := s.store.ListDeliveryLogs(r.Context(), filter)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]interface{}{
		"total":   total,
		"limit":   filter.Limit,
		"offset":  filter.Offset,
		"results": entries,
	}, start)
}

// handleStatistics returns aggregate delivery statistics. success_rate
// is success/total*100 rounded to two decimals, 0 when nothing was
// sent.
//
// GET /api/statistics
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	stats, err := s.store.Statistics(r.Context())
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, stats, start)
}
