// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/embywatch/embywatch/internal/models"
)

// handleGenerateReport builds the report for the requested type. The
// default response is the report payload JSON; format=image streams
// the rendered PNG instead.
//
// GET /api/report/generate?type=daily|weekly|monthly[&format=image]
func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.reports == nil {
		respondError(w, http.StatusServiceUnavailable, "EMBY_NOT_CONFIGURED",
			"report generation requires a configured Emby server", nil)
		return
	}

	reportType := models.ReportType(r.URL.Query().Get("type"))
	if reportType == "" {
		reportType = models.ReportTypeDaily
	}

	report, pngData, err := s.reports.Generate(r.Context(), reportType)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "image" {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Content-Length", strconv.Itoa(len(pngData)))
		w.Write(pngData)
		return
	}
	respondSuccess(w, http.StatusOK, report, start)
}

// sendReportRequest selects the type and optional channel override for
// a manual send.
type sendReportRequest struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// handleSendReport runs the full pipeline now: generate, render,
// dispatch to the schedule's channels (or the requested override).
//
// POST /api/report/send-image?type=weekly
func (s *Server) handleSendReport(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.reports == nil {
		respondError(w, http.StatusServiceUnavailable, "EMBY_NOT_CONFIGURED",
			"report generation requires a configured Emby server", nil)
		return
	}

	var req sendReportRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}
	if q := r.URL.Query().Get("type"); q != "" {
		req.Type = q
	}
	reportType := models.ReportType(req.Type)
	if reportType == "" {
		reportType = models.ReportTypeDaily
	}

	var kinds []models.ChannelKind
	for _, c := range req.Channels {
		kinds = append(kinds, models.ChannelKind(c))
	}

	dispatch, err := s.reports.Send(r.Context(), reportType, kinds)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, dispatch, start)
}

// handlePoster serves an item's cover art, falling back to a generated
// placeholder so <img> tags never break.
//
// GET /api/poster/{item_id}
func (s *Server) handlePoster(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "item_id")

	w.Header().Set("Cache-Control", "public, max-age=3600")

	if s.posters != nil {
		img := s.posters.Resolve(r.Context(), models.ReportItem{ItemID: itemID})
		if img != nil {
			var buf bytes.Buffer
			if err := png.Encode(&buf, img); err == nil {
				w.Header().Set("Content-Type", "image/png")
				w.Write(buf.Bytes())
				return
			}
		}
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(placeholderPoster())
}

// placeholderPoster renders a flat 300x450 tile in the card color.
func placeholderPoster() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 300, 450))
	fill := color.RGBA{R: 45, G: 55, B: 72, A: 255}
	for y := 0; y < 450; y++ {
		for x := 0; x < 300; x++ {
			img.Set(x, y, fill)
		}
	}
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
