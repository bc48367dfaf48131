// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/metrics"
)

// metricsMiddleware records latency and status per route pattern, so
// path parameters do not explode the label space.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		duration := time.Since(start)
		metrics.ObserveAPIRequest(r.Method, pattern, ww.Status(), duration)

		logging.Debug().
			Str("method", r.Method).
			Str("path", pattern).
			Int("status", ww.Status()).
			Dur("duration", duration).
			Msg("http request")
	})
}
