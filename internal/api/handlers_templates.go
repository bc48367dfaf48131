// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/template"
)

// handleListTemplates returns templates, optionally filtered by the
// channel tag.
//
// GET /api/notification-templates?channel=wecom
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	templates, err := s.store.ListTemplates(r.Context(), r.URL.Query().Get("channel"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, templates, start)
}

// handleCreateTemplate persists a template; placeholders are extracted
// on save.
//
// POST /api/notification-templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var t models.NotificationTemplate
	if err := decodeJSON(r, &t); err != nil {
		respondDomainError(w, err)
		return
	}
	if err := s.store.CreateTemplate(r.Context(), &t); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusCreated, t, start)
}

// handleGetTemplate returns one template.
//
// GET /api/notification-templates/{id}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	t, err := s.store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, t, start)
}

// handleUpdateTemplate replaces a template and re-extracts its
// placeholders.
//
// PUT /api/notification-templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var t models.NotificationTemplate
	if err := decodeJSON(r, &t); err != nil {
		respondDomainError(w, err)
		return
	}
	t.ID = chi.URLParam(r, "id")
	if err := s.store.UpdateTemplate(r.Context(), &t); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, t, start)
}

// handleDeleteTemplate removes a template. Dispatches referencing it
// afterwards skip the affected channel and log the missing reference.
//
// DELETE /api/notification-templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if err := s.store.DeleteTemplate(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, err)
		return
	}
	respondSuccess(w, http.StatusOK, map[string]string{"deleted": chi.URLParam(r, "id")}, start)
}

// handleRenderTemplate renders a template with the supplied context.
// Missing placeholders render empty; rendering never fails. An empty
// context previews the template with sample values.
//
// POST /api/notification-templates/{id}/render
func (s *Server) handleRenderTemplate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	t, err := s.store.GetTemplate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req models.TemplateRenderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}
	ctx := req.Context
	if len(ctx) == 0 {
		ctx = template.SampleContext(t.Variables)
	}

	respondSuccess(w, http.StatusOK, models.TemplateRenderResult{
		Content:   template.Render(t.TemplateContent, ctx),
		Variables: t.Variables,
	}, start)
}
