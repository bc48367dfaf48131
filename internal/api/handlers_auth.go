// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"net/http"
	"time"

	"github.com/embywatch/embywatch/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// handleLogin verifies the admin credential and mints a session token.
// Responses are identical for unknown user and wrong password.
//
// POST /api/auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if s.jwt == nil {
		respondError(w, http.StatusNotFound, "AUTH_DISABLED", "authentication is not configured", nil)
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		respondDomainError(w, err)
		return
	}

	sec := s.cfg.Security
	if req.Username != sec.AdminUsername || !auth.VerifyPassword(sec.AdminPasswordHash, req.Password) {
		respondError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password", nil)
		return
	}

	token, err := s.jwt.GenerateToken(req.Username)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to create session", err)
		return
	}
	respondSuccess(w, http.StatusOK, loginResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(s.jwt.SessionTimeout()).UTC(),
	}, start)
}
