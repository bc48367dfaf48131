// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/config"
)

func testManager(t *testing.T, timeout time.Duration) *JWTManager {
	t.Helper()
	m, err := NewJWTManager(&config.SecurityConfig{
		JWTSecret:      "0123456789abcdef0123456789abcdef",
		SessionTimeout: timeout,
	})
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	return m
}

func TestGenerateAndValidateToken(t *testing.T) {
	m := testManager(t, time.Hour)
	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	claims, err := m.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.Username != "admin" {
		t.Errorf("Username = %q", claims.Username)
	}
}

func TestValidateExpiredToken(t *testing.T) {
	m := testManager(t, time.Hour)
	// Mint a token that expired a minute ago; the constructor coerces
	// non-positive timeouts to the default, so set the field directly.
	m.timeout = -time.Minute
	token, err := m.GenerateToken("admin")
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := m.ValidateToken(token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateTamperedToken(t *testing.T) {
	m := testManager(t, time.Hour)
	token, _ := m.GenerateToken("admin")
	other := testManager(t, time.Hour)
	other.secret = []byte("another-secret-another-secret-32")
	if _, err := other.ValidateToken(token); err == nil {
		t.Error("expected error for token signed with a different secret")
	}
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !VerifyPassword(hash, "s3cret") {
		t.Error("correct password rejected")
	}
	if VerifyPassword(hash, "wrong") {
		t.Error("wrong password accepted")
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	m := testManager(t, time.Hour)
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without token")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/channels", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewarePassesValidToken(t *testing.T) {
	m := testManager(t, time.Hour)
	token, _ := m.GenerateToken("admin")

	var gotUser string
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if claims := ClaimsFromContext(r.Context()); claims != nil {
			gotUser = claims.Username
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/channels", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser != "admin" {
		t.Errorf("claims username = %q", gotUser)
	}
}

func TestMiddlewareNilManagerPassesThrough(t *testing.T) {
	called := false
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Error("handler not reached with auth disabled")
	}
}
