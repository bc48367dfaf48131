// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package emby

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/models"
)

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/emby/System/Info" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("missing api_key, got query %q", r.URL.RawQuery)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ServerName":"living-room","Version":"4.8.0.0","Id":"abc"}`))
	}))
	defer server.Close()

	client := New(server.URL, "test-key", 5*time.Second)
	info, err := client.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if info.ServerName != "living-room" || info.Version != "4.8.0.0" {
		t.Errorf("unexpected info %+v", info)
	}
}

func TestPingBadKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := New(server.URL, "wrong", 5*time.Second)
	if _, err := client.Ping(context.Background()); err == nil {
		t.Fatal("expected error for 401 response")
	}
}

func TestCustomQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/emby/user_usage_stats/submit_custom_query" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"colums":["ItemName","plays"],"results":[["Dune","7"],["Severance","3"]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "k", 5*time.Second)
	result, err := client.CustomQuery(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("CustomQuery: %v", err)
	}
	if len(result.Columns) != 2 || result.Columns[0] != "ItemName" {
		t.Errorf("unexpected columns %v", result.Columns)
	}
	if len(result.Results) != 2 || result.Results[0][0] != "Dune" {
		t.Errorf("unexpected results %v", result.Results)
	}
}

func TestPlaybackSummary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"colums":["c","d","t"],"results":[["42","90000","11"]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "k", 5*time.Second)
	now := time.Now()
	summary, err := client.PlaybackSummary(context.Background(), now.AddDate(0, 0, -1), now)
	if err != nil {
		t.Fatalf("PlaybackSummary: %v", err)
	}
	if summary.TotalPlays != 42 {
		t.Errorf("TotalPlays = %d, want 42", summary.TotalPlays)
	}
	if summary.TotalHours != 25.0 {
		t.Errorf("TotalHours = %v, want 25.0", summary.TotalHours)
	}
	if summary.TotalTitles != 11 {
		t.Errorf("TotalTitles = %d, want 11", summary.TotalTitles)
	}
}

func TestTopContent(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		gotQuery = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"colums":[],"results":[["id1","Dune","Movie","7","10800"]]}`))
	}))
	defer server.Close()

	client := New(server.URL, "k", 5*time.Second)
	now := time.Now()
	items, err := client.TopContent(context.Background(), now.AddDate(0, 0, -7), now, 5)
	if err != nil {
		t.Fatalf("TopContent: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	if items[0].Name != "Dune" || items[0].PlayCount != 7 || items[0].Hours != 3.0 {
		t.Errorf("unexpected item %+v", items[0])
	}
	if !strings.Contains(gotQuery, "LIMIT 5") {
		t.Errorf("query missing limit: %s", gotQuery)
	}
}

func TestPrimaryImageNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, "k", 5*time.Second)
	_, err := client.PrimaryImage(context.Background(), "missing", 300)
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := New(server.URL, "k", time.Second)
	ctx := context.Background()
	for i := 0; i < 12; i++ {
		client.Ping(ctx)
	}

	_, err := client.Ping(ctx)
	if err == nil {
		t.Fatal("expected error after repeated failures")
	}
	var connErr *models.ConnectivityError
	if !errors.As(err, &connErr) {
		t.Errorf("expected ConnectivityError, got %T: %v", err, err)
	}
}
