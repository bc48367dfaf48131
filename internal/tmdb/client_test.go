// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package tmdb

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := New("test-key", 5*time.Second)
	client.apiBase = server.URL
	client.imageBase = server.URL + "/t/p"
	return client
}

func TestPing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/configuration" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("api_key") != "test-key" {
			t.Errorf("missing api_key in %q", r.URL.RawQuery)
		}
		w.Write([]byte(`{"images":{}}`))
	})
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestPosterURL(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/movie/603" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"poster_path":"/matrix.jpg"}`))
	})
	got, err := client.PosterURL(context.Background(), "603", "Movie", "")
	if err != nil {
		t.Fatalf("PosterURL: %v", err)
	}
	if want := client.imageBase + "/w300/matrix.jpg"; got != want {
		t.Errorf("PosterURL = %q, want %q", got, want)
	}
}

func TestPosterURLSeries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tv/1396" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"poster_path":"/bb.jpg"}`))
	})
	if _, err := client.PosterURL(context.Background(), "1396", "Episode", "w300"); err != nil {
		t.Fatalf("PosterURL: %v", err)
	}
}

func TestPosterURLNoPoster(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"poster_path":""}`))
	})
	_, err := client.PosterURL(context.Background(), "1", "Movie", "")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPosterFetchesImage(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/movie/603":
			w.Write([]byte(`{"poster_path":"/matrix.jpg"}`))
		case "/t/p/w300/matrix.jpg":
			w.Write(png)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	data, err := client.Poster(context.Background(), "603", "Movie", "w300")
	if err != nil {
		t.Fatalf("Poster: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("unexpected image bytes %v", data)
	}
}
