// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package tmdb resolves poster art from The Movie Database. It is a
// fallback for items whose Emby library carries no primary image.
package tmdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
)

const (
	defaultAPIBase   = "https://api.themoviedb.org/3"
	defaultImageBase = "https://image.tmdb.org/t/p"
	maxPosterBytes   = 8 << 20
)

// Client is the TMDB API client.
type Client struct {
	apiBase   string
	imageBase string
	apiKey    string
	client    *http.Client
	cb        *gobreaker.CircuitBreaker[[]byte]
}

// New builds a client. apiBase and imageBase default to the public
// TMDB endpoints when empty.
func New(apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cbName := "tmdb-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	log := logging.WithComponent("tmdb")
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Info().
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &Client{
		apiBase:   defaultAPIBase,
		imageBase: defaultImageBase,
		apiKey:    apiKey,
		client:    &http.Client{Timeout: timeout},
		cb:        cb,
	}
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return 0
	}
}

func (c *Client) get(ctx context.Context, rawURL, operation string) ([]byte, error) {
	data, err := c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		metrics.ObserveUpstream("tmdb", operation, time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, models.ErrNotFound
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%s returned %d", operation, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, models.NewConnectivityError("tmdb", "circuit open", err)
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, models.NewConnectivityError("tmdb", operation, err)
	}
	return data, nil
}

func (c *Client) apiURL(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	return strings.TrimRight(c.apiBase, "/") + path + "?" + query.Encode()
}

// Ping verifies the API key against the configuration endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, c.apiURL("/configuration", nil), "configuration")
	return err
}

type detailResponse struct {
	PosterPath string `json:"poster_path"`
}

// mediaPath maps an Emby media type onto the TMDB detail endpoint.
func mediaPath(mediaType string) string {
	switch strings.ToLower(mediaType) {
	case "episode", "series", "season":
		return "tv"
	default:
		return "movie"
	}
}

// PosterURL resolves the poster image URL for a TMDB ID. size is a
// TMDB width class such as "w300"; empty defaults to w300.
func (c *Client) PosterURL(ctx context.Context, tmdbID, mediaType, size string) (string, error) {
	if size == "" {
		size = "w300"
	}
	data, err := c.get(ctx, c.apiURL("/"+mediaPath(mediaType)+"/"+url.PathEscape(tmdbID), nil), "detail")
	if err != nil {
		return "", err
	}
	var detail detailResponse
	if err := json.Unmarshal(data, &detail); err != nil {
		return "", models.NewConnectivityError("tmdb", "parse detail", err)
	}
	if detail.PosterPath == "" {
		return "", models.ErrNotFound
	}
	return strings.TrimRight(c.imageBase, "/") + "/" + size + detail.PosterPath, nil
}

// Poster fetches the poster image bytes for a TMDB ID.
func (c *Client) Poster(ctx context.Context, tmdbID, mediaType, size string) ([]byte, error) {
	posterURL, err := c.PosterURL(ctx, tmdbID, mediaType, size)
	if err != nil {
		return nil, err
	}
	return c.get(ctx, posterURL, "poster_image")
}
