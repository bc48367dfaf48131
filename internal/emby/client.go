// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package emby wraps the Emby server REST API behind a circuit breaker.
// Playback statistics come from the Playback Reporting plugin's custom
// query endpoint; cover art comes from the item image endpoint.
package emby

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

// maxImageBytes bounds a fetched cover image.
const maxImageBytes = 8 << 20

// Client is the Emby API client. All calls go through a shared circuit
// breaker so a down server fails fast instead of piling up timeouts.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[[]byte]
}

// New builds a client for the given server. The breaker opens after a
// 60% failure rate across at least 10 requests and probes again after
// two minutes.
func New(serverURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cbName := "emby-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	log := logging.WithComponent("emby")
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
		baseURL: strings.TrimRight(serverURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
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

// get executes a GET through the breaker and returns the raw body.
func (c *Client) get(ctx context.Context, path string, query url.Values, operation string) ([]byte, error) {
	return c.execute(ctx, http.MethodGet, path, query, nil, "", operation)
}

func (c *Client) execute(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType, operation string) ([]byte, error) {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api_key", c.apiKey)
	fullURL := c.baseURL + path + "?" + query.Encode()

	data, err := c.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		start := time.Now()
		resp, err := c.client.Do(req)
		metrics.ObserveUpstream("emby", operation, time.Since(start), err)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, models.ErrNotFound
		}
		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return nil, fmt.Errorf("%s returned %d", operation, resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, models.NewConnectivityError("emby", "circuit open", err)
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, models.NewConnectivityError("emby", operation, err)
	}
	return data, nil
}

// SystemInfo is the subset of System/Info the service consumes.
type SystemInfo struct {
	ServerName string `json:"ServerName"`
	Version    string `json:"Version"`
	ID         string `json:"Id"`
}

// Ping fetches System/Info, verifying both reachability and the API
// key.
func (c *Client) Ping(ctx context.Context) (*SystemInfo, error) {
	data, err := c.get(ctx, "/emby/System/Info", nil, "system_info")
	if err != nil {
		return nil, err
	}
	var info SystemInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, models.NewConnectivityError("emby", "parse system info", err)
	}
	return &info, nil
}

// QueryResult is the Playback Reporting plugin's tabular response.
type QueryResult struct {
	Columns []string   `json:"colums"` // sic: the plugin misspells the field
	Results [][]string `json:"results"`
}

// CustomQuery runs a SQL query against the Playback Reporting plugin's
// activity database.
func (c *Client) CustomQuery(ctx context.Context, sql string) (*QueryResult, error) {
	payload, err := json.Marshal(map[string]string{
		"CustomQueryString": sql,
		"ReplaceUserId":     "true",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	data, err := c.execute(ctx, http.MethodPost, "/emby/user_usage_stats/submit_custom_query",
		nil, strings.NewReader(string(payload)), "application/json", "custom_query")
	if err != nil {
		return nil, err
	}

	var result QueryResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, models.NewConnectivityError("emby", "parse query result", err)
	}
	return &result, nil
}

// PrimaryImage fetches an item's primary cover art, resized server-side.
// Missing art returns models.ErrNotFound.
func (c *Client) PrimaryImage(ctx context.Context, itemID string, maxWidth int) ([]byte, error) {
	query := url.Values{}
	if maxWidth > 0 {
		query.Set("maxWidth", fmt.Sprintf("%d", maxWidth))
	}
	return c.get(ctx, "/emby/Items/"+url.PathEscape(itemID)+"/Images/Primary", query, "primary_image")
}

// itemsEnvelope wraps the Items listing response.
type itemsEnvelope struct {
	Items []struct {
		ID          string            `json:"Id"`
		Name        string            `json:"Name"`
		Type        string            `json:"Type"`
		ProviderIDs map[string]string `json:"ProviderIds"`
	} `json:"Items"`
}

// ProviderIDs returns an item's external metadata IDs (Tmdb, Imdb, …),
// used to resolve TMDB posters.
func (c *Client) ProviderIDs(ctx context.Context, itemID string) (map[string]string, error) {
	query := url.Values{}
	query.Set("Ids", itemID)
	query.Set("Fields", "ProviderIds")

	data, err := c.get(ctx, "/emby/Items", query, "items")
	if err != nil {
		return nil, err
	}
	var envelope itemsEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, models.NewConnectivityError("emby", "parse items", err)
	}
	if len(envelope.Items) == 0 {
		return nil, models.ErrNotFound
	}
	return envelope.Items[0].ProviderIDs, nil
}
