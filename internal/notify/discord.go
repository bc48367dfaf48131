// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
)

// discordEmbedColor is the blue accent used on report embeds.
const discordEmbedColor = 3447003

// discordMaxDescriptionLen is Discord's embed description limit.
const discordMaxDescriptionLen = 4096

// DiscordChannel delivers messages through a Discord incoming webhook.
// Text goes out as an embed; report images attach as a file referenced
// by the embed.
type DiscordChannel struct {
	configID string
	cfg      models.DiscordConfig
	client   *http.Client
}

// NewDiscordChannel builds a Discord channel from a stored config.
func NewDiscordChannel(stored *models.ChannelConfig) *DiscordChannel {
	return &DiscordChannel{
		configID: stored.ID,
		cfg:      *stored.Discord,
		client:   defaultHTTPClient,
	}
}

// Kind returns the channel kind tag.
func (c *DiscordChannel) Kind() models.ChannelKind { return models.ChannelKindDiscord }

// ConfigID returns the stored configuration ID.
func (c *DiscordChannel) ConfigID() string { return c.configID }

type discordEmbed struct {
	Title       string             `json:"title,omitempty"`
	Description string             `json:"description,omitempty"`
	Color       int                `json:"color"`
	Image       *discordEmbedImage `json:"image,omitempty"`
	Timestamp   string             `json:"timestamp,omitempty"`
}

type discordEmbedImage struct {
	URL string `json:"url"`
}

type discordWebhookPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

// Send posts to the webhook. Discord returns 204 No Content on success.
func (c *DiscordChannel) Send(ctx context.Context, msg *Message) *DeliveryResult {
	embed := discordEmbed{
		Title:       msg.ImageCaption,
		Description: truncateRunesafe(msg.Text, discordMaxDescriptionLen),
		Color:       discordEmbedColor,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}

	var req *http.Request
	var err error
	if msg.HasImage() {
		embed.Image = &discordEmbedImage{URL: "attachment://report.png"}
		req, err = c.multipartRequest(ctx, discordWebhookPayload{Embeds: []discordEmbed{embed}}, msg.ImagePNG)
	} else {
		req, err = c.jsonRequest(ctx, discordWebhookPayload{Embeds: []discordEmbed{embed}})
	}
	if err != nil {
		return failureResult(ErrCodeUnknown, err.Error(), false)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveUpstream("discord", "webhook", time.Since(start), err)
	if err != nil {
		code, transient := classifyTransportError(err)
		return failureResult(code, fmt.Sprintf("webhook: %v", err), transient)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return successResult()
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	code, transient := classifyHTTPStatus(resp.StatusCode)
	result := failureResult(code, fmt.Sprintf("webhook returned %d: %s", resp.StatusCode, body), transient)
	if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
		if secs, err := strconv.ParseFloat(retryAfter, 64); err == nil && secs > 0 {
			result.RetryAfter = time.Duration(secs * float64(time.Second))
		}
	}
	return result
}

func (c *DiscordChannel) jsonRequest(ctx context.Context, payload discordWebhookPayload) (*http.Request, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// multipartRequest builds the payload_json + file form Discord expects
// for attachments.
func (c *DiscordChannel) multipartRequest(ctx context.Context, payload discordWebhookPayload, image []byte) (*http.Request, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	if err := mw.WriteField("payload_json", string(payloadJSON)); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	part, err := mw.CreateFormFile("files[0]", "report.png")
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req, nil
}

// Test issues a GET against the webhook URL; Discord returns the
// webhook object for valid URLs without posting anything.
func (c *DiscordChannel) Test(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.WebhookURL, nil)
	if err != nil {
		return models.NewConnectivityError("discord", "create request", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveUpstream("discord", "webhook_info", time.Since(start), err)
	if err != nil {
		return models.NewConnectivityError("discord", "webhook lookup", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.NewConnectivityError("discord",
			fmt.Sprintf("webhook lookup returned %d", resp.StatusCode), nil)
	}
	return nil
}
