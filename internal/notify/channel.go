// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package notify implements the outbound notification channels
// (Telegram, Discord, WeCom) and the concurrent dispatch fan-out.
//
// Each channel kind wraps one upstream API behind the Channel
// interface. Send never panics; every outcome is a DeliveryResult with
// a stable error code and a transient flag the retry loop keys off.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/embywatch/embywatch/internal/models"
)

// Error codes for DeliveryResult. Stable strings, logged and exposed
// through the delivery log API.
const (
	ErrCodeInvalidConfig     = "INVALID_CONFIG"
	ErrCodeAuthFailed        = "AUTH_FAILED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeRecipientNotFound = "RECIPIENT_NOT_FOUND"
	ErrCodeContentRejected   = "CONTENT_REJECTED"
	ErrCodeServerError       = "SERVER_ERROR"
	ErrCodeTimeout           = "TIMEOUT"
	ErrCodeNetworkError      = "NETWORK_ERROR"
	ErrCodeUnknown           = "UNKNOWN"
)

// Message is the payload handed to a channel. Text is always set;
// ImagePNG carries the rendered report image when present, and
// ImageCaption titles it.
type Message struct {
	Text         string
	ImagePNG     []byte
	ImageCaption string
}

// HasImage reports whether the message carries an image payload.
func (m *Message) HasImage() bool { return len(m.ImagePNG) > 0 }

// DeliveryResult is the outcome of one send attempt.
type DeliveryResult struct {
	Success      bool
	ErrorCode    string
	ErrorMessage string

	// IsTransient marks failures worth retrying (timeouts, 5xx,
	// rate limits). Permanent failures (bad token, missing chat)
	// fail fast.
	IsTransient bool

	// RetryAfter is the upstream-requested backoff, zero if none.
	RetryAfter time.Duration

	Timestamp time.Time
}

// successResult builds a successful DeliveryResult.
func successResult() *DeliveryResult {
	return &DeliveryResult{Success: true, Timestamp: time.Now().UTC()}
}

// failureResult builds a failed DeliveryResult.
func failureResult(code, message string, transient bool) *DeliveryResult {
	return &DeliveryResult{
		ErrorCode:    code,
		ErrorMessage: message,
		IsTransient:  transient,
		Timestamp:    time.Now().UTC(),
	}
}

// Channel is one configured outbound messaging integration.
type Channel interface {
	// Kind returns the channel kind tag.
	Kind() models.ChannelKind

	// ConfigID returns the stored configuration ID backing the channel.
	ConfigID() string

	// Send delivers the message. It blocks until the upstream
	// responds or ctx is done and never panics.
	Send(ctx context.Context, msg *Message) *DeliveryResult

	// Test probes upstream connectivity without sending a message.
	Test(ctx context.Context) error
}

// defaultHTTPClient is shared by all channels; per-attempt deadlines
// come from the context.
var defaultHTTPClient = &http.Client{Timeout: 60 * time.Second}

// Build constructs a Channel from a stored messaging configuration.
// Emby and TMDB configs are upstream data sources, not messaging
// channels, and are rejected here.
func Build(cfg *models.ChannelConfig) (Channel, error) {
	switch cfg.Type {
	case models.ChannelKindTelegram:
		return NewTelegramChannel(cfg), nil
	case models.ChannelKindDiscord:
		return NewDiscordChannel(cfg), nil
	case models.ChannelKindWeCom:
		return NewWeComChannel(cfg), nil
	default:
		return nil, fmt.Errorf("channel kind %q cannot deliver messages", cfg.Type)
	}
}

// classifyHTTPStatus maps a generic upstream HTTP status to an error
// code and transient flag. Channel-specific classifiers refine this.
func classifyHTTPStatus(status int) (code string, transient bool) {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrCodeAuthFailed, false
	case status == http.StatusNotFound:
		return ErrCodeRecipientNotFound, false
	case status == http.StatusTooManyRequests:
		return ErrCodeRateLimited, true
	case status >= 500:
		return ErrCodeServerError, true
	case status >= 400:
		return ErrCodeContentRejected, false
	default:
		return ErrCodeUnknown, false
	}
}

// classifyTransportError maps transport-level failures.
func classifyTransportError(err error) (code string, transient bool) {
	if err == nil {
		return "", false
	}
	if ctxErr := contextError(err); ctxErr != "" {
		return ctxErr, true
	}
	return ErrCodeNetworkError, true
}

func contextError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrCodeTimeout
	}
	var t interface{ Timeout() bool }
	if errors.As(err, &t) && t.Timeout() {
		return ErrCodeTimeout
	}
	return ""
}
