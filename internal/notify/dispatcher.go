// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/store"
	"github.com/embywatch/embywatch/internal/template"
)

// maxBackoff caps the exponential retry delay.
const maxBackoff = 30 * time.Second

// LogSink receives every appended delivery-log entry. The websocket
// feed registers one to stream outcomes live.
type LogSink func(entry *models.DeliveryLogEntry)

// Dispatcher fans a message out to multiple channels concurrently.
// Channel failures are isolated: every target produces exactly one
// delivery-log entry regardless of other targets' outcomes.
type Dispatcher struct {
	store  *store.Store
	logger zerolog.Logger

	parallelism int
	maxRetries  int
	baseDelay   time.Duration
	sendTimeout time.Duration
	ratePerSec  float64

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	sinks    []LogSink
}

// NewDispatcher builds a Dispatcher from the dispatch configuration.
func NewDispatcher(st *store.Store, cfg config.DispatchConfig) *Dispatcher {
	return &Dispatcher{
		store:       st,
		logger:      logging.WithComponent("dispatch"),
		parallelism: cfg.Parallelism,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   cfg.BaseDelay,
		sendTimeout: cfg.SendTimeout,
		ratePerSec:  cfg.RatePerSecond,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// AddSink registers a delivery-log observer.
func (d *Dispatcher) AddSink(sink LogSink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sinks = append(d.sinks, sink)
}

// DispatchRequest is one fan-out. When TemplateID is set the message
// text is rendered per channel from the stored template; a deleted
// template skips the channel with a logged failure. Otherwise Message
// is sent as-is.
type DispatchRequest struct {
	Channels   []*models.ChannelConfig
	TemplateID string
	Context    map[string]any
	Message    *Message
}

// DispatchReport aggregates one fan-out.
type DispatchReport struct {
	Total       int              `json:"total"`
	Succeeded   int              `json:"succeeded"`
	Failed      int              `json:"failed"`
	DurationMS  int64            `json:"duration_ms"`
	Outcomes    []ChannelOutcome `json:"outcomes"`
	CompletedAt time.Time        `json:"completed_at"`
}

// ChannelOutcome is one channel's result within a fan-out.
type ChannelOutcome struct {
	ConfigID     string `json:"config_id"`
	ChannelKind  string `json:"channel_kind"`
	Success      bool   `json:"success"`
	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// Dispatch fans req out to all its channels and blocks until every
// outcome is logged. It never returns an error: failures live in the
// report and the delivery log.
func (d *Dispatcher) Dispatch(ctx context.Context, req *DispatchRequest) *DispatchReport {
	started := time.Now()
	report := &DispatchReport{Total: len(req.Channels)}

	d.logger.Info().
		Int("channels", len(req.Channels)).
		Str("template_id", req.TemplateID).
		Msg("starting dispatch")

	if len(req.Channels) == 0 {
		report.CompletedAt = time.Now().UTC()
		return report
	}

	jobs := make(chan *models.ChannelConfig, len(req.Channels))
	results := make(chan ChannelOutcome, len(req.Channels))

	workers := d.parallelism
	if workers > len(req.Channels) {
		workers = len(req.Channels)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cfg := range jobs {
				results <- d.deliverToChannel(ctx, req, cfg)
			}
		}()
	}
	for _, cfg := range req.Channels {
		jobs <- cfg
	}
	close(jobs)
	wg.Wait()
	close(results)

	for outcome := range results {
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}

	report.CompletedAt = time.Now().UTC()
	report.DurationMS = time.Since(started).Milliseconds()

	d.logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Int64("duration_ms", report.DurationMS).
		Msg("dispatch completed")

	return report
}

// deliverToChannel handles one channel end to end: message resolution,
// the retry loop, and the delivery-log append.
func (d *Dispatcher) deliverToChannel(ctx context.Context, req *DispatchRequest, cfg *models.ChannelConfig) ChannelOutcome {
	started := time.Now()

	msg, resolveErr := d.resolveMessage(ctx, req)
	if resolveErr != nil {
		// Deleted template: skip with a logged failure, never crash
		// the rest of the fan-out.
		d.logger.Warn().
			Err(resolveErr).
			Str("config_id", cfg.ID).
			Str("channel", string(cfg.Type)).
			Msg("skipping channel: message resolution failed")
		return d.record(ctx, req, cfg, "", &DeliveryResult{
			ErrorCode:    models.ErrorCode(resolveErr),
			ErrorMessage: resolveErr.Error(),
			Timestamp:    time.Now().UTC(),
		}, started)
	}

	channel, err := Build(cfg)
	if err != nil {
		return d.record(ctx, req, cfg, msg.Text, &DeliveryResult{
			ErrorCode:    ErrCodeInvalidConfig,
			ErrorMessage: err.Error(),
			Timestamp:    time.Now().UTC(),
		}, started)
	}

	result := d.sendWithRetries(ctx, channel, msg)
	return d.record(ctx, req, cfg, msg.Text, result, started)
}

// resolveMessage renders the template when one is referenced, falling
// back to the prebuilt message.
func (d *Dispatcher) resolveMessage(ctx context.Context, req *DispatchRequest) (*Message, error) {
	if req.TemplateID == "" {
		if req.Message == nil {
			return &Message{}, nil
		}
		return req.Message, nil
	}

	tmpl, err := d.store.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, models.NewMissingReferenceError("template", req.TemplateID)
	}

	text := template.Render(tmpl.TemplateContent, req.Context)
	msg := &Message{Text: text}
	if req.Message != nil {
		msg.ImagePNG = req.Message.ImagePNG
		msg.ImageCaption = req.Message.ImageCaption
	}
	return msg, nil
}

// sendWithRetries runs the per-channel retry loop with exponential
// backoff, honoring upstream RetryAfter hints.
func (d *Dispatcher) sendWithRetries(ctx context.Context, channel Channel, msg *Message) *DeliveryResult {
	var last *DeliveryResult

	for attempt := 0; attempt <= d.maxRetries; attempt++ {
		if attempt > 0 {
			delay := d.backoff(attempt, last)
			d.logger.Debug().
				Str("channel", string(channel.Kind())).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("retrying delivery after delay")
			metrics.DeliveryRetries.WithLabelValues(string(channel.Kind())).Inc()

			select {
			case <-ctx.Done():
				return failureResult(ErrCodeTimeout, "dispatch canceled", false)
			case <-time.After(delay):
			}
		}

		if err := d.waitLimiter(ctx, channel.ConfigID()); err != nil {
			return failureResult(ErrCodeTimeout, "dispatch canceled", false)
		}

		sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
		result := channel.Send(sendCtx, msg)
		cancel()

		last = result
		if result.Success {
			return result
		}
		if !result.IsTransient {
			d.logger.Warn().
				Str("channel", string(channel.Kind())).
				Str("error_code", result.ErrorCode).
				Str("error", result.ErrorMessage).
				Msg("permanent delivery error, not retrying")
			return result
		}
	}
	return last
}

// backoff returns the delay before the next attempt, preferring the
// upstream's RetryAfter when present.
func (d *Dispatcher) backoff(attempt int, last *DeliveryResult) time.Duration {
	if last != nil && last.RetryAfter > 0 {
		return last.RetryAfter
	}
	delay := d.baseDelay * (1 << uint(attempt-1))
	if delay > maxBackoff {
		delay = maxBackoff
	}
	return delay
}

// waitLimiter applies the per-channel outbound rate limit.
func (d *Dispatcher) waitLimiter(ctx context.Context, configID string) error {
	if d.ratePerSec <= 0 {
		return nil
	}
	d.mu.Lock()
	limiter, ok := d.limiters[configID]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(d.ratePerSec), 1)
		d.limiters[configID] = limiter
	}
	d.mu.Unlock()
	return limiter.Wait(ctx)
}

// record appends the delivery-log entry, updates metrics and notifies
// sinks, then converts the result into a ChannelOutcome.
func (d *Dispatcher) record(ctx context.Context, req *DispatchRequest, cfg *models.ChannelConfig, content string, result *DeliveryResult, started time.Time) ChannelOutcome {
	status := models.DeliveryStatusFailed
	errMsg := result.ErrorMessage
	if result.Success {
		status = models.DeliveryStatusSuccess
		errMsg = ""
	} else if result.ErrorCode != "" {
		errMsg = result.ErrorCode + ": " + result.ErrorMessage
	}

	entry := &models.DeliveryLogEntry{
		ConfigID:       cfg.ID,
		TemplateID:     req.TemplateID,
		MessageContent: content,
		Status:         status,
		ErrorMessage:   errMsg,
		SentAt:         time.Now().UTC(),
	}
	if err := d.store.AppendDeliveryLog(ctx, entry); err != nil {
		d.logger.Error().Err(err).Str("config_id", cfg.ID).Msg("failed to append delivery log")
	}

	metrics.ObserveDelivery(string(cfg.Type), string(status), time.Since(started))

	d.mu.Lock()
	sinks := d.sinks
	d.mu.Unlock()
	for _, sink := range sinks {
		sink(entry)
	}

	return ChannelOutcome{
		ConfigID:     cfg.ID,
		ChannelKind:  string(cfg.Type),
		Success:      result.Success,
		ErrorCode:    result.ErrorCode,
		ErrorMessage: result.ErrorMessage,
	}
}
