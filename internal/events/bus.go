// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package events carries Emby webhook events from the HTTP intake to
// the notification consumer over an in-process pub/sub bus.
package events

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/models"
)

// TopicEmbyEvents carries parsed webhook events.
const TopicEmbyEvents = "emby.events"

// Bus wraps an in-process Watermill pub/sub. Persistent brokers are
// overkill for a single-process service; the gochannel transport keeps
// the same publish/subscribe seam without external infrastructure.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the bus. Buffering keeps webhook handlers fast even
// while a consumer is mid-delivery.
func NewBus() *Bus {
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer: 64,
			Persistent:          false,
		},
		newLoggerAdapter(logging.WithComponent("events")),
	)
	return &Bus{pubsub: pubsub}
}

// PublishEvent marshals and publishes one webhook event.
func (b *Bus) PublishEvent(ctx context.Context, event *models.EmbyWebhookEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event", string(event.Event))
	return b.pubsub.Publish(TopicEmbyEvents, msg)
}

// Subscribe returns the message stream for a topic. The channel closes
// when ctx is canceled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// loggerAdapter bridges Watermill's logging interface onto zerolog.
type loggerAdapter struct {
	log zerolog.Logger
}

func newLoggerAdapter(log zerolog.Logger) watermill.LoggerAdapter {
	return &loggerAdapter{log: log}
}

func (a *loggerAdapter) withFields(fields watermill.LogFields) zerolog.Logger {
	ctx := a.log.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return ctx.Logger()
}

func (a *loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	log := a.withFields(fields)
	log.Error().Err(err).Msg(msg)
}

func (a *loggerAdapter) Info(msg string, fields watermill.LogFields) {
	log := a.withFields(fields)
	log.Debug().Msg(msg)
}

func (a *loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	log := a.withFields(fields)
	log.Debug().Msg(msg)
}

func (a *loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	log := a.withFields(fields)
	log.Trace().Msg(msg)
}

func (a *loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &loggerAdapter{log: a.withFields(fields)}
}
