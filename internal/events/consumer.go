// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/store"
)

// eventTemplateNames maps each event kind onto the template selected
// for it. These match the seeded defaults; admins can edit the
// templates in place to change the wording.
var eventTemplateNames = map[models.EmbyEventKind]string{
	models.EmbyEventPlaybackStart: "Playback Started",
	models.EmbyEventPlaybackStop:  "Playback Stopped",
	models.EmbyEventUserNew:       "New User Registration",
	models.EmbyEventServer:        "Server Event",
}

// Consumer turns webhook events into notification dispatches.
type Consumer struct {
	bus        *Bus
	store      *store.Store
	dispatcher *notify.Dispatcher
	logger     zerolog.Logger
}

// NewConsumer creates the consumer. Call Run to start it.
func NewConsumer(bus *Bus, st *store.Store, dispatcher *notify.Dispatcher) *Consumer {
	return &Consumer{
		bus:        bus,
		store:      st,
		dispatcher: dispatcher,
		logger:     logging.WithComponent("events"),
	}
}

// Run consumes events until ctx is canceled or the bus closes.
func (c *Consumer) Run(ctx context.Context) error {
	messages, err := c.bus.Subscribe(ctx, TopicEmbyEvents)
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", TopicEmbyEvents, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			if err := c.handleMessage(ctx, msg); err != nil {
				c.logger.Error().Err(err).
					Str("message_uuid", msg.UUID).
					Msg("event processing failed")
			}
			msg.Ack()
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg *message.Message) error {
	var event models.EmbyWebhookEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}
	return c.HandleEvent(ctx, &event)
}

// HandleEvent dispatches one event to notification channels, honoring
// the global enable flag and the per-event toggles.
func (c *Consumer) HandleEvent(ctx context.Context, event *models.EmbyWebhookEvent) error {
	settings, err := c.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.Enabled || !eventEnabled(&settings.Events, event.Event) {
		c.logger.Debug().Str("event", string(event.Event)).Msg("event suppressed by settings")
		return nil
	}

	enabled := true
	channels, err := c.store.ListChannels(ctx, store.ChannelFilter{Enabled: &enabled})
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	channels = messagingOnly(channels)
	if len(channels) == 0 {
		c.logger.Debug().Str("event", string(event.Event)).Msg("no enabled channels for event")
		return nil
	}

	req := &notify.DispatchRequest{
		Channels: channels,
		Context:  event.TemplateContext(),
	}
	if tpl, err := c.eventTemplate(ctx, event.Event); err == nil {
		req.TemplateID = tpl.ID
	} else {
		// No template for this event: fall back to a terse built-in
		// line rather than dropping the notification.
		req.Message = &notify.Message{Text: fallbackText(event)}
	}

	report := c.dispatcher.Dispatch(ctx, req)
	c.logger.Info().
		Str("event", string(event.Event)).
		Int("channels", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("event notification dispatched")
	return nil
}

func (c *Consumer) eventTemplate(ctx context.Context, kind models.EmbyEventKind) (*models.NotificationTemplate, error) {
	name, ok := eventTemplateNames[kind]
	if !ok {
		return nil, models.ErrNotFound
	}
	tpl, err := c.store.FindTemplateByName(ctx, name)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		c.logger.Warn().Err(err).Str("template", name).Msg("template lookup failed")
	}
	return tpl, err
}

func eventEnabled(toggles *models.EventToggles, kind models.EmbyEventKind) bool {
	switch kind {
	case models.EmbyEventPlaybackStart:
		return toggles.PlaybackStart
	case models.EmbyEventPlaybackStop:
		return toggles.PlaybackStop
	case models.EmbyEventUserNew:
		return toggles.NewUser
	case models.EmbyEventServer:
		return toggles.ServerEvents
	}
	return false
}

// messagingOnly drops data-source channel kinds, which cannot receive
// notifications.
func messagingOnly(channels []*models.ChannelConfig) []*models.ChannelConfig {
	var out []*models.ChannelConfig
	for _, ch := range channels {
		switch ch.Type {
		case models.ChannelKindEmby, models.ChannelKindTMDB:
			continue
		default:
			out = append(out, ch)
		}
	}
	return out
}

func fallbackText(event *models.EmbyWebhookEvent) string {
	switch event.Event {
	case models.EmbyEventUserNew:
		return fmt.Sprintf("New user %s on %s", event.User.Name, event.Server.Name)
	case models.EmbyEventServer:
		return fmt.Sprintf("Server event on %s", event.Server.Name)
	default:
		return fmt.Sprintf("%s: %s (%s)", event.User.Name, event.DisplayTitle(), event.Event)
	}
}
