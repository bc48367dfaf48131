// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package events

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func newDispatcher(st *store.Store) *notify.Dispatcher {
	return notify.NewDispatcher(st, config.DispatchConfig{
		Parallelism: 2,
		MaxRetries:  0,
		BaseDelay:   time.Millisecond,
		SendTimeout: 2 * time.Second,
	})
}

// newBotServer counts WeCom bot webhook hits and records the last text.
func newBotServer(t *testing.T) (*httptest.Server, *atomic.Int32, *atomic.Value) {
	t.Helper()
	var hits atomic.Int32
	var lastBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body := make([]byte, r.ContentLength)
		r.Body.Read(body)
		lastBody.Store(string(body))
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	t.Cleanup(server.Close)
	return server, &hits, &lastBody
}

func seedBotChannel(t *testing.T, st *store.Store, webhookURL string) {
	t.Helper()
	cfg := &models.ChannelConfig{
		Name:    "ops bot",
		Type:    models.ChannelKindWeCom,
		Enabled: true,
		WeCom: &models.WeComConfig{
			Mode:       models.WeComModeBot,
			WebhookURL: webhookURL,
		},
	}
	if err := st.CreateChannel(context.Background(), cfg); err != nil {
		t.Fatalf("create channel: %v", err)
	}
}

func enableEvents(t *testing.T, st *store.Store, toggles models.EventToggles) {
	t.Helper()
	settings, err := st.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	settings.Enabled = true
	settings.Events = toggles
	if err := st.SaveSettings(context.Background(), settings); err != nil {
		t.Fatalf("save settings: %v", err)
	}
}

func playbackStopEvent() *models.EmbyWebhookEvent {
	event := &models.EmbyWebhookEvent{Event: models.EmbyEventPlaybackStop}
	event.User.Name = "alice"
	event.Item.Name = "Dune"
	event.Item.Type = "Movie"
	event.Server.Name = "living-room"
	event.Date = time.Now()
	return event
}

func TestBusRoundTrip(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := bus.Subscribe(ctx, TopicEmbyEvents)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := bus.PublishEvent(ctx, playbackStopEvent()); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	select {
	case msg := <-messages:
		if msg.Metadata.Get("event") != "playback.stop" {
			t.Errorf("event metadata = %q", msg.Metadata.Get("event"))
		}
		msg.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestHandleEventDispatchesToEnabledChannels(t *testing.T) {
	st := openTestStore(t)
	if err := st.SeedDefaultTemplates(context.Background()); err != nil {
		t.Fatalf("seed templates: %v", err)
	}
	server, hits, lastBody := newBotServer(t)
	seedBotChannel(t, st, server.URL)
	enableEvents(t, st, models.EventToggles{PlaybackStop: true})

	consumer := NewConsumer(NewBus(), st, newDispatcher(st))
	if err := consumer.HandleEvent(context.Background(), playbackStopEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("webhook hits = %d, want 1", hits.Load())
	}
	body, _ := lastBody.Load().(string)
	if !strings.Contains(body, "alice") || !strings.Contains(body, "Dune") {
		t.Errorf("rendered body missing event fields: %s", body)
	}
}

func TestHandleEventSuppressedByToggle(t *testing.T) {
	st := openTestStore(t)
	server, hits, _ := newBotServer(t)
	seedBotChannel(t, st, server.URL)
	enableEvents(t, st, models.EventToggles{PlaybackStop: false})

	consumer := NewConsumer(NewBus(), st, newDispatcher(st))
	if err := consumer.HandleEvent(context.Background(), playbackStopEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if hits.Load() != 0 {
		t.Errorf("suppressed event reached the webhook %d times", hits.Load())
	}
}

func TestHandleEventFallbackWithoutTemplate(t *testing.T) {
	st := openTestStore(t)
	server, hits, lastBody := newBotServer(t)
	seedBotChannel(t, st, server.URL)
	enableEvents(t, st, models.EventToggles{PlaybackStop: true})

	consumer := NewConsumer(NewBus(), st, newDispatcher(st))
	if err := consumer.HandleEvent(context.Background(), playbackStopEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("webhook hits = %d, want 1", hits.Load())
	}
	body, _ := lastBody.Load().(string)
	if !strings.Contains(body, "Dune") {
		t.Errorf("fallback body missing title: %s", body)
	}
}

func TestConsumerRunProcessesPublishedEvents(t *testing.T) {
	st := openTestStore(t)
	if err := st.SeedDefaultTemplates(context.Background()); err != nil {
		t.Fatalf("seed templates: %v", err)
	}
	server, hits, _ := newBotServer(t)
	seedBotChannel(t, st, server.URL)
	enableEvents(t, st, models.EventToggles{PlaybackStop: true})

	bus := NewBus()
	defer bus.Close()
	consumer := NewConsumer(bus, st, newDispatcher(st))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		consumer.Run(ctx)
	}()

	if err := bus.PublishEvent(ctx, playbackStopEvent()); err != nil {
		t.Fatalf("PublishEvent: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for hits.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("event never reached the webhook")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done
}
