// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/store"
)

func testDispatchConfig() config.DispatchConfig {
	return config.DispatchConfig{
		Parallelism: 4,
		MaxRetries:  0,
		BaseDelay:   time.Millisecond,
		SendTimeout: 5 * time.Second,
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open("")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// newWeComBotServer fakes the WeCom group-bot webhook, returning
// errcode 0 when ok is true.
func newWeComBotServer(t *testing.T, ok bool, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		if ok {
			w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
			return
		}
		w.Write([]byte(`{"errcode":93000,"errmsg":"invalid webhook url"}`))
	}))
}

func botChannelConfig(t *testing.T, st *store.Store, name, webhookURL string) *models.ChannelConfig {
	t.Helper()
	cfg := &models.ChannelConfig{
		Name:    name,
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
	return cfg
}

func TestDispatchFanOutIsolation(t *testing.T) {
	st := openTestStore(t)

	okSrv := newWeComBotServer(t, true, nil)
	defer okSrv.Close()
	failSrv := newWeComBotServer(t, false, nil)
	defer failSrv.Close()

	// Three channels: two healthy, one failing in the middle.
	channels := []*models.ChannelConfig{
		botChannelConfig(t, st, "ok-1", okSrv.URL),
		botChannelConfig(t, st, "broken", failSrv.URL),
		botChannelConfig(t, st, "ok-2", okSrv.URL),
	}

	d := NewDispatcher(st, testDispatchConfig())
	report := d.Dispatch(context.Background(), &DispatchRequest{
		Channels: channels,
		Message:  &Message{Text: "hello"},
	})

	if report.Total != 3 || report.Succeeded != 2 || report.Failed != 1 {
		t.Fatalf("report = %d total, %d ok, %d failed; want 3/2/1",
			report.Total, report.Succeeded, report.Failed)
	}

	// One failing channel must not suppress the others' log entries.
	entries, total, err := st.ListDeliveryLogs(context.Background(), store.LogFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if total != 3 || len(entries) != 3 {
		t.Fatalf("got %d log entries, want 3", total)
	}

	byStatus := map[models.DeliveryStatus]int{}
	for _, e := range entries {
		byStatus[e.Status]++
	}
	if byStatus[models.DeliveryStatusSuccess] != 2 || byStatus[models.DeliveryStatusFailed] != 1 {
		t.Fatalf("log statuses = %v, want 2 success / 1 failed", byStatus)
	}
}

func TestDispatchMissingTemplateSkipsChannel(t *testing.T) {
	st := openTestStore(t)

	srv := newWeComBotServer(t, true, nil)
	defer srv.Close()
	cfg := botChannelConfig(t, st, "bot", srv.URL)

	d := NewDispatcher(st, testDispatchConfig())
	report := d.Dispatch(context.Background(), &DispatchRequest{
		Channels:   []*models.ChannelConfig{cfg},
		TemplateID: "deleted-template-id",
		Context:    map[string]any{"user": "alice"},
	})

	if report.Failed != 1 || report.Succeeded != 0 {
		t.Fatalf("report = %+v, want one failure", report)
	}
	if report.Outcomes[0].ErrorCode != "MISSING_REFERENCE" {
		t.Errorf("error code = %q, want MISSING_REFERENCE", report.Outcomes[0].ErrorCode)
	}

	entries, _, err := st.ListDeliveryLogs(context.Background(), store.LogFilter{Limit: 10})
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(entries) != 1 || entries[0].Status != models.DeliveryStatusFailed {
		t.Fatalf("expected one failed log entry, got %+v", entries)
	}
}

func TestDispatchRendersTemplate(t *testing.T) {
	st := openTestStore(t)

	var received atomic.Int32
	srv := newWeComBotServer(t, true, &received)
	defer srv.Close()
	cfg := botChannelConfig(t, st, "bot", srv.URL)

	tmpl := &models.NotificationTemplate{
		Name:            "greeting",
		Channel:         "wecom",
		TemplateContent: "Hello {user}!",
	}
	if err := st.CreateTemplate(context.Background(), tmpl); err != nil {
		t.Fatalf("create template: %v", err)
	}

	d := NewDispatcher(st, testDispatchConfig())
	report := d.Dispatch(context.Background(), &DispatchRequest{
		Channels:   []*models.ChannelConfig{cfg},
		TemplateID: tmpl.ID,
		Context:    map[string]any{"user": "alice"},
	})

	if report.Succeeded != 1 {
		t.Fatalf("report = %+v, want one success", report)
	}
	if received.Load() != 1 {
		t.Fatalf("upstream hit %d times, want 1", received.Load())
	}

	entries, _, _ := st.ListDeliveryLogs(context.Background(), store.LogFilter{Limit: 1})
	if entries[0].MessageContent != "Hello alice!" {
		t.Errorf("logged content = %q, want rendered template", entries[0].MessageContent)
	}
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	st := openTestStore(t)

	var hits atomic.Int32
	// Fails with a 500 once, then succeeds.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"errcode":-1,"errmsg":"system busy"}`))
			return
		}
		w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	cfg := botChannelConfig(t, st, "flaky", srv.URL)

	dcfg := testDispatchConfig()
	dcfg.MaxRetries = 2
	d := NewDispatcher(st, dcfg)

	report := d.Dispatch(context.Background(), &DispatchRequest{
		Channels: []*models.ChannelConfig{cfg},
		Message:  &Message{Text: "retry me"},
	})

	if report.Succeeded != 1 {
		t.Fatalf("report = %+v, want success after retry", report)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hit %d times, want 2", hits.Load())
	}
}

func TestDispatchSinkReceivesEntries(t *testing.T) {
	st := openTestStore(t)

	srv := newWeComBotServer(t, true, nil)
	defer srv.Close()
	cfg := botChannelConfig(t, st, "bot", srv.URL)

	var seen atomic.Int32
	d := NewDispatcher(st, testDispatchConfig())
	d.AddSink(func(entry *models.DeliveryLogEntry) {
		seen.Add(1)
	})

	d.Dispatch(context.Background(), &DispatchRequest{
		Channels: []*models.ChannelConfig{cfg},
		Message:  &Message{Text: "observed"},
	})

	if seen.Load() != 1 {
		t.Fatalf("sink saw %d entries, want 1", seen.Load())
	}
}
