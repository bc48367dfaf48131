// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package api

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/embywatch/embywatch/internal/auth"
	"github.com/embywatch/embywatch/internal/config"
	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/notify"
	"github.com/embywatch/embywatch/internal/report"
	"github.com/embywatch/embywatch/internal/store"
)

// fakeStats satisfies report.StatsSource without a live Emby server.
type fakeStats struct{}

func (fakeStats) PlaybackSummary(ctx context.Context, start, end time.Time) (*models.ReportSummary, error) {
	return &models.ReportSummary{TotalPlays: 10, TotalHours: 7.5, TotalTitles: 4}, nil
}

func (fakeStats) TopContent(ctx context.Context, start, end time.Time, limit int) ([]models.ReportItem, error) {
	return []models.ReportItem{{Name: "Dune", Type: "Movie", PlayCount: 3, Hours: 4.2}}, nil
}

func (fakeStats) TopUsers(ctx context.Context, start, end time.Time, limit int) ([]models.ReportUser, error) {
	return nil, nil
}

func (fakeStats) TypeStats(ctx context.Context, start, end time.Time) ([]models.TypeStat, error) {
	return nil, nil
}

type testEnv struct {
	server  *Server
	router  http.Handler
	store   *store.Store
	cfg     *config.Config
}

func newTestEnv(t *testing.T, mutate func(*config.Config)) *testEnv {
	t.Helper()

	st, err := store.Open("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	dispatcher := notify.NewDispatcher(st, config.DispatchConfig{
		Parallelism: 2,
		MaxRetries:  0,
		BaseDelay:   time.Millisecond,
		SendTimeout: 2 * time.Second,
	})

	renderer, err := report.NewRenderer(nil)
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	reports := report.NewService(report.NewGenerator(fakeStats{}), renderer, st, dispatcher)

	var jwtManager *auth.JWTManager
	if cfg.Security.AuthEnabled() {
		jwtManager, err = auth.NewJWTManager(&cfg.Security)
		if err != nil {
			t.Fatalf("new jwt manager: %v", err)
		}
	}

	srv := NewServer(cfg, st, dispatcher, reports, nil, nil, nil, jwtManager, nil, nil)
	return &testEnv{server: srv, router: srv.Routes(), store: st, cfg: cfg}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) *models.APIResponse {
	t.Helper()
	var envelope models.APIResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v (body %s)", err, rec.Body.String())
	}
	return &envelope
}

func telegramBody() map[string]interface{} {
	return map[string]interface{}{
		"name":    "house bot",
		"type":    "telegram",
		"enabled": true,
		"telegram": map[string]string{
			"bot_token": "123456:ABCDEF-secret-token",
			"chat_id":   "-100200300",
		},
	}
}

func TestChannelUpdateFromRedactedGet(t *testing.T) {
	env := newTestEnv(t, nil)
	body := map[string]interface{}{
		"name":    "wecom app",
		"type":    "wecom",
		"enabled": true,
		"wecom": map[string]string{
			"mode":        "app",
			"corp_id":     "ww00000001",
			"corp_secret": "very-long-corp-secret-value",
			"agent_id":    "1000002",
		},
	}
	rec := env.do(t, http.MethodPost, "/api/channels/", body, nil)
	envelope := decodeEnvelope(t, rec)
	created, _ := envelope.Data.(map[string]interface{})
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created channel has no id: %s", rec.Body.String())
	}

	// Fetch the redacted document, toggle a flag and PUT it straight
	// back, exactly as a UI edit form does.
	rec = env.do(t, http.MethodGet, "/api/channels/"+id, nil, nil)
	fetched, _ := decodeEnvelope(t, rec).Data.(map[string]interface{})
	fetched["enabled"] = false
	rec = env.do(t, http.MethodPut, "/api/channels/"+id, fetched, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	stored, err := env.store.GetChannel(context.Background(), id)
	if err != nil {
		t.Fatalf("get stored channel: %v", err)
	}
	if stored.Enabled {
		t.Error("enabled flag not updated")
	}
	if stored.WeCom.CorpSecret != "very-long-corp-secret-value" {
		t.Errorf("stored corp_secret corrupted to %q", stored.WeCom.CorpSecret)
	}
}

func TestHealthEnvelope(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	if envelope.Status != "success" {
		t.Errorf("envelope status = %q", envelope.Status)
	}
	if envelope.Metadata.Timestamp.IsZero() {
		t.Error("metadata timestamp missing")
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("ETag header missing")
	}
}

func TestCreateChannelMasksSecrets(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/channels/", telegramBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Contains(body, "ABCDEF-secret-token") {
		t.Error("bot token echoed in plaintext")
	}
	masked := models.MaskSecret("123456:ABCDEF-secret-token")
	if !strings.Contains(body, masked) {
		t.Errorf("masked token %q missing: %s", masked, body)
	}
}

func TestCreateChannelValidationError(t *testing.T) {
	env := newTestEnv(t, nil)
	body := telegramBody()
	delete(body, "telegram")

	rec := env.do(t, http.MethodPost, "/api/channels/", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	if envelope.Status != "error" || envelope.Error == nil {
		t.Fatalf("expected error envelope, got %s", rec.Body.String())
	}
	if envelope.Error.Code != "VALIDATION_ERROR" {
		t.Errorf("code = %q", envelope.Error.Code)
	}
}

func TestChannelCRUD(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/channels/", telegramBody(), nil)
	envelope := decodeEnvelope(t, rec)
	created, _ := envelope.Data.(map[string]interface{})
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("created channel has no id: %s", rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/channels/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	update := telegramBody()
	update["name"] = "renamed bot"
	rec = env.do(t, http.MethodPut, "/api/channels/"+id, update, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodDelete, "/api/channels/"+id, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/channels/"+id, nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
	envelope = decodeEnvelope(t, rec)
	if envelope.Error == nil || envelope.Error.Code != "NOT_FOUND" {
		t.Errorf("error = %+v", envelope.Error)
	}
}

func TestTemplateRenderMissingKeysEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/notification-templates/", map[string]string{
		"name":             "greeting",
		"channel":          "telegram",
		"template_content": "Hello {user}, enjoy {item}!",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create template = %d: %s", rec.Code, rec.Body.String())
	}
	envelope := decodeEnvelope(t, rec)
	created, _ := envelope.Data.(map[string]interface{})
	id, _ := created["id"].(string)

	rec = env.do(t, http.MethodPost, "/api/notification-templates/"+id+"/render",
		map[string]interface{}{"context": map[string]string{"user": "alice"}}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("render = %d: %s", rec.Code, rec.Body.String())
	}
	envelope = decodeEnvelope(t, rec)
	result, _ := envelope.Data.(map[string]interface{})
	if result["content"] != "Hello alice, enjoy !" {
		t.Errorf("content = %q", result["content"])
	}
}

func TestStatisticsZeroSafe(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/statistics", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	envelope := decodeEnvelope(t, rec)
	stats, _ := envelope.Data.(map[string]interface{})
	if rate, _ := stats["success_rate"].(float64); rate != 0 {
		t.Errorf("success_rate = %v, want 0", rate)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(t, http.MethodGet, "/api/config/notification", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}

	settings := models.DefaultNotificationSettings()
	settings.Enabled = true
	settings.Events.PlaybackStart = true
	rec = env.do(t, http.MethodPost, "/api/config/notification", settings, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("post = %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/config/notification", nil, nil)
	envelope := decodeEnvelope(t, rec)
	doc, _ := envelope.Data.(map[string]interface{})
	if doc["enabled"] != true {
		t.Errorf("settings not persisted: %s", rec.Body.String())
	}
}

func TestSettingsRejectsBadSchedule(t *testing.T) {
	env := newTestEnv(t, nil)
	settings := models.DefaultNotificationSettings()
	settings.Schedule.DailyTime = "25:99"

	rec := env.do(t, http.MethodPost, "/api/config/notification", settings, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGenerateReportPayload(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/report/generate?type=weekly", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	envelope := decodeEnvelope(t, rec)
	report, _ := envelope.Data.(map[string]interface{})
	summary, _ := report["summary"].(map[string]interface{})
	if plays, _ := summary["total_plays"].(float64); plays != 10 {
		t.Errorf("total_plays = %v, want 10", plays)
	}
	if report["type"] != "weekly" {
		t.Errorf("type = %v", report["type"])
	}
}

func TestGenerateReportReturnsPNG(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/report/generate?type=weekly&format=image", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "image/png" {
		t.Errorf("content type = %q", got)
	}
	if _, err := png.Decode(bytes.NewReader(rec.Body.Bytes())); err != nil {
		t.Errorf("body is not a PNG: %v", err)
	}
}

func TestGenerateReportRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/report/generate?type=hourly", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestPosterPlaceholder(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/api/poster/unknown-item", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	img, err := png.Decode(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("placeholder is not a PNG: %v", err)
	}
	if img.Bounds().Dx() != 300 {
		t.Errorf("placeholder width = %d", img.Bounds().Dx())
	}
	if rec.Header().Get("Cache-Control") != "public, max-age=3600" {
		t.Errorf("cache header = %q", rec.Header().Get("Cache-Control"))
	}
}

func authConfig(cfg *config.Config) {
	cfg.Security.JWTSecret = "0123456789abcdef0123456789abcdef"
	cfg.Security.AdminUsername = "admin"
	hash, _ := auth.HashPassword("hunter2hunter2")
	cfg.Security.AdminPasswordHash = hash
	cfg.Security.SessionTimeout = time.Hour
}

func TestAuthGuardsMutatingRoutes(t *testing.T) {
	env := newTestEnv(t, authConfig)

	rec := env.do(t, http.MethodGet, "/api/channels/", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "hunter2hunter2"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	envelope := decodeEnvelope(t, rec)
	data, _ := envelope.Data.(map[string]interface{})
	token, _ := data["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}

	rec = env.do(t, http.MethodGet, "/api/channels/", nil,
		map[string]string{"Authorization": "Bearer " + token})
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated status = %d", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	env := newTestEnv(t, authConfig)
	rec := env.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"username": "admin", "password": "wrong"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestWeComWebhookProbeRejectsPlainHTTP(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodPost, "/api/wecom/test",
		map[string]string{"webhook_url": "http://qyapi.weixin.qq.com/hook"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestWebhookWithoutBus(t *testing.T) {
	env := newTestEnv(t, nil)
	event := map[string]interface{}{"Event": "playback.stop"}
	rec := env.do(t, http.MethodPost, "/api/webhook/emby", event, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d", rec.Code)
	}
}
