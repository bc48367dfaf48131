// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package notify

import (
	"bytes"
	"context"
	"crypto/md5" //nolint:gosec // WeCom's image message format mandates MD5
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
)

// wecomTokenSlack is subtracted from the advertised token lifetime so a
// token is never used right at its expiry edge.
const wecomTokenSlack = 2 * time.Minute

// WeComChannel delivers messages through WeCom. App mode authenticates
// with corp credentials and calls message/send; bot mode posts to a
// group-robot webhook. Report images upload as media in app mode and
// embed as base64 in bot mode.
type WeComChannel struct {
	configID string
	cfg      models.WeComConfig
	client   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewWeComChannel builds a WeCom channel from a stored config.
func NewWeComChannel(stored *models.ChannelConfig) *WeComChannel {
	return &WeComChannel{
		configID: stored.ID,
		cfg:      *stored.WeCom,
		client:   defaultHTTPClient,
	}
}

// Kind returns the channel kind tag.
func (c *WeComChannel) Kind() models.ChannelKind { return models.ChannelKindWeCom }

// ConfigID returns the stored configuration ID.
func (c *WeComChannel) ConfigID() string { return c.configID }

// wecomResponse is the common WeCom API envelope; errcode 0 is success.
type wecomResponse struct {
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
	AccessToken string `json:"access_token,omitempty"`
	ExpiresIn   int    `json:"expires_in,omitempty"`
	MediaID     string `json:"media_id,omitempty"`
}

// Send routes to the app or bot flow per the configured mode.
func (c *WeComChannel) Send(ctx context.Context, msg *Message) *DeliveryResult {
	switch c.cfg.Mode {
	case models.WeComModeApp:
		return c.sendApp(ctx, msg)
	case models.WeComModeBot:
		return c.sendBot(ctx, msg)
	default:
		return failureResult(ErrCodeInvalidConfig, fmt.Sprintf("unknown wecom mode %q", c.cfg.Mode), false)
	}
}

// ============================================================================
// App mode
// ============================================================================

// token returns a cached access token, refreshing via gettoken when
// missing or near expiry.
func (c *WeComChannel) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	url := fmt.Sprintf("%s/cgi-bin/gettoken?corpid=%s&corpsecret=%s",
		c.cfg.EffectiveAPIBase(), c.cfg.CorpID, c.cfg.CorpSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create gettoken request: %w", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveUpstream("wecom", "gettoken", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("gettoken: %w", err)
	}
	defer resp.Body.Close()

	var out wecomResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&out); err != nil {
		return "", fmt.Errorf("parse gettoken response: %w", err)
	}
	if out.ErrCode != 0 {
		return "", fmt.Errorf("gettoken failed: errcode %d: %s", out.ErrCode, out.ErrMsg)
	}

	c.accessToken = out.AccessToken
	lifetime := time.Duration(out.ExpiresIn) * time.Second
	if lifetime <= wecomTokenSlack {
		lifetime = wecomTokenSlack + time.Minute
	}
	c.tokenExpiry = time.Now().Add(lifetime - wecomTokenSlack)
	return c.accessToken, nil
}

func (c *WeComChannel) sendApp(ctx context.Context, msg *Message) *DeliveryResult {
	token, err := c.token(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "errcode") {
			return failureResult(ErrCodeAuthFailed, err.Error(), false)
		}
		code, transient := classifyTransportError(err)
		return failureResult(code, err.Error(), transient)
	}

	payload := map[string]any{
		"touser":  c.cfg.EffectiveToUser(),
		"agentid": c.cfg.AgentID,
	}
	if msg.HasImage() {
		mediaID, uploadErr := c.uploadMedia(ctx, token, msg.ImagePNG)
		if uploadErr != nil {
			return failureResult(ErrCodeServerError, uploadErr.Error(), true)
		}
		payload["msgtype"] = "image"
		payload["image"] = map[string]string{"media_id": mediaID}
	} else {
		payload["msgtype"] = "text"
		payload["text"] = map[string]string{"content": msg.Text}
	}

	url := fmt.Sprintf("%s/cgi-bin/message/send?access_token=%s", c.cfg.EffectiveAPIBase(), token)
	return c.post(ctx, url, payload, "message_send")
}

// uploadMedia pushes the image through media/upload and returns the
// temporary media_id.
func (c *WeComChannel) uploadMedia(ctx context.Context, token string, image []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("media", "report.png")
	if err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("build upload form: %w", err)
	}

	url := fmt.Sprintf("%s/cgi-bin/media/upload?access_token=%s&type=image", c.cfg.EffectiveAPIBase(), token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveUpstream("wecom", "media_upload", time.Since(start), err)
	if err != nil {
		return "", fmt.Errorf("media upload: %w", err)
	}
	defer resp.Body.Close()

	var out wecomResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&out); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if out.ErrCode != 0 {
		return "", fmt.Errorf("media upload failed: errcode %d: %s", out.ErrCode, out.ErrMsg)
	}
	return out.MediaID, nil
}

// ============================================================================
// Bot mode
// ============================================================================

func (c *WeComChannel) sendBot(ctx context.Context, msg *Message) *DeliveryResult {
	var payload map[string]any
	if msg.HasImage() {
		sum := md5.Sum(msg.ImagePNG) //nolint:gosec // required by the API
		payload = map[string]any{
			"msgtype": "image",
			"image": map[string]string{
				"base64": base64.StdEncoding.EncodeToString(msg.ImagePNG),
				"md5":    hex.EncodeToString(sum[:]),
			},
		}
	} else {
		payload = map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": msg.Text},
		}
	}
	return c.post(ctx, c.cfg.WebhookURL, payload, "bot_webhook")
}

// post sends a JSON payload and maps the errcode envelope.
func (c *WeComChannel) post(ctx context.Context, url string, payload map[string]any, operation string) *DeliveryResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("marshal payload: %v", err), false)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("create request: %v", err), false)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveUpstream("wecom", operation, time.Since(start), err)
	if err != nil {
		code, transient := classifyTransportError(err)
		return failureResult(code, fmt.Sprintf("%s: %v", operation, err), transient)
	}
	defer resp.Body.Close()

	var out wecomResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&out); err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("parse response: %v", err), false)
	}
	if out.ErrCode == 0 {
		return successResult()
	}
	return failureResult(classifyWeComError(out.ErrCode),
		fmt.Sprintf("errcode %d: %s", out.ErrCode, out.ErrMsg),
		isTransientWeComError(out.ErrCode))
}

// Test verifies credentials: gettoken in app mode, an empty text post
// in bot mode (WeCom accepts it and returns errcode 0).
func (c *WeComChannel) Test(ctx context.Context) error {
	switch c.cfg.Mode {
	case models.WeComModeApp:
		if _, err := c.token(ctx); err != nil {
			return models.NewConnectivityError("wecom", "token check", err)
		}
		return nil
	case models.WeComModeBot:
		result := c.post(ctx, c.cfg.WebhookURL, map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": "embywatch connectivity check"},
		}, "bot_webhook")
		if !result.Success {
			return models.NewConnectivityError("wecom", result.ErrorMessage, nil)
		}
		return nil
	default:
		return models.NewValidationError("mode", "mode must be app or bot")
	}
}

// classifyWeComError maps common WeCom errcodes to stable codes.
// Reference: 40001/40014/42001 token problems, 45009 quota, 81013
// unknown recipient.
func classifyWeComError(errcode int) string {
	switch errcode {
	case 40001, 40014, 41001, 42001:
		return ErrCodeAuthFailed
	case 45009:
		return ErrCodeRateLimited
	case 81013:
		return ErrCodeRecipientNotFound
	case -1:
		return ErrCodeServerError
	default:
		return ErrCodeUnknown
	}
}

func isTransientWeComError(errcode int) bool {
	switch errcode {
	case -1, 45009, 42001:
		return true
	default:
		return false
	}
}
