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
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
)

// telegramMaxTextLen is Telegram's message length limit.
const telegramMaxTextLen = 4096

// telegramMaxCaptionLen is Telegram's photo caption limit.
const telegramMaxCaptionLen = 1024

// TelegramChannel delivers messages through the Telegram Bot API,
// using sendMessage for text and sendPhoto for report images.
type TelegramChannel struct {
	configID string
	cfg      models.TelegramConfig
	client   *http.Client
	baseURL  string
}

// NewTelegramChannel builds a Telegram channel from a stored config.
func NewTelegramChannel(stored *models.ChannelConfig) *TelegramChannel {
	return &TelegramChannel{
		configID: stored.ID,
		cfg:      *stored.Telegram,
		client:   defaultHTTPClient,
		baseURL:  "https://api.telegram.org",
	}
}

// Kind returns the channel kind tag.
func (c *TelegramChannel) Kind() models.ChannelKind { return models.ChannelKindTelegram }

// ConfigID returns the stored configuration ID.
func (c *TelegramChannel) ConfigID() string { return c.configID }

// telegramSendMessageRequest is the sendMessage API payload.
type telegramSendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

// telegramAPIResponse is the common Bot API response envelope.
type telegramAPIResponse struct {
	OK          bool                `json:"ok"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Description string              `json:"description,omitempty"`
	Parameters  *telegramParameters `json:"parameters,omitempty"`
}

type telegramParameters struct {
	RetryAfter int `json:"retry_after,omitempty"`
}

// Send delivers msg. Images go out as sendPhoto with the text as
// caption; plain messages use sendMessage.
func (c *TelegramChannel) Send(ctx context.Context, msg *Message) *DeliveryResult {
	if msg.HasImage() {
		return c.sendPhoto(ctx, msg)
	}
	return c.sendMessage(ctx, msg.Text)
}

func (c *TelegramChannel) sendMessage(ctx context.Context, text string) *DeliveryResult {
	payload := telegramSendMessageRequest{
		ChatID:                c.cfg.ChatID,
		Text:                  truncateRunesafe(text, telegramMaxTextLen),
		ParseMode:             c.cfg.ParseMode,
		DisableWebPagePreview: true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("marshal payload: %v", err), false)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("create request: %v", err), false)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "sendMessage")
}

func (c *TelegramChannel) sendPhoto(ctx context.Context, msg *Message) *DeliveryResult {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	if err := mw.WriteField("chat_id", c.cfg.ChatID); err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("build form: %v", err), false)
	}
	caption := msg.ImageCaption
	if caption == "" {
		caption = msg.Text
	}
	if caption != "" {
		if err := mw.WriteField("caption", truncateRunesafe(caption, telegramMaxCaptionLen)); err != nil {
			return failureResult(ErrCodeUnknown, fmt.Sprintf("build form: %v", err), false)
		}
	}
	part, err := mw.CreateFormFile("photo", "report.png")
	if err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("build form: %v", err), false)
	}
	if _, err := part.Write(msg.ImagePNG); err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("build form: %v", err), false)
	}
	if err := mw.Close(); err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("build form: %v", err), false)
	}

	url := fmt.Sprintf("%s/bot%s/sendPhoto", c.baseURL, c.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("create request: %v", err), false)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	return c.do(req, "sendPhoto")
}

// do executes a Bot API request and maps the response envelope.
func (c *TelegramChannel) do(req *http.Request, operation string) *DeliveryResult {
	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveUpstream("telegram", operation, time.Since(start), err)
	if err != nil {
		code, transient := classifyTransportError(err)
		return failureResult(code, fmt.Sprintf("%s: %v", operation, err), transient)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("read response: %v", err), true)
	}
	var apiResp telegramAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return failureResult(ErrCodeUnknown, fmt.Sprintf("parse response: %v", err), false)
	}
	if apiResp.OK {
		return successResult()
	}

	code := classifyTelegramError(apiResp.ErrorCode, apiResp.Description)
	result := failureResult(code, apiResp.Description, code == ErrCodeRateLimited || code == ErrCodeServerError)
	if apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
		result.RetryAfter = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
	}
	return result
}

// Test calls getMe to verify the bot token.
func (c *TelegramChannel) Test(ctx context.Context) error {
	url := fmt.Sprintf("%s/bot%s/getMe", c.baseURL, c.cfg.BotToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.NewConnectivityError("telegram", "create request", err)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	metrics.ObserveUpstream("telegram", "getMe", time.Since(start), err)
	if err != nil {
		return models.NewConnectivityError("telegram", "getMe", err)
	}
	defer resp.Body.Close()

	var apiResp telegramAPIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiResp); err != nil {
		return models.NewConnectivityError("telegram", "parse getMe response", err)
	}
	if !apiResp.OK {
		return models.NewConnectivityError("telegram", apiResp.Description, nil)
	}
	return nil
}

// classifyTelegramError maps a Bot API error to a stable code.
func classifyTelegramError(code int, description string) string {
	switch code {
	case 401:
		return ErrCodeAuthFailed
	case 400:
		if strings.Contains(description, "chat not found") {
			return ErrCodeRecipientNotFound
		}
		return ErrCodeInvalidConfig
	case 403:
		return ErrCodeRecipientNotFound
	case 429:
		return ErrCodeRateLimited
	default:
		if code >= 500 {
			return ErrCodeServerError
		}
		return ErrCodeUnknown
	}
}

// truncateRunesafe bounds s to max bytes without splitting a UTF-8
// sequence.
func truncateRunesafe(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
