// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// ============================================================================
// Channel Registry Models
// ============================================================================

// ChannelKind identifies the integration behind a channel configuration.
type ChannelKind string

const (
	// ChannelKindTelegram sends messages through the Telegram Bot API.
	ChannelKindTelegram ChannelKind = "telegram"

	// ChannelKindDiscord sends messages through a Discord webhook.
	ChannelKindDiscord ChannelKind = "discord"

	// ChannelKindWeCom sends messages through WeCom (app or bot webhook).
	ChannelKindWeCom ChannelKind = "wecom"

	// ChannelKindEmby configures the upstream Emby media server connection.
	ChannelKindEmby ChannelKind = "emby"

	// ChannelKindTMDB configures the TMDB metadata/poster API connection.
	ChannelKindTMDB ChannelKind = "tmdb"
)

// ValidChannelKinds contains all recognized channel kinds.
var ValidChannelKinds = []ChannelKind{
	ChannelKindTelegram,
	ChannelKindDiscord,
	ChannelKindWeCom,
	ChannelKindEmby,
	ChannelKindTMDB,
}

// IsValidChannelKind checks whether k is a recognized channel kind.
func IsValidChannelKind(k ChannelKind) bool {
	for _, valid := range ValidChannelKinds {
		if k == valid {
			return true
		}
	}
	return false
}

// ChannelConfig is a stored channel configuration. Exactly one of the
// kind-specific config pointers is non-nil, matching the Type tag.
type ChannelConfig struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Type      ChannelKind `json:"type"`
	Enabled   bool        `json:"enabled"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Discord  *DiscordConfig  `json:"discord,omitempty"`
	WeCom    *WeComConfig    `json:"wecom,omitempty"`
	Emby     *EmbyConfig     `json:"emby,omitempty"`
	TMDB     *TMDBConfig     `json:"tmdb,omitempty"`
}

// TelegramConfig holds Telegram Bot API credentials and target chat.
type TelegramConfig struct {
	BotToken  string `json:"bot_token"`
	ChatID    string `json:"chat_id"`
	ParseMode string `json:"parse_mode,omitempty"` // "HTML", "Markdown" or empty
}

// DiscordConfig holds a Discord incoming-webhook URL.
type DiscordConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// WeComMode selects between the WeCom enterprise-app flow and the
// group-bot webhook flow.
type WeComMode string

const (
	// WeComModeApp uses corp credentials and the message/send API.
	WeComModeApp WeComMode = "app"

	// WeComModeBot posts to a group-robot webhook.
	WeComModeBot WeComMode = "bot"
)

// WeComDefaultAPIBase is the default WeCom API endpoint, overridable via
// ProxyURL for deployments that cannot reach qyapi.weixin.qq.com directly.
const WeComDefaultAPIBase = "https://qyapi.weixin.qq.com"

// WeComConfig holds WeCom credentials for either delivery mode.
type WeComConfig struct {
	Mode WeComMode `json:"mode"`

	// App mode fields.
	CorpID     string `json:"corp_id,omitempty"`
	CorpSecret string `json:"corp_secret,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	ToUser     string `json:"to_user,omitempty"`   // defaults to "@all"
	ProxyURL   string `json:"proxy_url,omitempty"` // defaults to WeComDefaultAPIBase

	// Bot mode field.
	WebhookURL string `json:"webhook_url,omitempty"`
}

// EmbyConfig holds the Emby server connection settings.
type EmbyConfig struct {
	ServerURL string `json:"server_url"`
	APIKey    string `json:"api_key"`
}

// TMDBConfig holds the TMDB API key.
type TMDBConfig struct {
	APIKey string `json:"api_key"`
}

// Validate checks the tagged-union shape and the kind-specific fields.
// It returns a *ValidationError describing the first problem found.
func (c *ChannelConfig) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if !IsValidChannelKind(c.Type) {
		return NewValidationError("type", fmt.Sprintf("unknown channel type %q", c.Type))
	}
	if err := c.checkUnionShape(); err != nil {
		return err
	}
	switch c.Type {
	case ChannelKindTelegram:
		return c.Telegram.Validate()
	case ChannelKindDiscord:
		return c.Discord.Validate()
	case ChannelKindWeCom:
		return c.WeCom.Validate()
	case ChannelKindEmby:
		return c.Emby.Validate()
	case ChannelKindTMDB:
		return c.TMDB.Validate()
	}
	return nil
}

// checkUnionShape verifies exactly the config matching Type is set.
func (c *ChannelConfig) checkUnionShape() error {
	set := map[ChannelKind]bool{
		ChannelKindTelegram: c.Telegram != nil,
		ChannelKindDiscord:  c.Discord != nil,
		ChannelKindWeCom:    c.WeCom != nil,
		ChannelKindEmby:     c.Emby != nil,
		ChannelKindTMDB:     c.TMDB != nil,
	}
	if !set[c.Type] {
		return NewValidationError(string(c.Type), fmt.Sprintf("missing %s config", c.Type))
	}
	for kind, present := range set {
		if present && kind != c.Type {
			return NewValidationError(string(kind), fmt.Sprintf("unexpected %s config on %s channel", kind, c.Type))
		}
	}
	return nil
}

// Validate checks Telegram credentials.
func (t *TelegramConfig) Validate() error {
	if strings.TrimSpace(t.BotToken) == "" {
		return NewValidationError("bot_token", "bot_token is required")
	}
	if !telegramTokenShape(t.BotToken) {
		return NewValidationError("bot_token", "bot_token must look like <bot_id>:<secret>")
	}
	if strings.TrimSpace(t.ChatID) == "" {
		return NewValidationError("chat_id", "chat_id is required")
	}
	switch t.ParseMode {
	case "", "HTML", "Markdown":
	default:
		return NewValidationError("parse_mode", "parse_mode must be HTML, Markdown or empty")
	}
	return nil
}

// telegramTokenShape checks the <digits>:<token> form without pulling in
// a regexp for a two-part split.
func telegramTokenShape(token string) bool {
	id, secret, ok := strings.Cut(token, ":")
	if !ok || id == "" || secret == "" {
		return false
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Validate checks the Discord webhook URL.
func (d *DiscordConfig) Validate() error {
	if strings.TrimSpace(d.WebhookURL) == "" {
		return NewValidationError("webhook_url", "webhook_url is required")
	}
	if !strings.HasPrefix(d.WebhookURL, "https://") {
		return NewValidationError("webhook_url", "webhook_url must use https")
	}
	if !strings.Contains(d.WebhookURL, "discord.com/api/webhooks/") &&
		!strings.Contains(d.WebhookURL, "discordapp.com/api/webhooks/") {
		return NewValidationError("webhook_url", "webhook_url must be a Discord webhook URL")
	}
	return nil
}

// Validate checks the WeCom settings for the selected mode.
func (w *WeComConfig) Validate() error {
	switch w.Mode {
	case WeComModeApp:
		if strings.TrimSpace(w.CorpID) == "" {
			return NewValidationError("corp_id", "corp_id is required")
		}
		if strings.TrimSpace(w.CorpSecret) == "" {
			return NewValidationError("corp_secret", "corp_secret is required")
		}
		if strings.TrimSpace(w.AgentID) == "" {
			return NewValidationError("agent_id", "agent_id is required")
		}
	case WeComModeBot:
		if strings.TrimSpace(w.WebhookURL) == "" {
			return NewValidationError("webhook_url", "webhook_url is required")
		}
		if !secureWebhookURL(w.WebhookURL) {
			return NewValidationError("webhook_url", "webhook_url must use https")
		}
	default:
		return NewValidationError("mode", "mode must be app or bot")
	}
	return nil
}

// secureWebhookURL accepts https URLs, plus plain http when the host is
// a loopback address so local relays can stand in for the real API.
func secureWebhookURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "https":
		return true
	case "http":
		host := u.Hostname()
		if host == "localhost" {
			return true
		}
		ip := net.ParseIP(host)
		return ip != nil && ip.IsLoopback()
	}
	return false
}

// EffectiveToUser returns the configured recipient or the "@all" default.
func (w *WeComConfig) EffectiveToUser() string {
	if w.ToUser == "" {
		return "@all"
	}
	return w.ToUser
}

// EffectiveAPIBase returns ProxyURL when set, otherwise the default base.
func (w *WeComConfig) EffectiveAPIBase() string {
	if w.ProxyURL == "" {
		return WeComDefaultAPIBase
	}
	return strings.TrimRight(w.ProxyURL, "/")
}

// Validate checks the Emby server settings.
func (e *EmbyConfig) Validate() error {
	if strings.TrimSpace(e.ServerURL) == "" {
		return NewValidationError("server_url", "server_url is required")
	}
	if !strings.HasPrefix(e.ServerURL, "http://") && !strings.HasPrefix(e.ServerURL, "https://") {
		return NewValidationError("server_url", "server_url must be an http(s) URL")
	}
	if strings.TrimSpace(e.APIKey) == "" {
		return NewValidationError("api_key", "api_key is required")
	}
	return nil
}

// Validate checks the TMDB settings.
func (t *TMDBConfig) Validate() error {
	if strings.TrimSpace(t.APIKey) == "" {
		return NewValidationError("api_key", "api_key is required")
	}
	return nil
}

// MaskSecret obscures all but the last four characters of a secret for
// display in API responses and logs.
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}

// Redacted returns a deep copy with every secret field masked. Read and
// list endpoints must serve redacted copies only.
func (c *ChannelConfig) Redacted() *ChannelConfig {
	out := *c
	if c.Telegram != nil {
		t := *c.Telegram
		t.BotToken = MaskSecret(t.BotToken)
		out.Telegram = &t
	}
	if c.WeCom != nil {
		w := *c.WeCom
		w.CorpSecret = MaskSecret(w.CorpSecret)
		if w.WebhookURL != "" {
			w.WebhookURL = maskWebhookKey(w.WebhookURL)
		}
		out.WeCom = &w
	}
	if c.Discord != nil {
		d := *c.Discord
		d.WebhookURL = maskWebhookKey(d.WebhookURL)
		out.Discord = &d
	}
	if c.Emby != nil {
		e := *c.Emby
		e.APIKey = MaskSecret(e.APIKey)
		out.Emby = &e
	}
	if c.TMDB != nil {
		t := *c.TMDB
		t.APIKey = MaskSecret(t.APIKey)
		out.TMDB = &t
	}
	return &out
}

// RestoreSecrets replaces masked secret fields with the values from
// prev. Clients edit the redacted copy served by GET, so a PUT that
// echoes a mask back means "keep the stored secret", not "store the
// asterisks".
func (c *ChannelConfig) RestoreSecrets(prev *ChannelConfig) {
	if prev == nil || c.Type != prev.Type {
		return
	}
	if c.Telegram != nil && prev.Telegram != nil {
		c.Telegram.BotToken = restoreSecret(c.Telegram.BotToken, prev.Telegram.BotToken, MaskSecret)
	}
	if c.WeCom != nil && prev.WeCom != nil {
		c.WeCom.CorpSecret = restoreSecret(c.WeCom.CorpSecret, prev.WeCom.CorpSecret, MaskSecret)
		c.WeCom.WebhookURL = restoreSecret(c.WeCom.WebhookURL, prev.WeCom.WebhookURL, maskWebhookKey)
	}
	if c.Discord != nil && prev.Discord != nil {
		c.Discord.WebhookURL = restoreSecret(c.Discord.WebhookURL, prev.Discord.WebhookURL, maskWebhookKey)
	}
	if c.Emby != nil && prev.Emby != nil {
		c.Emby.APIKey = restoreSecret(c.Emby.APIKey, prev.Emby.APIKey, MaskSecret)
	}
	if c.TMDB != nil && prev.TMDB != nil {
		c.TMDB.APIKey = restoreSecret(c.TMDB.APIKey, prev.TMDB.APIKey, MaskSecret)
	}
}

func restoreSecret(incoming, stored string, mask func(string) string) string {
	if stored != "" && incoming == mask(stored) {
		return stored
	}
	return incoming
}

// maskWebhookKey keeps the URL path shape visible but hides the trailing
// secret segment.
func maskWebhookKey(u string) string {
	idx := strings.LastIndex(u, "/")
	if idx < 0 || idx == len(u)-1 {
		return MaskSecret(u)
	}
	return u[:idx+1] + MaskSecret(u[idx+1:])
}
