// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

import "time"

// ============================================================================
// Emby Webhook Event Models
// ============================================================================
// Emby's webhook plugin POSTs a JSON envelope per server event. Only the
// fields the notification pipeline consumes are modelled here.

// EmbyEventKind classifies incoming webhook events.
type EmbyEventKind string

const (
	// EmbyEventPlaybackStart fires when a session starts playing an item.
	EmbyEventPlaybackStart EmbyEventKind = "playback.start"

	// EmbyEventPlaybackStop fires when playback ends.
	EmbyEventPlaybackStop EmbyEventKind = "playback.stop"

	// EmbyEventUserNew fires when a user account is created.
	EmbyEventUserNew EmbyEventKind = "user.new"

	// EmbyEventServer covers server lifecycle events (restart, update).
	EmbyEventServer EmbyEventKind = "server"
)

// EmbyWebhookEvent is the parsed webhook payload from Emby.
type EmbyWebhookEvent struct {
	Event EmbyEventKind `json:"Event"`
	User  struct {
		Name string `json:"Name"`
		ID   string `json:"Id"`
	} `json:"User"`
	Item struct {
		ID           string `json:"Id"`
		Name         string `json:"Name"`
		Type         string `json:"Type"`
		SeriesName   string `json:"SeriesName,omitempty"`
		RuntimeTicks int64  `json:"RunTimeTicks,omitempty"`
	} `json:"Item"`
	Server struct {
		Name    string `json:"Name"`
		Version string `json:"Version"`
	} `json:"Server"`
	Date time.Time `json:"Date"`
}

// DisplayTitle returns the item title, prefixing episodes with their
// series name the way Emby's own notifications do.
func (e *EmbyWebhookEvent) DisplayTitle() string {
	if e.Item.SeriesName != "" && e.Item.SeriesName != e.Item.Name {
		return e.Item.SeriesName + " - " + e.Item.Name
	}
	return e.Item.Name
}

// TemplateContext flattens the event into template placeholder values.
func (e *EmbyWebhookEvent) TemplateContext() map[string]any {
	return map[string]any{
		"event":    string(e.Event),
		"user":     e.User.Name,
		"item":     e.DisplayTitle(),
		"type":     e.Item.Type,
		"server":   e.Server.Name,
		"version":  e.Server.Version,
		"datetime": e.Date.Format("2006-01-02 15:04"),
	}
}
