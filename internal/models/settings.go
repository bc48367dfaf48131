// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

// ============================================================================
// Notification Settings Document
// ============================================================================

// EventToggles switches individual Emby webhook event notifications.
type EventToggles struct {
	PlaybackStart bool `json:"playback_start"`
	PlaybackStop  bool `json:"playback_stop"`
	NewUser       bool `json:"new_user"`
	ServerEvents  bool `json:"server_events"`
}

// NotificationSettings is the persisted settings document served by
// GET/POST /api/config/notification. It bundles the event toggles with
// the report schedule so the dashboard reads one blob.
type NotificationSettings struct {
	Enabled  bool            `json:"enabled"`
	Events   EventToggles    `json:"events"`
	Schedule *ReportSchedule `json:"schedule"`
}

// DefaultNotificationSettings returns the document seeded on first run.
func DefaultNotificationSettings() *NotificationSettings {
	return &NotificationSettings{
		Enabled: false,
		Events: EventToggles{
			PlaybackStart: false,
			PlaybackStop:  true,
			NewUser:       true,
			ServerEvents:  false,
		},
		Schedule: DefaultReportSchedule(),
	}
}

// Validate checks the embedded schedule.
func (s *NotificationSettings) Validate() error {
	if s.Schedule == nil {
		return NewValidationError("schedule", "schedule is required")
	}
	return s.Schedule.Validate()
}
