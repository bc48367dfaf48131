// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package models defines the shared domain types: notification channel
// configurations, message templates, delivery log entries, playback
// reports and schedules, webhook events, the REST envelope, and the
// error taxonomy mapped to HTTP status codes.
//
// Types here carry their own validation (Validate methods) so every
// entry path into the store enforces the same rules. Secret-bearing
// configurations expose Redacted() copies for read endpoints.
package models
