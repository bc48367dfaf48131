// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

import (
	"math"
	"time"
)

// ============================================================================
// Delivery Log & Statistics Models
// ============================================================================

// DeliveryStatus is the outcome recorded for one delivery attempt.
type DeliveryStatus string

const (
	// DeliveryStatusSuccess means the channel accepted the message.
	DeliveryStatusSuccess DeliveryStatus = "success"

	// DeliveryStatusFailed means the delivery did not go through.
	DeliveryStatusFailed DeliveryStatus = "failed"
)

// MaxLoggedContentLen bounds the message excerpt stored per log entry.
const MaxLoggedContentLen = 500

// DeliveryLogEntry is one append-only delivery record. Entries are
// never updated or deleted.
type DeliveryLogEntry struct {
	ID             string         `json:"id"`
	ConfigID       string         `json:"config_id"`
	TemplateID     string         `json:"template_id,omitempty"`
	MessageContent string         `json:"message_content"`
	Status         DeliveryStatus `json:"status"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	SentAt         time.Time      `json:"sent_at"`
}

// DeliveryStatistics aggregates the delivery log and channel registry.
type DeliveryStatistics struct {
	TotalConfigs   int     `json:"total_configs"`
	EnabledConfigs int     `json:"enabled_configs"`
	TotalSent      int     `json:"total_sent"`
	SuccessSent    int     `json:"success_sent"`
	FailedSent     int     `json:"failed_sent"`
	SuccessRate    float64 `json:"success_rate"`
}

// ComputeSuccessRate returns success/total*100 rounded to two decimals,
// 0 when total is 0.
func ComputeSuccessRate(success, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(success)/float64(total)*100*100) / 100
}

// TruncateContent bounds stored message excerpts to MaxLoggedContentLen
// bytes without splitting a UTF-8 sequence.
func TruncateContent(s string) string {
	if len(s) <= MaxLoggedContentLen {
		return s
	}
	cut := MaxLoggedContentLen
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
