// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

import "time"

// ============================================================================
// Playback Report Models
// ============================================================================

// ReportType selects the aggregation window for a playback report.
type ReportType string

const (
	// ReportTypeDaily covers yesterday.
	ReportTypeDaily ReportType = "daily"

	// ReportTypeWeekly covers the past 7 days.
	ReportTypeWeekly ReportType = "weekly"

	// ReportTypeMonthly covers the past 30 days.
	ReportTypeMonthly ReportType = "monthly"
)

// ValidReportTypes contains all recognized report types.
var ValidReportTypes = []ReportType{
	ReportTypeDaily,
	ReportTypeWeekly,
	ReportTypeMonthly,
}

// IsValidReportType checks whether t is a recognized report type.
func IsValidReportType(t ReportType) bool {
	for _, valid := range ValidReportTypes {
		if t == valid {
			return true
		}
	}
	return false
}

// Window returns the [start, end) interval the report type covers,
// anchored at now. Daily is yesterday's calendar day; weekly and
// monthly are rolling windows ending now.
func (t ReportType) Window(now time.Time) (start, end time.Time) {
	switch t {
	case ReportTypeDaily:
		end = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		return end.AddDate(0, 0, -1), end
	case ReportTypeWeekly:
		return now.AddDate(0, 0, -7), now
	case ReportTypeMonthly:
		return now.AddDate(0, 0, -30), now
	}
	return now, now
}

// ReportSummary holds the headline totals. TotalTitles counts distinct
// titles played in the window; the image's third stat tile shows it.
type ReportSummary struct {
	TotalPlays  int     `json:"total_plays"`
	TotalHours  float64 `json:"total_hours"`
	TotalTitles int     `json:"total_titles"`
}

// ReportItem is one entry in the top-content list.
type ReportItem struct {
	ItemID    string  `json:"item_id,omitempty"`
	Name      string  `json:"name"`
	Type      string  `json:"type"`
	PlayCount int     `json:"play_count"`
	Hours     float64 `json:"hours"`
}

// ReportUser is one entry in the top-users list.
type ReportUser struct {
	Name      string  `json:"name"`
	PlayCount int     `json:"play_count"`
	Hours     float64 `json:"hours"`
}

// TypeStat aggregates plays and hours for one media type.
type TypeStat struct {
	Type      string  `json:"type"`
	PlayCount int     `json:"play_count"`
	Hours     float64 `json:"hours"`
}

// Report is the generated playback-statistics payload, rendered into
// both message templates and the report image.
type Report struct {
	Title       string        `json:"title"`
	Type        ReportType    `json:"type"`
	Period      string        `json:"period"`
	Summary     ReportSummary `json:"summary"`
	TopContent  []ReportItem  `json:"top_content"`
	TopUsers    []ReportUser  `json:"top_users"`
	TypeStats   []TypeStat    `json:"type_stats"`
	GeneratedAt time.Time     `json:"generated_at"`
}
