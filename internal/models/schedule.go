// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// Report Schedule Models
// ============================================================================

// ReportSchedule is the single persisted schedule document controlling
// automatic report dispatch. Times are wall-clock "HH:MM" in the server
// timezone; WeeklyDay is 0=Sunday..6=Saturday; MonthlyDay is 1..28 so
// every month has the day.
type ReportSchedule struct {
	Enabled bool `json:"enabled"`

	DailyEnabled bool   `json:"daily_enabled"`
	DailyTime    string `json:"daily_time"`

	WeeklyEnabled bool   `json:"weekly_enabled"`
	WeeklyTime    string `json:"weekly_time"`
	WeeklyDay     int    `json:"weekly_day"`

	MonthlyEnabled bool   `json:"monthly_enabled"`
	MonthlyTime    string `json:"monthly_time"`
	MonthlyDay     int    `json:"monthly_day"`

	// Channels lists the channel kinds reports fan out to.
	Channels map[string]bool `json:"channels"`
}

// DefaultReportSchedule returns the schedule seeded on first run:
// disabled, 21:00 everywhere, Sunday weekly, 1st monthly, all known
// message channels listed but off.
func DefaultReportSchedule() *ReportSchedule {
	return &ReportSchedule{
		Enabled:        false,
		DailyEnabled:   false,
		DailyTime:      "21:00",
		WeeklyEnabled:  false,
		WeeklyTime:     "21:00",
		WeeklyDay:      0,
		MonthlyEnabled: false,
		MonthlyTime:    "21:00",
		MonthlyDay:     1,
		Channels: map[string]bool{
			string(ChannelKindTelegram): false,
			string(ChannelKindWeCom):    false,
			string(ChannelKindDiscord):  false,
		},
	}
}

// Validate checks times and day ranges.
func (s *ReportSchedule) Validate() error {
	if _, _, err := ParseClock(s.DailyTime); err != nil {
		return NewValidationError("daily_time", err.Error())
	}
	if _, _, err := ParseClock(s.WeeklyTime); err != nil {
		return NewValidationError("weekly_time", err.Error())
	}
	if _, _, err := ParseClock(s.MonthlyTime); err != nil {
		return NewValidationError("monthly_time", err.Error())
	}
	if s.WeeklyDay < 0 || s.WeeklyDay > 6 {
		return NewValidationError("weekly_day", "weekly_day must be 0..6")
	}
	if s.MonthlyDay < 1 || s.MonthlyDay > 28 {
		return NewValidationError("monthly_day", "monthly_day must be 1..28")
	}
	for kind := range s.Channels {
		if !IsValidChannelKind(ChannelKind(kind)) {
			return NewValidationError("channels", fmt.Sprintf("unknown channel kind %q", kind))
		}
	}
	return nil
}

// EnabledChannels returns the kinds switched on, in no particular order.
func (s *ReportSchedule) EnabledChannels() []ChannelKind {
	var out []ChannelKind
	for kind, on := range s.Channels {
		if on {
			out = append(out, ChannelKind(kind))
		}
	}
	return out
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(v string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(v, ":")
	if !ok {
		return 0, 0, fmt.Errorf("time %q must be HH:MM", v)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("time %q has invalid hour", v)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("time %q has invalid minute", v)
	}
	return hour, minute, nil
}
