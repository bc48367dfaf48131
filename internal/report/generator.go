// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package report builds playback-statistics reports and renders them
// into shareable PNG images.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/embywatch/embywatch/internal/logging"
	"github.com/embywatch/embywatch/internal/metrics"
	"github.com/embywatch/embywatch/internal/models"
)

// topLimit caps the top-content and top-users lists.
const topLimit = 5

// StatsSource supplies aggregated playback data for a time window.
// *emby.Client satisfies it.
type StatsSource interface {
	PlaybackSummary(ctx context.Context, start, end time.Time) (*models.ReportSummary, error)
	TopContent(ctx context.Context, start, end time.Time, limit int) ([]models.ReportItem, error)
	TopUsers(ctx context.Context, start, end time.Time, limit int) ([]models.ReportUser, error)
	TypeStats(ctx context.Context, start, end time.Time) ([]models.TypeStat, error)
}

// Generator assembles reports from a stats source.
type Generator struct {
	source StatsSource
}

// NewGenerator builds a Generator.
func NewGenerator(source StatsSource) *Generator {
	return &Generator{source: source}
}

func reportTitle(t models.ReportType) string {
	switch t {
	case models.ReportTypeDaily:
		return "Daily Playback Report"
	case models.ReportTypeWeekly:
		return "Weekly Playback Report"
	case models.ReportTypeMonthly:
		return "Monthly Playback Report"
	}
	return "Playback Report"
}

// Generate aggregates the window for the given report type. The
// summary is required; top lists and type stats degrade to empty on
// upstream failure so one flaky query does not sink the report.
func (g *Generator) Generate(ctx context.Context, reportType models.ReportType) (*models.Report, error) {
	if !models.IsValidReportType(reportType) {
		return nil, models.NewValidationError("type", fmt.Sprintf("unknown report type %q", reportType))
	}

	started := time.Now()
	defer func() {
		metrics.ReportGenerationDuration.WithLabelValues(string(reportType)).Observe(time.Since(started).Seconds())
	}()

	log := logging.WithComponent("report")
	now := time.Now()
	start, end := reportType.Window(now)

	summary, err := g.source.PlaybackSummary(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("playback summary: %w", err)
	}

	topContent, err := g.source.TopContent(ctx, start, end, topLimit)
	if err != nil {
		log.Warn().Err(err).Msg("top content query failed, continuing without it")
		topContent = nil
	}
	topUsers, err := g.source.TopUsers(ctx, start, end, topLimit)
	if err != nil {
		log.Warn().Err(err).Msg("top users query failed, continuing without it")
		topUsers = nil
	}
	typeStats, err := g.source.TypeStats(ctx, start, end)
	if err != nil {
		log.Warn().Err(err).Msg("type stats query failed, continuing without it")
		typeStats = nil
	}

	return &models.Report{
		Title:       reportTitle(reportType),
		Type:        reportType,
		Period:      formatPeriod(start, end),
		Summary:     *summary,
		TopContent:  topContent,
		TopUsers:    topUsers,
		TypeStats:   typeStats,
		GeneratedAt: now.UTC(),
	}, nil
}

func formatPeriod(start, end time.Time) string {
	const day = "2006-01-02"
	// end is exclusive; show the last included day.
	last := end.Add(-time.Second)
	if start.Format(day) == last.Format(day) {
		return start.Format(day)
	}
	return start.Format(day) + " ~ " + last.Format(day)
}

// TemplateContext flattens a report into template placeholders.
func TemplateContext(r *models.Report) map[string]any {
	topLines := make([]string, 0, len(r.TopContent))
	for i, item := range r.TopContent {
		topLines = append(topLines, fmt.Sprintf("%d. %s (%d plays)", i+1, item.Name, item.PlayCount))
	}
	userLines := make([]string, 0, len(r.TopUsers))
	for i, user := range r.TopUsers {
		userLines = append(userLines, fmt.Sprintf("%d. %s (%.1f h)", i+1, user.Name, user.Hours))
	}

	return map[string]any{
		"title":        r.Title,
		"report_type":  string(r.Type),
		"period":       r.Period,
		"total_plays":  r.Summary.TotalPlays,
		"total_hours":  r.Summary.TotalHours,
		"total_titles": r.Summary.TotalTitles,
		"top_content":  strings.Join(topLines, "\n"),
		"top_users":    strings.Join(userLines, "\n"),
		"datetime":     r.GeneratedAt.Format("2006-01-02 15:04"),
	}
}
