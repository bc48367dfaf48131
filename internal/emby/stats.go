// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package emby

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/embywatch/embywatch/internal/models"
)

// sqlTimeLayout matches the DateCreated format in the Playback
// Reporting activity table.
const sqlTimeLayout = "2006-01-02 15:04:05"

func sqlWindow(start, end time.Time) (string, string) {
	return start.UTC().Format(sqlTimeLayout), end.UTC().Format(sqlTimeLayout)
}

// PlaybackSummary aggregates total plays, watch hours and distinct
// titles over [start, end).
func (c *Client) PlaybackSummary(ctx context.Context, start, end time.Time) (*models.ReportSummary, error) {
	from, to := sqlWindow(start, end)
	query := fmt.Sprintf(
		"SELECT COUNT(*), IFNULL(SUM(PlayDuration), 0), COUNT(DISTINCT ItemId) "+
			"FROM PlaybackActivity WHERE DateCreated >= '%s' AND DateCreated < '%s'",
		from, to)

	result, err := c.CustomQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	summary := &models.ReportSummary{}
	if len(result.Results) == 0 || len(result.Results[0]) < 3 {
		return summary, nil
	}
	row := result.Results[0]
	summary.TotalPlays = parseInt(row[0])
	summary.TotalHours = roundHours(parseFloat(row[1]) / 3600)
	summary.TotalTitles = parseInt(row[2])
	return summary, nil
}

// TopContent returns the most played items in the window, ordered by
// play count descending.
func (c *Client) TopContent(ctx context.Context, start, end time.Time, limit int) ([]models.ReportItem, error) {
	from, to := sqlWindow(start, end)
	query := fmt.Sprintf(
		"SELECT ItemId, ItemName, ItemType, COUNT(*) AS plays, IFNULL(SUM(PlayDuration), 0) "+
			"FROM PlaybackActivity WHERE DateCreated >= '%s' AND DateCreated < '%s' "+
			"GROUP BY ItemId, ItemName, ItemType ORDER BY plays DESC LIMIT %d",
		from, to, limit)

	result, err := c.CustomQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	items := make([]models.ReportItem, 0, len(result.Results))
	for _, row := range result.Results {
		if len(row) < 5 {
			continue
		}
		items = append(items, models.ReportItem{
			ItemID:    row[0],
			Name:      row[1],
			Type:      row[2],
			PlayCount: parseInt(row[3]),
			Hours:     roundHours(parseFloat(row[4]) / 3600),
		})
	}
	return items, nil
}

// TopUsers returns the most active users in the window.
func (c *Client) TopUsers(ctx context.Context, start, end time.Time, limit int) ([]models.ReportUser, error) {
	from, to := sqlWindow(start, end)
	query := fmt.Sprintf(
		"SELECT UserId, COUNT(*) AS plays, IFNULL(SUM(PlayDuration), 0) "+
			"FROM PlaybackActivity WHERE DateCreated >= '%s' AND DateCreated < '%s' "+
			"GROUP BY UserId ORDER BY plays DESC LIMIT %d",
		from, to, limit)

	result, err := c.CustomQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	users := make([]models.ReportUser, 0, len(result.Results))
	for _, row := range result.Results {
		if len(row) < 3 {
			continue
		}
		users = append(users, models.ReportUser{
			Name:      row[0],
			PlayCount: parseInt(row[1]),
			Hours:     roundHours(parseFloat(row[2]) / 3600),
		})
	}
	return users, nil
}

// TypeStats breaks plays down by media type.
func (c *Client) TypeStats(ctx context.Context, start, end time.Time) ([]models.TypeStat, error) {
	from, to := sqlWindow(start, end)
	query := fmt.Sprintf(
		"SELECT ItemType, COUNT(*) AS plays, IFNULL(SUM(PlayDuration), 0) "+
			"FROM PlaybackActivity WHERE DateCreated >= '%s' AND DateCreated < '%s' "+
			"GROUP BY ItemType ORDER BY plays DESC",
		from, to)

	result, err := c.CustomQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	stats := make([]models.TypeStat, 0, len(result.Results))
	for _, row := range result.Results {
		if len(row) < 3 {
			continue
		}
		stats = append(stats, models.TypeStat{
			Type:      row[0],
			PlayCount: parseInt(row[1]),
			Hours:     roundHours(parseFloat(row[2]) / 3600),
		})
	}
	return stats, nil
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func roundHours(h float64) float64 {
	return math.Round(h*10) / 10
}
