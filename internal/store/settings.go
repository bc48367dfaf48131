// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/embywatch/embywatch/internal/models"
)

// GetSettings returns the notification settings document, seeding the
// defaults when none exists yet.
func (s *Store) GetSettings(ctx context.Context) (*models.NotificationSettings, error) {
	var settings models.NotificationSettings
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(settingsKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &settings)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		defaults := models.DefaultNotificationSettings()
		if err := s.SaveSettings(ctx, defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if settings.Schedule == nil {
		settings.Schedule = models.DefaultReportSchedule()
	}
	return &settings, nil
}

// SaveSettings validates and persists the settings document.
func (s *Store) SaveSettings(ctx context.Context, settings *models.NotificationSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(settingsKey), data)
	})
}

// GetSchedule returns the report schedule from the settings document.
func (s *Store) GetSchedule(ctx context.Context) (*models.ReportSchedule, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	return settings.Schedule, nil
}

// SaveSchedule updates the schedule inside the settings document.
func (s *Store) SaveSchedule(ctx context.Context, schedule *models.ReportSchedule) error {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}
	settings.Schedule = schedule
	return s.SaveSettings(ctx, settings)
}

// LastFired returns when a report type last fired, zero time if never.
// The scheduler uses the marker to suppress double fires across
// restarts.
func (s *Store) LastFired(ctx context.Context, reportType models.ReportType) (time.Time, error) {
	var fired time.Time
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(markKeyPrefix + string(reportType)))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return fired.UnmarshalText(val)
		})
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("get last-fired marker: %w", err)
	}
	return fired, nil
}

// MarkFired records when a scheduled report type fired.
func (s *Store) MarkFired(ctx context.Context, reportType models.ReportType, at time.Time) error {
	data, err := at.UTC().MarshalText()
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(markKeyPrefix+string(reportType)), data)
	})
}
