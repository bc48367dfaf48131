// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/embywatch/embywatch/internal/models"
	"github.com/embywatch/embywatch/internal/template"
)

// CreateTemplate validates and persists a template. Variables are
// re-extracted from the content; caller-supplied values are ignored.
func (s *Store) CreateTemplate(ctx context.Context, t *models.NotificationTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}

	now := time.Now().UTC()
	t.ID = uuid.NewString()
	t.CreatedAt = now
	t.UpdatedAt = now
	t.Variables = template.ExtractVariables(t.TemplateContent)

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(templateKeyPrefix+t.ID), data)
	})
}

// GetTemplate retrieves a template by ID.
func (s *Store) GetTemplate(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	var t models.NotificationTemplate
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(templateKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("template %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get template: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &t)
		})
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FindTemplateByName returns the template with the given name.
func (s *Store) FindTemplateByName(ctx context.Context, name string) (*models.NotificationTemplate, error) {
	all, err := s.ListTemplates(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, fmt.Errorf("template %q: %w", name, models.ErrNotFound)
}

// ListTemplates returns templates, optionally filtered by channel tag,
// ordered by creation time.
func (s *Store) ListTemplates(ctx context.Context, channel string) ([]*models.NotificationTemplate, error) {
	var out []*models.NotificationTemplate
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(templateKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var t models.NotificationTemplate
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &t)
			})
			if err != nil {
				return err
			}
			if channel != "" && t.Channel != channel {
				continue
			}
			out = append(out, &t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateTemplate replaces an existing template, preserving ID and
// creation time and re-extracting variables.
func (s *Store) UpdateTemplate(ctx context.Context, t *models.NotificationTemplate) error {
	if err := t.Validate(); err != nil {
		return err
	}

	current, err := s.GetTemplate(ctx, t.ID)
	if err != nil {
		return err
	}
	t.CreatedAt = current.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	t.Variables = template.ExtractVariables(t.TemplateContent)

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal template: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(templateKeyPrefix+t.ID), data)
	})
}

// DeleteTemplate removes a template. Channels referencing it will skip
// with a logged failure at dispatch time.
func (s *Store) DeleteTemplate(ctx context.Context, id string) error {
	if _, err := s.GetTemplate(ctx, id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(templateKeyPrefix + id))
	})
}

// defaultTemplates are seeded once when the template collection is
// empty.
var defaultTemplates = []models.NotificationTemplate{
	{
		Name:    "Daily Playback Stats",
		Channel: "wecom",
		TemplateContent: "📊 {server} daily playback stats\n" +
			"Date: {date}\n" +
			"Plays: {total_plays}\n" +
			"Watch time: {total_hours} h\n" +
			"Top title: {top_item}",
	},
	{
		Name:    "User Activity",
		Channel: "wecom",
		TemplateContent: "👥 {server} user activity\n" +
			"Active users: {active_users}\n" +
			"Most active: {top_user} ({top_user_plays} plays)",
	},
	{
		Name:    "New User Registration",
		Channel: "wecom",
		TemplateContent: "🎉 New user on {server}\n" +
			"Username: {user}\n" +
			"Time: {datetime}",
	},
	{
		Name:    "Playback Started",
		Channel: "wecom",
		TemplateContent: "▶️ {user} started playing\n" +
			"{item} ({type})\n" +
			"Time: {datetime}",
	},
	{
		Name:    "Playback Stopped",
		Channel: "wecom",
		TemplateContent: "⏹ {user} finished watching\n" +
			"{item} ({type})\n" +
			"Time: {datetime}",
	},
	{
		Name:    "Server Event",
		Channel: "wecom",
		TemplateContent: "🖥 {server} {event}\n" +
			"Version: {version}\n" +
			"Time: {datetime}",
	},
}

// SeedDefaultTemplates inserts the built-in templates when none exist.
func (s *Store) SeedDefaultTemplates(ctx context.Context) error {
	existing, err := s.ListTemplates(ctx, "")
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	for i := range defaultTemplates {
		t := defaultTemplates[i]
		if err := s.CreateTemplate(ctx, &t); err != nil {
			return fmt.Errorf("seed template %q: %w", t.Name, err)
		}
	}
	s.log.Info().Int("count", len(defaultTemplates)).Msg("seeded default templates")
	return nil
}
