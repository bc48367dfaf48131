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
)

// CreateChannel validates and persists a new channel configuration,
// assigning its ID and timestamps.
func (s *Store) CreateChannel(ctx context.Context, cfg *models.ChannelConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	existing, err := s.ListChannels(ctx, ChannelFilter{})
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.Name == cfg.Name {
			return fmt.Errorf("channel %q: %w", cfg.Name, models.ErrConflict)
		}
	}

	now := time.Now().UTC()
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal channel: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(channelKeyPrefix+cfg.ID), data)
	})
}

// GetChannel retrieves a channel configuration by ID. Secrets are NOT
// masked here; callers serving API reads must use Redacted().
func (s *Store) GetChannel(ctx context.Context, id string) (*models.ChannelConfig, error) {
	var cfg models.ChannelConfig
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(channelKeyPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("channel %s: %w", id, models.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("get channel: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &cfg)
		})
	})
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ChannelFilter narrows ListChannels results.
type ChannelFilter struct {
	Kind    models.ChannelKind
	Enabled *bool
}

// ListChannels returns channel configurations matching the filter,
// ordered by creation time.
func (s *Store) ListChannels(ctx context.Context, filter ChannelFilter) ([]*models.ChannelConfig, error) {
	var out []*models.ChannelConfig
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(channelKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var cfg models.ChannelConfig
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cfg)
			})
			if err != nil {
				return err
			}
			if filter.Kind != "" && cfg.Type != filter.Kind {
				continue
			}
			if filter.Enabled != nil && cfg.Enabled != *filter.Enabled {
				continue
			}
			out = append(out, &cfg)
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

// UpdateChannel replaces an existing channel configuration, preserving
// its ID and creation time. Secret fields that arrive in their masked
// form keep the stored values, so redacted GET responses can be edited
// and PUT back without losing credentials.
func (s *Store) UpdateChannel(ctx context.Context, cfg *models.ChannelConfig) error {
	current, err := s.GetChannel(ctx, cfg.ID)
	if err != nil {
		return err
	}
	// Masked secrets echoed back from a redacted GET keep the stored
	// values.
	cfg.RestoreSecrets(current)
	if err := cfg.Validate(); err != nil {
		return err
	}
	cfg.CreatedAt = current.CreatedAt
	cfg.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal channel: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(channelKeyPrefix+cfg.ID), data)
	})
}

// DeleteChannel removes a channel configuration. Deleting a missing
// channel returns ErrNotFound.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	if _, err := s.GetChannel(ctx, id); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(channelKeyPrefix + id))
	})
}
