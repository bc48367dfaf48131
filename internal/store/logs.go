// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/embywatch/embywatch/internal/models"
)

// logKey builds "log:<reverse-timestamp>:<uuid>" so prefix iteration
// yields newest entries first.
func logKey(sentAt time.Time, id string) []byte {
	reverse := ^uint64(0) - uint64(sentAt.UnixNano())
	return []byte(fmt.Sprintf("%s%020d:%s", logKeyPrefix, reverse, id))
}

// AppendDeliveryLog records one delivery outcome. The log is
// append-only; entries are never updated.
func (s *Store) AppendDeliveryLog(ctx context.Context, entry *models.DeliveryLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.SentAt.IsZero() {
		entry.SentAt = time.Now().UTC()
	}
	entry.MessageContent = models.TruncateContent(entry.MessageContent)

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(logKey(entry.SentAt, entry.ID), data)
	})
}

// LogFilter narrows ListDeliveryLogs results.
type LogFilter struct {
	ConfigID string
	Limit    int
	Offset   int
}

// ListDeliveryLogs returns entries newest-first with the total count
// before paging.
func (s *Store) ListDeliveryLogs(ctx context.Context, filter LogFilter) ([]*models.DeliveryLogEntry, int, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}

	var matched []*models.DeliveryLogEntry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(logKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry models.DeliveryLogEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			if filter.ConfigID != "" && entry.ConfigID != filter.ConfigID {
				continue
			}
			matched = append(matched, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	total := len(matched)
	if filter.Offset >= total {
		return []*models.DeliveryLogEntry{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

// Statistics aggregates the delivery log and channel registry into the
// dashboard statistics payload.
func (s *Store) Statistics(ctx context.Context) (*models.DeliveryStatistics, error) {
	channels, err := s.ListChannels(ctx, ChannelFilter{})
	if err != nil {
		return nil, err
	}

	stats := &models.DeliveryStatistics{
		TotalConfigs: len(channels),
	}
	for _, c := range channels {
		if c.Enabled {
			stats.EnabledConfigs++
		}
	}

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(logKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry models.DeliveryLogEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			stats.TotalSent++
			if entry.Status == models.DeliveryStatusSuccess {
				stats.SuccessSent++
			} else {
				stats.FailedSent++
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stats.SuccessRate = models.ComputeSuccessRate(stats.SuccessSent, stats.TotalSent)
	return stats, nil
}

// PruneDeliveryLogs deletes entries older than the retention cutoff and
// returns how many were removed. Reverse-timestamp keys put the oldest
// entries at the end of the prefix range.
func (s *Store) PruneDeliveryLogs(ctx context.Context, olderThan time.Time) (int, error) {
	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(logKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var entry models.DeliveryLogEntry
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				return err
			}
			if entry.SentAt.Before(olderThan) {
				stale = append(stale, it.Item().KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		for _, key := range stale {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(stale), nil
}
