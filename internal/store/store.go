// Embywatch - Emby Playback Statistics Notifications and Reports
// Copyright 2026 Embywatch Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/embywatch/embywatch

// Package store persists channels, templates, settings and the
// append-only delivery log in BadgerDB. Values are JSON-encoded; keys
// carry type prefixes so each collection can be iterated independently.
package store

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/embywatch/embywatch/internal/logging"
)

// Key prefixes for BadgerDB storage.
const (
	channelKeyPrefix  = "channel:"
	templateKeyPrefix = "template:"
	settingsKey       = "settings:notification"
	logKeyPrefix      = "log:"
	markKeyPrefix     = "sched_mark:"
)

// Store is the BadgerDB-backed persistence layer.
type Store struct {
	db  *badger.DB
	log zerolog.Logger
}

// Open opens (or creates) the store at path. An empty path opens an
// in-memory database, used by tests.
func Open(path string) (*Store, error) {
	var opts badger.Options
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(path)
	}
	logger := logging.WithComponent("store")
	opts = opts.WithLogger(badgerLogger{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	return &Store{db: db, log: logger}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunGC triggers a badger value-log garbage collection cycle. Callers
// run it periodically; badger.ErrNoRewrite means nothing to collect.
func (s *Store) RunGC() error {
	err := s.db.RunValueLogGC(0.5)
	if err == badger.ErrNoRewrite {
		return nil
	}
	return err
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	log zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.log.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.log.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.log.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.log.Debug().Msgf(f, v...) }
