// Copyright (C) 2025 Blueprint Labs (engineering@blueprint-sim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package badgerstore persists session progression state in an embedded
// BadgerDB instance.
//
// Progress records are keyed as progress/<stage_id>/<session_id> with
// JSON values, so a session that reconnects to the same stage can resume
// its achieved requirements without replaying the mutation log.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/blueprint-sim/blueprint/services/engine/progression"
)

// Config holds configuration for the progress store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// Logger receives BadgerDB's internal log output.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns durable defaults for production use.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration suited to tests: no disk I/O,
// no sync, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a BadgerDB-backed progression.StateWriter and StateReader.
//
// Thread Safety: safe for concurrent use; BadgerDB serializes
// conflicting transactions internally.
type Store struct {
	db  *badger.DB
	cfg Config
}

var (
	_ progression.StateWriter = (*Store)(nil)
	_ progression.StateReader = (*Store)(nil)
)

// Open creates and opens the progress store.
//
// Creates the directory if it doesn't exist. Caller must call Close()
// when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}

	return &Store{db: db, cfg: cfg}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// progressKey builds the storage key for a stage/session pair.
func progressKey(stageID, sessionID string) []byte {
	return []byte("progress/" + stageID + "/" + sessionID)
}

// WriteProgress upserts the progress record for the session.
func (s *Store) WriteProgress(ctx context.Context, progress progression.SavedProgress) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress %s/%s: %w", progress.StageID, progress.SessionID, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(progressKey(progress.StageID, progress.SessionID), payload)
	})
	if err != nil {
		return fmt.Errorf("write progress %s/%s: %w", progress.StageID, progress.SessionID, err)
	}

	return nil
}

// ReadProgress loads the progress record for the session. The second
// return value is false when no record exists.
func (s *Store) ReadProgress(ctx context.Context, stageID, sessionID string) (progression.SavedProgress, bool, error) {
	if err := ctx.Err(); err != nil {
		return progression.SavedProgress{}, false, err
	}

	var progress progression.SavedProgress
	var found bool

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(progressKey(stageID, sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &progress)
		})
	})
	if err != nil {
		return progression.SavedProgress{}, false, fmt.Errorf("read progress %s/%s: %w", stageID, sessionID, err)
	}

	return progress, found, nil
}

// DeleteProgress removes all progress records for a stage/session pair.
// Missing records are not an error.
func (s *Store) DeleteProgress(ctx context.Context, stageID, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(progressKey(stageID, sessionID))
	})
	if err != nil {
		return fmt.Errorf("delete progress %s/%s: %w", stageID, sessionID, err)
	}

	return nil
}

// RunGC runs value log garbage collection on the configured interval
// until the context is cancelled. No-op for in-memory stores or when
// GCInterval is 0.
func (s *Store) RunGC(ctx context.Context) {
	if s.cfg.InMemory || s.cfg.GCInterval <= 0 {
		return
	}

	ticker := time.NewTicker(s.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Badger returns ErrNoRewrite when there is nothing to
			// collect; anything else is worth surfacing.
			if err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio); err != nil &&
				!errors.Is(err, badger.ErrNoRewrite) && s.cfg.Logger != nil {
				s.cfg.Logger.Warn("badger value log gc failed", "error", err)
			}
		}
	}
}
