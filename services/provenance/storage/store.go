// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage provides the trace record store on BadgerDB.
//
// BadgerDB is used for local embedded storage with low-latency access.
// Records are keyed by response ID and written last-writer-wins; the store
// holds whatever was last written and never judges staleness itself (that is
// a read-time decision made by the HTTP layer). Records are never deleted.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianProvenance/services/provenance/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound indicates no trace record exists for the requested ID.
	// A missing key is an expected outcome, not a storage failure.
	ErrNotFound = errors.New("trace record not found")
)

// =============================================================================
// Metrics
// =============================================================================

var (
	traceUpsertsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_trace_upserts_total",
		Help: "Total trace record upserts by status",
	}, []string{"status"})

	traceRetrievesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "provenance_trace_retrieves_total",
		Help: "Total trace record retrievals by result",
	}, []string{"result"})
)

// =============================================================================
// Store Interface
// =============================================================================

// Store is the trace record store contract.
//
// Upsert durably stores or overwrites a record by its response ID; it never
// fails for well-formed input but propagates storage-layer failures. Retrieve
// returns the stored record, or ErrNotFound for a missing key. Both operations
// are independent of staleness.
type Store interface {
	Upsert(ctx context.Context, md *datatypes.ResponseMetadata) error
	Retrieve(ctx context.Context, responseID string) (*datatypes.ResponseMetadata, error)
}

// =============================================================================
// Badger Store
// =============================================================================

// keyPrefix namespaces trace records within the database.
const keyPrefix = "trace:"

// Config holds configuration for a badger-backed store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for store and BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults for production use.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns configuration optimized for testing.
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

// BadgerStore is the badger-backed Store implementation.
type BadgerStore struct {
	db     *badger.DB
	logger *slog.Logger
}

// Open creates and opens a badger-backed store.
//
// # Description
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist.
//
// # Inputs
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// # Outputs
//
//	*BadgerStore - The opened store. Caller must call Close() when done.
//	error - Non-nil if path is invalid or database cannot be opened.
//
// # Thread Safety
//
// The returned store is safe for concurrent use.
func Open(cfg Config) (*BadgerStore, error) {
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
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{db: db, logger: logger}, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// Upsert stores or overwrites a trace record keyed by its response ID.
//
// # Description
//
//	Serializes the record (including any preserved unknown fields) and
//	writes it in a single transaction. Last writer wins; there is no
//	versioning or conflict detection.
//
// # Outputs
//
//	error - Non-nil if the record has no response ID, serialization fails,
//	or the storage layer fails.
func (s *BadgerStore) Upsert(ctx context.Context, md *datatypes.ResponseMetadata) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if md == nil || md.ResponseID == "" {
		return datatypes.ErrMissingResponseID
	}

	data, err := md.MarshalJSON()
	if err != nil {
		traceUpsertsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("serialize trace record: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefix+md.ResponseID), data)
	})
	if err != nil {
		traceUpsertsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("store trace record %s: %w", md.ResponseID, err)
	}

	traceUpsertsTotal.WithLabelValues("ok").Inc()
	s.logger.Debug("trace record stored", "response_id", md.ResponseID, "bytes", len(data))
	return nil
}

// Retrieve returns the stored record for a response ID.
//
// # Outputs
//
//	*datatypes.ResponseMetadata - The stored record, if present.
//	error - ErrNotFound for a missing key; other errors indicate a
//	storage or decode failure.
func (s *BadgerStore) Retrieve(ctx context.Context, responseID string) (*datatypes.ResponseMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if responseID == "" {
		return nil, ErrNotFound
	}

	var md datatypes.ResponseMetadata
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + responseID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return md.UnmarshalJSON(val)
		})
	})

	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		traceRetrievesTotal.WithLabelValues("not_found").Inc()
		return nil, ErrNotFound
	case err != nil:
		traceRetrievesTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("retrieve trace record %s: %w", responseID, err)
	}

	traceRetrievesTotal.WithLabelValues("ok").Inc()
	return &md, nil
}
