// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger persists published index snapshots in an embedded
// BadgerDB so a restarted service does not have to re-index every
// repository from scratch. The service degrades gracefully without it.
package badger

import (
	"fmt"

	dgbadger "github.com/dgraph-io/badger/v4"
)

// DB wraps an opened BadgerDB instance.
type DB struct {
	*dgbadger.DB
}

// Config controls how the database is opened.
type Config struct {
	// Path is the on-disk directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in RAM; used by tests.
	InMemory bool

	// SyncWrites fsyncs every write. Snapshots are rebuildable, so the
	// default trades durability for write latency.
	SyncWrites bool
}

// DefaultConfig returns the production configuration. Callers set Path.
func DefaultConfig() Config {
	return Config{}
}

// InMemoryConfig returns a configuration for ephemeral in-memory use.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// OpenDB opens a BadgerDB with the given configuration.
//
// Inputs:
//
//	cfg - Open options. Path must be set unless InMemory is true.
//
// Outputs:
//
//	*DB - The opened database. Callers own Close.
//	error - Non-nil if the directory cannot be opened or locked.
func OpenDB(cfg Config) (*DB, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, fmt.Errorf("badger: path must be set for on-disk databases")
	}

	opts := dgbadger.DefaultOptions(cfg.Path).
		WithInMemory(cfg.InMemory).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := dgbadger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: opening %s: %w", cfg.Path, err)
	}
	return &DB{DB: db}, nil
}
