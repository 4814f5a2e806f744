// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package index maintains versioned, copy-on-write symbol indexes keyed by
// commit SHA.
//
// Writers stage changes on a Builder cloned from an existing snapshot and
// publish atomically; readers pin one published snapshot for the duration
// of a review run. Published snapshots are never mutated, which gives
// snapshot isolation without read-side locks.
package index

import (
	"fmt"
	"sync"

	"github.com/AleutianAI/AleutianReview/services/review/extract"
)

// DefaultMaxSnapshots is how many published commits are retained before
// the oldest are trimmed.
const DefaultMaxSnapshots = 8

// Options configures Index behavior and limits.
type Options struct {
	// MaxSnapshots bounds retained commit snapshots. The current snapshot
	// is never trimmed. Default: DefaultMaxSnapshots.
	MaxSnapshots int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{MaxSnapshots: DefaultMaxSnapshots}
}

// Option is a functional option for configuring an Index.
type Option func(*Options)

// WithMaxSnapshots sets the retention bound for published snapshots.
func WithMaxSnapshots(n int) Option {
	return func(o *Options) {
		o.MaxSnapshots = n
	}
}

// Index is the versioned manager of one repository's snapshots.
//
// Thread Safety:
//
//	Safe for concurrent use. Publish serializes behind a mutex; At and
//	Current take a read lock only long enough to fetch a snapshot pointer.
type Index struct {
	mu       sync.RWMutex
	current  *Snapshot
	byCommit map[string]*Snapshot

	// publishOrder tracks commits oldest-first for retention trimming.
	publishOrder []string

	options Options
}

// NewIndex creates an empty versioned index.
func NewIndex(opts ...Option) *Index {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.MaxSnapshots <= 0 {
		options.MaxSnapshots = DefaultMaxSnapshots
	}
	return &Index{
		byCommit: make(map[string]*Snapshot),
		options:  options,
	}
}

// Current returns the most recently published snapshot, or nil when
// nothing has been published yet.
func (ix *Index) Current() *Snapshot {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.current
}

// At returns the snapshot published for the given commit.
func (ix *Index) At(commitSHA string) (*Snapshot, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	snap, ok := ix.byCommit[commitSHA]
	return snap, ok
}

// Commits returns the retained commit SHAs, oldest first.
func (ix *Index) Commits() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]string, len(ix.publishOrder))
	copy(out, ix.publishOrder)
	return out
}

// Begin starts a staged update derived from the snapshot at baseCommit.
//
// Description:
//
//	When baseCommit is empty or unknown, the builder starts from the
//	current snapshot if one exists, otherwise from empty. The builder owns
//	a private clone; nothing it does is visible to readers until Publish.
func (ix *Index) Begin(baseCommit string) *Builder {
	ix.mu.RLock()
	base := ix.current
	if baseCommit != "" {
		if snap, ok := ix.byCommit[baseCommit]; ok {
			base = snap
		}
	}
	ix.mu.RUnlock()

	var staged *Snapshot
	if base != nil {
		staged = base.clone("")
	} else {
		staged = newEmptySnapshot("")
	}
	return &Builder{index: ix, staged: staged}
}

// Adopt registers an externally constructed snapshot (e.g. one loaded from
// persistence) as published for its commit and makes it current.
func (ix *Index) Adopt(snap *Snapshot) error {
	if snap == nil || snap.commitSHA == "" {
		return ErrEmptyCommit
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.registerLocked(snap)
	return nil
}

// registerLocked publishes snap and trims retention. Caller holds ix.mu.
func (ix *Index) registerLocked(snap *Snapshot) {
	if _, exists := ix.byCommit[snap.commitSHA]; !exists {
		ix.publishOrder = append(ix.publishOrder, snap.commitSHA)
	}
	ix.byCommit[snap.commitSHA] = snap
	ix.current = snap

	for len(ix.publishOrder) > ix.options.MaxSnapshots {
		oldest := ix.publishOrder[0]
		if oldest == snap.commitSHA {
			break
		}
		ix.publishOrder = ix.publishOrder[1:]
		delete(ix.byCommit, oldest)
	}
}

// Builder stages per-file updates for one commit before publication.
//
// Thread Safety:
//
//	Safe for concurrent use. Updates to different files proceed under a
//	short mutex hold; the merge of parallel per-file extraction results is
//	serialized here, matching the atomic per-file update contract.
type Builder struct {
	mu        sync.Mutex
	index     *Index
	staged    *Snapshot
	published bool
}

// Update replaces the definitions of one file on the staged snapshot.
//
// Description:
//
//	The file's previous definitions are removed and the new set inserted
//	in one step, so no reader of the eventually published snapshot can
//	observe stale entries alongside new ones. An empty defs slice clears
//	the file (parse failures exclude a file from the commit's index).
func (b *Builder) Update(file string, defs []*extract.SymbolDefinition) error {
	if file == "" {
		return fmt.Errorf("file path must not be empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published {
		return ErrBuilderPublished
	}
	b.staged.removeFile(file)
	for _, def := range defs {
		b.staged.insert(def)
	}
	return nil
}

// Publish atomically registers the staged snapshot for commitSHA and
// returns it. The builder is dead afterwards.
func (b *Builder) Publish(commitSHA string) (*Snapshot, error) {
	if commitSHA == "" {
		return nil, ErrEmptyCommit
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.published {
		return nil, ErrBuilderPublished
	}
	b.published = true
	b.staged.commitSHA = commitSHA

	b.index.mu.Lock()
	b.index.registerLocked(b.staged)
	b.index.mu.Unlock()

	return b.staged, nil
}
