// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/index"
)

// Indexer parses source files and merges their definitions into an index
// builder.
//
// Description:
//
//	Per-file parse and extract run in parallel with no shared mutable
//	state; results merge only through the builder's atomic per-file
//	Update. A file that fails to parse is recorded and excluded; it
//	never aborts the batch.
//
// Thread Safety:
//
//	Safe for concurrent use; each Build call owns its own accounting.
type Indexer struct {
	registry     *ast.Registry
	maxFileBytes int
	workers      int
	logger       *slog.Logger

	// progress, when set, is called after each file completes.
	progress func(done, total int)
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithWorkers bounds parallel file parses. Zero means one per CPU.
func WithWorkers(n int) IndexerOption {
	return func(ix *Indexer) {
		ix.workers = n
	}
}

// WithMaxFileBytes sets the per-file size cap. Oversize files are skipped.
func WithMaxFileBytes(n int) IndexerOption {
	return func(ix *Indexer) {
		if n > 0 {
			ix.maxFileBytes = n
		}
	}
}

// WithProgress registers a per-file completion callback.
func WithProgress(fn func(done, total int)) IndexerOption {
	return func(ix *Indexer) {
		ix.progress = fn
	}
}

// WithIndexerLogger overrides the logger.
func WithIndexerLogger(logger *slog.Logger) IndexerOption {
	return func(ix *Indexer) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

// NewIndexer creates an Indexer over the given parser registry.
func NewIndexer(registry *ast.Registry, opts ...IndexerOption) *Indexer {
	ix := &Indexer{
		registry:     registry,
		maxFileBytes: 1 << 20,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.workers <= 0 {
		ix.workers = runtime.NumCPU()
	}
	return ix
}

type fileOutcome struct {
	path    string
	defs    []*extract.SymbolDefinition
	err     error
	skipped string
}

// Build parses every file and applies the results to the builder.
//
// Inputs:
//
//	ctx - Cancels outstanding parses; partial results are discarded.
//	b - The staging builder; callers publish it after Build returns.
//	files - Source files for one commit. Contents come from the caller;
//	        the indexer performs no I/O.
//
// Outputs:
//
//	*IndexReport - Accounting for the batch, including per-file errors.
//	error - Non-nil only for cancellation or a builder-level failure.
func (ix *Indexer) Build(ctx context.Context, b *index.Builder, files []ast.SourceFile) (*IndexReport, error) {
	start := time.Now()
	report := &IndexReport{FilesTotal: len(files)}

	outcomes := make([]fileOutcome, len(files))
	var done int
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.workers)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			outcomes[i] = ix.processFile(gctx, f)
			if ix.progress != nil {
				mu.Lock()
				done++
				d := done
				mu.Unlock()
				ix.progress(d, len(files))
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("indexing cancelled: %w", err)
	}

	// Apply in path order so builder state is deterministic.
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].path < outcomes[j].path
	})
	var defsTotal int
	for _, o := range outcomes {
		switch {
		case o.skipped != "":
			report.Skipped = append(report.Skipped, SkippedFile{Path: o.path, Reason: o.skipped})
		case o.err != nil:
			report.FileErrors = append(report.FileErrors, FileError{Path: o.path, Error: o.err.Error()})
		default:
			if err := b.Update(o.path, o.defs); err != nil {
				return nil, fmt.Errorf("updating index for %s: %w", o.path, err)
			}
			report.FilesParsed++
			defsTotal += len(o.defs)
		}
	}
	report.Definitions = defsTotal
	report.Duration = time.Since(start)

	ix.logger.Info("index batch built",
		slog.Int("files_total", report.FilesTotal),
		slog.Int("files_parsed", report.FilesParsed),
		slog.Int("definitions", report.Definitions),
		slog.Int("errors", len(report.FileErrors)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Duration("elapsed", report.Duration))
	return report, nil
}

// processFile parses one file and extracts its definitions.
func (ix *Indexer) processFile(ctx context.Context, f ast.SourceFile) fileOutcome {
	out := fileOutcome{path: f.Path}
	if len(f.Content) > ix.maxFileBytes {
		out.skipped = fmt.Sprintf("file exceeds %d bytes", ix.maxFileBytes)
		return out
	}

	parser, ok := ix.lookupParser(f)
	if !ok {
		out.skipped = "unsupported language"
		return out
	}

	res, err := parser.Parse(ctx, f.Content, f.Path)
	if err != nil {
		if errors.Is(err, ast.ErrFileTooLarge) {
			out.skipped = "file exceeds parser limit"
			return out
		}
		out.err = err
		return out
	}
	out.defs = extract.Definitions(res, f.CommitSHA)
	return out
}

func (ix *Indexer) lookupParser(f ast.SourceFile) (ast.Parser, bool) {
	if f.Language != "" {
		return ix.registry.ForLanguage(f.Language)
	}
	return ix.registry.ForFile(f.Path)
}
