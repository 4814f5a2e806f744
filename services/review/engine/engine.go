// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates indexing and review runs.
//
// It owns the per-repository index managers, the in-flight run registry
// with supersede semantics, and the verification pipeline that turns a
// diff into ordered findings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/config"
	"github.com/AleutianAI/AleutianReview/services/review/diffscan"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/index"
	"github.com/AleutianAI/AleutianReview/services/review/resolve"
	"github.com/AleutianAI/AleutianReview/services/review/suggest"
	"github.com/AleutianAI/AleutianReview/services/review/verify"
)

// DefaultMaxRetainedRuns bounds the completed-run registry.
const DefaultMaxRetainedRuns = 128

// Options configures engine behavior beyond the shared Config.
type Options struct {
	// Logger receives structured engine logs.
	Logger *slog.Logger

	// RateLimit caps run submissions per second. Zero disables limiting.
	RateLimit rate.Limit

	// RateBurst is the submission burst size when limiting is on.
	RateBurst int

	// MaxRetainedRuns bounds how many finished runs stay queryable.
	MaxRetainedRuns int

	// Observers receive run events synchronously, in order.
	Observers []func(RunEvent)
}

// DefaultEngineOptions returns the default engine options.
func DefaultEngineOptions() Options {
	return Options{
		Logger:          slog.Default(),
		MaxRetainedRuns: DefaultMaxRetainedRuns,
	}
}

// Option is a functional option for configuring an Engine.
type Option func(*Options)

// WithLogger overrides the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

// WithRateLimit caps run submissions.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(o *Options) {
		o.RateLimit = limit
		o.RateBurst = burst
	}
}

// WithMaxRetainedRuns bounds the finished-run registry.
func WithMaxRetainedRuns(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxRetainedRuns = n
		}
	}
}

// WithObserver registers a run event observer. Observers are invoked
// synchronously on the run's goroutine and must not block.
func WithObserver(fn func(RunEvent)) Option {
	return func(o *Options) {
		if fn != nil {
			o.Observers = append(o.Observers, fn)
		}
	}
}

type inflightRun struct {
	runID  string
	cancel context.CancelCauseFunc
}

// Engine coordinates per-repository indexes and review runs.
//
// Thread Safety:
//
//	Safe for concurrent use. Indexing and review for different
//	repositories never block each other; review pins an immutable
//	snapshot and runs lock-free after submission.
type Engine struct {
	cfg      config.Config
	registry *ast.Registry
	indexer  *Indexer
	resolver *resolve.Resolver
	verifier *verify.Verifier
	synth    *suggest.Synthesizer
	logger   *slog.Logger
	limiter  *rate.Limiter

	observers []func(RunEvent)

	mu       sync.Mutex
	indexes  map[string]*index.Index // by RepoID
	inflight map[string]*inflightRun // by RepoID#PRNumber
	runs     map[string]*RunResult   // by run ID
	runOrder []string
	maxRuns  int
}

// New creates an Engine from validated configuration.
func New(cfg config.Config, opts ...Option) *Engine {
	options := DefaultEngineOptions()
	for _, opt := range opts {
		opt(&options)
	}

	registry := ast.DefaultRegistry().Restrict(cfg.SupportedLanguages)

	var limiter *rate.Limiter
	if options.RateLimit > 0 {
		burst := options.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(options.RateLimit, burst)
	}

	return &Engine{
		cfg:      cfg,
		registry: registry,
		indexer: NewIndexer(registry,
			WithWorkers(cfg.WorkerCount),
			WithMaxFileBytes(cfg.MaxFileBytes),
			WithIndexerLogger(options.Logger)),
		resolver:  resolve.New(resolve.WithMinConfidence(cfg.MinConfidence)),
		verifier:  verify.New(verify.WithReturnMisuseAdvisory(cfg.ReturnMisuseAdvisory)),
		synth:     suggest.New(options.Logger),
		logger:    options.Logger,
		limiter:   limiter,
		observers: options.Observers,
		indexes:   make(map[string]*index.Index),
		inflight:  make(map[string]*inflightRun),
		runs:      make(map[string]*RunResult),
		maxRuns:   options.MaxRetainedRuns,
	}
}

// =============================================================================
// Indexing
// =============================================================================

// IndexRepo parses files for one commit and publishes a snapshot.
//
// Description:
//
//	Builds on top of the repository's current snapshot when one exists,
//	so incremental batches only need the changed files. Parse failures
//	are collected into the report, never fatal.
func (e *Engine) IndexRepo(ctx context.Context, repoID, commitSHA string, files []ast.SourceFile) (*IndexReport, error) {
	if !e.cfg.Enabled {
		return nil, ErrDisabled
	}
	if repoID == "" {
		return nil, fmt.Errorf("repo ID must not be empty")
	}
	ctx, span := startIndexSpan(ctx, repoID, commitSHA, len(files))
	defer span.End()

	ix := e.indexFor(repoID)
	builder := ix.Begin("")
	report, err := e.indexer.Build(ctx, builder, files)
	if err != nil {
		return nil, err
	}
	snap, err := builder.Publish(commitSHA)
	if err != nil {
		return nil, fmt.Errorf("publishing snapshot %s: %w", commitSHA, err)
	}

	report.RepoID = repoID
	report.CommitSHA = commitSHA
	recordIndexMetrics(ctx, report, snap.Stats().Definitions)
	setIndexSpanResult(span, report)
	return report, nil
}

// IndexStats returns the published snapshot commits and current totals
// for one repository.
func (e *Engine) IndexStats(repoID string) (index.SnapshotStats, []string, bool) {
	e.mu.Lock()
	ix, ok := e.indexes[repoID]
	e.mu.Unlock()
	if !ok {
		return index.SnapshotStats{}, nil, false
	}
	current := ix.Current()
	if current == nil {
		return index.SnapshotStats{}, ix.Commits(), true
	}
	return current.Stats(), ix.Commits(), true
}

// SnapshotAt returns the published snapshot for a commit, for persistence
// and debugging surfaces.
func (e *Engine) SnapshotAt(repoID, commitSHA string) (*index.Snapshot, bool) {
	e.mu.Lock()
	ix, ok := e.indexes[repoID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	return ix.At(commitSHA)
}

// AdoptSnapshot registers a restored snapshot, typically loaded from the
// snapshot store at startup.
func (e *Engine) AdoptSnapshot(repoID string, snap *index.Snapshot) error {
	return e.indexFor(repoID).Adopt(snap)
}

func (e *Engine) indexFor(repoID string) *index.Index {
	e.mu.Lock()
	defer e.mu.Unlock()
	ix, ok := e.indexes[repoID]
	if !ok {
		ix = index.NewIndex(index.WithMaxSnapshots(e.cfg.MaxIndexedSnapshots))
		e.indexes[repoID] = ix
	}
	return ix
}

// =============================================================================
// Review Runs
// =============================================================================

// Review executes one run synchronously.
//
// Description:
//
//	Pins the snapshot at BaseCommit (building it from BaseFiles when
//	absent), overlays the head contents of the changed files, scans the
//	diff for added or modified call sites, then resolves and verifies
//	each against the pinned contracts. A newer head for the same
//	(RepoID, PRNumber) cancels this run with ErrSuperseded; superseded
//	runs never emit findings.
func (e *Engine) Review(ctx context.Context, req ReviewRequest) (*RunResult, error) {
	if !e.cfg.Enabled {
		return nil, ErrDisabled
	}
	if e.limiter != nil && !e.limiter.Allow() {
		return nil, fmt.Errorf("review %s#%d: %w", req.RepoID, req.PRNumber, ErrRateLimited)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	run := &RunResult{
		ID:         uuid.NewString(),
		RepoID:     req.RepoID,
		PRNumber:   req.PRNumber,
		BaseCommit: req.BaseCommit,
		HeadCommit: req.HeadCommit,
		Status:     RunStatusRunning,
		Findings:   []Finding{},
		Metadata:   RunMetadata{StartedAt: time.Now()},
	}
	e.admit(run, cancel)
	e.emit(RunEvent{RunID: run.ID, RepoID: run.RepoID, PRNumber: run.PRNumber,
		Type: RunEventStarted, Timestamp: run.Metadata.StartedAt})

	ctx, span := startRunSpan(ctx, req)
	defer span.End()

	result, err := e.execute(ctx, req, run)
	e.retire(run)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, ErrSuperseded) || errors.Is(context.Cause(ctx), ErrSuperseded) {
			e.finishRun(run, RunStatusSuperseded)
			e.emit(RunEvent{RunID: run.ID, RepoID: run.RepoID, PRNumber: run.PRNumber,
				Type: RunEventSuperseded, Timestamp: time.Now()})
			return nil, fmt.Errorf("review %s#%d: %w", req.RepoID, req.PRNumber, ErrSuperseded)
		}
		e.finishRun(run, RunStatusFailed)
		e.emit(RunEvent{RunID: run.ID, RepoID: run.RepoID, PRNumber: run.PRNumber,
			Type: RunEventFailed, Timestamp: time.Now()})
		return nil, err
	}

	e.finishRun(run, RunStatusCompleted)
	setRunSpanResult(span, run)
	e.emit(RunEvent{RunID: run.ID, RepoID: run.RepoID, PRNumber: run.PRNumber,
		Type: RunEventCompleted, Timestamp: run.Metadata.CompletedAt})
	recordRunMetrics(ctx, run)

	e.logger.Info("review run completed",
		slog.String("run_id", run.ID),
		slog.String("repo", run.RepoID),
		slog.Int("pr", run.PRNumber),
		slog.Int("findings", len(run.Findings)),
		slog.Int("call_sites", run.Metadata.CallSitesScanned),
		slog.Duration("elapsed", run.Metadata.Duration))
	return result, nil
}

// RunByID returns a finished or in-flight run.
func (e *Engine) RunByID(id string) (*RunResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	run, ok := e.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return run, nil
}

// execute runs the pipeline proper. It mutates run's findings and
// metadata; lifecycle fields stay with the caller.
func (e *Engine) execute(ctx context.Context, req ReviewRequest, run *RunResult) (*RunResult, error) {
	snap, err := e.pinSnapshot(ctx, req)
	if err != nil {
		return nil, err
	}

	// Overlay head definitions of the changed files so calls to symbols
	// introduced by the PR itself still resolve.
	parsed, headDefs, err := e.parseHead(ctx, req, run)
	if err != nil {
		return nil, err
	}
	snap, err = e.overlayHead(req, snap, headDefs)
	if err != nil {
		return nil, err
	}

	calls, err := diffscan.ScanDiff(ctx, req.Diff, parsed)
	if err != nil {
		return nil, fmt.Errorf("scanning diff: %w", err)
	}
	run.Metadata.CallSitesScanned = len(calls)

	for _, call := range calls {
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		cands := e.resolver.Resolve(call, snap)
		if len(cands) == 0 {
			continue
		}
		run.Metadata.CallSitesMatched++
		mismatch := e.verifier.VerifyAll(call, cands)
		if mismatch == nil {
			continue
		}
		sug, ok := e.synth.Synthesize(mismatch)
		if !ok {
			continue
		}
		finding := Finding{
			ID:         uuid.NewString(),
			Suggestion: sug,
		}
		if mismatch.Def != nil {
			finding.Callee = mismatch.Def.QualifiedName
		}
		run.Findings = append(run.Findings, finding)
		e.emit(RunEvent{RunID: run.ID, RepoID: run.RepoID, PRNumber: run.PRNumber,
			Type: RunEventFinding, Finding: &finding, Timestamp: time.Now()})
	}

	sort.SliceStable(run.Findings, func(i, j int) bool {
		a, b := run.Findings[i].Suggestion, run.Findings[j].Suggestion
		if a.File != b.File {
			return a.File < b.File
		}
		return a.StartLine < b.StartLine
	})
	return run, nil
}

// pinSnapshot returns the snapshot verification resolves against.
func (e *Engine) pinSnapshot(ctx context.Context, req ReviewRequest) (*index.Snapshot, error) {
	ix := e.indexFor(req.RepoID)
	if snap, ok := ix.At(req.BaseCommit); ok {
		return snap, nil
	}
	if len(req.BaseFiles) == 0 {
		if snap := ix.Current(); snap != nil {
			// Base unknown but the repo has an index; fall back to the
			// newest published snapshot rather than refusing the run.
			e.logger.Warn("base snapshot missing, using current",
				slog.String("repo", req.RepoID),
				slog.String("base", req.BaseCommit),
				slog.String("current", snap.CommitSHA()))
			return snap, nil
		}
		return nil, fmt.Errorf("repo %s at %s: %w", req.RepoID, req.BaseCommit, ErrNoSnapshot)
	}

	builder := ix.Begin("")
	if _, err := e.indexer.Build(ctx, builder, req.BaseFiles); err != nil {
		return nil, err
	}
	snap, err := builder.Publish(req.BaseCommit)
	if err != nil {
		return nil, fmt.Errorf("publishing base snapshot %s: %w", req.BaseCommit, err)
	}
	return snap, nil
}

// parseHead parses the head contents of the changed files.
func (e *Engine) parseHead(ctx context.Context, req ReviewRequest, run *RunResult) (map[string]*ast.ParseResult, map[string][]*extract.SymbolDefinition, error) {
	parsed := make(map[string]*ast.ParseResult, len(req.Files))
	defs := make(map[string][]*extract.SymbolDefinition, len(req.Files))
	for _, f := range req.Files {
		if cause := context.Cause(ctx); cause != nil {
			return nil, nil, cause
		}
		if len(f.Content) > e.cfg.MaxFileBytes {
			run.Metadata.Skipped = append(run.Metadata.Skipped,
				SkippedFile{Path: f.Path, Reason: fmt.Sprintf("file exceeds %d bytes", e.cfg.MaxFileBytes)})
			continue
		}
		parser, ok := e.lookupParser(f)
		if !ok {
			run.Metadata.Skipped = append(run.Metadata.Skipped,
				SkippedFile{Path: f.Path, Reason: "unsupported language"})
			continue
		}
		res, err := parser.Parse(ctx, f.Content, f.Path)
		if err != nil {
			run.Metadata.FileErrors = append(run.Metadata.FileErrors,
				FileError{Path: f.Path, Error: err.Error()})
			continue
		}
		parsed[f.Path] = res
		defs[f.Path] = extract.Definitions(res, req.HeadCommit)
		run.Metadata.FilesParsed++
	}
	return parsed, defs, nil
}

// overlayHead clones the pinned snapshot and replaces the changed files'
// definitions with their head versions.
func (e *Engine) overlayHead(req ReviewRequest, base *index.Snapshot, headDefs map[string][]*extract.SymbolDefinition) (*index.Snapshot, error) {
	if len(headDefs) == 0 {
		return base, nil
	}
	ix := e.indexFor(req.RepoID)
	builder := ix.Begin(base.CommitSHA())
	paths := make([]string, 0, len(headDefs))
	for p := range headDefs {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		if err := builder.Update(p, headDefs[p]); err != nil {
			return nil, fmt.Errorf("overlaying %s: %w", p, err)
		}
	}
	snap, err := builder.Publish(req.HeadCommit)
	if err != nil {
		return nil, fmt.Errorf("publishing head overlay %s: %w", req.HeadCommit, err)
	}
	return snap, nil
}

func (e *Engine) lookupParser(f ast.SourceFile) (ast.Parser, bool) {
	if f.Language != "" {
		return e.registry.ForLanguage(f.Language)
	}
	return e.registry.ForFile(f.Path)
}

// =============================================================================
// Run lifecycle bookkeeping
// =============================================================================

func prKey(repoID string, pr int) string {
	return fmt.Sprintf("%s#%d", repoID, pr)
}

// admit registers the run and cancels any in-flight run for the same PR.
func (e *Engine) admit(run *RunResult, cancel context.CancelCauseFunc) {
	key := prKey(run.RepoID, run.PRNumber)

	e.mu.Lock()
	prev := e.inflight[key]
	e.inflight[key] = &inflightRun{runID: run.ID, cancel: cancel}
	e.runs[run.ID] = snapshotOfRun(run)
	e.runOrder = append(e.runOrder, run.ID)
	for len(e.runOrder) > e.maxRuns {
		oldest := e.runOrder[0]
		e.runOrder = e.runOrder[1:]
		delete(e.runs, oldest)
	}
	e.mu.Unlock()

	if prev != nil {
		e.logger.Info("superseding in-flight run",
			slog.String("repo", run.RepoID),
			slog.Int("pr", run.PRNumber),
			slog.String("old_run", prev.runID),
			slog.String("new_run", run.ID))
		prev.cancel(ErrSuperseded)
	}
}

// retire drops the inflight entry if this run still owns it.
func (e *Engine) retire(run *RunResult) {
	key := prKey(run.RepoID, run.PRNumber)
	e.mu.Lock()
	if cur, ok := e.inflight[key]; ok && cur.runID == run.ID {
		delete(e.inflight, key)
	}
	e.mu.Unlock()
}

func (e *Engine) finishRun(run *RunResult, status RunStatus) {
	run.Metadata.CompletedAt = time.Now()
	run.Metadata.Duration = run.Metadata.CompletedAt.Sub(run.Metadata.StartedAt)
	run.Status = status
	if status != RunStatusCompleted {
		// Stale or failed runs must not leak partial findings.
		run.Findings = []Finding{}
	}

	e.mu.Lock()
	if _, ok := e.runs[run.ID]; ok {
		e.runs[run.ID] = snapshotOfRun(run)
	}
	e.mu.Unlock()
}

// snapshotOfRun copies a run so registry readers never observe a run the
// pipeline is still mutating.
func snapshotOfRun(run *RunResult) *RunResult {
	cp := *run
	cp.Findings = append([]Finding{}, run.Findings...)
	cp.Metadata.FileErrors = append([]FileError(nil), run.Metadata.FileErrors...)
	cp.Metadata.Skipped = append([]SkippedFile(nil), run.Metadata.Skipped...)
	return &cp
}

func (e *Engine) emit(ev RunEvent) {
	for _, fn := range e.observers {
		fn(ev)
	}
}
