// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package review exposes the similarity-review engine over HTTP: index
// management, synchronous review runs, and a websocket event stream for
// collaborators that post the resulting comments.
package review

import (
	"context"
	"errors"
	"log/slog"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/config"
	"github.com/AleutianAI/AleutianReview/services/review/engine"
	badgerstore "github.com/AleutianAI/AleutianReview/services/review/storage/badger"
)

// Service owns the review engine, the run event hub, and the optional
// snapshot store.
//
// Thread Safety:
//
//	Safe for concurrent use; all state lives in the engine and the hub,
//	both of which handle their own locking.
type Service struct {
	cfg    config.Config
	engine *engine.Engine
	hub    *eventHub
	store  *badgerstore.SnapshotStore
	logger *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSnapshotStore enables snapshot persistence. The service works
// without one; snapshots are then rebuilt from scratch after restarts.
func WithSnapshotStore(store *badgerstore.SnapshotStore) ServiceOption {
	return func(s *Service) {
		s.store = store
	}
}

// WithServiceLogger overrides the service logger.
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a Service from validated configuration.
func NewService(cfg config.Config, opts ...ServiceOption) *Service {
	s := &Service{
		cfg:    cfg,
		hub:    newEventHub(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = engine.New(cfg,
		engine.WithLogger(s.logger),
		engine.WithObserver(s.hub.broadcast))
	return s
}

// Engine exposes the underlying engine for tests and debug tooling.
func (s *Service) Engine() *engine.Engine {
	return s.engine
}

// Index parses one commit's files and publishes a snapshot, persisting
// it when a store is configured.
func (s *Service) Index(ctx context.Context, repoID, commitSHA string, files []ast.SourceFile) (*engine.IndexReport, error) {
	report, err := s.engine.IndexRepo(ctx, repoID, commitSHA, files)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if snap, ok := s.engine.SnapshotAt(repoID, commitSHA); ok {
			if _, err := s.store.Save(ctx, repoID, snap); err != nil {
				// Persistence is best effort; the in-memory snapshot is
				// already published.
				s.logger.Warn("snapshot persistence failed",
					slog.String("repo", repoID),
					slog.String("commit", commitSHA),
					slog.String("error", err.Error()))
			}
		}
	}
	return report, nil
}

// Run executes one review run synchronously.
func (s *Service) Run(ctx context.Context, req engine.ReviewRequest) (*engine.RunResult, error) {
	return s.engine.Review(ctx, req)
}

// RunByID returns a stored run.
func (s *Service) RunByID(id string) (*engine.RunResult, error) {
	return s.engine.RunByID(id)
}

// RestoreSnapshots loads the latest persisted snapshot for each given
// repository into the engine. Called once at startup.
func (s *Service) RestoreSnapshots(ctx context.Context, repoIDs []string) {
	if s.store == nil {
		return
	}
	for _, repoID := range repoIDs {
		snap, meta, err := s.store.LoadLatest(ctx, repoID)
		if err != nil {
			if !errors.Is(err, badgerstore.ErrSnapshotNotFound) {
				s.logger.Warn("snapshot restore failed",
					slog.String("repo", repoID),
					slog.String("error", err.Error()))
			}
			continue
		}
		if err := s.engine.AdoptSnapshot(repoID, snap); err != nil {
			s.logger.Warn("snapshot adoption failed",
				slog.String("repo", repoID),
				slog.String("error", err.Error()))
			continue
		}
		s.logger.Info("snapshot restored",
			slog.String("repo", repoID),
			slog.String("commit", meta.CommitSHA),
			slog.Int("definitions", meta.Definitions))
	}
}
