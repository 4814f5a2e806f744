// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package review

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianReview/services/review/engine"
)

// Handlers holds the HTTP handler methods for the review service.
type Handlers struct {
	svc      *Service
	upgrader websocket.Upgrader
}

// NewHandlers creates the handler set for a service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// getOrCreateRequestID returns the inbound X-Request-ID header, minting
// one when the caller did not supply it.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// HandleIndex indexes one commit of a repository.
//
// Description:
//
//	Parses every supplied file, extracts callable definitions, and
//	publishes an immutable snapshot keyed by commit SHA. Files that fail
//	to parse or exceed the size limit are reported, not fatal.
//
// Request Body:
//
//	IndexRequest (repo_id, commit_sha, files[])
//
// Response:
//
//	200: engine.IndexReport
//	400: malformed request
//	503: review engine disabled
func (h *Handlers) HandleIndex(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleIndex")

	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid index request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	report, err := h.svc.Index(c.Request.Context(), req.RepoID, req.CommitSHA,
		toSourceFiles(req.Files, req.CommitSHA))
	if err != nil {
		if errors.Is(err, engine.ErrDisabled) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "review engine is disabled",
				Code:  "ENGINE_DISABLED",
			})
			return
		}
		logger.Error("index failed",
			slog.String("repo", req.RepoID),
			slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "INDEX_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// HandleRun executes one review run synchronously.
//
// Description:
//
//	Reviews the supplied diff against the definition contracts pinned at
//	base_commit. When no snapshot for base_commit exists the run builds
//	one from base_files; absent both, the run is rejected. A newer run
//	for the same (repo_id, pr_number) supersedes this one.
//
// Request Body:
//
//	RunRequest (repo_id, pr_number, base_commit, head_commit, diff,
//	files[], base_files[])
//
// Response:
//
//	200: engine.RunResult with findings sorted by file then line
//	400: malformed request
//	409: run superseded by a newer head
//	422: no snapshot for base_commit and no base_files supplied
//	429: per-instance rate limit exceeded
//	503: review engine disabled
func (h *Handlers) HandleRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRun")

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid run request", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	result, err := h.svc.Run(c.Request.Context(), req.toReviewRequest())
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrDisabled):
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "review engine is disabled",
				Code:  "ENGINE_DISABLED",
			})
		case errors.Is(err, engine.ErrRateLimited):
			c.JSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "review rate limit exceeded, retry later",
				Code:  "RATE_LIMITED",
			})
		case errors.Is(err, engine.ErrSuperseded):
			c.JSON(http.StatusConflict, ErrorResponse{
				Error: "run superseded by a newer head for this pull request",
				Code:  "RUN_SUPERSEDED",
			})
		case errors.Is(err, engine.ErrNoSnapshot):
			c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
				Error: "no snapshot for base commit and no base files supplied",
				Code:  "NO_BASE_SNAPSHOT",
			})
		default:
			logger.Error("review run failed",
				slog.String("repo", req.RepoID),
				slog.Int("pr", req.PRNumber),
				slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: err.Error(),
				Code:  "RUN_FAILED",
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// HandleGetRun returns a stored run by ID.
//
// Response:
//
//	200: engine.RunResult
//	404: unknown run ID
func (h *Handlers) HandleGetRun(c *gin.Context) {
	runID := c.Param("id")
	run, err := h.svc.RunByID(runID)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "run not found: " + runID,
			Code:  "RUN_NOT_FOUND",
		})
		return
	}
	c.JSON(http.StatusOK, run)
}

// HandleIndexStats reports the current snapshot totals for a repository.
//
// Query Parameters:
//
//	repo_id: required repository identifier
//
// Response:
//
//	200: IndexStatsResponse
//	400: missing repo_id
//	404: repository never indexed
func (h *Handlers) HandleIndexStats(c *gin.Context) {
	repoID := c.Query("repo_id")
	if repoID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "repo_id query parameter is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	stats, commits, ok := h.svc.Engine().IndexStats(repoID)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "repository not indexed: " + repoID,
			Code:  "REPO_NOT_INDEXED",
		})
		return
	}

	c.JSON(http.StatusOK, IndexStatsResponse{
		RepoID:      repoID,
		CommitSHA:   stats.CommitSHA,
		Definitions: stats.Definitions,
		Files:       stats.Files,
		ShortNames:  stats.ShortNames,
		Commits:     commits,
	})
}

// HandleRunEvents streams run lifecycle events over a websocket.
//
// Description:
//
//	Upgrades to a websocket and forwards started/finding/completed/
//	superseded/failed events for one run, or for every run when the
//	path ID is "all". The stream closes after the run's terminal event.
//	For runs that already finished the stored terminal state is replayed
//	so late subscribers still observe the outcome.
func (h *Handlers) HandleRunEvents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleRunEvents")

	runID := c.Param("id")
	if runID == "all" {
		runID = ""
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	sub := h.svc.hub.subscribe(runID)
	defer h.svc.hub.unsubscribe(sub)

	// Replay the terminal event for runs that already finished, so the
	// subscriber is not left waiting on a stream that will never move.
	if runID != "" {
		if run, err := h.svc.RunByID(runID); err == nil && run.Status != engine.RunStatusRunning {
			ev := engine.RunEvent{
				RunID:     run.ID,
				RepoID:    run.RepoID,
				PRNumber:  run.PRNumber,
				Type:      eventTypeForStatus(run.Status),
				Timestamp: run.Metadata.CompletedAt,
			}
			_ = conn.WriteJSON(ev)
			return
		}
	}

	// Drain client frames so close frames are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request.Context()
	for {
		select {
		case ev := <-sub.ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
			if runID != "" && terminal(ev.Type) {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second))
				return
			}
		case <-clientGone:
			return
		case <-ctx.Done():
			return
		}
	}
}

func eventTypeForStatus(status engine.RunStatus) engine.RunEventType {
	switch status {
	case engine.RunStatusSuperseded:
		return engine.RunEventSuperseded
	case engine.RunStatusFailed:
		return engine.RunEventFailed
	default:
		return engine.RunEventCompleted
	}
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Service: "aleutian-review"})
}

// HandleReady reports readiness. The engine has no warmup phase, so
// readiness tracks only the enabled flag.
func (h *Handlers) HandleReady(c *gin.Context) {
	if !h.svc.cfg.Enabled {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "review engine is disabled",
			Code:  "ENGINE_DISABLED",
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{Status: "ready", Service: "aleutian-review"})
}

// HandleDebugSnapshot inspects one published snapshot.
//
// Query Parameters:
//
//	repo_id: required repository identifier
//	commit:  required commit SHA of a published snapshot
//
// Response:
//
//	200: IndexStatsResponse for the requested snapshot
//	400: missing parameter
//	404: snapshot not found
func (h *Handlers) HandleDebugSnapshot(c *gin.Context) {
	repoID := c.Query("repo_id")
	commit := c.Query("commit")
	if repoID == "" || commit == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "repo_id and commit query parameters are required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	snap, ok := h.svc.Engine().SnapshotAt(repoID, commit)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Error: "snapshot not found: " + repoID + "@" + commit,
			Code:  "SNAPSHOT_NOT_FOUND",
		})
		return
	}

	stats := snap.Stats()
	c.JSON(http.StatusOK, IndexStatsResponse{
		RepoID:      repoID,
		CommitSHA:   stats.CommitSHA,
		Definitions: stats.Definitions,
		Files:       stats.Files,
		ShortNames:  stats.ShortNames,
	})
}
