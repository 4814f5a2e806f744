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
	"time"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/suggest"
)

// ReviewRequest describes one review run over a pull request head.
type ReviewRequest struct {
	// RepoID identifies the repository. Runs for the same (RepoID,
	// PRNumber) supersede each other; a newer head cancels an older one.
	RepoID   string `json:"repo_id"`
	PRNumber int    `json:"pr_number"`

	// BaseCommit pins the index snapshot calls resolve against.
	BaseCommit string `json:"base_commit"`
	HeadCommit string `json:"head_commit"`

	// Diff is the unified diff between BaseCommit and HeadCommit.
	Diff string `json:"diff"`

	// Files holds the head contents of every changed file named in Diff.
	Files []ast.SourceFile `json:"files"`

	// BaseFiles optionally holds base-commit contents used to build the
	// base snapshot on demand when none is published yet.
	BaseFiles []ast.SourceFile `json:"base_files,omitempty"`
}

// Finding is one reportable issue found during a run.
type Finding struct {
	ID         string             `json:"id"`
	Suggestion suggest.Suggestion `json:"suggestion"`

	// Callee is the qualified name of the definition the call was checked
	// against, when one resolved.
	Callee string `json:"callee,omitempty"`
}

// RunStatus is the lifecycle state of a review run.
type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusSuperseded RunStatus = "superseded"
	RunStatusFailed     RunStatus = "failed"
)

// FileError records a file whose parse failed. The file is excluded from
// the snapshot; the batch continues.
type FileError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// SkippedFile records a file excluded by policy rather than by failure.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// RunMetadata carries per-run accounting.
type RunMetadata struct {
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration_ns,omitempty"`

	FilesParsed      int           `json:"files_parsed"`
	FileErrors       []FileError   `json:"file_errors,omitempty"`
	Skipped          []SkippedFile `json:"skipped,omitempty"`
	CallSitesScanned int           `json:"call_sites_scanned"`
	CallSitesMatched int           `json:"call_sites_matched"`
}

// RunResult is the outcome of one review run.
//
// Findings are ordered by file path, then start line, so repeated runs
// over the same input produce identical output.
type RunResult struct {
	ID         string    `json:"id"`
	RepoID     string    `json:"repo_id"`
	PRNumber   int       `json:"pr_number"`
	BaseCommit string    `json:"base_commit"`
	HeadCommit string    `json:"head_commit"`
	Status     RunStatus `json:"status"`

	Findings []Finding   `json:"findings"`
	Metadata RunMetadata `json:"metadata"`
}

// IndexReport summarizes one indexing batch.
type IndexReport struct {
	RepoID      string        `json:"repo_id"`
	CommitSHA   string        `json:"commit_sha"`
	FilesTotal  int           `json:"files_total"`
	FilesParsed int           `json:"files_parsed"`
	Definitions int           `json:"definitions"`
	FileErrors  []FileError   `json:"file_errors,omitempty"`
	Skipped     []SkippedFile `json:"skipped,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// RunEventType classifies run lifecycle events.
type RunEventType string

const (
	RunEventStarted    RunEventType = "started"
	RunEventFinding    RunEventType = "finding"
	RunEventCompleted  RunEventType = "completed"
	RunEventSuperseded RunEventType = "superseded"
	RunEventFailed     RunEventType = "failed"
)

// RunEvent is emitted to observers as a run progresses. The websocket
// stream in the service surface relays these to subscribers.
type RunEvent struct {
	RunID     string       `json:"run_id"`
	RepoID    string       `json:"repo_id"`
	PRNumber  int          `json:"pr_number"`
	Type      RunEventType `json:"type"`
	Finding   *Finding     `json:"finding,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
