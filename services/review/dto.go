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
	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/engine"
)

// ErrorResponse is the uniform error payload for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// SourceFilePayload carries one file's content over the wire.
type SourceFilePayload struct {
	Path     string `json:"path" binding:"required"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
}

func (p SourceFilePayload) toSourceFile(commitSHA string) ast.SourceFile {
	return ast.SourceFile{
		Path:      p.Path,
		Language:  p.Language,
		Content:   []byte(p.Content),
		CommitSHA: commitSHA,
	}
}

func toSourceFiles(payloads []SourceFilePayload, commitSHA string) []ast.SourceFile {
	if len(payloads) == 0 {
		return nil
	}
	files := make([]ast.SourceFile, 0, len(payloads))
	for _, p := range payloads {
		files = append(files, p.toSourceFile(commitSHA))
	}
	return files
}

// IndexRequest asks the service to index one commit of a repository.
type IndexRequest struct {
	RepoID    string              `json:"repo_id" binding:"required"`
	CommitSHA string              `json:"commit_sha" binding:"required"`
	Files     []SourceFilePayload `json:"files" binding:"required,min=1,dive"`
}

// RunRequest asks the service to review one pull request head.
type RunRequest struct {
	RepoID     string              `json:"repo_id" binding:"required"`
	PRNumber   int                 `json:"pr_number" binding:"required,gt=0"`
	BaseCommit string              `json:"base_commit" binding:"required"`
	HeadCommit string              `json:"head_commit" binding:"required"`
	Diff       string              `json:"diff" binding:"required"`
	Files      []SourceFilePayload `json:"files" binding:"required,dive"`
	BaseFiles  []SourceFilePayload `json:"base_files,omitempty" binding:"omitempty,dive"`
}

func (r RunRequest) toReviewRequest() engine.ReviewRequest {
	return engine.ReviewRequest{
		RepoID:     r.RepoID,
		PRNumber:   r.PRNumber,
		BaseCommit: r.BaseCommit,
		HeadCommit: r.HeadCommit,
		Diff:       r.Diff,
		Files:      toSourceFiles(r.Files, r.HeadCommit),
		BaseFiles:  toSourceFiles(r.BaseFiles, r.BaseCommit),
	}
}

// IndexStatsResponse reports the current snapshot for one repository.
type IndexStatsResponse struct {
	RepoID      string   `json:"repo_id"`
	CommitSHA   string   `json:"commit_sha"`
	Definitions int      `json:"definitions"`
	Files       int      `json:"files"`
	ShortNames  int      `json:"short_names"`
	Commits     []string `json:"commits"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version,omitempty"`
}
