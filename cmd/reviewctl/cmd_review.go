// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReview/services/review"
	"github.com/AleutianAI/AleutianReview/services/review/engine"
	"github.com/AleutianAI/AleutianReview/services/review/verify"
)

func runReviewCommand(_ *cobra.Command, args []string) {
	dir := argOrCwd(args)
	repoID := repoFlag
	if repoID == "" {
		repoID = detectRepoID(dir)
	}

	diff, err := os.ReadFile(diffFlag)
	if err != nil {
		log.Fatalf("--diff: %v", err)
	}
	files, err := collectSourceFiles(dir)
	if err != nil {
		log.Fatalf("Collecting head files: %v", err)
	}

	payload := review.RunRequest{
		RepoID:     repoID,
		PRNumber:   prFlag,
		BaseCommit: baseFlag,
		HeadCommit: headFlag,
		Diff:       string(diff),
		Files:      files,
	}

	var run engine.RunResult
	if err := postJSON("/v1/review/run", payload, &run); err != nil {
		log.Fatalf("Review failed: %v", err)
	}

	if err := renderRun(os.Stdout, &run, formatFlag); err != nil {
		log.Fatalf("Rendering: %v", err)
	}
	if hasBlockingFinding(&run) {
		os.Exit(2)
	}
}

// hasBlockingFinding reports whether the run contains a finding at
// high or critical severity, which makes the command exit non-zero for
// CI gating.
func hasBlockingFinding(run *engine.RunResult) bool {
	for _, f := range run.Findings {
		switch f.Suggestion.Severity {
		case verify.SeverityCritical, verify.SeverityHigh:
			return true
		}
	}
	return false
}

func renderRun(w io.Writer, run *engine.RunResult, format string) error {
	switch format {
	case "text":
		renderText(w, run)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	case "sarif":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(toSARIF(run))
	default:
		return fmt.Errorf("unknown format %q (want text, json, or sarif)", format)
	}
}

func renderText(w io.Writer, run *engine.RunResult) {
	fmt.Fprintf(w, "Review %s#%d (%s..%s): %d finding(s)\n",
		run.RepoID, run.PRNumber, run.BaseCommit, run.HeadCommit, len(run.Findings))
	for _, f := range run.Findings {
		s := f.Suggestion
		fmt.Fprintf(w, "\n%s:%d [%s/%s]\n", s.File, s.StartLine, s.Kind, s.Severity)
		fmt.Fprintf(w, "  Issue:  %s\n", s.Issue)
		fmt.Fprintf(w, "  Fix:    %s\n", s.Fix)
		fmt.Fprintf(w, "  Impact: %s\n", s.Impact)
		if s.DefFile != "" {
			fmt.Fprintf(w, "  Defined at %s:%d\n", s.DefFile, s.DefLine)
		}
	}
	fmt.Fprintf(w, "\nScanned %d call sites (%d matched) in %s\n",
		run.Metadata.CallSitesScanned, run.Metadata.CallSitesMatched, run.Metadata.Duration)
}

// Minimal SARIF 2.1.0 output for code-scanning uploads.

type sarifLog struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool    sarifTool     `json:"tool"`
	Results []sarifResult `json:"results"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string `json:"name"`
	InformationURI string `json:"informationUri,omitempty"`
}

type sarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   sarifMessage    `json:"message"`
	Locations []sarifLocation `json:"locations"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           sarifRegion           `json:"region"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine,omitempty"`
}

func toSARIF(run *engine.RunResult) sarifLog {
	results := make([]sarifResult, 0, len(run.Findings))
	for _, f := range run.Findings {
		s := f.Suggestion
		results = append(results, sarifResult{
			RuleID:  string(s.Kind),
			Level:   sarifLevel(s.Severity),
			Message: sarifMessage{Text: s.Issue + " " + s.Fix},
			Locations: []sarifLocation{{
				PhysicalLocation: sarifPhysicalLocation{
					ArtifactLocation: sarifArtifactLocation{URI: s.File},
					Region:           sarifRegion{StartLine: s.StartLine, EndLine: s.EndLine},
				},
			}},
		})
	}
	return sarifLog{
		Schema:  "https://json.schemastore.org/sarif-2.1.0.json",
		Version: "2.1.0",
		Runs: []sarifRun{{
			Tool:    sarifTool{Driver: sarifDriver{Name: "aleutian-review"}},
			Results: results,
		}},
	}
}

func sarifLevel(sev verify.Severity) string {
	switch sev {
	case verify.SeverityCritical, verify.SeverityHigh:
		return "error"
	case verify.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}
