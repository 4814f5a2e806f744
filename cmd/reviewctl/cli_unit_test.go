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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianReview/services/review/engine"
	"github.com/AleutianAI/AleutianReview/services/review/suggest"
	"github.com/AleutianAI/AleutianReview/services/review/verify"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollectSourceFiles_HonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "build/\nsecret.py\n")
	writeFile(t, root, "app/main.py", "def main():\n    pass\n")
	writeFile(t, root, "app/util.ts", "export function f() {}\n")
	writeFile(t, root, "secret.py", "PASSWORD = 'x'\n")
	writeFile(t, root, "build/gen.py", "def gen():\n    pass\n")
	writeFile(t, root, "README.md", "# hi\n")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = {}\n")

	files, err := collectSourceFiles(root)
	if err != nil {
		t.Fatalf("collectSourceFiles: %v", err)
	}

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	want := []string{"app/main.py", "app/util.ts"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}
	if !strings.Contains(files[0].Content, "def main") {
		t.Errorf("content not captured: %q", files[0].Content)
	}
}

func TestDetectRepoID_ModulePath(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "go.mod", "module example.com/acme/billing\n\ngo 1.24\n")

	if got := detectRepoID(root); got != "example.com/acme/billing" {
		t.Errorf("repo ID = %q", got)
	}
}

func TestDetectRepoID_FallsBackToDirName(t *testing.T) {
	root := t.TempDir()
	if got := detectRepoID(root); got != filepath.Base(root) {
		t.Errorf("repo ID = %q, want %q", got, filepath.Base(root))
	}
}

func sampleRun() *engine.RunResult {
	return &engine.RunResult{
		ID:         "run-1",
		RepoID:     "acme/billing",
		PRNumber:   7,
		BaseCommit: "base1",
		HeadCommit: "head1",
		Status:     engine.RunStatusCompleted,
		Findings: []engine.Finding{{
			ID:     "f-1",
			Callee: "billing.core.charge",
			Suggestion: suggest.Suggestion{
				Issue:     "`charge` accepts at most 1 positional argument; this call supplies 2.",
				Fix:       "Remove the last 1 argument(s).",
				Impact:    "This call raises at runtime.",
				File:      "app/main.py",
				StartLine: 40,
				EndLine:   40,
				Kind:      verify.KindArityMismatch,
				Severity:  verify.SeverityCritical,
			},
		}},
	}
}

func TestRenderRun_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := renderRun(&buf, sampleRun(), "text"); err != nil {
		t.Fatalf("renderRun: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"acme/billing#7",
		"app/main.py:40",
		"arity_mismatch/critical",
		"at most 1 positional argument",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRun_SARIF(t *testing.T) {
	var buf bytes.Buffer
	if err := renderRun(&buf, sampleRun(), "sarif"); err != nil {
		t.Fatalf("renderRun: %v", err)
	}

	var log sarifLog
	if err := json.Unmarshal(buf.Bytes(), &log); err != nil {
		t.Fatalf("decoding SARIF: %v", err)
	}
	if log.Version != "2.1.0" || len(log.Runs) != 1 {
		t.Fatalf("log = %+v", log)
	}
	results := log.Runs[0].Results
	if len(results) != 1 {
		t.Fatalf("results = %d", len(results))
	}
	r := results[0]
	if r.RuleID != "arity_mismatch" || r.Level != "error" {
		t.Errorf("result = %+v", r)
	}
	loc := r.Locations[0].PhysicalLocation
	if loc.ArtifactLocation.URI != "app/main.py" || loc.Region.StartLine != 40 {
		t.Errorf("location = %+v", loc)
	}
}

func TestRenderRun_UnknownFormat(t *testing.T) {
	if err := renderRun(&bytes.Buffer{}, sampleRun(), "xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestHasBlockingFinding(t *testing.T) {
	run := sampleRun()
	if !hasBlockingFinding(run) {
		t.Error("critical finding should block")
	}
	run.Findings[0].Suggestion.Severity = verify.SeverityLow
	if hasBlockingFinding(run) {
		t.Error("low finding should not block")
	}
}
