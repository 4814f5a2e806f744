// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resolve

import (
	"testing"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/diffscan"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/index"
)

func def(file, shortName string, receiver string) *extract.SymbolDefinition {
	params := []ast.Param{{Name: "a"}}
	qn := extract.PathNamespace(file)
	if receiver != "" {
		qn += "." + receiver
	}
	qn += "." + shortName
	return &extract.SymbolDefinition{
		ID:            ast.GenerateID(file, 1, shortName),
		QualifiedName: qn,
		ShortName:     shortName,
		File:          file,
		Language:      "python",
		StartLine:     1,
		EndLine:       3,
		Params:        params,
		ReturnKind:    ast.ReturnKindValue,
		Visibility:    extract.VisibilityPublic,
		Receiver:      receiver,
		Fingerprint:   extract.Fingerprint(params, ast.ReturnKindValue),
		CommitSHA:     "c1",
	}
}

func snapshotWith(t *testing.T, defs ...*extract.SymbolDefinition) *index.Snapshot {
	t.Helper()
	ix := index.NewIndex()
	b := ix.Begin("")
	byFile := make(map[string][]*extract.SymbolDefinition)
	for _, d := range defs {
		byFile[d.File] = append(byFile[d.File], d)
	}
	for file, fileDefs := range byFile {
		if err := b.Update(file, fileDefs); err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	snap, err := b.Publish("c1")
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return snap
}

func TestResolve_QualifiedViaImportAlias(t *testing.T) {
	snap := snapshotWith(t, def("numpy/stats.py", "mean", ""))

	call := diffscan.CallSite{
		File:      "app/report.py",
		ShortName: "mean",
		Qualifier: "np",
		Imports: []ast.Import{
			{Path: "numpy/stats", Alias: "np"},
		},
	}

	cands := New().Resolve(call, snap)
	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].Confidence != ConfidenceQualified {
		t.Errorf("expected confidence %.1f, got %.1f", ConfidenceQualified, cands[0].Confidence)
	}
}

func TestResolve_SameFile(t *testing.T) {
	snap := snapshotWith(t,
		def("app/report.py", "render", ""),
		def("lib/other.py", "render", ""),
	)

	call := diffscan.CallSite{File: "app/report.py", ShortName: "render"}
	cands := New().Resolve(call, snap)

	if len(cands) != 1 {
		t.Fatalf("expected same-file tier to win, got %d candidates", len(cands))
	}
	if cands[0].Confidence != ConfidenceSameFile {
		t.Errorf("expected confidence %.1f, got %.1f", ConfidenceSameFile, cands[0].Confidence)
	}
	if cands[0].Def.File != "app/report.py" {
		t.Errorf("wrong definition chosen: %s", cands[0].Def.File)
	}
}

func TestResolve_SelfCallMatchesEnclosingClassMethod(t *testing.T) {
	snap := snapshotWith(t,
		def("app/report.py", "save", "Report"),
		def("app/report.py", "save", "Draft"),
	)

	call := diffscan.CallSite{
		File:      "app/report.py",
		ShortName: "save",
		Qualifier: "self",
		ScopePath: []string{"Report", "finalize"},
	}
	cands := New().Resolve(call, snap)

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate scoped to Report, got %d", len(cands))
	}
	if cands[0].Def.Receiver != "Report" {
		t.Errorf("expected Report method, got receiver %q", cands[0].Def.Receiver)
	}
}

func TestResolve_ImportReachable(t *testing.T) {
	snap := snapshotWith(t, def("billing/gateway.py", "charge_card", ""))

	call := diffscan.CallSite{
		File:      "app/pay.py",
		ShortName: "charge_card",
		Imports: []ast.Import{
			{Path: "billing.gateway", Names: []string{"charge_card"}},
		},
	}
	cands := New().Resolve(call, snap)

	if len(cands) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(cands))
	}
	if cands[0].Confidence != ConfidenceImport {
		t.Errorf("expected confidence %.1f, got %.1f", ConfidenceImport, cands[0].Confidence)
	}
	if cands[0].Ambiguous {
		t.Error("import-tier candidate must not be marked ambiguous")
	}
}

func TestResolve_RelativeImportNormalization(t *testing.T) {
	snap := snapshotWith(t, def("billing/gateway.py", "charge_card", ""))

	call := diffscan.CallSite{
		File:      "billing/pay.py",
		ShortName: "charge_card",
		Imports: []ast.Import{
			{Path: "./gateway", Names: []string{"charge_card"}, IsRelative: true},
		},
	}
	cands := New().Resolve(call, snap)
	if len(cands) != 1 || cands[0].Confidence != ConfidenceImport {
		t.Fatalf("relative import did not resolve: %+v", cands)
	}
}

// Two same-named definitions with no import link: both come back as
// ambiguous global candidates; neither is silently preferred.
func TestResolve_GlobalAmbiguous(t *testing.T) {
	snap := snapshotWith(t,
		def("lib/json_reader.py", "parse", ""),
		def("lib/xml_reader.py", "parse", ""),
	)

	call := diffscan.CallSite{File: "app/main.py", ShortName: "parse"}
	cands := New().Resolve(call, snap)

	if len(cands) != 2 {
		t.Fatalf("expected both definitions as candidates, got %d", len(cands))
	}
	for _, c := range cands {
		if !c.Ambiguous {
			t.Errorf("candidate %s must be marked ambiguous", c.Def.QualifiedName)
		}
		if c.Confidence != ConfidenceGlobal {
			t.Errorf("expected confidence %.1f, got %.1f", ConfidenceGlobal, c.Confidence)
		}
	}
	// Deterministic ordering by qualified name.
	if cands[0].Def.QualifiedName > cands[1].Def.QualifiedName {
		t.Error("candidates not sorted deterministically")
	}
}

func TestResolve_GlobalSingleNotAmbiguous(t *testing.T) {
	snap := snapshotWith(t, def("lib/json_reader.py", "parse", ""))

	call := diffscan.CallSite{File: "app/main.py", ShortName: "parse"}
	cands := New().Resolve(call, snap)
	if len(cands) != 1 || cands[0].Ambiguous {
		t.Fatalf("single global hit must not be ambiguous: %+v", cands)
	}
}

func TestResolve_ConfidenceFloor(t *testing.T) {
	snap := snapshotWith(t, def("lib/json_reader.py", "parse", ""))

	call := diffscan.CallSite{File: "app/main.py", ShortName: "parse"}
	cands := New(WithMinConfidence(0.5)).Resolve(call, snap)
	if len(cands) != 0 {
		t.Errorf("candidates below the floor must be dropped, got %d", len(cands))
	}
}

func TestResolve_NoMatchIsSilence(t *testing.T) {
	snap := snapshotWith(t, def("lib/json_reader.py", "parse", ""))

	call := diffscan.CallSite{File: "app/main.py", ShortName: "does_not_exist"}
	if cands := New().Resolve(call, snap); len(cands) != 0 {
		t.Errorf("expected no candidates, got %d", len(cands))
	}
}
