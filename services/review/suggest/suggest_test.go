// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package suggest

import (
	"encoding/json"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/diffscan"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/verify"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func arityMismatch() *verify.Mismatch {
	def := &extract.SymbolDefinition{
		ShortName:     "charge",
		QualifiedName: "billing.core.charge",
		File:          "billing/core.py",
		StartLine:     12,
		Params:        []ast.Param{{Name: "amount"}},
		ReturnKind:    ast.ReturnKindValue,
	}
	call := diffscan.CallSite{
		File:      "app/main.py",
		StartLine: 40,
		EndLine:   40,
		ShortName: "charge",
		Args:      []ast.Arg{{Text: "10"}, {Text: `"usd"`}},
		Usage:     ast.ResultUsageAssigned,
	}
	return &verify.Mismatch{
		Call:       call,
		Def:        def,
		Kind:       verify.KindArityMismatch,
		Severity:   verify.SeverityCritical,
		Confidence: 0.9,
		Detail:     "charge accepts at most 1 positional argument but the call supplies 2",
	}
}

func TestSynthesize_Arity(t *testing.T) {
	s := New(quietLogger())
	sug, ok := s.Synthesize(arityMismatch())
	if !ok {
		t.Fatal("synthesis failed")
	}
	if sug.Kind != verify.KindArityMismatch || sug.Severity != verify.SeverityCritical {
		t.Fatalf("kind/severity = %s/%s", sug.Kind, sug.Severity)
	}
	if sug.File != "app/main.py" || sug.StartLine != 40 {
		t.Fatalf("location = %s:%d", sug.File, sug.StartLine)
	}
	if sug.DefFile != "billing/core.py" || sug.DefLine != 12 {
		t.Fatalf("definition link = %s:%d", sug.DefFile, sug.DefLine)
	}
	if !strings.Contains(sug.Issue, "at most 1 positional argument") ||
		!strings.Contains(sug.Issue, "supplies 2") {
		t.Fatalf("issue = %q", sug.Issue)
	}
	if !strings.Contains(sug.Fix, "Remove the last 1 argument") {
		t.Fatalf("fix = %q", sug.Fix)
	}
	if sug.Impact == "" {
		t.Fatal("impact must not be empty")
	}
}

func TestSynthesize_MissingRequiredNamesParams(t *testing.T) {
	s := New(quietLogger())
	def := &extract.SymbolDefinition{
		ShortName: "transfer",
		File:      "bank/ops.py",
		StartLine: 3,
		Params: []ast.Param{
			{Name: "source"}, {Name: "target"}, {Name: "memo", HasDefault: true},
		},
		ReturnKind: ast.ReturnKindValue,
	}
	call := diffscan.CallSite{
		File: "app/main.py", StartLine: 8, EndLine: 8,
		ShortName: "transfer",
		Args:      []ast.Arg{{Text: "acct"}},
		Usage:     ast.ResultUsageAssigned,
	}
	sug, ok := s.Synthesize(&verify.Mismatch{
		Call: call, Def: def,
		Kind:     verify.KindMissingRequiredParam,
		Severity: verify.SeverityHigh,
	})
	if !ok {
		t.Fatal("synthesis failed")
	}
	if !strings.Contains(sug.Issue, "`target`") {
		t.Fatalf("issue should name the missing parameter: %q", sug.Issue)
	}
	if !strings.Contains(sug.Fix, "target=...") {
		t.Fatalf("fix should show a named-argument example: %q", sug.Fix)
	}
}

func TestSynthesize_AmbiguousNamesRivals(t *testing.T) {
	s := New(quietLogger())
	a := &extract.SymbolDefinition{ShortName: "parse", QualifiedName: "json.codec.parse"}
	b := &extract.SymbolDefinition{ShortName: "parse", QualifiedName: "xml.codec.parse"}
	sug, ok := s.Synthesize(&verify.Mismatch{
		Call:     diffscan.CallSite{File: "a.py", StartLine: 1, ShortName: "parse"},
		Def:      a,
		Others:   []*extract.SymbolDefinition{b},
		Kind:     verify.KindAmbiguous,
		Severity: verify.SeverityLow,
	})
	if !ok {
		t.Fatal("synthesis failed")
	}
	if !strings.Contains(sug.Issue, "json.codec.parse") ||
		!strings.Contains(sug.Issue, "xml.codec.parse") {
		t.Fatalf("issue should name every rival: %q", sug.Issue)
	}
}

func TestSynthesize_Deterministic(t *testing.T) {
	s := New(quietLogger())
	m := arityMismatch()

	first, ok := s.Synthesize(m)
	if !ok {
		t.Fatal("synthesis failed")
	}
	second, ok := s.Synthesize(m)
	if !ok {
		t.Fatal("synthesis failed")
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical input must yield identical output")
	}

	aJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	bJSON, err := json.Marshal(second)
	if err != nil {
		t.Fatal(err)
	}
	if string(aJSON) != string(bJSON) {
		t.Fatalf("serialized suggestions differ:\n%s\n%s", aJSON, bJSON)
	}
}

func TestSynthesize_PanicRecoveredAndDropped(t *testing.T) {
	s := New(quietLogger())
	// A nil definition makes the arity template dereference nil.
	broken := &verify.Mismatch{
		Call: diffscan.CallSite{File: "a.py", StartLine: 1, ShortName: "f"},
		Kind: verify.KindArityMismatch,
	}
	if _, ok := s.Synthesize(broken); ok {
		t.Fatal("expected broken mismatch to be dropped")
	}

	// The batch keeps going around the bad record.
	out := s.SynthesizeAll([]*verify.Mismatch{arityMismatch(), broken, arityMismatch()})
	if len(out) != 2 {
		t.Fatalf("survivors = %d, want 2", len(out))
	}
}

func TestSynthesize_NilMismatch(t *testing.T) {
	s := New(quietLogger())
	if _, ok := s.Synthesize(nil); ok {
		t.Fatal("nil mismatch must be dropped")
	}
}
