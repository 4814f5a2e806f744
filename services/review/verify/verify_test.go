// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package verify

import (
	"strings"
	"testing"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/diffscan"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/resolve"
)

func callWith(shortName string, usage ast.ResultUsage, args ...ast.Arg) diffscan.CallSite {
	return diffscan.CallSite{
		ID:         "call-1",
		File:       "app/main.py",
		Language:   "python",
		StartLine:  10,
		EndLine:    10,
		CalleeText: shortName,
		ShortName:  shortName,
		Args:       args,
		Usage:      usage,
	}
}

func defWith(shortName string, returns ast.ReturnKind, params ...ast.Param) *extract.SymbolDefinition {
	return &extract.SymbolDefinition{
		ID:            "def-" + shortName,
		QualifiedName: "billing.core." + shortName,
		ShortName:     shortName,
		File:          "billing/core.py",
		Language:      "python",
		StartLine:     5,
		Params:        params,
		ReturnKind:    returns,
		Fingerprint:   extract.Fingerprint(params, returns),
	}
}

func pos(text string) ast.Arg         { return ast.Arg{Text: text} }
func kw(name, text string) ast.Arg    { return ast.Arg{Keyword: name, Text: text} }
func param(name string) ast.Param     { return ast.Param{Name: name} }
func optParam(name string) ast.Param  { return ast.Param{Name: name, HasDefault: true} }
func restParam(name string) ast.Param { return ast.Param{Name: name, Variadic: true} }

func TestVerify_ArityOverflow(t *testing.T) {
	v := New()
	def := defWith("charge", ast.ReturnKindValue, param("amount"))
	call := callWith("charge", ast.ResultUsageAssigned, pos("10"), pos("usd"))

	m := v.Verify(call, def)
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindArityMismatch {
		t.Fatalf("kind = %s, want %s", m.Kind, KindArityMismatch)
	}
	if m.Severity != SeverityCritical {
		t.Fatalf("severity = %s, want %s", m.Severity, SeverityCritical)
	}
}

func TestVerify_VariadicExemptFromArity(t *testing.T) {
	v := New()
	def := defWith("logAll", ast.ReturnKindVoid, param("level"), restParam("items"))
	call := callWith("logAll", ast.ResultUsageDiscarded,
		pos(`"info"`), pos("a"), pos("b"), pos("c"))

	if m := v.Verify(call, def); m != nil {
		t.Fatalf("unexpected mismatch %s: %s", m.Kind, m.Detail)
	}
}

func TestVerify_SpreadArgsSkipArityRules(t *testing.T) {
	v := New()
	def := defWith("charge", ast.ReturnKindValue, param("amount"))
	call := callWith("charge", ast.ResultUsageAssigned,
		ast.Arg{Text: "*extra", Spread: true})

	if m := v.Verify(call, def); m != nil {
		t.Fatalf("unexpected mismatch %s: %s", m.Kind, m.Detail)
	}
}

func TestVerify_MissingRequiredParam(t *testing.T) {
	v := New()
	def := defWith("transfer", ast.ReturnKindValue,
		param("source"), param("target"), optParam("memo"))
	call := callWith("transfer", ast.ResultUsageAssigned, pos("acct"))

	m := v.Verify(call, def)
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindMissingRequiredParam {
		t.Fatalf("kind = %s, want %s", m.Kind, KindMissingRequiredParam)
	}
	if m.Severity != SeverityHigh {
		t.Fatalf("severity = %s, want %s", m.Severity, SeverityHigh)
	}
	if !strings.Contains(m.Detail, "target") {
		t.Fatalf("detail should name the missing parameter: %s", m.Detail)
	}
}

func TestVerify_DefaultSatisfiesArity(t *testing.T) {
	v := New()
	def := defWith("greet", ast.ReturnKindValue, param("name"), optParam("suffix"))
	call := callWith("greet", ast.ResultUsageAssigned, pos(`"ada"`))

	if m := v.Verify(call, def); m != nil {
		t.Fatalf("unexpected mismatch %s: %s", m.Kind, m.Detail)
	}
}

func TestVerify_KeywordArgSatisfiesRequired(t *testing.T) {
	v := New()
	def := defWith("connect", ast.ReturnKindValue, param("host"), param("port"))
	call := callWith("connect", ast.ResultUsageAssigned,
		pos(`"db"`), kw("port", "5432"))

	if m := v.Verify(call, def); m != nil {
		t.Fatalf("unexpected mismatch %s: %s", m.Kind, m.Detail)
	}
}

func TestVerify_UnknownKeyword(t *testing.T) {
	v := New()
	def := defWith("connect", ast.ReturnKindValue, param("host"), optParam("port"))
	call := callWith("connect", ast.ResultUsageAssigned,
		pos(`"db"`), kw("retries", "3"))

	m := v.Verify(call, def)
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindUnexpectedExtraArg {
		t.Fatalf("kind = %s, want %s", m.Kind, KindUnexpectedExtraArg)
	}
	if m.Severity != SeverityMedium {
		t.Fatalf("severity = %s, want %s", m.Severity, SeverityMedium)
	}
}

func TestVerify_KeywordCatchAllAcceptsAnyName(t *testing.T) {
	v := New()
	def := defWith("render", ast.ReturnKindValue,
		param("template"), ast.Param{Name: "options", KeywordVariadic: true})
	call := callWith("render", ast.ResultUsageReturned,
		pos(`"index"`), kw("theme", `"dark"`), kw("minify", "True"))

	if m := v.Verify(call, def); m != nil {
		t.Fatalf("unexpected mismatch %s: %s", m.Kind, m.Detail)
	}
}

func TestVerify_VoidResultConsumed(t *testing.T) {
	v := New()
	def := defWith("shutdown", ast.ReturnKindVoid)
	call := callWith("shutdown", ast.ResultUsageArgument)

	m := v.Verify(call, def)
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindReturnValueMisuse {
		t.Fatalf("kind = %s, want %s", m.Kind, KindReturnValueMisuse)
	}
	if m.Severity != SeverityLow {
		t.Fatalf("severity = %s, want %s", m.Severity, SeverityLow)
	}
}

func TestVerify_VoidResultDiscardedIsFine(t *testing.T) {
	v := New()
	def := defWith("shutdown", ast.ReturnKindVoid)
	call := callWith("shutdown", ast.ResultUsageDiscarded)

	if m := v.Verify(call, def); m != nil {
		t.Fatalf("unexpected mismatch %s: %s", m.Kind, m.Detail)
	}
}

func TestVerify_ValueDiscarded(t *testing.T) {
	v := New()
	def := defWith("computeTotal", ast.ReturnKindValue)
	call := callWith("computeTotal", ast.ResultUsageDiscarded)

	m := v.Verify(call, def)
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindReturnValueMisuse {
		t.Fatalf("kind = %s, want %s", m.Kind, KindReturnValueMisuse)
	}
}

func TestVerify_SideEffectNameSuppressesDiscardAdvisory(t *testing.T) {
	v := New()
	for _, name := range []string{"setBalance", "updateRecord", "appendEntry"} {
		def := defWith(name, ast.ReturnKindValue, param("x"))
		call := callWith(name, ast.ResultUsageDiscarded, pos("1"))
		if m := v.Verify(call, def); m != nil {
			t.Fatalf("%s: unexpected mismatch %s: %s", name, m.Kind, m.Detail)
		}
	}
}

func TestVerify_AdvisoryDisabled(t *testing.T) {
	v := New(WithReturnMisuseAdvisory(false))
	def := defWith("shutdown", ast.ReturnKindVoid)
	call := callWith("shutdown", ast.ResultUsageAssigned)

	if m := v.Verify(call, def); m != nil {
		t.Fatalf("unexpected mismatch with advisory off: %s", m.Kind)
	}
}

func TestVerify_ArityBeatsReturnMisuse(t *testing.T) {
	// Both rules apply; only the highest-priority one is reported.
	v := New()
	def := defWith("shutdown", ast.ReturnKindVoid)
	call := callWith("shutdown", ast.ResultUsageAssigned, pos("now"))

	m := v.Verify(call, def)
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindArityMismatch {
		t.Fatalf("kind = %s, want %s", m.Kind, KindArityMismatch)
	}
}

func TestVerifyAll_AmbiguousCandidates(t *testing.T) {
	v := New()
	call := callWith("parse", ast.ResultUsageAssigned, pos("raw"))
	a := defWith("parse", ast.ReturnKindValue, param("text"))
	a.QualifiedName = "json.codec.parse"
	b := defWith("parse", ast.ReturnKindValue, param("text"))
	b.QualifiedName = "xml.codec.parse"

	m := v.VerifyAll(call, []resolve.Candidate{
		{Call: call, Def: a, Confidence: resolve.ConfidenceGlobal, Ambiguous: true},
		{Call: call, Def: b, Confidence: resolve.ConfidenceGlobal, Ambiguous: true},
	})
	if m == nil {
		t.Fatal("expected an ambiguous advisory")
	}
	if m.Kind != KindAmbiguous {
		t.Fatalf("kind = %s, want %s", m.Kind, KindAmbiguous)
	}
	if m.Severity != SeverityLow {
		t.Fatalf("severity = %s, want %s", m.Severity, SeverityLow)
	}
	if len(m.Others) != 1 {
		t.Fatalf("others = %d, want 1", len(m.Others))
	}
	if !strings.Contains(m.Detail, "json.codec.parse") || !strings.Contains(m.Detail, "xml.codec.parse") {
		t.Fatalf("detail should name every rival: %s", m.Detail)
	}
}

func TestVerifyAll_OverloadSatisfiedByAny(t *testing.T) {
	v := New()
	call := callWith("fetch", ast.ResultUsageAssigned, pos("url"), pos("timeout"))
	one := defWith("fetch", ast.ReturnKindValue, param("url"))
	two := defWith("fetch", ast.ReturnKindValue, param("url"), param("timeout"))

	m := v.VerifyAll(call, []resolve.Candidate{
		{Call: call, Def: one, Confidence: resolve.ConfidenceSameFile},
		{Call: call, Def: two, Confidence: resolve.ConfidenceSameFile},
	})
	if m != nil {
		t.Fatalf("unexpected mismatch %s: %s", m.Kind, m.Detail)
	}
}

func TestVerifyAll_AllRejectSameKind(t *testing.T) {
	v := New()
	call := callWith("fetch", ast.ResultUsageAssigned, pos("a"), pos("b"), pos("c"))
	one := defWith("fetch", ast.ReturnKindValue, param("url"))
	two := defWith("fetch", ast.ReturnKindValue, param("url"), param("timeout"))

	m := v.VerifyAll(call, []resolve.Candidate{
		{Call: call, Def: one, Confidence: resolve.ConfidenceSameFile},
		{Call: call, Def: two, Confidence: resolve.ConfidenceSameFile},
	})
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindArityMismatch {
		t.Fatalf("kind = %s, want %s", m.Kind, KindArityMismatch)
	}
	if m.Confidence != resolve.ConfidenceSameFile {
		t.Fatalf("confidence = %v, want %v", m.Confidence, resolve.ConfidenceSameFile)
	}
}

func TestVerifyAll_DisagreeingRejectionsDegradeToAmbiguous(t *testing.T) {
	v := New()
	call := callWith("dispatch", ast.ResultUsageAssigned, pos("job"), kw("flag", "True"))
	// one rejects the unknown keyword; two is missing a required parameter.
	one := defWith("dispatch", ast.ReturnKindValue, param("job"))
	two := defWith("dispatch", ast.ReturnKindValue, param("job"), param("queue"), param("flag"))

	m := v.VerifyAll(call, []resolve.Candidate{
		{Call: call, Def: one, Confidence: resolve.ConfidenceImport},
		{Call: call, Def: two, Confidence: resolve.ConfidenceImport},
	})
	if m == nil {
		t.Fatal("expected a mismatch")
	}
	if m.Kind != KindAmbiguous {
		t.Fatalf("kind = %s, want %s", m.Kind, KindAmbiguous)
	}
}

func TestVerifyAll_NoCandidatesStaysSilent(t *testing.T) {
	v := New()
	call := callWith("mystery", ast.ResultUsageAssigned)
	if m := v.VerifyAll(call, nil); m != nil {
		t.Fatalf("unexpected mismatch %s", m.Kind)
	}
}

func TestSeverityRank_Ordering(t *testing.T) {
	order := []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
	for i := 1; i < len(order); i++ {
		if SeverityRank(order[i]) <= SeverityRank(order[i-1]) {
			t.Fatalf("rank(%s) should exceed rank(%s)", order[i], order[i-1])
		}
	}
}
