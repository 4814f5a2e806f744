// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package suggest turns contract mismatches into review suggestions.
//
// Suggestions are pure template text over structural facts already
// established by verification. Synthesis is deterministic: the same
// mismatch always yields byte-identical output, so repeated runs over an
// unchanged PR never churn review comments.
package suggest

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/verify"
)

// Suggestion is one actionable review comment.
type Suggestion struct {
	// Issue states what is wrong at the call site.
	Issue string `json:"issue"`

	// Fix states the concrete edit that would resolve it.
	Fix string `json:"fix"`

	// Impact states what happens at runtime if the call ships as-is.
	Impact string `json:"impact"`

	File      string `json:"file"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`

	Kind       verify.MismatchKind `json:"kind"`
	Severity   verify.Severity     `json:"severity"`
	Confidence float64             `json:"confidence"`

	// DefFile and DefLine point at the definition the call was checked
	// against, so the comment can link to it.
	DefFile string `json:"def_file,omitempty"`
	DefLine int    `json:"def_line,omitempty"`
}

// Synthesizer renders mismatches into suggestions.
//
// Thread Safety:
//
//	Safe for concurrent use; the only state is the logger.
type Synthesizer struct {
	logger *slog.Logger
}

// New creates a Synthesizer. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthesizer{logger: logger}
}

// Synthesize renders one mismatch.
//
// Description:
//
//	A panic during rendering is recovered and logged, and the mismatch
//	is dropped (ok=false); one bad record must not sink the rest of a
//	run.
func (s *Synthesizer) Synthesize(m *verify.Mismatch) (sug Suggestion, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("suggestion synthesis panicked",
				"kind", string(m.Kind),
				"file", m.Call.File,
				"line", m.Call.StartLine,
				"panic", fmt.Sprint(r))
			ok = false
		}
	}()
	if m == nil {
		return Suggestion{}, false
	}

	sug = Suggestion{
		File:       m.Call.File,
		StartLine:  m.Call.StartLine,
		EndLine:    m.Call.EndLine,
		Kind:       m.Kind,
		Severity:   m.Severity,
		Confidence: m.Confidence,
	}
	if m.Def != nil {
		sug.DefFile = m.Def.File
		sug.DefLine = m.Def.StartLine
	}

	switch m.Kind {
	case verify.KindArityMismatch:
		sug.Issue, sug.Fix, sug.Impact = s.arity(m)
	case verify.KindMissingRequiredParam:
		sug.Issue, sug.Fix, sug.Impact = s.missingRequired(m)
	case verify.KindUnexpectedExtraArg:
		sug.Issue, sug.Fix, sug.Impact = s.unknownKeyword(m)
	case verify.KindReturnValueMisuse:
		sug.Issue, sug.Fix, sug.Impact = s.returnMisuse(m)
	case verify.KindAmbiguous:
		sug.Issue, sug.Fix, sug.Impact = s.ambiguous(m)
	default:
		return Suggestion{}, false
	}
	return sug, true
}

// SynthesizeAll renders a batch, dropping any mismatch whose synthesis
// fails and preserving input order for the survivors.
func (s *Synthesizer) SynthesizeAll(mismatches []*verify.Mismatch) []Suggestion {
	out := make([]Suggestion, 0, len(mismatches))
	for _, m := range mismatches {
		if sug, ok := s.Synthesize(m); ok {
			out = append(out, sug)
		}
	}
	return out
}

func (s *Synthesizer) arity(m *verify.Mismatch) (issue, fix, impact string) {
	positional, _ := m.Call.PositionalArgCount()
	maxArgs, _ := m.Def.MaxPositionalArgs()
	excess := positional - maxArgs
	issue = fmt.Sprintf("`%s` (%s:%d) accepts at most %d positional argument%s; this call supplies %d.",
		m.Def.ShortName, m.Def.File, m.Def.StartLine, maxArgs, plural(maxArgs), positional)
	fix = fmt.Sprintf("Remove the last %s, or update the definition of `%s` to accept %s.",
		countNoun(excess, "argument"), m.Def.ShortName, countNoun(positional, "argument"))
	impact = "The call fails at runtime with a wrong-argument-count error."
	return issue, fix, impact
}

func (s *Synthesizer) missingRequired(m *verify.Mismatch) (issue, fix, impact string) {
	missing := missingParams(m)
	issue = fmt.Sprintf("`%s` (%s:%d) requires %s that this call does not supply.",
		m.Def.ShortName, m.Def.File, m.Def.StartLine,
		namedList("parameter", missing))
	fix = fmt.Sprintf("Pass %s explicitly, e.g. `%s`.",
		namedList("argument", missing), exampleNamedArgs(missing))
	impact = "The call fails at runtime with a missing-argument error."
	return issue, fix, impact
}

func (s *Synthesizer) unknownKeyword(m *verify.Mismatch) (issue, fix, impact string) {
	unknown := unknownKeywords(m)
	noun := "parameter"
	argNoun := "the argument"
	if len(unknown) > 1 {
		noun = "parameters"
		argNoun = "the arguments"
	}
	issue = fmt.Sprintf("`%s` (%s:%d) has no %s named %s.",
		m.Def.ShortName, m.Def.File, m.Def.StartLine, noun, backtickList(unknown))
	fix = fmt.Sprintf("Drop %s %s or rename to an existing parameter%s.",
		argNoun, backtickList(unknown), signatureHint(m.Def))
	impact = "The call fails at runtime with an unexpected-keyword error."
	return issue, fix, impact
}

func (s *Synthesizer) returnMisuse(m *verify.Mismatch) (issue, fix, impact string) {
	if m.Def.ReturnKind == ast.ReturnKindVoid {
		issue = fmt.Sprintf("`%s` (%s:%d) does not return a value, but this call %s.",
			m.Def.ShortName, m.Def.File, m.Def.StartLine, consumeClause(m))
		fix = fmt.Sprintf("Remove the use of the result, or make `%s` return the value the caller expects.",
			m.Def.ShortName)
		impact = "The consumed result is always empty, which tends to surface later as a nil or undefined error."
		return issue, fix, impact
	}
	issue = fmt.Sprintf("`%s` (%s:%d) returns a value that this call discards.",
		m.Def.ShortName, m.Def.File, m.Def.StartLine)
	fix = "Capture the result, or ignore it explicitly if that is intentional."
	impact = "A computed value (possibly an error indicator) is silently lost."
	return issue, fix, impact
}

func (s *Synthesizer) ambiguous(m *verify.Mismatch) (issue, fix, impact string) {
	issue = fmt.Sprintf("`%s` resolves to more than one definition: %s.",
		m.Call.ShortName, rivalList(m))
	fix = fmt.Sprintf("Qualify the call (or its import) so a single `%s` is meant.",
		m.Call.ShortName)
	impact = "The call could not be checked against a single contract; no automated verification applies."
	return issue, fix, impact
}

// missingParams recomputes the unsatisfied required parameters from the
// structural facts, keeping synthesis independent of the detail string.
func missingParams(m *verify.Mismatch) []string {
	positional, _ := m.Call.PositionalArgCount()
	supplied := make(map[string]bool)
	for _, a := range m.Call.KeywordArgs() {
		supplied[a.Keyword] = true
	}
	var missing []string
	seen := 0
	for _, p := range m.Def.Params {
		if !p.Required() || supplied[p.Name] {
			continue
		}
		if !p.KeywordOnly && seen < positional {
			seen++
			continue
		}
		missing = append(missing, p.Name)
	}
	return missing
}

func unknownKeywords(m *verify.Mismatch) []string {
	var unknown []string
	for _, a := range m.Call.KeywordArgs() {
		if !m.Def.HasParamNamed(a.Keyword) {
			unknown = append(unknown, a.Keyword)
		}
	}
	return unknown
}

func rivalList(m *verify.Mismatch) string {
	names := make([]string, 0, len(m.Others)+1)
	if m.Def != nil {
		names = append(names, "`"+m.Def.QualifiedName+"`")
	}
	for _, d := range m.Others {
		names = append(names, "`"+d.QualifiedName+"`")
	}
	return strings.Join(names, ", ")
}

func consumeClause(m *verify.Mismatch) string {
	switch m.Call.Usage {
	case ast.ResultUsageAssigned:
		return "assigns its result"
	case ast.ResultUsageArgument:
		return "passes its result to another call"
	case ast.ResultUsageReturned:
		return "returns its result"
	case ast.ResultUsageChained:
		return "chains on its result"
	case ast.ResultUsageCondition:
		return "branches on its result"
	default:
		return "uses its result"
	}
}

func signatureHint(def *extract.SymbolDefinition) string {
	if def.Signature == "" {
		return ""
	}
	return fmt.Sprintf(" (`%s`)", def.Signature)
}

func exampleNamedArgs(names []string) string {
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n + "=..."
	}
	return strings.Join(parts, ", ")
}

func backtickList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "`" + n + "`"
	}
	return strings.Join(quoted, ", ")
}

func namedList(noun string, names []string) string {
	joined := backtickList(names)
	if len(names) == 1 {
		return noun + " " + joined
	}
	return noun + "s " + joined
}

func countNoun(n int, noun string) string {
	return fmt.Sprintf("%d %s%s", n, noun, plural(n))
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
