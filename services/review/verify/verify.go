// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package verify compares resolved call sites against their definitions'
// parameter and return contracts.
//
// At most one mismatch is reported per call site: the rules run in strict
// priority order and the first applicable one wins, which keeps a single
// broken call from producing a pile of overlapping comments.
package verify

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/diffscan"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/resolve"
)

// MismatchKind classifies a contract violation.
type MismatchKind string

const (
	KindArityMismatch        MismatchKind = "arity_mismatch"
	KindMissingRequiredParam MismatchKind = "missing_required_param"
	KindUnexpectedExtraArg   MismatchKind = "unexpected_extra_arg"
	KindReturnValueMisuse    MismatchKind = "return_value_misuse"
	KindAmbiguous            MismatchKind = "ambiguous"
)

// Severity levels, most severe first.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SeverityRank returns a numeric rank for sorting (higher = more severe).
func SeverityRank(s Severity) int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// SeverityFor returns the fixed severity of a mismatch kind.
func SeverityFor(kind MismatchKind) Severity {
	switch kind {
	case KindArityMismatch:
		return SeverityCritical
	case KindMissingRequiredParam:
		return SeverityHigh
	case KindUnexpectedExtraArg:
		return SeverityMedium
	case KindReturnValueMisuse, KindAmbiguous:
		return SeverityLow
	default:
		return SeverityLow
	}
}

// Mismatch records one contract violation at a call site.
//
// Mismatches are created per review run and are not persisted; the
// suggestion synthesizer turns them into outbound records.
type Mismatch struct {
	Call diffscan.CallSite         `json:"call"`
	Def  *extract.SymbolDefinition `json:"def"`

	Kind     MismatchKind `json:"kind"`
	Severity Severity     `json:"severity"`

	// Confidence is inherited from the resolving candidate.
	Confidence float64 `json:"confidence"`

	// Detail is a short factual description of the violation.
	Detail string `json:"detail"`

	// Others holds the rival definitions for Ambiguous mismatches.
	Others []*extract.SymbolDefinition `json:"others,omitempty"`
}

// Options configures verifier behavior.
type Options struct {
	// ReturnMisuseAdvisory enables the low-severity return-value checks.
	// The void-result-consumed rule and the discarded-value rule are both
	// advisory; disabling this silences them without touching the harder
	// arity rules.
	ReturnMisuseAdvisory bool
}

// DefaultOptions returns the default verifier options.
func DefaultOptions() Options {
	return Options{ReturnMisuseAdvisory: true}
}

// Option is a functional option for configuring a Verifier.
type Option func(*Options)

// WithReturnMisuseAdvisory toggles the advisory return-usage rule.
func WithReturnMisuseAdvisory(enabled bool) Option {
	return func(o *Options) {
		o.ReturnMisuseAdvisory = enabled
	}
}

// Verifier checks call sites against definition contracts.
//
// Thread Safety:
//
//	Verifier is stateless apart from options and safe for concurrent use.
type Verifier struct {
	options Options
}

// New creates a Verifier.
func New(opts ...Option) *Verifier {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return &Verifier{options: options}
}

// Verify checks one call against one definition.
//
// Description:
//
//	Rules run in priority order: arity overflow, missing required
//	parameters, unknown named argument, then advisory return-value
//	misuse. Only the first applicable rule is reported. A nil result
//	means the call satisfies the contract.
func (v *Verifier) Verify(call diffscan.CallSite, def *extract.SymbolDefinition) *Mismatch {
	if def == nil {
		return nil
	}
	if m := v.checkArity(call, def); m != nil {
		return m
	}
	if m := v.checkMissingRequired(call, def); m != nil {
		return m
	}
	if m := v.checkUnknownKeyword(call, def); m != nil {
		return m
	}
	if v.options.ReturnMisuseAdvisory {
		if m := v.checkReturnUsage(call, def); m != nil {
			return m
		}
	}
	return nil
}

// VerifyAll checks a call against its full candidate set.
//
// Description:
//
//	Candidates marked ambiguous by the resolver (a global short-name
//	collision between distinct symbols) always produce an Ambiguous
//	advisory naming every rival; auto-picking one would risk a
//	misleading comment. Otherwise the call is satisfied if ANY candidate
//	accepts it (overload semantics). When every candidate rejects it,
//	the mismatch against the highest-confidence candidate is reported if
//	all rejections agree on the kind; disagreeing rejections degrade to
//	an Ambiguous advisory too.
func (v *Verifier) VerifyAll(call diffscan.CallSite, cands []resolve.Candidate) *Mismatch {
	if len(cands) == 0 {
		return nil
	}

	if cands[0].Ambiguous && countDistinct(cands) > 1 {
		return v.ambiguousMismatch(call, cands)
	}

	var mismatches []*Mismatch
	for _, c := range cands {
		m := v.Verify(call, c.Def)
		if m == nil {
			return nil
		}
		m.Confidence = c.Confidence
		mismatches = append(mismatches, m)
	}

	first := mismatches[0]
	for _, m := range mismatches[1:] {
		if m.Kind != first.Kind {
			return v.ambiguousMismatch(call, cands)
		}
	}
	return first
}

func countDistinct(cands []resolve.Candidate) int {
	seen := make(map[string]bool, len(cands))
	for _, c := range cands {
		seen[c.Def.QualifiedName] = true
	}
	return len(seen)
}

func (v *Verifier) ambiguousMismatch(call diffscan.CallSite, cands []resolve.Candidate) *Mismatch {
	others := make([]*extract.SymbolDefinition, 0, len(cands)-1)
	for _, c := range cands[1:] {
		others = append(others, c.Def)
	}
	names := make([]string, 0, len(cands))
	for _, c := range cands {
		names = append(names, c.Def.QualifiedName)
	}
	return &Mismatch{
		Call:       call,
		Def:        cands[0].Def,
		Kind:       KindAmbiguous,
		Severity:   SeverityFor(KindAmbiguous),
		Confidence: cands[0].Confidence,
		Detail: fmt.Sprintf("%d definitions match %q: %s",
			len(cands), call.ShortName, strings.Join(names, ", ")),
		Others: others,
	}
}

// checkArity flags calls supplying more positional arguments than the
// definition can accept. Variadic definitions are exempt, as are calls
// using spread arguments (arity unknowable from syntax).
func (v *Verifier) checkArity(call diffscan.CallSite, def *extract.SymbolDefinition) *Mismatch {
	positional, spread := call.PositionalArgCount()
	if spread {
		return nil
	}
	maxArgs, variadic := def.MaxPositionalArgs()
	if variadic || positional <= maxArgs {
		return nil
	}
	return &Mismatch{
		Call:     call,
		Def:      def,
		Kind:     KindArityMismatch,
		Severity: SeverityFor(KindArityMismatch),
		Detail: fmt.Sprintf("%s accepts at most %d positional argument%s but the call supplies %d",
			def.ShortName, maxArgs, plural(maxArgs), positional),
	}
}

// checkMissingRequired flags calls supplying fewer arguments than the
// definition's required parameters. Defaults and optional markers satisfy
// arity; named arguments satisfy their parameter by name.
func (v *Verifier) checkMissingRequired(call diffscan.CallSite, def *extract.SymbolDefinition) *Mismatch {
	positional, spread := call.PositionalArgCount()
	if spread {
		return nil
	}
	supplied := make(map[string]bool)
	for _, a := range call.KeywordArgs() {
		supplied[a.Keyword] = true
	}

	var missing []string
	seen := 0
	for _, p := range def.Params {
		if !p.Required() {
			continue
		}
		if supplied[p.Name] {
			continue
		}
		if !p.KeywordOnly && seen < positional {
			seen++
			continue
		}
		missing = append(missing, p.Name)
	}
	if len(missing) == 0 {
		return nil
	}
	return &Mismatch{
		Call:     call,
		Def:      def,
		Kind:     KindMissingRequiredParam,
		Severity: SeverityFor(KindMissingRequiredParam),
		Detail: fmt.Sprintf("%s requires parameter%s %s not supplied by the call",
			def.ShortName, plural(len(missing)), strings.Join(missing, ", ")),
	}
}

// checkUnknownKeyword flags named arguments with no matching parameter.
// Definitions with a keyword catch-all (**kwargs) accept anything.
func (v *Verifier) checkUnknownKeyword(call diffscan.CallSite, def *extract.SymbolDefinition) *Mismatch {
	var unknown []string
	for _, a := range call.KeywordArgs() {
		if !def.HasParamNamed(a.Keyword) {
			unknown = append(unknown, a.Keyword)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	return &Mismatch{
		Call:     call,
		Def:      def,
		Kind:     KindUnexpectedExtraArg,
		Severity: SeverityFor(KindUnexpectedExtraArg),
		Detail: fmt.Sprintf("%s has no parameter%s named %s",
			def.ShortName, plural(len(unknown)), strings.Join(unknown, ", ")),
	}
}

// checkReturnUsage flags a void definition whose result the caller
// consumes, and (advisory, suppressed for side-effecting names) a value
// definition whose result is silently discarded.
func (v *Verifier) checkReturnUsage(call diffscan.CallSite, def *extract.SymbolDefinition) *Mismatch {
	switch def.ReturnKind {
	case ast.ReturnKindVoid:
		if !usageConsumesResult(call.Usage) {
			return nil
		}
		return &Mismatch{
			Call:     call,
			Def:      def,
			Kind:     KindReturnValueMisuse,
			Severity: SeverityFor(KindReturnValueMisuse),
			Detail: fmt.Sprintf("%s returns no value but its result is %s",
				def.ShortName, usageVerb(call.Usage)),
		}
	case ast.ReturnKindValue, ast.ReturnKindMultiple:
		if call.Usage != ast.ResultUsageDiscarded {
			return nil
		}
		if looksSideEffecting(def.ShortName) {
			return nil
		}
		return &Mismatch{
			Call:     call,
			Def:      def,
			Kind:     KindReturnValueMisuse,
			Severity: SeverityFor(KindReturnValueMisuse),
			Detail: fmt.Sprintf("%s returns a value that the call discards",
				def.ShortName),
		}
	}
	return nil
}

func usageConsumesResult(u ast.ResultUsage) bool {
	switch u {
	case ast.ResultUsageAssigned, ast.ResultUsageArgument, ast.ResultUsageReturned,
		ast.ResultUsageChained, ast.ResultUsageCondition:
		return true
	}
	return false
}

func usageVerb(u ast.ResultUsage) string {
	switch u {
	case ast.ResultUsageAssigned:
		return "assigned to a variable"
	case ast.ResultUsageArgument:
		return "passed as an argument"
	case ast.ResultUsageReturned:
		return "returned from the enclosing function"
	case ast.ResultUsageChained:
		return "used as a receiver"
	case ast.ResultUsageCondition:
		return "used in a condition"
	default:
		return "consumed"
	}
}

// sideEffectVerbs are short-name prefixes that commonly name mutating
// operations whose return value is legitimately ignored.
var sideEffectVerbs = []string{
	"set", "add", "write", "save", "log", "print", "update", "delete",
	"remove", "push", "emit", "send", "init", "register", "close",
	"flush", "reset", "append", "insert", "notify", "record", "mark",
}

func looksSideEffecting(name string) bool {
	lower := strings.ToLower(name)
	for _, verb := range sideEffectVerbs {
		if strings.HasPrefix(lower, verb) {
			return true
		}
	}
	return false
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
