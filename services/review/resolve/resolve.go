// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolve maps call sites to candidate definitions in a pinned
// index snapshot.
//
// Resolution runs a fixed confidence ladder: explicit qualified match,
// same file, import-reachable module, then global short name. Ambiguity
// is surfaced as multiple candidates, never silently collapsed; a wrong
// silent resolution would produce a misleading review comment.
package resolve

import (
	"sort"
	"strings"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
	"github.com/AleutianAI/AleutianReview/services/review/diffscan"
	"github.com/AleutianAI/AleutianReview/services/review/extract"
	"github.com/AleutianAI/AleutianReview/services/review/index"
)

// Confidence tiers of the resolution ladder.
const (
	ConfidenceQualified = 1.0
	ConfidenceSameFile  = 0.9
	ConfidenceImport    = 0.7
	ConfidenceGlobal    = 0.4
)

// DefaultMinConfidence is the floor below which candidates are dropped.
// No mismatch is ever raised from a candidate below the floor.
const DefaultMinConfidence = 0.4

// Candidate pairs a call site with one possible defining symbol.
type Candidate struct {
	Call diffscan.CallSite         `json:"call"`
	Def  *extract.SymbolDefinition `json:"def"`

	// Confidence expresses how the short name was disambiguated.
	Confidence float64 `json:"confidence"`

	// Ambiguous marks candidates produced by a global short-name lookup
	// that hit more than one distinct symbol. Downstream must treat the
	// whole set as an Ambiguous outcome, never pick the first.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// Options configures a Resolver.
type Options struct {
	// MinConfidence is the candidate floor. Default: DefaultMinConfidence.
	MinConfidence float64
}

// DefaultOptions returns the default resolver options.
func DefaultOptions() Options {
	return Options{MinConfidence: DefaultMinConfidence}
}

// Option is a functional option for configuring a Resolver.
type Option func(*Options)

// WithMinConfidence sets the candidate confidence floor.
func WithMinConfidence(min float64) Option {
	return func(o *Options) {
		o.MinConfidence = min
	}
}

// Resolver resolves call sites against index snapshots.
//
// Thread Safety:
//
//	Resolver is stateless apart from its options and safe for concurrent
//	use.
type Resolver struct {
	options Options
}

// New creates a Resolver.
func New(opts ...Option) *Resolver {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	if options.MinConfidence <= 0 {
		options.MinConfidence = DefaultMinConfidence
	}
	return &Resolver{options: options}
}

// Resolve returns the candidate definitions for one call site.
//
// Description:
//
//	Tries each ladder tier in order and stops at the first tier that
//	produces a hit. Results are deduplicated by (QualifiedName,
//	Fingerprint), filtered by the confidence floor, and sorted by
//	confidence descending then qualified name for determinism. An empty
//	result means the call could not be resolved above the floor; the
//	correct downstream behavior is silence, not an error.
func (r *Resolver) Resolve(call diffscan.CallSite, snap *index.Snapshot) []Candidate {
	if snap == nil || call.ShortName == "" {
		return nil
	}

	cands := r.qualifiedMatches(call, snap)
	if len(cands) == 0 {
		cands = r.sameFileMatches(call, snap)
	}
	if len(cands) == 0 {
		cands = r.importMatches(call, snap)
	}
	if len(cands) == 0 {
		cands = r.globalMatches(call, snap)
	}

	cands = dedupe(cands)
	kept := cands[:0]
	for _, c := range cands {
		if c.Confidence >= r.options.MinConfidence {
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Confidence != kept[j].Confidence {
			return kept[i].Confidence > kept[j].Confidence
		}
		return kept[i].Def.QualifiedName < kept[j].Def.QualifiedName
	})
	return kept
}

// qualifiedMatches resolves calls carrying an explicit qualifier.
//
// The qualifier is expanded through the file's import aliases before the
// qualified-name lookup: "np.mean" with "import numpy as np" looks up
// "numpy.mean". Receiver keywords (self, this) are not qualified paths
// and are handled by the same-file tier instead.
func (r *Resolver) qualifiedMatches(call diffscan.CallSite, snap *index.Snapshot) []Candidate {
	if call.Qualifier == "" || isReceiverKeyword(call.Qualifier) {
		return nil
	}

	var out []Candidate
	for _, prefix := range qualifierExpansions(call) {
		for _, def := range snap.LookupQualified(prefix + "." + call.ShortName) {
			out = append(out, Candidate{Call: call, Def: def, Confidence: ConfidenceQualified})
		}
		if len(out) > 0 {
			return out
		}
	}
	return out
}

// sameFileMatches resolves bare calls and receiver-qualified calls
// against definitions in the same file.
func (r *Resolver) sameFileMatches(call diffscan.CallSite, snap *index.Snapshot) []Candidate {
	if call.Qualifier != "" && !isReceiverKeyword(call.Qualifier) {
		return nil
	}

	var out []Candidate
	for _, def := range snap.LookupShortName(call.ShortName) {
		if def.File != call.File {
			continue
		}
		// self.save() only matches methods of an enclosing class.
		if isReceiverKeyword(call.Qualifier) && !receiverInScope(def.Receiver, call.ScopePath) {
			continue
		}
		out = append(out, Candidate{Call: call, Def: def, Confidence: ConfidenceSameFile})
	}
	return out
}

// importMatches resolves short names through the file's import list.
//
// Import specifiers are normalized to the same dotted namespace form the
// extractor derives from file paths, so the two sides meet without real
// module resolution. This is best effort: a miss degrades to the global
// tier rather than guessing.
func (r *Resolver) importMatches(call diffscan.CallSite, snap *index.Snapshot) []Candidate {
	var out []Candidate
	for _, imp := range call.Imports {
		if !importCovers(imp, call) {
			continue
		}
		ns := normalizeImportPath(imp.Path, call.File)
		if ns == "" {
			continue
		}
		for _, def := range snap.LookupShortName(call.ShortName) {
			if qualifiedUnder(def.QualifiedName, ns) {
				out = append(out, Candidate{Call: call, Def: def, Confidence: ConfidenceImport})
			}
		}
	}
	return out
}

// globalMatches is the last-resort short-name lookup across the index.
// More than one distinct symbol marks every candidate ambiguous.
func (r *Resolver) globalMatches(call diffscan.CallSite, snap *index.Snapshot) []Candidate {
	defs := snap.LookupShortName(call.ShortName)
	if len(defs) == 0 {
		return nil
	}
	distinct := make(map[string]bool, len(defs))
	for _, def := range defs {
		distinct[def.QualifiedName] = true
	}
	ambiguous := len(distinct) > 1

	out := make([]Candidate, 0, len(defs))
	for _, def := range defs {
		out = append(out, Candidate{
			Call:       call,
			Def:        def,
			Confidence: ConfidenceGlobal,
			Ambiguous:  ambiguous,
		})
	}
	return out
}

// qualifierExpansions lists the qualified prefixes a call's qualifier may
// stand for, most specific first.
func qualifierExpansions(call diffscan.CallSite) []string {
	var out []string
	for _, imp := range call.Imports {
		if imp.Alias != "" && imp.Alias == call.Qualifier {
			out = append(out, normalizeImportPath(imp.Path, call.File))
		}
	}
	for _, imp := range call.Imports {
		base := imp.Path[strings.LastIndexByte(imp.Path, '/')+1:]
		base = base[strings.LastIndexByte(base, '.')+1:]
		if imp.Alias == "" && base == call.Qualifier {
			out = append(out, normalizeImportPath(imp.Path, call.File))
		}
	}
	// The qualifier as written may itself be a namespace path.
	out = append(out, strings.ReplaceAll(call.Qualifier, "/", "."))
	return out
}

// importCovers reports whether an import statement plausibly brings the
// call's short name or qualifier into scope.
func importCovers(imp ast.Import, call diffscan.CallSite) bool {
	if imp.IsWildcard {
		return true
	}
	for _, name := range imp.Names {
		if name == call.ShortName {
			return true
		}
	}
	if call.Qualifier == "" {
		return false
	}
	if imp.Alias == call.Qualifier {
		return true
	}
	base := imp.Path[strings.LastIndexByte(imp.Path, '/')+1:]
	base = base[strings.LastIndexByte(base, '.')+1:]
	return base == call.Qualifier
}

// normalizeImportPath converts an import specifier to a dotted namespace.
// Relative specifiers are resolved against the importing file's directory.
func normalizeImportPath(spec, fromFile string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return ""
	}
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") {
		dir := fromFile
		if i := strings.LastIndexByte(dir, '/'); i >= 0 {
			dir = dir[:i]
		} else {
			dir = ""
		}
		for strings.HasPrefix(spec, "../") {
			spec = strings.TrimPrefix(spec, "../")
			if i := strings.LastIndexByte(dir, '/'); i >= 0 {
				dir = dir[:i]
			} else {
				dir = ""
			}
		}
		spec = strings.TrimPrefix(spec, "./")
		if dir != "" {
			spec = dir + "/" + spec
		}
	}
	spec = strings.TrimSuffix(spec, ".py")
	spec = strings.TrimSuffix(spec, ".ts")
	spec = strings.TrimSuffix(spec, ".js")
	spec = strings.ReplaceAll(spec, "/", ".")
	return strings.TrimPrefix(spec, ".")
}

func qualifiedUnder(qualifiedName, namespace string) bool {
	return strings.HasPrefix(qualifiedName, namespace+".")
}

func isReceiverKeyword(q string) bool {
	return q == "self" || q == "this" || q == "cls"
}

func receiverInScope(receiver string, scopePath []string) bool {
	if receiver == "" {
		return false
	}
	for _, s := range scopePath {
		if s == receiver {
			return true
		}
	}
	return false
}

func dedupe(cands []Candidate) []Candidate {
	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		key := c.Def.QualifiedName + "#" + c.Def.Fingerprint
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
