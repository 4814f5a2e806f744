// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ast turns source files into a normalized, language-neutral view of
// declarations, call sites, and imports using tree-sitter grammars.
//
// Parsers are error-tolerant: syntactically broken files still yield partial
// results with diagnostics attached. Nothing in this package performs I/O;
// callers supply file contents and consume immutable ParseResults.
package ast

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DefaultMaxFileSize is the parser-level ceiling on input size. Review
	// policy usually configures a much lower limit per run.
	DefaultMaxFileSize int64 = 10 * 1024 * 1024

	// WarnFileSize triggers a log warning for unusually large inputs.
	WarnFileSize = 1 * 1024 * 1024

	// MaxCallExpressionDepth bounds AST traversal depth so pathological
	// nesting cannot stall a worker.
	MaxCallExpressionDepth = 50

	// MaxCallSitesPerBody caps extracted calls per declaration body.
	MaxCallSitesPerBody = 1000
)

// ParseOptions controls extraction behavior shared by all parsers.
type ParseOptions struct {
	// IncludePrivate keeps non-exported declarations in the result. Review
	// runs verify calls to private helpers too, so this defaults to true.
	IncludePrivate bool
}

// DefaultParseOptions returns the options used when none are supplied.
func DefaultParseOptions() ParseOptions {
	return ParseOptions{IncludePrivate: true}
}

// Parser converts one language's source text into a ParseResult.
//
// Description:
//
//	Implementations wrap a tree-sitter grammar. Each Parse call creates its
//	own tree-sitter parser instance, so a single Parser value is safe for
//	concurrent use across goroutines.
//
// Thread Safety:
//
//	All implementations in this package are safe for concurrent use.
type Parser interface {
	// Parse extracts declarations, call sites, and imports from content.
	// Returns ErrFileTooLarge or ErrInvalidContent for rejected input.
	Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error)

	// Language returns the canonical language name, e.g. "python".
	Language() string

	// Extensions returns the file extensions this parser handles,
	// including the leading dot.
	Extensions() []string
}

// Registry maps languages and file extensions to parsers.
//
// Thread Safety:
//
//	Registry is immutable after construction and safe for concurrent use.
type Registry struct {
	byLanguage map[string]Parser
	byExt      map[string]Parser
}

// NewRegistry builds a registry from the given parsers. Later parsers win
// when extensions collide.
func NewRegistry(parsers ...Parser) *Registry {
	r := &Registry{
		byLanguage: make(map[string]Parser, len(parsers)),
		byExt:      make(map[string]Parser, len(parsers)*2),
	}
	for _, p := range parsers {
		r.byLanguage[p.Language()] = p
		for _, ext := range p.Extensions() {
			r.byExt[strings.ToLower(ext)] = p
		}
	}
	return r
}

// DefaultRegistry returns a registry with all built-in parsers using their
// default options.
func DefaultRegistry() *Registry {
	return NewRegistry(
		NewPythonParser(),
		NewTypeScriptParser(),
		NewJavaScriptParser(),
		NewGoParser(),
	)
}

// ForLanguage returns the parser registered for a canonical language name.
func (r *Registry) ForLanguage(language string) (Parser, bool) {
	p, ok := r.byLanguage[strings.ToLower(language)]
	return p, ok
}

// ForFile returns the parser for a path based on its extension.
func (r *Registry) ForFile(path string) (Parser, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return nil, false
	}
	p, ok := r.byExt[ext]
	return p, ok
}

// Languages returns the registered language names, sorted.
func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.byLanguage))
	for lang := range r.byLanguage {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// Restrict returns a copy of the registry containing only the named
// languages. Unknown names are ignored.
func (r *Registry) Restrict(languages []string) *Registry {
	allowed := make(map[string]bool, len(languages))
	for _, l := range languages {
		allowed[strings.ToLower(l)] = true
	}
	out := &Registry{
		byLanguage: make(map[string]Parser),
		byExt:      make(map[string]Parser),
	}
	for lang, p := range r.byLanguage {
		if !allowed[lang] {
			continue
		}
		out.byLanguage[lang] = p
		for _, ext := range p.Extensions() {
			out.byExt[strings.ToLower(ext)] = p
		}
	}
	return out
}
