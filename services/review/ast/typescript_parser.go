// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ast

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// TypeScriptParserOption configures a TypeScriptParser instance.
type TypeScriptParserOption func(*TypeScriptParser)

// WithTypeScriptMaxFileSize sets the maximum file size the parser will accept.
func WithTypeScriptMaxFileSize(bytes int64) TypeScriptParserOption {
	return func(p *TypeScriptParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// WithTypeScriptParseOptions applies the given ParseOptions to the parser.
func WithTypeScriptParseOptions(opts ParseOptions) TypeScriptParserOption {
	return func(p *TypeScriptParser) {
		p.parseOptions = opts
	}
}

// TypeScriptParser implements the Parser interface for TypeScript and TSX.
//
// Description:
//
//	TypeScriptParser selects the tsx grammar for .tsx files and the plain
//	typescript grammar otherwise. Extraction shares the JavaScript walker
//	and layers on type annotations: declared parameter types, optional "?"
//	markers, and annotation-driven return classification (": void" beats a
//	body scan).
//
// Thread Safety:
//
//	TypeScriptParser instances are safe for concurrent use.
type TypeScriptParser struct {
	maxFileSize  int64
	parseOptions ParseOptions
}

// NewTypeScriptParser creates a new TypeScriptParser with the given options.
func NewTypeScriptParser(opts ...TypeScriptParserOption) *TypeScriptParser {
	p := &TypeScriptParser{
		maxFileSize:  DefaultMaxFileSize,
		parseOptions: DefaultParseOptions(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Parse extracts declarations, call sites, and imports from TypeScript source.
//
// Inputs:
//   - ctx: Context for cancellation. Checked before and after parsing.
//   - content: Raw source bytes. Must be valid UTF-8.
//   - filePath: Repo-relative path; the extension selects the tsx grammar.
//
// Outputs:
//   - *ParseResult: Extracted declarations and metadata. Never nil on success.
//   - error: ErrFileTooLarge, ErrInvalidContent, or a context error.
//
// Thread Safety:
//
//	This method is safe for concurrent use.
func (p *TypeScriptParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, "typescript", filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	hash := sha256.Sum256(content)
	hashStr := hex.EncodeToString(hash[:])

	parser := sitter.NewParser()
	if strings.HasSuffix(strings.ToLower(filePath), ".tsx") {
		parser.SetLanguage(tsx.GetLanguage())
	} else {
		parser.SetLanguage(typescript.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	result := &ParseResult{
		FilePath:      filePath,
		Language:      "typescript",
		Hash:          hashStr,
		ParsedAtMilli: time.Now().UnixMilli(),
		Decls:         make([]*Decl, 0),
		Imports:       make([]Import, 0),
		Errors:        make([]string, 0),
	}

	rootNode := tree.RootNode()
	if rootNode == nil {
		result.Errors = append(result.Errors, "tree-sitter returned nil root node")
		return result, nil
	}

	if rootNode.HasError() {
		result.Errors = append(result.Errors, "source contains syntax errors")
	}

	ex := &jsExtractor{
		content:        content,
		filePath:       filePath,
		language:       "typescript",
		includePrivate: p.parseOptions.IncludePrivate,
		typescript:     true,
	}
	p.extractTopLevel(ctx, ex, rootNode, result)
	result.Calls = ex.extractCallsIn(ctx, rootNode)

	if err := result.Validate(); err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), 0, false)
		return nil, fmt.Errorf("result validation failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, "typescript", time.Since(start), result.DeclCount(), false)
		return nil, fmt.Errorf("parse canceled after extraction: %w", err)
	}

	setParseSpanResult(span, result.DeclCount(), len(result.Errors))
	recordParseMetrics(ctx, "typescript", time.Since(start), result.DeclCount(), true)

	return result, nil
}

// Language returns the canonical language name for this parser.
func (p *TypeScriptParser) Language() string {
	return "typescript"
}

// Extensions returns the file extensions this parser handles.
func (p *TypeScriptParser) Extensions() []string {
	return []string{".ts", ".tsx", ".mts", ".cts"}
}

// extractTopLevel walks program statements, adding TS-only declaration forms
// on top of the shared JavaScript handling.
func (p *TypeScriptParser) extractTopLevel(ctx context.Context, ex *jsExtractor, root *sitter.Node, result *ParseResult) {
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		switch child.Type() {
		case "abstract_class_declaration":
			if cls := ex.processClass(ctx, child); cls != nil {
				result.Decls = append(result.Decls, cls)
			}
		case "export_statement":
			handled := false
			for j := 0; j < int(child.ChildCount()); j++ {
				inner := child.Child(j)
				if inner != nil && inner.Type() == "abstract_class_declaration" {
					if cls := ex.processClass(ctx, inner); cls != nil {
						result.Decls = append(result.Decls, cls)
					}
					handled = true
				}
			}
			if !handled {
				ex.extractStatement(ctx, child, result, nil)
			}
		default:
			ex.extractStatement(ctx, child, result, nil)
		}
	}
}

// Compile-time interface compliance check.
var _ Parser = (*TypeScriptParser)(nil)
