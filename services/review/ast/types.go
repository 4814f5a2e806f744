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

import "fmt"

// Location identifies a region of source text.
//
// Lines are 1-based, columns and byte offsets are 0-based, matching
// tree-sitter's coordinate system with the row shifted for human display.
type Location struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	StartCol  int    `json:"start_col"`
	EndCol    int    `json:"end_col"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`
}

// DeclKind identifies the declaration forms the review engine inspects.
type DeclKind string

const (
	DeclKindFunction DeclKind = "function"
	DeclKindMethod   DeclKind = "method"
	DeclKindClass    DeclKind = "class"
)

// ReturnKind classifies how a callable produces results.
//
// Classification is purely structural: a signature's result list or the
// return statements observed in a body. No type inference is performed.
type ReturnKind string

const (
	// ReturnKindVoid means the callable never produces a usable value.
	ReturnKindVoid ReturnKind = "void"

	// ReturnKindValue means the callable produces a single value. Tuples and
	// promises count as one value.
	ReturnKindValue ReturnKind = "value"

	// ReturnKindMultiple means the callable produces more than one result,
	// as in Go's multi-value returns.
	ReturnKindMultiple ReturnKind = "multiple"
)

// ResultUsage describes what the surrounding code does with a call's result.
type ResultUsage string

const (
	// ResultUsageDiscarded: the call stands alone as an expression statement.
	ResultUsageDiscarded ResultUsage = "discarded"

	// ResultUsageAssigned: the result is bound to a variable or field.
	ResultUsageAssigned ResultUsage = "assigned"

	// ResultUsageArgument: the result is passed directly to another call.
	ResultUsageArgument ResultUsage = "argument"

	// ResultUsageReturned: the result is returned from the enclosing function.
	ResultUsageReturned ResultUsage = "returned"

	// ResultUsageAwaited: the result is awaited and then discarded.
	ResultUsageAwaited ResultUsage = "awaited"

	// ResultUsageChained: the result is the receiver of a member access or
	// is itself invoked.
	ResultUsageChained ResultUsage = "chained"

	// ResultUsageCondition: the result feeds a branch or boolean expression.
	ResultUsageCondition ResultUsage = "condition"
)

// Param is one parameter of a callable declaration, read directly from
// syntax. Declared types are captured as raw text when present and are
// advisory only.
type Param struct {
	Name         string `json:"name"`
	DeclaredType string `json:"declared_type,omitempty"`

	// HasDefault is true when the declaration supplies a default value.
	HasDefault bool `json:"has_default,omitempty"`

	// Optional is true for syntactically optional parameters without a
	// default, such as TypeScript's "x?" marker.
	Optional bool `json:"optional,omitempty"`

	// Variadic is true for positional catch-alls: *args, ...rest, ...T.
	Variadic bool `json:"variadic,omitempty"`

	// KeywordVariadic is true for keyword catch-alls such as **kwargs.
	KeywordVariadic bool `json:"keyword_variadic,omitempty"`

	// KeywordOnly is true for parameters that can only be supplied by name.
	KeywordOnly bool `json:"keyword_only,omitempty"`
}

// Required reports whether a call must supply this parameter explicitly.
func (p Param) Required() bool {
	return !p.HasDefault && !p.Optional && !p.Variadic && !p.KeywordVariadic
}

// Arg is one argument at a call site, captured as raw source text.
type Arg struct {
	Text string `json:"text"`

	// Keyword is the parameter name for named arguments (f(x=1)), empty for
	// positional arguments.
	Keyword string `json:"keyword,omitempty"`

	// Spread is true for splatted arguments: f(*xs), f(...xs), f(xs...).
	Spread bool `json:"spread,omitempty"`
}

// CallNode is one function or method invocation found in a body.
//
// Description:
//
//	CallNode records everything the verifier needs about an invocation
//	without resolving it: the short name being invoked, any qualifier text
//	(receiver or module prefix), the raw arguments in order, and how the
//	surrounding code consumes the result. Resolution to a definition happens
//	later against a pinned index snapshot.
type CallNode struct {
	// Target is the short name being invoked: "mean" for np.mean(x).
	Target string `json:"target"`

	// Qualifier is the text before the final name: "np" for np.mean(x),
	// "self" for self.save(), empty for bare calls.
	Qualifier string `json:"qualifier,omitempty"`

	// CalleeText is the full callee expression as written.
	CalleeText string `json:"callee_text"`

	IsMethod bool        `json:"is_method,omitempty"`
	Args     []Arg       `json:"args,omitempty"`
	Usage    ResultUsage `json:"usage"`
	Location Location    `json:"location"`
}

// Import records one import statement. The same shape is shared across
// languages; fields that do not apply to a language stay zero.
type Import struct {
	// Path is the imported module path or specifier as written.
	Path string `json:"path"`

	// Alias is the local alias, if any ("import numpy as np" -> "np").
	Alias string `json:"alias,omitempty"`

	// Names are individually imported names ("from x import a, b").
	Names []string `json:"names,omitempty"`

	IsWildcard bool     `json:"is_wildcard,omitempty"`
	IsRelative bool     `json:"is_relative,omitempty"`
	Location   Location `json:"location"`
}

// Decl is one declaration extracted from a file.
//
// Description:
//
//	Decl is the normalized view of a function, method, or class. Methods and
//	nested functions hang off their parent via Children; each Decl owns the
//	call nodes found directly in its body (calls inside a nested declaration
//	belong to that declaration). Receiver parameters (self, cls, Go method
//	receivers) are elided from Params so that parameter counts line up with
//	what a caller supplies.
//
// Thread Safety:
//
//	Decl values are written once by a parser and read-only afterwards.
type Decl struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Kind     DeclKind   `json:"kind"`
	Params   []Param    `json:"params,omitempty"`
	Returns  ReturnKind `json:"returns"`
	Exported bool       `json:"exported"`
	IsAsync  bool       `json:"is_async,omitempty"`

	// Receiver is the enclosing class name for methods, or the receiver type
	// for Go methods.
	Receiver string `json:"receiver,omitempty"`

	// Signature is the declaration header as written, for display in
	// suggestions.
	Signature string `json:"signature,omitempty"`

	Location Location   `json:"location"`
	Children []*Decl    `json:"children,omitempty"`
	Calls    []CallNode `json:"calls,omitempty"`
}

// ParseResult is the normalized output of parsing a single file.
type ParseResult struct {
	FilePath      string `json:"file_path"`
	Language      string `json:"language"`
	Hash          string `json:"hash"`
	ParsedAtMilli int64  `json:"parsed_at_milli"`

	// Package is the declared package or module name for languages that
	// carry one in source (Go's package clause). Empty otherwise; the
	// extractor falls back to a path-derived namespace.
	Package string `json:"package,omitempty"`

	Decls []*Decl `json:"decls"`

	// Calls holds invocations at module scope, outside any declaration.
	Calls []CallNode `json:"calls,omitempty"`

	Imports []Import `json:"imports,omitempty"`

	// Errors holds non-fatal parse diagnostics. A file with syntax errors
	// still yields partial Decls.
	Errors []string `json:"errors,omitempty"`
}

// Validate checks structural invariants of the result.
//
// Outputs:
//   - error: Wraps ErrInvalidResult when a required field is missing or a
//     declaration is malformed. Nil for a well-formed result.
func (r *ParseResult) Validate() error {
	if r.FilePath == "" {
		return fmt.Errorf("%w: missing file path", ErrInvalidResult)
	}
	if r.Language == "" {
		return fmt.Errorf("%w: missing language", ErrInvalidResult)
	}
	if r.Hash == "" {
		return fmt.Errorf("%w: missing content hash", ErrInvalidResult)
	}
	var check func(d *Decl) error
	check = func(d *Decl) error {
		if d == nil {
			return fmt.Errorf("%w: nil declaration", ErrInvalidResult)
		}
		if d.ID == "" || d.Name == "" {
			return fmt.Errorf("%w: declaration missing id or name in %s", ErrInvalidResult, r.FilePath)
		}
		if d.Location.StartLine <= 0 || d.Location.EndLine < d.Location.StartLine {
			return fmt.Errorf("%w: declaration %q has invalid location", ErrInvalidResult, d.Name)
		}
		for _, c := range d.Children {
			if err := check(c); err != nil {
				return err
			}
		}
		return nil
	}
	for _, d := range r.Decls {
		if err := check(d); err != nil {
			return err
		}
	}
	return nil
}

// WalkDecls visits every declaration depth-first, passing the scope chain of
// enclosing declaration names (outermost first, excluding the visited one).
func (r *ParseResult) WalkDecls(visit func(d *Decl, scope []string)) {
	var walk func(d *Decl, scope []string)
	walk = func(d *Decl, scope []string) {
		visit(d, scope)
		child := make([]string, 0, len(scope)+1)
		child = append(child, scope...)
		child = append(child, d.Name)
		for _, c := range d.Children {
			walk(c, child)
		}
	}
	for _, d := range r.Decls {
		walk(d, nil)
	}
}

// WalkCalls visits every call node with the scope chain of its enclosing
// declarations. Module-scope calls come first with a nil scope, then
// declarations in file order.
func (r *ParseResult) WalkCalls(visit func(call *CallNode, scope []string)) {
	for i := range r.Calls {
		visit(&r.Calls[i], nil)
	}
	var walk func(d *Decl, scope []string)
	walk = func(d *Decl, scope []string) {
		chain := make([]string, 0, len(scope)+1)
		chain = append(chain, scope...)
		chain = append(chain, d.Name)
		for i := range d.Calls {
			visit(&d.Calls[i], chain)
		}
		for _, c := range d.Children {
			walk(c, chain)
		}
	}
	for _, d := range r.Decls {
		walk(d, nil)
	}
}

// DeclCount returns the total number of declarations including nested ones.
func (r *ParseResult) DeclCount() int {
	n := 0
	r.WalkDecls(func(*Decl, []string) { n++ })
	return n
}
