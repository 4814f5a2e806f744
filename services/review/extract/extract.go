// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package extract turns parse results into immutable SymbolDefinition
// records for the repository index.
//
// Extraction is deterministic: the same file bytes always yield the same
// definition set, in the same order, with the same fingerprints. Nothing
// here performs type inference; parameter shape is read straight from
// syntax and declared types stay advisory text.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
)

// Visibility classifies how widely a definition is reachable.
type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// SymbolDefinition is the parameter/return contract of one declaration.
//
// Description:
//
//	A SymbolDefinition is immutable once extracted and is uniquely keyed by
//	(QualifiedName, Fingerprint, CommitSHA). Two definitions may share a
//	qualified name with different fingerprints; that is an overload set and
//	both are retained. Ambiguity is a first-class state, never an error.
//
// Thread Safety:
//
//	Values are written once by Definitions and read-only afterwards, so
//	they may be shared freely across index snapshots and goroutines.
type SymbolDefinition struct {
	// ID is a stable identifier derived from file, line, and short name.
	ID string `json:"id"`

	// QualifiedName is the namespace-qualified path of the declaration:
	// "billing.payments.PaymentProcessor.process".
	QualifiedName string `json:"qualified_name"`

	// ShortName is the bare declaration name: "process".
	ShortName string `json:"short_name"`

	File      string `json:"file"`
	Language  string `json:"language"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
	StartByte int    `json:"start_byte"`
	EndByte   int    `json:"end_byte"`

	// Params is the ordered parameter list with receiver parameters elided.
	Params []ast.Param `json:"params,omitempty"`

	ReturnKind ast.ReturnKind `json:"return_kind"`
	Visibility Visibility     `json:"visibility"`

	// Receiver is the enclosing class or Go receiver type for methods.
	Receiver string `json:"receiver,omitempty"`

	// Signature is the declaration header as written, for suggestions.
	Signature string `json:"signature,omitempty"`

	// Fingerprint is a hash of the parameter shape and return kind, used
	// for fast contract equality and overload detection.
	Fingerprint string `json:"fingerprint"`

	CommitSHA string `json:"commit_sha"`
}

// Key returns the unique identity of this definition.
func (d *SymbolDefinition) Key() string {
	return d.QualifiedName + "#" + d.Fingerprint + "@" + d.CommitSHA
}

// RequiredParamCount returns how many parameters a call must supply.
func (d *SymbolDefinition) RequiredParamCount() int {
	n := 0
	for _, p := range d.Params {
		if p.Required() {
			n++
		}
	}
	return n
}

// MaxPositionalArgs returns the maximum positional argument count the
// definition accepts, and whether that maximum is unbounded (variadic).
func (d *SymbolDefinition) MaxPositionalArgs() (int, bool) {
	n := 0
	for _, p := range d.Params {
		if p.Variadic {
			return n, true
		}
		if p.KeywordOnly || p.KeywordVariadic {
			continue
		}
		n++
	}
	return n, false
}

// HasParamNamed reports whether any parameter carries the given name.
func (d *SymbolDefinition) HasParamNamed(name string) bool {
	for _, p := range d.Params {
		if p.Name == name {
			return true
		}
		if p.KeywordVariadic {
			return true
		}
	}
	return false
}

// Definitions extracts every function, method, and constructor declaration
// from a parse result.
//
// Description:
//
//	Walks declaration nodes only. Class declarations themselves are not
//	emitted as callable definitions, but their methods are, with the class
//	name folded into the qualified name and Receiver. Output order follows
//	the file's declaration order, so repeated extraction of identical
//	content is byte-identical.
//
// Inputs:
//   - res: A validated parse result. Must not be nil.
//   - commitSHA: The commit the file content belongs to.
//
// Outputs:
//   - []*SymbolDefinition: Zero or more definitions. Never nil.
func Definitions(res *ast.ParseResult, commitSHA string) []*SymbolDefinition {
	defs := make([]*SymbolDefinition, 0, res.DeclCount())
	namespace := FileNamespace(res)

	res.WalkDecls(func(d *ast.Decl, scope []string) {
		if d.Kind == ast.DeclKindClass {
			return
		}
		qualified := qualifiedName(namespace, scope, d.Name)
		visibility := VisibilityPrivate
		if d.Exported {
			visibility = VisibilityPublic
		}
		params := make([]ast.Param, len(d.Params))
		copy(params, d.Params)

		defs = append(defs, &SymbolDefinition{
			ID:            d.ID,
			QualifiedName: qualified,
			ShortName:     d.Name,
			File:          res.FilePath,
			Language:      res.Language,
			StartLine:     d.Location.StartLine,
			EndLine:       d.Location.EndLine,
			StartByte:     d.Location.StartByte,
			EndByte:       d.Location.EndByte,
			Params:        params,
			ReturnKind:    d.Returns,
			Visibility:    visibility,
			Receiver:      d.Receiver,
			Signature:     d.Signature,
			Fingerprint:   Fingerprint(params, d.Returns),
			CommitSHA:     commitSHA,
		})
	})
	return defs
}

// Fingerprint hashes the parameter shape and return kind of a contract.
//
// Description:
//
//	The canonical form includes each parameter's name, required flag,
//	default marker, variadic markers, and the return kind. Declared types
//	are excluded on purpose: they are advisory in dynamically typed source
//	and must not split otherwise-identical contracts into phantom
//	overloads.
//
// Outputs:
//   - string: 16 hex characters, stable across processes.
func Fingerprint(params []ast.Param, returns ast.ReturnKind) string {
	var b strings.Builder
	for _, p := range params {
		fmt.Fprintf(&b, "%s:%t:%t:%t:%t:%t;",
			p.Name, p.Required(), p.HasDefault, p.Variadic, p.KeywordVariadic, p.KeywordOnly)
	}
	fmt.Fprintf(&b, "->%s", returns)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// FileNamespace derives the namespace prefix for symbols in a file.
//
// Go files use the declared package clause. Other languages derive a
// dotted path from the file location: "billing/payments.py" becomes
// "billing.payments". The same derivation is applied to import specifiers
// during resolution, so the two sides meet without real module resolution.
func FileNamespace(res *ast.ParseResult) string {
	if res.Package != "" {
		return res.Package
	}
	return PathNamespace(res.FilePath)
}

// PathNamespace converts a repo-relative path to a dotted namespace.
func PathNamespace(filePath string) string {
	p := strings.TrimPrefix(filePath, "./")
	ext := path.Ext(p)
	p = strings.TrimSuffix(p, ext)
	p = strings.TrimSuffix(p, "/__init__")
	p = strings.TrimSuffix(p, "/index")
	return strings.ReplaceAll(p, "/", ".")
}

func qualifiedName(namespace string, scope []string, name string) string {
	parts := make([]string, 0, len(scope)+2)
	if namespace != "" {
		parts = append(parts, namespace)
	}
	parts = append(parts, scope...)
	parts = append(parts, name)
	return strings.Join(parts, ".")
}
