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
	"errors"
	"strings"
	"testing"
)

const pythonReviewSource = `"""Payment helpers."""

import os
from decimal import Decimal
from .gateway import charge_card, refund as refund_charge

TAX_RATE = 0.2

def compute_total(amount, discount=0, *extras, currency="USD", **options):
    """Compute an order total."""
    base = amount - discount
    return apply_tax(base)

def apply_tax(amount):
    return amount * (1 + TAX_RATE)

def log_event(name):
    print(name)

class PaymentProcessor:
    """Processes payments."""

    retries = 3

    def __init__(self, gateway, timeout=30):
        self.gateway = gateway
        self.timeout = timeout

    def process(self, order):
        total = compute_total(order.amount, discount=order.discount)
        charge_card(self.gateway, total)
        log_event("processed")
        return total

    @staticmethod
    def normalize(value):
        return value.strip()
`

// findDecl locates a declaration by name anywhere in the result tree.
func findDecl(t *testing.T, result *ParseResult, name string) *Decl {
	t.Helper()
	var found *Decl
	result.WalkDecls(func(d *Decl, scope []string) {
		if found == nil && d.Name == name {
			found = d
		}
	})
	if found == nil {
		t.Fatalf("declaration %q not found", name)
	}
	return found
}

func parsePython(t *testing.T, source string) *ParseResult {
	t.Helper()
	parser := NewPythonParser()
	result, err := parser.Parse(context.Background(), []byte(source), "billing/payments.py")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	return result
}

func TestPythonParser_Parse_EmptyFile(t *testing.T) {
	parser := NewPythonParser()
	result, err := parser.Parse(context.Background(), []byte(""), "empty.py")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Language != "python" {
		t.Errorf("expected language 'python', got %q", result.Language)
	}
	if result.FilePath != "empty.py" {
		t.Errorf("expected file path 'empty.py', got %q", result.FilePath)
	}
	if len(result.Decls) != 0 {
		t.Errorf("expected no declarations, got %d", len(result.Decls))
	}
}

func TestPythonParser_Parse_FunctionParams(t *testing.T) {
	result := parsePython(t, pythonReviewSource)

	fn := findDecl(t, result, "compute_total")
	if fn.Kind != DeclKindFunction {
		t.Errorf("expected function kind, got %q", fn.Kind)
	}

	wantParams := []struct {
		name            string
		required        bool
		hasDefault      bool
		variadic        bool
		keywordVariadic bool
		keywordOnly     bool
	}{
		{name: "amount", required: true},
		{name: "discount", hasDefault: true},
		{name: "extras", variadic: true},
		{name: "currency", hasDefault: true, keywordOnly: true},
		{name: "options", keywordVariadic: true},
	}

	if len(fn.Params) != len(wantParams) {
		t.Fatalf("expected %d params, got %d: %+v", len(wantParams), len(fn.Params), fn.Params)
	}
	for i, want := range wantParams {
		got := fn.Params[i]
		if got.Name != want.name {
			t.Errorf("param %d: expected name %q, got %q", i, want.name, got.Name)
		}
		if got.Required() != want.required {
			t.Errorf("param %q: expected required=%v, got %v", want.name, want.required, got.Required())
		}
		if got.HasDefault != want.hasDefault {
			t.Errorf("param %q: expected hasDefault=%v, got %v", want.name, want.hasDefault, got.HasDefault)
		}
		if got.Variadic != want.variadic {
			t.Errorf("param %q: expected variadic=%v, got %v", want.name, want.variadic, got.Variadic)
		}
		if got.KeywordVariadic != want.keywordVariadic {
			t.Errorf("param %q: expected keywordVariadic=%v, got %v", want.name, want.keywordVariadic, got.KeywordVariadic)
		}
		if got.KeywordOnly != want.keywordOnly {
			t.Errorf("param %q: expected keywordOnly=%v, got %v", want.name, want.keywordOnly, got.KeywordOnly)
		}
	}
}

func TestPythonParser_Parse_MethodElidesSelf(t *testing.T) {
	result := parsePython(t, pythonReviewSource)

	init := findDecl(t, result, "__init__")
	if init.Kind != DeclKindMethod {
		t.Errorf("expected method kind, got %q", init.Kind)
	}
	if init.Receiver != "PaymentProcessor" {
		t.Errorf("expected receiver PaymentProcessor, got %q", init.Receiver)
	}
	if len(init.Params) != 2 {
		t.Fatalf("expected self elided leaving 2 params, got %d: %+v", len(init.Params), init.Params)
	}
	if init.Params[0].Name != "gateway" || init.Params[1].Name != "timeout" {
		t.Errorf("unexpected param names: %+v", init.Params)
	}
	if !init.Params[1].HasDefault {
		t.Error("expected timeout to have a default")
	}
}

func TestPythonParser_Parse_StaticMethodKeepsFirstParam(t *testing.T) {
	result := parsePython(t, pythonReviewSource)

	norm := findDecl(t, result, "normalize")
	if len(norm.Params) != 1 || norm.Params[0].Name != "value" {
		t.Errorf("static method should keep its first param: %+v", norm.Params)
	}
}

func TestPythonParser_Parse_ReturnKinds(t *testing.T) {
	result := parsePython(t, pythonReviewSource)

	if got := findDecl(t, result, "compute_total").Returns; got != ReturnKindValue {
		t.Errorf("compute_total: expected value return, got %q", got)
	}
	if got := findDecl(t, result, "log_event").Returns; got != ReturnKindVoid {
		t.Errorf("log_event: expected void return, got %q", got)
	}
	// Classes are constructible and therefore produce a value.
	if got := findDecl(t, result, "PaymentProcessor").Returns; got != ReturnKindValue {
		t.Errorf("PaymentProcessor: expected value return, got %q", got)
	}
}

func TestPythonParser_Parse_ReturnAnnotationWins(t *testing.T) {
	source := `def touch(path) -> None:
    return open(path)
`
	result := parsePython(t, source)
	if got := findDecl(t, result, "touch").Returns; got != ReturnKindVoid {
		t.Errorf("annotation '-> None' should classify as void, got %q", got)
	}
}

func TestPythonParser_Parse_CallsWithArgs(t *testing.T) {
	result := parsePython(t, pythonReviewSource)

	process := findDecl(t, result, "process")
	var call *CallNode
	for i := range process.Calls {
		if process.Calls[i].Target == "compute_total" {
			call = &process.Calls[i]
		}
	}
	if call == nil {
		t.Fatalf("expected a call to compute_total, got %+v", process.Calls)
	}

	if call.Usage != ResultUsageAssigned {
		t.Errorf("expected assigned usage, got %q", call.Usage)
	}
	if len(call.Args) != 2 {
		t.Fatalf("expected 2 args, got %d: %+v", len(call.Args), call.Args)
	}
	if call.Args[0].Keyword != "" {
		t.Errorf("first arg should be positional, got keyword %q", call.Args[0].Keyword)
	}
	if call.Args[1].Keyword != "discount" {
		t.Errorf("second arg should be keyword 'discount', got %q", call.Args[1].Keyword)
	}
}

func TestPythonParser_Parse_MethodCallQualifier(t *testing.T) {
	source := `class Repo:
    def save(self, item):
        self.db.insert(item)
        helper()
`
	result := parsePython(t, source)
	save := findDecl(t, result, "save")

	var insert, helper *CallNode
	for i := range save.Calls {
		switch save.Calls[i].Target {
		case "insert":
			insert = &save.Calls[i]
		case "helper":
			helper = &save.Calls[i]
		}
	}
	if insert == nil || helper == nil {
		t.Fatalf("expected insert and helper calls, got %+v", save.Calls)
	}
	if !insert.IsMethod || insert.Qualifier != "self.db" {
		t.Errorf("insert: expected method call on self.db, got qualifier %q", insert.Qualifier)
	}
	if helper.IsMethod || helper.Qualifier != "" {
		t.Errorf("helper: expected bare call, got qualifier %q", helper.Qualifier)
	}
}

func TestPythonParser_Parse_UsageClassification(t *testing.T) {
	source := `def run():
    ignored()
    x = produced()
    outer(inner())
    return final()
`
	result := parsePython(t, source)
	run := findDecl(t, result, "run")

	usages := map[string]ResultUsage{}
	for _, c := range run.Calls {
		usages[c.Target] = c.Usage
	}

	want := map[string]ResultUsage{
		"ignored":  ResultUsageDiscarded,
		"produced": ResultUsageAssigned,
		"inner":    ResultUsageArgument,
		"outer":    ResultUsageDiscarded,
		"final":    ResultUsageReturned,
	}
	for name, wantUsage := range want {
		if usages[name] != wantUsage {
			t.Errorf("%s: expected usage %q, got %q", name, wantUsage, usages[name])
		}
	}
}

func TestPythonParser_Parse_ModuleLevelCalls(t *testing.T) {
	source := `import sys

def main():
    pass

if __name__ == "__main__":
    main()
`
	result := parsePython(t, source)

	var found bool
	for _, c := range result.Calls {
		if c.Target == "main" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected module-level call to main, got %+v", result.Calls)
	}

	// The call under the if guard does not belong to the main declaration.
	mainDecl := findDecl(t, result, "main")
	if len(mainDecl.Calls) != 0 {
		t.Errorf("main body should have no calls, got %+v", mainDecl.Calls)
	}
}

func TestPythonParser_Parse_Imports(t *testing.T) {
	result := parsePython(t, pythonReviewSource)

	byPath := map[string]Import{}
	for _, imp := range result.Imports {
		byPath[imp.Path] = imp
	}

	if _, ok := byPath["os"]; !ok {
		t.Error("expected plain import of os")
	}
	dec, ok := byPath["decimal"]
	if !ok {
		t.Fatalf("expected from-import of decimal, got %+v", result.Imports)
	}
	if len(dec.Names) != 1 || dec.Names[0] != "Decimal" {
		t.Errorf("decimal import names: %+v", dec.Names)
	}
	gw, ok := byPath[".gateway"]
	if !ok {
		t.Fatalf("expected relative import of .gateway, got %+v", result.Imports)
	}
	if !gw.IsRelative {
		t.Error("expected .gateway to be relative")
	}
	joined := strings.Join(gw.Names, ",")
	if !strings.Contains(joined, "charge_card") || !strings.Contains(joined, "refund as refund_charge") {
		t.Errorf("gateway import names: %+v", gw.Names)
	}
}

func TestPythonParser_Parse_FileTooLarge(t *testing.T) {
	parser := NewPythonParser(WithPythonMaxFileSize(10))
	_, err := parser.Parse(context.Background(), []byte("def f():\n    pass\n"), "big.py")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestPythonParser_Parse_InvalidUTF8(t *testing.T) {
	parser := NewPythonParser()
	_, err := parser.Parse(context.Background(), []byte{0xff, 0xfe, 0x00}, "bad.py")
	if !errors.Is(err, ErrInvalidContent) {
		t.Errorf("expected ErrInvalidContent, got %v", err)
	}
}

func TestPythonParser_Parse_SyntaxErrorPartialResult(t *testing.T) {
	source := `def good(a):
    return a

def broken(:
`
	result := parsePython(t, source)
	if len(result.Errors) == 0 {
		t.Error("expected syntax error diagnostics")
	}
	findDecl(t, result, "good")
}

func TestPythonParser_Parse_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	parser := NewPythonParser()
	_, err := parser.Parse(ctx, []byte("def f(): pass"), "f.py")
	if err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestPythonParser_Parse_Deterministic(t *testing.T) {
	a := parsePython(t, pythonReviewSource)
	b := parsePython(t, pythonReviewSource)

	if a.Hash != b.Hash {
		t.Errorf("hash changed between parses: %q vs %q", a.Hash, b.Hash)
	}
	if a.DeclCount() != b.DeclCount() {
		t.Errorf("decl count changed: %d vs %d", a.DeclCount(), b.DeclCount())
	}
	var aIDs, bIDs []string
	a.WalkDecls(func(d *Decl, _ []string) { aIDs = append(aIDs, d.ID) })
	b.WalkDecls(func(d *Decl, _ []string) { bIDs = append(bIDs, d.ID) })
	if strings.Join(aIDs, ",") != strings.Join(bIDs, ",") {
		t.Error("decl IDs changed between identical parses")
	}
}

func TestPythonParser_Parse_NestedFunctionScope(t *testing.T) {
	source := `def outer():
    def inner(x):
        return transform(x)
    return inner
`
	result := parsePython(t, source)
	outer := findDecl(t, result, "outer")

	if len(outer.Children) != 1 || outer.Children[0].Name != "inner" {
		t.Fatalf("expected nested inner declaration, got %+v", outer.Children)
	}
	// transform() happens inside inner, not outer.
	for _, c := range outer.Calls {
		if c.Target == "transform" {
			t.Error("transform call should belong to inner, not outer")
		}
	}
	inner := outer.Children[0]
	if len(inner.Calls) != 1 || inner.Calls[0].Target != "transform" {
		t.Errorf("inner should own the transform call, got %+v", inner.Calls)
	}
}

func TestPythonParser_WalkCalls_ScopeChains(t *testing.T) {
	result := parsePython(t, pythonReviewSource)

	var processScope []string
	result.WalkCalls(func(call *CallNode, scope []string) {
		if call.Target == "charge_card" {
			processScope = append([]string{}, scope...)
		}
	})
	if strings.Join(processScope, ".") != "PaymentProcessor.process" {
		t.Errorf("expected scope PaymentProcessor.process, got %v", processScope)
	}
}
