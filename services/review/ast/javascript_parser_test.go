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

const jsReviewSource = `import { formatDate, truncate as cut } from './format';
import * as api from './api';
const db = require('./db');

export function buildReport(rows, options = {}) {
  const header = formatDate(new Date());
  return render(header, rows);
}

function render(header, rows) {
  return header + rows.length;
}

const notify = (channel, ...messages) => api.send(channel, messages);

export class ReportWriter {
  constructor(sink, flushInterval = 1000) {
    this.sink = sink;
    this.flushInterval = flushInterval;
  }

  write(report) {
    this.sink.push(report);
    notify('reports');
  }
}
`

func parseJS(t *testing.T, source string) *ParseResult {
	t.Helper()
	parser := NewJavaScriptParser()
	result, err := parser.Parse(context.Background(), []byte(source), "src/report.js")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestJavaScriptParser_Parse_FunctionsAndDefaults(t *testing.T) {
	result := parseJS(t, jsReviewSource)

	fn := findDecl(t, result, "buildReport")
	if fn.Kind != DeclKindFunction {
		t.Errorf("expected function kind, got %q", fn.Kind)
	}
	if len(fn.Params) != 2 {
		t.Fatalf("expected 2 params, got %+v", fn.Params)
	}
	if fn.Params[0].Name != "rows" || !fn.Params[0].Required() {
		t.Errorf("rows should be required: %+v", fn.Params[0])
	}
	if fn.Params[1].Name != "options" || !fn.Params[1].HasDefault {
		t.Errorf("options should have a default: %+v", fn.Params[1])
	}
}

func TestJavaScriptParser_Parse_ArrowFunctionBinding(t *testing.T) {
	result := parseJS(t, jsReviewSource)

	arrow := findDecl(t, result, "notify")
	if arrow.Kind != DeclKindFunction {
		t.Errorf("expected function kind, got %q", arrow.Kind)
	}
	if len(arrow.Params) != 2 {
		t.Fatalf("expected 2 params, got %+v", arrow.Params)
	}
	if !arrow.Params[1].Variadic {
		t.Errorf("messages should be variadic: %+v", arrow.Params[1])
	}
	// Concise arrow bodies implicitly return their expression.
	if arrow.Returns != ReturnKindValue {
		t.Errorf("expected value return, got %q", arrow.Returns)
	}
	var send *CallNode
	for i := range arrow.Calls {
		if arrow.Calls[i].Target == "send" {
			send = &arrow.Calls[i]
		}
	}
	if send == nil {
		t.Fatalf("expected api.send call in arrow body, got %+v", arrow.Calls)
	}
	if send.Qualifier != "api" || !send.IsMethod {
		t.Errorf("expected qualified call on api, got %+v", send)
	}
	if send.Usage != ResultUsageReturned {
		t.Errorf("concise arrow body call should classify as returned, got %q", send.Usage)
	}
}

func TestJavaScriptParser_Parse_ClassMethods(t *testing.T) {
	result := parseJS(t, jsReviewSource)

	cls := findDecl(t, result, "ReportWriter")
	if cls.Kind != DeclKindClass {
		t.Errorf("expected class kind, got %q", cls.Kind)
	}
	if cls.Returns != ReturnKindValue {
		t.Errorf("classes construct values, got %q", cls.Returns)
	}

	ctor := findDecl(t, result, "constructor")
	if ctor.Receiver != "ReportWriter" {
		t.Errorf("expected receiver ReportWriter, got %q", ctor.Receiver)
	}
	if len(ctor.Params) != 2 || !ctor.Params[1].HasDefault {
		t.Errorf("unexpected constructor params: %+v", ctor.Params)
	}

	write := findDecl(t, result, "write")
	usages := map[string]ResultUsage{}
	for _, c := range write.Calls {
		usages[c.Target] = c.Usage
	}
	if usages["push"] != ResultUsageDiscarded {
		t.Errorf("push: expected discarded, got %q", usages["push"])
	}
	if usages["notify"] != ResultUsageDiscarded {
		t.Errorf("notify: expected discarded, got %q", usages["notify"])
	}
}

func TestJavaScriptParser_Parse_Imports(t *testing.T) {
	result := parseJS(t, jsReviewSource)

	byPath := map[string]Import{}
	for _, imp := range result.Imports {
		byPath[imp.Path] = imp
	}

	format, ok := byPath["./format"]
	if !ok {
		t.Fatalf("expected ./format import, got %+v", result.Imports)
	}
	if !format.IsRelative {
		t.Error("./format should be relative")
	}
	joined := strings.Join(format.Names, ",")
	if !strings.Contains(joined, "formatDate") || !strings.Contains(joined, "truncate as cut") {
		t.Errorf("format import names: %+v", format.Names)
	}

	apiImp, ok := byPath["./api"]
	if !ok || apiImp.Alias != "api" {
		t.Errorf("expected namespace import aliased to api, got %+v", apiImp)
	}

	dbImp, ok := byPath["./db"]
	if !ok || dbImp.Alias != "db" {
		t.Errorf("expected require binding aliased to db, got %+v", dbImp)
	}
}

func TestJavaScriptParser_Parse_NewExpression(t *testing.T) {
	source := `class Widget {
  constructor(size) { this.size = size; }
}

function make() {
  return new Widget(5);
}
`
	result := parseJS(t, source)
	makeFn := findDecl(t, result, "make")
	var widget *CallNode
	for i := range makeFn.Calls {
		if makeFn.Calls[i].Target == "Widget" {
			widget = &makeFn.Calls[i]
		}
	}
	if widget == nil {
		t.Fatalf("expected new Widget call, got %+v", makeFn.Calls)
	}
	if len(widget.Args) != 1 {
		t.Errorf("expected one constructor arg, got %+v", widget.Args)
	}
}

func TestJavaScriptParser_Parse_AwaitUsage(t *testing.T) {
	source := `async function run() {
  await flush();
  const data = await load();
  return data;
}
`
	result := parseJS(t, source)
	run := findDecl(t, result, "run")
	if !run.IsAsync {
		t.Error("run should be async")
	}
	usages := map[string]ResultUsage{}
	for _, c := range run.Calls {
		usages[c.Target] = c.Usage
	}
	if usages["flush"] != ResultUsageAwaited {
		t.Errorf("flush: expected awaited, got %q", usages["flush"])
	}
	if usages["load"] != ResultUsageAssigned {
		t.Errorf("load: expected assigned, got %q", usages["load"])
	}
}

func TestJavaScriptParser_Parse_FileTooLarge(t *testing.T) {
	parser := NewJavaScriptParser(WithJavaScriptMaxFileSize(4))
	_, err := parser.Parse(context.Background(), []byte("let x = 1;"), "x.js")
	if !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("expected ErrFileTooLarge, got %v", err)
	}
}

func TestJavaScriptParser_Parse_SpreadArgs(t *testing.T) {
	source := `function apply(fn, args) {
  return fn(...args);
}
`
	result := parseJS(t, source)
	apply := findDecl(t, result, "apply")
	if len(apply.Calls) != 1 {
		t.Fatalf("expected one call, got %+v", apply.Calls)
	}
	args := apply.Calls[0].Args
	if len(args) != 1 || !args[0].Spread {
		t.Errorf("expected single spread arg, got %+v", args)
	}
}
