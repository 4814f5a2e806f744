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
	"testing"
)

const tsReviewSource = `import { Logger } from './logger';

export function parseConfig(raw: string, strict?: boolean, depth: number = 3): Config {
  return JSON.parse(raw);
}

export function audit(entry: string): void {
  console.log(entry);
}

export class Pipeline {
  constructor(private logger: Logger, retries: number = 2) {}

  run(input: string, ...stages: string[]): string {
    this.logger.info(input);
    return transform(input);
  }
}

function transform(input: string): string {
  return input.trim();
}
`

func parseTS(t *testing.T, source, path string) *ParseResult {
	t.Helper()
	parser := NewTypeScriptParser()
	result, err := parser.Parse(context.Background(), []byte(source), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return result
}

func TestTypeScriptParser_Parse_OptionalAndDefaultParams(t *testing.T) {
	result := parseTS(t, tsReviewSource, "src/config.ts")

	fn := findDecl(t, result, "parseConfig")
	if len(fn.Params) != 3 {
		t.Fatalf("expected 3 params, got %+v", fn.Params)
	}
	if !fn.Params[0].Required() || fn.Params[0].DeclaredType != "string" {
		t.Errorf("raw should be required string: %+v", fn.Params[0])
	}
	if !fn.Params[1].Optional || fn.Params[1].Required() {
		t.Errorf("strict? should be optional: %+v", fn.Params[1])
	}
	if !fn.Params[2].HasDefault {
		t.Errorf("depth should have a default: %+v", fn.Params[2])
	}
	if fn.Returns != ReturnKindValue {
		t.Errorf("parseConfig should return a value, got %q", fn.Returns)
	}
}

func TestTypeScriptParser_Parse_VoidAnnotation(t *testing.T) {
	result := parseTS(t, tsReviewSource, "src/config.ts")

	audit := findDecl(t, result, "audit")
	if audit.Returns != ReturnKindVoid {
		t.Errorf("': void' annotation should classify as void, got %q", audit.Returns)
	}
}

func TestTypeScriptParser_Parse_RestParams(t *testing.T) {
	result := parseTS(t, tsReviewSource, "src/config.ts")

	run := findDecl(t, result, "run")
	if run.Receiver != "Pipeline" {
		t.Errorf("expected receiver Pipeline, got %q", run.Receiver)
	}
	if len(run.Params) != 2 {
		t.Fatalf("expected 2 params, got %+v", run.Params)
	}
	if !run.Params[1].Variadic {
		t.Errorf("stages should be variadic: %+v", run.Params[1])
	}
}

func TestTypeScriptParser_Parse_CallsInsideMethods(t *testing.T) {
	result := parseTS(t, tsReviewSource, "src/config.ts")

	run := findDecl(t, result, "run")
	targets := map[string]bool{}
	for _, c := range run.Calls {
		targets[c.Target] = true
	}
	if !targets["info"] || !targets["transform"] {
		t.Errorf("expected info and transform calls, got %+v", run.Calls)
	}
}

func TestTypeScriptParser_Parse_TSX(t *testing.T) {
	source := `export function Badge(props: { label: string }) {
  return <span>{format(props.label)}</span>;
}

function format(label: string): string {
  return label.toUpperCase();
}
`
	result := parseTS(t, source, "src/Badge.tsx")

	badge := findDecl(t, result, "Badge")
	if badge.Returns != ReturnKindValue {
		t.Errorf("Badge returns JSX, expected value, got %q", badge.Returns)
	}
	var formatCall *CallNode
	for i := range badge.Calls {
		if badge.Calls[i].Target == "format" {
			formatCall = &badge.Calls[i]
		}
	}
	if formatCall == nil {
		t.Errorf("expected format call inside JSX, got %+v", badge.Calls)
	}
}

func TestTypeScriptParser_Parse_PromiseVoid(t *testing.T) {
	source := `export async function warmCache(keys: string[]): Promise<void> {
  for (const k of keys) {
    await prime(k);
  }
}
`
	result := parseTS(t, source, "src/cache.ts")
	warm := findDecl(t, result, "warmCache")
	if !warm.IsAsync {
		t.Error("warmCache should be async")
	}
	if warm.Returns != ReturnKindVoid {
		t.Errorf("Promise<void> should classify as void, got %q", warm.Returns)
	}
}
