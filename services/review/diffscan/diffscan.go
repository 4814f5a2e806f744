// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package diffscan extracts the call sites touched by a unified diff.
//
// Only call expressions whose line range intersects an added or modified
// hunk line are emitted; everything in unchanged context is ignored. That
// bounds review cost to the size of the change, not the repository.
package diffscan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/AleutianReview/services/review/ast"
)

// ErrMalformedDiff indicates the diff text could not be parsed as a
// unified diff.
var ErrMalformedDiff = errors.New("malformed unified diff")

// CallSite is one invocation found inside the diff's added lines.
//
// CallSites live for a single review run and are never persisted.
type CallSite struct {
	// ID is a stable identifier for correlating findings with events.
	ID string `json:"id"`

	File      string `json:"file"`
	Language  string `json:"language"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`

	// CalleeText is the full callee expression as written: "self.gateway.charge".
	CalleeText string `json:"callee_text"`

	// ShortName is the invoked name: "charge".
	ShortName string `json:"short_name"`

	// Qualifier is the receiver or module prefix, empty for bare calls.
	Qualifier string `json:"qualifier,omitempty"`

	Args  []ast.Arg       `json:"args,omitempty"`
	Usage ast.ResultUsage `json:"usage"`

	// ScopePath is the chain of enclosing declarations, outermost first.
	ScopePath []string `json:"scope_path,omitempty"`

	// Imports is the enclosing file's import list, carried along as the
	// resolver's reachability hint.
	Imports []ast.Import `json:"imports,omitempty"`
}

// PositionalArgCount returns the number of positional arguments, and
// whether any argument is a spread (which makes arity unknowable).
func (c *CallSite) PositionalArgCount() (int, bool) {
	n := 0
	spread := false
	for _, a := range c.Args {
		if a.Spread {
			spread = true
			continue
		}
		if a.Keyword == "" {
			n++
		}
	}
	return n, spread
}

// KeywordArgs returns the named arguments at the call site.
func (c *CallSite) KeywordArgs() []ast.Arg {
	var out []ast.Arg
	for _, a := range c.Args {
		if a.Keyword != "" {
			out = append(out, a)
		}
	}
	return out
}

// ScanDiff extracts the call sites in a diff's added or modified lines.
//
// Description:
//
//	Parses the unified diff, computes the set of new-file line numbers
//	each hunk adds, and walks the parsed head-version files for call
//	nodes intersecting those lines. Files without a parse result (deleted
//	files, unsupported languages, parse failures) are skipped silently;
//	coverage policy is the caller's concern.
//
// Inputs:
//   - ctx: Checked between files for cooperative cancellation.
//   - diffText: Standard unified diff with per-hunk line ranges.
//   - parsed: Parse results of head-version files keyed by repo path.
//
// Outputs:
//   - []CallSite: Ordered by file path, then start line. Never nil.
//   - error: ErrMalformedDiff wrapped, or the context's error.
func ScanDiff(ctx context.Context, diffText string, parsed map[string]*ast.ParseResult) ([]CallSite, error) {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDiff, err)
	}

	sites := make([]CallSite, 0)
	for _, fd := range fileDiffs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := newFilePath(fd)
		if path == "" {
			continue // deletion-only entry
		}
		res, ok := parsed[path]
		if !ok {
			continue
		}
		added := addedLines(fd)
		if len(added) == 0 {
			continue
		}
		sites = append(sites, callSitesIn(res, path, added)...)
	}

	sort.SliceStable(sites, func(i, j int) bool {
		if sites[i].File != sites[j].File {
			return sites[i].File < sites[j].File
		}
		return sites[i].StartLine < sites[j].StartLine
	})
	return sites, nil
}

// AddedLineRanges exposes a diff's added new-file lines per path, for run
// metadata and debug endpoints.
func AddedLineRanges(diffText string) (map[string][]int, error) {
	fileDiffs, err := diff.ParseMultiFileDiff([]byte(diffText))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDiff, err)
	}
	out := make(map[string][]int, len(fileDiffs))
	for _, fd := range fileDiffs {
		path := newFilePath(fd)
		if path == "" {
			continue
		}
		lines := addedLines(fd)
		if len(lines) == 0 {
			continue
		}
		sorted := make([]int, 0, len(lines))
		for n := range lines {
			sorted = append(sorted, n)
		}
		sort.Ints(sorted)
		out[path] = sorted
	}
	return out, nil
}

// newFilePath returns the new-side path with git's a/ b/ prefixes
// stripped, or "" for deleted files.
func newFilePath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		return ""
	}
	name = strings.TrimPrefix(name, "b/")
	return strings.TrimPrefix(name, "a/")
}

// addedLines returns the set of new-file line numbers the diff adds or
// modifies. Context and removed lines do not contribute.
func addedLines(fd *diff.FileDiff) map[int]bool {
	added := make(map[int]bool)
	for _, hunk := range fd.Hunks {
		line := int(hunk.NewStartLine)
		rows := bytes.Split(hunk.Body, []byte("\n"))
		// Splitting a newline-terminated body leaves one trailing empty
		// element; it is not a hunk line.
		if n := len(rows); n > 0 && len(rows[n-1]) == 0 {
			rows = rows[:n-1]
		}
		for _, raw := range rows {
			if len(raw) == 0 {
				// Whitespace-stripped patches carry blank context lines
				// as "" instead of a single space. They still occupy a
				// new-file line.
				line++
				continue
			}
			switch raw[0] {
			case '+':
				added[line] = true
				line++
			case '-':
				// old-side only; new-file line number does not advance
			default:
				line++
			}
		}
	}
	return added
}

// callSitesIn collects the file's call nodes intersecting added lines.
func callSitesIn(res *ast.ParseResult, path string, added map[int]bool) []CallSite {
	var sites []CallSite
	res.WalkCalls(func(call *ast.CallNode, scope []string) {
		if !intersects(call.Location.StartLine, call.Location.EndLine, added) {
			return
		}
		scopePath := make([]string, len(scope))
		copy(scopePath, scope)
		args := make([]ast.Arg, len(call.Args))
		copy(args, call.Args)

		sites = append(sites, CallSite{
			ID:         ast.GenerateID(path, call.Location.StartLine, call.Target),
			File:       path,
			Language:   res.Language,
			StartLine:  call.Location.StartLine,
			EndLine:    call.Location.EndLine,
			CalleeText: call.CalleeText,
			ShortName:  call.Target,
			Qualifier:  call.Qualifier,
			Args:       args,
			Usage:      call.Usage,
			ScopePath:  scopePath,
			Imports:    res.Imports,
		})
	})
	return sites
}

func intersects(start, end int, added map[int]bool) bool {
	for line := start; line <= end; line++ {
		if added[line] {
			return true
		}
	}
	return false
}
