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
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// nodeLocation converts a tree-sitter node position to a Location.
func nodeLocation(node *sitter.Node, filePath string) Location {
	return Location{
		FilePath:  filePath,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		StartCol:  int(node.StartPoint().Column),
		EndCol:    int(node.EndPoint().Column),
		StartByte: int(node.StartByte()),
		EndByte:   int(node.EndByte()),
	}
}

// nodeText returns the source text covered by a node. Out-of-range nodes
// yield an empty string rather than a panic; tree-sitter byte ranges are
// trusted but content may have been truncated by a caller.
func nodeText(node *sitter.Node, content []byte) string {
	start, end := int(node.StartByte()), int(node.EndByte())
	if start < 0 || end > len(content) || start > end {
		return ""
	}
	return string(content[start:end])
}

// truncateText caps expression text captured into results. The cut
// backs up to a rune boundary so truncated text stays valid UTF-8.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
