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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateID produces a stable identifier for a declaration or call site.
//
// Description:
//
//	The ID is a truncated SHA-256 of "filePath:line:name". It is stable
//	across parses of identical content, which lets incremental index updates
//	and review runs correlate nodes without holding pointers into a tree.
//
// Inputs:
//   - filePath: Repo-relative path using forward slashes.
//   - line: 1-based start line of the node.
//   - name: Declaration or call target name.
//
// Outputs:
//   - string: 16 hex characters. Never empty.
func GenerateID(filePath string, line int, name string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", filePath, line, name)))
	return hex.EncodeToString(sum[:8])
}
