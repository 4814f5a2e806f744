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
)

// SourceFile is one file supplied to the engine by the VCS-integration
// collaborator. It is immutable per commit; a new commit supplies a new
// SourceFile, never a mutation of an old one.
type SourceFile struct {
	// Path is the repo-relative path using forward slashes.
	Path string `json:"path"`

	// Language is an optional explicit language tag. When empty, the
	// registry infers the language from the file extension.
	Language string `json:"language,omitempty"`

	// Content is the complete file content at CommitSHA.
	Content []byte `json:"-"`

	// CommitSHA is the commit this content belongs to.
	CommitSHA string `json:"commit_sha,omitempty"`
}

// ContentHash returns the hex-encoded SHA-256 of the file content.
func (f SourceFile) ContentHash() string {
	sum := sha256.Sum256(f.Content)
	return hex.EncodeToString(sum[:])
}
