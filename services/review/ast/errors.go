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

import "errors"

// Sentinel errors returned by parsers. Callers should test with errors.Is
// because parsers wrap these with contextual detail.
var (
	// ErrFileTooLarge indicates the content exceeds the parser's configured
	// maximum file size. Callers treat this as a skip, not a failure.
	ErrFileTooLarge = errors.New("file exceeds maximum size")

	// ErrInvalidContent indicates the content is not valid UTF-8.
	ErrInvalidContent = errors.New("content is not valid UTF-8")

	// ErrUnsupportedLanguage indicates no registered parser handles the
	// file's language or extension.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrInvalidResult indicates a parser produced a result that failed
	// internal validation. This is a parser bug, not a caller error.
	ErrInvalidResult = errors.New("invalid parse result")
)
