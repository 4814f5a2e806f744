// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import "errors"

// Sentinel errors returned by the engine. Callers should test with
// errors.Is because the engine wraps these with contextual detail.
var (
	// ErrDisabled indicates review is turned off in configuration.
	ErrDisabled = errors.New("review engine disabled")

	// ErrRateLimited indicates the run submission rate cap was hit.
	ErrRateLimited = errors.New("run submissions rate limited")

	// ErrSuperseded indicates a newer head for the same pull request
	// cancelled this run. The superseding run carries the results.
	ErrSuperseded = errors.New("run superseded by newer head")

	// ErrRunNotFound indicates no run exists for the requested ID.
	ErrRunNotFound = errors.New("run not found")

	// ErrNoSnapshot indicates no base snapshot exists and the request
	// supplied no base files to build one from.
	ErrNoSnapshot = errors.New("no base snapshot available")
)
