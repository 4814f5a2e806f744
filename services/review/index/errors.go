// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package index

import "errors"

var (
	// ErrSnapshotNotFound indicates no snapshot is published for the
	// requested commit.
	ErrSnapshotNotFound = errors.New("index snapshot not found")

	// ErrEmptyCommit indicates a publish or lookup with an empty commit SHA.
	ErrEmptyCommit = errors.New("commit SHA must not be empty")

	// ErrBuilderPublished indicates an Update on a builder after Publish.
	ErrBuilderPublished = errors.New("builder already published")
)
