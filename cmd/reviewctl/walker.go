// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/mod/modfile"

	"github.com/AleutianAI/AleutianReview/services/review"
)

// maxWalkFileBytes caps the content shipped per file. The server applies
// its own limit; this one just avoids uploading obvious blobs.
const maxWalkFileBytes = 1 << 20

// sourceExtensions are the file types the review engine can parse.
var sourceExtensions = map[string]bool{
	".py":  true,
	".ts":  true,
	".tsx": true,
	".js":  true,
	".jsx": true,
	".go":  true,
}

// skippedDirs are never descended into, gitignore or not.
var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// collectSourceFiles walks root and returns the payloads for every
// parseable source file, honoring the repo's .gitignore. Paths are
// repo-relative with forward slashes, sorted for deterministic uploads.
func collectSourceFiles(root string) ([]review.SourceFilePayload, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", root, err)
	}

	var matcher *ignore.GitIgnore
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		matcher = gi
	}

	var files []review.SourceFilePayload
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if skippedDirs[d.Name()] || (matcher != nil && matcher.MatchesPath(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !sourceExtensions[filepath.Ext(path)] {
			return nil
		}
		if matcher != nil && matcher.MatchesPath(rel) {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return nil
		}
		if info.Size() > maxWalkFileBytes {
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("reading %s: %w", rel, readErr)
		}
		files = append(files, review.SourceFilePayload{
			Path:    rel,
			Content: string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// detectRepoID derives a repository identifier from the directory. Go
// repos use their module path; everything else falls back to the
// directory name.
func detectRepoID(root string) string {
	if data, err := os.ReadFile(filepath.Join(root, "go.mod")); err == nil {
		if path := modfile.ModulePath(data); path != "" {
			return path
		}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return strings.TrimSuffix(filepath.Base(root), "/")
	}
	return filepath.Base(abs)
}
