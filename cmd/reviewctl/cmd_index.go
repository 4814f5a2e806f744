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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianReview/services/review"
	"github.com/AleutianAI/AleutianReview/services/review/engine"
)

func runIndexCommand(_ *cobra.Command, args []string) {
	dir := argOrCwd(args)
	repoID := repoFlag
	if repoID == "" {
		repoID = detectRepoID(dir)
	}

	report, err := indexDirectory(dir, repoID, commitFlag)
	if err != nil {
		log.Fatalf("Index failed: %v", err)
	}
	printIndexReport(report)
}

// indexDirectory collects the directory's source files and posts them to
// the server's index endpoint.
func indexDirectory(dir, repoID, commitSHA string) (*engine.IndexReport, error) {
	files, err := collectSourceFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("collecting files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no parseable source files under %s", dir)
	}
	fmt.Printf("Indexing %d files from %s as %s@%s\n", len(files), dir, repoID, commitSHA)

	payload := review.IndexRequest{
		RepoID:    repoID,
		CommitSHA: commitSHA,
		Files:     files,
	}
	var report engine.IndexReport
	if err := postJSON("/v1/review/index", payload, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func printIndexReport(report *engine.IndexReport) {
	fmt.Printf("Indexed %s@%s: %d/%d files parsed, %d definitions\n",
		report.RepoID, report.CommitSHA, report.FilesParsed, report.FilesTotal, report.Definitions)
	for _, fe := range report.FileErrors {
		fmt.Printf("  parse error: %s: %s\n", fe.Path, fe.Error)
	}
	for _, sk := range report.Skipped {
		fmt.Printf("  skipped: %s (%s)\n", sk.Path, sk.Reason)
	}
}

// watchDebounce batches bursts of filesystem events into one re-index.
const watchDebounce = 500 * time.Millisecond

func runWatchCommand(_ *cobra.Command, args []string) {
	dir := argOrCwd(args)
	repoID := repoFlag
	if repoID == "" {
		repoID = detectRepoID(dir)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("Watcher: %v", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, dir); err != nil {
		log.Fatalf("Watching %s: %v", dir, err)
	}

	if report, err := indexDirectory(dir, repoID, commitFlag); err != nil {
		log.Fatalf("Initial index failed: %v", err)
	} else {
		printIndexReport(report)
	}
	fmt.Printf("Watching %s for changes (Ctrl-C to stop)\n", dir)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var debounce *time.Timer
	reindex := make(chan struct{}, 1)
	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevantEvent(ev) {
				continue
			}
			// New directories need watches of their own.
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addWatchDirs(watcher, ev.Name)
				}
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, func() {
				select {
				case reindex <- struct{}{}:
				default:
				}
			})
		case <-reindex:
			report, err := indexDirectory(dir, repoID, commitFlag)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Re-index failed: %v\n", err)
				continue
			}
			printIndexReport(report)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "Watch error: %v\n", err)
		case <-quit:
			fmt.Println("\nStopping watch")
			return
		}
	}
}

// relevantEvent filters events down to source file writes and renames.
func relevantEvent(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		return true
	}
	return sourceExtensions[filepath.Ext(ev.Name)]
}

// addWatchDirs registers root and every non-skipped subdirectory.
func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if skippedDirs[d.Name()] || strings.HasPrefix(d.Name(), ".") && path != root {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}

// postJSON posts a payload to the review server and decodes the
// response, surfacing the server's error body on non-200s.
func postJSON(path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	url := getServerBaseURL() + path
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("review server unavailable at %s: %w", url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var errResp review.ErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return fmt.Errorf("server error (HTTP %d, %s): %s", resp.StatusCode, errResp.Code, errResp.Error)
		}
		return fmt.Errorf("server error (HTTP %d): %s", resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
