// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command reviewctl is the CLI client for the Aleutian Review server.
//
// Usage:
//
//	# Index the current directory at a commit
//	reviewctl index . --commit abc123
//
//	# Review a diff against an indexed base
//	reviewctl review --repo acme/billing --pr 7 \
//	  --base abc123 --head def456 --diff changes.patch path/to/head/files
//
//	# Re-index automatically as files change
//	reviewctl watch . --commit working
//
// The server address defaults to http://localhost:9191 and can be
// overridden with REVIEW_SERVER_URL.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Flag values shared by the subcommands.
var (
	repoFlag   string
	commitFlag string
	prFlag     int
	baseFlag   string
	headFlag   string
	diffFlag   string
	formatFlag string
)

func getServerBaseURL() string {
	if url := os.Getenv("REVIEW_SERVER_URL"); url != "" {
		return url
	}
	return "http://localhost:9191"
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "reviewctl",
		Short: "CLI client for the Aleutian Review server",
		Long: "reviewctl indexes repositories and runs diff-scoped reviews " +
			"against a running Aleutian Review server.",
	}

	indexCmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Index a repository directory at a commit",
		Args:  cobra.MaximumNArgs(1),
		Run:   runIndexCommand,
	}
	indexCmd.Flags().StringVar(&repoFlag, "repo", "", "Repository ID (default: module path or directory name)")
	indexCmd.Flags().StringVar(&commitFlag, "commit", "", "Commit SHA to publish the snapshot under (required)")
	_ = indexCmd.MarkFlagRequired("commit")

	reviewCmd := &cobra.Command{
		Use:   "review [dir]",
		Short: "Review a diff against an indexed base commit",
		Args:  cobra.MaximumNArgs(1),
		Run:   runReviewCommand,
	}
	reviewCmd.Flags().StringVar(&repoFlag, "repo", "", "Repository ID (default: module path or directory name)")
	reviewCmd.Flags().IntVar(&prFlag, "pr", 0, "Pull request number (required)")
	reviewCmd.Flags().StringVar(&baseFlag, "base", "", "Base commit SHA (required)")
	reviewCmd.Flags().StringVar(&headFlag, "head", "", "Head commit SHA (required)")
	reviewCmd.Flags().StringVar(&diffFlag, "diff", "", "Path to a unified diff file (required)")
	reviewCmd.Flags().StringVar(&formatFlag, "format", "text", "Output format: text, json, or sarif")
	_ = reviewCmd.MarkFlagRequired("pr")
	_ = reviewCmd.MarkFlagRequired("base")
	_ = reviewCmd.MarkFlagRequired("head")
	_ = reviewCmd.MarkFlagRequired("diff")

	watchCmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-index the directory whenever source files change",
		Args:  cobra.MaximumNArgs(1),
		Run:   runWatchCommand,
	}
	watchCmd.Flags().StringVar(&repoFlag, "repo", "", "Repository ID (default: module path or directory name)")
	watchCmd.Flags().StringVar(&commitFlag, "commit", "working", "Commit label for watch snapshots")

	rootCmd.AddCommand(indexCmd, reviewCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// argOrCwd resolves the optional positional directory argument.
func argOrCwd(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
