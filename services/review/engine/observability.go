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

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.ai/review/engine")
	meter  = otel.Meter("aleutian.ai/review/engine")

	runsTotal      metric.Int64Counter
	runDuration    metric.Float64Histogram
	findingsTotal  metric.Int64Counter
	indexedFiles   metric.Int64Counter
	indexFailures  metric.Int64Counter
	snapshotDefs   metric.Int64Gauge
	callSitesTotal metric.Int64Counter
)

func init() {
	var err error
	runsTotal, err = meter.Int64Counter("review_runs_total",
		metric.WithDescription("Review runs by outcome."))
	if err != nil {
		otel.Handle(err)
	}
	runDuration, err = meter.Float64Histogram("review_run_duration_ms",
		metric.WithDescription("Wall time of a review run."),
		metric.WithUnit("ms"))
	if err != nil {
		otel.Handle(err)
	}
	findingsTotal, err = meter.Int64Counter("review_findings_total",
		metric.WithDescription("Findings emitted, by kind and severity."))
	if err != nil {
		otel.Handle(err)
	}
	indexedFiles, err = meter.Int64Counter("review_indexed_files_total",
		metric.WithDescription("Files parsed into index snapshots."))
	if err != nil {
		otel.Handle(err)
	}
	indexFailures, err = meter.Int64Counter("review_index_failures_total",
		metric.WithDescription("Files whose parse failed during indexing."))
	if err != nil {
		otel.Handle(err)
	}
	snapshotDefs, err = meter.Int64Gauge("review_snapshot_definitions",
		metric.WithDescription("Definitions in the most recently published snapshot."))
	if err != nil {
		otel.Handle(err)
	}
	callSitesTotal, err = meter.Int64Counter("review_call_sites_total",
		metric.WithDescription("Diff-scoped call sites examined."))
	if err != nil {
		otel.Handle(err)
	}
}

// startIndexSpan begins a span for one indexing batch.
func startIndexSpan(ctx context.Context, repoID, commitSHA string, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.IndexRepo",
		trace.WithAttributes(
			attribute.String("vcs.repository.id", repoID),
			attribute.String("vcs.commit.sha", commitSHA),
			attribute.Int("review.files_total", files),
		))
}

// setIndexSpanResult records batch counts on an index span.
func setIndexSpanResult(span trace.Span, report *IndexReport) {
	span.SetAttributes(
		attribute.Int("review.files_parsed", report.FilesParsed),
		attribute.Int("review.definitions", report.Definitions),
		attribute.Int("review.file_errors", len(report.FileErrors)),
		attribute.Int("review.skipped", len(report.Skipped)),
	)
}

// recordIndexMetrics records counters for one indexing batch.
func recordIndexMetrics(ctx context.Context, report *IndexReport, snapshotDefinitions int) {
	if indexedFiles != nil {
		indexedFiles.Add(ctx, int64(report.FilesParsed))
	}
	if indexFailures != nil {
		indexFailures.Add(ctx, int64(len(report.FileErrors)))
	}
	if snapshotDefs != nil {
		snapshotDefs.Record(ctx, int64(snapshotDefinitions))
	}
}

// startRunSpan begins a span for one review run.
func startRunSpan(ctx context.Context, req ReviewRequest) (context.Context, trace.Span) {
	return tracer.Start(ctx, "engine.Review",
		trace.WithAttributes(
			attribute.String("vcs.repository.id", req.RepoID),
			attribute.Int("vcs.pr.number", req.PRNumber),
			attribute.String("vcs.commit.base", req.BaseCommit),
			attribute.String("vcs.commit.head", req.HeadCommit),
			attribute.Int("review.changed_files", len(req.Files)),
		))
}

// setRunSpanResult records outcome counts on a run span.
func setRunSpanResult(span trace.Span, run *RunResult) {
	span.SetAttributes(
		attribute.String("review.run_id", run.ID),
		attribute.Int("review.findings", len(run.Findings)),
		attribute.Int("review.call_sites", run.Metadata.CallSitesScanned),
	)
}

// recordRunMetrics records counters and duration for a finished run.
func recordRunMetrics(ctx context.Context, run *RunResult) {
	if runsTotal != nil {
		runsTotal.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", string(run.Status))))
	}
	if runDuration != nil {
		runDuration.Record(ctx, float64(run.Metadata.Duration.Microseconds())/1000.0)
	}
	if callSitesTotal != nil {
		callSitesTotal.Add(ctx, int64(run.Metadata.CallSitesScanned))
	}
	if findingsTotal != nil {
		for _, f := range run.Findings {
			findingsTotal.Add(ctx, 1, metric.WithAttributes(
				attribute.String("kind", string(f.Suggestion.Kind)),
				attribute.String("severity", string(f.Suggestion.Severity)),
			))
		}
	}
}
