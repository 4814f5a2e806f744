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
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.ai/review/ast")
	meter  = otel.Meter("aleutian.ai/review/ast")

	parseTotal    metric.Int64Counter
	parseDuration metric.Float64Histogram
	parseDecls    metric.Int64Counter
)

func init() {
	var err error
	parseTotal, err = meter.Int64Counter("review_parse_total",
		metric.WithDescription("Number of parse attempts by language and outcome."))
	if err != nil {
		otel.Handle(err)
	}
	parseDuration, err = meter.Float64Histogram("review_parse_duration_ms",
		metric.WithDescription("Wall time of a single file parse."),
		metric.WithUnit("ms"))
	if err != nil {
		otel.Handle(err)
	}
	parseDecls, err = meter.Int64Counter("review_parse_decls_total",
		metric.WithDescription("Declarations extracted across successful parses."))
	if err != nil {
		otel.Handle(err)
	}
}

// startParseSpan begins a span for one file parse.
func startParseSpan(ctx context.Context, language, filePath string, sizeBytes int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.Parse",
		trace.WithAttributes(
			attribute.String("code.language", language),
			attribute.String("code.filepath", filePath),
			attribute.Int("code.size_bytes", sizeBytes),
		))
}

// setParseSpanResult records extraction counts on a parse span.
func setParseSpanResult(span trace.Span, declCount, errorCount int) {
	span.SetAttributes(
		attribute.Int("ast.decl_count", declCount),
		attribute.Int("ast.error_count", errorCount),
	)
}

// recordParseMetrics records counters and duration for one parse attempt.
func recordParseMetrics(ctx context.Context, language string, elapsed time.Duration, declCount int, success bool) {
	attrs := metric.WithAttributes(
		attribute.String("language", language),
		attribute.Bool("success", success),
	)
	if parseTotal != nil {
		parseTotal.Add(ctx, 1, attrs)
	}
	if parseDuration != nil {
		parseDuration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	}
	if success && parseDecls != nil {
		parseDecls.Add(ctx, int64(declCount),
			metric.WithAttributes(attribute.String("language", language)))
	}
}
