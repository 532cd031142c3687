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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for Elixir parsing and call extraction.
var (
	tracer = otel.Tracer("callpath.ast")
	meter  = otel.Meter("callpath.ast")
)

// Metrics for parse and extraction operations.
var (
	parseLatency   metric.Float64Histogram
	parseTotal     metric.Int64Counter
	parseErrors    metric.Int64Counter
	callsExtracted metric.Int64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		parseLatency, err = meter.Float64Histogram(
			"callpath_parse_duration_seconds",
			metric.WithDescription("Duration of Elixir parse operations"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseTotal, err = meter.Int64Counter(
			"callpath_parse_total",
			metric.WithDescription("Total number of parse operations"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		parseErrors, err = meter.Int64Counter(
			"callpath_parse_errors_total",
			metric.WithDescription("Total number of parse failures"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		callsExtracted, err = meter.Int64Histogram(
			"callpath_calls_extracted",
			metric.WithDescription("Number of raw calls extracted per target function"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startParseSpan starts a tracing span for a parse operation.
func startParseSpan(ctx context.Context, filePath string, sizeBytes int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.parse",
		trace.WithAttributes(
			attribute.String("file", filePath),
			attribute.Int("size_bytes", sizeBytes),
		),
	)
}

// setParseSpanResult records the outcome of a successful parse on the span.
func setParseSpanResult(span trace.Span, topLevelNodes int) {
	span.SetAttributes(attribute.Int("top_level_nodes", topLevelNodes))
}

// recordParseMetrics records metrics for one parse operation.
func recordParseMetrics(ctx context.Context, duration time.Duration, success bool) {
	if err := initMetrics(); err != nil {
		return // Silently skip if metrics init failed.
	}

	parseLatency.Record(ctx, duration.Seconds())
	parseTotal.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	if !success {
		parseErrors.Add(ctx, 1)
	}
}

// startExtractSpan starts a tracing span for one call-extraction run.
func startExtractSpan(ctx context.Context, target Signature) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ast.extract_calls",
		trace.WithAttributes(
			attribute.String("target", target.String()),
		),
	)
}

// recordExtractMetrics records the number of raw calls found for one target.
func recordExtractMetrics(ctx context.Context, callCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	callsExtracted.Record(ctx, int64(callCount))
}
