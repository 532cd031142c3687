// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/callpath/services/callpath/ast"
)

var (
	tracer = otel.Tracer("callpath.graph")
	meter  = otel.Meter("callpath.graph")

	analyzeDuration metric.Float64Histogram
	analyzeEdges    metric.Int64Histogram
	analyzeRuns     metric.Int64Counter

	metricsOnce sync.Once
)

func initMetrics() {
	var err error

	analyzeDuration, err = meter.Float64Histogram(
		"callpath.analyze.duration",
		metric.WithDescription("Duration of full call-graph analyses"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		analyzeDuration = nil
	}

	analyzeEdges, err = meter.Int64Histogram(
		"callpath.analyze.edges",
		metric.WithDescription("Edges produced per analysis"),
	)
	if err != nil {
		analyzeEdges = nil
	}

	analyzeRuns, err = meter.Int64Counter(
		"callpath.analyze.runs",
		metric.WithDescription("Analyses by outcome"),
	)
	if err != nil {
		analyzeRuns = nil
	}
}

func startAnalyzeSpan(ctx context.Context, root ast.Signature) (context.Context, trace.Span) {
	return tracer.Start(ctx, "graph.Analyze",
		trace.WithAttributes(
			attribute.String("root.signature", root.String()),
		))
}

func setAnalyzeSpanResult(span trace.Span, visited, edges int) {
	span.SetAttributes(
		attribute.Int("analyze.visited", visited),
		attribute.Int("analyze.edges", edges),
	)
}

func recordAnalyzeMetrics(ctx context.Context, elapsed time.Duration, edges int, ok bool) {
	metricsOnce.Do(initMetrics)

	attrs := metric.WithAttributes(attribute.Bool("success", ok))
	if analyzeDuration != nil {
		analyzeDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
	}
	if analyzeEdges != nil {
		analyzeEdges.Record(ctx, int64(edges), attrs)
	}
	if analyzeRuns != nil {
		analyzeRuns.Add(ctx, 1, attrs)
	}
}
