// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph drives the recursive call-graph exploration from one entry
// signature, producing an ordered, deduplicated edge list.
package graph

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/callpath/services/callpath/ast"
	"github.com/AleutianAI/callpath/services/callpath/cache"
)

// AnalyzerOptions configures Analyzer behavior.
type AnalyzerOptions struct {
	// IgnorePatterns are regex (or plain substring) patterns tested against
	// each candidate's canonical "Module.function/arity" string. Matching
	// candidates never become edges and are never recursed into.
	IgnorePatterns []string

	// LineHint selects one clause of the root signature when several
	// clauses share its name and arity. 0 means no hint. Applies to the
	// root only; discovered callees are always scanned without a hint.
	LineHint int
}

// AnalyzerOption is a functional option for configuring Analyzer.
type AnalyzerOption func(*AnalyzerOptions)

// WithIgnorePatterns sets the ignore patterns.
func WithIgnorePatterns(patterns []string) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.IgnorePatterns = patterns
	}
}

// WithLineHint sets the disambiguating source line for the root signature.
func WithLineHint(line int) AnalyzerOption {
	return func(o *AnalyzerOptions) {
		o.LineHint = line
	}
}

// ignoreMatcher tests one candidate key against one configured pattern.
// Patterns that compile as regexes match as regexes; anything else falls
// back to substring matching.
type ignoreMatcher func(key string) bool

// Result carries the outcome of one analysis run.
type Result struct {
	// Edges is the order-preserving, deduplicated (caller, callee) list.
	Edges []ast.CallEdge

	// VisitedCount is the number of distinct signatures explored. Equals
	// the final visited-set size, which is what guarantees termination.
	VisitedCount int

	// DurationMilli is the wall-clock analysis time in milliseconds.
	DurationMilli int64
}

// Analyzer explores the call graph rooted at one entry signature.
//
// Description:
//
//	The exploration is single-threaded, depth-first and synchronous, so
//	discovery order is deterministic before the final dedup. The only
//	parallel section is candidate existence verification, which fans
//	I/O-bound locator lookups out across one function's candidate list and
//	joins before the driver continues. The session cache is the only
//	mutable state shared with that fan-out.
//
// Thread Safety:
//
//	One Analyzer drives one analysis at a time; create one per run.
type Analyzer struct {
	options  AnalyzerOptions
	session  *cache.Session
	matchers []ignoreMatcher
}

// NewAnalyzer creates an Analyzer over the given session cache.
//
// Example:
//
//	analyzer := NewAnalyzer(session,
//	    WithIgnorePatterns([]string{`\.Repo\.`}),
//	)
func NewAnalyzer(session *cache.Session, opts ...AnalyzerOption) *Analyzer {
	var options AnalyzerOptions
	for _, opt := range opts {
		opt(&options)
	}

	a := &Analyzer{
		options: options,
		session: session,
	}
	for _, pattern := range options.IgnorePatterns {
		a.matchers = append(a.matchers, compileIgnorePattern(pattern))
	}
	return a
}

// compileIgnorePattern turns a configured pattern into a matcher,
// degrading to substring matching when the pattern is not a valid regex.
func compileIgnorePattern(pattern string) ignoreMatcher {
	re, err := regexp.Compile(pattern)
	if err != nil {
		slog.Warn("ignore pattern is not a valid regex, matching as substring",
			slog.String("pattern", pattern),
			slog.String("error", err.Error()))
		return func(key string) bool { return strings.Contains(key, pattern) }
	}
	return re.MatchString
}

// ignored reports whether a canonical key matches any ignore pattern.
func (a *Analyzer) ignored(key string) bool {
	for _, match := range a.matchers {
		if match(key) {
			return true
		}
	}
	return false
}

// analysisState is the per-run mutable state owned by the driving
// goroutine: the visited set and the accumulated edge sequence.
type analysisState struct {
	visited map[string]struct{}
	edges   []ast.CallEdge
}

// Analyze builds the call graph reachable from the root signature.
//
// Description:
//
//	Recursively explores every project-internal callee of root. The
//	visited set grows monotonically and is checked before each descent,
//	so cyclic and mutually recursive call chains terminate. Modules
//	without a declaring file end their branch silently; an unparsable
//	file aborts the whole run with an error naming the path.
//
// Inputs:
//
//	ctx - Context for cancellation of locator searches.
//	root - The entry signature to explore from.
//
// Outputs:
//
//	*Result - Edge list (source order, deduplicated) and run statistics.
//	error - Fatal failures only: parse errors, search-process failures.
func (a *Analyzer) Analyze(ctx context.Context, root ast.Signature) (*Result, error) {
	ctx, span := startAnalyzeSpan(ctx, root)
	defer span.End()

	start := time.Now()
	state := &analysisState{
		visited: make(map[string]struct{}),
	}

	if err := a.explore(ctx, state, root, a.options.LineHint); err != nil {
		recordAnalyzeMetrics(ctx, time.Since(start), len(state.edges), false)
		return nil, err
	}

	result := &Result{
		Edges:         dedupeEdges(state.edges),
		VisitedCount:  len(state.visited),
		DurationMilli: time.Since(start).Milliseconds(),
	}

	setAnalyzeSpanResult(span, result.VisitedCount, len(result.Edges))
	recordAnalyzeMetrics(ctx, time.Since(start), len(result.Edges), true)

	slog.Debug("analysis complete",
		slog.String("root", root.String()),
		slog.Int("signatures", result.VisitedCount),
		slog.Int("edges", len(result.Edges)),
		slog.Int64("duration_ms", result.DurationMilli))

	return result, nil
}

// explore runs one step of the recursive exploration for sig.
func (a *Analyzer) explore(ctx context.Context, state *analysisState, sig ast.Signature, lineHint int) error {
	key := sig.String()
	if _, seen := state.visited[key]; seen {
		return nil
	}
	state.visited[key] = struct{}{}

	src, found, err := a.session.Definitions(ctx, sig.Module)
	if err != nil {
		return err
	}
	if !found {
		// External or unknown module: a dead end, not an error.
		return nil
	}

	raw := ast.ExtractCalls(ctx, src.Result, sig, src.Index, lineHint)

	candidates := a.filterCandidates(raw)

	survivors, err := a.verifyCandidates(ctx, candidates)
	if err != nil {
		return err
	}

	for _, callee := range survivors {
		state.edges = append(state.edges, ast.CallEdge{
			Caller: key,
			Callee: callee.String(),
		})
	}

	for _, callee := range survivors {
		if callee.IsDynamic() {
			// The true target of a dynamic-receiver call is statically
			// unknowable; it stays a leaf.
			continue
		}
		if err := a.explore(ctx, state, callee, 0); err != nil {
			return err
		}
	}

	return nil
}

// filterCandidates deduplicates the raw call list in source order and
// drops candidates matching an ignore pattern.
func (a *Analyzer) filterCandidates(raw []ast.Signature) []ast.Signature {
	seen := make(map[string]struct{}, len(raw))
	candidates := make([]ast.Signature, 0, len(raw))

	for _, call := range raw {
		key := call.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if a.ignored(key) {
			slog.Debug("candidate matches ignore pattern",
				slog.String("callee", key))
			continue
		}
		candidates = append(candidates, call)
	}

	return candidates
}

// verifyCandidates keeps candidates that resolve to a file within the
// project, fanning the locator lookups out concurrently and joining
// before returning. Dynamic pseudo-calls are kept without verification.
// Order of the input list is preserved.
func (a *Analyzer) verifyCandidates(ctx context.Context, candidates []ast.Signature) ([]ast.Signature, error) {
	keep := make([]bool, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	for i, candidate := range candidates {
		if candidate.IsDynamic() {
			keep[i] = true
			continue
		}
		i, candidate := i, candidate
		g.Go(func() error {
			_, found, err := a.session.LocateModule(gctx, candidate.Module)
			if err != nil {
				return err
			}
			keep[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	survivors := make([]ast.Signature, 0, len(candidates))
	for i, candidate := range candidates {
		if keep[i] {
			survivors = append(survivors, candidate)
		}
	}
	return survivors, nil
}

// dedupeEdges removes duplicate edges while preserving first-occurrence
// order.
func dedupeEdges(edges []ast.CallEdge) []ast.CallEdge {
	seen := make(map[ast.CallEdge]struct{}, len(edges))
	out := make([]ast.CallEdge, 0, len(edges))
	for _, edge := range edges {
		if _, dup := seen[edge]; dup {
			continue
		}
		seen[edge] = struct{}{}
		out = append(out, edge)
	}
	return out
}
