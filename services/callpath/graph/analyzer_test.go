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
	"reflect"
	"testing"

	"github.com/AleutianAI/callpath/services/callpath/ast"
	"github.com/AleutianAI/callpath/services/callpath/cache"
)

// fixtureRoot is the sample Elixir project used by the end-to-end tests.
const fixtureRoot = "../../../test/fixtures/elixir-project"

// stubLocator resolves modules from a fixed map, standing in for the
// ripgrep-backed locator so the tests need no external binary.
type stubLocator map[string]string

func (s stubLocator) Locate(_ context.Context, module string) (string, bool, error) {
	path, ok := s[module]
	return path, ok, nil
}

// fixtureLocator maps every module of the fixture project.
func fixtureLocator() stubLocator {
	return stubLocator{
		"App.Handler":     "lib/app/handler.ex",
		"App.Utils":       "lib/app/utils.ex",
		"App.HTTP.Client": "lib/app/http/client.ex",
		"App.Ping":        "lib/app/ping.ex",
		"App.Pong":        "lib/app/pong.ex",
	}
}

// analyze runs one analysis over the fixture project.
func analyze(t *testing.T, root ast.Signature, opts ...AnalyzerOption) *Result {
	t.Helper()
	session := cache.NewSession(fixtureRoot, fixtureLocator(), nil)
	t.Cleanup(session.Close)

	result, err := NewAnalyzer(session, opts...).Analyze(context.Background(), root)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	return result
}

// assertEdgeSet compares edges ignoring order.
func assertEdgeSet(t *testing.T, got []ast.CallEdge, want []ast.CallEdge) {
	t.Helper()
	gotSet := make(map[ast.CallEdge]struct{}, len(got))
	for _, e := range got {
		gotSet[e] = struct{}{}
	}
	if len(gotSet) != len(got) {
		t.Errorf("edge list contains duplicates: %v", got)
	}

	wantSet := make(map[ast.CallEdge]struct{}, len(want))
	for _, e := range want {
		wantSet[e] = struct{}{}
	}
	if !reflect.DeepEqual(gotSet, wantSet) {
		t.Errorf("edges = %v, want %v", got, want)
	}
}

func TestAnalyzer_EndToEnd(t *testing.T) {
	result := analyze(t, ast.Signature{Module: "App.Handler", Function: "run", Arity: 1})

	assertEdgeSet(t, result.Edges, []ast.CallEdge{
		{Caller: "App.Handler.run/1", Callee: "App.Utils.format/1"},
		{Caller: "App.Handler.run/1", Callee: "App.HTTP.Client.post/1"},
		{Caller: "App.Utils.format/1", Callee: "App.Utils.normalize/1"},
		{Caller: "App.HTTP.Client.post/1", Callee: "App.Utils.format/1"},
		{Caller: "App.HTTP.Client.post/1", Callee: "App.HTTP.Client.send_request/2"},
		{Caller: "App.HTTP.Client.send_request/2", Callee: "App.HTTP.Client.request/1"},
		{Caller: "App.HTTP.Client.send_request/2", Callee: "App.HTTP.Client.send_request/2"},
	})

	// run/1, format/1, normalize/1, post/1, send_request/2, request/1.
	if result.VisitedCount != 6 {
		t.Errorf("VisitedCount = %d, want 6", result.VisitedCount)
	}
}

func TestAnalyzer_EdgeOrderFollowsDiscovery(t *testing.T) {
	result := analyze(t, ast.Signature{Module: "App.Handler", Function: "run", Arity: 1})

	if len(result.Edges) < 2 {
		t.Fatalf("expected edges, got %v", result.Edges)
	}
	first := ast.CallEdge{Caller: "App.Handler.run/1", Callee: "App.Utils.format/1"}
	second := ast.CallEdge{Caller: "App.Handler.run/1", Callee: "App.HTTP.Client.post/1"}
	if result.Edges[0] != first || result.Edges[1] != second {
		t.Errorf("expected root edges first in source order, got %v", result.Edges[:2])
	}
}

func TestAnalyzer_TerminatesOnMutualRecursion(t *testing.T) {
	result := analyze(t, ast.Signature{Module: "App.Ping", Function: "ping", Arity: 1})

	assertEdgeSet(t, result.Edges, []ast.CallEdge{
		{Caller: "App.Ping.ping/1", Callee: "App.Pong.pong/1"},
		{Caller: "App.Pong.pong/1", Callee: "App.Ping.ping/1"},
	})
	if result.VisitedCount != 2 {
		t.Errorf("VisitedCount = %d, want 2", result.VisitedCount)
	}
}

func TestAnalyzer_DynamicCallsAreLeaves(t *testing.T) {
	result := analyze(t, ast.Signature{Module: "App.Handler", Function: "describe", Arity: 1})

	assertEdgeSet(t, result.Edges, []ast.CallEdge{
		{Caller: "App.Handler.describe/1", Callee: "Dynamic.conn.fetch/1"},
		{Caller: "App.Handler.describe/1", Callee: "App.Utils.format/1"},
		{Caller: "App.Utils.format/1", Callee: "App.Utils.normalize/1"},
	})
}

func TestAnalyzer_IgnorePatternPrunesSubtree(t *testing.T) {
	result := analyze(t,
		ast.Signature{Module: "App.Handler", Function: "run", Arity: 1},
		WithIgnorePatterns([]string{`App\.HTTP\.`}),
	)

	assertEdgeSet(t, result.Edges, []ast.CallEdge{
		{Caller: "App.Handler.run/1", Callee: "App.Utils.format/1"},
		{Caller: "App.Utils.format/1", Callee: "App.Utils.normalize/1"},
	})
}

func TestAnalyzer_UnknownRootIsADeadEnd(t *testing.T) {
	result := analyze(t, ast.Signature{Module: "External.Module", Function: "go", Arity: 0})

	if len(result.Edges) != 0 {
		t.Errorf("expected no edges for an unknown module, got %v", result.Edges)
	}
	if result.VisitedCount != 1 {
		t.Errorf("VisitedCount = %d, want 1", result.VisitedCount)
	}
}

func TestAnalyzer_Idempotent(t *testing.T) {
	session := cache.NewSession(fixtureRoot, fixtureLocator(), nil)
	t.Cleanup(session.Close)

	root := ast.Signature{Module: "App.Handler", Function: "run", Arity: 1}
	analyzer := NewAnalyzer(session)

	first, err := analyzer.Analyze(context.Background(), root)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := analyzer.Analyze(context.Background(), root)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if !reflect.DeepEqual(first.Edges, second.Edges) {
		t.Errorf("runs differ: %v vs %v", first.Edges, second.Edges)
	}
}

func TestCompileIgnorePattern_RegexAndSubstringFallback(t *testing.T) {
	regex := compileIgnorePattern(`^App\.Utils\.`)
	if !regex("App.Utils.format/1") {
		t.Error("regex pattern should match")
	}
	if regex("Other.App.Utils.x/1") {
		t.Error("anchored regex should not match mid-string")
	}

	// "([" does not compile; it must degrade to substring matching.
	substr := compileIgnorePattern("([")
	if !substr("weird.([name/1") {
		t.Error("substring fallback should match literal occurrence")
	}
	if substr("App.Utils.format/1") {
		t.Error("substring fallback should not match unrelated keys")
	}
}
