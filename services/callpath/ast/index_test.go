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
	"testing"
)

// mustParse parses source or fails the test.
func mustParse(t *testing.T, source string) *ParseResult {
	t.Helper()
	parser := NewElixirParser()
	result, err := parser.Parse(context.Background(), []byte(source), "test.ex")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	t.Cleanup(result.Close)
	return result
}

func TestBuildDefinitionIndex_PublicAndPrivate(t *testing.T) {
	result := mustParse(t, `defmodule App.Utils do
  def format(value) do
    value
  end

  def format(value, opts) do
    {value, opts}
  end

  defp normalize(value) do
    value
  end

  defmacro trace(expr) do
    expr
  end
end
`)

	idx := BuildDefinitionIndex(result)

	for _, want := range []struct {
		name  string
		arity int
	}{
		{"format", 1},
		{"format", 2},
		{"normalize", 1},
		{"trace", 1},
	} {
		if !idx.Defines("App.Utils", want.name, want.arity) {
			t.Errorf("expected App.Utils to define %s/%d", want.name, want.arity)
		}
	}

	if idx.Defines("App.Utils", "format", 3) {
		t.Error("format/3 should not be defined")
	}
}

func TestBuildDefinitionIndex_HeadShapes(t *testing.T) {
	result := mustParse(t, `defmodule App.Heads do
  def bare do
    :ok
  end

  def guarded(n) when n > 0 do
    n
  end
end
`)

	idx := BuildDefinitionIndex(result)

	if !idx.Defines("App.Heads", "bare", 0) {
		t.Error("expected zero-arity def without parens to be indexed")
	}
	if !idx.Defines("App.Heads", "guarded", 1) {
		t.Error("expected guarded clause head to be indexed at arity 1")
	}
}

func TestBuildDefinitionIndex_NestedModules(t *testing.T) {
	result := mustParse(t, `defmodule App.Outer do
  def outer_fun(x) do
    x
  end

  defmodule Inner do
    def inner_fun(x) do
      x
    end
  end
end
`)

	idx := BuildDefinitionIndex(result)

	if !idx.Defines("App.Outer", "outer_fun", 1) {
		t.Error("expected App.Outer.outer_fun/1 to be indexed")
	}
	if !idx.Defines("Inner", "inner_fun", 1) {
		t.Error("expected Inner.inner_fun/1 to be indexed under the nested module")
	}
	if idx.Defines("App.Outer", "inner_fun", 1) {
		t.Error("nested module definitions must not leak into the outer module")
	}
}

func TestBuildDefinitionIndex_NoModule(t *testing.T) {
	result := mustParse(t, `IO.puts("script")
`)

	idx := BuildDefinitionIndex(result)
	if len(idx) != 0 {
		t.Errorf("expected empty index for module-less script, got %d modules", len(idx))
	}
}
