// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package render turns an analyzed edge list into diagram markup.
//
// Both renderers are pure functions over the edge sequence: same edges in,
// same markup out. All grouping preserves the first-occurrence order of the
// input, so diagram output is as deterministic as the analysis itself.
package render

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/callpath/services/callpath/ast"
)

// OutputFormat specifies the diagram output format.
type OutputFormat string

const (
	FormatMermaid  OutputFormat = "mermaid"
	FormatPlantUML OutputFormat = "plantuml"
)

// Render emits the edge list in the requested format.
//
// Inputs:
//
//	edges - Analyzed (caller, callee) pairs in discovery order.
//	format - The output format.
//
// Outputs:
//
//	string - The diagram markup.
//	error - Non-nil for an unsupported format.
func Render(edges []ast.CallEdge, format OutputFormat) (string, error) {
	switch format {
	case FormatMermaid:
		return Mermaid(edges), nil
	case FormatPlantUML:
		return PlantUML(edges), nil
	default:
		return "", fmt.Errorf("Render: unsupported format: %s", format)
	}
}

// nodeParts splits a canonical "Module.function/arity" key into its module
// and local "function/arity" label. Keys that do not parse (which the
// analyzer never produces) degrade to a single-group rendering.
func nodeParts(key string) (module, label string) {
	sig, err := ast.ParseSignature(key)
	if err != nil {
		return key, key
	}
	return sig.Module, fmt.Sprintf("%s/%d", sig.Function, sig.Arity)
}

// moduleGroups collects the distinct node keys of an edge list grouped by
// module, preserving first-occurrence order of both modules and nodes.
func moduleGroups(edges []ast.CallEdge) (modules []string, nodes map[string][]string) {
	nodes = make(map[string][]string)
	seen := make(map[string]struct{})

	add := func(key string) {
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		module, _ := nodeParts(key)
		if _, known := nodes[module]; !known {
			modules = append(modules, module)
		}
		nodes[module] = append(nodes[module], key)
	}

	for _, edge := range edges {
		add(edge.Caller)
		add(edge.Callee)
	}
	return modules, nodes
}

// sanitizeID maps a canonical key to an identifier safe for both diagram
// grammars: alphanumerics pass through, everything else becomes '_'.
func sanitizeID(key string) string {
	var sb strings.Builder
	sb.Grow(len(key))
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// escapeLabel makes a node label safe to embed in a quoted string.
func escapeLabel(label string) string {
	return strings.ReplaceAll(label, `"`, `'`)
}
