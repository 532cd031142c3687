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
	"log/slog"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// extractState is the phase of one call-extraction walk.
type extractState int

const (
	// stateSearching scans for the target function definition.
	stateSearching extractState = iota

	// stateInsideTarget scans the target's body for call sites.
	stateInsideTarget

	// stateCompleted means the target body has been fully consumed;
	// every remaining visit short-circuits immediately.
	stateCompleted
)

// nodeSpan identifies a node within one tree by its byte range.
// Used to mark pipe-consumed call nodes so the generic call rule
// cannot record them a second time with the wrong arity.
type nodeSpan struct {
	start uint32
	end   uint32
}

func spanOf(node *sitter.Node) nodeSpan {
	return nodeSpan{start: node.StartByte(), end: node.EndByte()}
}

// extractor is the per-extraction traversal state.
//
// AliasTable and the module-context stack live here and are discarded when
// the extraction returns; nothing is shared across extraction calls.
type extractor struct {
	content []byte
	target  Signature
	line    int // disambiguating source line, 0 = none
	index   DefinitionIndex

	state         extractState
	foundTarget   bool
	currentModule string
	moduleStack   []string
	aliases       map[string]string
	consumed      map[nodeSpan]struct{}
	targetNode    nodeSpan
	calls         []Signature
}

// ExtractCalls walks a parsed file for the target function definition and
// returns the calls its body makes, in source order.
//
// Description:
//
//	Runs the three-state walk: SEARCHING locates a matching def clause,
//	INSIDE_TARGET applies the call-shape grammar to the clause body, and
//	COMPLETED aborts all remaining traversal. Without a line hint every
//	clause sharing the target name and arity contributes to one merged
//	call list; a lineHint pins extraction to the single clause starting
//	on that line, and the walk completes as soon as it has been consumed. Qualified calls
//	are resolved through the aliases collected so far; pipe calls gain
//	one arity for the piped value; calls through a computed receiver are
//	recorded under the synthetic Dynamic pseudo-module; bare calls count
//	only when the definition index confirms a sibling with that exact
//	name and arity.
//
// Inputs:
//
//	ctx - Context for tracing. Must not be nil.
//	result - The parsed file to scan. Must not be nil or closed.
//	target - The (module, function, arity) to search for.
//	index - Definition index for the file, used by the bare-call rule.
//	lineHint - Source line selecting one clause among same-arity
//	           duplicates; 0 means no hint. Clauses failing the line
//	           check are left untouched, body untraversed.
//
// Outputs:
//
//	[]Signature - Raw calls in original source order. May be empty, never nil.
//	              An unlocated target yields an empty list, not an error.
//
// Thread Safety: Safe for concurrent use; all mutable state is local.
func ExtractCalls(ctx context.Context, result *ParseResult, target Signature, index DefinitionIndex, lineHint int) []Signature {
	ctx, span := startExtractSpan(ctx, target)
	defer span.End()

	e := &extractor{
		content:       result.Content,
		target:        target,
		line:          lineHint,
		index:         index,
		currentModule: target.Module,
		aliases:       make(map[string]string),
		consumed:      make(map[nodeSpan]struct{}),
		calls:         make([]Signature, 0),
	}

	if root := result.Root(); root != nil {
		e.visit(root)
	}

	if e.state != stateCompleted && !e.foundTarget {
		slog.Debug("target definition not found in file",
			slog.String("target", target.String()),
			slog.String("file", result.FilePath))
	}

	recordExtractMetrics(ctx, len(e.calls))
	return e.calls
}

// visit is the pre-order walk with a paired post-visit hook.
//
// The COMPLETED check at entry is the early-exit: once the target clause
// has been consumed, no further node is visited.
func (e *extractor) visit(node *sitter.Node) {
	if e.state == stateCompleted {
		return
	}

	traverseChildren := e.enter(node)

	if traverseChildren {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if e.state == stateCompleted {
				break
			}
			if child := node.NamedChild(i); child != nil {
				e.visit(child)
			}
		}
	}

	e.leave(node)
}

// enter handles one node on the way down. Returns false to skip the
// node's children entirely.
func (e *extractor) enter(node *sitter.Node) bool {
	switch node.Type() {
	case nodeTypeCall:
		return e.enterCall(node)
	case nodeTypeBinaryOperator:
		if e.state == stateInsideTarget {
			e.handlePipe(node)
		}
	}
	return true
}

// leave is the post-visit hook: exits the target clause and pops module
// context.
func (e *extractor) leave(node *sitter.Node) {
	if node.Type() != nodeTypeCall {
		return
	}

	if e.state == stateInsideTarget && spanOf(node) == e.targetNode {
		// With a line hint exactly one clause is wanted, so the walk can
		// abort here. Without one, pattern-matched clauses sharing the
		// name and arity are all part of the function: resume searching
		// and merge their calls into one list.
		if e.line > 0 {
			e.state = stateCompleted
		} else {
			e.state = stateSearching
			e.foundTarget = true
		}
		return
	}

	if callKeyword(node, e.content) == "defmodule" && len(e.moduleStack) > 0 {
		e.moduleStack = e.moduleStack[:len(e.moduleStack)-1]
		if len(e.moduleStack) > 0 {
			e.currentModule = e.moduleStack[len(e.moduleStack)-1]
		} else {
			e.currentModule = ""
		}
	}
}

// enterCall dispatches a call node by its keyword and the current state.
func (e *extractor) enterCall(node *sitter.Node) bool {
	keyword := callKeyword(node, e.content)

	switch {
	case keyword == "defmodule":
		if name := moduleName(node, e.content); name != "" {
			e.moduleStack = append(e.moduleStack, name)
			e.currentModule = name
		}
		return true

	case keyword == "alias" || keyword == "require":
		// Alias declarations are recognized in SEARCHING and INSIDE_TARGET
		// alike; they never change state.
		e.recordAlias(node, keyword)
		return true

	case definitionKeywords[keyword]:
		return e.enterDefinition(node)
	}

	if e.state == stateInsideTarget {
		e.handleCallSite(node)
	}
	return true
}

// enterDefinition checks whether a def/defp node is the target clause.
//
// A clause matching name and arity but failing the line hint is left
// untouched: returning false keeps its arguments and body untraversed,
// which is what lets a hint select one clause among same-arity duplicates.
func (e *extractor) enterDefinition(node *sitter.Node) bool {
	if e.state != stateSearching {
		// Nested definitions inside the target body are not call sites.
		return true
	}

	name, arity, ok := defHead(node, e.content)
	if !ok || name != e.target.Function || arity != e.target.Arity {
		return true
	}
	if e.currentModule != "" && e.currentModule != e.target.Module {
		return true
	}
	if e.line > 0 && int(node.StartPoint().Row)+1 != e.line {
		return false
	}

	e.state = stateInsideTarget
	e.targetNode = spanOf(node)
	e.consumeHead(node)
	return true
}

// consumeHead marks the clause-head call of a matched definition as
// consumed. The head (def foo(a, b)) is itself a call node inside the
// target subtree; without this the bare-call rule would record it as a
// self-call. Guard-wrapped heads unwrap through the "when" operator.
func (e *extractor) consumeHead(defNode *sitter.Node) {
	args := callArguments(defNode)
	if args == nil || args.NamedChildCount() == 0 {
		return
	}
	head := args.NamedChild(0)
	if head != nil && head.Type() == nodeTypeBinaryOperator {
		head = head.ChildByFieldName(fieldLeft)
	}
	if head != nil && head.Type() == nodeTypeCall {
		e.consumed[spanOf(head)] = struct{}{}
	}
}

// recordAlias updates the alias table from an alias/require declaration.
//
// Handles "alias Foo.Bar" (short name Bar), "alias Foo.Bar, as: Baz" and
// "require Foo.Bar, as: Baz". Multi-alias braces are not expanded.
func (e *extractor) recordAlias(node *sitter.Node, keyword string) {
	args := callArguments(node)
	if args == nil || args.NamedChildCount() == 0 {
		return
	}

	first := args.NamedChild(0)
	if first == nil || first.Type() != nodeTypeAlias {
		return
	}
	full := nodeText(first, e.content)

	if short := asOption(args, e.content); short != "" {
		e.aliases[short] = full
		return
	}

	// A plain require introduces no short name.
	if keyword != "alias" {
		return
	}

	segments := strings.Split(full, ".")
	e.aliases[segments[len(segments)-1]] = full
}

// asOption returns the alias name given via an `as:` keyword option, or "".
func asOption(args *sitter.Node, content []byte) string {
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child == nil || child.Type() != nodeTypeKeywords {
			continue
		}
		for j := 0; j < int(child.NamedChildCount()); j++ {
			pair := child.NamedChild(j)
			if pair == nil || pair.Type() != nodeTypePair {
				continue
			}
			key := pair.ChildByFieldName(fieldKey)
			value := pair.ChildByFieldName(fieldValue)
			if key == nil || value == nil {
				continue
			}
			if strings.TrimRight(strings.TrimSpace(nodeText(key, content)), ":") != "as" {
				continue
			}
			if value.Type() == nodeTypeAlias {
				return nodeText(value, content)
			}
		}
	}
	return ""
}

// resolveQualifier resolves a module qualifier through the alias table,
// falling back to treating it as already fully qualified. Only the first
// segment participates: "alias Foo.Bar" makes "Bar.Baz" mean "Foo.Bar.Baz".
func (e *extractor) resolveQualifier(qualifier string) string {
	head, rest, found := strings.Cut(qualifier, ".")
	full, ok := e.aliases[head]
	if !ok {
		return qualifier
	}
	if found {
		return full + "." + rest
	}
	return full
}

// handlePipe applies the chained-call rules to a |> operator node.
//
// The piped value counts as an implicit first argument, so the recorded
// arity is one more than the argument list shows. The right-hand call node
// is marked consumed so the generic call rule cannot also record it at the
// un-piped arity; its argument subtree is still traversed for nested calls.
func (e *extractor) handlePipe(node *sitter.Node) {
	op := node.ChildByFieldName(fieldOperator)
	if op == nil || nodeText(op, e.content) != pipeOperator {
		return
	}
	right := node.ChildByFieldName(fieldRight)
	if right == nil {
		return
	}

	switch right.Type() {
	case nodeTypeCall:
		e.consumed[spanOf(right)] = struct{}{}
		target := right.ChildByFieldName(fieldTarget)
		if target == nil {
			return
		}
		switch target.Type() {
		case nodeTypeDot:
			e.recordQualified(target, argumentCount(right)+1, true)
		case nodeTypeIdentifier:
			e.recordBare(nodeText(target, e.content), argumentCount(right)+1)
		}
	case nodeTypeDot:
		// Qualified call piped without parentheses: x |> Foo.bar
		e.recordQualified(right, 1, true)
	case nodeTypeIdentifier:
		// Bare name piped without parentheses: x |> helper
		e.recordBare(nodeText(right, e.content), 1)
	}
}

// handleCallSite applies the qualified, dynamic-receiver and bare rules to
// a generic call node inside the target body.
func (e *extractor) handleCallSite(node *sitter.Node) {
	if _, ok := e.consumed[spanOf(node)]; ok {
		return
	}

	target := node.ChildByFieldName(fieldTarget)
	if target == nil {
		return
	}

	switch target.Type() {
	case nodeTypeDot:
		e.recordQualified(target, argumentCount(node), callArguments(node) != nil)
	case nodeTypeIdentifier:
		e.recordBare(nodeText(target, e.content), argumentCount(node))
	}
}

// recordQualified records a call whose target is a dot expression.
//
// An alias or atom receiver is a statically known module qualifier. Any
// other receiver is computed at runtime and recorded as a Dynamic
// pseudo-module leaf — unless the node is a no-parens property access
// (invoked=false), which is a struct/map field read, not an invocation.
func (e *extractor) recordQualified(dot *sitter.Node, arity int, invoked bool) {
	right := dot.ChildByFieldName(fieldRight)
	if right == nil || right.Type() != nodeTypeIdentifier {
		// Anonymous-function invocation f.() or a multi-alias brace;
		// neither names a callable we can record.
		return
	}
	left := dot.ChildByFieldName(fieldLeft)
	if left == nil {
		return
	}

	function := nodeText(right, e.content)

	var module string
	switch left.Type() {
	case nodeTypeAlias:
		module = e.resolveQualifier(nodeText(left, e.content))
	case nodeTypeAtom:
		// Erlang module, e.g. :ets.new/2. Statically known but never a
		// project module; existence verification drops it downstream.
		module = nodeText(left, e.content)
	default:
		if !invoked {
			// conn.assigns with no parentheses is field access.
			return
		}
		receiver := collapseWhitespace(nodeText(left, e.content))
		module = DynamicModulePrefix + receiver
	}

	e.calls = append(e.calls, Signature{Module: module, Function: function, Arity: arity})
}

// recordBare records an unqualified call only when the definition index
// confirms the current module defines that exact (name, arity). Everything
// else is a builtin, a special form or a local variable invocation.
func (e *extractor) recordBare(name string, arity int) {
	if !e.index.Defines(e.currentModule, name, arity) {
		return
	}
	e.calls = append(e.calls, Signature{Module: e.currentModule, Function: name, Arity: arity})
}

// collapseWhitespace strips all whitespace from a receiver expression so a
// multi-line receiver still yields one canonical pseudo-module token.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}
