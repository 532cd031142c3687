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
	sitter "github.com/smacker/go-tree-sitter"
)

// Tree-sitter node type names for the Elixir grammar.
const (
	nodeTypeCall           = "call"
	nodeTypeIdentifier     = "identifier"
	nodeTypeAlias          = "alias"
	nodeTypeAtom           = "atom"
	nodeTypeArguments      = "arguments"
	nodeTypeDoBlock        = "do_block"
	nodeTypeDot            = "dot"
	nodeTypeBinaryOperator = "binary_operator"
	nodeTypeKeywords       = "keywords"
	nodeTypePair           = "pair"
	nodeTypeKeyword        = "keyword"

	fieldTarget   = "target"
	fieldLeft     = "left"
	fieldRight    = "right"
	fieldOperator = "operator"
	fieldKey      = "key"
	fieldValue    = "value"

	pipeOperator = "|>"
)

// definitionKeywords are the call targets that introduce a function
// definition. Private definitions count the same as public ones: a bare
// call inside the module can legally reach either.
var definitionKeywords = map[string]bool{
	"def":       true,
	"defp":      true,
	"defmacro":  true,
	"defmacrop": true,
}

// nodeText returns the source text covered by a node.
func nodeText(node *sitter.Node, content []byte) string {
	if node == nil {
		return ""
	}
	return string(content[node.StartByte():node.EndByte()])
}

// callKeyword returns the identifier text of a call node's target when the
// target is a plain identifier ("defmodule", "def", "alias", ...), or "".
func callKeyword(node *sitter.Node, content []byte) string {
	if node == nil || node.Type() != nodeTypeCall {
		return ""
	}
	target := node.ChildByFieldName(fieldTarget)
	if target == nil || target.Type() != nodeTypeIdentifier {
		return ""
	}
	return nodeText(target, content)
}

// callArguments returns a call node's arguments node, or nil.
func callArguments(node *sitter.Node) *sitter.Node {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child != nil && child.Type() == nodeTypeArguments {
			return child
		}
	}
	return nil
}

// argumentCount returns the number of arguments a call node passes.
// A trailing keyword list is one argument, matching Elixir arity rules.
func argumentCount(node *sitter.Node) int {
	args := callArguments(node)
	if args == nil {
		return 0
	}
	return int(args.NamedChildCount())
}

// moduleName returns the declared module name of a defmodule node: the text
// of the alias (or atom, for defmodule :mod) inside its arguments.
func moduleName(defmoduleNode *sitter.Node, content []byte) string {
	args := callArguments(defmoduleNode)
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		child := args.NamedChild(i)
		if child == nil {
			continue
		}
		if child.Type() == nodeTypeAlias || child.Type() == nodeTypeAtom {
			return nodeText(child, content)
		}
	}
	return ""
}

// defHead extracts the (name, arity) of a def/defp/defmacro node's head.
//
// Handles the three head shapes the grammar produces:
//
//	def foo(a, b) do          head is a call node
//	def foo do                head is a bare identifier (arity 0)
//	def foo(a) when a > 0 do  head is wrapped in a "when" binary_operator
//
// Returns ok=false when the arguments node has no recognizable head.
func defHead(defNode *sitter.Node, content []byte) (name string, arity int, ok bool) {
	args := callArguments(defNode)
	if args == nil || args.NamedChildCount() == 0 {
		return "", 0, false
	}

	head := args.NamedChild(0)
	if head != nil && head.Type() == nodeTypeBinaryOperator {
		// Guard clause: the real head is the left operand of "when".
		head = head.ChildByFieldName(fieldLeft)
	}
	if head == nil {
		return "", 0, false
	}

	switch head.Type() {
	case nodeTypeCall:
		target := head.ChildByFieldName(fieldTarget)
		if target == nil || target.Type() != nodeTypeIdentifier {
			return "", 0, false
		}
		return nodeText(target, content), argumentCount(head), true
	case nodeTypeIdentifier:
		return nodeText(head, content), 0, true
	}
	return "", 0, false
}

// BuildDefinitionIndex walks a parsed file and indexes every function
// definition under its declaring module.
//
// Description:
//
//	On entering a defmodule node the current-module context is pushed; on
//	each def/defp/defmacro/defmacrop node the (name, arity) pair is
//	recorded under the current module. Nested modules scope their own
//	subtree and do not leak into siblings. Definitions outside any module
//	(scripts) are not indexed.
//
// Inputs:
//
//	result - A parsed file. Must not be nil or closed.
//
// Outputs:
//
//	DefinitionIndex - module → set of (function, arity). Never nil.
//
// Thread Safety: Safe for concurrent use (reads the tree only).
func BuildDefinitionIndex(result *ParseResult) DefinitionIndex {
	idx := make(DefinitionIndex)
	root := result.Root()
	if root == nil {
		return idx
	}
	indexNode(root, result.Content, "", idx)
	return idx
}

// indexNode recursively indexes definitions, tracking the current module.
func indexNode(node *sitter.Node, content []byte, currentModule string, idx DefinitionIndex) {
	if node.Type() == nodeTypeCall {
		switch keyword := callKeyword(node, content); {
		case keyword == "defmodule":
			// The nested module scopes its own subtree only.
			if name := moduleName(node, content); name != "" {
				currentModule = name
			}
		case definitionKeywords[keyword]:
			if currentModule != "" {
				if name, arity, ok := defHead(node, content); ok {
					idx.add(currentModule, name, arity)
				}
			}
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		if child := node.NamedChild(i); child != nil {
			indexNode(child, content, currentModule, idx)
		}
	}
}
