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
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/elixir"
)

// DefaultMaxFileSize is the largest source file the parser accepts (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// WarnFileSize is the threshold above which a warning is logged (1MB).
const WarnFileSize = 1024 * 1024

// ElixirParserOption configures an ElixirParser instance.
type ElixirParserOption func(*ElixirParser)

// WithMaxFileSize sets the maximum file size the parser will accept.
//
// Example:
//
//	parser := NewElixirParser(WithMaxFileSize(5 * 1024 * 1024)) // 5MB limit
func WithMaxFileSize(bytes int64) ElixirParserOption {
	return func(p *ElixirParser) {
		if bytes > 0 {
			p.maxFileSize = bytes
		}
	}
}

// ElixirParser parses Elixir source files with tree-sitter.
//
// Description:
//
//	ElixirParser produces the syntax tree that the definition indexer and
//	the call extractor walk. Parsing is strict: a file the grammar marks
//	as erroneous yields a *ParseError instead of a partial tree, because
//	downstream extraction over a broken tree would silently drop edges.
//
// Thread Safety:
//
//	ElixirParser instances are safe for concurrent use. Each Parse call
//	creates its own tree-sitter parser instance internally.
type ElixirParser struct {
	maxFileSize int64
}

// NewElixirParser creates a new ElixirParser with the given options.
func NewElixirParser(opts ...ElixirParserOption) *ElixirParser {
	p := &ElixirParser{
		maxFileSize: DefaultMaxFileSize,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ParseResult bundles a parsed tree with the bytes it was parsed from.
//
// The tree borrows from Content; both must stay alive together. The owner
// of a ParseResult is responsible for calling Close exactly once.
type ParseResult struct {
	// FilePath is the path the content was read from.
	FilePath string

	// Content is the raw source bytes backing the tree.
	Content []byte

	// Tree is the parsed syntax tree.
	Tree *sitter.Tree
}

// Close releases the tree-sitter tree. Safe to call on a nil receiver.
func (r *ParseResult) Close() {
	if r == nil || r.Tree == nil {
		return
	}
	r.Tree.Close()
	r.Tree = nil
}

// Root returns the root node of the parsed tree, or nil after Close.
func (r *ParseResult) Root() *sitter.Node {
	if r == nil || r.Tree == nil {
		return nil
	}
	return r.Tree.RootNode()
}

// Parse parses Elixir source code into a syntax tree.
//
// Description:
//
//	Validates size and encoding, parses with the Elixir grammar, and
//	rejects trees containing syntax errors (strict mode). The returned
//	ParseResult owns the tree; the caller must Close it.
//
// Inputs:
//
//	ctx - Context for cancellation. Checked before and after parsing;
//	      tree-sitter itself cannot be interrupted mid-parse.
//	content - Raw Elixir source bytes. Must be valid UTF-8.
//	filePath - Path of the file, used for error reporting only.
//
// Outputs:
//
//	*ParseResult - The parsed tree and its backing bytes. Never nil on success.
//	error - ErrFileTooLarge, ErrInvalidContent, a *ParseError wrapping
//	        ErrParseFailed for syntactically invalid source, or a context error.
//
// Thread Safety: Safe for concurrent use.
func (p *ElixirParser) Parse(ctx context.Context, content []byte, filePath string) (*ParseResult, error) {
	ctx, span := startParseSpan(ctx, filePath, len(content))
	defer span.End()

	start := time.Now()

	if err := ctx.Err(); err != nil {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	if int64(len(content)) > p.maxFileSize {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("%w: size %d exceeds limit %d", ErrFileTooLarge, len(content), p.maxFileSize)
	}

	if len(content) > WarnFileSize {
		slog.Warn("parsing large file",
			slog.String("file", filePath),
			slog.Int("size_bytes", len(content)))
	}

	if !utf8.Valid(content) {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("%w: content is not valid UTF-8", ErrInvalidContent)
	}

	// New parser instance per call for thread safety.
	parser := sitter.NewParser()
	parser.SetLanguage(elixir.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}

	if err := ctx.Err(); err != nil {
		tree.Close()
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, fmt.Errorf("parse canceled after tree-sitter: %w", err)
	}

	root := tree.RootNode()
	if root == nil {
		tree.Close()
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, &ParseError{
			FilePath: filePath,
			Message:  "tree-sitter returned nil root node",
			Err:      ErrParseFailed,
		}
	}

	// Strict mode: syntax errors abort the session rather than producing
	// a graph with silently missing edges.
	if root.HasError() {
		tree.Close()
		recordParseMetrics(ctx, time.Since(start), false)
		return nil, &ParseError{
			FilePath: filePath,
			Message:  "source contains syntax errors",
			Err:      ErrParseFailed,
		}
	}

	setParseSpanResult(span, int(root.NamedChildCount()))
	recordParseMetrics(ctx, time.Since(start), true)

	return &ParseResult{
		FilePath: filePath,
		Content:  content,
		Tree:     tree,
	}, nil
}
