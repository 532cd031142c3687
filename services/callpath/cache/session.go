// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides the session-scoped memoization stores shared by
// the recursive analysis: source-file-by-module and definitions-by-module.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/callpath/services/callpath/ast"
)

// Locator resolves a module name to the file declaring it. Implemented by
// locate.RipgrepLocator; tests substitute a stub.
type Locator interface {
	Locate(ctx context.Context, module string) (path string, found bool, err error)
}

// ModuleSource is the memoized value of the definitions-by-module store:
// the declaring file, its parsed tree and its definition index.
//
// The contained ParseResult is owned by the Session and closed when the
// Session closes; callers must not Close it themselves.
type ModuleSource struct {
	// Path is the declaring file, relative to the project root.
	Path string

	// Result holds the parsed tree and the source bytes backing it.
	Result *ast.ParseResult

	// Index maps each module declared in the file to its defined functions.
	Index ast.DefinitionIndex
}

// location is the memoized value of the source-file-by-module store.
// Misses are cached too: an external module stays a dead end without
// re-running the search.
type location struct {
	path  string
	found bool
}

// Session owns the per-analysis memoization stores.
//
// Description:
//
//	A Session is created at analysis start and must be closed
//	unconditionally at analysis end (defer session.Close()), success or
//	failure alike — closing releases the tree-sitter trees retained by the
//	definitions store. There is no ambient global table: every component
//	that needs the caches receives the Session handle explicitly.
//
//	Get-or-compute semantics: a miss computes the value exactly once
//	(singleflight collapses concurrent misses for the same key) and stores
//	it before returning. The stores tolerate concurrent reads and
//	concurrent idempotent inserts of the same key.
//
// Thread Safety: Safe for concurrent use until Close is called.
type Session struct {
	projectRoot string
	locator     Locator
	parser      *ast.ElixirParser

	mu    sync.RWMutex
	paths map[string]location
	defs  map[string]*ModuleSource

	flight singleflight.Group

	hits      int64
	misses    int64
	closeOnce sync.Once
}

// NewSession creates the memoization stores for one analysis run.
//
// Inputs:
//
//	projectRoot - Absolute path of the project being analyzed.
//	locator - The module → file resolver to memoize.
//	parser - The Elixir parser; pass nil for ast.NewElixirParser() defaults.
func NewSession(projectRoot string, locator Locator, parser *ast.ElixirParser) *Session {
	if parser == nil {
		parser = ast.NewElixirParser()
	}
	return &Session{
		projectRoot: projectRoot,
		locator:     locator,
		parser:      parser,
		paths:       make(map[string]location),
		defs:        make(map[string]*ModuleSource),
	}
}

// LocateModule returns the file declaring a module, memoized per session.
//
// A lookup miss triggers exactly one search; the negative result is cached
// as well. found=false is a dead end, not an error.
//
// Thread Safety: Safe for concurrent use.
func (s *Session) LocateModule(ctx context.Context, module string) (string, bool, error) {
	s.mu.RLock()
	loc, ok := s.paths[module]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(&s.hits, 1)
		return loc.path, loc.found, nil
	}
	atomic.AddInt64(&s.misses, 1)

	v, err, _ := s.flight.Do("path:"+module, func() (any, error) {
		s.mu.RLock()
		loc, ok := s.paths[module]
		s.mu.RUnlock()
		if ok {
			return loc, nil
		}

		path, found, err := s.locator.Locate(ctx, module)
		if err != nil {
			return nil, err
		}

		loc = location{path: path, found: found}
		s.mu.Lock()
		s.paths[module] = loc
		s.mu.Unlock()
		return loc, nil
	})
	if err != nil {
		return "", false, err
	}

	loc = v.(location)
	return loc.path, loc.found, nil
}

// Definitions returns the parsed tree and definition index for the file
// declaring a module, memoized per module.
//
// Outputs:
//
//	*ModuleSource - The cached source; owned by the Session. Nil when the
//	                module has no declaring file in the project.
//	bool - False when the module resolves to no project file.
//	error - Locate failures, read failures, or a fatal *ast.ParseError.
//
// Thread Safety: Safe for concurrent use.
func (s *Session) Definitions(ctx context.Context, module string) (*ModuleSource, bool, error) {
	s.mu.RLock()
	src, ok := s.defs[module]
	s.mu.RUnlock()
	if ok {
		atomic.AddInt64(&s.hits, 1)
		return src, true, nil
	}

	path, found, err := s.LocateModule(ctx, module)
	if err != nil || !found {
		return nil, false, err
	}

	atomic.AddInt64(&s.misses, 1)

	v, err, _ := s.flight.Do("defs:"+module, func() (any, error) {
		s.mu.RLock()
		src, ok := s.defs[module]
		s.mu.RUnlock()
		if ok {
			return src, nil
		}

		content, err := os.ReadFile(filepath.Join(s.projectRoot, path))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}

		result, err := s.parser.Parse(ctx, content, path)
		if err != nil {
			return nil, err
		}

		src = &ModuleSource{
			Path:   path,
			Result: result,
			Index:  ast.BuildDefinitionIndex(result),
		}
		s.mu.Lock()
		s.defs[module] = src
		s.mu.Unlock()
		return src, nil
	})
	if err != nil {
		return nil, false, err
	}

	return v.(*ModuleSource), true, nil
}

// Stats returns the accumulated hit/miss counters.
func (s *Session) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&s.hits), atomic.LoadInt64(&s.misses)
}

// Close tears the stores down and releases every retained syntax tree.
//
// Idempotent. Must run unconditionally at session end; the analyzer
// defers it right after session creation so cleanup happens on failure
// paths too.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		for _, src := range s.defs {
			src.Result.Close()
		}

		hits := atomic.LoadInt64(&s.hits)
		misses := atomic.LoadInt64(&s.misses)
		slog.Debug("analysis session closed",
			slog.Int("modules_parsed", len(s.defs)),
			slog.Int("modules_located", len(s.paths)),
			slog.Int64("cache_hits", hits),
			slog.Int64("cache_misses", misses))

		s.defs = make(map[string]*ModuleSource)
		s.paths = make(map[string]location)
	})
}
