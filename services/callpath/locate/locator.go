// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package locate finds the source file declaring an Elixir module by
// shelling out to ripgrep for a full-text declaration search.
package locate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"sort"
	"strings"
)

// searchBinary is the external full-text search executable.
const searchBinary = "rg"

// DefaultSourceGlobs are the file patterns searched for module declarations.
var DefaultSourceGlobs = []string{"*.ex", "*.exs"}

// ErrSearchToolMissing indicates the external search executable is not on
// PATH. This is a startup precondition failure: it is surfaced once before
// any analysis begins, never mid-traversal.
var ErrSearchToolMissing = errors.New("search tool not found")

// CheckSearchTool verifies the external search binary is available.
//
// Call this before starting a session so a missing binary fails fast
// instead of surfacing as a dead branch deep in the traversal.
func CheckSearchTool() error {
	if _, err := exec.LookPath(searchBinary); err != nil {
		return fmt.Errorf("%w: %q is required on PATH: %v", ErrSearchToolMissing, searchBinary, err)
	}
	return nil
}

// RipgrepLocatorOption configures a RipgrepLocator.
type RipgrepLocatorOption func(*RipgrepLocator)

// WithSourceGlobs replaces the file patterns searched for declarations.
func WithSourceGlobs(globs []string) RipgrepLocatorOption {
	return func(l *RipgrepLocator) {
		if len(globs) > 0 {
			l.globs = globs
		}
	}
}

// RipgrepLocator resolves module names to declaring files by running
// ripgrep over the project source tree.
//
// Description:
//
//	For a module "App.Handler" the locator searches for the declaration
//	pattern `defmodule\s+App\.Handler\b` across *.ex / *.exs files and
//	returns the lexicographically first match. A module should be declared
//	exactly once, so ties carry no meaning. Misses are not errors: an
//	unknown module is an external dependency and simply ends that branch.
//
// Thread Safety:
//
//	RipgrepLocator is safe for concurrent use; every Locate call runs its
//	own process. Memoization belongs to the session cache, not here.
type RipgrepLocator struct {
	projectRoot string
	globs       []string
}

// NewRipgrepLocator creates a locator rooted at the given project directory.
func NewRipgrepLocator(projectRoot string, opts ...RipgrepLocatorOption) *RipgrepLocator {
	l := &RipgrepLocator{
		projectRoot: projectRoot,
		globs:       DefaultSourceGlobs,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// declarationPattern builds the ripgrep regex matching the declaration of
// one specific module, e.g. `defmodule\s+App\.Handler(\s|,|$)` so that
// "App.Handler" does not also match "App.HandlerRegistry" or
// "App.Handler.Helpers".
func declarationPattern(module string) string {
	return `defmodule\s+` + regexp.QuoteMeta(module) + `(\s|,|$)`
}

// Locate returns the path of the file declaring the given module.
//
// Inputs:
//
//	ctx - Context for cancellation of the search process.
//	module - Fully qualified module name, e.g. "App.Handler".
//
// Outputs:
//
//	string - Path of the declaring file, relative to the project root.
//	bool - False when no project file declares the module. Not an error.
//	error - Non-nil only when the search process itself fails.
//
// Thread Safety: Safe for concurrent use.
func (l *RipgrepLocator) Locate(ctx context.Context, module string) (string, bool, error) {
	args := []string{"--files-with-matches", "--no-messages"}
	for _, glob := range l.globs {
		args = append(args, "--glob", glob)
	}
	args = append(args, "--regexp", declarationPattern(module), ".")

	cmd := exec.CommandContext(ctx, searchBinary, args...)
	cmd.Dir = l.projectRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// Exit status 1 is ripgrep's "no matches found".
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			slog.Debug("module not declared in project",
				slog.String("module", module))
			return "", false, nil
		}
		return "", false, fmt.Errorf("searching for module %s: %w: %s",
			module, err, strings.TrimSpace(stderr.String()))
	}

	matches := splitLines(stdout.String())
	if len(matches) == 0 {
		return "", false, nil
	}

	// First match in file-system order; declared-once makes ties moot.
	sort.Strings(matches)
	path := strings.TrimPrefix(matches[0], "./")

	if len(matches) > 1 {
		slog.Debug("module declared in multiple files, using first",
			slog.String("module", module),
			slog.Int("matches", len(matches)),
			slog.String("chosen", path))
	}

	return path, true, nil
}

// splitLines splits process output into non-empty trimmed lines.
func splitLines(out string) []string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
