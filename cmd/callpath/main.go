// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command callpath traces the call graph of an Elixir function.
//
// Given an entry signature, callpath recursively discovers every
// project-internal function reachable from it and prints the result as
// diagram markup.
//
// Usage:
//
//	callpath --root /path/to/project App.Handler.run/1
//	callpath --root . --format plantuml --ignore '\.Repo\.' MyApp.Worker.perform/2
//	callpath --root . --line 42 MyApp.Server.handle_call/3
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/callpath/services/callpath/ast"
	"github.com/AleutianAI/callpath/services/callpath/cache"
	"github.com/AleutianAI/callpath/services/callpath/config"
	"github.com/AleutianAI/callpath/services/callpath/graph"
	"github.com/AleutianAI/callpath/services/callpath/locate"
	"github.com/AleutianAI/callpath/services/callpath/render"
)

var (
	flagRoot   string
	flagIgnore []string
	flagLine   int
	flagFormat string
	flagDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "callpath [flags] Module.function/arity",
	Short: "Trace the call graph of an Elixir function",
	Long: `callpath parses an Elixir project with tree-sitter and follows every
project-internal call reachable from the given entry function, printing the
resulting call graph as Mermaid or PlantUML markup.

Calls into dependencies are dropped; calls through a computed receiver are
kept as unresolved leaves.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrace,

	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&flagRoot, "root", ".", "project root directory")
	rootCmd.Flags().StringArrayVar(&flagIgnore, "ignore", nil, "exclude callees matching this pattern (repeatable)")
	rootCmd.Flags().IntVar(&flagLine, "line", 0, "source line selecting one clause of the entry function")
	rootCmd.Flags().StringVar(&flagFormat, "format", string(render.FormatMermaid), "output format: mermaid or plantuml")
	rootCmd.Flags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func runTrace(cmd *cobra.Command, args []string) error {
	setupLogging(flagDebug)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Fail on a missing search tool before any analysis starts.
	if err := locate.CheckSearchTool(); err != nil {
		return err
	}

	root, err := ast.ParseSignature(args[0])
	if err != nil {
		return fmt.Errorf("invalid entry signature %q: %w", args[0], err)
	}

	cfg, err := config.Load(flagRoot)
	if err != nil {
		return err
	}

	locatorOpts := []locate.RipgrepLocatorOption{}
	if len(cfg.SourceGlobs) > 0 {
		locatorOpts = append(locatorOpts, locate.WithSourceGlobs(cfg.SourceGlobs))
	}
	locator := locate.NewRipgrepLocator(flagRoot, locatorOpts...)

	session := cache.NewSession(flagRoot, locator, nil)
	defer session.Close()

	ignore := append([]string{}, cfg.IgnorePatterns...)
	ignore = append(ignore, flagIgnore...)

	analyzer := graph.NewAnalyzer(session,
		graph.WithIgnorePatterns(ignore),
		graph.WithLineHint(flagLine),
	)

	result, err := analyzer.Analyze(ctx, root)
	if err != nil {
		return err
	}

	slog.Debug("trace finished",
		slog.Int("signatures", result.VisitedCount),
		slog.Int("edges", len(result.Edges)),
		slog.Int64("duration_ms", result.DurationMilli))

	markup, err := render.Render(result.Edges, render.OutputFormat(flagFormat))
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), markup)
	return nil
}

// setupLogging configures the process-wide slog handler.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		slog.Error("trace failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
