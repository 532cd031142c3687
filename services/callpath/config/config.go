// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the optional per-project analysis configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigFileName is the project-root file the loader looks for.
	ConfigFileName = "callpath.config.yaml"

	// MaxConfigFileSize bounds the config file to keep parsing cheap.
	MaxConfigFileSize = 1 << 20 // 1 MB
)

// Config is the per-project analysis configuration.
//
// Description:
//
//	Everything here is optional. A missing config file yields the zero
//	Config, which means no ignore patterns and the default source globs.
//
// Thread Safety: Immutable after loading; safe for concurrent use.
type Config struct {
	// IgnorePatterns are regex (or plain substring) patterns; any call
	// candidate whose canonical "Module.function/arity" string matches
	// one is excluded from analysis.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// SourceGlobs override the file globs scanned when locating module
	// declarations. Empty means the built-in Elixir source globs.
	SourceGlobs []string `yaml:"source_globs"`
}

// Load reads the configuration file from the project root.
//
// Description:
//
//	Looks for ConfigFileName directly under projectRoot. A missing file
//	is not an error: analysis without a config file is the common case
//	and yields the zero Config. A file that exists but cannot be read
//	or parsed is an error, since silently ignoring a present config
//	would surprise the operator.
//
// Inputs:
//
//	projectRoot - Directory containing the project being analyzed.
//
// Outputs:
//
//	*Config - The loaded (possibly zero) configuration. Never nil on success.
//	error - Non-nil if an existing file could not be read or parsed.
func Load(projectRoot string) (*Config, error) {
	path := filepath.Join(projectRoot, ConfigFileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, fmt.Errorf("Load: reading %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", path, err)
	}

	slog.Debug("config loaded",
		slog.String("path", path),
		slog.Int("ignore_patterns", len(cfg.IgnorePatterns)),
		slog.Int("source_globs", len(cfg.SourceGlobs)))

	return cfg, nil
}

// Parse decodes a Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	if len(data) > MaxConfigFileSize {
		return nil, fmt.Errorf("Parse: config exceeds maximum size (%d > %d)", len(data), MaxConfigFileSize)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("Parse: parsing YAML: %w", err)
	}

	for i, glob := range cfg.SourceGlobs {
		if glob == "" {
			return nil, fmt.Errorf("Parse: source_globs[%d] must not be empty", i)
		}
	}

	return &cfg, nil
}
