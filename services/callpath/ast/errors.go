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
	"errors"
	"fmt"
)

// Sentinel errors for parse failure conditions.
//
// These can be checked with errors.Is() to determine the category of
// failure without inspecting error messages.
var (
	// ErrParseFailed indicates that parsing failed and no usable tree could
	// be produced. Analysis runs in strict mode: a file the grammar cannot
	// parse is fatal for the whole session, because a silently-skipped file
	// would yield a graph that looks complete but is not.
	ErrParseFailed = errors.New("parse failed")

	// ErrFileTooLarge indicates the source file exceeds the parser's
	// configured size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidContent indicates the content is not valid UTF-8 and cannot
	// be handed to the grammar.
	ErrInvalidContent = errors.New("invalid content")
)

// ParseError wraps a parse failure with the offending file path.
//
// Description:
//
//	The analyzer reports unparsable source as a fatal session error that
//	names the file, so callers see exactly which path broke the run.
//	ParseError implements the error interface and unwraps to its cause.
//
// Example:
//
//	var parseErr *ParseError
//	if errors.As(err, &parseErr) {
//	    fmt.Printf("cannot parse %s: %s\n", parseErr.FilePath, parseErr.Message)
//	}
type ParseError struct {
	// FilePath is the path of the file that failed to parse.
	FilePath string

	// Message is a human-readable description of the failure.
	Message string

	// Err is the underlying cause, typically ErrParseFailed.
	Err error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.FilePath, e.Message)
}

// Unwrap returns the underlying cause for errors.Is / errors.As.
func (e *ParseError) Unwrap() error {
	return e.Err
}
