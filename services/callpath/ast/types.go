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
	"fmt"
	"strconv"
	"strings"
)

// DynamicModulePrefix tags calls whose receiver is computed at runtime.
//
// A call like conn.assign(:x, 1) has no statically resolvable target module.
// The extractor records it under a synthetic module "Dynamic.conn" so the
// graph keeps the edge without pretending to know where it lands.
const DynamicModulePrefix = "Dynamic."

// elixirNamespacePrefix is the BEAM-internal module prefix that user-facing
// names never carry. Stripped during canonicalization.
const elixirNamespacePrefix = "Elixir."

// Signature identifies one callable as (module, function, arity).
//
// Description:
//
//	Signature is the unit of identity for a call-graph node. It is an
//	immutable value; the canonical string form "Module.function/arity"
//	(with any Elixir. namespace prefix stripped) is used for visited-set
//	membership, edge identity, and ignore-pattern matching.
//
// Thread Safety: Immutable value type, safe to copy and share.
type Signature struct {
	// Module is the fully qualified module name, e.g. "App.Handler".
	Module string

	// Function is the function name, e.g. "run".
	Function string

	// Arity is the number of arguments the call site passes.
	Arity int
}

// String returns the canonical form "Module.function/arity".
//
// The Elixir. namespace prefix is stripped so "Elixir.App.run/1" and
// "App.run/1" are the same node.
func (s Signature) String() string {
	module := strings.TrimPrefix(s.Module, elixirNamespacePrefix)
	return fmt.Sprintf("%s.%s/%d", module, s.Function, s.Arity)
}

// IsDynamic reports whether this signature is a pseudo-module call whose
// true target cannot be statically determined.
func (s Signature) IsDynamic() bool {
	return strings.HasPrefix(s.Module, DynamicModulePrefix)
}

// ParseSignature parses a textual "Module.function/arity" into a Signature.
//
// Description:
//
//	Splits on the last "/" for the arity and the last "." before it for
//	the module/function boundary, so nested modules ("App.Web.Router.call/2")
//	parse correctly. An Elixir. prefix is accepted and stripped.
//
// Inputs:
//
//	raw - The textual signature, e.g. "App.Handler.run/1".
//
// Outputs:
//
//	Signature - The parsed signature.
//	error - Non-nil if the input does not have the Module.function/arity shape.
func ParseSignature(raw string) (Signature, error) {
	slash := strings.LastIndex(raw, "/")
	if slash <= 0 || slash == len(raw)-1 {
		return Signature{}, fmt.Errorf("signature %q: want Module.function/arity", raw)
	}

	arity, err := strconv.Atoi(raw[slash+1:])
	if err != nil || arity < 0 {
		return Signature{}, fmt.Errorf("signature %q: invalid arity %q", raw, raw[slash+1:])
	}

	qualified := strings.TrimPrefix(raw[:slash], elixirNamespacePrefix)
	dot := strings.LastIndex(qualified, ".")
	if dot <= 0 || dot == len(qualified)-1 {
		return Signature{}, fmt.Errorf("signature %q: missing module qualifier", raw)
	}

	return Signature{
		Module:   qualified[:dot],
		Function: qualified[dot+1:],
		Arity:    arity,
	}, nil
}

// FuncID is a (name, arity) pair identifying a function within one module.
type FuncID struct {
	Name  string
	Arity int
}

// DefinitionIndex maps a module name to the set of functions it defines.
//
// Built once per source file by BuildDefinitionIndex and used only to
// disambiguate whether a bare unqualified call refers to a sibling function
// in the same module or to a builtin/local variable.
type DefinitionIndex map[string]map[FuncID]struct{}

// Defines reports whether module defines a function with the given name
// and arity.
func (idx DefinitionIndex) Defines(module, name string, arity int) bool {
	funcs, ok := idx[module]
	if !ok {
		return false
	}
	_, ok = funcs[FuncID{Name: name, Arity: arity}]
	return ok
}

// add records a definition, creating the module bucket on first use.
func (idx DefinitionIndex) add(module, name string, arity int) {
	funcs, ok := idx[module]
	if !ok {
		funcs = make(map[FuncID]struct{})
		idx[module] = funcs
	}
	funcs[FuncID{Name: name, Arity: arity}] = struct{}{}
}

// CallEdge is an ordered (caller, callee) pair of canonical signature
// strings. The analyzer accumulates edges in discovery order and
// deduplicates them at the end of the session.
type CallEdge struct {
	Caller string
	Callee string
}
