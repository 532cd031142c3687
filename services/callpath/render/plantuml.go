// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package render

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/callpath/services/callpath/ast"
)

// PlantUML renders the edge list as a PlantUML component diagram.
//
// Description:
//
//	Callers are grouped into per-module packages; each caller becomes a
//	frame inside its module's package, and the frame lists the caller's
//	callees as component sub-nodes. A callee appearing under several
//	callers is repeated under each, so every caller's fan-out reads as
//	one self-contained block.
//
// Example output:
//
//	@startuml
//	package "App.Handler" {
//	    frame "run/1" {
//	        [App.Auth.check/1]
//	    }
//	}
//	@enduml
func PlantUML(edges []ast.CallEdge) string {
	var sb strings.Builder
	sb.WriteString("@startuml\n")

	// Group callees by caller, and callers by module, in first-occurrence
	// order.
	var modules []string
	callersByModule := make(map[string][]string)
	calleesByCaller := make(map[string][]string)

	for _, edge := range edges {
		if _, known := calleesByCaller[edge.Caller]; !known {
			module, _ := nodeParts(edge.Caller)
			if _, dup := callersByModule[module]; !dup {
				modules = append(modules, module)
			}
			callersByModule[module] = append(callersByModule[module], edge.Caller)
		}
		calleesByCaller[edge.Caller] = append(calleesByCaller[edge.Caller], edge.Callee)
	}

	for _, module := range modules {
		sb.WriteString(fmt.Sprintf("package \"%s\" {\n", escapeLabel(module)))
		for _, caller := range callersByModule[module] {
			_, label := nodeParts(caller)
			sb.WriteString(fmt.Sprintf("    frame \"%s\" {\n", escapeLabel(label)))
			for _, callee := range calleesByCaller[caller] {
				sb.WriteString(fmt.Sprintf("        [%s]\n", escapeLabel(callee)))
			}
			sb.WriteString("    }\n")
		}
		sb.WriteString("}\n")
	}

	sb.WriteString("@enduml\n")
	return sb.String()
}
