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

// Mermaid renders the edge list as a Mermaid flowchart.
//
// Description:
//
//	Each module becomes a subgraph containing one node per function, and
//	every call becomes a connector between nodes. Connectors crossing
//	module boundaries are what Mermaid draws between subgraphs.
//
// Example output:
//
//	graph TD
//	    subgraph App.Handler
//	        App_Handler_run_1["run/1"]
//	    end
//	    App_Handler_run_1 --> App_Auth_check_1
func Mermaid(edges []ast.CallEdge) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	modules, nodes := moduleGroups(edges)
	for _, module := range modules {
		sb.WriteString(fmt.Sprintf("    subgraph %s\n", escapeLabel(module)))
		for _, key := range nodes[module] {
			_, label := nodeParts(key)
			sb.WriteString(fmt.Sprintf("        %s[\"%s\"]\n", sanitizeID(key), escapeLabel(label)))
		}
		sb.WriteString("    end\n")
	}

	for _, edge := range edges {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeID(edge.Caller), sanitizeID(edge.Callee)))
	}

	return sb.String()
}
