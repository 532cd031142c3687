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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/callpath/services/callpath/ast"
)

var sampleEdges = []ast.CallEdge{
	{Caller: "App.Handler.run/1", Callee: "App.Utils.format/1"},
	{Caller: "App.Handler.run/1", Callee: "App.HTTP.Client.post/2"},
	{Caller: "App.Utils.format/1", Callee: "App.Utils.normalize/1"},
	{Caller: "App.Handler.run/1", Callee: "Dynamic.conn.assign/2"},
}

func TestMermaid_GroupsNodesByModule(t *testing.T) {
	out := Mermaid(sampleEdges)

	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, "subgraph App.Handler\n")
	assert.Contains(t, out, "subgraph App.Utils\n")
	assert.Contains(t, out, "subgraph App.HTTP.Client\n")
	assert.Contains(t, out, `App_Handler_run_1["run/1"]`)
	assert.Contains(t, out, `App_Utils_format_1["format/1"]`)
	assert.Contains(t, out, "App_Handler_run_1 --> App_Utils_format_1")
	assert.Contains(t, out, "App_Handler_run_1 --> App_HTTP_Client_post_2")
}

func TestMermaid_Deterministic(t *testing.T) {
	assert.Equal(t, Mermaid(sampleEdges), Mermaid(sampleEdges))
}

func TestMermaid_EmptyEdges(t *testing.T) {
	assert.Equal(t, "graph TD\n", Mermaid(nil))
}

func TestPlantUML_NestsCalleesUnderCallers(t *testing.T) {
	out := PlantUML(sampleEdges)

	assert.True(t, strings.HasPrefix(out, "@startuml\n"))
	assert.True(t, strings.HasSuffix(out, "@enduml\n"))
	assert.Contains(t, out, `package "App.Handler" {`)
	assert.Contains(t, out, `frame "run/1" {`)
	assert.Contains(t, out, "[App.Utils.format/1]")
	assert.Contains(t, out, "[App.HTTP.Client.post/2]")
	assert.Contains(t, out, "[Dynamic.conn.assign/2]")

	// The caller's frame must sit inside its module's package.
	pkg := strings.Index(out, `package "App.Handler"`)
	frame := strings.Index(out, `frame "run/1"`)
	require.Greater(t, frame, pkg)
}

func TestPlantUML_EmptyEdges(t *testing.T) {
	assert.Equal(t, "@startuml\n@enduml\n", PlantUML(nil))
}

func TestRender_DispatchesByFormat(t *testing.T) {
	mermaid, err := Render(sampleEdges, FormatMermaid)
	require.NoError(t, err)
	assert.Equal(t, Mermaid(sampleEdges), mermaid)

	plantuml, err := Render(sampleEdges, FormatPlantUML)
	require.NoError(t, err)
	assert.Equal(t, PlantUML(sampleEdges), plantuml)

	_, err = Render(sampleEdges, OutputFormat("dot"))
	require.Error(t, err)
}
