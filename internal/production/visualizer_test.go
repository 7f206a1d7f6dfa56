package production

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/scxml/internal/parser"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/validator"
)

func parseDoc(t *testing.T, src string) *primitives.Document {
	t.Helper()
	doc, err := parser.Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.NoError(t, validator.Validate(doc))
	return doc
}

func TestDefaultVisualizerExportDOTSimple(t *testing.T) {
	doc := parseDoc(t, `
<scxml initial="s1">
  <state id="s1"><transition event="e1" target="s2"/></state>
  <state id="s2"/>
</scxml>`)
	v := &DefaultVisualizer{}
	dot := v.ExportDOT(doc, []string{"s2"})

	assert.Contains(t, dot, "digraph Statechart {")
	assert.Contains(t, dot, `"s1"`)
	assert.Contains(t, dot, `"s2"`)
	assert.Contains(t, dot, `"s1" -> "s2" [label="e1"]`)
	assert.Contains(t, dot, "fillcolor=lightgreen")
}

func TestDefaultVisualizerExportDOTHierarchy(t *testing.T) {
	doc := parseDoc(t, `
<scxml initial="parent">
  <state id="parent" initial="child1">
    <state id="child1"/>
    <state id="child2"/>
  </state>
</scxml>`)
	v := &DefaultVisualizer{}
	dot := v.ExportDOT(doc, []string{"child1"})

	assert.Contains(t, dot, "subgraph cluster_parent {")
	assert.Contains(t, dot, `"child1"`)
	assert.Contains(t, dot, `"child2"`)
}

func TestDefaultVisualizerExportDOTParallel(t *testing.T) {
	doc := parseDoc(t, `
<scxml initial="p">
  <parallel id="p">
    <state id="r1"><state id="r1s1"/></state>
    <state id="r2"><state id="r2s1"/></state>
  </parallel>
</scxml>`)
	v := &DefaultVisualizer{}
	dot := v.ExportDOT(doc, []string{"r1s1", "r2s1"})

	assert.Contains(t, dot, "cluster_p")
	assert.Contains(t, dot, "fillcolor=lightblue")
}

func TestDefaultVisualizerExportJSON(t *testing.T) {
	doc := parseDoc(t, `<scxml initial="s1"><state id="s1"/></scxml>`)
	v := &DefaultVisualizer{}
	data, err := v.ExportJSON(doc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id": "s1"`)
}
