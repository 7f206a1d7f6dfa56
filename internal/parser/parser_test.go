package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/validator"
)

const sampleDoc = `<?xml version="1.0"?>
<scxml xmlns="http://www.w3.org/2005/07/scxml" version="1.0" initial="top">
  <state id="top" initial="a">
    <datamodel>
      <data id="count" expr="0"/>
    </datamodel>
    <state id="a">
      <onentry>
        <log label="enter-a" expr="'hi'"/>
        <assign location="count" expr="count + 1"/>
      </onentry>
      <transition event="go" cond="count &lt; 5" target="b"/>
    </state>
    <state id="b">
      <transition event="back" target="a"/>
      <transition target="done"/>
    </state>
  </state>
  <final id="done"/>
</scxml>`

func parseAndValidate(t *testing.T, src string) *primitives.Document {
	t.Helper()
	doc, err := Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.NoError(t, validator.Validate(doc))
	return doc
}

func TestParseBasicStructure(t *testing.T) {
	doc := parseAndValidate(t, sampleDoc)

	topIdx, ok := doc.Lookup("top")
	require.True(t, ok)
	assert.Equal(t, doc.Initial, topIdx)

	top := doc.MustState(topIdx)
	assert.Equal(t, primitives.KindCompound, top.Kind)
	require.Len(t, top.DataElements, 1)
	assert.Equal(t, "count", top.DataElements[0].ID)
	assert.Equal(t, "0", top.DataElements[0].Expr)

	aIdx, ok := doc.Lookup("a")
	require.True(t, ok)
	assert.Equal(t, aIdx, top.Initial)

	a := doc.MustState(aIdx)
	require.Len(t, a.OnEntry, 1)
	require.Len(t, a.OnEntry[0], 2)
	log, ok := a.OnEntry[0][0].(*primitives.Log)
	require.True(t, ok)
	assert.Equal(t, "enter-a", log.Label)

	require.Len(t, a.Transitions, 1)
	assert.Equal(t, "count < 5", a.Transitions[0].Cond)
	bIdx, _ := doc.Lookup("b")
	assert.Equal(t, []primitives.StateIndex{bIdx}, a.Transitions[0].Targets)

	b := doc.MustState(bIdx)
	require.Len(t, b.Transitions, 2)
	assert.True(t, b.Transitions[1].IsEventless())

	doneIdx, ok := doc.Lookup("done")
	require.True(t, ok)
	assert.Equal(t, primitives.KindFinal, doc.MustState(doneIdx).Kind)
}

const historyDoc = `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="p">
  <state id="p" initial="c1">
    <state id="c1">
      <transition event="next" target="c2"/>
    </state>
    <state id="c2"/>
    <history id="h" type="shallow">
      <transition target="c1"/>
    </history>
  </state>
</scxml>`

func TestParseHistoryDefault(t *testing.T) {
	doc := parseAndValidate(t, historyDoc)
	hIdx, ok := doc.Lookup("h")
	require.True(t, ok)
	h := doc.MustState(hIdx)
	assert.Equal(t, primitives.KindHistoryShallow, h.Kind)
	require.NotNil(t, h.HistoryDefault)
	c1Idx, _ := doc.Lookup("c1")
	assert.Equal(t, []primitives.StateIndex{c1Idx}, h.HistoryDefault.Targets)
}

const bareDoc = `<scxml initial="top">
  <state id="top"/>
</scxml>`

func TestParseDefaultsVersionAndXMLNSWhenAbsent(t *testing.T) {
	doc := parseAndValidate(t, bareDoc)
	assert.Equal(t, "1.0", doc.Version)
	assert.Equal(t, "http://www.w3.org/2005/07/scxml", doc.XMLNS)
}

func TestParsePreservesExplicitVersionAndXMLNS(t *testing.T) {
	doc := parseAndValidate(t, sampleDoc)
	assert.Equal(t, "1.0", doc.Version)
	assert.Equal(t, "http://www.w3.org/2005/07/scxml", doc.XMLNS)
}

func TestValidateReportsUndeclaredTarget(t *testing.T) {
	bad := `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="top">
  <state id="top">
    <transition event="go" target="nowhere"/>
  </state>
</scxml>`
	doc, err := Parse(strings.NewReader(bad))
	require.NoError(t, err)
	err = validator.Validate(doc)
	require.Error(t, err)
}
