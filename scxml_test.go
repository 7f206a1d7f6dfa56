package scxml

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/scxml/internal/eval"
)

func TestParseAndRun(t *testing.T) {
	const src = `
<scxml initial="idle">
  <state id="idle">
    <transition event="go" target="running"/>
  </state>
  <state id="running"/>
</scxml>`

	doc, err := Parse(strings.NewReader(src), ParseOptions{})
	require.NoError(t, err)

	h := NewHost(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, h.Send("go", nil))
	require.Eventually(t, func() bool {
		s := h.ActiveAtomicStates()
		return len(s) == 1 && s[0] == "running"
	}, time.Second, 5*time.Millisecond)
}

func TestParseStrictNamespaceRejectsMismatch(t *testing.T) {
	const src = `<scxml xmlns="urn:not-scxml" initial="a"><state id="a"/></scxml>`
	_, err := Parse(strings.NewReader(src), ParseOptions{StrictNamespace: true})
	require.Error(t, err)
}

func TestParseStrictNamespaceAcceptsDefaulted(t *testing.T) {
	const src = `<scxml initial="a"><state id="a"/></scxml>`
	_, err := Parse(strings.NewReader(src), ParseOptions{StrictNamespace: true})
	require.NoError(t, err)
}

func TestParseSkipValidationLeavesBadReferenceUnreported(t *testing.T) {
	const src = `<scxml initial="a"><state id="a"><transition event="go" target="nowhere"/></state></scxml>`
	doc, err := Parse(strings.NewReader(src), ParseOptions{SkipValidation: true})
	require.NoError(t, err)

	_, _, err = Validate(doc)
	require.Error(t, err)
}

func TestParsePrependsXMLDeclarationWhenAbsent(t *testing.T) {
	const src = `<scxml initial="a"><state id="a"/></scxml>`
	doc, err := Parse(strings.NewReader(src), ParseOptions{PrependXMLDeclaration: true})
	require.NoError(t, err)
	assert.Equal(t, "1.0", doc.Version)
}

func TestInitializeStartsInstance(t *testing.T) {
	const src = `
<scxml initial="idle">
  <state id="idle">
    <transition event="go" target="running"/>
  </state>
  <state id="running"/>
</scxml>`
	doc, err := Parse(strings.NewReader(src), ParseOptions{})
	require.NoError(t, err)

	h, err := Initialize(doc, WithEvaluator(eval.NewDefaultEvaluator()))
	require.NoError(t, err)
	defer h.Stop()

	assert.Equal(t, []string{"idle"}, h.ActiveAtomicStates())
	require.NoError(t, h.Send("go", nil))
	require.Eventually(t, func() bool {
		s := h.ActiveAtomicStates()
		return len(s) == 1 && s[0] == "running"
	}, time.Second, 5*time.Millisecond)
}

func TestBuilderAssemblesEquivalentChart(t *testing.T) {
	b := NewBuilder("idle")
	b.State("idle").On("go", "running", "")
	b.State("running")

	doc, err := b.Build()
	require.NoError(t, err)

	h := NewHost(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	assert.Equal(t, []string{"idle"}, h.ActiveAtomicStates())
	require.NoError(t, h.Send("go", nil))
	require.Eventually(t, func() bool {
		s := h.ActiveAtomicStates()
		return len(s) == 1 && s[0] == "running"
	}, time.Second, 5*time.Millisecond)
}
