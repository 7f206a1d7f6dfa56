package host

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/scxml/internal/eval"
	"github.com/comalice/scxml/internal/parser"
	"github.com/comalice/scxml/internal/primitives"
	"github.com/comalice/scxml/internal/production/publish"
	"github.com/comalice/scxml/internal/validator"
)

const basicChart = `
<scxml initial="idle">
  <state id="idle">
    <transition event="start" target="running"/>
  </state>
  <state id="running"/>
</scxml>`

const terminatingChart = `
<scxml initial="working">
  <state id="working">
    <transition event="finish" target="done"/>
  </state>
  <final id="done">
    <donedata>
      <param name="result" expr="'ok'"/>
    </donedata>
  </final>
</scxml>`

func mustParse(t *testing.T, src string) *primitives.Document {
	t.Helper()
	doc, err := parser.Parse(strings.NewReader(src))
	require.NoError(t, err)
	require.NoError(t, validator.Validate(doc))
	return doc
}

func TestHostBasicTransition(t *testing.T) {
	doc := mustParse(t, basicChart)
	h := New(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	assert.Equal(t, []string{"idle"}, h.ActiveAtomicStates())

	require.NoError(t, h.Send("start", nil))

	require.Eventually(t, func() bool {
		states := h.ActiveAtomicStates()
		return len(states) == 1 && states[0] == "running"
	}, time.Second, 5*time.Millisecond)
}

func TestHostReachesTerminalAndWait(t *testing.T) {
	doc := mustParse(t, terminatingChart)
	h := New(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, h.Send("finish", nil))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	term, ok := h.Wait(ctx)
	require.True(t, ok)
	assert.Equal(t, "done", term.FinalStateID)
	data, ok := term.DoneData.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ok", data["result"])
}

func TestHostRejectsSendAfterTerminal(t *testing.T) {
	doc := mustParse(t, terminatingChart)
	h := New(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, h.Send("finish", nil))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, ok := h.Wait(ctx)
	require.True(t, ok)

	err := h.Send("anything", nil)
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSendSyncPureStep(t *testing.T) {
	doc := mustParse(t, basicChart)
	h := New(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	snap := h.Snapshot()
	require.NoError(t, h.Stop())

	assert.Equal(t, []string{"idle"}, snap.Active)

	next, err := SendSync(doc, eval.NewDefaultEvaluator(), h.runner, snap, "start", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"running"}, next.Active)

	// original snapshot is untouched (pure step).
	assert.Equal(t, []string{"idle"}, snap.Active)
}

const selfSendChart = `
<scxml initial="a">
  <state id="a">
    <transition event="go" target="b">
      <send event="bounced"/>
    </transition>
  </state>
  <state id="b">
    <transition event="bounced" target="c"/>
  </state>
  <state id="c"/>
</scxml>`

// TestHostDeliversSelfTargetedImmediateSend confirms a no-delay, no-target
// <send> (which lands on the external queue, not the internal one) is
// actually delivered into a subsequent macrostep rather than discarded.
func TestHostDeliversSelfTargetedImmediateSend(t *testing.T) {
	doc := mustParse(t, selfSendChart)
	h := New(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, h.Send("go", nil))

	require.Eventually(t, func() bool {
		states := h.ActiveAtomicStates()
		return len(states) == 1 && states[0] == "c"
	}, time.Second, 5*time.Millisecond)
}

const invokeChart = `
<scxml initial="a">
  <state id="a">
    <invoke type="fake"/>
    <transition event="worker.done" target="b"/>
  </state>
  <state id="b"/>
</scxml>`

// asyncInvokeHandler starts a goroutine of its own that calls send some
// time after Start returns, independent of whatever goroutine is mid
// macrostep - the case review comment 1 flagged as silently discarded,
// recoverable only via Host's poll-driven drainExternal.
type asyncInvokeHandler struct{}

func (asyncInvokeHandler) Start(inv *primitives.Invoke, ctx *primitives.EvalContext, send func(primitives.Event)) (func(), error) {
	done := make(chan struct{})
	go func() {
		select {
		case <-time.After(10 * time.Millisecond):
			send(primitives.NewEvent("worker.done", nil))
		case <-done:
		}
	}()
	return func() { close(done) }, nil
}

// TestHostDeliversAsyncInvokeResponse confirms an event an InvokeHandler's
// send callback pushes from a goroutine of its own, well after Start has
// returned, is still delivered into a subsequent macrostep rather than
// discarded - the external queue is drained on the same ticker cadence as
// delayed-send timers (Host.pumpDue -> Host.drainExternal).
func TestHostDeliversAsyncInvokeResponse(t *testing.T) {
	doc := mustParse(t, invokeChart)
	h := New(doc, eval.NewDefaultEvaluator(), WithInvokeHandler("fake", asyncInvokeHandler{}))
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.Eventually(t, func() bool {
		states := h.ActiveAtomicStates()
		return len(states) == 1 && states[0] == "b"
	}, time.Second, 5*time.Millisecond)
}

func TestHostPublishesProcessedEvents(t *testing.T) {
	doc := mustParse(t, basicChart)
	ch := make(chan publish.PublishedEvent, 4)
	pub := publish.NewChannelPublisher(ch)
	h := New(doc, eval.NewDefaultEvaluator(), WithPublisher(pub))
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, h.Send("start", nil))

	select {
	case got := <-ch:
		assert.Equal(t, "start", got.Event.Name)
		assert.Equal(t, "idle", got.Metadata.FromState)
		assert.Equal(t, "running", got.Metadata.ToState)
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

type fakeRegistry struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (f *fakeRegistry) Register(ctx context.Context, sessionID, version string, snapshot Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshots = append(f.snapshots, snapshot)
	return nil
}

func (f *fakeRegistry) Latest(ctx context.Context, sessionID string) (Snapshot, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.snapshots) == 0 {
		return Snapshot{}, "", assert.AnError
	}
	return f.snapshots[len(f.snapshots)-1], "", nil
}

func (f *fakeRegistry) Version(ctx context.Context, sessionID, version string) (Snapshot, error) {
	return Snapshot{}, assert.AnError
}

func (f *fakeRegistry) ListVersions(ctx context.Context, sessionID string) ([]string, error) {
	return nil, nil
}

func (f *fakeRegistry) ListSessions(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestHostRegistersSnapshotPerMacrostep(t *testing.T) {
	doc := mustParse(t, basicChart)
	reg := &fakeRegistry{}
	h := New(doc, eval.NewDefaultEvaluator(), WithRegistry(reg))
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop()

	require.NoError(t, h.Send("start", nil))

	require.Eventually(t, func() bool {
		snap, _, err := reg.Latest(context.Background(), "")
		return err == nil && len(snap.Active) == 1 && snap.Active[0] == "running"
	}, time.Second, 5*time.Millisecond)
}

func TestHostStopIsIdempotent(t *testing.T) {
	doc := mustParse(t, basicChart)
	h := New(doc, eval.NewDefaultEvaluator())
	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())

	assert.ErrorIs(t, h.Send("start", nil), ErrNotRunning)
}
