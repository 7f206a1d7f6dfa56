package host

import (
	"fmt"

	"github.com/comalice/scxml/internal/core"
	"github.com/comalice/scxml/internal/primitives"
)

// Snapshot is the immutable, serializable state of one instance: the
// active atomic states (by id), the datamodel's initialized values, and
// any recorded history, all keyed by document id rather than arena index
// so it survives a document reload (spec.md §6 "send_sync(Snapshot, name,
// data) -> Snapshot — pure step over an immutable snapshot").
//
// Grounded on the teacher's MachineSnapshot (internal/core/machine.go),
// generalized from a single current leaf-path list to a full active-atomic
// id set and carrying history alongside the datamodel.
type Snapshot struct {
	Active    []string               `json:"active" yaml:"active"`
	Datamodel map[string]any         `json:"datamodel" yaml:"datamodel"`
	History   map[string]core.Record `json:"history,omitempty" yaml:"history,omitempty"`

	// External carries any event still sitting in the instance's external
	// queue at snapshot time - typically empty, since Host drains it
	// inline after every macrostep, but non-empty in the window between an
	// InvokeHandler's asynchronous send callback and the next poll tick.
	// Round-tripping it through SendSync keeps that pending event from
	// being silently dropped (spec.md §4.4/§4.9).
	External []primitives.Event `json:"external,omitempty" yaml:"external,omitempty"`
}

func (h *Host) snapshotLocked() Snapshot {
	atoms := core.SortedAtoms(h.doc, h.engine.Config)
	active := make([]string, len(atoms))
	for i, a := range atoms {
		active[i] = h.doc.MustState(a).ID
	}
	return Snapshot{
		Active:    active,
		Datamodel: h.datamodel.Snapshot(),
		History:   h.engine.History.Export(h.doc),
		External:  h.engine.Queues.SnapshotExternal(),
	}
}

// Snapshot returns a point-in-time copy of the instance's active
// configuration and datamodel.
func (h *Host) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snapshotLocked()
}

// SendSync applies one external event to snap as a pure function of
// (Document, Snapshot, Event), independent of any running Host, and
// returns the resulting Snapshot. This is spec.md §6's `send_sync`: it
// does not touch a live instance's queues or invocations, so it is safe
// to call concurrently from multiple goroutines against the same
// read-only Document.
func SendSync(doc *primitives.Document, evaluator primitives.Evaluator, runner core.ActionRunner, snap Snapshot, eventName string, data any) (Snapshot, error) {
	engine := core.NewEngine(doc, evaluator, runner)

	for _, id := range snap.Active {
		idx, ok := doc.Lookup(id)
		if !ok {
			return Snapshot{}, fmt.Errorf("host: snapshot references unknown state %q", id)
		}
		engine.Config.Add(idx)
	}
	engine.History.Import(doc, snap.History)

	dm := primitives.NewDatamodel()
	for _, s := range doc.States {
		for _, de := range s.DataElements {
			dm.Declare(de.ID)
		}
	}
	for k, v := range snap.Datamodel {
		dm.Set(k, v)
	}

	// Pending external events from a prior snapshot are older than the one
	// being sent now, so they run first, FIFO (spec.md §4.4).
	for _, ev := range snap.External {
		engine.Queues.PushExternal(ev)
	}
	engine.Queues.PushExternal(primitives.NewEvent(eventName, data))

	for {
		ev, ok := engine.Queues.PopExternal()
		if !ok {
			break
		}
		done, err := engine.RunMacrostep(dm, "sync", ev)
		if err != nil {
			return Snapshot{}, err
		}
		if done {
			break
		}
	}

	atoms := core.SortedAtoms(doc, engine.Config)
	active := make([]string, len(atoms))
	for i, a := range atoms {
		active[i] = doc.MustState(a).ID
	}
	return Snapshot{
		Active:    active,
		Datamodel: dm.Snapshot(),
		History:   engine.History.Export(doc),
		External:  engine.Queues.SnapshotExternal(),
	}, nil
}
