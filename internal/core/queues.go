package core

import (
	"container/heap"
	"sync"

	"github.com/comalice/scxml/internal/primitives"
)

// Queues holds an instance's internal and external event queues (C6,
// spec.md §4.4). Both are FIFO: the internal queue is drained to empty
// before the next external event is taken, per spec.md §4.4/§4.9. This
// package provides the queue data structures only; the host and realtime
// packages own the drain loop that feeds an engine's own
// external-queue pushes (a self-targeted immediate <send>, an invoke
// handler's response) into a subsequent macrostep.
//
// External is reachable concurrently: an InvokeHandler may call its send
// callback from a goroutine of its own, independent of whatever goroutine
// is mid-macrostep. Internal is never touched outside the single
// goroutine running a macrostep, so it needs no lock.
type Queues struct {
	Internal []primitives.Event
	External []primitives.Event

	extMu sync.Mutex
}

// NewQueues creates empty queues.
func NewQueues() *Queues {
	return &Queues{}
}

// PushInternal enqueues an event raised during the current macrostep
// (<raise>, or an error.* event produced by the engine itself).
func (q *Queues) PushInternal(e primitives.Event) {
	q.Internal = append(q.Internal, e)
}

// PushExternal enqueues an externally-sent event, or a delayed <send> with
// no remaining delay.
func (q *Queues) PushExternal(e primitives.Event) {
	q.extMu.Lock()
	q.External = append(q.External, e)
	q.extMu.Unlock()
}

// PopInternal dequeues the oldest internal event, if any.
func (q *Queues) PopInternal() (primitives.Event, bool) {
	if len(q.Internal) == 0 {
		return primitives.Event{}, false
	}
	e := q.Internal[0]
	q.Internal = q.Internal[1:]
	return e, true
}

// PopExternal dequeues the oldest external event, if any.
func (q *Queues) PopExternal() (primitives.Event, bool) {
	q.extMu.Lock()
	defer q.extMu.Unlock()
	if len(q.External) == 0 {
		return primitives.Event{}, false
	}
	e := q.External[0]
	q.External = q.External[1:]
	return e, true
}

// SnapshotExternal returns a defensive copy of the pending external queue,
// for serialization into a host.Snapshot (spec.md §6).
func (q *Queues) SnapshotExternal() []primitives.Event {
	q.extMu.Lock()
	defer q.extMu.Unlock()
	if len(q.External) == 0 {
		return nil
	}
	out := make([]primitives.Event, len(q.External))
	copy(out, q.External)
	return out
}

// Next returns the next event to process: internal events take priority
// over external ones (spec.md §4.9 step 2), and nil/false if both queues
// are empty (the instance is quiescent).
func (q *Queues) Next() (primitives.Event, bool) {
	if e, ok := q.PopInternal(); ok {
		return e, true
	}
	return q.PopExternal()
}

// DelayedSend is a scheduled future external-queue insertion created by
// <send delay="...">.
type DelayedSend struct {
	DeadlineNanos int64 // monotonic clock ticks; comparable, not wall-clock
	SendID        string
	DocumentOrder int // tie-break among simultaneous deadlines
	Event         primitives.Event
	seq           int // heap insertion order, secondary tie-break for stability
}

// Scheduler is a min-heap of pending delayed sends, keyed by deadline with
// document-order tie-break among simultaneous timers (spec.md §4.4: "the
// timer entry is moved to the external queue preserving insertion order
// among simultaneous timers (document-order tie-break on the owning
// action)").
type Scheduler struct {
	h       delayedHeap
	bySend  map[string]*DelayedSend
	nextSeq int
}

// NewScheduler creates an empty scheduler.
func NewScheduler() *Scheduler {
	s := &Scheduler{bySend: make(map[string]*DelayedSend)}
	heap.Init(&s.h)
	return s
}

// Schedule adds a delayed send. If ds.SendID is non-empty it becomes
// cancellable via Cancel.
func (s *Scheduler) Schedule(ds *DelayedSend) {
	ds.seq = s.nextSeq
	s.nextSeq++
	heap.Push(&s.h, ds)
	if ds.SendID != "" {
		s.bySend[ds.SendID] = ds
	}
}

// Cancel removes a pending delayed send by id. Cancelling an id that has
// already fired (or never existed) is a no-op, per spec.md §5.
func (s *Scheduler) Cancel(sendID string) {
	ds, ok := s.bySend[sendID]
	if !ok {
		return
	}
	delete(s.bySend, sendID)
	for i, e := range s.h {
		if e == ds {
			heap.Remove(&s.h, i)
			break
		}
	}
}

// Due pops and returns every delayed send whose deadline is <= now, in
// fire order (deadline, then document order, then insertion order).
func (s *Scheduler) Due(now int64) []*DelayedSend {
	var out []*DelayedSend
	for s.h.Len() > 0 && s.h[0].DeadlineNanos <= now {
		ds := heap.Pop(&s.h).(*DelayedSend)
		delete(s.bySend, ds.SendID)
		out = append(out, ds)
	}
	return out
}

// NextDeadline returns the soonest pending deadline, or (0, false) if the
// scheduler is empty.
func (s *Scheduler) NextDeadline() (int64, bool) {
	if s.h.Len() == 0 {
		return 0, false
	}
	return s.h[0].DeadlineNanos, true
}

type delayedHeap []*DelayedSend

func (h delayedHeap) Len() int { return len(h) }
func (h delayedHeap) Less(i, j int) bool {
	if h[i].DeadlineNanos != h[j].DeadlineNanos {
		return h[i].DeadlineNanos < h[j].DeadlineNanos
	}
	if h[i].DocumentOrder != h[j].DocumentOrder {
		return h[i].DocumentOrder < h[j].DocumentOrder
	}
	return h[i].seq < h[j].seq
}
func (h delayedHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *delayedHeap) Push(x any)   { *h = append(*h, x.(*DelayedSend)) }
func (h *delayedHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
