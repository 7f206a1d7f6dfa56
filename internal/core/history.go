package core

import (
	"sync"

	"github.com/comalice/scxml/internal/primitives"
)

// HistoryStore records, per history pseudostate, the configuration active
// under its parent at the moment the parent was last exited (C5, spec.md
// §3/§4.3). Shallow history remembers the parent's immediate children that
// were active; deep history remembers every atomic descendant that was
// active.
//
// Adapted from the teacher's HistoryManager (internal/core/historymanager.go):
// same shallow/deep split and thread-safety story, generalized from single
// string IDs to StateIndex sets so a shallow entry can hold more than one
// child (a shallow history child of a *parallel* region's sibling regions
// all record simultaneously) and restoration resolves into real
// descend-to-leaf state sets rather than a single placeholder path.
type HistoryStore struct {
	mu      sync.RWMutex
	shallow map[primitives.StateIndex]map[primitives.StateIndex]struct{} // history -> active direct children of parent
	deep    map[primitives.StateIndex]map[primitives.StateIndex]struct{} // history -> active atomic descendants of parent
}

// NewHistoryStore creates an empty store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		shallow: make(map[primitives.StateIndex]map[primitives.StateIndex]struct{}),
		deep:    make(map[primitives.StateIndex]map[primitives.StateIndex]struct{}),
	}
}

// RecordExit records, for every history child of parent, the configuration
// about to be lost as parent exits. active is the full current
// Configuration (atomic states); parent is the state being exited.
func (h *HistoryStore) RecordExit(doc *primitives.Document, parent primitives.StateIndex, active Configuration) {
	parentState := doc.MustState(parent)
	for _, child := range parentState.Children {
		cs := doc.MustState(child)
		if !cs.Kind.IsHistory() {
			continue
		}
		h.mu.Lock()
		switch cs.Kind {
		case primitives.KindHistoryShallow:
			rec := make(map[primitives.StateIndex]struct{})
			for _, directChild := range parentState.Children {
				if doc.MustState(directChild).Kind.IsHistory() {
					continue
				}
				for leaf := range active {
					if leaf == directChild || doc.IsDescendant(leaf, directChild) {
						rec[directChild] = struct{}{}
						break
					}
				}
			}
			h.shallow[child] = rec
		case primitives.KindHistoryDeep:
			rec := make(map[primitives.StateIndex]struct{})
			for leaf := range active {
				if leaf == parent || doc.IsDescendant(leaf, parent) {
					rec[leaf] = struct{}{}
				}
			}
			h.deep[child] = rec
		}
		h.mu.Unlock()
	}
}

// Restore returns the recorded state set for history state idx and whether
// one was found (false on first entry, per spec.md §8 boundary behavior:
// "A history state on first entry fires its default transition").
func (h *HistoryStore) Restore(idx primitives.StateIndex) ([]primitives.StateIndex, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if rec, ok := h.shallow[idx]; ok && len(rec) > 0 {
		return setToSlice(rec), true
	}
	if rec, ok := h.deep[idx]; ok && len(rec) > 0 {
		return setToSlice(rec), true
	}
	return nil, false
}

// Clear removes any recorded configuration for idx.
func (h *HistoryStore) Clear(idx primitives.StateIndex) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.shallow, idx)
	delete(h.deep, idx)
}

// Record is the serializable form of one history entry, keyed by the
// history pseudostate's document id rather than its arena index so it
// survives round-tripping through host.Snapshot (yaml/json).
type Record struct {
	Deep   bool     `json:"deep" yaml:"deep"`
	States []string `json:"states" yaml:"states"`
}

// Export converts the store into the id-keyed form used by host.Snapshot.
func (h *HistoryStore) Export(doc *primitives.Document) map[string]Record {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]Record, len(h.shallow)+len(h.deep))
	for idx, set := range h.shallow {
		out[doc.MustState(idx).ID] = Record{Deep: false, States: idsOf(doc, set)}
	}
	for idx, set := range h.deep {
		out[doc.MustState(idx).ID] = Record{Deep: true, States: idsOf(doc, set)}
	}
	return out
}

// Import replaces the store's contents from the id-keyed form. Unknown
// history or state ids are skipped rather than treated as fatal, so a
// snapshot taken against a slightly older document revision still loads.
func (h *HistoryStore) Import(doc *primitives.Document, recs map[string]Record) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, rec := range recs {
		idx, ok := doc.Lookup(id)
		if !ok {
			continue
		}
		set := make(map[primitives.StateIndex]struct{}, len(rec.States))
		for _, sid := range rec.States {
			if six, ok := doc.Lookup(sid); ok {
				set[six] = struct{}{}
			}
		}
		if rec.Deep {
			h.deep[idx] = set
		} else {
			h.shallow[idx] = set
		}
	}
}

func idsOf(doc *primitives.Document, set map[primitives.StateIndex]struct{}) []string {
	out := make([]string, 0, len(set))
	for idx := range set {
		out = append(out, doc.MustState(idx).ID)
	}
	return out
}

func setToSlice(m map[primitives.StateIndex]struct{}) []primitives.StateIndex {
	out := make([]primitives.StateIndex, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
