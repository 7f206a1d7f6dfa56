// Package primitives provides versioning utilities for Document snapshots.
package primitives

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"time"
)

// Fingerprint computes a deterministic content hash for a Document. A
// Host's registerLocked (host/host.go) combines it with VersionStamp to
// tag each host.Registry.Register call (host/registry.go,
// internal/production.InMemoryRegistry) without depending on wall-clock
// time alone for the document-identity half of a version string. Adapted
// from the teacher's ComputeVersion (hashing a JSON-marshaled
// MachineConfig); we hash the arena fields directly since Document is
// StateIndex-linked rather than tree-nested and so isn't naturally
// JSON-marshalable.
func (d *Document) Fingerprint() string {
	h := sha256.New()
	ids := make([]string, 0, len(d.ByID))
	for id := range d.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		idx := d.ByID[id]
		s := d.MustState(idx)
		fmt.Fprintf(h, "%s|%s|%d|", s.ID, s.Kind, s.DocumentOrder)
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// VersionStamp formats a fingerprint with a timestamp suffix for a
// human-legible, still-sortable version string.
func VersionStamp(fingerprint string, at time.Time) string {
	return fmt.Sprintf("%s-%s", fingerprint[:12], at.UTC().Format("20060102T150405Z"))
}
