// Package primitives provides the foundational, zero-dependency data
// structures for the statechart engine: the state arena, transitions,
// events, the datamodel, and executable content.
//
// This package uses ONLY the Go standard library. Unlike the rest of the
// module, which wires ecosystem libraries wherever a component can use them,
// the document model is a pure value-type leaf with no I/O and no business
// logic of its own — there is nothing here a third-party library would do
// better, and pulling one in would only add an import with no behavioral
// gain.
//
// Core invariants:
//   - States live in an arena ([]*State) and reference each other by
//     StateIndex, never by owning pointer, so a Document can be shared
//     read-only across many running instances.
//   - A Document is mutable while being built by the parser and becomes
//     immutable once Validated is true.
//   - Configuration and history are sets/maps of StateIndex, not of *State,
//     so they stay cheap to copy and compare.
package primitives
