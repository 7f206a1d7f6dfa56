package host

import "context"

// Registry stores versioned snapshots of running instances, keyed by
// session id - the multi-instance bookkeeping spec.md §5 implies
// ("multiple independent instances run in parallel"). Defined here
// rather than in internal/production (whose persister.go already
// imports host for host.Snapshot) so a Host can depend on it directly
// without an import cycle; internal/production.InMemoryRegistry is the
// default implementation.
//
// Grounded on the teacher's Registry (comalice/statechartx
// internal/core/registry.go) and its WithRegistry wiring
// (internal/core/options.go, internal/core/machine.go), generalized from
// a teacher MachineSnapshot per version to a host.Snapshot.
type Registry interface {
	// Register saves snapshot for sessionID under version.
	Register(ctx context.Context, sessionID, version string, snapshot Snapshot) error

	// Latest returns the most recently registered snapshot for
	// sessionID, and the version it was registered under.
	Latest(ctx context.Context, sessionID string) (Snapshot, string, error)

	// Version returns the snapshot sessionID registered under version.
	Version(ctx context.Context, sessionID, version string) (Snapshot, error)

	// ListVersions returns sessionID's registered versions, newest first.
	ListVersions(ctx context.Context, sessionID string) ([]string, error)

	// ListSessions returns every session id with at least one registered
	// snapshot.
	ListSessions(ctx context.Context) ([]string, error)
}
