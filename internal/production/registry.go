package production

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/comalice/scxml/host"
)

type versionedSnapshot struct {
	version  string
	snapshot host.Snapshot
}

// InMemoryRegistry stores versioned host.Snapshots per session id, newest
// registered last, for a supervisor tracking several concurrently running
// instances.
//
// Grounded on the teacher's Registry interface (comalice/statechartx
// internal/core/registry.go) and its WithRegistry wiring
// (internal/core/machine.go's post-transition fire-and-forget Register
// call), generalized from a single versioned MachineSnapshot per machine
// to a host.Snapshot keyed by session id. Implemented in-memory rather
// than against a backing store: this repo has no database dependency for
// a registry to reach for, unlike JSONPersister/YAMLPersister, which
// persist to the filesystem the teacher's FilePersister also used.
type InMemoryRegistry struct {
	mu   sync.RWMutex
	data map[string][]versionedSnapshot
}

// NewInMemoryRegistry creates an empty InMemoryRegistry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{data: make(map[string][]versionedSnapshot)}
}

func (r *InMemoryRegistry) Register(ctx context.Context, sessionID, version string, snapshot host.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[sessionID] = append(r.data[sessionID], versionedSnapshot{version: version, snapshot: snapshot})
	return nil
}

func (r *InMemoryRegistry) Latest(ctx context.Context, sessionID string) (host.Snapshot, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.data[sessionID]
	if len(versions) == 0 {
		return host.Snapshot{}, "", fmt.Errorf("production: no snapshot registered for session %q", sessionID)
	}
	last := versions[len(versions)-1]
	return last.snapshot, last.version, nil
}

func (r *InMemoryRegistry) Version(ctx context.Context, sessionID, version string) (host.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, v := range r.data[sessionID] {
		if v.version == version {
			return v.snapshot, nil
		}
	}
	return host.Snapshot{}, fmt.Errorf("production: session %q has no version %q", sessionID, version)
}

func (r *InMemoryRegistry) ListVersions(ctx context.Context, sessionID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.data[sessionID]
	out := make([]string, len(versions))
	for i := range versions {
		out[len(versions)-1-i] = versions[i].version
	}
	return out, nil
}

func (r *InMemoryRegistry) ListSessions(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.data))
	for id := range r.data {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}
