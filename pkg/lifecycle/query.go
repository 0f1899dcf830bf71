package lifecycle

import "github.com/cuemby/taskrun/pkg/types"

// Running returns every registry entry currently Ready or Busy, for
// the event listener's runtime discovery loop.
func (m *Manager) Running() []*types.RuntimeEntry {
	out := make([]*types.RuntimeEntry, 0)
	for _, e := range m.registry.List() {
		if e.State == types.LifecycleReady || e.State == types.LifecycleBusy {
			out = append(out, e)
		}
	}
	return out
}

// Get returns a copy of the registry entry for id, if present.
func (m *Manager) Get(id string) (*types.RuntimeEntry, bool) {
	return m.registry.Get(id)
}

// Heartbeat forwards a worker status report into the registry,
// updating active/max slots and persisting the mirror.
func (m *Manager) Heartbeat(runtimeID string, active, max int) (*types.RuntimeEntry, error) {
	return m.registry.ApplyHeartbeat(runtimeID, active, max)
}
