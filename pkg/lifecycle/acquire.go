package lifecycle

import (
	"context"
	"fmt"

	"github.com/cuemby/taskrun/pkg/types"
)

// clampSlots bounds a requested slot count to [1, 64].
func clampSlots(requested int) int {
	if requested < 1 {
		return 1
	}
	if requested > 64 {
		return 64
	}
	return requested
}

// AcquireForDispatch returns a runtime to dispatch taskID's run onto,
// spawning a fresh one if needed and capacity allows. A
// nil entry with a nil error means the caller must leave the run
// queued.
func (m *Manager) AcquireForDispatch(ctx context.Context, repositoryID, taskID string, requestedSlots int) (*types.RuntimeEntry, error) {
	_ = clampSlots(requestedSlots)

	if err := m.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("acquire for dispatch: refresh: %w", err)
	}

	if existing := m.leastLoadedForTask(taskID); existing != nil {
		m.recordDispatchActivity(existing.ID)
		entry, _ := m.registry.Get(existing.ID)
		return entry, nil
	}

	if m.countRunning() >= m.settings.MaxWorkers {
		return nil, nil
	}

	spawned, err := m.Spawn(ctx, repositoryID, taskID)
	if err != nil {
		return nil, err
	}
	if spawned == nil {
		return nil, nil
	}

	m.recordDispatchActivity(spawned.ID)
	entry, _ := m.registry.Get(spawned.ID)
	return entry, nil
}

// leastLoadedForTask returns the running, non-draining entry already
// serving taskID with the fewest active slots, oldest-heartbeat
// tie-break (used as the last-activity proxy).
func (m *Manager) leastLoadedForTask(taskID string) *types.RuntimeEntry {
	var best *types.RuntimeEntry
	for _, e := range m.registry.List() {
		if e.TaskID != taskID || e.IsDraining {
			continue
		}
		if e.State != types.LifecycleReady && e.State != types.LifecycleBusy {
			continue
		}
		switch {
		case best == nil:
			best = e
		case e.ActiveSlots < best.ActiveSlots:
			best = e
		case e.ActiveSlots == best.ActiveSlots && e.LastHeartbeatAt.Before(best.LastHeartbeatAt):
			best = e
		}
	}
	return best
}

func (m *Manager) countRunning() int {
	n := 0
	for _, e := range m.registry.List() {
		if e.State == types.LifecycleReady || e.State == types.LifecycleBusy {
			n++
		}
	}
	return n
}

// recordDispatchActivity bumps last-activity timing, increments
// active slots (clamped to max), and sets state to Busy.
func (m *Manager) recordDispatchActivity(id string) {
	entry, ok := m.registry.Get(id)
	if !ok {
		return
	}
	active := entry.ActiveSlots + 1
	if active > entry.MaxSlots {
		active = entry.MaxSlots
	}
	_, _ = m.registry.ApplyHeartbeat(id, active, entry.MaxSlots)
}
