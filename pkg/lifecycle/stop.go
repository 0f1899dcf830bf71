package lifecycle

import (
	"context"
	"time"

	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/types"
)

// SetDraining toggles draining on a runtime; the state bookkeeping
// itself lives in the registry.
func (m *Manager) SetDraining(id string, draining bool) (*types.RuntimeEntry, error) {
	return m.registry.SetDraining(id, draining)
}

// Stop transitions a runtime to Stopping, attempts a graceful
// container stop unless force is set, force-removes the container,
// then persists finalState with active_slots cleared. Missing-
// container errors are benign.
func (m *Manager) Stop(ctx context.Context, id string, force bool, finalState types.LifecycleState) error {
	logger := log.WithComponent("lifecycle")

	entry, ok := m.registry.Get(id)
	if !ok {
		return nil
	}

	// UpsertFromContainer keeps the state of a draining entry and never
	// copies active_slots, so each state Stop records replaces the entry.
	persist := func(state types.LifecycleState) error {
		entry.State = state
		m.registry.Remove(id)
		_, err := m.registry.UpsertFromContainer(entry)
		return err
	}
	if err := persist(types.LifecycleStopping); err != nil {
		logger.Warn().Err(err).Str("runtime_id", id).Msg("persist stopping state failed")
	}

	if !force {
		stopCtx, cancel := context.WithTimeout(ctx, m.settings.ContainerStopTimeout)
		err := m.engine.StopContainer(stopCtx, id, m.settings.ContainerStopTimeout)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("runtime_id", id).Msg("graceful stop failed, force-removing")
		}
	}

	if err := m.engine.DeleteContainer(ctx, id); err != nil {
		logger.Warn().Err(err).Str("runtime_id", id).Msg("delete container failed during stop")
	}

	entry.ActiveSlots = 0
	err := persist(finalState)
	m.clients.Evict(id)
	return err
}

// Recycle drains then force-stops a runtime with a final Offline
// state.
func (m *Manager) Recycle(ctx context.Context, id string) error {
	if _, err := m.SetDraining(id, true); err != nil {
		return err
	}
	return m.Stop(ctx, id, true, types.LifecycleOffline)
}

// RecyclePool sets draining on every running entry.
func (m *Manager) RecyclePool() {
	for _, e := range m.registry.List() {
		if e.State == types.LifecycleReady || e.State == types.LifecycleBusy {
			_, _ = m.SetDraining(e.ID, true)
		}
	}
}

// ScaleDownIdle stops idle or fully-drained runtimes.
func (m *Manager) ScaleDownIdle(ctx context.Context) {
	now := time.Now()
	for _, e := range m.registry.List() {
		if e.State != types.LifecycleReady && e.State != types.LifecycleBusy && e.State != types.LifecycleDraining {
			continue
		}

		idleFor := now.Sub(e.LastHeartbeatAt)
		switch {
		case e.ActiveSlots == 0 && idleFor >= m.settings.IdleTimeout:
			_ = m.Stop(ctx, e.ID, false, types.LifecycleOffline)
		case e.IsDraining && e.ActiveSlots == 0:
			_ = m.Stop(ctx, e.ID, false, types.LifecycleOffline)
		case e.IsDraining && idleFor >= m.settings.DrainTimeout:
			_ = m.Stop(ctx, e.ID, true, types.LifecycleOffline)
		}
	}
}
