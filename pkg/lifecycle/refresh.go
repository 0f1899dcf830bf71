package lifecycle

import (
	"context"
	"strconv"
	"time"

	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/types"
)

// managedNamePrefix is the name-prefix fallback for discovering
// runtimes created without the managed-by/role label pair.
const managedNamePrefix = "taskrun-rt-"

// Refresh reconciles the registry against the engine's ground truth
//, debounced by RefreshInterval and serialised by a
// single mutex.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if time.Since(m.lastRefreshAt) < m.settings.RefreshInterval {
		return nil
	}
	m.lastRefreshAt = time.Now()

	logger := log.WithComponent("lifecycle")

	containers, err := m.engine.ListManaged(ctx, managedNamePrefix)
	if err != nil {
		return err
	}

	connectivity := m.settings.Connectivity()
	seen := make(map[string]bool, len(containers))

	for _, c := range containers {
		maxSlots := 1
		if v, ok := c.Labels[engine.LabelMaxSlots]; ok {
			if n, convErr := strconv.Atoi(v); convErr == nil && n > 0 {
				maxSlots = n
			}
		}

		runtimeID := c.Labels[engine.LabelWorkerID]
		if runtimeID == "" {
			runtimeID = c.ID
		}
		seen[runtimeID] = true

		state := types.LifecycleOffline
		if c.Running {
			state = types.LifecycleReady
		}

		hostPort := 0
		if v, ok := c.Labels[engine.LabelHostPort]; ok {
			if n, convErr := strconv.Atoi(v); convErr == nil {
				hostPort = n
			}
		}

		observed := &types.RuntimeEntry{
			ID:           runtimeID,
			Endpoint:     resolveEndpoint(connectivity, c.ID, hostPort),
			State:        state,
			MaxSlots:     maxSlots,
			IsCanary:     c.Labels[engine.LabelCanary] == "true",
			TaskID:       c.Labels[engine.LabelTaskID],
			RepositoryID: c.Labels[engine.LabelRepoID],
		}

		if _, upsertErr := m.registry.UpsertFromContainer(observed); upsertErr != nil {
			logger.Warn().Err(upsertErr).Str("runtime_id", runtimeID).Msg("upsert from container failed")
		}

		if c.Running {
			m.samplePressure(ctx, runtimeID, c.ID)
		}
	}

	for _, entry := range m.registry.List() {
		if seen[entry.ID] {
			continue
		}
		if _, ok := m.registry.Remove(entry.ID); ok {
			m.clients.Evict(entry.ID)
			logger.Info().Str("runtime_id", entry.ID).Msg("runtime no longer present in engine, removed")
		}
	}

	return nil
}
