package lifecycle

import (
	"context"
	"time"

	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/log"
)

// samplePressure fetches a non-streaming stats sample for containerID
// when the last sample for runtimeID is older than
// PressureSampleWindowSeconds, and diffs it against the previous
// sample to update the registry's CPU/memory percentages. Errors are
// tolerated: a missing sample just means pressure stays at its last
// known value.
func (m *Manager) samplePressure(ctx context.Context, runtimeID, containerID string) {
	window := time.Duration(m.settings.PressureSampleWindowSeconds) * time.Second
	logger := log.WithComponent("lifecycle")

	m.prevStatsMu.Lock()
	prev, had := m.prevSamples[runtimeID]
	stale := !had || time.Since(prev.sampledAt) >= window
	m.prevStatsMu.Unlock()
	if !stale {
		return
	}

	cur, err := m.engine.Stats(ctx, containerID)
	if err != nil {
		logger.Debug().Err(err).Str("runtime_id", runtimeID).Msg("pressure stats sample failed")
		return
	}

	m.prevStatsMu.Lock()
	before := prev.stats
	m.prevSamples[runtimeID] = pressureSample{stats: cur, sampledAt: time.Now()}
	m.prevStatsMu.Unlock()

	if !had {
		// First sample for this runtime: nothing to diff against yet.
		return
	}

	p := engine.CalculatePressure(before, cur)
	if err := m.registry.ApplyPressure(runtimeID, p.CPUPercent, p.MemoryPercent); err != nil {
		logger.Debug().Err(err).Str("runtime_id", runtimeID).Msg("apply pressure failed")
	}
}
