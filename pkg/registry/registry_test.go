package registry

import (
	"testing"

	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store)
}

func TestUpsertFromContainerCreatesThenMerges(t *testing.T) {
	reg := newTestRegistry(t)

	created, err := reg.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-1", Endpoint: "rt-1:5201", State: types.LifecycleStarting, MaxSlots: 1,
	})
	require.NoError(t, err)
	require.Equal(t, types.LifecycleStarting, created.State)

	// Simulate the lifecycle path bumping active slots and draining.
	_, err = reg.ApplyHeartbeat("rt-1", 1, 1)
	require.NoError(t, err)
	_, err = reg.SetDraining("rt-1", true)
	require.NoError(t, err)

	merged, err := reg.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-1", Endpoint: "rt-1:5201", State: types.LifecycleReady, MaxSlots: 2, ImageRef: "img:latest",
	})
	require.NoError(t, err)
	require.Equal(t, 2, merged.MaxSlots)
	require.Equal(t, "img:latest", merged.ImageRef)
	require.True(t, merged.IsDraining, "upsert must not clear draining")
	require.NotEqual(t, types.LifecycleReady, merged.State, "upsert must not overwrite state while draining")
}

func TestApplyHeartbeatClampsAndTransitions(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.UpsertFromContainer(&types.RuntimeEntry{ID: "rt-1", MaxSlots: 4, State: types.LifecycleStarting})
	require.NoError(t, err)

	got, err := reg.ApplyHeartbeat("rt-1", -3, 0)
	require.NoError(t, err)
	require.Equal(t, 0, got.ActiveSlots)
	require.Equal(t, types.LifecycleReady, got.State)

	got, err = reg.ApplyHeartbeat("rt-1", 2, 8)
	require.NoError(t, err)
	require.Equal(t, 2, got.ActiveSlots)
	require.Equal(t, 8, got.MaxSlots)
	require.Equal(t, types.LifecycleBusy, got.State)
}

func TestApplyHeartbeatUnknownRuntime(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.ApplyHeartbeat("missing", 1, 1)
	require.Error(t, err)
}

func TestListOrderedCaseInsensitive(t *testing.T) {
	reg := newTestRegistry(t)
	for _, id := range []string{"Bravo", "alpha", "Charlie"} {
		_, err := reg.UpsertFromContainer(&types.RuntimeEntry{ID: id, MaxSlots: 1})
		require.NoError(t, err)
	}

	list := reg.List()
	require.Len(t, list, 3)
	require.Equal(t, "alpha", list[0].ID)
	require.Equal(t, "Bravo", list[1].ID)
	require.Equal(t, "Charlie", list[2].ID)
}

func TestApplyPressureUpdatesCPUAndMemory(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.UpsertFromContainer(&types.RuntimeEntry{ID: "rt-1", MaxSlots: 1})
	require.NoError(t, err)

	require.NoError(t, reg.ApplyPressure("rt-1", 42.5, 71.25))

	got, ok := reg.Get("rt-1")
	require.True(t, ok)
	require.InDelta(t, 42.5, got.CPUPercent, 0.001)
	require.InDelta(t, 71.25, got.MemoryPercent, 0.001)
}

func TestApplyPressureUnknownRuntime(t *testing.T) {
	reg := newTestRegistry(t)
	require.Error(t, reg.ApplyPressure("missing", 1, 1))
}

func TestRemoveReturnsEntry(t *testing.T) {
	reg := newTestRegistry(t)
	_, err := reg.UpsertFromContainer(&types.RuntimeEntry{ID: "rt-1", MaxSlots: 1})
	require.NoError(t, err)

	removed, ok := reg.Remove("rt-1")
	require.True(t, ok)
	require.Equal(t, "rt-1", removed.ID)

	_, ok = reg.Get("rt-1")
	require.False(t, ok)
}
