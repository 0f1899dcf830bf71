package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/types"
)

func TestClampSlots(t *testing.T) {
	require.Equal(t, 1, clampSlots(0))
	require.Equal(t, 1, clampSlots(-5))
	require.Equal(t, 64, clampSlots(200))
	require.Equal(t, 10, clampSlots(10))
}

func TestLeastLoadedForTaskPrefersFewerActiveSlots(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "busy", TaskID: "task-1", State: types.LifecycleBusy, ActiveSlots: 3, MaxSlots: 4,
	})
	require.NoError(t, err)
	_, err = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "idle", TaskID: "task-1", State: types.LifecycleReady, ActiveSlots: 0, MaxSlots: 4,
	})
	require.NoError(t, err)

	best := mgr.leastLoadedForTask("task-1")
	require.NotNil(t, best)
	require.Equal(t, "idle", best.ID)
}

func TestLeastLoadedForTaskSkipsDrainingAndOtherTasks(t *testing.T) {
	mgr, _, _ := newTestManager(t)

	_, err := mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "draining", TaskID: "task-1", State: types.LifecycleDraining, IsDraining: true, MaxSlots: 4,
	})
	require.NoError(t, err)
	_, err = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "other-task", TaskID: "task-2", State: types.LifecycleReady, MaxSlots: 4,
	})
	require.NoError(t, err)

	require.Nil(t, mgr.leastLoadedForTask("task-1"))
}

func TestRecordDispatchActivityIncrementsAndClamps(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_, err := mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-1", State: types.LifecycleReady, ActiveSlots: 0, MaxSlots: 1,
	})
	require.NoError(t, err)

	mgr.recordDispatchActivity("rt-1")
	entry, ok := mgr.registry.Get("rt-1")
	require.True(t, ok)
	require.Equal(t, 1, entry.ActiveSlots)
	require.Equal(t, types.LifecycleBusy, entry.State)

	// A second bump must clamp to MaxSlots rather than overshoot.
	mgr.recordDispatchActivity("rt-1")
	entry, ok = mgr.registry.Get("rt-1")
	require.True(t, ok)
	require.Equal(t, 1, entry.ActiveSlots)
}

func TestCountRunning(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_, _ = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{ID: "a", State: types.LifecycleReady})
	_, _ = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{ID: "b", State: types.LifecycleBusy})
	_, _ = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{ID: "c", State: types.LifecycleOffline})

	require.Equal(t, 2, mgr.countRunning())
}

func TestAcquireForDispatchReturnsExistingRuntimeForSameTask(t *testing.T) {
	mgr, eng, _ := newTestManager(t)
	// AcquireForDispatch refreshes first, which drops registry entries
	// the engine does not list, so the runtime's container must exist.
	_, err := eng.CreateContainer(t.Context(), engine.ContainerSpec{ID: "rt-1", Labels: engine.Labels("rt-1", "task-1", "repo-1", 2)})
	require.NoError(t, err)
	require.NoError(t, eng.StartContainer(t.Context(), "rt-1"))
	_, err = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-1", TaskID: "task-1", State: types.LifecycleReady, ActiveSlots: 0, MaxSlots: 2,
		LastHeartbeatAt: time.Now(),
	})
	require.NoError(t, err)

	entry, err := mgr.AcquireForDispatch(t.Context(), "repo-1", "task-1", 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "rt-1", entry.ID)
	require.Equal(t, 1, entry.ActiveSlots, "acquire must record dispatch activity")
}

func TestAcquireForDispatchReturnsNilWhenAtMaxWorkersAndNoneToReuse(t *testing.T) {
	mgr, eng, _ := newTestManager(t)
	mgr.settings.MaxWorkers = 1
	_, err := eng.CreateContainer(t.Context(), engine.ContainerSpec{ID: "rt-1", Labels: engine.Labels("rt-1", "other-task", "repo-1", 1)})
	require.NoError(t, err)
	require.NoError(t, eng.StartContainer(t.Context(), "rt-1"))
	_, err = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-1", TaskID: "other-task", State: types.LifecycleReady, MaxSlots: 1,
	})
	require.NoError(t, err)

	entry, err := mgr.AcquireForDispatch(t.Context(), "repo-1", "task-1", 1)
	require.NoError(t, err)
	require.Nil(t, entry)
}
