package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskrun/pkg/types"
)

func TestSelectImageNoCanaryConfigured(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.CanaryPercent = 20

	task := &types.Task{ID: "task-1", Image: "base:latest"}
	image, isCanary, reason := mgr.selectImage(task, 3)
	require.Equal(t, "base:latest", image)
	require.False(t, isCanary)
	require.Equal(t, "base", reason)
}

func TestSelectImageCanaryPercentZero(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.CanaryPercent = 0

	task := &types.Task{ID: "task-1", Image: "base:latest", CanaryImage: "base:canary"}
	image, isCanary, _ := mgr.selectImage(task, 0)
	require.Equal(t, "base:latest", image)
	require.False(t, isCanary)
}

func TestSelectImageBootstrapsWithCanaryWhenNoneRunning(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.CanaryPercent = 10

	task := &types.Task{ID: "task-1", Image: "base:latest", CanaryImage: "base:canary"}
	image, isCanary, reason := mgr.selectImage(task, 0)
	require.Equal(t, "base:canary", image)
	require.True(t, isCanary)
	require.Equal(t, "bootstrapping", reason)
}

func TestSelectImagePicksCanaryUntilTargetReached(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.CanaryPercent = 50 // target = ceil((running+1)*0.5)

	task := &types.Task{ID: "task-1", Image: "base:latest", CanaryImage: "base:canary"}

	// running=1, target=ceil(2*0.5)=1, currentCanary=0 < 1 -> canary
	image, isCanary, reason := mgr.selectImage(task, 1)
	require.Equal(t, "base:canary", image)
	require.True(t, isCanary)
	require.Equal(t, "canary_target", reason)
}

func TestSelectImageFallsBackToBaseOnceCanaryTargetMet(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	mgr.settings.CanaryPercent = 50

	task := &types.Task{ID: "task-1", Image: "base:latest", CanaryImage: "base:canary"}
	_, err := mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-canary", TaskID: "task-1", State: types.LifecycleReady, IsCanary: true,
	})
	require.NoError(t, err)

	// running=1, target=ceil(2*0.5)=1, currentCanary=1 >= 1 -> base
	image, isCanary, reason := mgr.selectImage(task, 1)
	require.Equal(t, "base:latest", image)
	require.False(t, isCanary)
	require.Equal(t, "base", reason)
}

func TestCanaryCountOnlyCountsRunningCanariesForTask(t *testing.T) {
	mgr, _, _ := newTestManager(t)
	_, _ = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-1", TaskID: "task-1", State: types.LifecycleReady, IsCanary: true,
	})
	_, _ = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-2", TaskID: "task-1", State: types.LifecycleOffline, IsCanary: true,
	})
	_, _ = mgr.registry.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-3", TaskID: "task-2", State: types.LifecycleReady, IsCanary: true,
	})

	require.Equal(t, 1, mgr.canaryCount("task-1"))
}
