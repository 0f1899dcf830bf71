package lifecycle

import (
	"math"

	"github.com/cuemby/taskrun/pkg/types"
)

// selectImage implements the canary/base image-selection step of
// spawn.
func (m *Manager) selectImage(task *types.Task, running int) (image string, isCanary bool, reason string) {
	if task.CanaryImage == "" || m.settings.CanaryPercent <= 0 {
		return task.Image, false, "base"
	}

	if running == 0 {
		return task.CanaryImage, true, "bootstrapping"
	}

	currentCanary := m.canaryCount(task.ID)
	target := int(math.Ceil(float64(running+1) * m.settings.CanaryPercent / 100))
	if currentCanary < target {
		return task.CanaryImage, true, "canary_target"
	}
	return task.Image, false, "base"
}

// canaryCount reports how many running, non-draining entries for
// taskID are currently serving the canary image.
func (m *Manager) canaryCount(taskID string) int {
	n := 0
	for _, e := range m.registry.List() {
		if e.TaskID != taskID || !e.IsCanary {
			continue
		}
		if e.State == types.LifecycleReady || e.State == types.LifecycleBusy {
			n++
		}
	}
	return n
}
