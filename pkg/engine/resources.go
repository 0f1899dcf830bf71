package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Label keys applied to every managed runtime container.
const (
	LabelManagedBy = "orchestrator.managed-by"
	LabelRole      = "orchestrator.role"
	LabelWorkerID  = "orchestrator.worker-id"
	LabelTaskID    = "orchestrator.task-id"
	LabelRepoID    = "orchestrator.repo-id"
	LabelMaxSlots  = "orchestrator.max-slots"
	LabelHostPort  = "orchestrator.host-port"
	LabelCanary    = "orchestrator.canary"

	ManagedByValue = "control-plane"
	RoleValue      = "task-runtime-gateway"

	// WorkerPort is the worker's gRPC listen port inside the container.
	WorkerPort = 5201
)

var tokenDisallowed = regexp.MustCompile(`[^a-z0-9._-]`)

// SanitizeToken lowercases s and replaces every character outside
// [a-z0-9._-] with a dash, for use in volume names.
func SanitizeToken(s string) string {
	return tokenDisallowed.ReplaceAllString(strings.ToLower(s), "-")
}

// Labels composes the exact label set every managed container carries.
func Labels(runtimeID, taskID, repoID string, maxSlots int) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRole:      RoleValue,
		LabelWorkerID:  runtimeID,
		LabelTaskID:    taskID,
		LabelRepoID:    repoID,
		LabelMaxSlots:  strconv.Itoa(maxSlots),
	}
}

// DefaultVolumes returns the default volume bind set for a runtime
// identified by token (the sanitized runtime ID), given the container
// engine's control socket path.
func DefaultVolumes(token, engineSockPath string) map[string]string {
	return map[string]string{
		fmt.Sprintf("worker-artifacts-%s", token): "/artifacts",
		fmt.Sprintf("task-runtime-home-%s", token): "/home/agent",
		"agentsdashboard-workspaces":               "/workspaces",
		engineSockPath:                             engineSockPath,
	}
}

// ResourceLimits is the runtime-agnostic resource request for a
// container, converted to containerd/OCI units by NanoCPUs,
// MemoryBytes and CPUSharesAndQuota.
type ResourceLimits struct {
	CPUCores  float64
	MemoryMiB int64
	PIDLimit  int64
	FDLimit   uint64
}

// NanoCPUs converts CPU cores to the nanoCPUs unit (cpu * 1e9).
func (r ResourceLimits) NanoCPUs() int64 {
	return int64(r.CPUCores * 1e9)
}

// MemoryBytes converts MiB to bytes.
func (r ResourceLimits) MemoryBytes() int64 {
	return r.MemoryMiB * 1024 * 1024
}

// CPUSharesAndQuota converts cores to cgroup CPU terms: shares are a
// relative weight (1024 per core), quota/period express the CFS
// bandwidth limit over a 100ms period.
func (r ResourceLimits) CPUSharesAndQuota() (shares uint64, quota int64, period uint64) {
	if r.CPUCores <= 0 {
		return 0, 0, 0
	}
	return uint64(r.CPUCores * 1024), int64(r.CPUCores * 100000), 100000
}
