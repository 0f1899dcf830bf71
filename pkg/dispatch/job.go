package dispatch

import (
	"fmt"

	"github.com/cuemby/taskrun/pkg/config"
	"github.com/cuemby/taskrun/pkg/types"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

// defaultSandboxMemorySetting is the settings key holding the global
// sandbox memory limit; a per-task override is stored under
// "<key>:<task_id>".
const defaultSandboxMemorySetting = "sandbox_memory_limit"

// composeJob builds the DispatchJobRequest for a leased run.
func (d *Dispatcher) composeJob(run *types.Run, task *types.Task, repo *types.Repository) *workerrpc.DispatchJobRequest {
	branch := fmt.Sprintf("agent/%s/%s/%s", repo.Slug, task.Slug, run.ID)

	env, secrets := composeCredentials(d.store, repo.ID)
	env["GIT_URL"] = repo.GitURL
	env["DEFAULT_BRANCH"] = repo.DefaultBranch
	env["TASK_BRANCH"] = branch
	env["HARNESS"] = task.Harness

	timeout := task.ExecutionTimeout
	if timeout <= 0 || timeout > d.settings.RuntimeHardTimeout {
		timeout = d.settings.RuntimeHardTimeout
	}

	artifactPolicy, err := d.store.GetSetting("artifact_policy")
	if err != nil || artifactPolicy == "" {
		artifactPolicy = "upload-on-success"
	}

	return &workerrpc.DispatchJobRequest{
		RunID:          run.ID,
		TaskID:         task.ID,
		RepositoryID:   repo.ID,
		Attempt:        run.Attempt,
		BranchName:     branch,
		Harness:        task.Harness,
		Image:          task.Image,
		Env:            env,
		Secrets:        secrets,
		Sandbox:        d.sandboxLimits(task),
		ArtifactPolicy: artifactPolicy,
		TimeoutSeconds: int64(timeout.Seconds()),
		Labels: map[string]string{
			"task_id":       task.ID,
			"repository_id": repo.ID,
			"run_id":        run.ID,
		},
	}
}

// sandboxLimits resolves the job's CPU/memory envelope. Memory is an
// optional per-task override ("sandbox_memory_limit:<task_id>"),
// falling back to the global setting, falling back to the configured
// default.
func (d *Dispatcher) sandboxLimits(task *types.Task) workerrpc.SandboxLimits {
	memBytes := d.settings.DefaultMemoryMiB << 20

	raw, err := d.store.GetSetting(defaultSandboxMemorySetting + ":" + task.ID)
	if err != nil || raw == "" {
		raw, err = d.store.GetSetting(defaultSandboxMemorySetting)
	}
	if err == nil && raw != "" {
		if parsed, parseErr := config.ParseMemoryLimit(raw); parseErr == nil && parsed > 0 {
			memBytes = parsed
		}
	}

	return workerrpc.SandboxLimits{
		CPUCores:    d.settings.DefaultCPUCores,
		MemoryBytes: memBytes,
	}
}
