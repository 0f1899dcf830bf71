package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/imageresolver"
	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/metrics"
	"github.com/cuemby/taskrun/pkg/providers"
	"github.com/cuemby/taskrun/pkg/types"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

// runtimeSettingKeys lists the global settings passed through to a
// spawned runtime container as TaskRuntime__<Key> environment
// variables.
var runtimeSettingKeys = []string{"log_level", "connectivity_mode", "container_network"}

// policyFor maps a task's declared image policy onto the resolver's
// Policy enum.
func policyFor(p types.ImagePolicy) imageresolver.Policy {
	switch p {
	case types.ImagePolicyBuildOnly:
		return imageresolver.BuildOnly
	case types.ImagePolicyPullThenBuild:
		return imageresolver.PullThenBuild
	case types.ImagePolicyBuildThenPull:
		return imageresolver.BuildThenPull
	case types.ImagePolicyPreferLocal:
		return imageresolver.PreferLocal
	default:
		return imageresolver.PullOnly
	}
}

// Spawn creates and starts a fresh runtime container for taskID,
// serialised by a single mutex and a distributed worker-scale lease
//.
func (m *Manager) Spawn(ctx context.Context, repositoryID, taskID string) (entry *types.RuntimeEntry, err error) {
	m.spawnMu.Lock()
	defer m.spawnMu.Unlock()

	logger := log.WithComponent("lifecycle")
	spawnTimer := metrics.NewTimer()
	spawnAttempted := false
	defer func() {
		if !spawnAttempted {
			return
		}
		spawnTimer.ObserveDuration(metrics.ContainerSpawnDuration)
		if err != nil {
			metrics.ContainersSpawnFailedTotal.Inc()
		} else {
			metrics.ContainersSpawnedTotal.Inc()
		}
	}()

	leaseTTL := 30 * time.Second
	if want := m.settings.ContainerStartTimeout + 30*time.Second; want > leaseTTL {
		leaseTTL = want
	}
	held, leaseErr := m.leases.TryAcquire("worker-scale", leaseTTL)
	if leaseErr != nil {
		logger.Warn().Err(leaseErr).Msg("worker-scale lease acquire errored, proceeding locally")
	}
	if held == nil && leaseErr == nil {
		// Another instance holds worker-scale: leave the run queued.
		return nil, nil
	}
	if held != nil {
		defer held.Release()
	}

	if err := m.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("spawn: refresh: %w", err)
	}
	if m.countRunning() >= m.settings.MaxWorkers {
		return nil, nil
	}
	if existing := m.leastLoadedForTask(taskID); existing != nil {
		return existing, nil
	}

	task, err := m.store.GetTask(taskID)
	if err != nil {
		return nil, fmt.Errorf("spawn: load task %s: %w", taskID, err)
	}

	running := m.countRunning()
	image, isCanary, reason := m.selectImage(task, running)
	logger.Debug().Str("task_id", taskID).Str("image", image).Bool("canary", isCanary).Str("reason", reason).Msg("image selected for spawn")

	policy := policyFor(task.ImagePolicy)
	res, resErr := m.resolver.Resolve(ctx, imageresolver.Request{Ref: image, Policy: policy})
	if (resErr != nil || !res.Available) && isCanary {
		logger.Warn().Err(resErr).Str("image", image).Msg("canary image resolution failed, falling back to base image")
		image = task.Image
		isCanary = false
		res, resErr = m.resolver.Resolve(ctx, imageresolver.Request{Ref: image, Policy: policy})
	}
	if resErr != nil || !res.Available {
		m.registerStartFailure(taskID)
		if resErr != nil {
			return nil, fmt.Errorf("spawn: resolve image %s: %w", image, resErr)
		}
		return nil, fmt.Errorf("spawn: resolve image %s: %s", image, res.Reason)
	}

	if !m.checkBudget(taskID) {
		return nil, fmt.Errorf("spawn: scale-out budget exhausted for task %s", taskID)
	}
	m.registerStartAttempt(taskID)
	spawnAttempted = true

	runtimeID := fmt.Sprintf("%s%s", managedNamePrefix, uuid.NewString())
	labels := engine.Labels(runtimeID, taskID, repositoryID, 1)
	if isCanary {
		labels[engine.LabelCanary] = "true"
	}

	exposePort := m.settings.Connectivity() == types.ConnectivityHostPort
	var hostPort int
	if exposePort {
		hostPort, err = engine.AllocateHostPort()
		if err != nil {
			logger.Warn().Err(err).Msg("host port allocation failed, continuing without a published port")
			exposePort = false
		} else {
			labels[engine.LabelHostPort] = fmt.Sprintf("%d", hostPort)
		}
	}

	spec := engine.ContainerSpec{
		ID:          runtimeID,
		Image:       image,
		Labels:      labels,
		Env:         m.spawnEnv(image),
		Resources:   m.resourceLimits(),
		NetworkName: m.settings.ContainerNetwork,
		ExposePort:  exposePort,
	}

	if err := m.engine.EnsureNetwork(ctx, m.settings.ContainerNetwork); err != nil {
		logger.Warn().Err(err).Msg("ensure network failed, continuing")
	}

	if err := m.createAndStart(ctx, &spec, image, policy); err != nil {
		m.registerStartFailure(taskID)
		return nil, err
	}

	entry, err = m.waitReady(ctx, runtimeID, hostPort)
	if err != nil {
		m.registerStartFailure(taskID)
		return entry, err
	}
	return entry, nil
}

// createAndStart implements step 7's create/start retry
// matrix. "name already in use" is handled one layer down: the engine
// itself treats container-already-exists as reuse and returns the
// existing ID without error.
func (m *Manager) createAndStart(ctx context.Context, spec *engine.ContainerSpec, image string, policy imageresolver.Policy) error {
	logger := log.WithComponent("lifecycle")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ContainerCreateDuration)

	id, err := m.engine.CreateContainer(ctx, *spec)
	if err != nil && isImageNotFound(err) {
		logger.Warn().Str("image", image).Msg("image not found at create time, re-resolving")
		if _, reErr := m.resolver.Resolve(ctx, imageresolver.Request{Ref: image, Policy: policy, ForceRefresh: true}); reErr != nil {
			return fmt.Errorf("create container: re-resolve %s: %w", image, reErr)
		}
		id, err = m.engine.CreateContainer(ctx, *spec)
	}
	if err != nil && isNetworkError(err) {
		logger.Warn().Err(err).Msg("create failed with a network error, retrying without the explicit network")
		bare := *spec
		bare.NetworkName = ""
		id, err = m.engine.CreateContainer(ctx, bare)
	}
	if err != nil {
		return fmt.Errorf("create container: %w", err)
	}

	if startErr := m.engine.StartContainer(ctx, id); startErr != nil && !isAlreadyRunning(startErr) {
		return fmt.Errorf("start container: %w", startErr)
	}
	return nil
}

// waitReady polls refresh until the container reports running, then
// confirms with a synthetic Heartbeat probe over the worker RPC
// channel, bounded by ContainerStartTimeout.
func (m *Manager) waitReady(ctx context.Context, runtimeID string, hostPort int) (*types.RuntimeEntry, error) {
	logger := log.WithComponent("lifecycle")

	deadline := time.Now().Add(m.settings.ContainerStartTimeout)

	pollInterval := time.Duration(m.settings.HealthProbeIntervalSeconds) * 200 * time.Millisecond
	if pollInterval < 300*time.Millisecond {
		pollInterval = 300 * time.Millisecond
	}

	for time.Now().Before(deadline) {
		if err := m.Refresh(ctx); err != nil {
			logger.Debug().Err(err).Msg("wait-ready refresh failed")
		}

		if entry, ok := m.registry.Get(runtimeID); ok {
			if entry.State == types.LifecycleReady || entry.State == types.LifecycleBusy {
				if m.probeReady(ctx, runtimeID, entry.Endpoint) {
					return entry, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	return nil, fmt.Errorf("spawn: runtime %s did not become ready within %s", runtimeID, m.settings.ContainerStartTimeout)
}

func (m *Manager) probeReady(ctx context.Context, runtimeID, endpoint string) bool {
	logger := log.WithComponent("lifecycle")

	client, err := m.clients.Get(runtimeID, endpoint)
	if err != nil {
		logger.Debug().Err(err).Str("runtime_id", runtimeID).Msg("wait-ready dial failed")
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err = client.Heartbeat(probeCtx, &workerrpc.HeartbeatRequest{
		RuntimeID:   runtimeID,
		HostName:    "wait-ready-probe-" + uuid.NewString(),
		TimestampMs: time.Now().UnixMilli(),
	})
	if err != nil {
		logger.Debug().Err(err).Str("runtime_id", runtimeID).Msg("wait-ready heartbeat probe failed")
		return false
	}
	return true
}

// spawnEnv composes the environment a spawned runtime container
// starts with: the image default, host-level provider credential
// passthrough, and a fixed allowlist of global settings forwarded as
// TaskRuntime__<Key>.
func (m *Manager) spawnEnv(image string) []string {
	env := []string{fmt.Sprintf("TASKRUNTIME_IMAGE=%s", image)}

	for _, provider := range providers.KnownProviders {
		secret, err := m.store.GetProviderSecret("global", provider)
		if err != nil || secret == "" {
			continue
		}
		keys, extra := providers.EnvKeys(provider)
		for _, k := range keys {
			env = append(env, fmt.Sprintf("%s=%s", k, secret))
		}
		for k, v := range extra {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	for _, key := range runtimeSettingKeys {
		v, err := m.store.GetSetting(key)
		if err != nil || v == "" {
			continue
		}
		env = append(env, fmt.Sprintf("TaskRuntime__%s=%s", key, v))
	}

	return env
}

func (m *Manager) resourceLimits() engine.ResourceLimits {
	return engine.ResourceLimits{
		CPUCores:  m.settings.DefaultCPUCores,
		MemoryMiB: m.settings.DefaultMemoryMiB,
		PIDLimit:  m.settings.PIDLimit,
		FDLimit:   m.settings.FDLimit,
	}
}

func isImageNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}

func isNetworkError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "network")
}

func isAlreadyRunning(err error) bool {
	return err != nil && strings.Contains(err.Error(), "already")
}
