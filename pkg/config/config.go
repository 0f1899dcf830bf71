package config

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/taskrun/pkg/types"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// RuntimeSettings is the bag of tunables consulted by the image
// resolver, the lifecycle manager and the dispatcher. A single
// instance is shared (read-mostly) across components.
type RuntimeSettings struct {
	RefreshInterval             time.Duration `yaml:"refresh_interval"`
	MaxWorkers                  int           `yaml:"max_workers"`
	IdleTimeout                 time.Duration `yaml:"idle_timeout"`
	DrainTimeout                time.Duration `yaml:"drain_timeout"`
	ContainerStartTimeout       time.Duration `yaml:"container_start_timeout"`
	ContainerStopTimeout        time.Duration `yaml:"container_stop_timeout"`
	PullTimeout                 time.Duration `yaml:"pull_timeout"`
	BuildTimeout                time.Duration `yaml:"build_timeout"`
	PressureSampleWindowSeconds int           `yaml:"pressure_sample_window_seconds"`
	HealthProbeIntervalSeconds  int           `yaml:"health_probe_interval_seconds"`
	MaxStartAttemptsPer10Min    int           `yaml:"max_start_attempts_per_10min"`
	MaxFailedStartsPer10Min     int           `yaml:"max_failed_starts_per_10min"`
	CooldownMinutes             int           `yaml:"cooldown_minutes"`
	MaxConcurrentPulls          int           `yaml:"max_concurrent_pulls"`
	MaxConcurrentBuilds         int           `yaml:"max_concurrent_builds"`
	InactiveTimeoutMinutes      int           `yaml:"inactive_timeout_minutes"`
	CanaryPercent               float64       `yaml:"canary_percent"`
	ConnectivityMode            string        `yaml:"connectivity_mode"`
	MaxQueueDepth               int           `yaml:"max_queue_depth"`
	MaxGlobalConcurrent         int           `yaml:"max_global_concurrent"`
	PerProjectLimit             int           `yaml:"per_project_limit"`
	PerRepoLimit                int           `yaml:"per_repo_limit"`
	RuntimeHardTimeout          time.Duration `yaml:"runtime_hard_timeout"`
	RecycleAfterRun             bool          `yaml:"recycle_after_run"`
	DefaultCPUCores             float64       `yaml:"default_cpu_cores"`
	DefaultMemoryMiB            int64         `yaml:"default_memory_mib"`
	PIDLimit                    int64         `yaml:"pid_limit"`
	FDLimit                     uint64        `yaml:"fd_limit"`

	ContainerNetwork string `yaml:"container_network"`
	ContainerdSocket string `yaml:"containerd_socket"`
	DataDir          string `yaml:"data_dir"`
}

// Connectivity resolves ConnectivityMode into the typed enum, defaulting
// to bridge when unset or unrecognized; there is no auto-detect mode.
func (s RuntimeSettings) Connectivity() types.ConnectivityMode {
	switch types.ConnectivityMode(s.ConnectivityMode) {
	case types.ConnectivityHostPort:
		return types.ConnectivityHostPort
	case types.ConnectivityOverlay:
		return types.ConnectivityOverlay
	default:
		return types.ConnectivityBridge
	}
}

// Defaults returns the built-in defaults for every runtime setting.
func Defaults() RuntimeSettings {
	return RuntimeSettings{
		RefreshInterval:             5 * time.Second,
		MaxWorkers:                  10,
		IdleTimeout:                 5 * time.Minute,
		DrainTimeout:                2 * time.Minute,
		ContainerStartTimeout:       60 * time.Second,
		ContainerStopTimeout:        10 * time.Second,
		PullTimeout:                 5 * time.Minute,
		BuildTimeout:                10 * time.Minute,
		PressureSampleWindowSeconds: 15,
		HealthProbeIntervalSeconds:  2,
		MaxStartAttemptsPer10Min:    20,
		MaxFailedStartsPer10Min:     5,
		CooldownMinutes:             10,
		MaxConcurrentPulls:          3,
		MaxConcurrentBuilds:         1,
		InactiveTimeoutMinutes:      30,
		CanaryPercent:               0,
		ConnectivityMode:            string(types.ConnectivityBridge),
		MaxQueueDepth:               100,
		MaxGlobalConcurrent:         20,
		PerProjectLimit:             10,
		PerRepoLimit:                5,
		RuntimeHardTimeout:          2 * time.Hour,
		RecycleAfterRun:             true,
		DefaultCPUCores:             1.0,
		DefaultMemoryMiB:            1024,
		PIDLimit:                    512,
		FDLimit:                     4096,
		ContainerNetwork:            "taskrun",
		ContainerdSocket:            "/run/containerd/containerd.sock",
		DataDir:                     "/var/lib/taskrun",
	}
}

// BindFlags registers every RuntimeSettings field onto fs, seeded with
// Defaults().
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.Duration("refresh-interval", d.RefreshInterval, "registry/lifecycle refresh debounce interval")
	fs.Int("max-workers", d.MaxWorkers, "maximum concurrently running runtime containers")
	fs.Duration("idle-timeout", d.IdleTimeout, "idle runtime shutdown threshold")
	fs.Duration("drain-timeout", d.DrainTimeout, "forced-stop threshold for draining runtimes")
	fs.Duration("container-start-timeout", d.ContainerStartTimeout, "spawn wait-ready deadline")
	fs.Duration("container-stop-timeout", d.ContainerStopTimeout, "graceful stop deadline")
	fs.Duration("pull-timeout", d.PullTimeout, "image resolver: per-attempt pull deadline")
	fs.Duration("build-timeout", d.BuildTimeout, "image resolver: per-attempt build deadline")
	fs.Int("pressure-sample-window-seconds", d.PressureSampleWindowSeconds, "minimum interval between pressure stats samples")
	fs.Int("health-probe-interval-seconds", d.HealthProbeIntervalSeconds, "base interval for wait-ready heartbeat probing")
	fs.Int("max-start-attempts-per-10min", d.MaxStartAttemptsPer10Min, "scale-out budget: max spawn attempts per rolling window")
	fs.Int("max-failed-starts-per-10min", d.MaxFailedStartsPer10Min, "scale-out budget: max failed spawns per rolling window")
	fs.Int("cooldown-minutes", d.CooldownMinutes, "scale-out budget cooldown once exhausted")
	fs.Int("max-concurrent-pulls", d.MaxConcurrentPulls, "image resolver: concurrent pull limit")
	fs.Int("max-concurrent-builds", d.MaxConcurrentBuilds, "image resolver: concurrent build limit")
	fs.Int("inactive-timeout-minutes", d.InactiveTimeoutMinutes, "minutes of inactivity before a registration is marked Inactive")
	fs.Float64("canary-percent", d.CanaryPercent, "percentage (0-100) of spawns that prefer the task's canary image")
	fs.String("connectivity-mode", d.ConnectivityMode, "worker RPC connectivity mode (bridge, host_port, overlay)")
	fs.Int("max-queue-depth", d.MaxQueueDepth, "admission control: max queued runs before hard rejection")
	fs.Int("max-global-concurrent", d.MaxGlobalConcurrent, "admission control: global concurrent run ceiling")
	fs.Int("per-project-limit", d.PerProjectLimit, "admission control: per-project concurrent run ceiling")
	fs.Int("per-repo-limit", d.PerRepoLimit, "admission control: per-repository concurrent run ceiling")
	fs.Duration("runtime-hard-timeout", d.RuntimeHardTimeout, "upper bound on a dispatched run's timeout, regardless of task setting")
	fs.Bool("recycle-after-run", d.RecycleAfterRun, "recycle (vs. pool-reuse) a runtime after every completed run")
	fs.Float64("default-cpu-cores", d.DefaultCPUCores, "CPU cores granted to a spawned runtime container")
	fs.Int64("default-memory-mib", d.DefaultMemoryMiB, "memory (MiB) granted to a spawned runtime container")
	fs.Int64("pid-limit", d.PIDLimit, "PID limit applied to a spawned runtime container")
	fs.Uint64("fd-limit", d.FDLimit, "file-descriptor ulimit applied to a spawned runtime container")
	fs.String("container-network", d.ContainerNetwork, "bridge network name runtime containers attach to")
	fs.String("containerd-socket", d.ContainerdSocket, "containerd socket path")
	fs.String("data-dir", d.DataDir, "BoltDB and lease-coordinator data directory")
}

// FromFlags reads every bound flag back into a RuntimeSettings,
// starting from Defaults() so unbound fields keep sane values.
func FromFlags(fs *pflag.FlagSet) (RuntimeSettings, error) {
	s := Defaults()

	var err error
	get := func(name string, assign func() error) {
		if err != nil || fs.Lookup(name) == nil {
			return
		}
		err = assign()
	}

	get("refresh-interval", func() error { s.RefreshInterval, err = fs.GetDuration("refresh-interval"); return err })
	get("max-workers", func() error { s.MaxWorkers, err = fs.GetInt("max-workers"); return err })
	get("idle-timeout", func() error { s.IdleTimeout, err = fs.GetDuration("idle-timeout"); return err })
	get("drain-timeout", func() error { s.DrainTimeout, err = fs.GetDuration("drain-timeout"); return err })
	get("container-start-timeout", func() error { s.ContainerStartTimeout, err = fs.GetDuration("container-start-timeout"); return err })
	get("container-stop-timeout", func() error { s.ContainerStopTimeout, err = fs.GetDuration("container-stop-timeout"); return err })
	get("pull-timeout", func() error { s.PullTimeout, err = fs.GetDuration("pull-timeout"); return err })
	get("build-timeout", func() error { s.BuildTimeout, err = fs.GetDuration("build-timeout"); return err })
	get("pressure-sample-window-seconds", func() error {
		s.PressureSampleWindowSeconds, err = fs.GetInt("pressure-sample-window-seconds")
		return err
	})
	get("health-probe-interval-seconds", func() error {
		s.HealthProbeIntervalSeconds, err = fs.GetInt("health-probe-interval-seconds")
		return err
	})
	get("max-start-attempts-per-10min", func() error {
		s.MaxStartAttemptsPer10Min, err = fs.GetInt("max-start-attempts-per-10min")
		return err
	})
	get("max-failed-starts-per-10min", func() error {
		s.MaxFailedStartsPer10Min, err = fs.GetInt("max-failed-starts-per-10min")
		return err
	})
	get("cooldown-minutes", func() error { s.CooldownMinutes, err = fs.GetInt("cooldown-minutes"); return err })
	get("max-concurrent-pulls", func() error { s.MaxConcurrentPulls, err = fs.GetInt("max-concurrent-pulls"); return err })
	get("max-concurrent-builds", func() error { s.MaxConcurrentBuilds, err = fs.GetInt("max-concurrent-builds"); return err })
	get("inactive-timeout-minutes", func() error {
		s.InactiveTimeoutMinutes, err = fs.GetInt("inactive-timeout-minutes")
		return err
	})
	get("canary-percent", func() error { s.CanaryPercent, err = fs.GetFloat64("canary-percent"); return err })
	get("connectivity-mode", func() error { s.ConnectivityMode, err = fs.GetString("connectivity-mode"); return err })
	get("max-queue-depth", func() error { s.MaxQueueDepth, err = fs.GetInt("max-queue-depth"); return err })
	get("max-global-concurrent", func() error { s.MaxGlobalConcurrent, err = fs.GetInt("max-global-concurrent"); return err })
	get("per-project-limit", func() error { s.PerProjectLimit, err = fs.GetInt("per-project-limit"); return err })
	get("per-repo-limit", func() error { s.PerRepoLimit, err = fs.GetInt("per-repo-limit"); return err })
	get("runtime-hard-timeout", func() error { s.RuntimeHardTimeout, err = fs.GetDuration("runtime-hard-timeout"); return err })
	get("recycle-after-run", func() error { s.RecycleAfterRun, err = fs.GetBool("recycle-after-run"); return err })
	get("default-cpu-cores", func() error { s.DefaultCPUCores, err = fs.GetFloat64("default-cpu-cores"); return err })
	get("default-memory-mib", func() error { s.DefaultMemoryMiB, err = fs.GetInt64("default-memory-mib"); return err })
	get("pid-limit", func() error { s.PIDLimit, err = fs.GetInt64("pid-limit"); return err })
	get("fd-limit", func() error { s.FDLimit, err = fs.GetUint64("fd-limit"); return err })
	get("container-network", func() error { s.ContainerNetwork, err = fs.GetString("container-network"); return err })
	get("containerd-socket", func() error { s.ContainerdSocket, err = fs.GetString("containerd-socket"); return err })
	get("data-dir", func() error { s.DataDir, err = fs.GetString("data-dir"); return err })

	return s, err
}

// LoadYAML reads a RuntimeSettings document from path, overlaying it on
// Defaults(). A missing file is not an error: Defaults() is returned
// unchanged.
func LoadYAML(path string) (RuntimeSettings, error) {
	s := Defaults()
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse settings file %s: %w", path, err)
	}
	return s, nil
}
