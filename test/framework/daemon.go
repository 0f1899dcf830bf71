package framework

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/cuemby/taskrun/pkg/client"
)

// DefaultDaemonConfig returns a daemon configuration read from the
// environment, falling back to sensible local defaults.
func DefaultDaemonConfig() *DaemonConfig {
	binary := os.Getenv("TASKRUND_BINARY")
	if binary == "" {
		binary = "bin/taskrund"
	}

	dataDir := os.Getenv("TASKRUND_TEST_DATA_DIR")
	if dataDir == "" {
		dataDir = "/tmp/taskrund-test"
	}

	return &DaemonConfig{
		Binary:           binary,
		DataDir:          dataDir,
		MetricsAddr:      "127.0.0.1:19090",
		ControlAddr:      "127.0.0.1:19091",
		ContainerdSocket: "/run/containerd/containerd.sock",
		LogLevel:         "info",
		KeepOnFailure:    false,
	}
}

// NewDaemon constructs a Daemon from the given configuration without
// starting its process.
func NewDaemon(cfg *DaemonConfig) *Daemon {
	if cfg == nil {
		cfg = DefaultDaemonConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		Config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the taskrund binary under test and blocks until its
// control API answers a ListRuntimes call or the timeout elapses.
func (d *Daemon) Start() error {
	if err := os.MkdirAll(d.Config.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	process := NewProcess(d.Config.Binary)
	process.Args = []string{
		"start",
		"--node-id=" + "test-daemon",
		"--data-dir=" + d.Config.DataDir,
		"--metrics-addr=" + d.Config.MetricsAddr,
		"--control-addr=" + d.Config.ControlAddr,
		"--containerd-socket=" + d.Config.ContainerdSocket,
		"--log-level=" + d.Config.LogLevel,
	}

	if err := process.Start(); err != nil {
		return fmt.Errorf("failed to start taskrund process: %w", err)
	}
	d.Process = process

	if err := d.waitForControlAPI(30 * time.Second); err != nil {
		_ = process.Stop()
		return fmt.Errorf("control API not ready: %w", err)
	}

	rawClient, err := client.NewClient(d.Config.ControlAddr)
	if err != nil {
		_ = process.Stop()
		return fmt.Errorf("failed to create control API client: %w", err)
	}
	d.Client = rawClient

	return nil
}

// Stop gracefully stops the daemon process and closes its client.
func (d *Daemon) Stop() error {
	if d.Client != nil {
		d.Client.Close()
	}
	if d.Process != nil {
		return d.Process.Stop()
	}
	return nil
}

// Cleanup stops the daemon and removes its data directory, unless the
// config asks to keep it around for post-mortem inspection.
func (d *Daemon) Cleanup() error {
	if err := d.Stop(); err != nil {
		fmt.Printf("Warning: error stopping daemon: %v\n", err)
	}
	d.cancel()

	if !d.Config.KeepOnFailure {
		if err := os.RemoveAll(d.Config.DataDir); err != nil {
			return fmt.Errorf("failed to remove data dir: %w", err)
		}
	}
	return nil
}

func (d *Daemon) waitForControlAPI(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(d.ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for control API at %s: %w", d.Config.ControlAddr, ctx.Err())
		case <-ticker.C:
			c, err := client.NewClient(d.Config.ControlAddr)
			if err != nil {
				continue
			}
			_, err = c.ListRuntimes()
			c.Close()
			if err == nil {
				return nil
			}
		}
	}
}
