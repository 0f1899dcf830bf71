package integration

import (
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/cuemby/taskrun/test/framework"
)

// TestDaemonHealthEndpoints starts a real taskrund process and checks
// that its health/readiness/liveness HTTP surface responds once the
// control API is up.
func TestDaemonHealthEndpoints(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := framework.DefaultDaemonConfig()
	cfg.DataDir = t.TempDir()

	d := framework.NewDaemon(cfg)
	if err := d.Start(); err != nil {
		t.Skipf("taskrund binary not available or failed to start: %v", err)
	}
	defer func() { _ = d.Cleanup() }()

	httpClient := &http.Client{Timeout: 5 * time.Second}

	for _, path := range []string{"/health", "/ready", "/live", "/metrics"} {
		resp, err := httpClient.Get("http://" + cfg.MetricsAddr + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 500 {
			t.Errorf("GET %s returned %d: %s", path, resp.StatusCode, body)
		}
	}
}

// TestControlAPIListRuntimesEmpty verifies a freshly started daemon
// with no containers reports an empty runtime registry over the
// control API.
func TestControlAPIListRuntimesEmpty(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := framework.DefaultDaemonConfig()
	cfg.DataDir = t.TempDir()

	d := framework.NewDaemon(cfg)
	if err := d.Start(); err != nil {
		t.Skipf("taskrund binary not available or failed to start: %v", err)
	}
	defer func() { _ = d.Cleanup() }()

	runtimes, err := d.Client.ListRuntimes()
	if err != nil {
		t.Fatalf("ListRuntimes: %v", err)
	}
	if len(runtimes) != 0 {
		t.Errorf("expected no runtimes on a fresh daemon, got %d", len(runtimes))
	}
}

// TestControlAPIRecycleUnknownRuntime verifies that recycling an
// unknown runtime ID fails cleanly instead of hanging or panicking.
func TestControlAPIRecycleUnknownRuntime(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	cfg := framework.DefaultDaemonConfig()
	cfg.DataDir = t.TempDir()

	d := framework.NewDaemon(cfg)
	if err := d.Start(); err != nil {
		t.Skipf("taskrund binary not available or failed to start: %v", err)
	}
	defer func() { _ = d.Cleanup() }()

	err := d.Client.RecycleRuntime("does-not-exist")
	if err == nil {
		t.Fatal("expected an error recycling an unknown runtime, got nil")
	}
}
