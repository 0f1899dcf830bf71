package framework

import (
	"context"
	"time"

	"github.com/cuemby/taskrun/pkg/client"
)

// DaemonConfig describes a single taskrund process to launch for a
// test, mirroring the flags cmd/taskrund/main.go's start subcommand
// exposes.
type DaemonConfig struct {
	// Binary is the path to the taskrund binary under test.
	Binary string
	// DataDir is the BoltDB/lease data directory for this process.
	DataDir string
	// MetricsAddr is the bind address for /metrics, /health, /ready, /live.
	MetricsAddr string
	// ControlAddr is the bind address for the operator control API.
	ControlAddr string
	// ContainerdSocket points at the containerd socket the engine dials.
	ContainerdSocket string
	// LogLevel sets the daemon's log verbosity.
	LogLevel string
	// KeepOnFailure makes Cleanup leave the data directory in place, for
	// post-mortem inspection. Cleanup still stops the process, and it
	// keeps the directory whether or not the test failed.
	KeepOnFailure bool
}

// Daemon represents a running taskrund process under test.
type Daemon struct {
	Config  *DaemonConfig
	Process *Process
	Client  *client.Client

	ctx    context.Context
	cancel context.CancelFunc
}

// Process is defined in process.go (to avoid duplication).

// TestContext provides utilities for test execution.
type TestContext struct {
	T       TestingT
	Ctx     context.Context
	Cancel  context.CancelFunc
	Timeout time.Duration
	cleanup []func()
}

// TestingT is an interface matching testing.T.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}

// RepositorySpec defines a repository for testing.
type RepositorySpec struct {
	Slug          string
	GitURL        string
	DefaultBranch string
}

// TaskSpec defines a task for testing.
type TaskSpec struct {
	Slug             string
	Harness          string
	Image            string
	ConcurrencyLimit int
	ApprovalProfile  string
}

// RunSpec defines a run request for testing.
type RunSpec struct {
	TaskSlug string
	Branch   string
}
