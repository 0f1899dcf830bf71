package storage

import (
	"github.com/cuemby/taskrun/pkg/types"
)

// Store defines the persistence operations the orchestrator needs
//: read access to repositories/tasks/projects, run
// CRUD and state transitions, run logs, findings, runtime-registration
// heartbeats, provider secrets, and global settings. It is a typed
// operation surface, not a generic document store.
type Store interface {
	// Repositories, tasks, projects (read-mostly reference data)
	GetRepository(id string) (*types.Repository, error)
	GetTask(id string) (*types.Task, error)
	GetProject(id string) (*types.Project, error)

	// Runs
	CreateRun(run *types.Run) error
	GetRun(id string) (*types.Run, error)
	ListRunsByTask(taskID string) ([]*types.Run, error)
	ListRunsByState(state types.RunState) ([]*types.Run, error)
	CountActiveRunsByProject(projectID string) (int, error)
	CountActiveRunsByRepository(repoID string) (int, error)
	CountActiveRunsByTask(taskID string) (int, error)
	CountActiveRuns() (int, error)
	CountQueuedRuns() (int, error)
	UpdateRunState(id string, state types.RunState) error
	SetRunRuntime(id string, runtimeID string) error
	SetRunFailure(id string, class types.FailureClass, message string) error
	SetRunProxyRoute(id string, routeID string) error
	MarkRunPendingApproval(id string) error
	MarkRunStarted(id, runtimeID, imageRef, imageDigest string, imageSource types.ImageSource) error
	MarkRunCompleted(id string, succeeded bool, summary, outputJSON string, failureClass types.FailureClass, prURL string) error

	// Run logs
	AppendRunLog(event *types.RunLogEvent) error
	ListRunLogs(runID string, sinceSeq int64) ([]*types.RunLogEvent, error)

	// Findings
	CreateFinding(finding *types.Finding) error
	ListFindingsByRun(runID string) ([]*types.Finding, error)

	// Runtime registrations (persisted mirror of the in-memory registry)
	UpsertRuntimeRegistration(entry *types.RuntimeEntry) error
	GetRuntimeRegistration(id string) (*types.RuntimeEntry, error)
	ListRuntimeRegistrations() ([]*types.RuntimeEntry, error)
	DeleteRuntimeRegistration(id string) error
	MarkStaleRegistrationsOffline(olderThanSeconds int64) (int, error)

	// Provider secrets and harness provider settings
	GetProviderSecret(provider, key string) (string, error)
	PutProviderSecret(provider, key, value string) error
	GetHarnessProviderSettings(provider string) (map[string]string, error)

	// Global settings
	GetSetting(key string) (string, error)
	PutSetting(key, value string) error

	Close() error
}
