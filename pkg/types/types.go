// Package types defines the shared data model for the task-runtime
// orchestrator: runtime entries, image state, dispatch budgets, run
// documents and the harness result envelope.
package types

import "time"

// LifecycleState is the observed lifecycle state of a managed runtime
// container.
type LifecycleState string

const (
	LifecycleStarting LifecycleState = "starting"
	LifecycleReady    LifecycleState = "ready"
	LifecycleBusy     LifecycleState = "busy"
	LifecycleDraining LifecycleState = "draining"
	LifecycleStopping LifecycleState = "stopping"
	LifecycleOffline  LifecycleState = "offline"
	LifecycleFailed   LifecycleState = "failed"
)

// ImageSource records how an image reached the local content store.
type ImageSource string

const (
	ImageSourcePull  ImageSource = "pull"
	ImageSourceBuild ImageSource = "build"
	ImageSourcePeer  ImageSource = "peer"
	ImageSourceLocal ImageSource = "local"
)

// ConnectivityMode controls how a runtime's RPC endpoint is reached.
type ConnectivityMode string

const (
	ConnectivityBridge   ConnectivityMode = "bridge"
	ConnectivityHostPort ConnectivityMode = "host_port"
	ConnectivityOverlay  ConnectivityMode = "overlay"
)

// RuntimeEntry is the authoritative record of a managed runtime
// container held by the Runtime Registry.
//
// Invariants:
//
//	(a) ID is unique and immutable for the lifetime of the entry.
//	(b) ActiveSlots never exceeds MaxSlots.
//	(c) Endpoint is non-empty whenever State is Ready or Busy.
//	(d) LastHeartbeatAt only moves forward.
//	(e) ImageRef and ImageDigest are set together or not at all.
type RuntimeEntry struct {
	ID              string
	Endpoint        string
	State           LifecycleState
	ActiveSlots     int
	MaxSlots        int
	ImageRef        string
	ImageDigest     string
	ImageSource     ImageSource
	TaskID          string
	RepositoryID    string
	IsCanary        bool
	IsDraining      bool
	CPUPercent      float64
	MemoryPercent   float64
	CreatedAt       time.Time
	LastHeartbeatAt time.Time
	StartedAt       time.Time
}

// HasCapacity reports whether the runtime can accept another slot.
func (r *RuntimeEntry) HasCapacity() bool {
	if r.IsDraining {
		return false
	}
	if r.State != LifecycleReady && r.State != LifecycleBusy {
		return false
	}
	return r.ActiveSlots < r.MaxSlots
}

// ImageState tracks the resolution state of a single image reference,
// guarded by the per-image mutex in pkg/imageresolver.
type ImageState struct {
	Ref            string
	Digest         string
	Available      bool
	Source         ImageSource
	LastResolvedAt time.Time
	LastFailureAt  time.Time
	FailureCount   int
	CooldownUntil  time.Time
}

// InCooldown reports whether the image is still cooling down after a
// recent resolution failure.
func (s *ImageState) InCooldown(now time.Time) bool {
	return now.Before(s.CooldownUntil)
}

// DispatchBudget is the rolling scale-out budget tracked per task over
// a 10-minute window.
type DispatchBudget struct {
	TaskID        string
	WindowStart   time.Time
	StartAttempts int
	FailedStarts  int
	CooldownUntil time.Time
}

// Exhausted reports whether the budget has tripped its failure
// threshold for the current window.
func (b *DispatchBudget) Exhausted(now time.Time, maxAttempts, maxFailures int) bool {
	if now.Before(b.CooldownUntil) {
		return true
	}
	if now.Sub(b.WindowStart) > 10*time.Minute {
		return false
	}
	return b.StartAttempts >= maxAttempts || b.FailedStarts >= maxFailures
}

// RunState is the lifecycle state of a dispatched run.
type RunState string

const (
	RunQueued          RunState = "queued"
	RunPendingApproval RunState = "pending_approval"
	RunApproved        RunState = "approved"
	RunDenied          RunState = "denied"
	RunDispatched      RunState = "dispatched"
	RunStarted         RunState = "started"
	RunCompleted       RunState = "completed"
	RunFailed          RunState = "failed"
	RunCancelled       RunState = "cancelled"
)

// FailureClass classifies why a run failed, derived from the harness
// envelope or dispatch-time errors.
type FailureClass string

const (
	FailureNone             FailureClass = ""
	FailureValidation       FailureClass = "validation"
	FailureTimeout          FailureClass = "timeout"
	FailureCancelled        FailureClass = "cancelled"
	FailureInfra            FailureClass = "infra"
	FailureUnknown          FailureClass = "unknown"
	FailureAdmissionControl FailureClass = "admission_control"
)

// Run is the persisted document describing one task execution attempt.
type Run struct {
	ID             string
	TaskID         string
	RepositoryID   string
	ProjectID      string
	Attempt        int
	State          RunState
	ApprovalState  string
	RuntimeID      string
	ProxyRouteID   string
	ImageRef       string
	ImageDigest    string
	ImageSource    ImageSource
	Succeeded      bool
	Summary        string
	OutputJSON     string
	PRURL          string
	FailureClass   FailureClass
	FailureMessage string
	CreatedAt      time.Time
	StartedAt      time.Time
	EndedAt        time.Time
	Timeout        time.Duration
}

// RunLogEvent is a single persisted log line or structured event
// emitted by a run.
type RunLogEvent struct {
	RunID     string
	Seq       int64
	Stream    string
	Data      string
	EmittedAt time.Time
}

// Finding is created when a run's harness envelope reports a failure
// worth surfacing to a human.
type Finding struct {
	ID        string
	RunID     string
	TaskID    string
	Title     string
	Detail    string
	CreatedAt time.Time
}

// HarnessResultEnvelope is the structured outcome a worker reports when
// a run's harness process exits.
type HarnessResultEnvelope struct {
	RunID        string
	Success      bool
	ExitCode     int
	FailureClass FailureClass
	Message      string
	Summary      string
}

// Task describes a schedulable unit of work.
type Task struct {
	ID               string
	RepositoryID     string
	Slug             string
	ApprovalProfile  string
	ConcurrencyLimit int
	ExecutionTimeout time.Duration
	Retry            RetryPolicy
	Harness          string
	Image            string
	CanaryImage      string
	ImagePolicy      ImagePolicy
}

// RequiresApproval reports whether dispatching a run of this task must
// stop at PendingApproval rather than proceed straight to admission
// control. A non-empty approval profile name is treated as "approval
// required"; there is no separate boolean in the Store schema.
func (t *Task) RequiresApproval() bool {
	return t.ApprovalProfile != ""
}

// RetryPolicy controls exponential-backoff retry scheduling for a task.
type RetryPolicy struct {
	MaxAttempts      int
	BaseDelaySeconds int
	Multiplier       float64
}

// ImagePolicy controls how the Image Resolver guarantees availability.
type ImagePolicy string

const (
	ImagePolicyPullOnly      ImagePolicy = "pull_only"
	ImagePolicyBuildOnly     ImagePolicy = "build_only"
	ImagePolicyPullThenBuild ImagePolicy = "pull_then_build"
	ImagePolicyBuildThenPull ImagePolicy = "build_then_pull"
	ImagePolicyPreferLocal   ImagePolicy = "prefer_local"
)

// Repository and Project are referenced by dispatch admission control.
type Repository struct {
	ID            string
	ProjectID     string
	GitURL        string
	DefaultBranch string
	Slug          string
}

type Project struct {
	ID   string
	Slug string
}
