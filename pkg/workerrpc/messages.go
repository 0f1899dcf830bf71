package workerrpc

// SandboxLimits carries the resource envelope for a dispatched job,
// parsed from task/runtime configuration into concrete units.
type SandboxLimits struct {
	CPUCores    float64 `json:"cpu_cores"`
	MemoryBytes int64   `json:"memory_bytes"`
}

// DispatchJobRequest is the job composed by the dispatcher and handed
// to a worker over the RPC channel.
type DispatchJobRequest struct {
	RunID          string            `json:"run_id"`
	TaskID         string            `json:"task_id"`
	RepositoryID   string            `json:"repository_id"`
	Attempt        int               `json:"attempt"`
	BranchName     string            `json:"branch_name"`
	Harness        string            `json:"harness"`
	Image          string            `json:"image"`
	Env            map[string]string `json:"env"`
	Secrets        map[string]string `json:"secrets"`
	Sandbox        SandboxLimits     `json:"sandbox"`
	ArtifactPolicy string            `json:"artifact_policy"`
	TimeoutSeconds int64             `json:"timeout_seconds"`
	Labels         map[string]string `json:"labels"`
}

// DispatchJobResponse reports whether the worker accepted the job.
type DispatchJobResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// CancelJobRequest asks a worker to cancel a running job.
type CancelJobRequest struct {
	RunID string `json:"run_id"`
}

// CancelJobResponse is an empty acknowledgement.
type CancelJobResponse struct{}

// HeartbeatRequest is sent both as the periodic liveness probe and,
// with a synthetic probe ID, as the wait-ready check during spawn.
type HeartbeatRequest struct {
	RuntimeID   string `json:"runtime_id"`
	HostName    string `json:"host_name"`
	ActiveSlots int    `json:"active_slots"`
	MaxSlots    int    `json:"max_slots"`
	TimestampMs int64  `json:"timestamp_ms"`
}

// HeartbeatResponse is an empty acknowledgement.
type HeartbeatResponse struct{}

// JobEvent is pushed server-to-client (worker-to-dispatcher) over the
// EventHub stream for a single run.
type JobEvent struct {
	RunID       string            `json:"run_id"`
	EventType   string            `json:"event_type"`
	Summary     string            `json:"summary,omitempty"`
	Error       string            `json:"error,omitempty"`
	TimestampMs int64             `json:"timestamp_ms"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// WorkerStatus is pushed server-to-client alongside JobEvents to
// report the worker's own capacity.
type WorkerStatus struct {
	WorkerID    string `json:"worker_id"`
	Status      string `json:"status"`
	ActiveSlots int    `json:"active_slots"`
	MaxSlots    int    `json:"max_slots"`
}

// ServerEventEnvelope is the single wire message carrying either a
// JobEvent or a WorkerStatus, since the stream interleaves both.
type ServerEventEnvelope struct {
	JobEvent     *JobEvent     `json:"job_event,omitempty"`
	WorkerStatus *WorkerStatus `json:"worker_status,omitempty"`
}

// ClientEventEnvelope is what the dispatcher sends upstream on the
// EventHub stream: a one-time subscribe request, no further messages
// expected.
type ClientEventEnvelope struct {
	Subscribe bool `json:"subscribe"`
}
