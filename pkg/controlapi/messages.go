package controlapi

// RuntimeSummary is a wire-friendly projection of a registry entry for
// operator tooling ("inspect registry" CLI use case).
type RuntimeSummary struct {
	ID            string  `json:"id"`
	Endpoint      string  `json:"endpoint"`
	State         string  `json:"state"`
	ActiveSlots   int     `json:"active_slots"`
	MaxSlots      int     `json:"max_slots"`
	ImageRef      string  `json:"image_ref"`
	ImageSource   string  `json:"image_source"`
	TaskID        string  `json:"task_id"`
	RepositoryID  string  `json:"repository_id"`
	IsCanary      bool    `json:"is_canary"`
	IsDraining    bool    `json:"is_draining"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
}

// ListRuntimesRequest has no filters yet; the full registry is small
// enough to return in one response.
type ListRuntimesRequest struct{}

// ListRuntimesResponse carries the whole runtime registry snapshot.
type ListRuntimesResponse struct {
	Runtimes []RuntimeSummary `json:"runtimes"`
}

// RecycleRuntimeRequest asks the daemon to drain and force-stop a
// runtime out of band, independent of the normal post-run recycle.
type RecycleRuntimeRequest struct {
	RuntimeID string `json:"runtime_id"`
}

// RecycleRuntimeResponse reports whether the recycle was accepted.
type RecycleRuntimeResponse struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// TailEventsRequest opens a subscription to the daemon's event broker.
// An empty Types list means every event type.
type TailEventsRequest struct {
	Types []string `json:"types,omitempty"`
}

// EventMessage mirrors events.Event over the wire, one per stream
// message.
type EventMessage struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	TimestampMs int64             `json:"timestamp_ms"`
	Message     string            `json:"message,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}
