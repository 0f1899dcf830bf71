package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Runtime registry metrics
	RuntimesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskrun_runtimes_total",
			Help: "Total number of managed runtime containers by lifecycle state",
		},
		[]string{"state"},
	)

	RuntimeSlotsInUse = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskrun_runtime_slots_in_use",
			Help: "Sum of active_slots across all registered runtimes",
		},
	)

	RuntimeSlotsAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskrun_runtime_slots_available",
			Help: "Sum of max_slots across all registered runtimes",
		},
	)

	// Run metrics
	RunsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "taskrun_runs_by_state",
			Help: "Current number of runs by lifecycle state",
		},
		[]string{"state"},
	)

	RunQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskrun_run_queue_depth",
			Help: "Number of runs currently queued awaiting admission",
		},
	)

	RunsDispatchedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrun_runs_dispatched_total",
			Help: "Total number of runs successfully dispatched to a runtime",
		},
	)

	RunsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskrun_runs_failed_total",
			Help: "Total number of runs that ended in failure, by failure class",
		},
		[]string{"failure_class"},
	)

	RunsCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrun_runs_completed_total",
			Help: "Total number of runs that completed successfully",
		},
	)

	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskrun_dispatch_latency_seconds",
			Help:    "Time taken for Dispatch to admit and start a run, in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetriesScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrun_retries_scheduled_total",
			Help: "Total number of automatic retry attempts scheduled",
		},
	)

	// Image resolution metrics
	ImageResolutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskrun_image_resolutions_total",
			Help: "Total number of image resolutions by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	ImageResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskrun_image_resolution_duration_seconds",
			Help:    "Time taken to resolve an image (pull, build, or peer fetch) in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Lifecycle (spawn / reconcile) metrics
	ContainerCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskrun_container_create_duration_seconds",
			Help:    "Time taken to create and start a runtime container in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ContainerSpawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskrun_container_spawn_duration_seconds",
			Help:    "Total time taken for Spawn to return a ready runtime, in seconds",
			Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
	)

	ContainersSpawnedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrun_containers_spawned_total",
			Help: "Total number of runtime containers successfully spawned",
		},
	)

	ContainersSpawnFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrun_containers_spawn_failed_total",
			Help: "Total number of failed spawn attempts",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taskrun_reconciliation_duration_seconds",
			Help:    "Time taken for a registry reconciliation cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrun_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles completed",
		},
	)

	// Dispatch proxy metrics
	ProxyRoutesActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskrun_proxy_routes_active",
			Help: "Number of live proxy routes registered for in-flight runs",
		},
	)

	ProxyRoutesExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskrun_proxy_routes_expired_total",
			Help: "Total number of proxy routes removed by TTL expiry sweeps",
		},
	)
)

func init() {
	prometheus.MustRegister(RuntimesTotal)
	prometheus.MustRegister(RuntimeSlotsInUse)
	prometheus.MustRegister(RuntimeSlotsAvailable)
	prometheus.MustRegister(RunsByState)
	prometheus.MustRegister(RunQueueDepth)
	prometheus.MustRegister(RunsDispatchedTotal)
	prometheus.MustRegister(RunsFailedTotal)
	prometheus.MustRegister(RunsCompletedTotal)
	prometheus.MustRegister(DispatchLatency)
	prometheus.MustRegister(RetriesScheduledTotal)

	prometheus.MustRegister(ImageResolutionsTotal)
	prometheus.MustRegister(ImageResolutionDuration)

	prometheus.MustRegister(ContainerCreateDuration)
	prometheus.MustRegister(ContainerSpawnDuration)
	prometheus.MustRegister(ContainersSpawnedTotal)
	prometheus.MustRegister(ContainersSpawnFailedTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)

	prometheus.MustRegister(ProxyRoutesActive)
	prometheus.MustRegister(ProxyRoutesExpiredTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
