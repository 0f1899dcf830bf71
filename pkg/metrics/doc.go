/*
Package metrics provides Prometheus metrics collection and exposition for the
taskrun control plane.

The package defines and registers every taskrun metric using the Prometheus
client library, giving observability into runtime registry occupancy, run
admission and lifecycle, image resolution, and dispatch latency. Metrics are
exposed via an HTTP endpoint for scraping by a Prometheus server, alongside a
generic health/readiness/liveness subsystem used by the daemon's probes.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │              Two update paths               │          │
	│  │                                              │          │
	│  │  Polled: Collector ticks every 15s and      │          │
	│  │    re-reads registry/store/route-table      │          │
	│  │    state into gauges.                       │          │
	│  │  Inline: counters and histograms are         │          │
	│  │    incremented/observed at the call site     │          │
	│  │    in dispatch, lifecycle, imageresolver.     │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint               │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Format: Prometheus text exposition       │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Metrics Catalog

Runtime registry metrics:

taskrun_runtimes_total{state}:
  - Type: Gauge
  - Total managed runtimes by lifecycle state (starting/ready/busy/draining/
    stopping/offline/failed)

taskrun_runtime_slots_in_use / taskrun_runtime_slots_available:
  - Type: Gauge
  - Sum of active_slots / max_slots across all registered runtimes

Run metrics:

taskrun_runs_by_state{state}:
  - Type: Gauge
  - Current number of runs per RunState

taskrun_run_queue_depth:
  - Type: Gauge
  - Number of runs currently queued awaiting admission

taskrun_runs_dispatched_total, taskrun_runs_completed_total:
  - Type: Counter

taskrun_runs_failed_total{failure_class}:
  - Type: Counter
  - Labeled by the run's FailureClass at the point it was marked failed

taskrun_dispatch_latency_seconds:
  - Type: Histogram
  - Time from Dispatch's admission check to the run reaching "started"

taskrun_retries_scheduled_total:
  - Type: Counter

Image resolution metrics:

taskrun_image_resolutions_total{source, outcome}:
  - Type: Counter
  - source: pull/build/peer/local, empty when nothing was resolved;
    outcome: resolved/failed

taskrun_image_resolution_duration_seconds:
  - Type: Histogram

Lifecycle metrics:

taskrun_container_create_duration_seconds:
  - Type: Histogram
  - Time spent in createAndStart (engine create + start)

taskrun_container_spawn_duration_seconds:
  - Type: Histogram
  - Total Spawn() wall time, from lease acquisition to ready

taskrun_containers_spawned_total, taskrun_containers_spawn_failed_total:
  - Type: Counter

taskrun_reconciliation_duration_seconds, taskrun_reconciliation_cycles_total:
  - Type: Histogram, Counter
  - One observation/increment per Reconciler.reconcile() pass

Proxy metrics:

taskrun_proxy_routes_active:
  - Type: Gauge
  - Polled from RouteTable.Count()

taskrun_proxy_routes_expired_total:
  - Type: Counter
  - Incremented once per run ID returned by RouteTable.Sweep()

# Health Checks

The health.go file implements a component health registry independent of the
metrics catalog above: RegisterComponent/UpdateComponent record per-component
health, GetHealth aggregates them for /health, and GetReadiness additionally
gates on a fixed critical-component list (containerd, store, dispatch) for
/ready. /live is a constant liveness probe that only reports process uptime.

# Usage

	metrics.SetVersion(buildVersion)
	metrics.RegisterComponent("containerd", true, "")
	metrics.RegisterComponent("store", true, "")
	metrics.RegisterComponent("dispatch", true, "")

	collector := metrics.NewCollector(registry, store, routeTable)
	collector.Start()
	defer collector.Stop()

	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
*/
package metrics
