package metrics

import (
	"time"

	"github.com/cuemby/taskrun/pkg/registry"
	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/types"
)

// RouteCounter is the subset of dispatch.RouteTable the collector
// needs. Kept as a narrow local interface (rather than importing
// pkg/dispatch directly) since pkg/dispatch imports pkg/metrics to
// record its own inline counters, and a direct import back would
// cycle.
type RouteCounter interface {
	Count() int
}

// Collector polls the runtime registry, run store, and proxy route
// table on a fixed interval and republishes their current state as
// gauges. Counters and histograms that correspond to discrete events
// (a dispatch, a spawn, a retry) are incremented inline where those
// events happen instead, grounded on the same division of labor the
// collector here mirrors for polled state.
type Collector struct {
	registry *registry.Registry
	store    storage.Store
	routes   RouteCounter
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(reg *registry.Registry, store storage.Store, routes RouteCounter) *Collector {
	return &Collector{
		registry: reg,
		store:    store,
		routes:   routes,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectRuntimeMetrics()
	c.collectRunMetrics()
	c.collectProxyMetrics()
}

func (c *Collector) collectRuntimeMetrics() {
	entries := c.registry.List()

	counts := make(map[types.LifecycleState]int)
	var slotsInUse, slotsAvailable int

	for _, e := range entries {
		counts[e.State]++
		slotsInUse += e.ActiveSlots
		slotsAvailable += e.MaxSlots
	}

	states := []types.LifecycleState{
		types.LifecycleStarting, types.LifecycleReady, types.LifecycleBusy,
		types.LifecycleDraining, types.LifecycleStopping, types.LifecycleOffline,
		types.LifecycleFailed,
	}
	for _, s := range states {
		RuntimesTotal.WithLabelValues(string(s)).Set(float64(counts[s]))
	}

	RuntimeSlotsInUse.Set(float64(slotsInUse))
	RuntimeSlotsAvailable.Set(float64(slotsAvailable))
}

func (c *Collector) collectRunMetrics() {
	states := []types.RunState{
		types.RunQueued, types.RunPendingApproval, types.RunApproved, types.RunDenied,
		types.RunDispatched, types.RunStarted, types.RunCompleted, types.RunFailed,
		types.RunCancelled,
	}
	for _, s := range states {
		runs, err := c.store.ListRunsByState(s)
		if err != nil {
			continue
		}
		RunsByState.WithLabelValues(string(s)).Set(float64(len(runs)))
	}

	if depth, err := c.store.CountQueuedRuns(); err == nil {
		RunQueueDepth.Set(float64(depth))
	}
}

func (c *Collector) collectProxyMetrics() {
	ProxyRoutesActive.Set(float64(c.routes.Count()))
}
