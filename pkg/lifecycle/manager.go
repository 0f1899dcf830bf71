package lifecycle

import (
	"sync"
	"time"

	"github.com/cuemby/taskrun/pkg/config"
	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/imageresolver"
	"github.com/cuemby/taskrun/pkg/lease"
	"github.com/cuemby/taskrun/pkg/registry"
	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/types"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

// LeaseAcquirer is the subset of lease.Coordinator the lifecycle
// manager needs for the worker-scale spawn lease and the
// worker-reconciler loop lease.
type LeaseAcquirer interface {
	TryAcquire(key string, ttl time.Duration) (*lease.Lease, error)
}

// pressureSample pairs a stats snapshot with when it was taken, so the
// next sample has something to diff against.
type pressureSample struct {
	stats     engine.StatsSample
	sampledAt time.Time
}

// Manager implements the Runtime Lifecycle Manager: refresh,
// acquire-for-dispatch, spawn, the scale-out budget, stop/drain/
// recycle/idle-shutdown, pressure calculation and reconciliation. The
// refresh/reconciliation loops share a ticker + single mutex +
// Start/Stop/stopCh shape; spawn is a linear create-start-monitor
// sequence.
type Manager struct {
	registry *registry.Registry
	engine   engine.Engine
	resolver *imageresolver.Resolver
	leases   LeaseAcquirer
	store    storage.Store
	clients  *workerrpc.ClientCache
	settings config.RuntimeSettings

	refreshMu     sync.Mutex
	lastRefreshAt time.Time

	spawnMu sync.Mutex

	budgetMu sync.Mutex
	budgets  map[string]*types.DispatchBudget

	prevStatsMu sync.Mutex
	prevSamples map[string]pressureSample
}

// New builds a Manager wired to its dependencies.
func New(
	reg *registry.Registry,
	eng engine.Engine,
	resolver *imageresolver.Resolver,
	leases LeaseAcquirer,
	store storage.Store,
	clients *workerrpc.ClientCache,
	settings config.RuntimeSettings,
) *Manager {
	return &Manager{
		registry:    reg,
		engine:      eng,
		resolver:    resolver,
		leases:      leases,
		store:       store,
		clients:     clients,
		settings:    settings,
		budgets:     make(map[string]*types.DispatchBudget),
		prevSamples: make(map[string]pressureSample),
	}
}
