package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/types"
)

// Registry owns the authoritative in-memory map of managed runtime
// containers, protected for concurrent reads and mutations. Every
// mutation is mirrored to the Store.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*types.RuntimeEntry
	store   storage.Store
}

// New creates an empty Registry backed by store.
func New(store storage.Store) *Registry {
	return &Registry{entries: make(map[string]*types.RuntimeEntry), store: store}
}

// List returns an ordered snapshot of every entry, sorted by
// runtime_id case-insensitively.
func (r *Registry) List() []*types.RuntimeEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*types.RuntimeEntry, 0, len(r.entries))
	for _, e := range r.entries {
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ID) < strings.ToLower(out[j].ID)
	})
	return out
}

// Get returns a copy of the entry for id, if present.
func (r *Registry) Get(id string) (*types.RuntimeEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	clone := *e
	return &clone, true
}

// UpsertFromContainer creates a new entry if absent; otherwise merges
// the observed fields (image, endpoint, running-ness, max slots)
// without overwriting fields owned by the lifecycle path
// (active_slots, is_draining, and lifecycle_state while draining).
func (r *Registry) UpsertFromContainer(observed *types.RuntimeEntry) (*types.RuntimeEntry, error) {
	r.mu.Lock()
	existing, had := r.entries[observed.ID]
	if !had {
		created := *observed
		if created.CreatedAt.IsZero() {
			created.CreatedAt = time.Now()
		}
		r.entries[observed.ID] = &created
		result := created
		r.mu.Unlock()
		return &result, r.mirror(&result)
	}

	existing.Endpoint = observed.Endpoint
	existing.ImageRef = observed.ImageRef
	existing.ImageDigest = observed.ImageDigest
	existing.ImageSource = observed.ImageSource
	if observed.MaxSlots > 0 {
		existing.MaxSlots = observed.MaxSlots
	}
	if observed.TaskID != "" {
		existing.TaskID = observed.TaskID
	}
	if observed.RepositoryID != "" {
		existing.RepositoryID = observed.RepositoryID
	}
	if !existing.IsDraining {
		existing.State = observed.State
	}
	result := *existing
	r.mu.Unlock()
	return &result, r.mirror(&result)
}

// Remove deletes the entry for id, returning the removed value.
func (r *Registry) Remove(id string) (*types.RuntimeEntry, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return nil, false
	}
	if err := r.store.DeleteRuntimeRegistration(id); err != nil {
		// Benign: the in-memory view is already authoritative for the
		// caller; a stale Store row is swept by MarkStaleRegistrationsOffline.
		_ = err
	}
	return e, true
}

// ApplyHeartbeat clamps active slots, updates max slots when positive,
// recomputes lifecycle state, and bumps last-activity timing.
func (r *Registry) ApplyHeartbeat(id string, active, max int) (*types.RuntimeEntry, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("apply heartbeat: unknown runtime %s", id)
	}

	if active < 0 {
		active = 0
	}
	wasActive := e.ActiveSlots > 0
	e.ActiveSlots = active
	if max > 0 {
		e.MaxSlots = max
	}

	switch {
	case active > 0:
		e.State = types.LifecycleBusy
	case e.IsDraining:
		e.State = types.LifecycleDraining
	default:
		e.State = types.LifecycleReady
	}

	if active > 0 || wasActive != (active > 0) {
		e.LastHeartbeatAt = time.Now()
	}

	result := *e
	r.mu.Unlock()
	return &result, r.mirror(&result)
}

// SetDraining toggles the draining flag on an entry and recomputes
// lifecycle state accordingly.
func (r *Registry) SetDraining(id string, draining bool) (*types.RuntimeEntry, error) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("set draining: unknown runtime %s", id)
	}

	e.IsDraining = draining
	if draining {
		if e.State != types.LifecycleStopping {
			e.State = types.LifecycleDraining
		}
	} else if e.State == types.LifecycleDraining {
		if e.ActiveSlots > 0 {
			e.State = types.LifecycleBusy
		} else {
			e.State = types.LifecycleReady
		}
	}

	result := *e
	r.mu.Unlock()
	return &result, r.mirror(&result)
}

// ApplyPressure records a fresh CPU/memory pressure sample for id,
// computed by the caller from a pair of container stats samples
//.
func (r *Registry) ApplyPressure(id string, cpuPercent, memoryPercent float64) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("apply pressure: unknown runtime %s", id)
	}

	e.CPUPercent = cpuPercent
	e.MemoryPercent = memoryPercent
	result := *e
	r.mu.Unlock()
	return r.mirror(&result)
}

func (r *Registry) mirror(e *types.RuntimeEntry) error {
	return r.store.UpsertRuntimeRegistration(e)
}
