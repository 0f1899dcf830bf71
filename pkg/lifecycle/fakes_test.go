package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/lease"
)

// fakeEngine is an in-memory stand-in for engine.Engine, enough to
// drive refresh, spawn and stop without a real containerd daemon.
type fakeEngine struct {
	mu         sync.Mutex
	containers map[string]*fakeContainer
	hasImage   map[string]bool
	createErr  error
}

type fakeContainer struct {
	id      string
	labels  map[string]string
	running bool
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		containers: make(map[string]*fakeContainer),
		hasImage:   make(map[string]bool),
	}
}

func (e *fakeEngine) EnsureNetwork(ctx context.Context, name string) error { return nil }

func (e *fakeEngine) CreateContainer(ctx context.Context, spec engine.ContainerSpec) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return "", e.createErr
	}
	e.containers[spec.ID] = &fakeContainer{id: spec.ID, labels: spec.Labels}
	return spec.ID, nil
}

func (e *fakeEngine) StartContainer(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	if !ok {
		return fmt.Errorf("no such container %s", id)
	}
	c.running = true
	return nil
}

func (e *fakeEngine) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.containers[id]; ok {
		c.running = false
	}
	return nil
}

func (e *fakeEngine) DeleteContainer(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.containers, id)
	return nil
}

func (e *fakeEngine) ContainerStatus(ctx context.Context, id string) (engine.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.containers[id]
	if !ok {
		return engine.StatusFailed, fmt.Errorf("no such container %s", id)
	}
	if c.running {
		return engine.StatusRunning, nil
	}
	return engine.StatusPending, nil
}

func (e *fakeEngine) ContainerIP(ctx context.Context, id string) (string, error) { return "", nil }

func (e *fakeEngine) Stats(ctx context.Context, id string) (engine.StatsSample, error) {
	return engine.StatsSample{
		CPUTotalUsage:  100,
		CPUSystemUsage: 1000,
		OnlineCPUs:     1,
		MemoryUsage:    10,
		MemoryLimit:    100,
		SampledAt:      time.Now(),
	}, nil
}

func (e *fakeEngine) ListByLabel(ctx context.Context, key, value string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for _, c := range e.containers {
		if c.labels[key] == value {
			ids = append(ids, c.id)
		}
	}
	return ids, nil
}

func (e *fakeEngine) ListManaged(ctx context.Context, namePrefix string) ([]engine.ManagedContainer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]engine.ManagedContainer, 0, len(e.containers))
	for _, c := range e.containers {
		out = append(out, engine.ManagedContainer{ID: c.id, Labels: c.labels, Running: c.running})
	}
	return out, nil
}

func (e *fakeEngine) HasImage(ctx context.Context, ref string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasImage[ref], nil
}

func (e *fakeEngine) PullImage(ctx context.Context, ref string, progress engine.ProgressFunc) (string, error) {
	e.mu.Lock()
	e.hasImage[ref] = true
	e.mu.Unlock()
	return "sha256:fake", nil
}

func (e *fakeEngine) ImportImage(ctx context.Context, archivePath, tag string, progress engine.ProgressFunc) (string, error) {
	e.mu.Lock()
	e.hasImage[tag] = true
	e.mu.Unlock()
	return "sha256:fake", nil
}

func (e *fakeEngine) Close() error { return nil }

// fakeLeases always reports a key as (transiently) held by someone
// else: it cannot fabricate a *lease.Lease (all fields unexported).
// Tests exercising lease-gated behavior use a real single-node
// lease.Coordinator instead.
type fakeLeases struct{}

func (f *fakeLeases) TryAcquire(key string, ttl time.Duration) (*lease.Lease, error) {
	return nil, nil
}
