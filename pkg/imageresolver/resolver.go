package imageresolver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/taskrun/pkg/config"
	"github.com/cuemby/taskrun/pkg/engine"
	"github.com/cuemby/taskrun/pkg/lease"
	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/metrics"
	"github.com/cuemby/taskrun/pkg/types"
)

// LeaseAcquirer is the subset of lease.Coordinator the resolver needs,
// narrowed so tests can substitute a fake without standing up Raft.
type LeaseAcquirer interface {
	TryAcquire(key string, ttl time.Duration) (*lease.Lease, error)
}

// Request describes one resolution attempt.
type Request struct {
	Ref              string
	Policy           Policy
	BuildArchivePath string // required by BuildOnly/PullThenBuild/BuildThenPull/PreferLocal's build leg
	ForceRefresh     bool
	Progress         engine.ProgressFunc
}

// Result reports how (or whether) the image became available.
type Result struct {
	Available bool
	Source    types.ImageSource
	Digest    string
	Reason    string
	Warning   string
}

// imageState pairs the resolution bookkeeping for one reference with
// its own mutex, so two different images never block each other.
type imageState struct {
	mu    sync.Mutex
	state types.ImageState
}

// Resolver implements the Image Resolver: guarantees an image
// reference is locally available, never double-resolving the same
// reference concurrently.
type Resolver struct {
	engine engine.Engine
	leases LeaseAcquirer

	pullTimeout     time.Duration
	buildTimeout    time.Duration
	cooldown        time.Duration
	peerWaitMinimum time.Duration

	pullGate  *concurrencyGate
	buildGate *concurrencyGate

	mu     sync.Mutex
	images map[string]*imageState
}

// New builds a Resolver against eng (image pull/build) and leases
// (cross-instance image-resolve coordination), reading its timeouts
// and concurrency caps from settings.
func New(eng engine.Engine, leases LeaseAcquirer, settings config.RuntimeSettings) *Resolver {
	return &Resolver{
		engine:          eng,
		leases:          leases,
		pullTimeout:     settings.PullTimeout,
		buildTimeout:    settings.BuildTimeout,
		cooldown:        time.Duration(settings.CooldownMinutes) * time.Minute,
		peerWaitMinimum: 15 * time.Second,
		pullGate:        newConcurrencyGate(settings.MaxConcurrentPulls),
		buildGate:       newConcurrencyGate(settings.MaxConcurrentBuilds),
		images:          make(map[string]*imageState),
	}
}

func (r *Resolver) stateFor(ref string) *imageState {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.images[ref]
	if !ok {
		st = &imageState{state: types.ImageState{Ref: ref}}
		r.images[ref] = st
	}
	return st
}

// Resolve guarantees req.Ref is locally available, or reports why not,
// walking the cache/cooldown/pull/build decision tree below.
func (r *Resolver) Resolve(ctx context.Context, req Request) (result Result, err error) {
	logger := log.WithComponent("imageresolver")
	now := time.Now()
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ImageResolutionDuration)
		outcome := "resolved"
		if err != nil || !result.Available {
			outcome = "failed"
		}
		metrics.ImageResolutionsTotal.WithLabelValues(string(result.Source), outcome).Inc()
	}()

	// Step 1: fast local-presence check, outside any lock.
	if !req.ForceRefresh {
		if has, err := r.engine.HasImage(ctx, req.Ref); err == nil && has {
			return Result{Available: true, Source: types.ImageSourceLocal}, nil
		}
	}

	st := r.stateFor(req.Ref)

	// Step 2: cooldown check, a brief lock just to read shared state.
	st.mu.Lock()
	cooling := !req.ForceRefresh && st.state.InCooldown(now)
	st.mu.Unlock()
	if cooling {
		return Result{Available: false, Reason: "cooldown_active"}, nil
	}

	// Step 3: acquire the per-image mutex for the remainder of the
	// resolution; this is the long-held critical section.
	st.mu.Lock()
	defer st.mu.Unlock()

	if !req.ForceRefresh {
		if has, err := r.engine.HasImage(ctx, req.Ref); err == nil && has {
			return Result{Available: true, Source: types.ImageSourceLocal}, nil
		}
	}

	// Step 4: distributed lease, or wait for a peer to finish.
	leaseTTL := r.buildTimeout + r.pullTimeout + 120*time.Second
	held, err := r.leases.TryAcquire(leaseKey(req.Ref), leaseTTL)
	if err != nil {
		logger.Warn().Err(err).Str("image", req.Ref).Msg("lease acquire errored, proceeding locally")
	}
	if held == nil && err == nil {
		return r.waitForPeer(ctx, req.Ref)
	}
	if held != nil {
		defer held.Release()
	}

	// Step 5/6: execute the policy.
	digest, source, execErr := r.execute(ctx, req)
	if execErr == nil {
		st.state.Available = true
		st.state.Digest = digest
		st.state.Source = source
		st.state.LastResolvedAt = time.Now()
		st.state.FailureCount = 0
		st.state.CooldownUntil = time.Time{}
		return Result{Available: true, Source: source, Digest: digest}, nil
	}

	st.state.FailureCount++
	st.state.LastFailureAt = time.Now()

	if has, hasErr := r.engine.HasImage(ctx, req.Ref); hasErr == nil && has {
		logger.Warn().Err(execErr).Str("image", req.Ref).Msg("resolution failed, falling back to stale local copy")
		return Result{
			Available: true,
			Source:    types.ImageSourceLocal,
			Warning:   fmt.Sprintf("resolution failed, using stale local copy: %v", execErr),
		}, nil
	}

	st.state.CooldownUntil = time.Now().Add(r.cooldown)
	return Result{Available: false, Reason: execErr.Error()}, nil
}

func (r *Resolver) waitForPeer(ctx context.Context, ref string) (Result, error) {
	deadline := r.peerWaitMinimum
	if r.pullTimeout > deadline {
		deadline = r.pullTimeout
	}

	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if has, err := r.engine.HasImage(ctx, ref); err == nil && has {
			return Result{Available: true, Source: types.ImageSourcePeer}, nil
		}
		select {
		case <-waitCtx.Done():
			return Result{Available: false, Reason: "peer_timeout"}, nil
		case <-ticker.C:
		}
	}
}

func (r *Resolver) execute(ctx context.Context, req Request) (digest string, source types.ImageSource, err error) {
	switch req.Policy {
	case PullOnly:
		return r.pull(ctx, req)
	case BuildOnly:
		return r.build(ctx, req)
	case PullThenBuild:
		if digest, source, err = r.pull(ctx, req); err == nil {
			return digest, source, nil
		}
		return r.build(ctx, req)
	case BuildThenPull:
		if digest, source, err = r.build(ctx, req); err == nil {
			return digest, source, nil
		}
		return r.pull(ctx, req)
	case PreferLocal:
		if has, hasErr := r.engine.HasImage(ctx, req.Ref); hasErr == nil && has {
			return "", types.ImageSourceLocal, nil
		}
		if digest, source, err = r.pull(ctx, req); err == nil {
			return digest, source, nil
		}
		return r.build(ctx, req)
	default:
		return "", "", fmt.Errorf("image resolver: unknown policy %q", req.Policy)
	}
}

func (r *Resolver) pull(ctx context.Context, req Request) (string, types.ImageSource, error) {
	if err := r.pullGate.Acquire(ctx); err != nil {
		return "", "", fmt.Errorf("pull %s: %w", req.Ref, err)
	}
	defer r.pullGate.Release()

	pullCtx, cancel := context.WithTimeout(ctx, r.pullTimeout)
	defer cancel()

	digest, err := r.engine.PullImage(pullCtx, req.Ref, req.Progress)
	if err != nil {
		return "", "", fmt.Errorf("pull %s: %w", req.Ref, err)
	}
	return digest, types.ImageSourcePull, nil
}

func (r *Resolver) build(ctx context.Context, req Request) (string, types.ImageSource, error) {
	if req.BuildArchivePath == "" {
		return "", "", fmt.Errorf("build %s: no build archive configured", req.Ref)
	}
	if err := r.buildGate.Acquire(ctx); err != nil {
		return "", "", fmt.Errorf("build %s: %w", req.Ref, err)
	}
	defer r.buildGate.Release()

	buildCtx, cancel := context.WithTimeout(ctx, r.buildTimeout)
	defer cancel()

	digest, err := r.engine.ImportImage(buildCtx, req.BuildArchivePath, req.Ref, req.Progress)
	if err != nil {
		return "", "", fmt.Errorf("build %s: %w", req.Ref, err)
	}
	return digest, types.ImageSourceBuild, nil
}

func leaseKey(ref string) string {
	return "image-resolve:" + ref
}
