package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/taskrun/pkg/config"
	"github.com/cuemby/taskrun/pkg/events"
	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/metrics"
	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/types"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

// RuntimeManager is the subset of the lifecycle manager the
// dispatcher needs: leasing a runtime for a run, recycling one after
// completion, and the read paths the event listener uses for runtime
// discovery and heartbeat forwarding.
type RuntimeManager interface {
	AcquireForDispatch(ctx context.Context, repositoryID, taskID string, requestedSlots int) (*types.RuntimeEntry, error)
	Recycle(ctx context.Context, id string) error
	Running() []*types.RuntimeEntry
	Get(id string) (*types.RuntimeEntry, bool)
	Heartbeat(runtimeID string, active, max int) (*types.RuntimeEntry, error)
}

// WorkerClients is the subset of workerrpc.ClientCache the dispatcher
// and event listener need: a cached-or-dialed client per runtime, and
// eviction when a runtime disappears or its hub disconnects.
type WorkerClients interface {
	Get(runtimeID, endpoint string) (workerrpc.WorkerServiceClient, error)
	Evict(runtimeID string)
}

// routeTTL is how long a proxy route stays live after a run starts
//.
const routeTTL = 2 * time.Hour

// Dispatcher implements the Run Dispatcher.
type Dispatcher struct {
	store    storage.Store
	runtimes RuntimeManager
	clients  WorkerClients
	routes   *RouteTable
	broker   *events.Broker
	settings config.RuntimeSettings
}

// New builds a Dispatcher wired to its dependencies.
func New(
	store storage.Store,
	runtimes RuntimeManager,
	clients WorkerClients,
	routes *RouteTable,
	broker *events.Broker,
	settings config.RuntimeSettings,
) *Dispatcher {
	return &Dispatcher{
		store:    store,
		runtimes: runtimes,
		clients:  clients,
		routes:   routes,
		broker:   broker,
		settings: settings,
	}
}

// Dispatch attempts to move runID forward one step: approval
// short-circuit, admission control, runtime lease, job composition and
// send. A false return with a nil error means the run must stay
// Queued; the caller's scheduling loop retries later.
func (d *Dispatcher) Dispatch(ctx context.Context, runID string) (bool, error) {
	logger := log.WithComponent("dispatch")
	timer := metrics.NewTimer()

	run, err := d.store.GetRun(runID)
	if err != nil {
		return false, fmt.Errorf("dispatch: load run %s: %w", runID, err)
	}
	task, err := d.store.GetTask(run.TaskID)
	if err != nil {
		return false, fmt.Errorf("dispatch: load task %s: %w", run.TaskID, err)
	}

	// Step 1: approval short-circuit. Once a human has moved the run to
	// Approved, dispatch proceeds past this check even though the task
	// still carries an approval profile.
	if task.RequiresApproval() && run.State != types.RunApproved {
		if err := d.store.MarkRunPendingApproval(run.ID); err != nil {
			return false, fmt.Errorf("dispatch: mark pending approval: %w", err)
		}
		d.publish(events.EventRunDispatched, run.ID, "awaiting approval", nil)
		return true, nil
	}

	// Step 2: admission control.
	if ok, err := d.admit(run, task); err != nil {
		return false, err
	} else if !ok {
		return false, nil
	}

	// Step 3: lease a runtime.
	entry, err := d.runtimes.AcquireForDispatch(ctx, run.RepositoryID, run.TaskID, 1)
	if err != nil {
		return false, fmt.Errorf("dispatch: acquire runtime: %w", err)
	}
	if entry == nil {
		return false, nil
	}

	repo, err := d.store.GetRepository(run.RepositoryID)
	if err != nil {
		return false, fmt.Errorf("dispatch: load repository %s: %w", run.RepositoryID, err)
	}

	// Step 4: compose the job.
	req := d.composeJob(run, task, repo)

	// Step 5: send.
	client, err := d.clients.Get(entry.ID, entry.Endpoint)
	if err != nil {
		return d.failDispatch(run, fmt.Sprintf("dial worker: %v", err))
	}
	resp, err := client.DispatchJob(ctx, req)
	if err != nil {
		return d.failDispatch(run, fmt.Sprintf("dispatch rpc: %v", err))
	}
	if !resp.Success {
		return d.failDispatch(run, resp.ErrorMessage)
	}

	// Step 6 (recording dispatch activity) already happened inside
	// AcquireForDispatch's successful lease path.

	// Step 7: mark started, register the proxy route, publish.
	if err := d.store.MarkRunStarted(run.ID, entry.ID, entry.ImageRef, entry.ImageDigest, entry.ImageSource); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("mark run started failed")
	}
	d.publish(events.EventRunStarted, run.ID, "dispatched to "+entry.ID, nil)

	routeID := "run-" + run.ID
	d.routes.Register(run.ID, entry.Endpoint, routeTTL)
	if err := d.store.SetRunProxyRoute(run.ID, routeID); err != nil {
		logger.Warn().Err(err).Str("run_id", run.ID).Msg("set proxy route failed")
	}
	d.publish(events.EventRouteAvailable, run.ID, routeID, map[string]string{"endpoint": entry.Endpoint})

	timer.ObserveDuration(metrics.DispatchLatency)
	metrics.RunsDispatchedTotal.Inc()

	return true, nil
}

// admit runs step 2's five-way admission check.
func (d *Dispatcher) admit(run *types.Run, task *types.Task) (bool, error) {
	queued, err := d.store.CountQueuedRuns()
	if err != nil {
		return false, fmt.Errorf("dispatch: count queued runs: %w", err)
	}
	if queued > d.settings.MaxQueueDepth {
		_ = d.store.SetRunFailure(run.ID, types.FailureAdmissionControl, "queue depth policy")
		_ = d.store.UpdateRunState(run.ID, types.RunFailed)
		_ = d.store.CreateFinding(&types.Finding{ID: uuid.NewString(), RunID: run.ID, TaskID: run.TaskID, Title: "queue depth policy", CreatedAt: time.Now()})
		d.publish(events.EventRunFailed, run.ID, "queue depth policy", nil)
		metrics.RunsFailedTotal.WithLabelValues(string(types.FailureAdmissionControl)).Inc()
		return false, nil
	}

	active, err := d.store.CountActiveRuns()
	if err != nil {
		return false, fmt.Errorf("dispatch: count active runs: %w", err)
	}
	if active >= d.settings.MaxGlobalConcurrent {
		return false, nil
	}

	projectActive, err := d.store.CountActiveRunsByProject(run.ProjectID)
	if err != nil {
		return false, fmt.Errorf("dispatch: count project active runs: %w", err)
	}
	if projectActive >= d.settings.PerProjectLimit {
		return false, nil
	}

	repoActive, err := d.store.CountActiveRunsByRepository(run.RepositoryID)
	if err != nil {
		return false, fmt.Errorf("dispatch: count repo active runs: %w", err)
	}
	if repoActive >= d.settings.PerRepoLimit {
		return false, nil
	}

	if task.ConcurrencyLimit > 0 {
		taskActive, err := d.store.CountActiveRunsByTask(run.TaskID)
		if err != nil {
			return false, fmt.Errorf("dispatch: count task active runs: %w", err)
		}
		if taskActive >= task.ConcurrencyLimit {
			return false, nil
		}
	}

	return true, nil
}

// failDispatch records a worker-rejected dispatch.
func (d *Dispatcher) failDispatch(run *types.Run, message string) (bool, error) {
	_ = d.store.SetRunFailure(run.ID, types.FailureInfra, message)
	_ = d.store.UpdateRunState(run.ID, types.RunFailed)
	_ = d.store.CreateFinding(&types.Finding{ID: uuid.NewString(), RunID: run.ID, TaskID: run.TaskID, Title: "worker rejected dispatch", Detail: message, CreatedAt: time.Now()})
	d.publish(events.EventRunFailed, run.ID, message, nil)
	metrics.RunsFailedTotal.WithLabelValues(string(types.FailureInfra)).Inc()
	return false, nil
}

// Cancel looks up the run's assigned worker and sends a best-effort
// cancel RPC.
func (d *Dispatcher) Cancel(ctx context.Context, runID string) error {
	run, err := d.store.GetRun(runID)
	if err != nil {
		return nil
	}
	if run.RuntimeID == "" {
		return nil
	}
	entry, ok := d.runtimes.Get(run.RuntimeID)
	if !ok {
		return nil
	}
	client, err := d.clients.Get(entry.ID, entry.Endpoint)
	if err != nil {
		return nil
	}
	_, _ = client.CancelJob(ctx, &workerrpc.CancelJobRequest{RunID: runID})
	return nil
}

func (d *Dispatcher) publish(t events.EventType, runID, message string, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadata["run_id"] = runID
	d.broker.Publish(&events.Event{ID: uuid.NewString(), Type: t, Message: message, Metadata: metadata})
}
