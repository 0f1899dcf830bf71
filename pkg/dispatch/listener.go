package dispatch

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/google/uuid"

	"github.com/cuemby/taskrun/pkg/events"
	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/metrics"
	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/types"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

const (
	discoveryInterval           = 5 * time.Second
	staleRegistrationTTLSeconds = 120
	minBackoff                  = 1 * time.Second
	maxBackoff                  = 30 * time.Second
)

// EventListener maintains one event-hub subscription per running
// runtime: a ticker-driven sync against a live map, with a
// per-runtime goroutine owning its own cancel func.
type EventListener struct {
	runtimes   RuntimeManager
	clients    WorkerClients
	store      storage.Store
	broker     *events.Broker
	routes     *RouteTable
	dispatcher *Dispatcher

	mu        sync.Mutex
	cancels   map[string]context.CancelFunc
	endpoints map[string]string

	stopCh chan struct{}
}

// NewEventListener builds a listener wired to its dependencies.
func NewEventListener(runtimes RuntimeManager, clients WorkerClients, store storage.Store, broker *events.Broker, routes *RouteTable, dispatcher *Dispatcher) *EventListener {
	return &EventListener{
		runtimes:   runtimes,
		clients:    clients,
		store:      store,
		broker:     broker,
		routes:     routes,
		dispatcher: dispatcher,
		cancels:    make(map[string]context.CancelFunc),
		endpoints:  make(map[string]string),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the 5-second discovery loop in its own goroutine.
func (l *EventListener) Start(ctx context.Context) {
	go l.run(ctx)
}

// Stop ends the discovery loop and every per-runtime subscription.
func (l *EventListener) Stop() {
	close(l.stopCh)

	l.mu.Lock()
	for id, cancel := range l.cancels {
		cancel()
		delete(l.cancels, id)
		delete(l.endpoints, id)
	}
	l.mu.Unlock()
}

func (l *EventListener) run(ctx context.Context) {
	logger := log.WithComponent("dispatch-listener")
	ticker := time.NewTicker(discoveryInterval)
	defer ticker.Stop()

	logger.Info().Msg("event listener started")

	for {
		select {
		case <-ticker.C:
			l.discover(ctx)
		case <-l.stopCh:
			logger.Info().Msg("event listener stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// discover reconciles per-runtime subscription goroutines against the
// current set of running runtimes.
func (l *EventListener) discover(ctx context.Context) {
	logger := log.WithComponent("dispatch-listener")

	running := l.runtimes.Running()
	seen := make(map[string]bool, len(running))

	for _, e := range running {
		seen[e.ID] = true

		l.mu.Lock()
		prevEndpoint, exists := l.endpoints[e.ID]
		l.mu.Unlock()

		if exists && prevEndpoint == e.Endpoint {
			continue
		}

		l.mu.Lock()
		if cancel, ok := l.cancels[e.ID]; ok {
			cancel()
		}
		subCtx, cancel := context.WithCancel(ctx)
		l.cancels[e.ID] = cancel
		l.endpoints[e.ID] = e.Endpoint
		l.mu.Unlock()

		go l.runtimeLoop(subCtx, e.ID)
	}

	l.mu.Lock()
	for id, cancel := range l.cancels {
		if seen[id] {
			continue
		}
		cancel()
		delete(l.cancels, id)
		delete(l.endpoints, id)
		l.clients.Evict(id)
	}
	l.mu.Unlock()

	if _, err := l.store.MarkStaleRegistrationsOffline(staleRegistrationTTLSeconds); err != nil {
		logger.Warn().Err(err).Msg("mark stale registrations offline failed")
	}

	expired := l.routes.Sweep()
	for _, runID := range expired {
		l.publish(events.EventRouteExpired, runID, "proxy route expired", nil)
	}
	if len(expired) > 0 {
		metrics.ProxyRoutesExpiredTotal.Add(float64(len(expired)))
	}
}

func (l *EventListener) currentEndpoint(runtimeID string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endpoints[runtimeID]
}

// runtimeLoop owns a single runtime's event-hub subscription:
// connect, subscribe, drain until disconnect, reconnect with
// exponential backoff.
func (l *EventListener) runtimeLoop(ctx context.Context, runtimeID string) {
	logger := log.WithComponent("dispatch-listener")
	backoff := minBackoff

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		endpoint := l.currentEndpoint(runtimeID)
		if endpoint == "" {
			return
		}

		client, err := l.clients.Get(runtimeID, endpoint)
		if err != nil {
			logger.Debug().Err(err).Str("runtime_id", runtimeID).Msg("event hub dial failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		stream, err := client.EventHub(ctx)
		if err != nil {
			logger.Debug().Err(err).Str("runtime_id", runtimeID).Msg("event hub connect failed")
			if isHubDisconnected(err) {
				l.clients.Evict(runtimeID)
			}
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		if err := stream.Send(&workerrpc.ClientEventEnvelope{Subscribe: true}); err != nil {
			logger.Debug().Err(err).Str("runtime_id", runtimeID).Msg("event hub subscribe failed")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		backoff = minBackoff

		for {
			envelope, err := stream.Recv()
			if err != nil {
				if isHubDisconnected(err) {
					l.clients.Evict(runtimeID)
				}
				break
			}
			if envelope.JobEvent != nil {
				l.handleJobEvent(ctx, runtimeID, envelope.JobEvent)
			}
			if envelope.WorkerStatus != nil {
				l.handleWorkerStatus(runtimeID, envelope.WorkerStatus)
			}
		}

		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

// isHubDisconnected recognises the RPC-level signals of a dropped
// event hub: an Unavailable status, or the literal
// "already been disconnected from the server" substring.
func isHubDisconnected(err error) bool {
	if err == nil {
		return false
	}
	if status.Code(err) == codes.Unavailable {
		return true
	}
	return strings.Contains(err.Error(), "already been disconnected from the server")
}

// handleJobEvent implements per-event semantics.
func (l *EventListener) handleJobEvent(ctx context.Context, runtimeID string, ev *workerrpc.JobEvent) {
	logger := log.WithComponent("dispatch-listener")

	if ev.EventType == "log_chunk" {
		l.publish(events.EventLogChunk, ev.RunID, ev.Summary, nil)
		return
	}

	message := ev.Summary
	if message == "" {
		message = ev.Error
	}
	if err := l.store.AppendRunLog(&types.RunLogEvent{RunID: ev.RunID, Stream: ev.EventType, Data: message, EmittedAt: time.Now()}); err != nil {
		logger.Warn().Err(err).Str("run_id", ev.RunID).Msg("append run log failed")
	}
	l.publish(events.EventType(ev.EventType), ev.RunID, message, ev.Metadata)

	if ev.EventType == "completed" {
		l.handleCompleted(ctx, runtimeID, ev)
	}
}

// handleCompleted implements completed-event sequence.
func (l *EventListener) handleCompleted(ctx context.Context, runtimeID string, ev *workerrpc.JobEvent) {
	logger := log.WithComponent("dispatch-listener")

	payload := ""
	if ev.Metadata != nil {
		payload = ev.Metadata["payload"]
	}
	envelope := parseEnvelope(payload)
	succeeded := strings.EqualFold(envelope.Status, "succeeded")

	failureClass := types.FailureNone
	if !succeeded {
		failureClass = classifyFailure(envelope.Error)
	}

	prURL := ""
	if ev.Metadata != nil {
		prURL = ev.Metadata["prUrl"]
	}

	if err := l.store.MarkRunCompleted(ev.RunID, succeeded, envelope.Summary, payload, failureClass, prURL); err != nil {
		logger.Warn().Err(err).Str("run_id", ev.RunID).Msg("mark run completed failed")
	}

	l.routes.Remove(ev.RunID)

	eventType := events.EventRunCompleted
	if !succeeded {
		eventType = events.EventRunFailed
		metrics.RunsFailedTotal.WithLabelValues(string(failureClass)).Inc()
	} else {
		metrics.RunsCompletedTotal.Inc()
	}
	l.publish(eventType, ev.RunID, envelope.Summary, nil)

	if l.dispatcher == nil || l.dispatcher.settings.RecycleAfterRun {
		if err := l.runtimes.Recycle(ctx, runtimeID); err != nil {
			logger.Warn().Err(err).Str("runtime_id", runtimeID).Msg("recycle after completion failed")
		}
	}

	if !succeeded {
		run, err := l.store.GetRun(ev.RunID)
		if err != nil {
			logger.Warn().Err(err).Str("run_id", ev.RunID).Msg("load run for finding/retry failed")
			return
		}
		if err := l.store.CreateFinding(&types.Finding{
			ID:        uuid.NewString(),
			RunID:     run.ID,
			TaskID:    run.TaskID,
			Title:     "run failed",
			Detail:    envelope.Error,
			CreatedAt: time.Now(),
		}); err != nil {
			logger.Warn().Err(err).Str("run_id", run.ID).Msg("create finding failed")
		}
		l.scheduleRetry(ctx, run)
	}
}

// handleWorkerStatus forwards a worker status report.
func (l *EventListener) handleWorkerStatus(runtimeID string, ws *workerrpc.WorkerStatus) {
	logger := log.WithComponent("dispatch-listener")

	if _, err := l.runtimes.Heartbeat(runtimeID, ws.ActiveSlots, ws.MaxSlots); err != nil {
		logger.Warn().Err(err).Str("runtime_id", runtimeID).Msg("lifecycle heartbeat forward failed")
	}
	l.publish(events.EventRuntimeHeartbeat, "", ws.Status, map[string]string{
		"runtime_id":   runtimeID,
		"active_slots": strconv.Itoa(ws.ActiveSlots),
		"max_slots":    strconv.Itoa(ws.MaxSlots),
	})
}

func (l *EventListener) publish(t events.EventType, runID, message string, metadata map[string]string) {
	if metadata == nil {
		metadata = map[string]string{}
	}
	if runID != "" {
		metadata["run_id"] = runID
	}
	l.broker.Publish(&events.Event{ID: uuid.NewString(), Type: t, Message: message, Metadata: metadata})
}
