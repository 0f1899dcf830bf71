package lifecycle

import (
	"context"
	"time"

	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/metrics"
	"github.com/cuemby/taskrun/pkg/types"
)

// reconcilerLeaseKey guards the reconciliation loop so only one
// instance runs it at a time in a multi-replica deployment.
const reconcilerLeaseKey = "worker-reconciler"
const reconcilerLeaseTTL = 30 * time.Second
const staleRegistrationTTLSeconds = 120

// Reconciler runs the periodic reconciliation loop: ticker +
// Start/Stop/stopCh.
type Reconciler struct {
	manager *Manager
	stopCh  chan struct{}
}

// NewReconciler builds a Reconciler over manager.
func NewReconciler(manager *Manager) *Reconciler {
	return &Reconciler{manager: manager, stopCh: make(chan struct{})}
}

// Start begins the reconciliation loop in its own goroutine.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop ends the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	logger := log.WithComponent("lifecycle-reconciler")
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(context.Background()); err != nil {
				logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

func (r *Reconciler) reconcile(ctx context.Context) error {
	m := r.manager
	logger := log.WithComponent("lifecycle-reconciler")
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	held, err := m.leases.TryAcquire(reconcilerLeaseKey, reconcilerLeaseTTL)
	if err != nil {
		return err
	}
	if held == nil {
		// Another instance holds the reconciler lease this cycle.
		return nil
	}
	defer held.Release()

	if err := m.Refresh(ctx); err != nil {
		logger.Warn().Err(err).Msg("refresh failed during reconcile")
	}

	for _, e := range m.registry.List() {
		if e.State != types.LifecycleReady && e.State != types.LifecycleBusy {
			continue
		}
		if err := m.store.UpsertRuntimeRegistration(e); err != nil {
			logger.Warn().Err(err).Str("runtime_id", e.ID).Msg("heartbeat registration push failed")
		}
	}

	if _, err := m.store.MarkStaleRegistrationsOffline(staleRegistrationTTLSeconds); err != nil {
		logger.Warn().Err(err).Msg("mark stale registrations offline failed")
	}

	return nil
}
