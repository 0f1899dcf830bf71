package dispatch

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/taskrun/pkg/log"
	"github.com/cuemby/taskrun/pkg/metrics"
	"github.com/cuemby/taskrun/pkg/types"
)

// maxRetryDelay caps the computed backoff before the next attempt is
// dispatched.
const maxRetryDelay = 300 * time.Second

// scheduleRetry implements the retry-scheduling sequence for a failed
// run: load the task, check the attempt budget, wait the
// computed backoff, create the next-attempt run, and dispatch it.
func (l *EventListener) scheduleRetry(ctx context.Context, run *types.Run) {
	logger := log.WithComponent("dispatch-listener")

	task, err := l.store.GetTask(run.TaskID)
	if err != nil {
		logger.Warn().Err(err).Str("task_id", run.TaskID).Msg("load task for retry failed")
		return
	}
	if task.Retry.MaxAttempts <= 1 || run.Attempt >= task.Retry.MaxAttempts {
		return
	}

	delay := retryDelay(task.Retry.BaseDelaySeconds, task.Retry.Multiplier, run.Attempt)

	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		next := &types.Run{
			ID:           uuid.NewString(),
			TaskID:       run.TaskID,
			RepositoryID: run.RepositoryID,
			ProjectID:    run.ProjectID,
			Attempt:      run.Attempt + 1,
			State:        types.RunQueued,
			CreatedAt:    time.Now(),
		}
		if err := l.store.CreateRun(next); err != nil {
			logger.Warn().Err(err).Str("task_id", run.TaskID).Msg("create retry run failed")
			return
		}
		metrics.RetriesScheduledTotal.Inc()
		if _, err := l.dispatcher.Dispatch(ctx, next.ID); err != nil {
			logger.Warn().Err(err).Str("run_id", next.ID).Msg("dispatch retry run failed")
		}
	}()
}

// retryDelay computes delay_seconds = base * multiplier^(attempt-1),
// capped at maxRetryDelay.
func retryDelay(baseSeconds int, multiplier float64, attempt int) time.Duration {
	seconds := float64(baseSeconds) * math.Pow(multiplier, float64(attempt-1))
	delay := time.Duration(seconds * float64(time.Second))
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	if delay < 0 {
		return 0
	}
	return delay
}
