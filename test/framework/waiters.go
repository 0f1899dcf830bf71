package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/taskrun/pkg/controlapi"
	"github.com/cuemby/taskrun/pkg/types"
)

// Waiter provides utilities for waiting on conditions with timeouts
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a new Waiter with the given timeout and polling interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter with sensible defaults (30s timeout, 1s interval)
func DefaultWaiter() *Waiter {
	return NewWaiter(30*time.Second, 1*time.Second)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForRuntimeState waits for a runtime to reach a specific lifecycle state
func (w *Waiter) WaitForRuntimeState(ctx context.Context, client *Client, runtimeID string, state types.LifecycleState) error {
	return w.WaitFor(ctx, func() bool {
		rt, ok := client.RuntimeByID(runtimeID)
		return ok && rt.State == string(state)
	}, fmt.Sprintf("runtime %s to reach state %s", runtimeID, state))
}

// WaitForRuntimeReady waits for a runtime to become ready
func (w *Waiter) WaitForRuntimeReady(ctx context.Context, client *Client, runtimeID string) error {
	return w.WaitForRuntimeState(ctx, client, runtimeID, types.LifecycleReady)
}

// WaitForRuntimeGone waits for a runtime to disappear from the registry,
// i.e. for a recycle or stop to fully complete.
func (w *Waiter) WaitForRuntimeGone(ctx context.Context, client *Client, runtimeID string) error {
	return w.WaitFor(ctx, func() bool {
		_, ok := client.RuntimeByID(runtimeID)
		return !ok
	}, fmt.Sprintf("runtime %s to be removed", runtimeID))
}

// WaitForRuntimeCount waits for the registry to report exactly count
// runtimes in the given state.
func (w *Waiter) WaitForRuntimeCount(ctx context.Context, client *Client, state types.LifecycleState, count int) error {
	return w.WaitFor(ctx, func() bool {
		n, err := client.CountRuntimesInState(string(state))
		return err == nil && n == count
	}, fmt.Sprintf("%d runtimes in state %s", count, state))
}

// WaitForEvent waits for an event of the given type to be published,
// tailing the event stream until one arrives or the timeout expires.
func (w *Waiter) WaitForEvent(ctx context.Context, client *Client, eventType string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	seen := false
	err := client.TailEvents(ctx, []string{eventType}, func(*controlapi.EventMessage) {
		seen = true
		cancel()
	})
	if seen {
		return nil
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("tail events: %w", err)
	}
	return fmt.Errorf("timeout waiting for event type %s", eventType)
}

// WaitForConditionWithRetry waits for a condition with exponential backoff retry
func (w *Waiter) WaitForConditionWithRetry(ctx context.Context, condition func() (bool, error), description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	interval := w.interval
	maxInterval := 10 * time.Second

	for {
		ok, err := condition()
		if err != nil {
			return fmt.Errorf("error checking condition '%s': %w", description, err)
		}

		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-time.After(interval):
			// Exponential backoff
			interval = interval * 2
			if interval > maxInterval {
				interval = maxInterval
			}
		}
	}
}

// PollUntil polls a condition until it returns true or context is cancelled
func PollUntil(ctx context.Context, interval time.Duration, condition func() bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Check immediately
	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// PollUntilWithError polls a condition that can return an error
func PollUntilWithError(ctx context.Context, interval time.Duration, condition func() (bool, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Check immediately
	if ok, err := condition(); err != nil {
		return err
	} else if ok {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if ok, err := condition(); err != nil {
				return err
			} else if ok {
				return nil
			}
		}
	}
}

// Retry retries an operation with exponential backoff
func Retry(ctx context.Context, attempts int, initialDelay time.Duration, operation func() error) error {
	var err error
	delay := initialDelay

	for i := 0; i < attempts; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry cancelled: %w", ctx.Err())
			case <-time.After(delay):
				delay = delay * 2
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, err)
}
