package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/taskrun/pkg/client"
	"github.com/cuemby/taskrun/pkg/controlapi"
)

// Client wraps the taskrund control API client with test-friendly
// methods: a thin typed facade tests call instead of the raw RPC
// client.
type Client struct {
	*client.Client
}

// NewClient creates a new test client wrapper.
func NewClient(c *client.Client) *Client {
	return &Client{Client: c}
}

// RuntimeByID finds a runtime in the current registry snapshot by ID,
// returning ok=false if it isn't present.
func (c *Client) RuntimeByID(id string) (controlapi.RuntimeSummary, bool) {
	runtimes, err := c.ListRuntimes()
	if err != nil {
		return controlapi.RuntimeSummary{}, false
	}
	for _, r := range runtimes {
		if r.ID == id {
			return r, true
		}
	}
	return controlapi.RuntimeSummary{}, false
}

// CountRuntimesInState returns how many registered runtimes currently
// report the given lifecycle state.
func (c *Client) CountRuntimesInState(state string) (int, error) {
	runtimes, err := c.ListRuntimes()
	if err != nil {
		return 0, fmt.Errorf("list runtimes: %w", err)
	}
	count := 0
	for _, r := range runtimes {
		if r.State == state {
			count++
		}
	}
	return count, nil
}

// CollectEvents tails the event stream for duration d, filtered to
// eventTypes if non-empty, and returns everything observed. Useful for
// asserting a sequence of events happened during a test action.
func (c *Client) CollectEvents(ctx context.Context, d time.Duration, eventTypes []string) ([]*controlapi.EventMessage, error) {
	tailCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	var collected []*controlapi.EventMessage
	err := c.TailEvents(tailCtx, eventTypes, func(ev *controlapi.EventMessage) {
		collected = append(collected, ev)
	})
	if err != nil && tailCtx.Err() == nil {
		return collected, err
	}
	return collected, nil
}
