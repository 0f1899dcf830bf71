package client

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/taskrun/pkg/controlapi"
	"github.com/cuemby/taskrun/pkg/security"
	"google.golang.org/grpc"
)

const callTimeout = 10 * time.Second

// Client wraps the daemon's control API for CLI usage.
type Client struct {
	conn   *grpc.ClientConn
	client controlapi.ControlServiceClient
}

// NewClient dials addr, using an issued CLI certificate for mTLS if
// one is present (see security.GetCLICertDir), plaintext otherwise.
func NewClient(addr string) (*Client, error) {
	certDir, err := security.GetCLICertDir()
	if err != nil {
		return nil, fmt.Errorf("resolve cli cert directory: %w", err)
	}

	conn, err := controlapi.Dial(addr, certDir)
	if err != nil {
		return nil, fmt.Errorf("connect to daemon: %w", err)
	}

	return &Client{conn: conn, client: controlapi.NewControlServiceClient(conn)}, nil
}

// Close closes the client connection.
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// ListRuntimes returns the daemon's current runtime registry.
func (c *Client) ListRuntimes() ([]controlapi.RuntimeSummary, error) {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	resp, err := c.client.ListRuntimes(ctx, &controlapi.ListRuntimesRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Runtimes, nil
}

// RecycleRuntime asks the daemon to drain and force-stop runtimeID.
func (c *Client) RecycleRuntime(runtimeID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()

	resp, err := c.client.RecycleRuntime(ctx, &controlapi.RecycleRuntimeRequest{RuntimeID: runtimeID})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("recycle %s: %s", runtimeID, resp.ErrorMessage)
	}
	return nil
}

// TailEvents opens a long-lived subscription to the daemon's event
// stream, filtered to eventTypes if non-empty, and invokes onEvent for
// every message until ctx is cancelled or the stream ends.
func (c *Client) TailEvents(ctx context.Context, eventTypes []string, onEvent func(*controlapi.EventMessage)) error {
	stream, err := c.client.TailEvents(ctx, &controlapi.TailEventsRequest{Types: eventTypes})
	if err != nil {
		return err
	}

	for {
		ev, err := stream.Recv()
		if err != nil {
			return err
		}
		onEvent(ev)
	}
}
