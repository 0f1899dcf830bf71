package engine

import (
	"context"
	"fmt"
	"net"
	"strings"

	"github.com/containerd/containerd"
)

// ManagedContainer is a lightweight view of one container discovered
// during a refresh cycle: enough to populate a registry entry without
// a second round trip per container.
type ManagedContainer struct {
	ID      string
	Labels  map[string]string
	Running bool
}

// ListManaged returns every container labeled as belonging to this
// control plane, plus (fallback) any container whose name starts with
// namePrefix but lacks the labels, covering runtimes created by a
// differently-configured peer or before labeling was introduced.
func (e *ContainerdEngine) ListManaged(ctx context.Context, namePrefix string) ([]ManagedContainer, error) {
	ctx = e.ctx(ctx)

	filter := fmt.Sprintf("labels.%q==%q,labels.%q==%q", LabelManagedBy, ManagedByValue, LabelRole, RoleValue)
	labeled, err := e.client.Containers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list managed containers: %w", err)
	}

	seen := make(map[string]bool, len(labeled))
	out := make([]ManagedContainer, 0, len(labeled))
	for _, c := range labeled {
		mc, descErr := e.describe(ctx, c)
		if descErr != nil {
			continue
		}
		seen[c.ID()] = true
		out = append(out, mc)
	}

	if namePrefix != "" {
		all, allErr := e.client.Containers(ctx)
		if allErr == nil {
			for _, c := range all {
				if seen[c.ID()] || !strings.HasPrefix(c.ID(), namePrefix) {
					continue
				}
				mc, descErr := e.describe(ctx, c)
				if descErr != nil {
					continue
				}
				out = append(out, mc)
			}
		}
	}

	return out, nil
}

func (e *ContainerdEngine) describe(ctx context.Context, c containerd.Container) (ManagedContainer, error) {
	labels, err := c.Labels(ctx)
	if err != nil {
		labels = nil
	}

	running := false
	if task, taskErr := c.Task(ctx, nil); taskErr == nil {
		if status, statusErr := task.Status(ctx); statusErr == nil {
			running = status.Status == containerd.Running
		}
	}

	return ManagedContainer{ID: c.ID(), Labels: labels, Running: running}, nil
}

// AllocateHostPort reserves an ephemeral loopback TCP port for
// host-port connectivity mode by binding then immediately releasing
// it. Subject to the usual bind-race between release and reuse by the
// container's published port; acceptable for the single-node
// deployments this mode targets.
func AllocateHostPort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("allocate host port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
