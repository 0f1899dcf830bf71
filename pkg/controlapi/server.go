package controlapi

import (
	"context"

	"github.com/cuemby/taskrun/pkg/events"
	"github.com/cuemby/taskrun/pkg/registry"
	"github.com/cuemby/taskrun/pkg/types"
)

// Recycler is the subset of lifecycle.Manager the control API needs
// for the operator-initiated recycle command.
type Recycler interface {
	Recycle(ctx context.Context, id string) error
}

// Server implements ControlServiceServer over the daemon's own
// registry, lifecycle manager and event broker, so the CLI observes
// exactly the same state the daemon's other components do.
type Server struct {
	UnimplementedControlServiceServer

	registry  *registry.Registry
	lifecycle Recycler
	broker    *events.Broker
}

// NewServer builds a Server wired to its dependencies.
func NewServer(reg *registry.Registry, lifecycle Recycler, broker *events.Broker) *Server {
	return &Server{registry: reg, lifecycle: lifecycle, broker: broker}
}

// ListRuntimes returns the current registry snapshot.
func (s *Server) ListRuntimes(ctx context.Context, req *ListRuntimesRequest) (*ListRuntimesResponse, error) {
	entries := s.registry.List()
	out := make([]RuntimeSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSummary(e))
	}
	return &ListRuntimesResponse{Runtimes: out}, nil
}

// RecycleRuntime drains and force-stops the named runtime out of band.
func (s *Server) RecycleRuntime(ctx context.Context, req *RecycleRuntimeRequest) (*RecycleRuntimeResponse, error) {
	if _, ok := s.registry.Get(req.RuntimeID); !ok {
		return &RecycleRuntimeResponse{Success: false, ErrorMessage: "runtime not found"}, nil
	}
	if err := s.lifecycle.Recycle(ctx, req.RuntimeID); err != nil {
		return &RecycleRuntimeResponse{Success: false, ErrorMessage: err.Error()}, nil
	}
	return &RecycleRuntimeResponse{Success: true}, nil
}

// TailEvents subscribes to the broker and forwards matching events
// until the client disconnects or the stream's context ends.
// Broker.Stop does not close subscriber channels, so stopping the
// broker alone does not end the stream.
func (s *Server) TailEvents(req *TailEventsRequest, stream ControlService_TailEventsServer) error {
	wanted := make(map[string]bool, len(req.Types))
	for _, t := range req.Types {
		wanted[t] = true
	}

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return nil
			}
			if len(wanted) > 0 && !wanted[string(ev.Type)] {
				continue
			}
			if err := stream.Send(toEventMessage(ev)); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return stream.Context().Err()
		}
	}
}

func toSummary(e *types.RuntimeEntry) RuntimeSummary {
	return RuntimeSummary{
		ID:            e.ID,
		Endpoint:      e.Endpoint,
		State:         string(e.State),
		ActiveSlots:   e.ActiveSlots,
		MaxSlots:      e.MaxSlots,
		ImageRef:      e.ImageRef,
		ImageSource:   string(e.ImageSource),
		TaskID:        e.TaskID,
		RepositoryID:  e.RepositoryID,
		IsCanary:      e.IsCanary,
		IsDraining:    e.IsDraining,
		CPUPercent:    e.CPUPercent,
		MemoryPercent: e.MemoryPercent,
	}
}

func toEventMessage(ev *events.Event) *EventMessage {
	return &EventMessage{
		ID:          ev.ID,
		Type:        string(ev.Type),
		TimestampMs: ev.Timestamp.UnixMilli(),
		Message:     ev.Message,
		Metadata:    ev.Metadata,
	}
}
