package dispatch

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/cuemby/taskrun/pkg/types"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

// fakeRuntimeManager is an in-memory stand-in for the lifecycle
// manager, enough to drive dispatch and the event listener without a
// real registry or engine.
type fakeRuntimeManager struct {
	mu sync.Mutex

	acquireEntry *types.RuntimeEntry
	acquireErr   error

	entries map[string]*types.RuntimeEntry
	running []*types.RuntimeEntry

	recycled   []string
	recycleErr error

	heartbeats []string
}

func newFakeRuntimeManager() *fakeRuntimeManager {
	return &fakeRuntimeManager{entries: make(map[string]*types.RuntimeEntry)}
}

func (f *fakeRuntimeManager) AcquireForDispatch(ctx context.Context, repositoryID, taskID string, requestedSlots int) (*types.RuntimeEntry, error) {
	return f.acquireEntry, f.acquireErr
}

func (f *fakeRuntimeManager) Recycle(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recycled = append(f.recycled, id)
	return f.recycleErr
}

func (f *fakeRuntimeManager) Running() []*types.RuntimeEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *fakeRuntimeManager) Get(id string) (*types.RuntimeEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	return e, ok
}

func (f *fakeRuntimeManager) Heartbeat(runtimeID string, active, max int) (*types.RuntimeEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, runtimeID)
	e, ok := f.entries[runtimeID]
	if !ok {
		return nil, fmt.Errorf("unknown runtime %s", runtimeID)
	}
	e.ActiveSlots = active
	e.MaxSlots = max
	return e, nil
}

// fakeWorkerClients is an in-memory stand-in for workerrpc.ClientCache.
type fakeWorkerClients struct {
	mu sync.Mutex

	clients map[string]workerrpc.WorkerServiceClient
	dialErr error
	evicted []string
}

func newFakeWorkerClients() *fakeWorkerClients {
	return &fakeWorkerClients{clients: make(map[string]workerrpc.WorkerServiceClient)}
}

func (f *fakeWorkerClients) Get(runtimeID, endpoint string) (workerrpc.WorkerServiceClient, error) {
	if f.dialErr != nil {
		return nil, f.dialErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[runtimeID]
	if !ok {
		return nil, fmt.Errorf("no fake client configured for runtime %s", runtimeID)
	}
	return c, nil
}

func (f *fakeWorkerClients) Evict(runtimeID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicted = append(f.evicted, runtimeID)
}

// fakeWorkerServiceClient is a single worker's RPC surface, controlled
// entirely by the test that constructs it.
type fakeWorkerServiceClient struct {
	mu sync.Mutex

	dispatchResp *workerrpc.DispatchJobResponse
	dispatchErr  error
	lastDispatch *workerrpc.DispatchJobRequest

	cancelled []string

	stream *fakeEventStream
}

func (c *fakeWorkerServiceClient) DispatchJob(ctx context.Context, in *workerrpc.DispatchJobRequest, opts ...grpc.CallOption) (*workerrpc.DispatchJobResponse, error) {
	c.mu.Lock()
	c.lastDispatch = in
	c.mu.Unlock()
	if c.dispatchErr != nil {
		return nil, c.dispatchErr
	}
	return c.dispatchResp, nil
}

func (c *fakeWorkerServiceClient) CancelJob(ctx context.Context, in *workerrpc.CancelJobRequest, opts ...grpc.CallOption) (*workerrpc.CancelJobResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelled = append(c.cancelled, in.RunID)
	return &workerrpc.CancelJobResponse{}, nil
}

func (c *fakeWorkerServiceClient) Heartbeat(ctx context.Context, in *workerrpc.HeartbeatRequest, opts ...grpc.CallOption) (*workerrpc.HeartbeatResponse, error) {
	return &workerrpc.HeartbeatResponse{}, nil
}

func (c *fakeWorkerServiceClient) EventHub(ctx context.Context, opts ...grpc.CallOption) (workerrpc.WorkerService_EventHubClient, error) {
	if c.stream == nil {
		return nil, fmt.Errorf("no fake event stream configured")
	}
	c.stream.ctx = ctx
	return c.stream, nil
}

// fakeEventStream implements workerrpc.WorkerService_EventHubClient
// over an in-memory queue, standing in for the gRPC bidi stream.
type fakeEventStream struct {
	ctx context.Context

	mu      sync.Mutex
	pending []*workerrpc.ServerEventEnvelope
	recvErr error
	sent    []*workerrpc.ClientEventEnvelope
}

func newFakeEventStream(envelopes ...*workerrpc.ServerEventEnvelope) *fakeEventStream {
	return &fakeEventStream{pending: envelopes}
}

func (s *fakeEventStream) Send(m *workerrpc.ClientEventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
	return nil
}

func (s *fakeEventStream) Recv() (*workerrpc.ServerEventEnvelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		if s.recvErr != nil {
			return nil, s.recvErr
		}
		return nil, fmt.Errorf("fake event stream exhausted")
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, nil
}

func (s *fakeEventStream) Header() (metadata.MD, error) { return nil, nil }
func (s *fakeEventStream) Trailer() metadata.MD          { return nil }
func (s *fakeEventStream) CloseSend() error              { return nil }
func (s *fakeEventStream) Context() context.Context      { return s.ctx }
func (s *fakeEventStream) SendMsg(m interface{}) error   { return nil }
func (s *fakeEventStream) RecvMsg(m interface{}) error   { return nil }
