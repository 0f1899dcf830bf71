package workerrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the gRPC service's fully-qualified name.
const ServiceName = "workerrpc.WorkerService"

// WorkerServiceClient is the dispatcher-side view of a worker's RPC
// surface.
type WorkerServiceClient interface {
	DispatchJob(ctx context.Context, in *DispatchJobRequest, opts ...grpc.CallOption) (*DispatchJobResponse, error)
	CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*CancelJobResponse, error)
	Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error)
	EventHub(ctx context.Context, opts ...grpc.CallOption) (WorkerService_EventHubClient, error)
}

type workerServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewWorkerServiceClient wraps a dialed connection to a worker.
func NewWorkerServiceClient(cc grpc.ClientConnInterface) WorkerServiceClient {
	return &workerServiceClient{cc}
}

func (c *workerServiceClient) DispatchJob(ctx context.Context, in *DispatchJobRequest, opts ...grpc.CallOption) (*DispatchJobResponse, error) {
	out := new(DispatchJobResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/DispatchJob", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) CancelJob(ctx context.Context, in *CancelJobRequest, opts ...grpc.CallOption) (*CancelJobResponse, error) {
	out := new(CancelJobResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/CancelJob", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	out := new(HeartbeatResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Heartbeat", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *workerServiceClient) EventHub(ctx context.Context, opts ...grpc.CallOption) (WorkerService_EventHubClient, error) {
	stream, err := c.cc.NewStream(ctx, &workerServiceDesc.Streams[0], "/"+ServiceName+"/EventHub", opts...)
	if err != nil {
		return nil, err
	}
	return &workerServiceEventHubClient{stream}, nil
}

// WorkerService_EventHubClient is the dispatcher's side of the
// bidirectional event stream.
type WorkerService_EventHubClient interface {
	Send(*ClientEventEnvelope) error
	Recv() (*ServerEventEnvelope, error)
	grpc.ClientStream
}

type workerServiceEventHubClient struct {
	grpc.ClientStream
}

func (x *workerServiceEventHubClient) Send(m *ClientEventEnvelope) error {
	return x.ClientStream.SendMsg(m)
}

func (x *workerServiceEventHubClient) Recv() (*ServerEventEnvelope, error) {
	m := new(ServerEventEnvelope)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// WorkerServiceServer is implemented by the worker process. Only
// referenced here so pkg/dispatch's client side and a future worker
// implementation share the same contract; this control plane is the
// RPC client, not the server.
type WorkerServiceServer interface {
	DispatchJob(context.Context, *DispatchJobRequest) (*DispatchJobResponse, error)
	CancelJob(context.Context, *CancelJobRequest) (*CancelJobResponse, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	EventHub(WorkerService_EventHubServer) error
}

// UnimplementedWorkerServiceServer can be embedded for forward
// compatibility.
type UnimplementedWorkerServiceServer struct{}

func (UnimplementedWorkerServiceServer) DispatchJob(context.Context, *DispatchJobRequest) (*DispatchJobResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DispatchJob not implemented")
}
func (UnimplementedWorkerServiceServer) CancelJob(context.Context, *CancelJobRequest) (*CancelJobResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelJob not implemented")
}
func (UnimplementedWorkerServiceServer) Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Heartbeat not implemented")
}
func (UnimplementedWorkerServiceServer) EventHub(WorkerService_EventHubServer) error {
	return status.Error(codes.Unimplemented, "method EventHub not implemented")
}

// RegisterWorkerServiceServer registers srv on s.
func RegisterWorkerServiceServer(s grpc.ServiceRegistrar, srv WorkerServiceServer) {
	s.RegisterService(&workerServiceDesc, srv)
}

func workerServiceDispatchJobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(DispatchJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServiceServer).DispatchJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/DispatchJob"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServiceServer).DispatchJob(ctx, req.(*DispatchJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func workerServiceCancelJobHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServiceServer).CancelJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/CancelJob"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServiceServer).CancelJob(ctx, req.(*CancelJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func workerServiceHeartbeatHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(HeartbeatRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(WorkerServiceServer).Heartbeat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Heartbeat"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(WorkerServiceServer).Heartbeat(ctx, req.(*HeartbeatRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func workerServiceEventHubHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(WorkerServiceServer).EventHub(&workerServiceEventHubServer{stream})
}

// WorkerService_EventHubServer is the worker's side of the
// bidirectional event stream.
type WorkerService_EventHubServer interface {
	Send(*ServerEventEnvelope) error
	Recv() (*ClientEventEnvelope, error)
	grpc.ServerStream
}

type workerServiceEventHubServer struct {
	grpc.ServerStream
}

func (x *workerServiceEventHubServer) Send(m *ServerEventEnvelope) error {
	return x.ServerStream.SendMsg(m)
}

func (x *workerServiceEventHubServer) Recv() (*ClientEventEnvelope, error) {
	m := new(ClientEventEnvelope)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

var workerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*WorkerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "DispatchJob", Handler: workerServiceDispatchJobHandler},
		{MethodName: "CancelJob", Handler: workerServiceCancelJobHandler},
		{MethodName: "Heartbeat", Handler: workerServiceHeartbeatHandler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "EventHub",
			Handler:       workerServiceEventHubHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "workerrpc/service.go",
}
