package controlapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the gRPC service's fully-qualified name.
const ServiceName = "controlapi.ControlService"

// ControlServiceClient is the CLI-side view of the daemon's operator
// surface ("inspect registry, force-recycle, tail events").
type ControlServiceClient interface {
	ListRuntimes(ctx context.Context, in *ListRuntimesRequest, opts ...grpc.CallOption) (*ListRuntimesResponse, error)
	RecycleRuntime(ctx context.Context, in *RecycleRuntimeRequest, opts ...grpc.CallOption) (*RecycleRuntimeResponse, error)
	TailEvents(ctx context.Context, in *TailEventsRequest, opts ...grpc.CallOption) (ControlService_TailEventsClient, error)
}

type controlServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewControlServiceClient wraps a dialed connection to the daemon.
func NewControlServiceClient(cc grpc.ClientConnInterface) ControlServiceClient {
	return &controlServiceClient{cc}
}

func (c *controlServiceClient) ListRuntimes(ctx context.Context, in *ListRuntimesRequest, opts ...grpc.CallOption) (*ListRuntimesResponse, error) {
	out := new(ListRuntimesResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/ListRuntimes", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlServiceClient) RecycleRuntime(ctx context.Context, in *RecycleRuntimeRequest, opts ...grpc.CallOption) (*RecycleRuntimeResponse, error) {
	out := new(RecycleRuntimeResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/RecycleRuntime", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlServiceClient) TailEvents(ctx context.Context, in *TailEventsRequest, opts ...grpc.CallOption) (ControlService_TailEventsClient, error) {
	stream, err := c.cc.NewStream(ctx, &controlServiceDesc.Streams[0], "/"+ServiceName+"/TailEvents", opts...)
	if err != nil {
		return nil, err
	}
	x := &controlServiceTailEventsClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// ControlService_TailEventsClient is the CLI's side of the server-push
// event stream.
type ControlService_TailEventsClient interface {
	Recv() (*EventMessage, error)
	grpc.ClientStream
}

type controlServiceTailEventsClient struct {
	grpc.ClientStream
}

func (x *controlServiceTailEventsClient) Recv() (*EventMessage, error) {
	m := new(EventMessage)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ControlServiceServer is implemented by the daemon.
type ControlServiceServer interface {
	ListRuntimes(context.Context, *ListRuntimesRequest) (*ListRuntimesResponse, error)
	RecycleRuntime(context.Context, *RecycleRuntimeRequest) (*RecycleRuntimeResponse, error)
	TailEvents(*TailEventsRequest, ControlService_TailEventsServer) error
}

// UnimplementedControlServiceServer can be embedded for forward
// compatibility.
type UnimplementedControlServiceServer struct{}

func (UnimplementedControlServiceServer) ListRuntimes(context.Context, *ListRuntimesRequest) (*ListRuntimesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListRuntimes not implemented")
}
func (UnimplementedControlServiceServer) RecycleRuntime(context.Context, *RecycleRuntimeRequest) (*RecycleRuntimeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RecycleRuntime not implemented")
}
func (UnimplementedControlServiceServer) TailEvents(*TailEventsRequest, ControlService_TailEventsServer) error {
	return status.Error(codes.Unimplemented, "method TailEvents not implemented")
}

// RegisterControlServiceServer registers srv on s.
func RegisterControlServiceServer(s grpc.ServiceRegistrar, srv ControlServiceServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

func controlServiceListRuntimesHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(ListRuntimesRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServiceServer).ListRuntimes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/ListRuntimes"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServiceServer).ListRuntimes(ctx, req.(*ListRuntimesRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func controlServiceRecycleRuntimeHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(RecycleRuntimeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServiceServer).RecycleRuntime(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RecycleRuntime"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServiceServer).RecycleRuntime(ctx, req.(*RecycleRuntimeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func controlServiceTailEventsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(TailEventsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ControlServiceServer).TailEvents(in, &controlServiceTailEventsServer{stream})
}

// ControlService_TailEventsServer is the daemon's side of the
// server-push event stream.
type ControlService_TailEventsServer interface {
	Send(*EventMessage) error
	grpc.ServerStream
}

type controlServiceTailEventsServer struct {
	grpc.ServerStream
}

func (x *controlServiceTailEventsServer) Send(m *EventMessage) error {
	return x.ServerStream.SendMsg(m)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListRuntimes", Handler: controlServiceListRuntimesHandler},
		{MethodName: "RecycleRuntime", Handler: controlServiceRecycleRuntimeHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "TailEvents", Handler: controlServiceTailEventsHandler, ServerStreams: true},
	},
	Metadata: "controlapi.proto",
}
