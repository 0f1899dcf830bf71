// Package workerrpc is the worker RPC surface: DispatchJob, CancelJob,
// Heartbeat and a bidirectional EventHub stream. With no generated
// proto package available, this package hand-authors the client/server
// stubs and grpc.ServiceDesc a protoc-gen-go-grpc run would normally
// produce, and carries plain Go structs over the wire via a JSON codec
// registered under the default "proto" content-subtype instead of
// protobuf-generated marshaling.
package workerrpc
