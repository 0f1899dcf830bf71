// Package controlapi is the daemon's operator-facing RPC surface:
// ListRuntimes, RecycleRuntime, and a server-streaming TailEvents used
// by cmd/taskrun-cli. It hand-authors its client/server stubs the same
// way pkg/workerrpc does, over the same JSON-in-place-of-protobuf
// codec, since no generated api/proto package exists in the retrieved
// reference pack.
package controlapi
