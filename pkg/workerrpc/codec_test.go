package workerrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRegisteredAsProto(t *testing.T) {
	codec := encoding.GetCodec("proto")
	require.NotNil(t, codec)
	require.Equal(t, "proto", codec.Name())
}

func TestJSONCodecRoundTrip(t *testing.T) {
	var c jsonCodec
	req := &DispatchJobRequest{RunID: "run-1", TaskID: "task-1", Attempt: 2}

	data, err := c.Marshal(req)
	require.NoError(t, err)

	var got DispatchJobRequest
	require.NoError(t, c.Unmarshal(data, &got))
	require.Equal(t, *req, got)
}

func TestServiceDescShape(t *testing.T) {
	require.Equal(t, ServiceName, workerServiceDesc.ServiceName)
	require.Len(t, workerServiceDesc.Methods, 3)
	require.Len(t, workerServiceDesc.Streams, 1)
	require.True(t, workerServiceDesc.Streams[0].ServerStreams)
	require.True(t, workerServiceDesc.Streams[0].ClientStreams)
}
