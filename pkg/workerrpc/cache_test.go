package workerrpc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientCacheReusesSameEndpoint(t *testing.T) {
	c := NewClientCache("")
	defer c.CloseAll()

	first, err := c.Get("rt-1", "127.0.0.1:5201")
	require.NoError(t, err)
	second, err := c.Get("rt-1", "127.0.0.1:5201")
	require.NoError(t, err)
	require.Same(t, first, second)
}

func TestClientCacheRedialsOnEndpointChange(t *testing.T) {
	c := NewClientCache("")
	defer c.CloseAll()

	first, err := c.Get("rt-1", "127.0.0.1:5201")
	require.NoError(t, err)
	second, err := c.Get("rt-1", "127.0.0.1:5202")
	require.NoError(t, err)
	require.NotSame(t, first, second)
}

func TestClientCacheEvict(t *testing.T) {
	c := NewClientCache("")
	_, err := c.Get("rt-1", "127.0.0.1:5201")
	require.NoError(t, err)
	require.Len(t, c.Known(), 1)

	c.Evict("rt-1")
	require.Empty(t, c.Known())
}
