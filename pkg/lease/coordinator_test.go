package lease

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(Config{
		NodeID:   "node-1",
		BindAddr: "127.0.0.1:0",
		DataDir:  t.TempDir(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Shutdown() })

	require.Eventually(t, c.IsLeader, 5*time.Second, 10*time.Millisecond)
	return c
}

func TestTryAcquireAndRelease(t *testing.T) {
	c := newTestCoordinator(t)

	lease, err := c.TryAcquire("worker-scale", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)

	blocked, err := c.TryAcquire("worker-scale", time.Second)
	require.NoError(t, err)
	require.Nil(t, blocked)

	require.NoError(t, lease.Release())

	reacquired, err := c.TryAcquire("worker-scale", time.Second)
	require.NoError(t, err)
	require.NotNil(t, reacquired)
}

func TestLeaseExpiresAllowingNewHolder(t *testing.T) {
	c := newTestCoordinator(t)

	_, err := c.TryAcquire("image-resolve:myimage", 10*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	lease, err := c.TryAcquire("image-resolve:myimage", time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease)
}
