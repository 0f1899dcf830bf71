package controlapi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskrun/pkg/events"
	"github.com/cuemby/taskrun/pkg/registry"
	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/types"
)

type fakeRecycler struct {
	recycled []string
	err      error
}

func (f *fakeRecycler) Recycle(ctx context.Context, id string) error {
	f.recycled = append(f.recycled, id)
	return f.err
}

func newTestServer(t *testing.T) (*Server, *registry.Registry, *fakeRecycler) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	reg := registry.New(store)
	recycler := &fakeRecycler{}
	broker := events.NewBroker()

	return NewServer(reg, recycler, broker), reg, recycler
}

func TestListRuntimes(t *testing.T) {
	srv, reg, _ := newTestServer(t)

	_, err := reg.UpsertFromContainer(&types.RuntimeEntry{
		ID: "rt-1", State: types.LifecycleReady, MaxSlots: 4, ImageRef: "example/image:latest",
	})
	require.NoError(t, err)

	resp, err := srv.ListRuntimes(context.Background(), &ListRuntimesRequest{})
	require.NoError(t, err)
	require.Len(t, resp.Runtimes, 1)
	require.Equal(t, "rt-1", resp.Runtimes[0].ID)
	require.Equal(t, string(types.LifecycleReady), resp.Runtimes[0].State)
}

func TestRecycleRuntime_NotFound(t *testing.T) {
	srv, _, recycler := newTestServer(t)

	resp, err := srv.RecycleRuntime(context.Background(), &RecycleRuntimeRequest{RuntimeID: "missing"})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Empty(t, recycler.recycled)
}

func TestRecycleRuntime_Success(t *testing.T) {
	srv, reg, recycler := newTestServer(t)

	_, err := reg.UpsertFromContainer(&types.RuntimeEntry{ID: "rt-1", State: types.LifecycleReady, MaxSlots: 1})
	require.NoError(t, err)

	resp, err := srv.RecycleRuntime(context.Background(), &RecycleRuntimeRequest{RuntimeID: "rt-1"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	require.Equal(t, []string{"rt-1"}, recycler.recycled)
}

func TestRecycleRuntime_RecyclerError(t *testing.T) {
	srv, reg, recycler := newTestServer(t)
	recycler.err = errors.New("stop failed")

	_, err := reg.UpsertFromContainer(&types.RuntimeEntry{ID: "rt-1", State: types.LifecycleReady, MaxSlots: 1})
	require.NoError(t, err)

	resp, err := srv.RecycleRuntime(context.Background(), &RecycleRuntimeRequest{RuntimeID: "rt-1"})
	require.NoError(t, err)
	require.False(t, resp.Success)
	require.Contains(t, resp.ErrorMessage, "stop failed")
}
