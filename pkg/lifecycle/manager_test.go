package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/taskrun/pkg/config"
	"github.com/cuemby/taskrun/pkg/imageresolver"
	"github.com/cuemby/taskrun/pkg/registry"
	"github.com/cuemby/taskrun/pkg/storage"
	"github.com/cuemby/taskrun/pkg/workerrpc"
)

func newTestManager(t *testing.T) (*Manager, *fakeEngine, *storage.BoltStore) {
	t.Helper()

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := newFakeEngine()
	leases := &fakeLeases{}
	settings := config.Defaults()
	settings.RefreshInterval = 0 // disable debounce so tests observe every call

	resolver := imageresolver.New(eng, leases, settings)
	clients := workerrpc.NewClientCache("")
	t.Cleanup(clients.CloseAll)

	reg := registry.New(store)
	mgr := New(reg, eng, resolver, leases, store, clients, settings)
	return mgr, eng, store
}
