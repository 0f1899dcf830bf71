package workerrpc

import (
	"fmt"
	"sync"

	"google.golang.org/grpc"
)

// cachedClient pairs a dialed connection with the endpoint it was
// dialed for, so a later endpoint change is detected as a cache miss
// rather than silently reused.
type cachedClient struct {
	endpoint string
	conn     *grpc.ClientConn
	client   WorkerServiceClient
}

// ClientCache caches worker RPC clients by runtime_id, evicting an
// entry whenever the runtime's endpoint changes or it disappears.
// Grounded on cache policy, shared by the lifecycle manager
// (wait-ready heartbeat probes) and the dispatcher (job RPCs, event
// hub) so both components observe one eviction, not two.
type ClientCache struct {
	certDir string

	mu      sync.Mutex
	entries map[string]*cachedClient
}

// NewClientCache creates an empty cache. certDir is passed to Dial for
// every new connection; empty means plaintext.
func NewClientCache(certDir string) *ClientCache {
	return &ClientCache{certDir: certDir, entries: make(map[string]*cachedClient)}
}

// Get returns the cached client for runtimeID if its endpoint matches,
// dialing a fresh connection otherwise.
func (c *ClientCache) Get(runtimeID, endpoint string) (WorkerServiceClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[runtimeID]; ok {
		if entry.endpoint == endpoint {
			return entry.client, nil
		}
		entry.conn.Close()
		delete(c.entries, runtimeID)
	}

	conn, err := Dial(endpoint, c.certDir)
	if err != nil {
		return nil, fmt.Errorf("dial worker %s at %s: %w", runtimeID, endpoint, err)
	}
	client := NewWorkerServiceClient(conn)
	c.entries[runtimeID] = &cachedClient{endpoint: endpoint, conn: conn, client: client}
	return client, nil
}

// Evict drops and closes the cached connection for runtimeID, if any.
func (c *ClientCache) Evict(runtimeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[runtimeID]; ok {
		entry.conn.Close()
		delete(c.entries, runtimeID)
	}
}

// Known reports the set of runtime IDs currently cached, used by
// callers to drop entries for runtimes no longer present in a fresh
// snapshot.
func (c *ClientCache) Known() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	return ids
}

// CloseAll tears down every cached connection.
func (c *ClientCache) CloseAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, entry := range c.entries {
		entry.conn.Close()
		delete(c.entries, id)
	}
}
