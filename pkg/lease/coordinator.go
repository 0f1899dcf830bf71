package lease

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/taskrun/pkg/log"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// Lease is a held distributed lock; call Release when done.
type Lease struct {
	key        string
	holder     string
	expiresAt  time.Time
	coordinator *Coordinator
}

// Release gives up the lease early. Safe to call more than once.
func (l *Lease) Release() error {
	if l == nil {
		return nil
	}
	return l.coordinator.release(l.key, l.holder)
}

// ExpiresAt reports when the lease expires if not renewed.
func (l *Lease) ExpiresAt() time.Time { return l.expiresAt }

// Config configures a single-node (or single-cluster-namespace)
// Raft-backed Coordinator.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string
}

// Coordinator implements the distributed Lease Coordinator
// as a single-purpose Raft replicated state machine: try_acquire(key,
// ttl) -> Lease?. A single-node deployment bootstraps a one-node Raft
// cluster, which is enough to make acquisition linearizable across
// restarts of the same process without requiring multi-node operation.
type Coordinator struct {
	nodeID string
	raft   *raft.Raft
	fsm    *leaseFSM
}

// NewCoordinator creates and bootstraps the coordinator's Raft
// instance under dataDir.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create lease data dir: %w", err)
	}

	fsm := newLeaseFSM()

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.HeartbeatTimeout = 500 * time.Millisecond
	raftCfg.ElectionTimeout = 500 * time.Millisecond
	raftCfg.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("resolve lease bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create lease raft transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("create lease snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "lease-log.db"))
	if err != nil {
		return nil, fmt.Errorf("create lease log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "lease-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("create lease stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("create lease raft: %w", err)
	}

	future := r.BootstrapCluster(raft.Configuration{
		Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
	})
	if err := future.Error(); err != nil && err != raft.ErrCantBootstrap {
		return nil, fmt.Errorf("bootstrap lease cluster: %w", err)
	}

	return &Coordinator{nodeID: cfg.NodeID, raft: r, fsm: fsm}, nil
}

// TryAcquire attempts to acquire the named lease for ttl. Returns nil,
// nil if another holder currently holds it. The lease must be held on
// the Raft leader; followers return an error.
func (c *Coordinator) TryAcquire(key string, ttl time.Duration) (*Lease, error) {
	if c.raft.State() != raft.Leader {
		return nil, fmt.Errorf("lease coordinator: not leader")
	}

	holder := fmt.Sprintf("%s-%d", c.nodeID, time.Now().UnixNano())
	expires := time.Now().Add(ttl)

	data, err := json.Marshal(acquireCmd{Key: key, Holder: holder, Expires: expires})
	if err != nil {
		return nil, err
	}
	cmd, err := json.Marshal(command{Op: "acquire", Data: data})
	if err != nil {
		return nil, err
	}

	future := c.raft.Apply(cmd, 5*time.Second)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("apply lease acquire: %w", err)
	}

	result, ok := future.Response().(applyResult)
	if !ok {
		return nil, fmt.Errorf("lease coordinator: unexpected apply response")
	}
	if result.err != nil {
		return nil, result.err
	}
	if !result.acquired {
		return nil, nil
	}

	log.WithComponent("lease").Debug().Str("key", key).Dur("ttl", ttl).Msg("lease acquired")
	return &Lease{key: key, holder: holder, expiresAt: expires, coordinator: c}, nil
}

func (c *Coordinator) release(key, holder string) error {
	data, err := json.Marshal(releaseCmd{Key: key, Holder: holder})
	if err != nil {
		return err
	}
	cmd, err := json.Marshal(command{Op: "release", Data: data})
	if err != nil {
		return err
	}
	future := c.raft.Apply(cmd, 5*time.Second)
	return future.Error()
}

// IsLeader reports whether this node currently holds Raft leadership.
func (c *Coordinator) IsLeader() bool {
	return c.raft.State() == raft.Leader
}

// Shutdown stops the coordinator's Raft instance.
func (c *Coordinator) Shutdown() error {
	return c.raft.Shutdown().Error()
}
