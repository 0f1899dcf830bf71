package lease

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hashicorp/raft"
)

// leaseFSM is the Raft finite state machine backing the Lease
// Coordinator. It applies acquire/release commands against a
// replicated map[string]*leaseRecord.
type leaseFSM struct {
	mu     sync.RWMutex
	leases map[string]*leaseRecord
}

type leaseRecord struct {
	Key       string    `json:"key"`
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

func newLeaseFSM() *leaseFSM {
	return &leaseFSM{leases: make(map[string]*leaseRecord)}
}

// command is a state change operation in the Raft log.
type command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type acquireCmd struct {
	Key     string    `json:"key"`
	Holder  string    `json:"holder"`
	Expires time.Time `json:"expires"`
}

type releaseCmd struct {
	Key    string `json:"key"`
	Holder string `json:"holder"`
}

// applyResult is returned from Apply and inspected by the caller after
// future.Response().
type applyResult struct {
	acquired bool
	err      error
}

func (f *leaseFSM) Apply(log *raft.Log) interface{} {
	var cmd command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return applyResult{err: fmt.Errorf("unmarshal command: %w", err)}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case "acquire":
		var a acquireCmd
		if err := json.Unmarshal(cmd.Data, &a); err != nil {
			return applyResult{err: err}
		}
		now := time.Now()
		existing, held := f.leases[a.Key]
		if held && existing.Holder != a.Holder && existing.ExpiresAt.After(now) {
			return applyResult{acquired: false}
		}
		f.leases[a.Key] = &leaseRecord{Key: a.Key, Holder: a.Holder, ExpiresAt: a.Expires}
		return applyResult{acquired: true}

	case "release":
		var r releaseCmd
		if err := json.Unmarshal(cmd.Data, &r); err != nil {
			return applyResult{err: err}
		}
		if existing, held := f.leases[r.Key]; held && existing.Holder == r.Holder {
			delete(f.leases, r.Key)
		}
		return applyResult{acquired: true}

	default:
		return applyResult{err: fmt.Errorf("unknown lease command: %s", cmd.Op)}
	}
}

func (f *leaseFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	records := make([]*leaseRecord, 0, len(f.leases))
	for _, r := range f.leases {
		records = append(records, r)
	}
	return &leaseSnapshot{records: records}, nil
}

func (f *leaseFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var records []*leaseRecord
	if err := json.NewDecoder(rc).Decode(&records); err != nil {
		return fmt.Errorf("decode lease snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.leases = make(map[string]*leaseRecord, len(records))
	for _, r := range records {
		f.leases[r.Key] = r
	}
	return nil
}

type leaseSnapshot struct {
	records []*leaseRecord
}

func (s *leaseSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.records); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *leaseSnapshot) Release() {}
