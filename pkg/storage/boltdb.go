package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/taskrun/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketRepositories = []byte("repositories")
	bucketTasks        = []byte("tasks")
	bucketProjects     = []byte("projects")
	bucketRuns         = []byte("runs")
	bucketRunLogs      = []byte("run_logs")
	bucketFindings     = []byte("findings")
	bucketRuntimes     = []byte("runtime_registrations")
	bucketSecrets      = []byte("provider_secrets")
	bucketHarnessCfg   = []byte("harness_provider_settings")
	bucketSettings     = []byte("settings")
)

// BoltStore implements Store using BoltDB, one bucket per entity type
// and JSON-encoded values keyed by ID.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) the orchestrator's BoltDB
// database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "taskrun.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketRepositories, bucketTasks, bucketProjects,
			bucketRuns, bucketRunLogs, bucketFindings,
			bucketRuntimes, bucketSecrets, bucketHarnessCfg, bucketSettings,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

// --- Repositories / Tasks / Projects (read-mostly reference data) ---

func (s *BoltStore) GetRepository(id string) (*types.Repository, error) {
	var repo types.Repository
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRepositories).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("repository not found: %s", id)
		}
		return json.Unmarshal(data, &repo)
	})
	return &repo, err
}

func (s *BoltStore) PutRepository(repo *types.Repository) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(repo)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRepositories).Put([]byte(repo.ID), data)
	})
}

func (s *BoltStore) GetTask(id string) (*types.Task, error) {
	var task types.Task
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTasks).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("task not found: %s", id)
		}
		return json.Unmarshal(data, &task)
	})
	return &task, err
}

func (s *BoltStore) PutTask(task *types.Task) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(task)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketTasks).Put([]byte(task.ID), data)
	})
}

func (s *BoltStore) GetProject(id string) (*types.Project, error) {
	var project types.Project
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketProjects).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("project not found: %s", id)
		}
		return json.Unmarshal(data, &project)
	})
	return &project, err
}

func (s *BoltStore) PutProject(project *types.Project) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(project)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketProjects).Put([]byte(project.ID), data)
	})
}

// --- Runs ---

func (s *BoltStore) CreateRun(run *types.Run) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(run)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRuns).Put([]byte(run.ID), data)
	})
}

func (s *BoltStore) GetRun(id string) (*types.Run, error) {
	var run types.Run
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuns).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("run not found: %s", id)
		}
		return json.Unmarshal(data, &run)
	})
	return &run, err
}

func (s *BoltStore) listRuns(filter func(*types.Run) bool) ([]*types.Run, error) {
	var runs []*types.Run
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuns).ForEach(func(k, v []byte) error {
			var run types.Run
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			if filter == nil || filter(&run) {
				runs = append(runs, &run)
			}
			return nil
		})
	})
	return runs, err
}

func (s *BoltStore) ListRunsByTask(taskID string) ([]*types.Run, error) {
	return s.listRuns(func(r *types.Run) bool { return r.TaskID == taskID })
}

func (s *BoltStore) ListRunsByState(state types.RunState) ([]*types.Run, error) {
	return s.listRuns(func(r *types.Run) bool { return r.State == state })
}

func isActiveRunState(state types.RunState) bool {
	switch state {
	case types.RunQueued, types.RunApproved, types.RunDispatched, types.RunStarted:
		return true
	default:
		return false
	}
}

func (s *BoltStore) CountActiveRunsByProject(projectID string) (int, error) {
	runs, err := s.listRuns(func(r *types.Run) bool {
		return r.ProjectID == projectID && isActiveRunState(r.State)
	})
	return len(runs), err
}

func (s *BoltStore) CountActiveRunsByRepository(repoID string) (int, error) {
	runs, err := s.listRuns(func(r *types.Run) bool {
		return r.RepositoryID == repoID && isActiveRunState(r.State)
	})
	return len(runs), err
}

func (s *BoltStore) CountActiveRunsByTask(taskID string) (int, error) {
	runs, err := s.listRuns(func(r *types.Run) bool {
		return r.TaskID == taskID && isActiveRunState(r.State)
	})
	return len(runs), err
}

func (s *BoltStore) CountActiveRuns() (int, error) {
	runs, err := s.listRuns(func(r *types.Run) bool { return isActiveRunState(r.State) })
	return len(runs), err
}

func (s *BoltStore) CountQueuedRuns() (int, error) {
	runs, err := s.listRuns(func(r *types.Run) bool { return r.State == types.RunQueued })
	return len(runs), err
}

func (s *BoltStore) UpdateRunState(id string, state types.RunState) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	run.State = state
	return s.CreateRun(run)
}

func (s *BoltStore) SetRunRuntime(id string, runtimeID string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	run.RuntimeID = runtimeID
	return s.CreateRun(run)
}

func (s *BoltStore) SetRunFailure(id string, class types.FailureClass, message string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	run.FailureClass = class
	run.FailureMessage = message
	return s.CreateRun(run)
}

func (s *BoltStore) SetRunProxyRoute(id string, routeID string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	run.ProxyRouteID = routeID
	return s.CreateRun(run)
}

func (s *BoltStore) MarkRunPendingApproval(id string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	run.State = types.RunPendingApproval
	run.ApprovalState = string(types.RunPendingApproval)
	return s.CreateRun(run)
}

func (s *BoltStore) MarkRunStarted(id, runtimeID, imageRef, imageDigest string, imageSource types.ImageSource) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	run.State = types.RunStarted
	run.RuntimeID = runtimeID
	run.ImageRef = imageRef
	run.ImageDigest = imageDigest
	run.ImageSource = imageSource
	run.StartedAt = time.Now()
	return s.CreateRun(run)
}

func (s *BoltStore) MarkRunCompleted(id string, succeeded bool, summary, outputJSON string, failureClass types.FailureClass, prURL string) error {
	run, err := s.GetRun(id)
	if err != nil {
		return err
	}
	if succeeded {
		run.State = types.RunCompleted
	} else {
		run.State = types.RunFailed
	}
	run.Succeeded = succeeded
	run.Summary = summary
	run.OutputJSON = outputJSON
	run.FailureClass = failureClass
	run.PRURL = prURL
	run.EndedAt = time.Now()
	return s.CreateRun(run)
}

// --- Run logs ---

func (s *BoltStore) AppendRunLog(event *types.RunLogEvent) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket(bucketRunLogs).CreateBucketIfNotExists([]byte(event.RunID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		event.Seq = int64(seq)
		data, err := json.Marshal(event)
		if err != nil {
			return err
		}
		key := []byte(fmt.Sprintf("%020d", event.Seq))
		return b.Put(key, data)
	})
}

func (s *BoltStore) ListRunLogs(runID string, sinceSeq int64) ([]*types.RunLogEvent, error) {
	var events []*types.RunLogEvent
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRunLogs).Bucket([]byte(runID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var event types.RunLogEvent
			if err := json.Unmarshal(v, &event); err != nil {
				return err
			}
			if event.Seq > sinceSeq {
				events = append(events, &event)
			}
			return nil
		})
	})
	return events, err
}

// --- Findings ---

func (s *BoltStore) CreateFinding(finding *types.Finding) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(finding)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFindings).Put([]byte(finding.ID), data)
	})
}

func (s *BoltStore) ListFindingsByRun(runID string) ([]*types.Finding, error) {
	var findings []*types.Finding
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFindings).ForEach(func(k, v []byte) error {
			var finding types.Finding
			if err := json.Unmarshal(v, &finding); err != nil {
				return err
			}
			if finding.RunID == runID {
				findings = append(findings, &finding)
			}
			return nil
		})
	})
	return findings, err
}

// --- Runtime registrations ---

func (s *BoltStore) UpsertRuntimeRegistration(entry *types.RuntimeEntry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketRuntimes).Put([]byte(entry.ID), data)
	})
}

func (s *BoltStore) GetRuntimeRegistration(id string) (*types.RuntimeEntry, error) {
	var entry types.RuntimeEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketRuntimes).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("runtime registration not found: %s", id)
		}
		return json.Unmarshal(data, &entry)
	})
	return &entry, err
}

func (s *BoltStore) ListRuntimeRegistrations() ([]*types.RuntimeEntry, error) {
	var entries []*types.RuntimeEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuntimes).ForEach(func(k, v []byte) error {
			var entry types.RuntimeEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, &entry)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) DeleteRuntimeRegistration(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRuntimes).Delete([]byte(id))
	})
}

func (s *BoltStore) MarkStaleRegistrationsOffline(olderThanSeconds int64) (int, error) {
	entries, err := s.ListRuntimeRegistrations()
	if err != nil {
		return 0, err
	}
	cutoff := nowUnix() - olderThanSeconds
	marked := 0
	for _, entry := range entries {
		if entry.LastHeartbeatAt.Unix() < cutoff && entry.State != types.LifecycleOffline {
			entry.State = types.LifecycleOffline
			if err := s.UpsertRuntimeRegistration(entry); err != nil {
				return marked, err
			}
			marked++
		}
	}
	return marked, nil
}

// --- Provider secrets / harness provider settings ---

func secretKey(provider, key string) []byte {
	return []byte(provider + "/" + key)
}

func (s *BoltStore) GetProviderSecret(provider, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSecrets).Get(secretKey(provider, key))
		if data == nil {
			return fmt.Errorf("secret not found: %s/%s", provider, key)
		}
		value = string(data)
		return nil
	})
	return value, err
}

func (s *BoltStore) PutProviderSecret(provider, key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSecrets).Put(secretKey(provider, key), []byte(value))
	})
}

func (s *BoltStore) GetHarnessProviderSettings(provider string) (map[string]string, error) {
	settings := make(map[string]string)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketHarnessCfg).Get([]byte(provider))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &settings)
	})
	return settings, err
}

func (s *BoltStore) PutHarnessProviderSettings(provider string, settings map[string]string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(settings)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketHarnessCfg).Put([]byte(provider), data)
	})
}

// --- Global settings ---

func (s *BoltStore) GetSetting(key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSettings).Get([]byte(key))
		if data == nil {
			return fmt.Errorf("setting not found: %s", key)
		}
		value = string(data)
		return nil
	})
	return value, err
}

func (s *BoltStore) PutSetting(key, value string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(key), []byte(value))
	})
}

func nowUnix() int64 {
	return time.Now().Unix()
}
