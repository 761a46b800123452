package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JpChavez16/podscribe/internal/domain"
)

// FSObjectStore implements ObjectStore on the local filesystem, mapping object
// keys to relative paths under baseDir/objects. Writes are staged to a temp
// file and renamed so readers and listings never observe partial objects,
// which keeps List read-after-write consistent.
type FSObjectStore struct {
	baseDir string
}

// NewFSObjectStore creates a filesystem object store rooted at baseDir.
func NewFSObjectStore(baseDir string) (*FSObjectStore, error) {
	root := filepath.Join(baseDir, "objects")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object root %s: %w", root, err)
	}
	return &FSObjectStore{baseDir: root}, nil
}

// Put stores data under key, overwriting any existing object atomically.
func (s *FSObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".put-*")
	if err != nil {
		return fmt.Errorf("failed to stage object %s: %w", key, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close object %s: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to publish object %s: %w", key, err)
	}
	return nil
}

// Get returns the object stored under key.
func (s *FSObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	return data, nil
}

// List returns all keys under prefix in lexicographic order.
func (s *FSObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	err := filepath.WalkDir(s.baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".put-") {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
	}

	sort.Strings(keys)
	return keys, nil
}

// pathFor maps a key to a filesystem path, rejecting traversal outside the root.
func (s *FSObjectStore) pathFor(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("object key cannot be empty")
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid object key: %s", key)
	}
	return filepath.Join(s.baseDir, clean), nil
}

// FSJobStore implements JobStore with one JSON file per job under
// baseDir/jobs. The optimistic version check is guarded by a process-wide
// mutex; the fs backend serves single-node deployments where all components
// run in one process.
type FSJobStore struct {
	baseDir string
	mu      sync.Mutex
	now     func() time.Time
}

// NewFSJobStore creates a filesystem job table rooted at baseDir.
func NewFSJobStore(baseDir string) (*FSJobStore, error) {
	root := filepath.Join(baseDir, "jobs")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create jobs root %s: %w", root, err)
	}
	return &FSJobStore{baseDir: root, now: time.Now}, nil
}

// CreateJob inserts a new job record at version 1.
func (s *FSJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.jobPath(job.ID)
	if _, err := os.Stat(path); err == nil {
		return ErrJobExists
	}

	stored := *job
	stored.Version = 1
	stored.UpdatedAt = s.now().UTC()
	if err := s.write(path, &stored); err != nil {
		return err
	}
	job.Version = stored.Version
	return nil
}

// GetJob returns the job record stored under jobID.
func (s *FSJobStore) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(jobID)
}

// UpdateJob applies mutate under an optimistic version check, retrying against
// fresh state on conflict.
func (s *FSJobStore) UpdateJob(ctx context.Context, jobID string, mutate func(*domain.Job) error) (*domain.Job, error) {
	for attempt := 0; attempt < updateRetryLimit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		s.mu.Lock()
		loaded, err := s.read(jobID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		readVersion := loaded.Version
		s.mu.Unlock()

		if err := mutate(loaded); err != nil {
			return nil, err
		}

		s.mu.Lock()
		current, err := s.read(jobID)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if current.Version != readVersion {
			s.mu.Unlock()
			continue
		}

		loaded.Version = readVersion + 1
		loaded.UpdatedAt = s.now().UTC()
		if err := s.write(s.jobPath(jobID), loaded); err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.mu.Unlock()

		copied := *loaded
		return &copied, nil
	}

	return nil, ErrVersionConflict
}

// ListJobs returns all job records.
func (s *FSJobStore) ListJobs(ctx context.Context) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*domain.Job, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := s.read(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, nil
}

// DeleteJob removes a job record; deleting an absent job is a no-op.
func (s *FSJobStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.jobPath(jobID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

func (s *FSJobStore) jobPath(jobID string) string {
	return filepath.Join(s.baseDir, jobID+".json")
}

func (s *FSJobStore) read(jobID string) (*domain.Job, error) {
	data, err := os.ReadFile(s.jobPath(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}

	var job domain.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to parse job %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *FSJobStore) write(path string, job *domain.Job) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to stage job %s: %w", job.ID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish job %s: %w", job.ID, err)
	}
	return nil
}
