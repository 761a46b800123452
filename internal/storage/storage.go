package storage

import (
	"context"
	"errors"

	"github.com/JpChavez16/podscribe/internal/domain"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// ErrJobNotFound is returned when a job id is absent from the job table.
var ErrJobNotFound = errors.New("job not found")

// ErrJobExists is returned when creating a job whose id is already taken.
var ErrJobExists = errors.New("job already exists")

// ErrVersionConflict is returned by a conditional job write whose version
// check failed. UpdateJob retries on it internally; it surfaces only when the
// retry budget is exhausted.
var ErrVersionConflict = errors.New("job version conflict")

// ObjectStore provides the blob primitives shared by all pipeline components.
// List must be read-after-write consistent: a key returned by a successful Put
// appears in subsequent listings. Completion detection depends on it.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// JobStore provides access to the shared job table. Every mutation goes
// through UpdateJob so that concurrent uncoordinated writers cannot silently
// overwrite each other: each write is conditional on the record version the
// writer read, and conflicting writes are re-applied against fresh state.
type JobStore interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)

	// UpdateJob loads the job, applies mutate to a copy, and writes the copy
	// back conditional on the loaded version, retrying the whole cycle on
	// conflict. An error returned by mutate aborts the update and propagates
	// unchanged, which is how conditional transitions (for example "complete
	// only if not completed") reject losers of a race.
	UpdateJob(ctx context.Context, jobID string, mutate func(*domain.Job) error) (*domain.Job, error)

	// ListJobs returns a snapshot of all job records, for the watchdog.
	ListJobs(ctx context.Context) ([]*domain.Job, error)

	DeleteJob(ctx context.Context, jobID string) error
}

// NotifyFunc receives the key of a newly created object.
type NotifyFunc func(key string)

// NotifyingObjectStore decorates an ObjectStore with object-created
// notifications, modeling the storage substrate's event trigger. Notify runs
// after a successful Put; delivery downstream is at-least-once and unordered.
type NotifyingObjectStore struct {
	Inner  ObjectStore
	Notify NotifyFunc
}

// Put stores the object and emits a creation notification.
func (n *NotifyingObjectStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := n.Inner.Put(ctx, key, data, contentType); err != nil {
		return err
	}
	if n.Notify != nil {
		n.Notify(key)
	}
	return nil
}

// Get returns the object stored under key.
func (n *NotifyingObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	return n.Inner.Get(ctx, key)
}

// List returns all keys under prefix.
func (n *NotifyingObjectStore) List(ctx context.Context, prefix string) ([]string, error) {
	return n.Inner.List(ctx, prefix)
}
