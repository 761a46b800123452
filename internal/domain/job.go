package domain

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the lifecycle state of a transcription job.
type JobStatus string

const (
	StatusPending      JobStatus = "pending"
	StatusStreaming    JobStatus = "streaming"
	StatusTranscribing JobStatus = "transcribing"
	StatusCompleted    JobStatus = "completed"
	StatusFailed       JobStatus = "failed"
)

// ErrAlreadyCompleted is returned when a completion transition is requested
// for a job that is already completed. Callers treat it as a benign duplicate.
var ErrAlreadyCompleted = errors.New("job already completed")

// Job is the shared state record for one transcription request. It is mutated
// by the encoder, the chunk transcriber, and the reconciler, and read by
// status-polling callers. Version is the optimistic concurrency token; every
// writer must update against the version it last read.
type Job struct {
	ID          string    `json:"jobId"`
	SourceURL   string    `json:"sourceUrl"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message"`
	TotalChunks int       `json:"totalChunks"`
	Language    string    `json:"language,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Version     int64     `json:"version"`
}

// Terminal reports whether the status is a sink state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid reports whether the status is one of the known enum values.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusPending, StatusStreaming, StatusTranscribing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// ValidTransition enforces the allowed job state machine edges:
// pending -> streaming -> transcribing -> completed, with failed reachable
// from any non-terminal state.
func ValidTransition(from, to JobStatus) bool {
	if from == to {
		return true
	}

	switch from {
	case StatusPending:
		return to == StatusStreaming || to == StatusFailed
	case StatusStreaming:
		return to == StatusTranscribing || to == StatusFailed
	case StatusTranscribing:
		return to == StatusCompleted || to == StatusFailed
	case StatusCompleted, StatusFailed:
		return false
	default:
		return false
	}
}

// Transition applies a status change after validating the state machine edge.
// Requesting completed on an already-completed job returns ErrAlreadyCompleted,
// which gives the reconciler its "set completed only if not completed"
// conditional write when run inside a versioned job store update.
func (j *Job) Transition(to JobStatus) error {
	if j.Status == StatusCompleted && to == StatusCompleted {
		return ErrAlreadyCompleted
	}
	if !ValidTransition(j.Status, to) {
		return fmt.Errorf("invalid job transition: %s -> %s", j.Status, to)
	}

	j.Status = to
	return nil
}

// Fail moves the job to the failed sink with an explanatory message.
// Failing an already-terminal job is a no-op so late failure reports
// cannot clobber a completed result.
func (j *Job) Fail(message string) {
	if j.Status.Terminal() {
		return
	}
	j.Status = StatusFailed
	j.Message = message
}

// AdvanceProgress raises progress monotonically, clamped to [0, cap].
// Lower values are ignored; callers must not assume cross-writer monotonicity.
func (j *Job) AdvanceProgress(progress, cap int) {
	if progress > cap {
		progress = cap
	}
	if progress > j.Progress {
		j.Progress = progress
	}
}
