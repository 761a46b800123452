package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JpChavez16/podscribe/internal/domain"
	"github.com/JpChavez16/podscribe/internal/metrics"
	"github.com/JpChavez16/podscribe/internal/storage"
)

// Reconciler reacts to chunk transcript writes and completes jobs.
type Reconciler struct {
	logger       *slog.Logger
	objects      storage.ObjectStore
	jobs         storage.JobStore
	metrics      *metrics.Metrics
	separator    string
	streamingCap int

	now func() time.Time
}

// New creates a reconciler joining chunk texts with separator. Transcription
// progress is reported in the band above streamingCap, where the encoder
// stopped counting.
func New(logger *slog.Logger, objects storage.ObjectStore, jobs storage.JobStore, m *metrics.Metrics, separator string, streamingCap int) *Reconciler {
	if streamingCap < 1 || streamingCap > 99 {
		streamingCap = 90
	}
	return &Reconciler{
		logger:       logger,
		objects:      objects,
		jobs:         jobs,
		metrics:      m,
		separator:    separator,
		streamingCap: streamingCap,
		now:          time.Now,
	}
}

// HandleTranscriptCreated runs one reconciliation pass for the job owning
// the transcript key. Transient storage failures return an error so the
// event is redelivered; conditions that cannot improve with a retry are
// logged and dropped.
func (r *Reconciler) HandleTranscriptCreated(ctx context.Context, key string) error {
	jobID, err := domain.JobIDFromTranscriptKey(key)
	if err != nil {
		// Final artifacts and foreign keys share the prefix; they are not
		// chunk transcripts and never trigger a merge.
		r.logger.Debug("ignoring non-transcript key", slog.String("key", key))
		return nil
	}
	logger := r.logger.With(slog.String("job_id", jobID))

	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			// Transcripts for unknown jobs can never reconcile.
			logger.Error("transcript for unknown job, dropping",
				slog.String("key", key))
			return nil
		}
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	if job.Status == domain.StatusCompleted {
		logger.Debug("job already completed, nothing to reconcile")
		return nil
	}
	// The chunk total is written when streaming finishes. Until then the
	// expected count is unknown and completion cannot be decided.
	if job.TotalChunks == 0 {
		logger.Debug("chunk total unknown, skipping reconciliation")
		return nil
	}

	keys, err := r.objects.List(ctx, domain.ChunkTranscriptPrefix(jobID))
	if err != nil {
		return fmt.Errorf("listing transcripts for job %s: %w", jobID, err)
	}

	if len(keys) < job.TotalChunks {
		logger.Debug("reconciliation pass, job incomplete",
			slog.Int("transcribed", len(keys)),
			slog.Int("total", job.TotalChunks))
		return r.updateProgress(ctx, jobID, len(keys), job.TotalChunks)
	}

	return r.merge(ctx, logger, job, keys)
}

// updateProgress recomputes progress from the actual transcript count,
// keeping it below 100 until completion.
func (r *Reconciler) updateProgress(ctx context.Context, jobID string, done, total int) error {
	progress := r.streamingCap + done*(100-r.streamingCap)/total
	if progress > 99 {
		progress = 99
	}

	_, err := r.jobs.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		j.AdvanceProgress(progress, 99)
		return nil
	})
	if err != nil {
		return fmt.Errorf("updating progress for job %s: %w", jobID, err)
	}
	return nil
}

// merge assembles the final transcript from all chunk transcripts and
// completes the job. The merged documents are written before the status
// flips, so observers never see a completed job without its transcript.
func (r *Reconciler) merge(ctx context.Context, logger *slog.Logger, job *domain.Job, keys []string) error {
	// List returns keys sorted lexicographically; the zero-padded index
	// makes that identical to chunk order.
	texts := make([]string, 0, len(keys))
	language := ""
	for _, key := range keys {
		data, err := r.objects.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("reading transcript %s: %w", key, err)
		}

		var chunk domain.ChunkTranscript
		if err := json.Unmarshal(data, &chunk); err != nil {
			return fmt.Errorf("decoding transcript %s: %w", key, err)
		}

		texts = append(texts, chunk.Text)
		if language == "" {
			language = chunk.Language
		}
	}

	final := domain.FinalTranscript{
		JobID:       job.ID,
		Text:        strings.Join(texts, r.separator),
		Language:    language,
		ChunkCount:  len(keys),
		CompletedAt: r.completedAt(ctx, job.ID),
	}

	jsonKey := domain.FinalTranscriptJSONKey(job.ID)
	data, err := json.Marshal(&final)
	if err != nil {
		return fmt.Errorf("encoding final transcript for job %s: %w", job.ID, err)
	}
	if err := r.objects.Put(ctx, jsonKey, data, "application/json"); err != nil {
		return fmt.Errorf("storing final transcript %s: %w", jsonKey, err)
	}

	textKey := domain.FinalTranscriptTextKey(job.ID)
	if err := r.objects.Put(ctx, textKey, []byte(final.Text), "text/plain"); err != nil {
		return fmt.Errorf("storing final transcript %s: %w", textKey, err)
	}

	updated, err := r.jobs.UpdateJob(ctx, job.ID, func(j *domain.Job) error {
		if err := j.Transition(domain.StatusCompleted); err != nil {
			return err
		}
		j.Progress = 100
		j.Message = "transcription complete"
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyCompleted) {
			// Another pass won the terminal transition. The merged
			// output it wrote is identical to ours.
			r.metrics.RecordMergeConflict()
			logger.Debug("completion already recorded by concurrent pass")
			return nil
		}
		return fmt.Errorf("completing job %s: %w", job.ID, err)
	}

	r.metrics.RecordMergeCompleted()
	r.metrics.RecordJobCompleted(updated.UpdatedAt.Sub(updated.CreatedAt).Seconds())
	logger.Info("job completed",
		slog.Int("chunks", final.ChunkCount),
		slog.Int("text_bytes", len(final.Text)))
	return nil
}

// completedAt reuses the timestamp of an already merged transcript so
// redundant passes rewrite the document byte for byte.
func (r *Reconciler) completedAt(ctx context.Context, jobID string) time.Time {
	data, err := r.objects.Get(ctx, domain.FinalTranscriptJSONKey(jobID))
	if err == nil {
		var existing domain.FinalTranscript
		if json.Unmarshal(data, &existing) == nil && !existing.CompletedAt.IsZero() {
			return existing.CompletedAt
		}
	}
	return r.now().UTC()
}
