package transcriber

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/JpChavez16/podscribe/internal/domain"
	"github.com/JpChavez16/podscribe/internal/storage"
)

// Worker transcribes one uploaded chunk per object-created event.
type Worker struct {
	logger        *slog.Logger
	objects       storage.ObjectStore
	jobs          storage.JobStore
	engine        Engine
	model         string
	chunkDuration float64
}

// NewWorker creates a worker shifting timestamps by chunkDuration seconds
// per chunk index.
func NewWorker(logger *slog.Logger, objects storage.ObjectStore, jobs storage.JobStore, engine Engine, model string, chunkDuration float64) *Worker {
	return &Worker{
		logger:        logger,
		objects:       objects,
		jobs:          jobs,
		engine:        engine,
		model:         model,
		chunkDuration: chunkDuration,
	}
}

// HandleChunkCreated processes one chunk key. Malformed keys are logged
// and dropped; transient failures return an error so delivery is retried.
// Reprocessing a chunk rewrites the same transcript document, so repeated
// deliveries are safe.
func (w *Worker) HandleChunkCreated(ctx context.Context, key string) error {
	jobID, err := domain.JobIDFromChunkKey(key)
	if err != nil {
		w.logger.Error("dropping malformed chunk key",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil
	}
	index, err := domain.ParseChunkIndex(key)
	if err != nil {
		// A key that matched the chunk layout but carries a malformed
		// index can never become valid. Dropping beats guessing index 0.
		w.logger.Error("dropping chunk with unparseable index",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil
	}

	logger := w.logger.With(
		slog.String("job_id", jobID),
		slog.Int("chunk_index", index))

	// The job record carries the requested recognition language. A chunk
	// whose job is gone can never reconcile, so it is dropped here.
	job, err := w.jobs.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			logger.Warn("chunk for missing job, dropping")
			return nil
		}
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	wav, err := w.objects.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("fetching chunk %s: %w", key, err)
	}

	result, err := w.engine.Transcribe(ctx, wav, path.Base(key), job.Language)
	if err != nil {
		return fmt.Errorf("transcribing chunk %s: %w", key, err)
	}

	// Segment timestamps arrive relative to the chunk; shift them onto
	// the job timeline using the nominal chunk duration.
	offset := float64(index) * w.chunkDuration
	segments := make([]domain.Segment, len(result.Segments))
	for i, seg := range result.Segments {
		seg.Start += offset
		seg.End += offset
		segments[i] = seg
	}

	transcript := domain.ChunkTranscript{
		JobID:      jobID,
		ChunkIndex: index,
		Text:       result.Text,
		Segments:   segments,
		Language:   result.Language,
		SourceKey:  key,
		Model:      w.model,
	}
	data, err := json.Marshal(&transcript)
	if err != nil {
		return fmt.Errorf("encoding transcript for chunk %s: %w", key, err)
	}

	transcriptKey := domain.ChunkTranscriptKey(jobID, index)
	if err := w.objects.Put(ctx, transcriptKey, data, "application/json"); err != nil {
		return fmt.Errorf("storing transcript %s: %w", transcriptKey, err)
	}

	// Touch the job so the stall watchdog sees forward motion. The message
	// is informational only; the reconciler computes real completion. A job
	// deleted mid-flight is not an error worth retrying.
	_, err = w.jobs.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		if j.Status == domain.StatusTranscribing {
			j.Message = fmt.Sprintf("transcribed chunk %d", index)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			logger.Warn("transcribed chunk for missing job")
			return nil
		}
		return fmt.Errorf("touching job %s: %w", jobID, err)
	}

	logger.Debug("chunk transcribed", slog.String("transcript_key", transcriptKey))
	return nil
}
