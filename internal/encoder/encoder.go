package encoder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/JpChavez16/podscribe/internal/audio"
	"github.com/JpChavez16/podscribe/internal/domain"
	"github.com/JpChavez16/podscribe/internal/media"
	"github.com/JpChavez16/podscribe/internal/metrics"
	"github.com/JpChavez16/podscribe/internal/storage"
)

// DecodeStream is the PCM stream consumed chunk by chunk.
type DecodeStream interface {
	ReadChunk(buf []byte) (int, error)
	Stderr() string
	Close() error
}

// Resolver maps a source URL to a direct media URL.
type Resolver interface {
	Resolve(ctx context.Context, sourceURL string) string
}

// Prober reports media duration in seconds, 0 when unknown.
type Prober interface {
	Duration(ctx context.Context, mediaURL string) float64
}

// Opener starts a decode stream for a media URL.
type Opener interface {
	Open(ctx context.Context, mediaURL string, params audio.Params) (DecodeStream, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, mediaURL string, params audio.Params) (DecodeStream, error)

func (f OpenerFunc) Open(ctx context.Context, mediaURL string, params audio.Params) (DecodeStream, error) {
	return f(ctx, mediaURL, params)
}

// Encoder runs the chunk encoding stage for one job at a time.
type Encoder struct {
	logger        *slog.Logger
	jobs          storage.JobStore
	objects       storage.ObjectStore
	resolver      Resolver
	prober        Prober
	opener        Opener
	metrics       *metrics.Metrics
	params        audio.Params
	chunkDuration float64
	progressCap   int
}

// New creates an encoder writing chunks of chunkDuration seconds.
func New(
	logger *slog.Logger,
	jobs storage.JobStore,
	objects storage.ObjectStore,
	resolver Resolver,
	prober Prober,
	opener Opener,
	m *metrics.Metrics,
	params audio.Params,
	chunkDuration float64,
	progressCap int,
) *Encoder {
	return &Encoder{
		logger:        logger,
		jobs:          jobs,
		objects:       objects,
		resolver:      resolver,
		prober:        prober,
		opener:        opener,
		metrics:       m,
		params:        params,
		chunkDuration: chunkDuration,
		progressCap:   progressCap,
	}
}

// Encode processes one job end to end: resolve, probe, decode, upload.
// On success the job carries its final chunk count and has advanced to
// the transcribing status. Any failure marks the job failed.
func (e *Encoder) Encode(ctx context.Context, jobID string) error {
	logger := e.logger.With(slog.String("job_id", jobID))

	job, err := e.jobs.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		return j.Transition(domain.StatusStreaming)
	})
	if err != nil {
		return fmt.Errorf("starting encode for job %s: %w", jobID, err)
	}

	mediaURL := e.resolver.Resolve(ctx, job.SourceURL)
	duration := e.prober.Duration(ctx, mediaURL)

	expectedChunks := 0
	if duration > 0 {
		expectedChunks = int(math.Ceil(duration / e.chunkDuration))
	}
	logger.Info("starting decode",
		slog.Float64("duration_sec", duration),
		slog.Int("expected_chunks", expectedChunks))

	stream, err := e.opener.Open(ctx, mediaURL, e.params)
	if err != nil {
		return e.fail(ctx, jobID, fmt.Sprintf("failed to start decoder: %v", err))
	}

	started := time.Now()
	chunkCount, tail, encodeErr := e.encodeChunks(ctx, logger, jobID, stream, expectedChunks)
	exitErr := stream.Close()
	e.metrics.RecordStreamFinished(time.Since(started).Seconds())

	if encodeErr != nil {
		if errors.Is(encodeErr, media.ErrStalled) {
			e.metrics.RecordStreamStalled()
		}
		return e.fail(ctx, jobID, failMessage(encodeErr, stream.Stderr()))
	}
	if exitErr != nil {
		// The tail read before the failure is discarded: a decoder that
		// died mid-stream may have produced truncated audio.
		return e.fail(ctx, jobID, failMessage(fmt.Errorf("decoder exited with error: %w", exitErr), stream.Stderr()))
	}

	if len(tail) > 0 {
		if err := e.uploadChunk(ctx, logger, jobID, chunkCount, tail); err != nil {
			return e.fail(ctx, jobID, err.Error())
		}
		chunkCount++
	}
	if chunkCount == 0 {
		return e.fail(ctx, jobID, "source contains no audio data")
	}

	_, err = e.jobs.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		j.TotalChunks = chunkCount
		j.AdvanceProgress(e.progressCap, e.progressCap)
		return j.Transition(domain.StatusTranscribing)
	})
	if err != nil {
		return fmt.Errorf("finishing encode for job %s: %w", jobID, err)
	}

	logger.Info("encode complete", slog.Int("chunks", chunkCount))
	return nil
}

// encodeChunks reads and uploads full chunks until the stream ends. A
// short final read is returned as the tail instead of being uploaded: the
// caller uploads it only once the decoder is known to have exited cleanly.
func (e *Encoder) encodeChunks(ctx context.Context, logger *slog.Logger, jobID string, stream DecodeStream, expectedChunks int) (int, []byte, error) {
	chunkSize := audio.ChunkSizeBytes(e.params, e.chunkDuration)
	buf := make([]byte, chunkSize)
	index := 0

	for {
		n, readErr := stream.ReadChunk(buf)
		switch {
		case readErr == nil:
			if err := e.uploadChunk(ctx, logger, jobID, index, buf[:n]); err != nil {
				return index, nil, err
			}
			index++
			e.touchProgress(ctx, jobID, index, expectedChunks)
		case errors.Is(readErr, io.EOF):
			var tail []byte
			if n > 0 {
				tail = append(tail, buf[:n]...)
			}
			return index, tail, nil
		default:
			return index, nil, readErr
		}
	}
}

// uploadChunk wraps one PCM chunk as WAV and writes it to the store.
func (e *Encoder) uploadChunk(ctx context.Context, logger *slog.Logger, jobID string, index int, pcm []byte) error {
	wav, err := audio.WrapPCM(e.params, pcm)
	if err != nil {
		return fmt.Errorf("encoding chunk %d: %w", index, err)
	}

	key := domain.ChunkKey(jobID, index)
	if err := e.objects.Put(ctx, key, wav, "audio/wav"); err != nil {
		return fmt.Errorf("uploading chunk %d: %w", index, err)
	}
	e.metrics.RecordChunkEncoded(len(wav))
	logger.Debug("chunk uploaded",
		slog.Int("chunk_index", index),
		slog.Int("size_bytes", len(wav)))
	return nil
}

// touchProgress advances job progress toward the streaming cap. Progress
// errors are logged and swallowed, the upload already succeeded.
func (e *Encoder) touchProgress(ctx context.Context, jobID string, done, expected int) {
	progress := 0
	if expected > 0 {
		progress = done * e.progressCap / expected
	}

	_, err := e.jobs.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		j.AdvanceProgress(progress, e.progressCap)
		return nil
	})
	if err != nil {
		e.logger.Warn("progress update failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()))
	}
}

func (e *Encoder) fail(ctx context.Context, jobID, message string) error {
	e.metrics.RecordEncodeFailure()
	e.metrics.RecordJobFailed()
	e.logger.Error("encode failed",
		slog.String("job_id", jobID),
		slog.String("reason", message))

	_, err := e.jobs.UpdateJob(ctx, jobID, func(j *domain.Job) error {
		j.Fail(message)
		return nil
	})
	if err != nil {
		return fmt.Errorf("marking job %s failed: %w", jobID, err)
	}
	return fmt.Errorf("encode failed for job %s: %s", jobID, message)
}

// failMessage combines the pipeline error with the decoder's stderr tail.
func failMessage(err error, stderr string) string {
	stderr = strings.TrimSpace(stderr)
	if stderr == "" {
		return err.Error()
	}

	// Keep only the last line, ffmpeg prints the decisive error last.
	lines := strings.Split(stderr, "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	return fmt.Sprintf("%s: %s", err.Error(), last)
}
