package encoder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JpChavez16/podscribe/internal/audio"
	"github.com/JpChavez16/podscribe/internal/domain"
	"github.com/JpChavez16/podscribe/internal/media"
	"github.com/JpChavez16/podscribe/internal/metrics"
	"github.com/JpChavez16/podscribe/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.NewMetricsWith(prometheus.NewRegistry())
}

type fakeResolver struct{ url string }

func (r *fakeResolver) Resolve(ctx context.Context, sourceURL string) string {
	if r.url != "" {
		return r.url
	}
	return sourceURL
}

type fakeProber struct{ duration float64 }

func (p *fakeProber) Duration(ctx context.Context, mediaURL string) float64 {
	return p.duration
}

// streamStep describes one ReadChunk response: fill bytes then return err.
type streamStep struct {
	fill int
	err  error
}

type fakeStream struct {
	steps   []streamStep
	stderr  string
	exitErr error
	closed  bool
}

func (s *fakeStream) ReadChunk(buf []byte) (int, error) {
	if len(s.steps) == 0 {
		return 0, io.EOF
	}
	step := s.steps[0]
	s.steps = s.steps[1:]

	n := step.fill
	if n > len(buf) {
		n = len(buf)
	}
	for i := 0; i < n; i++ {
		buf[i] = byte(i)
	}
	return n, step.err
}

func (s *fakeStream) Stderr() string { return s.stderr }

func (s *fakeStream) Close() error {
	s.closed = true
	return s.exitErr
}

func newEncoder(t *testing.T, stream *fakeStream, duration float64) (*Encoder, storage.JobStore, storage.ObjectStore) {
	t.Helper()

	jobs := storage.NewMemoryJobStore()
	objects := storage.NewMemoryObjectStore()
	opener := OpenerFunc(func(ctx context.Context, mediaURL string, params audio.Params) (DecodeStream, error) {
		return stream, nil
	})

	e := New(testLogger(), jobs, objects, &fakeResolver{}, &fakeProber{duration: duration},
		opener, testMetrics(), audio.DefaultParams, 30, 90)
	return e, jobs, objects
}

func createJob(t *testing.T, jobs storage.JobStore) string {
	t.Helper()
	job := &domain.Job{ID: "j1", SourceURL: "https://example.com/a.mp3", Status: domain.StatusPending}
	if err := jobs.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	return job.ID
}

func TestEncodeFullAndTailChunks(t *testing.T) {
	// 65 seconds of audio at 30 second chunks: two full chunks plus a
	// 5 second tail.
	full := audio.ChunkSizeBytes(audio.DefaultParams, 30)
	tail := audio.ChunkSizeBytes(audio.DefaultParams, 5)
	stream := &fakeStream{steps: []streamStep{
		{fill: full},
		{fill: full},
		{fill: tail, err: io.EOF},
	}}

	e, jobs, objects := newEncoder(t, stream, 65)
	ctx := context.Background()
	jobID := createJob(t, jobs)

	if err := e.Encode(ctx, jobID); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	keys, err := objects.List(ctx, "audio/j1/chunks/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{
		"audio/j1/chunks/chunk_000.wav",
		"audio/j1/chunks/chunk_001.wav",
		"audio/j1/chunks/chunk_002.wav",
	}
	if len(keys) != len(want) {
		t.Fatalf("chunk keys = %v", keys)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %s, want %s", i, keys[i], want[i])
		}
	}

	// The tail chunk carries a header sized for its short payload.
	data, err := objects.Get(ctx, want[2])
	if err != nil {
		t.Fatalf("Get tail chunk failed: %v", err)
	}
	info, err := audio.ParseHeader(data)
	if err != nil {
		t.Fatalf("ParseHeader failed: %v", err)
	}
	if info.DataSize != tail {
		t.Errorf("tail data size = %d, want %d", info.DataSize, tail)
	}

	job, err := jobs.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != domain.StatusTranscribing {
		t.Errorf("status = %s, want transcribing", job.Status)
	}
	if job.TotalChunks != 3 {
		t.Errorf("total chunks = %d, want 3", job.TotalChunks)
	}
	if job.Progress != 90 {
		t.Errorf("progress = %d, want 90", job.Progress)
	}
	if !stream.closed {
		t.Error("stream was not closed")
	}
}

func TestEncodeExactBoundary(t *testing.T) {
	full := audio.ChunkSizeBytes(audio.DefaultParams, 30)
	stream := &fakeStream{steps: []streamStep{
		{fill: full},
		{fill: 0, err: io.EOF},
	}}

	e, jobs, objects := newEncoder(t, stream, 30)
	ctx := context.Background()
	jobID := createJob(t, jobs)

	if err := e.Encode(ctx, jobID); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	keys, _ := objects.List(ctx, "audio/j1/chunks/")
	if len(keys) != 1 {
		t.Fatalf("chunk keys = %v, want exactly one", keys)
	}

	job, _ := jobs.GetJob(ctx, jobID)
	if job.TotalChunks != 1 {
		t.Errorf("total chunks = %d, want 1", job.TotalChunks)
	}
}

func TestEncodeNoAudioFailsJob(t *testing.T) {
	stream := &fakeStream{steps: []streamStep{{fill: 0, err: io.EOF}}}
	e, jobs, objects := newEncoder(t, stream, 0)
	ctx := context.Background()
	jobID := createJob(t, jobs)

	if err := e.Encode(ctx, jobID); err == nil {
		t.Fatal("Encode succeeded for empty source")
	}

	job, _ := jobs.GetJob(ctx, jobID)
	if job.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.Message, "no audio data") {
		t.Errorf("message = %q", job.Message)
	}

	keys, _ := objects.List(ctx, "audio/")
	if len(keys) != 0 {
		t.Errorf("objects written for empty source: %v", keys)
	}
}

func TestEncodeDecoderExitErrorDiscardsTail(t *testing.T) {
	full := audio.ChunkSizeBytes(audio.DefaultParams, 30)
	stream := &fakeStream{
		steps: []streamStep{
			{fill: full},
			{fill: 1024, err: io.EOF},
		},
		stderr:  "frame decode warning\nInvalid data found when processing input",
		exitErr: fmt.Errorf("exit status 1"),
	}

	e, jobs, objects := newEncoder(t, stream, 0)
	ctx := context.Background()
	jobID := createJob(t, jobs)

	if err := e.Encode(ctx, jobID); err == nil {
		t.Fatal("Encode succeeded despite decoder failure")
	}

	job, _ := jobs.GetJob(ctx, jobID)
	if job.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
	if !strings.Contains(job.Message, "Invalid data found when processing input") {
		t.Errorf("message lacks stderr tail: %q", job.Message)
	}

	// Full chunks read before the failure stay, the truncated tail does not.
	keys, _ := objects.List(ctx, "audio/j1/chunks/")
	if len(keys) != 1 {
		t.Errorf("chunk keys = %v, want only the full chunk", keys)
	}
}

func TestEncodeStallFailsJob(t *testing.T) {
	full := audio.ChunkSizeBytes(audio.DefaultParams, 30)
	stream := &fakeStream{
		steps: []streamStep{
			{fill: full},
			{fill: 512, err: media.ErrStalled},
		},
		stderr: "network timeout",
	}

	e, jobs, objects := newEncoder(t, stream, 0)
	ctx := context.Background()
	jobID := createJob(t, jobs)

	if err := e.Encode(ctx, jobID); err == nil {
		t.Fatal("Encode succeeded despite stall")
	}

	job, _ := jobs.GetJob(ctx, jobID)
	if job.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}

	keys, _ := objects.List(ctx, "audio/j1/chunks/")
	if len(keys) != 1 {
		t.Errorf("chunk keys = %v, want only the full chunk", keys)
	}
}

func TestEncodeProgressStaysUnderCap(t *testing.T) {
	full := audio.ChunkSizeBytes(audio.DefaultParams, 30)
	steps := make([]streamStep, 0, 5)
	for i := 0; i < 4; i++ {
		steps = append(steps, streamStep{fill: full})
	}
	steps = append(steps, streamStep{fill: 0, err: io.EOF})

	// Probe claims 60s but the stream carries 120s: the estimate is off,
	// progress must still never exceed the cap.
	stream := &fakeStream{steps: steps}
	e, jobs, _ := newEncoder(t, stream, 60)
	ctx := context.Background()
	jobID := createJob(t, jobs)

	if err := e.Encode(ctx, jobID); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	job, _ := jobs.GetJob(ctx, jobID)
	if job.Progress > 90 {
		t.Errorf("progress = %d, exceeds streaming cap", job.Progress)
	}
	if job.TotalChunks != 4 {
		t.Errorf("total chunks = %d, want 4", job.TotalChunks)
	}
}

// failingPuts wraps an ObjectStore and fails every Put.
type failingPuts struct {
	storage.ObjectStore
}

func (f *failingPuts) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return fmt.Errorf("store unavailable")
}

func TestEncodeUploadFailureFailsJob(t *testing.T) {
	full := audio.ChunkSizeBytes(audio.DefaultParams, 30)
	stream := &fakeStream{steps: []streamStep{{fill: full}}}

	jobs := storage.NewMemoryJobStore()
	objects := &failingPuts{ObjectStore: storage.NewMemoryObjectStore()}
	opener := OpenerFunc(func(ctx context.Context, mediaURL string, params audio.Params) (DecodeStream, error) {
		return stream, nil
	})
	e := New(testLogger(), jobs, objects, &fakeResolver{}, &fakeProber{},
		opener, testMetrics(), audio.DefaultParams, 30, 90)

	ctx := context.Background()
	jobID := createJob(t, jobs)

	if err := e.Encode(ctx, jobID); err == nil {
		t.Fatal("Encode succeeded despite upload failure")
	}

	job, _ := jobs.GetJob(ctx, jobID)
	if job.Status != domain.StatusFailed {
		t.Errorf("status = %s, want failed", job.Status)
	}
}
