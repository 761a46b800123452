package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/JpChavez16/podscribe/internal/audio"
)

// ErrStalled is returned when the decoder produced no data for longer than
// the configured read timeout and was killed.
var ErrStalled = errors.New("media: decode stream stalled")

// Decoder opens ffmpeg decode streams producing raw PCM on stdout.
type Decoder struct {
	logger      *slog.Logger
	runner      StreamRunner
	path        string
	readTimeout time.Duration
	waitTimeout time.Duration
}

// NewDecoder creates a decoder invoking the ffmpeg binary at path.
func NewDecoder(logger *slog.Logger, runner StreamRunner, path string, readTimeout, waitTimeout time.Duration) *Decoder {
	return &Decoder{
		logger:      logger,
		runner:      runner,
		path:        path,
		readTimeout: readTimeout,
		waitTimeout: waitTimeout,
	}
}

// Open starts decoding mediaURL into the requested PCM format.
func (d *Decoder) Open(ctx context.Context, mediaURL string, params audio.Params) (*Stream, error) {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-i", mediaURL,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(params.SampleRate),
		"-ac", strconv.Itoa(params.Channels),
		"pipe:1",
	}

	proc, err := d.runner.Start(ctx, d.path, args...)
	if err != nil {
		return nil, fmt.Errorf("starting decoder: %w", err)
	}

	s := &Stream{
		logger:      d.logger,
		proc:        proc,
		readTimeout: d.readTimeout,
		waitTimeout: d.waitTimeout,
	}
	s.reader = &stallReader{reader: proc.Stdout(), timeout: d.readTimeout, onStall: s.markStalled}
	return s, nil
}

// Stream is a running decode. Reads are guarded by a stall watchdog: a
// single blocked read longer than the read timeout kills the process.
type Stream struct {
	logger      *slog.Logger
	proc        Process
	reader      io.Reader
	readTimeout time.Duration
	waitTimeout time.Duration

	stalled atomic.Bool
	done    bool
	waitErr error
}

func (s *Stream) markStalled() {
	s.logger.Error("decode stream stalled, killing decoder",
		slog.Duration("read_timeout", s.readTimeout))
	s.stalled.Store(true)
	_ = s.proc.Kill()
}

// ReadChunk fills buf completely from the PCM stream. The final chunk of a
// stream may be short: n < len(buf) with io.EOF. A stream that ends exactly
// on a chunk boundary returns 0, io.EOF on the next call.
func (s *Stream) ReadChunk(buf []byte) (int, error) {
	n, err := io.ReadFull(s.reader, buf)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		if s.stalled.Load() {
			return n, ErrStalled
		}
		return n, io.EOF
	default:
		if s.stalled.Load() {
			return n, ErrStalled
		}
		return n, fmt.Errorf("reading decode stream: %w", err)
	}
}

// Stderr returns the decoder's captured diagnostic output.
func (s *Stream) Stderr() string {
	return s.proc.Stderr()
}

// Close reaps the decoder process and returns its exit error, if any. A
// process that does not exit within the wait timeout is killed first.
// Close is idempotent.
func (s *Stream) Close() error {
	if s.done {
		return s.waitErr
	}
	s.done = true

	waited := make(chan error, 1)
	go func() { waited <- s.proc.Wait() }()

	select {
	case err := <-waited:
		s.waitErr = err
	case <-time.After(s.waitTimeout):
		s.logger.Warn("decoder did not exit, killing",
			slog.Duration("wait_timeout", s.waitTimeout))
		_ = s.proc.Kill()
		s.waitErr = <-waited
	}
	return s.waitErr
}

// stallReader arms a kill timer around each blocking read.
type stallReader struct {
	reader  io.Reader
	timeout time.Duration
	onStall func()
}

func (r *stallReader) Read(p []byte) (int, error) {
	timer := time.AfterFunc(r.timeout, r.onStall)
	defer timer.Stop()
	return r.reader.Read(p)
}
