package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/JpChavez16/podscribe/internal/audio"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRunner replays canned outputs for Run calls and records invocations.
type fakeRunner struct {
	out   Output
	err   error
	name  string
	args  []string
	calls int
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	r.calls++
	r.name = name
	r.args = args
	return r.out, r.err
}

func TestResolverReturnsFirstURL(t *testing.T) {
	runner := &fakeRunner{out: Output{Stdout: "https://cdn.example.com/audio.m4a\nhttps://cdn.example.com/video.mp4\n"}}
	r := NewResolver(testLogger(), runner, "yt-dlp", time.Second)

	got := r.Resolve(context.Background(), "https://example.com/watch?v=abc")
	if got != "https://cdn.example.com/audio.m4a" {
		t.Errorf("Resolve = %s", got)
	}
	if runner.name != "yt-dlp" {
		t.Errorf("binary = %s", runner.name)
	}
}

func TestResolverFallsBackToSourceURL(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"command error", &fakeRunner{out: Output{ExitCode: 1, Stderr: "unsupported url"}, err: fmt.Errorf("exit status 1")}},
		{"empty output", &fakeRunner{out: Output{Stdout: "\n\n"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(testLogger(), tt.runner, "yt-dlp", time.Second)
			got := r.Resolve(context.Background(), "https://example.com/audio.mp3")
			if got != "https://example.com/audio.mp3" {
				t.Errorf("Resolve = %s, want source url", got)
			}
		})
	}
}

func TestProberParsesDuration(t *testing.T) {
	runner := &fakeRunner{out: Output{Stdout: `{"format":{"duration":"65.38","format_name":"mp3"}}`}}
	p := NewProber(testLogger(), runner, "ffprobe", time.Second)

	got := p.Duration(context.Background(), "https://cdn.example.com/audio.mp3")
	if got != 65.38 {
		t.Errorf("Duration = %v, want 65.38", got)
	}
}

func TestProberFailureIsNotFatal(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
	}{
		{"command error", &fakeRunner{out: Output{ExitCode: 1}, err: fmt.Errorf("exit status 1")}},
		{"malformed json", &fakeRunner{out: Output{Stdout: "not json"}}},
		{"missing duration", &fakeRunner{out: Output{Stdout: `{"format":{}}`}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProber(testLogger(), tt.runner, "ffprobe", time.Second)
			if got := p.Duration(context.Background(), "u"); got != 0 {
				t.Errorf("Duration = %v, want 0", got)
			}
		})
	}
}

// fakeProcess is a Process whose stdout is an arbitrary reader. Kill
// closes killCh so a blocked reader can observe it, like a real process
// whose pipe closes on termination.
type fakeProcess struct {
	stdout   io.Reader
	stderr   string
	waitErr  error
	killed   bool
	killOnce sync.Once
	killCh   chan struct{}
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Wait() error       { return p.waitErr }
func (p *fakeProcess) Stderr() string    { return p.stderr }

func (p *fakeProcess) Kill() error {
	p.killed = true
	if p.killCh != nil {
		p.killOnce.Do(func() { close(p.killCh) })
	}
	return nil
}

type fakeStreamRunner struct {
	proc *fakeProcess
	name string
	args []string
}

func (r *fakeStreamRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	r.name = name
	r.args = args
	return r.proc, nil
}

func pcmReader(n int) io.Reader {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i)
	}
	return &sliceReader{data: data}
}

// sliceReader drips data in small pieces so ReadChunk has to loop.
type sliceReader struct {
	data []byte
	off  int
}

func (r *sliceReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := 7
	if n > len(p) {
		n = len(p)
	}
	if r.off+n > len(r.data) {
		n = len(r.data) - r.off
	}
	copy(p, r.data[r.off:r.off+n])
	r.off += n
	return n, nil
}

func TestStreamReadsFullAndShortChunks(t *testing.T) {
	// Two full 100-byte chunks plus a 25-byte tail.
	runner := &fakeStreamRunner{proc: &fakeProcess{stdout: pcmReader(225)}}
	d := NewDecoder(testLogger(), runner, "ffmpeg", time.Second, time.Second)

	s, err := d.Open(context.Background(), "https://cdn.example.com/audio.mp3", audio.DefaultParams)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	buf := make([]byte, 100)

	for i := 0; i < 2; i++ {
		n, err := s.ReadChunk(buf)
		if err != nil || n != 100 {
			t.Fatalf("chunk %d: n=%d err=%v", i, n, err)
		}
	}

	n, err := s.ReadChunk(buf)
	if !errors.Is(err, io.EOF) || n != 25 {
		t.Fatalf("tail chunk: n=%d err=%v, want 25, EOF", n, err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close returned %v", err)
	}
}

func TestStreamExactBoundaryEndsWithZeroEOF(t *testing.T) {
	runner := &fakeStreamRunner{proc: &fakeProcess{stdout: pcmReader(200)}}
	d := NewDecoder(testLogger(), runner, "ffmpeg", time.Second, time.Second)

	s, err := d.Open(context.Background(), "u", audio.DefaultParams)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	buf := make([]byte, 100)
	for i := 0; i < 2; i++ {
		if n, err := s.ReadChunk(buf); err != nil || n != 100 {
			t.Fatalf("chunk %d: n=%d err=%v", i, n, err)
		}
	}
	if n, err := s.ReadChunk(buf); !errors.Is(err, io.EOF) || n != 0 {
		t.Fatalf("final read: n=%d err=%v, want 0, EOF", n, err)
	}
}

func TestStreamStallKillsProcess(t *testing.T) {
	killCh := make(chan struct{})
	proc := &fakeProcess{stdout: &blockingReader{unblock: killCh}, killCh: killCh}
	runner := &fakeStreamRunner{proc: proc}
	d := NewDecoder(testLogger(), runner, "ffmpeg", 10*time.Millisecond, time.Second)

	s, err := d.Open(context.Background(), "u", audio.DefaultParams)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	buf := make([]byte, 100)
	n, err := s.ReadChunk(buf)
	if !errors.Is(err, ErrStalled) {
		t.Fatalf("ReadChunk: n=%d err=%v, want ErrStalled", n, err)
	}
	if !proc.killed {
		t.Error("stalled process was not killed")
	}
}

// blockingReader blocks until the process is killed, then reports EOF,
// mimicking a killed process closing its pipe.
type blockingReader struct {
	unblock chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.unblock
	return 0, io.EOF
}

func TestStreamCloseReturnsExitError(t *testing.T) {
	proc := &fakeProcess{
		stdout:  pcmReader(0),
		stderr:  "Invalid data found when processing input",
		waitErr: fmt.Errorf("exit status 1"),
	}
	runner := &fakeStreamRunner{proc: proc}
	d := NewDecoder(testLogger(), runner, "ffmpeg", time.Second, time.Second)

	s, err := d.Open(context.Background(), "u", audio.DefaultParams)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := s.Close(); err == nil {
		t.Error("Close returned nil for failed decoder")
	}
	if s.Stderr() != "Invalid data found when processing input" {
		t.Errorf("Stderr = %q", s.Stderr())
	}
	// Close is idempotent.
	if err := s.Close(); err == nil {
		t.Error("second Close returned nil")
	}
}

func TestDecoderArgs(t *testing.T) {
	runner := &fakeStreamRunner{proc: &fakeProcess{stdout: pcmReader(0)}}
	d := NewDecoder(testLogger(), runner, "ffmpeg", time.Second, time.Second)

	if _, err := d.Open(context.Background(), "https://cdn.example.com/a.mp3", audio.DefaultParams); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	want := []string{
		"-hide_banner", "-nostdin",
		"-i", "https://cdn.example.com/a.mp3",
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"pipe:1",
	}
	if len(runner.args) != len(want) {
		t.Fatalf("args = %v", runner.args)
	}
	for i := range want {
		if runner.args[i] != want[i] {
			t.Errorf("args[%d] = %s, want %s", i, runner.args[i], want[i])
		}
	}
}
