package media

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"sync"
)

// Output captures the result of one completed command.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes short commands to completion.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// Process is a started long-lived command whose stdout is consumed
// incrementally.
type Process interface {
	// Stdout is the process output pipe.
	Stdout() io.Reader
	// Wait blocks until the process exits and releases its resources.
	Wait() error
	// Kill terminates the process. Wait must still be called.
	Kill() error
	// Stderr returns captured diagnostic output. Valid after Wait.
	Stderr() string
}

// StreamRunner starts long-lived commands.
type StreamRunner interface {
	Start(ctx context.Context, name string, args ...string) (Process, error)
}

// ExecRunner runs commands via os/exec.
type ExecRunner struct{}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		out.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
		}
		return out, err
	}
	return out, nil
}

// Start launches the command with a stdout pipe and bounded stderr capture.
func (r *ExecRunner) Start(ctx context.Context, name string, args ...string) (Process, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}

	p := &execProcess{cmd: cmd, stdout: stdout}
	cmd.Stderr = &p.stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return p, nil
}

// stderrLimit bounds captured diagnostics so a chatty decoder cannot grow
// memory unbounded.
const stderrLimit = 16 * 1024

type execProcess struct {
	cmd    *exec.Cmd
	stdout io.Reader
	stderr boundedBuffer
}

func (p *execProcess) Stdout() io.Reader { return p.stdout }

func (p *execProcess) Wait() error { return p.cmd.Wait() }

func (p *execProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}

func (p *execProcess) Stderr() string { return p.stderr.String() }

// boundedBuffer keeps the tail of what was written to it, up to stderrLimit.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *boundedBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(data)
	if n > stderrLimit {
		data = data[n-stderrLimit:]
	}
	if b.buf.Len()+len(data) > stderrLimit {
		trimmed := b.buf.Bytes()[b.buf.Len()+len(data)-stderrLimit:]
		var next bytes.Buffer
		next.Write(trimmed)
		b.buf = next
	}
	b.buf.Write(data)
	return n, nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
