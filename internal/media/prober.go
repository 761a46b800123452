package media

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"
)

// Prober reads media duration with ffprobe. A failed probe is not fatal:
// the pipeline can run without a known duration, it only loses progress
// granularity.
type Prober struct {
	logger  *slog.Logger
	runner  Runner
	path    string
	timeout time.Duration
}

// NewProber creates a prober invoking the ffprobe binary at path.
func NewProber(logger *slog.Logger, runner Runner, path string, timeout time.Duration) *Prober {
	return &Prober{
		logger:  logger,
		runner:  runner,
		path:    path,
		timeout: timeout,
	}
}

type probeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration returns the media duration in seconds, or 0 when unknown.
func (p *Prober) Duration(ctx context.Context, mediaURL string) float64 {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		mediaURL,
	}

	out, err := p.runner.Run(ctx, p.path, args...)
	if err != nil {
		p.logger.Warn("duration probe failed",
			slog.String("url", mediaURL),
			slog.Int("exit_code", out.ExitCode))
		return 0
	}

	var parsed probeFormat
	if err := json.Unmarshal([]byte(out.Stdout), &parsed); err != nil {
		p.logger.Warn("duration probe returned malformed json",
			slog.String("url", mediaURL),
			slog.String("error", err.Error()))
		return 0
	}

	duration, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || duration < 0 {
		p.logger.Warn("duration probe returned no usable duration",
			slog.String("url", mediaURL))
		return 0
	}

	p.logger.Debug("probed media duration",
		slog.String("url", mediaURL),
		slog.Float64("duration_sec", duration))
	return duration
}
