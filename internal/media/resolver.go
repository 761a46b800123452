package media

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Resolver turns a source URL into a direct media URL using yt-dlp.
// Resolution is best effort: when yt-dlp fails or returns nothing the
// original URL is used, which covers direct links to media files.
type Resolver struct {
	logger  *slog.Logger
	runner  Runner
	path    string
	timeout time.Duration
}

// NewResolver creates a resolver invoking the yt-dlp binary at path.
func NewResolver(logger *slog.Logger, runner Runner, path string, timeout time.Duration) *Resolver {
	return &Resolver{
		logger:  logger,
		runner:  runner,
		path:    path,
		timeout: timeout,
	}
}

// Resolve returns the direct media URL for sourceURL.
func (r *Resolver) Resolve(ctx context.Context, sourceURL string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := []string{
		"--get-url",
		"--format", "bestaudio/best",
		"--no-playlist",
		"--quiet",
		sourceURL,
	}

	out, err := r.runner.Run(ctx, r.path, args...)
	if err != nil {
		r.logger.Warn("url resolution failed, using source url directly",
			slog.String("url", sourceURL),
			slog.Int("exit_code", out.ExitCode),
			slog.String("stderr", strings.TrimSpace(out.Stderr)))
		return sourceURL
	}

	// yt-dlp may print one URL per stream; the first is the selected format.
	for _, line := range strings.Split(out.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			r.logger.Debug("resolved media url", slog.String("url", sourceURL))
			return line
		}
	}

	r.logger.Warn("url resolution returned no output, using source url directly",
		slog.String("url", sourceURL))
	return sourceURL
}
