package watchdog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JpChavez16/podscribe/internal/domain"
	"github.com/JpChavez16/podscribe/internal/metrics"
	"github.com/JpChavez16/podscribe/internal/storage"
)

// Watchdog periodically sweeps the job store for stalled and expired jobs.
type Watchdog struct {
	logger        *slog.Logger
	jobs          storage.JobStore
	metrics       *metrics.Metrics
	stallTimeout  time.Duration
	checkInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// New creates a watchdog failing jobs inactive for stallTimeout.
func New(logger *slog.Logger, jobs storage.JobStore, m *metrics.Metrics, stallTimeout, checkInterval time.Duration) *Watchdog {
	ctx, cancel := context.WithCancel(context.Background())
	return &Watchdog{
		logger:        logger,
		jobs:          jobs,
		metrics:       m,
		stallTimeout:  stallTimeout,
		checkInterval: checkInterval,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		now:           time.Now,
	}
}

// Start launches the sweep loop.
func (w *Watchdog) Start() {
	go w.sweepLoop()
}

// Stop terminates the sweep loop and waits for it to exit.
func (w *Watchdog) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watchdog) sweepLoop() {
	defer close(w.done)

	ticker := time.NewTicker(w.checkInterval)
	defer ticker.Stop()

	w.logger.Info("watchdog started",
		slog.Duration("stall_timeout", w.stallTimeout),
		slog.Duration("check_interval", w.checkInterval))

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("watchdog stopping")
			return
		case <-ticker.C:
			w.Sweep(w.ctx)
		}
	}
}

// Sweep runs one pass over all jobs. Exported so operators and tests can
// trigger it outside the ticker.
func (w *Watchdog) Sweep(ctx context.Context) {
	jobs, err := w.jobs.ListJobs(ctx)
	if err != nil {
		w.logger.Error("watchdog sweep failed to list jobs",
			slog.String("error", err.Error()))
		return
	}

	now := w.now().UTC()
	for _, job := range jobs {
		switch {
		case w.isExpired(job, now):
			w.expire(ctx, job)
		case w.isStalled(job, now):
			w.failStalled(ctx, job, now)
		}
	}
}

func (w *Watchdog) isStalled(job *domain.Job, now time.Time) bool {
	if job.Status.Terminal() {
		return false
	}
	return now.Sub(job.UpdatedAt) > w.stallTimeout
}

func (w *Watchdog) isExpired(job *domain.Job, now time.Time) bool {
	return !job.ExpiresAt.IsZero() && now.After(job.ExpiresAt)
}

// errNotStalled aborts the conditional write when the re-check under the
// version lock finds the job moved or finished since the sweep listed it.
var errNotStalled = errors.New("job no longer stalled")

func (w *Watchdog) failStalled(ctx context.Context, job *domain.Job, now time.Time) {
	stalledFor := now.Sub(job.UpdatedAt).Round(time.Second)
	message := fmt.Sprintf("no progress for %s, job abandoned", stalledFor)

	_, err := w.jobs.UpdateJob(ctx, job.ID, func(j *domain.Job) error {
		if j.Status.Terminal() || w.now().UTC().Sub(j.UpdatedAt) <= w.stallTimeout {
			return errNotStalled
		}
		j.Fail(message)
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotStalled) {
			w.logger.Debug("job recovered before stall write",
				slog.String("job_id", job.ID))
			return
		}
		w.logger.Error("failed to mark stalled job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		return
	}

	w.metrics.RecordJobStalled()
	w.metrics.RecordJobFailed()
	w.logger.Warn("stalled job failed",
		slog.String("job_id", job.ID),
		slog.String("status", string(job.Status)),
		slog.Duration("stalled_for", stalledFor))
}

func (w *Watchdog) expire(ctx context.Context, job *domain.Job) {
	if err := w.jobs.DeleteJob(ctx, job.ID); err != nil {
		w.logger.Error("failed to delete expired job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
		return
	}

	w.metrics.RecordJobExpired()
	w.logger.Info("expired job removed",
		slog.String("job_id", job.ID),
		slog.Time("expired_at", job.ExpiresAt))
}
