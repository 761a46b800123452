package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription pipeline
type Metrics struct {
	// Job metrics
	JobsCreated   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter
	JobDuration   prometheus.Histogram

	// Encoding metrics
	ChunksEncoded  prometheus.Counter
	ChunkSize      prometheus.Histogram
	EncodeFailures prometheus.Counter
	StreamsStalled prometheus.Counter
	StreamDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Reconciler metrics
	MergesCompleted prometheus.Counter
	MergeConflicts  prometheus.Counter

	// Watchdog metrics
	JobsStalled prometheus.Counter
	JobsExpired prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates and registers all metrics on the given registerer
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Job metrics
		JobsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_jobs_created_total",
			Help: "Total number of transcription jobs created",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_jobs_completed_total",
			Help: "Total number of jobs that reached completion",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_jobs_failed_total",
			Help: "Total number of jobs that failed",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "podscribe_job_duration_seconds",
			Help:    "Wall time from job creation to completion",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		// Encoding metrics
		ChunksEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_chunks_encoded_total",
			Help: "Total number of audio chunks encoded and uploaded",
		}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "podscribe_chunk_size_bytes",
			Help:    "Size of encoded audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		EncodeFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_encode_failures_total",
			Help: "Total number of failed encoding runs",
		}),
		StreamsStalled: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_streams_stalled_total",
			Help: "Total number of decode streams killed for stalling",
		}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "podscribe_stream_duration_seconds",
			Help:    "Duration of decode stream runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),

		// Transcription metrics
		TranscriptionRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_transcription_requests_total",
			Help: "Total number of chunk transcription requests sent",
		}),
		TranscriptionSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_transcription_successes_total",
			Help: "Total number of successful chunk transcriptions",
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_transcription_failures_total",
			Help: "Total number of failed chunk transcriptions",
		}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "podscribe_transcription_duration_seconds",
			Help:    "Duration of chunk transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),
		TranscriptionRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_transcription_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Reconciler metrics
		MergesCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_merges_completed_total",
			Help: "Total number of final transcript merges written",
		}),
		MergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_merge_conflicts_total",
			Help: "Total number of completion attempts that lost the terminal transition",
		}),

		// Watchdog metrics
		JobsStalled: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_jobs_stalled_total",
			Help: "Total number of jobs failed by the stall watchdog",
		}),
		JobsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "podscribe_jobs_expired_total",
			Help: "Total number of expired jobs removed",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "podscribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "podscribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordJobCreated increments the jobs created counter
func (m *Metrics) RecordJobCreated() {
	m.JobsCreated.Inc()
}

// RecordJobCompleted records a completed job and its total duration
func (m *Metrics) RecordJobCompleted(durationSeconds float64) {
	m.JobsCompleted.Inc()
	m.JobDuration.Observe(durationSeconds)
}

// RecordJobFailed increments the jobs failed counter
func (m *Metrics) RecordJobFailed() {
	m.JobsFailed.Inc()
}

// RecordChunkEncoded records one uploaded chunk
func (m *Metrics) RecordChunkEncoded(sizeBytes int) {
	m.ChunksEncoded.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordEncodeFailure increments the encode failures counter
func (m *Metrics) RecordEncodeFailure() {
	m.EncodeFailures.Inc()
}

// RecordStreamStalled increments the stalled streams counter
func (m *Metrics) RecordStreamStalled() {
	m.StreamsStalled.Inc()
}

// RecordStreamFinished observes a decode stream duration
func (m *Metrics) RecordStreamFinished(durationSeconds float64) {
	m.StreamDuration.Observe(durationSeconds)
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionRetry increments the retry counter
func (m *Metrics) RecordTranscriptionRetry() {
	m.TranscriptionRetries.Inc()
}

// RecordMergeCompleted increments the completed merges counter
func (m *Metrics) RecordMergeCompleted() {
	m.MergesCompleted.Inc()
}

// RecordMergeConflict increments the merge conflicts counter
func (m *Metrics) RecordMergeConflict() {
	m.MergeConflicts.Inc()
}

// RecordJobStalled increments the stalled jobs counter
func (m *Metrics) RecordJobStalled() {
	m.JobsStalled.Inc()
}

// RecordJobExpired increments the expired jobs counter
func (m *Metrics) RecordJobExpired() {
	m.JobsExpired.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
