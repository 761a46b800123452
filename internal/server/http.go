package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JpChavez16/podscribe/internal/domain"
	"github.com/JpChavez16/podscribe/internal/metrics"
	"github.com/JpChavez16/podscribe/internal/storage"
)

// JobStarter kicks off the encoding stage for a freshly created job.
type JobStarter interface {
	Encode(ctx context.Context, jobID string) error
}

// HTTPServer provides the job submission and monitoring API
type HTTPServer struct {
	server  *http.Server
	logger  *slog.Logger
	jobs    storage.JobStore
	objects storage.ObjectStore
	starter JobStarter
	metrics *metrics.Metrics

	jobTTL    time.Duration
	startTime time.Time
}

// HTTPServerConfig contains HTTP server configuration
type HTTPServerConfig struct {
	Address string
	Port    int
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg HTTPServerConfig, logger *slog.Logger,
	jobs storage.JobStore, objects storage.ObjectStore, starter JobStarter, m *metrics.Metrics, jobTTL time.Duration) *HTTPServer {

	h := &HTTPServer{
		logger:    logger,
		jobs:      jobs,
		objects:   objects,
		starter:   starter,
		metrics:   m,
		jobTTL:    jobTTL,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	// Job submission and listing
	mux.HandleFunc("/jobs", h.withMetrics("/jobs", h.handleJobs))
	mux.HandleFunc("/jobs/", h.withMetrics("/jobs/{id}", h.handleJobDetail))

	// Health check endpoint
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Statistics endpoint
	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	// Root endpoint with API documentation
	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}
		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := fmt.Sprintf("%d", ww.statusCode)
		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

// createJobRequest is the submission payload.
type createJobRequest struct {
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

// handleJobs implements POST /jobs and GET /jobs
func (h *HTTPServer) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleCreateJob(w, r)
	case http.MethodGet:
		h.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		http.Error(w, "A valid http(s) url is required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:        uuid.NewString(),
		SourceURL: req.URL,
		Status:    domain.StatusPending,
		Message:   "job accepted",
		Language:  req.Language,
		CreatedAt: now,
		ExpiresAt: now.Add(h.jobTTL),
	}

	if err := h.jobs.CreateJob(r.Context(), job); err != nil {
		h.logger.Error("failed to create job", slog.String("error", err.Error()))
		http.Error(w, "Failed to create job", http.StatusInternalServerError)
		return
	}

	h.metrics.RecordJobCreated()
	h.logger.Info("job created",
		slog.String("job_id", job.ID),
		slog.String("url", job.SourceURL))

	// Encoding runs detached from the request lifetime.
	go func() {
		if err := h.starter.Encode(context.Background(), job.ID); err != nil {
			h.logger.Error("encode run failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()))
		}
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(job)
}

func (h *HTTPServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	response := map[string]interface{}{
		"total_jobs": len(jobs),
		"timestamp":  time.Now().UTC(),
		"jobs":       jobs,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleJobDetail implements GET /jobs/{id} and GET /jobs/{id}/transcript
func (h *HTTPServer) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/jobs/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}
	jobID := parts[0]

	switch {
	case len(parts) == 1:
		h.writeJob(w, r, jobID)
	case len(parts) == 2 && parts[1] == "transcript":
		h.writeTranscript(w, r, jobID)
	default:
		http.NotFound(w, r)
	}
}

func (h *HTTPServer) writeJob(w http.ResponseWriter, r *http.Request, jobID string) {
	job, err := h.jobs.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, storage.ErrJobNotFound) {
			http.Error(w, "Job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

func (h *HTTPServer) writeTranscript(w http.ResponseWriter, r *http.Request, jobID string) {
	key := domain.FinalTranscriptJSONKey(jobID)
	contentType := "application/json"
	if r.URL.Query().Get("format") == "text" {
		key = domain.FinalTranscriptTextKey(jobID)
		contentType = "text/plain; charset=utf-8"
	}

	data, err := h.objects.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Transcript not available", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load transcript", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    "podscribe",
			"version": "1.0.0",
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	jobs, err := h.jobs.ListJobs(r.Context())
	if err != nil {
		http.Error(w, "Failed to list jobs", http.StatusInternalServerError)
		return
	}

	byStatus := map[domain.JobStatus]int{}
	for _, job := range jobs {
		byStatus[job.Status]++
	}

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"jobs": map[string]interface{}{
			"total":        len(jobs),
			"pending":      byStatus[domain.StatusPending],
			"streaming":    byStatus[domain.StatusStreaming],
			"transcribing": byStatus[domain.StatusTranscribing],
			"completed":    byStatus[domain.StatusCompleted],
			"failed":       byStatus[domain.StatusFailed],
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Podscribe Transcription Service",
		"version": "1.0.0",
		"endpoints": map[string]interface{}{
			"GET /":                              "API documentation",
			"POST /jobs":                         "Submit a media URL for transcription",
			"GET /jobs":                          "List all jobs",
			"GET /jobs/{job_id}":                 "Get job status",
			"GET /jobs/{job_id}/transcript":      "Get final transcript (add ?format=text for plain text)",
			"GET /health":                        "Service health check",
			"GET /stats":                         "Get service statistics",
			"GET /metrics":                       "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
