package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JpChavez16/podscribe/internal/audio"
	"github.com/JpChavez16/podscribe/internal/config"
	"github.com/JpChavez16/podscribe/internal/domain"
	"github.com/JpChavez16/podscribe/internal/encoder"
	"github.com/JpChavez16/podscribe/internal/events"
	"github.com/JpChavez16/podscribe/internal/media"
	"github.com/JpChavez16/podscribe/internal/metrics"
	"github.com/JpChavez16/podscribe/internal/reconciler"
	"github.com/JpChavez16/podscribe/internal/server"
	"github.com/JpChavez16/podscribe/internal/storage"
	"github.com/JpChavez16/podscribe/internal/transcriber"
	"github.com/JpChavez16/podscribe/internal/watchdog"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "podscribe"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load environment overrides from .env when present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.String("ffmpeg_path", cfg.Encoder.FFmpegPath),
		slog.String("recognition_endpoint", cfg.Recognition.Endpoint),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Initialize storage backend
	objects, jobs, err := newStores(cfg.Storage)
	if err != nil {
		logger.Error("Failed to initialize storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Storage initialized", slog.String("backend", cfg.Storage.Backend))

	// Object-created events drive the transcriber and the reconciler.
	dispatcher := events.NewDispatcher(logger, 0, 0, 0, 0)
	notifying := &storage.NotifyingObjectStore{Inner: objects, Notify: dispatcher.NotifyFunc()}

	// External media tooling
	params := audio.Params{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		BitDepth:   cfg.Audio.BitDepth,
	}
	runner := &media.ExecRunner{}
	ytdlpPath := cfg.Encoder.YtDlpPath
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	resolver := media.NewResolver(logger, runner, ytdlpPath, cfg.Encoder.GetResolveTimeout())
	prober := media.NewProber(logger, runner, cfg.Encoder.FFprobePath, cfg.Encoder.GetProbeTimeout())
	decoder := media.NewDecoder(logger, runner, cfg.Encoder.FFmpegPath,
		cfg.Encoder.GetReadTimeout(), cfg.Encoder.GetWaitTimeout())
	opener := encoder.OpenerFunc(func(ctx context.Context, mediaURL string, p audio.Params) (encoder.DecodeStream, error) {
		return decoder.Open(ctx, mediaURL, p)
	})

	// Chunk encoder
	enc := encoder.New(logger, jobs, notifying, resolver, prober, opener,
		appMetrics, params, cfg.Audio.ChunkDuration, cfg.Encoder.StreamingProgressCap)

	// Recognition client and chunk worker
	client, err := transcriber.NewClient(transcriber.ClientConfig{
		Endpoint:      cfg.Recognition.Endpoint,
		APIKey:        cfg.Recognition.APIKey,
		Model:         cfg.Recognition.Model,
		Language:      cfg.Recognition.Language,
		Timeout:       cfg.Recognition.GetTimeout(),
		MaxRetries:    cfg.Recognition.MaxRetries,
		MaxConcurrent: cfg.Recognition.MaxConcurrent,
	}, appMetrics)
	if err != nil {
		logger.Error("Failed to create recognition client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	worker := transcriber.NewWorker(logger, notifying, jobs, client,
		cfg.Recognition.Model, cfg.Audio.ChunkDuration)

	// Completion reconciler
	rec := reconciler.New(logger, notifying, jobs, appMetrics,
		cfg.Reconciler.Separator, cfg.Encoder.StreamingProgressCap)

	dispatcher.Subscribe(events.Subscription{
		Name:   "transcriber",
		Match:  domain.IsChunkKey,
		Handle: worker.HandleChunkCreated,
	})
	dispatcher.Subscribe(events.Subscription{
		Name:   "reconciler",
		Match:  domain.IsChunkTranscriptKey,
		Handle: rec.HandleTranscriptCreated,
	})
	dispatcher.Start()

	// Stall and retention watchdog
	var dog *watchdog.Watchdog
	if cfg.Watchdog.Enabled {
		dog = watchdog.New(logger, jobs, appMetrics,
			cfg.Watchdog.GetStallTimeout(), cfg.Watchdog.GetCheckInterval())
		dog.Start()
		logger.Info("Watchdog started",
			slog.Duration("stall_timeout", cfg.Watchdog.GetStallTimeout()))
	}

	// HTTP API server
	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(server.HTTPServerConfig{
			Address: cfg.HTTP.Address,
			Port:    cfg.HTTP.Port,
		}, logger, jobs, notifying, enc, appMetrics, cfg.Jobs.GetJobTTL())

		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...")

	sig := <-sigChan
	logger.Info("Received shutdown signal", slog.String("signal", sig.String()))

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new jobs)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Stop background routines
	if dog != nil {
		dog.Stop()
	}
	dispatcher.Stop()

	// Final statistics
	stats := client.GetStats()
	logger.Info("Final recognition statistics",
		slog.Uint64("total_requests", stats.TotalRequests),
		slog.Uint64("success_requests", stats.SuccessRequests),
		slog.Uint64("failed_requests", stats.FailedRequests),
		slog.Uint64("total_retries", stats.TotalRetries),
	)

	logger.Info("Service stopped")
}

// newStores builds the configured ObjectStore and JobStore pair.
func newStores(cfg config.StorageConfig) (storage.ObjectStore, storage.JobStore, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryObjectStore(), storage.NewMemoryJobStore(), nil
	case "fs":
		objects, err := storage.NewFSObjectStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("fs object store: %w", err)
		}
		jobs, err := storage.NewFSJobStore(cfg.DataDir)
		if err != nil {
			return nil, nil, fmt.Errorf("fs job store: %w", err)
		}
		return objects, jobs, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
