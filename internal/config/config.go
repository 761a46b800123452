package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvRecognitionAPIKey overrides recognition.api_key when set. It is the only
// secret in the configuration and should not live in the YAML file.
const EnvRecognitionAPIKey = "PODSCRIBE_RECOGNITION_API_KEY"

// Config represents the complete service configuration.
type Config struct {
	Storage     StorageConfig     `yaml:"storage"`
	Audio       AudioConfig       `yaml:"audio"`
	Encoder     EncoderConfig     `yaml:"encoder"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Reconciler  ReconcilerConfig  `yaml:"reconciler"`
	Watchdog    WatchdogConfig    `yaml:"watchdog"`
	HTTP        HTTPConfig        `yaml:"http"`
	Jobs        JobsConfig        `yaml:"jobs"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`  // "memory" or "fs"
	DataDir string `yaml:"data_dir"` // root directory for the fs backend
}

// AudioConfig fixes the decode output format and chunking geometry.
type AudioConfig struct {
	SampleRate    int     `yaml:"sample_rate"`
	Channels      int     `yaml:"channels"`
	BitDepth      int     `yaml:"bit_depth"`
	ChunkDuration float64 `yaml:"chunk_duration"` // seconds, nominal per-chunk length
}

// EncoderConfig configures the external decode tooling of the chunk encoder.
type EncoderConfig struct {
	FFmpegPath           string `yaml:"ffmpeg_path"`
	FFprobePath          string `yaml:"ffprobe_path"`
	YtDlpPath            string `yaml:"ytdlp_path"`
	ReadTimeout          int    `yaml:"read_timeout"`           // seconds, stall limit per chunk read
	ProbeTimeout         int    `yaml:"probe_timeout"`          // seconds
	ResolveTimeout       int    `yaml:"resolve_timeout"`        // seconds
	WaitTimeout          int    `yaml:"wait_timeout"`           // seconds, decode process exit wait
	StreamingProgressCap int    `yaml:"streaming_progress_cap"` // percent reserved for streaming state
}

// RecognitionConfig contains recognition engine API configuration.
type RecognitionConfig struct {
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Language      string `yaml:"language"` // empty or "auto" lets the engine detect
	Timeout       int    `yaml:"timeout"`  // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// ReconcilerConfig configures the completion reconciler.
type ReconcilerConfig struct {
	Separator string `yaml:"separator"` // inserted between chunk texts at merge
}

// WatchdogConfig configures the stalled-job policy.
type WatchdogConfig struct {
	Enabled       bool `yaml:"enabled"`
	StallTimeout  int  `yaml:"stall_timeout"`  // seconds without job-record updates
	CheckInterval int  `yaml:"check_interval"` // seconds between scans
}

// HTTPConfig contains HTTP API server configuration.
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// JobsConfig contains job table housekeeping parameters.
type JobsConfig struct {
	TTLDays int `yaml:"ttl_days"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file, applies environment overrides,
// and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if key := os.Getenv(EnvRecognitionAPIKey); key != "" {
		config.Recognition.APIKey = key
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs validation of every configuration section.
func (c *Config) Validate() error {
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if err := c.Encoder.Validate(); err != nil {
		return fmt.Errorf("encoder config: %w", err)
	}
	if err := c.Recognition.Validate(); err != nil {
		return fmt.Errorf("recognition config: %w", err)
	}
	if err := c.Watchdog.Validate(); err != nil {
		return fmt.Errorf("watchdog config: %w", err)
	}
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}
	if err := c.Jobs.Validate(); err != nil {
		return fmt.Errorf("jobs config: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}
	return nil
}

// Validate validates storage configuration.
func (s *StorageConfig) Validate() error {
	switch s.Backend {
	case "memory":
		return nil
	case "fs":
		if s.DataDir == "" {
			return fmt.Errorf("data_dir cannot be empty for the fs backend")
		}
		return nil
	default:
		return fmt.Errorf("backend must be 'memory' or 'fs', got '%s'", s.Backend)
	}
}

// Validate validates audio configuration. The decode format is pinned to the
// pipeline contract: the recognition engine consumes 16 kHz mono 16-bit WAV.
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}
	if a.Channels != 1 {
		return fmt.Errorf("channels must be 1 (mono), got %d", a.Channels)
	}
	if a.BitDepth != 16 {
		return fmt.Errorf("bit_depth must be 16, got %d", a.BitDepth)
	}
	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}
	return nil
}

// Validate validates encoder configuration.
func (e *EncoderConfig) Validate() error {
	if e.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}
	if e.FFprobePath == "" {
		return fmt.Errorf("ffprobe_path cannot be empty")
	}
	if e.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", e.ReadTimeout)
	}
	if e.ProbeTimeout < 1 {
		return fmt.Errorf("probe_timeout must be at least 1 second, got %d", e.ProbeTimeout)
	}
	if e.WaitTimeout < 1 {
		return fmt.Errorf("wait_timeout must be at least 1 second, got %d", e.WaitTimeout)
	}
	if e.StreamingProgressCap < 1 || e.StreamingProgressCap > 99 {
		return fmt.Errorf("streaming_progress_cap must be between 1 and 99, got %d", e.StreamingProgressCap)
	}
	return nil
}

// Validate validates recognition configuration.
func (r *RecognitionConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}
	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}
	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", r.MaxRetries)
	}
	if r.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", r.MaxConcurrent)
	}
	return nil
}

// Validate validates watchdog configuration.
func (w *WatchdogConfig) Validate() error {
	if !w.Enabled {
		return nil
	}
	if w.StallTimeout < 1 {
		return fmt.Errorf("stall_timeout must be at least 1 second, got %d", w.StallTimeout)
	}
	if w.CheckInterval < 1 {
		return fmt.Errorf("check_interval must be at least 1 second, got %d", w.CheckInterval)
	}
	return nil
}

// Validate validates HTTP configuration.
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}
		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}
	return nil
}

// Validate validates jobs configuration.
func (j *JobsConfig) Validate() error {
	if j.TTLDays < 1 {
		return fmt.Errorf("ttl_days must be at least 1, got %d", j.TTLDays)
	}
	return nil
}

// Validate validates logging configuration.
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetChunkDuration returns the nominal chunk duration as a time.Duration.
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetReadTimeout returns the per-read stall limit as a time.Duration.
func (e *EncoderConfig) GetReadTimeout() time.Duration {
	return time.Duration(e.ReadTimeout) * time.Second
}

// GetProbeTimeout returns the metadata probe timeout as a time.Duration.
func (e *EncoderConfig) GetProbeTimeout() time.Duration {
	return time.Duration(e.ProbeTimeout) * time.Second
}

// GetResolveTimeout returns the URL resolution timeout as a time.Duration.
func (e *EncoderConfig) GetResolveTimeout() time.Duration {
	if e.ResolveTimeout < 1 {
		return 2 * time.Minute
	}
	return time.Duration(e.ResolveTimeout) * time.Second
}

// GetWaitTimeout returns the decode process exit-wait limit as a time.Duration.
func (e *EncoderConfig) GetWaitTimeout() time.Duration {
	return time.Duration(e.WaitTimeout) * time.Second
}

// GetTimeout returns the recognition request timeout as a time.Duration.
func (r *RecognitionConfig) GetTimeout() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetStallTimeout returns the watchdog stall limit as a time.Duration.
func (w *WatchdogConfig) GetStallTimeout() time.Duration {
	return time.Duration(w.StallTimeout) * time.Second
}

// GetCheckInterval returns the watchdog scan interval as a time.Duration.
func (w *WatchdogConfig) GetCheckInterval() time.Duration {
	return time.Duration(w.CheckInterval) * time.Second
}

// GetJobTTL returns the job record retention period as a time.Duration.
func (j *JobsConfig) GetJobTTL() time.Duration {
	return time.Duration(j.TTLDays) * 24 * time.Hour
}
