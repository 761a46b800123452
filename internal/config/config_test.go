package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Storage: StorageConfig{
			Backend: "fs",
			DataDir: "/var/lib/podscribe",
		},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitDepth:      16,
			ChunkDuration: 30.0,
		},
		Encoder: EncoderConfig{
			FFmpegPath:           "ffmpeg",
			FFprobePath:          "ffprobe",
			YtDlpPath:            "yt-dlp",
			ReadTimeout:          60,
			ProbeTimeout:         30,
			ResolveTimeout:       120,
			WaitTimeout:          30,
			StreamingProgressCap: 90,
		},
		Recognition: RecognitionConfig{
			Endpoint:      "http://localhost:9000/transcribe",
			APIKey:        "test-key",
			Model:         "small",
			Timeout:       120,
			MaxRetries:    3,
			MaxConcurrent: 4,
		},
		Watchdog: WatchdogConfig{
			Enabled:       true,
			StallTimeout:  900,
			CheckInterval: 60,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Address: "0.0.0.0",
			Port:    8080,
		},
		Jobs: JobsConfig{
			TTLDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{
			name:   "valid configuration",
			mutate: func(c *Config) {},
		},
		{
			name:        "unknown storage backend",
			mutate:      func(c *Config) { c.Storage.Backend = "s3" },
			expectError: true,
		},
		{
			name:        "fs backend without data dir",
			mutate:      func(c *Config) { c.Storage.DataDir = "" },
			expectError: true,
		},
		{
			name:   "memory backend without data dir",
			mutate: func(c *Config) { c.Storage = StorageConfig{Backend: "memory"} },
		},
		{
			name:        "wrong sample rate",
			mutate:      func(c *Config) { c.Audio.SampleRate = 44100 },
			expectError: true,
		},
		{
			name:        "stereo not allowed",
			mutate:      func(c *Config) { c.Audio.Channels = 2 },
			expectError: true,
		},
		{
			name:        "zero chunk duration",
			mutate:      func(c *Config) { c.Audio.ChunkDuration = 0 },
			expectError: true,
		},
		{
			name:        "missing ffmpeg path",
			mutate:      func(c *Config) { c.Encoder.FFmpegPath = "" },
			expectError: true,
		},
		{
			name:        "progress cap at 100",
			mutate:      func(c *Config) { c.Encoder.StreamingProgressCap = 100 },
			expectError: true,
		},
		{
			name:        "missing recognition endpoint",
			mutate:      func(c *Config) { c.Recognition.Endpoint = "" },
			expectError: true,
		},
		{
			name:        "negative retries",
			mutate:      func(c *Config) { c.Recognition.MaxRetries = -1 },
			expectError: true,
		},
		{
			name:        "watchdog enabled without stall timeout",
			mutate:      func(c *Config) { c.Watchdog.StallTimeout = 0 },
			expectError: true,
		},
		{
			name:   "watchdog disabled skips validation",
			mutate: func(c *Config) { c.Watchdog = WatchdogConfig{Enabled: false} },
		},
		{
			name:        "http enabled with bad port",
			mutate:      func(c *Config) { c.HTTP.Port = 0 },
			expectError: true,
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.Logging.Level = "verbose" },
			expectError: true,
		},
		{
			name:        "zero job ttl",
			mutate:      func(c *Config) { c.Jobs.TTLDays = 0 },
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.expectError && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
storage:
  backend: memory
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  chunk_duration: 30.0
encoder:
  ffmpeg_path: ffmpeg
  ffprobe_path: ffprobe
  ytdlp_path: yt-dlp
  read_timeout: 60
  probe_timeout: 30
  wait_timeout: 30
  streaming_progress_cap: 90
recognition:
  endpoint: http://localhost:9000/transcribe
  api_key: file-key
  model: small
  timeout: 120
  max_retries: 3
  max_concurrent: 4
watchdog:
  enabled: false
http:
  enabled: false
jobs:
  ttl_days: 30
logging:
  level: debug
  format: text
  output: stdout
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Audio.GetChunkDuration() != 30*time.Second {
		t.Errorf("chunk duration = %v, want 30s", cfg.Audio.GetChunkDuration())
	}
	if cfg.Recognition.APIKey != "file-key" {
		t.Errorf("api key = %s, want file-key", cfg.Recognition.APIKey)
	}
	if cfg.Encoder.GetReadTimeout() != 60*time.Second {
		t.Errorf("read timeout = %v, want 60s", cfg.Encoder.GetReadTimeout())
	}
	if cfg.Jobs.GetJobTTL() != 30*24*time.Hour {
		t.Errorf("job ttl = %v, want 720h", cfg.Jobs.GetJobTTL())
	}
}

func TestLoadAppliesEnvOverride(t *testing.T) {
	content := `
storage:
  backend: memory
audio:
  sample_rate: 16000
  channels: 1
  bit_depth: 16
  chunk_duration: 30.0
encoder:
  ffmpeg_path: ffmpeg
  ffprobe_path: ffprobe
  read_timeout: 60
  probe_timeout: 30
  wait_timeout: 30
  streaming_progress_cap: 90
recognition:
  endpoint: http://localhost:9000/transcribe
  api_key: file-key
  timeout: 120
  max_retries: 0
  max_concurrent: 1
watchdog:
  enabled: false
http:
  enabled: false
jobs:
  ttl_days: 1
logging:
  level: info
  format: json
  output: stderr
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	t.Setenv(EnvRecognitionAPIKey, "env-key")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Recognition.APIKey != "env-key" {
		t.Errorf("api key = %s, want env override env-key", cfg.Recognition.APIKey)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}
