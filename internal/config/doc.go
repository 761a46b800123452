// Package config provides configuration loading and validation for the
// transcription pipeline service. It handles YAML-based configuration with
// per-section struct validation and environment overrides for secrets.
package config
