// Package config provides the configuration schema, loader, and file watcher
// for the voxcall client.
package config

import "time"

// LogLevel controls log verbosity for the voxcall process.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure for voxcall.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server ServerConfig `yaml:"server"`
	Gemini GeminiConfig `yaml:"gemini"`
	Call   CallConfig   `yaml:"call"`
	Video  VideoConfig  `yaml:"video"`
}

// ServerConfig holds logging and observability settings.
type ServerConfig struct {
	// MetricsAddr is the TCP address the metrics/health HTTP server listens
	// on (e.g., ":9090"). Empty disables the server.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// GeminiConfig holds the connection settings for the Gemini Live endpoint.
type GeminiConfig struct {
	// APIKey authenticates against the Gemini API. Usually injected via the
	// GEMINI_API_KEY environment variable rather than the config file.
	APIKey string `yaml:"api_key"`

	// Model overrides the default live model. Leave empty to use the
	// transport's built-in default.
	Model string `yaml:"model"`

	// BaseURL overrides the websocket endpoint. Leave empty to use the
	// production endpoint.
	BaseURL string `yaml:"base_url"`
}

// CallConfig holds per-call conversation settings.
type CallConfig struct {
	// Voice selects a prebuilt voice for the model's audio output
	// (e.g., "Aoede"). Empty uses the model's default voice.
	Voice string `yaml:"voice"`

	// Instructions is a free-text system instruction injected at session
	// setup.
	Instructions string `yaml:"instructions"`
}

// VideoConfig holds the camera sampling settings.
type VideoConfig struct {
	// Enabled turns camera capture on. Audio-only calls leave this false.
	Enabled bool `yaml:"enabled"`

	// Width and Height are the requested camera resolution. Zero means the
	// default of 1280x720.
	Width  int `yaml:"width"`
	Height int `yaml:"height"`

	// FrameInterval is the delay between sampled frames (e.g., "250ms").
	// Zero means the default of 250ms.
	FrameInterval time.Duration `yaml:"frame_interval"`

	// JPEGQuality is the encoder quality in [1, 100]. Zero means the
	// default of 80.
	JPEGQuality int `yaml:"jpeg_quality"`
}
