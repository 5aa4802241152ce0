package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// PrebuiltVoices lists the known Gemini Live prebuilt voice names.
// Used by [Validate] to warn about unrecognised voices.
var PrebuiltVoices = []string{"Puck", "Charon", "Kore", "Fenrir", "Aoede"}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Gemini
	if cfg.Gemini.APIKey == "" {
		slog.Warn("gemini.api_key is empty; set it in the config or via GEMINI_API_KEY")
	}

	// Voice name — warn for unknown voices, they may be newly released.
	if v := cfg.Call.Voice; v != "" && !slices.Contains(PrebuiltVoices, v) {
		slog.Warn("unknown prebuilt voice — may be a typo or a newer voice",
			"voice", v,
			"known", PrebuiltVoices,
		)
	}

	// Video
	if cfg.Video.Width < 0 || cfg.Video.Height < 0 {
		errs = append(errs, fmt.Errorf("video resolution %dx%d is invalid", cfg.Video.Width, cfg.Video.Height))
	}
	if (cfg.Video.Width == 0) != (cfg.Video.Height == 0) {
		errs = append(errs, errors.New("video.width and video.height must be set together"))
	}
	if cfg.Video.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("video.frame_interval %s must not be negative", cfg.Video.FrameInterval))
	}
	if q := cfg.Video.JPEGQuality; q != 0 && (q < 1 || q > 100) {
		errs = append(errs, fmt.Errorf("video.jpeg_quality %d is out of range [1, 100]", q))
	}
	if !cfg.Video.Enabled && (cfg.Video.Width != 0 || cfg.Video.FrameInterval != 0 || cfg.Video.JPEGQuality != 0) {
		slog.Warn("video settings are present but video.enabled is false; they will be ignored")
	}

	return errors.Join(errs...)
}
