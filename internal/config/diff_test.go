package config_test

import (
	"testing"
	"time"

	"github.com/voxcall/voxcall/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo, MetricsAddr: ":9090"},
		Call:   config.CallConfig{Voice: "Aoede", Instructions: "be brief"},
		Video:  config.VideoConfig{Enabled: true, Width: 1280, Height: 720},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("identical configs should produce an empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("LogLevelChanged should be true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel: got %q, want debug", d.NewLogLevel)
	}
	if d.CallChanged || d.VideoChanged {
		t.Errorf("only the log level changed, got %+v", d)
	}
}

func TestDiff_CallSettings(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Call.Voice = "Puck"

	d := config.Diff(old, new)
	if !d.CallChanged {
		t.Error("CallChanged should be true when the voice changes")
	}
	if d.NewCall.Voice != "Puck" {
		t.Errorf("NewCall.Voice: got %q, want Puck", d.NewCall.Voice)
	}
}

func TestDiff_VideoSettings(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Video.FrameInterval = 500 * time.Millisecond

	d := config.Diff(old, new)
	if !d.VideoChanged {
		t.Error("VideoChanged should be true when the frame interval changes")
	}
	if d.NewVideo.FrameInterval != 500*time.Millisecond {
		t.Errorf("NewVideo.FrameInterval: got %v", d.NewVideo.FrameInterval)
	}
}

func TestDiff_RestartOnlyFieldsIgnored(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.MetricsAddr = ":9999"
	new.Gemini.APIKey = "rotated"

	d := config.Diff(old, new)
	if d.Any() {
		t.Errorf("restart-only fields must not appear in the diff, got %+v", d)
	}
}
