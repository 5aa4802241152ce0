// Command voxcall is a terminal client for live voice conversations with a
// Gemini Live model: microphone in, spoken replies out, with a running
// transcript printed as the call progresses.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxcall/voxcall/internal/call"
	"github.com/voxcall/voxcall/internal/config"
	"github.com/voxcall/voxcall/internal/health"
	"github.com/voxcall/voxcall/internal/observe"
	"github.com/voxcall/voxcall/internal/transcript"
	"github.com/voxcall/voxcall/pkg/device/portaudio"
	"github.com/voxcall/voxcall/pkg/transport/gemini"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	video := flag.Bool("video", false, "enable camera capture regardless of the config file")
	flag.Parse()

	// ── Environment ────────────────────────────────────────────────────────────
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found; using system environment variables")
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Run with defaults when no config file is present; the API key
			// can come from the environment alone.
			cfg = &config.Config{}
		} else {
			fmt.Fprintf(os.Stderr, "voxcall: %v\n", err)
			return 1
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.Gemini.APIKey = key
	}
	if cfg.Gemini.APIKey == "" {
		fmt.Fprintln(os.Stderr, "voxcall: no API key — set gemini.api_key or GEMINI_API_KEY")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("voxcall starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"video", cfg.Video.Enabled || *video,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxcall"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Controller wiring ─────────────────────────────────────────────────────
	var dialerOpts []gemini.Option
	if cfg.Gemini.Model != "" {
		dialerOpts = append(dialerOpts, gemini.WithModel(cfg.Gemini.Model))
	}
	if cfg.Gemini.BaseURL != "" {
		dialerOpts = append(dialerOpts, gemini.WithBaseURL(cfg.Gemini.BaseURL))
	}
	dialer := gemini.New(cfg.Gemini.APIKey, dialerOpts...)
	platform := portaudio.New(portaudio.WithLogger(logger))

	callCfg := call.Config{
		Voice:              cfg.Call.Voice,
		Instructions:       cfg.Call.Instructions,
		Video:              cfg.Video.Enabled || *video,
		VideoWidth:         cfg.Video.Width,
		VideoHeight:        cfg.Video.Height,
		VideoFrameInterval: cfg.Video.FrameInterval,
		VideoJPEGQuality:   cfg.Video.JPEGQuality,
	}
	ctrl := call.New(platform, dialer, callCfg,
		call.WithLogger(logger),
		call.WithMetrics(metrics),
		call.WithOnCommit(printEntries),
	)

	// ── Config watcher ────────────────────────────────────────────────────────
	// The log level applies immediately; call settings need a restart because
	// a running session is bound to its setup message.
	if watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.CallChanged || d.VideoChanged {
			slog.Info("call settings changed; restart to apply")
		}
	}); err == nil {
		defer watcher.Stop()
	}

	// ── Metrics/health server ─────────────────────────────────────────────────
	var metricsSrv *http.Server
	if cfg.Server.MetricsAddr != "" {
		metricsSrv = newMetricsServer(cfg.Server.MetricsAddr, metrics, ctrl)
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		slog.Info("metrics server listening", "addr", cfg.Server.MetricsAddr)
	}

	// ── Run the call ──────────────────────────────────────────────────────────
	if err := ctrl.Start(ctx); err != nil {
		slog.Error("failed to start call", "err", err)
		return 1
	}
	slog.Info("call active — press Ctrl+C to hang up")

	// Wait for either the signal or the call ending on its own.
	waitForEnd(ctx, ctrl)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("hanging up…")
	ctrl.Stop()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown error", "err", err)
		}
	}

	if n := len(ctrl.History()); n > 0 {
		slog.Info("call ended", "transcript_entries", n)
	}
	slog.Info("goodbye")
	return 0
}

// waitForEnd blocks until the signal context is cancelled or the controller
// leaves the active state (remote closure or transport failure).
func waitForEnd(ctx context.Context, ctrl *call.Controller) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			switch ctrl.State() {
			case call.StateIdle:
				slog.Info("remote side ended the call")
				return
			case call.StateError:
				slog.Error("call failed")
				return
			}
		}
	}
}

// newMetricsServer builds the HTTP server exposing /metrics, /healthz and
// /readyz, with the request-duration middleware applied.
func newMetricsServer(addr string, metrics *observe.Metrics, ctrl *call.Controller) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	h := health.New(
		health.Func("call", func(_ context.Context) error {
			if ctrl.State() == call.StateError {
				return errors.New("call is in the error state")
			}
			return nil
		}),
	)
	h.Register(mux)

	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// printEntries writes committed transcript turns to stdout.
func printEntries(entries []transcript.Entry) {
	for _, e := range entries {
		label := "you"
		if e.Speaker == transcript.SpeakerBot {
			label = "bot"
		}
		fmt.Printf("[%s] %s: %s\n", e.Timestamp.Format("15:04:05"), label, e.Text)
	}
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
