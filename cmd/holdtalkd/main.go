// Command holdtalkd is the main entry point for the holdtalk push-to-talk
// daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/holdtalk/holdtalk/internal/app"
	"github.com/holdtalk/holdtalk/internal/config"
	"github.com/holdtalk/holdtalk/internal/keyboard"
	"github.com/holdtalk/holdtalk/internal/observe"
	"github.com/holdtalk/holdtalk/internal/resilience"
)

// shutdownTimeout bounds how long graceful shutdown may take before the
// process exits anyway.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ────────────────────────────────────────────────────────
	configPath := flag.String("config", "holdtalk.toml", "path to the TOML configuration file")
	watchFlag := flag.Bool("watch", true, "reload the config file when it changes on disk")
	flag.Parse()

	// ── Load configuration ───────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "holdtalkd: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "holdtalkd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("holdtalkd starting",
		"config", *configPath,
		"log_level", cfg.Server.LogLevel,
		"pipelines", len(cfg.Pipelines),
	)

	// ── Tracing ───────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "holdtalkd"})
	if err != nil {
		slog.Error("failed to initialise tracing", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			slog.Warn("tracing shutdown error", "err", err)
		}
	}()

	// ── Application wiring ───────────────────────────────────────────────
	direct, wlroots, eiportal := buildKeyboardBackends(cfg)

	application, err := app.New(ctx, cfg,
		app.WithKeyboardBackends(direct, wlroots, eiportal),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watchFlag {
		// server.watch_interval was already validated by config.Load; an
		// empty value leaves 0, which selects the watcher's default.
		var watchInterval time.Duration
		if cfg.Server.WatchInterval != "" {
			watchInterval, _ = time.ParseDuration(cfg.Server.WatchInterval)
		}
		if err := application.WatchConfig(*configPath, watchInterval); err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}

	slog.Info("holdtalkd ready — hold a configured hotkey to dictate")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildKeyboardBackends wires the keyboard package's concrete back ends.
// direct and wlroots are always constructed; whether they work shows only on
// first use (the direct back end needs a native char injector, Linux only,
// via /dev/uinput, and the wlroots back end needs its external tool on
// PATH). eiportal is nil only when no token path can be determined; on
// non-Linux builds its TypeText always fails.
func buildKeyboardBackends(cfg *config.Config) (direct, wlroots, eiportal keyboard.Backend) {
	direct = keyboard.NewDirectBackend(keyboard.NewPlatformInjector(), 0)
	wlroots = keyboard.NewResilientBackend("wlroots", keyboard.NewWlrootsBackend(""), resilience.CircuitBreakerConfig{})

	tokenPath := cfg.Server.EITokenPath
	if tokenPath == "" {
		// Default: the per-user data directory ($XDG_DATA_HOME, else
		// ~/.local/share).
		dataDir := os.Getenv("XDG_DATA_HOME")
		if dataDir == "" {
			if home, err := os.UserHomeDir(); err == nil {
				dataDir = filepath.Join(home, ".local", "share")
			}
		}
		if dataDir != "" {
			tokenPath = filepath.Join(dataDir, "holdtalk", "ei-restore-token")
		}
	}
	if tokenPath != "" {
		eiportal = keyboard.NewResilientBackend("eiportal", keyboard.NewEIPortalBackend(tokenPath), resilience.CircuitBreakerConfig{})
	}
	return direct, wlroots, eiportal
}

// ── Logger ───────────────────────────────────────────────────────────────

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
