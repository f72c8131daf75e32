// Package app wires all holdtalk subsystems into a running daemon.
//
// The App struct owns the full lifecycle: New creates and connects every
// subsystem, Run blocks until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock backends via functional options (WithAudioSource,
// WithSTTBackend, etc.). Backends that are opaque to this module (audio
// capture, speech-to-text, LLM completion) must always be injected — holdtalk
// never constructs a concrete SDK client itself.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holdtalk/holdtalk/internal/config"
	"github.com/holdtalk/holdtalk/internal/hotkey"
	"github.com/holdtalk/holdtalk/internal/keyboard"
	"github.com/holdtalk/holdtalk/internal/pipeline"
	"github.com/holdtalk/holdtalk/internal/stages"
	"github.com/holdtalk/holdtalk/pkg/agent"
	"github.com/holdtalk/holdtalk/pkg/audiosrc"
	"github.com/holdtalk/holdtalk/pkg/stt"
)

// defaultShutdownGrace bounds how long Shutdown waits for in-flight pipeline
// runs to finish before abandoning them.
const defaultShutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes and dispatches hotkey-triggered pipeline
// runs.
type App struct {
	cfg *config.Config

	// Injected backends — opaque to this module, supplied by main.go.
	audioSource audiosrc.Source
	sttBackend  stt.Backend
	agentBackend agent.Backend
	direct      keyboard.Backend
	wlroots     keyboard.Backend
	eiportal    keyboard.Backend
	icon        pipeline.IconController

	// Subsystems — initialised in New, torn down in Shutdown.
	registry   *pipeline.Registry
	arbiter    *pipeline.Arbiter
	executor   *pipeline.Executor
	manager    *pipeline.Manager
	dispatcher      *keyboard.Dispatcher
	listener        hotkey.Listener
	listenerFactory func(hotkey.PressCallback, hotkey.ReleaseCallback) hotkey.Listener
	watcher         *config.Watcher

	// pending tracks the in-flight hotkey trigger for each currently-held
	// pipeline name, so Release can complete the right latch.
	pendingMu sync.Mutex
	pending   map[string]*pipeline.TriggerEvent

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithAudioSource injects the microphone-capture backend used by the
// RecordAudio stage.
func WithAudioSource(s audiosrc.Source) Option {
	return func(a *App) { a.audioSource = s }
}

// WithSTTBackend injects the speech-to-text backend used by the Transcribe
// stage.
func WithSTTBackend(b stt.Backend) Option {
	return func(a *App) { a.sttBackend = b }
}

// WithAgentBackend injects the LLM-completion backend used by the LLMAgent
// stage.
func WithAgentBackend(b agent.Backend) Option {
	return func(a *App) { a.agentBackend = b }
}

// WithKeyboardBackends injects the concrete virtual-keyboard backends the
// dispatcher chooses between. Any of the three may be nil if unavailable on
// this host.
func WithKeyboardBackends(direct, wlroots, eiportal keyboard.Backend) Option {
	return func(a *App) { a.direct, a.wlroots, a.eiportal = direct, wlroots, eiportal }
}

// WithIconController injects a status-icon controller (e.g. a system tray
// indicator). Defaults to a no-op controller when not supplied.
func WithIconController(ic pipeline.IconController) Option {
	return func(a *App) { a.icon = ic }
}

// WithHotkeyListenerFactory overrides how New builds its hotkey.Listener.
// Intended for tests, where a direct-grab or portal listener would need
// real OS resources; the factory still receives the app's own
// press/release callbacks so injected fakes exercise the same dispatch path
// a real listener would.
func WithHotkeyListenerFactory(f func(hotkey.PressCallback, hotkey.ReleaseCallback) hotkey.Listener) Option {
	return func(a *App) { a.listenerFactory = f }
}

// New wires every subsystem together from cfg: the stage registry, the
// resource arbiter and executor, the pipeline manager, the keyboard
// dispatcher, and the hotkey listener. Hotkeys are registered and the
// listener started before New returns; Run only blocks until shutdown.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, pending: make(map[string]*pipeline.TriggerEvent)}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Stage registry ────────────────────────────────────────────────
	a.registry = pipeline.NewRegistry()
	if err := stages.Register(a.registry); err != nil {
		return nil, fmt.Errorf("app: register stages: %w", err)
	}

	// ── 2. Resource arbiter + executor ───────────────────────────────────
	a.arbiter = pipeline.NewArbiter()
	a.executor = pipeline.NewExecutor(a.arbiter, a.registry, pipeline.DefaultExecutorConfig())

	// ── 3. Keyboard dispatcher ────────────────────────────────────────────
	a.dispatcher = keyboard.NewDispatcher(a.direct, a.wlroots, a.eiportal)

	// ── 4. Pipeline manager ───────────────────────────────────────────────
	metadata := a.runMetadata()
	a.manager = pipeline.NewManager(a.registry, a.executor, metadata, a.icon)
	if err := a.loadPipelines(cfg); err != nil {
		return nil, fmt.Errorf("app: load pipelines: %w", err)
	}

	// ── 5. Hotkey listener ────────────────────────────────────────────────
	if a.listenerFactory != nil {
		a.listener = a.listenerFactory(a.onHotkeyPress, a.onHotkeyRelease)
	} else {
		a.listener = hotkey.NewListener(a.onHotkeyPress, a.onHotkeyRelease)
	}
	if err := a.registerHotkeys(cfg); err != nil {
		return nil, fmt.Errorf("app: register hotkeys: %w", err)
	}
	if err := a.listener.Start(); err != nil {
		return nil, fmt.Errorf("app: start hotkey listener: %w", err)
	}
	a.closers = append(a.closers, a.listener.Stop)

	slog.Info("app initialised",
		"pipelines", len(a.manager.ListPipelines()),
		"enabled", len(a.manager.ListEnabledPipelines()),
	)
	return a, nil
}

// runMetadata assembles the metadata map every pipeline run's Context
// carries, populated with the backends the canonical stages expect to find.
func (a *App) runMetadata() map[string]any {
	m := make(map[string]any, 4)
	if a.audioSource != nil {
		m["audio_source"] = a.audioSource
	}
	if a.sttBackend != nil {
		m["stt_backend"] = a.sttBackend
	}
	if a.agentBackend != nil {
		m["agent_backend"] = a.agentBackend
	}
	m["keyboard_dispatcher"] = a.dispatcher
	return m
}

// loadPipelines resolves cfg's stage_configs and pipelines and loads them
// into the manager.
func (a *App) loadPipelines(cfg *config.Config) error {
	stageConfigs, err := cfg.ResolvedStageConfigs()
	if err != nil {
		return err
	}
	return a.manager.Load(cfg.PipelineSpecs(), stageConfigs)
}

// registerHotkeys adds one listener entry per enabled pipeline, keyed by
// pipeline name so press/release callbacks can address the manager directly
// by name rather than re-resolving the hotkey string.
func (a *App) registerHotkeys(cfg *config.Config) error {
	a.listener.ClearHotkeys()
	for _, spec := range cfg.PipelineSpecs() {
		if !spec.Enabled {
			continue
		}
		if err := a.listener.AddHotkey(spec.Name, spec.Hotkey); err != nil {
			return fmt.Errorf("pipeline %q: %w", spec.Name, err)
		}
	}
	return nil
}

// onHotkeyPress starts a run for the pressed pipeline, carrying a hotkey
// trigger whose completion latch fires on release.
func (a *App) onHotkeyPress(name string) {
	trigger := pipeline.NewHotkeyTrigger(name, time.Now())

	a.pendingMu.Lock()
	a.pending[name] = trigger
	a.pendingMu.Unlock()

	runID, err := a.manager.TriggerByName(context.Background(), name, trigger)
	if err != nil {
		slog.Warn("hotkey press: failed to trigger pipeline", "pipeline", name, "err", err)
		return
	}
	if runID == "" {
		slog.Debug("hotkey press: pipeline did not start (resources busy)", "pipeline", name)
		return
	}
	slog.Debug("hotkey press: pipeline started", "pipeline", name, "run", runID)
}

// onHotkeyRelease completes the pending trigger for name, if any, unblocking
// a RecordAudio stage waiting on it.
func (a *App) onHotkeyRelease(name string) {
	a.pendingMu.Lock()
	trigger, ok := a.pending[name]
	delete(a.pending, name)
	a.pendingMu.Unlock()

	if !ok {
		return
	}
	trigger.Complete()
}

// WatchConfig starts polling path for changes, reloading the manager's
// pipeline set and re-registering hotkeys whenever the content changes. The
// watcher is stopped by Shutdown. Call at most once per App.
func (a *App) WatchConfig(path string, interval time.Duration) error {
	var opts []config.WatcherOption
	if interval > 0 {
		opts = append(opts, config.WithInterval(interval))
	}
	w, err := config.NewWatcher(path, a.onConfigChanged, opts...)
	if err != nil {
		return fmt.Errorf("app: start config watcher: %w", err)
	}
	a.watcher = w
	a.closers = append(a.closers, func() error {
		w.Stop()
		return nil
	})
	return nil
}

// onConfigChanged reloads pipelines and hotkeys from new. Reload failures
// are logged, not fatal: the previously loaded pipeline set stays active.
func (a *App) onConfigChanged(old, newCfg *config.Config) {
	diff := config.Diff(old, newCfg)
	slog.Info("config changed, reloading",
		"log_level_changed", diff.LogLevelChanged,
		"pipelines_changed", diff.PipelinesChanged,
	)

	a.cfg = newCfg
	if err := a.loadPipelines(newCfg); err != nil {
		slog.Error("config reload: failed to load pipelines, keeping previous set", "err", err)
		return
	}
	if err := a.registerHotkeys(newCfg); err != nil {
		slog.Error("config reload: failed to register hotkeys, keeping previous set", "err", err)
		return
	}
	slog.Info("config reload complete")
}

// Run blocks until ctx is cancelled. All real work happens in background
// goroutines started by the hotkey listener and executor.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running — waiting for hotkeys")
	<-ctx.Done()
	return ctx.Err()
}

// Shutdown tears down all subsystems in reverse-init order, then drains the
// executor with a bounded grace period. It respects ctx's deadline for the
// ordered closers; the executor drain always uses defaultShutdownGrace.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		if a.manager != nil {
			a.manager.Shutdown(defaultShutdownGrace)
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// Manager exposes the pipeline manager for diagnostics and tests.
func (a *App) Manager() *pipeline.Manager { return a.manager }

// Dispatcher exposes the keyboard dispatcher for diagnostics and tests.
func (a *App) Dispatcher() *keyboard.Dispatcher { return a.dispatcher }
