package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/holdtalk/holdtalk/internal/app"
	"github.com/holdtalk/holdtalk/internal/config"
	"github.com/holdtalk/holdtalk/internal/hotkey"
)

// fakeAudioSource is a minimal audiosrc.Source test double.
type fakeAudioSource struct {
	startCalls int
	duration   time.Duration
}

func (f *fakeAudioSource) StartCapture(string) error {
	f.startCalls++
	return nil
}

func (f *fakeAudioSource) StopCapture() (string, time.Duration, error) {
	return "/tmp/fake-recording.wav", f.duration, nil
}

// fakeSTTBackend is a minimal stt.Backend test double.
type fakeSTTBackend struct {
	text string
}

func (f *fakeSTTBackend) Transcribe(context.Context, string, map[string]any) (string, error) {
	return f.text, nil
}

// fakeKeyboardBackend is a minimal keyboard.Backend test double.
type fakeKeyboardBackend struct {
	mu  sync.Mutex
	got []string
}

func (f *fakeKeyboardBackend) TypeText(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, text)
	return nil
}

func (f *fakeKeyboardBackend) typed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

// fakeListener is a hotkey.Listener test double that lets tests fire
// press/release edges directly instead of grabbing real input devices.
type fakeListener struct {
	onPress   hotkey.PressCallback
	onRelease hotkey.ReleaseCallback
	hotkeys   map[string]string
	started   bool
	stopped   bool
}

func newFakeListener(onPress hotkey.PressCallback, onRelease hotkey.ReleaseCallback) *fakeListener {
	return &fakeListener{onPress: onPress, onRelease: onRelease, hotkeys: make(map[string]string)}
}

func (f *fakeListener) AddHotkey(name, hk string) error {
	f.hotkeys[name] = hk
	return nil
}

func (f *fakeListener) ClearHotkeys() { f.hotkeys = make(map[string]string) }
func (f *fakeListener) Start() error  { f.started = true; return nil }
func (f *fakeListener) Stop() error   { f.stopped = true; return nil }

func (f *fakeListener) press(name string)   { f.onPress(name) }
func (f *fakeListener) release(name string) { f.onRelease(name) }

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{LogLevel: "info"},
		Pipelines: []config.PipelineConfig{
			{
				// Enabled is intentionally omitted: it must default to
				// true rather than silently disabling the pipeline.
				Name:   "dictate",
				Hotkey: "<ctrl>+<alt>+r",
				Stages: []string{"RecordAudio", "Transcribe", "TypeText"},
			},
		},
	}
}

func newTestApp(t *testing.T, audio *fakeAudioSource, sttBackend *fakeSTTBackend, kb *fakeKeyboardBackend) (*app.App, *fakeListener) {
	t.Helper()
	var fl *fakeListener
	a, err := app.New(context.Background(), testConfig(),
		app.WithAudioSource(audio),
		app.WithSTTBackend(sttBackend),
		app.WithKeyboardBackends(kb, nil, nil),
		app.WithHotkeyListenerFactory(func(onPress hotkey.PressCallback, onRelease hotkey.ReleaseCallback) hotkey.Listener {
			fl = newFakeListener(onPress, onRelease)
			return fl
		}),
	)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	return a, fl
}

func TestNew_LoadsEnabledPipeline(t *testing.T) {
	t.Parallel()
	a, fl := newTestApp(t, &fakeAudioSource{}, &fakeSTTBackend{text: "hello"}, &fakeKeyboardBackend{})

	if got := a.Manager().ListEnabledPipelines(); len(got) != 1 || got[0] != "dictate" {
		t.Fatalf("ListEnabledPipelines() = %v, want [dictate]", got)
	}
	if !fl.started {
		t.Error("expected hotkey listener to be started")
	}
	if fl.hotkeys["dictate"] != "<ctrl>+<alt>+r" {
		t.Errorf("hotkeys[dictate] = %q", fl.hotkeys["dictate"])
	}
}

func TestHotkeyPressRelease_RunsFullPipeline(t *testing.T) {
	t.Parallel()
	audio := &fakeAudioSource{duration: time.Second}
	kb := &fakeKeyboardBackend{}
	_, fl := newTestApp(t, audio, &fakeSTTBackend{text: "typed via hotkey"}, kb)

	fl.press("dictate")
	// RecordAudio blocks on trigger completion; release unblocks it.
	time.Sleep(10 * time.Millisecond)
	fl.release("dictate")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(kb.typed()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got := kb.typed()
	if len(got) != 1 || got[0] != "typed via hotkey" {
		t.Fatalf("TypeText calls = %v, want [\"typed via hotkey\"]", got)
	}
	if audio.startCalls != 1 {
		t.Errorf("StartCapture calls = %d, want 1", audio.startCalls)
	}
}

func TestShutdown_StopsListenerAndIsIdempotent(t *testing.T) {
	t.Parallel()
	a, fl := newTestApp(t, &fakeAudioSource{}, &fakeSTTBackend{text: "x"}, &fakeKeyboardBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if !fl.stopped {
		t.Error("expected hotkey listener to be stopped")
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestNew_RejectsUnresolvableStage(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Pipelines: []config.PipelineConfig{
			{Name: "broken", Hotkey: "<ctrl>+b", Stages: []string{"NoSuchStage"}},
		},
	}
	_, err := app.New(context.Background(), cfg,
		app.WithHotkeyListenerFactory(func(onPress hotkey.PressCallback, onRelease hotkey.ReleaseCallback) hotkey.Listener {
			return newFakeListener(onPress, onRelease)
		}),
	)
	if err == nil {
		t.Fatal("expected an error for an unresolvable stage reference")
	}
}

func TestRun_ReturnsOnContextCancel(t *testing.T) {
	t.Parallel()
	a, _ := newTestApp(t, &fakeAudioSource{}, &fakeSTTBackend{text: "x"}, &fakeKeyboardBackend{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
