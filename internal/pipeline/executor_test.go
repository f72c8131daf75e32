package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

type recordingIcon struct {
	mu     sync.Mutex
	states []string
}

func (r *recordingIcon) SetIcon(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *recordingIcon) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.states))
	copy(out, r.states)
	return out
}

type fnStage struct {
	fn      func(ctx context.Context, input any, pctx *Context) (any, error)
	cleanup func() error
}

func (f fnStage) Execute(ctx context.Context, input any, pctx *Context) (any, error) {
	return f.fn(ctx, input, pctx)
}

func (f fnStage) Cleanup() error {
	if f.cleanup == nil {
		return nil
	}
	return f.cleanup()
}

func newTestExecutor(t *testing.T) (*Executor, *Arbiter, *Registry) {
	t.Helper()
	arb := NewArbiter()
	reg := NewRegistry()
	ex := NewExecutor(arb, reg, ExecutorConfig{MaxWorkers: 4})
	return ex, arb, reg
}

func TestExecutor_BasicRunProducesOutputAndReleasesResources(t *testing.T) {
	defer goleak.VerifyNone(t)

	ex, arb, reg := newTestExecutor(t)

	var cleanupOrder []string
	var mu sync.Mutex
	addCleanup := func(name string) func() error {
		return func() error {
			mu.Lock()
			cleanupOrder = append(cleanupOrder, name)
			mu.Unlock()
			return nil
		}
	}

	reg.Register(StageDefinition{
		Name: "Record", InputType: TypeUnit, OutputType: TypeOptionalPath,
		RequiredResources: NewResourceSet(ResourceAudioInput),
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			return fnStage{
				fn: func(ctx context.Context, input any, pctx *Context) (any, error) {
					pctx.Icon.SetIcon("recording")
					return "file.wav", nil
				},
				cleanup: addCleanup("Record"),
			}, nil
		},
	})
	reg.Register(StageDefinition{
		Name: "Transcribe", InputType: TypeOptionalPath, OutputType: TypeOptionalString,
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			return fnStage{
				fn: func(ctx context.Context, input any, pctx *Context) (any, error) {
					return "hello world", nil
				},
				cleanup: addCleanup("Transcribe"),
			}, nil
		},
	})
	reg.Register(StageDefinition{
		Name: "Type", InputType: TypeOptionalString, OutputType: TypeUnit,
		RequiredResources: NewResourceSet(ResourceKeyboard),
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			return fnStage{
				fn: func(ctx context.Context, input any, pctx *Context) (any, error) {
					return nil, nil
				},
				cleanup: addCleanup("Type"),
			}, nil
		},
	})

	def := &Definition{
		Name: "basic", Enabled: true, Hotkey: "<pause>",
		Stages: []StageRef{{Name: "Record"}, {Name: "Transcribe"}, {Name: "Type"}},
	}

	icon := &recordingIcon{}
	runID, ok := ex.Execute(context.Background(), def, NewProgrammaticTrigger(), nil, icon)
	if !ok {
		t.Fatal("expected Execute to succeed")
	}

	ex.Shutdown(2 * time.Second)

	if held := arb.HeldBy(runID); len(held) != 0 {
		t.Fatalf("expected no resources held after run finished, got %v", held)
	}
	if len(ex.ActiveRunIDs()) != 0 {
		t.Fatalf("expected no active runs after shutdown, got %v", ex.ActiveRunIDs())
	}

	mu.Lock()
	order := append([]string(nil), cleanupOrder...)
	mu.Unlock()
	want := []string{"Type", "Transcribe", "Record"}
	if len(order) != len(want) {
		t.Fatalf("cleanup order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("cleanup order = %v, want %v", order, want)
		}
	}
}

func TestExecutor_ResourceContentionRefusesDispatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	ex, _, reg := newTestExecutor(t)

	block := make(chan struct{})
	reg.Register(StageDefinition{
		Name: "Hold", InputType: TypeUnit, OutputType: TypeUnit,
		RequiredResources: NewResourceSet(ResourceKeyboard),
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			return fnStage{fn: func(ctx context.Context, input any, pctx *Context) (any, error) {
				<-block
				return nil, nil
			}}, nil
		},
	})

	def := &Definition{Name: "p1", Enabled: true, Stages: []StageRef{{Name: "Hold"}}}

	_, ok := ex.Execute(context.Background(), def, NewProgrammaticTrigger(), nil, nil)
	if !ok {
		t.Fatal("expected first dispatch to succeed")
	}

	// Give the first run's worker a moment to start executing; its resources
	// were already acquired by Execute.
	time.Sleep(20 * time.Millisecond)

	_, ok = ex.Execute(context.Background(), def, NewProgrammaticTrigger(), nil, nil)
	if ok {
		t.Fatal("expected second dispatch to be refused: KEYBOARD held")
	}

	close(block)
	ex.Shutdown(2 * time.Second)
}

func TestExecutor_StageFailureStillRunsCleanupAndReleasesResources(t *testing.T) {
	defer goleak.VerifyNone(t)

	ex, arb, reg := newTestExecutor(t)

	cleaned := false
	reg.Register(StageDefinition{
		Name: "A", InputType: TypeUnit, OutputType: TypeOptionalString,
		RequiredResources: NewResourceSet(ResourceAudioInput),
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			return fnStage{
				fn:      func(ctx context.Context, input any, pctx *Context) (any, error) { return nil, errors.New("boom") },
				cleanup: func() error { cleaned = true; return nil },
			}, nil
		},
	})
	reg.Register(StageDefinition{
		Name: "B", InputType: TypeOptionalString, OutputType: TypeUnit,
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			t.Fatal("stage B must not run after stage A fails")
			return nil, nil
		},
	})

	def := &Definition{Name: "fails", Enabled: true, Stages: []StageRef{{Name: "A"}, {Name: "B"}}}
	runID, ok := ex.Execute(context.Background(), def, NewProgrammaticTrigger(), nil, nil)
	if !ok {
		t.Fatal("expected dispatch to succeed")
	}
	ex.Shutdown(2 * time.Second)

	if !cleaned {
		t.Fatal("expected stage A's cleanup to have run despite its own failure")
	}
	if held := arb.HeldBy(runID); len(held) != 0 {
		t.Fatalf("expected resources released after failure, got %v", held)
	}
}

func TestExecutor_CancelStopsSubsequentStages(t *testing.T) {
	defer goleak.VerifyNone(t)

	ex, _, reg := newTestExecutor(t)

	started := make(chan struct{})
	reg.Register(StageDefinition{
		Name: "Wait", InputType: TypeUnit, OutputType: TypeUnit,
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			return fnStage{fn: func(ctx context.Context, input any, pctx *Context) (any, error) {
				close(started)
				pctx.WaitCancel(2 * time.Second)
				return nil, nil
			}}, nil
		},
	})
	var secondRan bool
	reg.Register(StageDefinition{
		Name: "Second", InputType: TypeUnit, OutputType: TypeUnit,
		Factory: func(map[string]any, map[string]any) (Stage, error) {
			return fnStage{fn: func(ctx context.Context, input any, pctx *Context) (any, error) {
				secondRan = true
				return nil, nil
			}}, nil
		},
	})

	def := &Definition{Name: "cancellable", Enabled: true, Stages: []StageRef{{Name: "Wait"}, {Name: "Second"}}}
	runID, ok := ex.Execute(context.Background(), def, NewProgrammaticTrigger(), nil, nil)
	if !ok {
		t.Fatal("expected dispatch to succeed")
	}

	<-started
	ex.Cancel(runID)
	ex.Shutdown(2 * time.Second)

	if secondRan {
		t.Fatal("second stage must not run after cancellation")
	}
}
