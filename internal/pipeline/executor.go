package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/holdtalk/holdtalk/internal/observe"
)

// ErrShuttingDown names the executor's shutting-down state. Execute does not
// return it: once Shutdown has been called, Execute refuses every dispatch
// with ("", false).
var ErrShuttingDown = errors.New("pipeline: executor is shutting down")

// ExecutorConfig bounds the executor's worker pool.
type ExecutorConfig struct {
	// MaxWorkers caps the number of pipeline runs executing concurrently.
	// Zero means use the default of 4.
	MaxWorkers int64
}

// DefaultExecutorConfig returns the spec's documented default: 4 workers.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{MaxWorkers: 4}
}

type runState struct {
	pctx   *Context
	runID  string
	name   string
	stages []any // live stage instances, in creation order
}

// Executor runs pipelines concurrently on a bounded worker pool without
// blocking the caller. Dispatch (Execute) is always non-blocking: resource
// acquisition is synchronous and fails fast; the bounded-worker-pool
// semaphore slot is acquired inside the spawned goroutine so a full pool
// never blocks the trigger thread, only delays when the run's own work
// actually starts.
type Executor struct {
	arbiter  *Arbiter
	registry *Registry
	sem      *semaphore.Weighted

	mu           sync.Mutex
	active       map[string]*runState
	shuttingDown bool

	wg sync.WaitGroup
}

// NewExecutor builds an Executor bound to arbiter and registry, with the
// worker pool sized per cfg.
func NewExecutor(arbiter *Arbiter, registry *Registry, cfg ExecutorConfig) *Executor {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultExecutorConfig().MaxWorkers
	}
	return &Executor{
		arbiter:  arbiter,
		registry: registry,
		sem:      semaphore.NewWeighted(cfg.MaxWorkers),
		active:   make(map[string]*runState),
	}
}

// StageRef names one stage in a pipeline's ordered stage list, paired with
// its resolved, stage-specific configuration.
type StageRef struct {
	Name   string
	Config map[string]any
}

// Definition is a loaded, immutable pipeline: a name, enabled flag, trigger
// hotkey, and its resolved, ordered stage list.
type Definition struct {
	Name    string
	Enabled bool
	Hotkey  string
	Stages  []StageRef
}

// Execute attempts to start one run of def. It is non-blocking: it returns
// ("", false) immediately once Shutdown has been called, or if the arbiter
// refuses the union of required resources. On success it spawns a worker and returns the new run's id.
func (e *Executor) Execute(ctx context.Context, def *Definition, trigger *TriggerEvent, metadata map[string]any, icon IconController) (string, bool) {
	e.mu.Lock()
	if e.shuttingDown {
		e.mu.Unlock()
		return "", false
	}
	e.mu.Unlock()

	names := make([]string, len(def.Stages))
	for i, s := range def.Stages {
		names[i] = s.Name
	}
	required := e.registry.RequiredResources(names)

	runID := uuid.NewString()
	if !e.arbiter.Acquire(runID, required) {
		blocked := e.arbiter.BlockedBy(required)
		slog.Warn("pipeline dispatch refused: resource contention", "pipeline", def.Name, "blocked_by", fmt.Sprint(blocked))
		return "", false
	}

	pctx := NewContext(icon, trigger, metadata)
	rs := &runState{pctx: pctx, runID: runID, name: def.Name}

	e.mu.Lock()
	e.active[runID] = rs
	e.mu.Unlock()

	e.wg.Add(1)
	go e.runWorker(context.WithoutCancel(ctx), def, rs)

	return runID, true
}

func (e *Executor) runWorker(ctx context.Context, def *Definition, rs *runState) {
	defer e.wg.Done()
	defer e.finalize(rs)

	// Semaphore acquisition happens inside the goroutine, not in Execute, so
	// a saturated pool never blocks the dispatching caller — it only delays
	// when this run's stages actually start running.
	if err := e.sem.Acquire(ctx, 1); err != nil {
		slog.Warn("pipeline worker: failed to acquire pool slot", "pipeline", def.Name, "run_id", rs.runID, "err", err)
		return
	}
	defer e.sem.Release(1)

	ctx, span := observe.StartSpan(ctx, "pipeline."+def.Name,
		trace.WithAttributes(
			attribute.String("pipeline.id", rs.runID),
			attribute.String("pipeline.name", def.Name),
			attribute.Int("pipeline.stage_count", len(def.Stages)),
		),
	)
	defer span.End()

	start := time.Now()
	var runErr error
	var prev any

	for i, ref := range def.Stages {
		if rs.pctx.CancelRequested() {
			span.AddEvent("cancelled")
			span.SetStatus(codes.Error, "cancelled")
			break
		}

		stageDef, err := e.registry.Lookup(ref.Name)
		if err != nil {
			runErr = err
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			break
		}

		stageAttrs := []attribute.KeyValue{
			attribute.String("stage.id", rs.runID),
			attribute.String("stage.name", ref.Name),
			attribute.Int("stage.index", i),
		}
		for k, v := range ref.Config {
			stageAttrs = append(stageAttrs, attribute.String(fmt.Sprintf("stage.config.%s", k), fmt.Sprint(v)))
		}
		_, stageSpan := observe.StartSpan(ctx, "stage."+ref.Name, trace.WithAttributes(stageAttrs...))

		instance, err := stageDef.Factory(ref.Config, rs.pctx.Metadata)
		if err != nil {
			runErr = fmt.Errorf("instantiate stage %q: %w", ref.Name, err)
			stageSpan.RecordError(runErr)
			stageSpan.SetStatus(codes.Error, runErr.Error())
			stageSpan.End()
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
			break
		}
		rs.stages = append(rs.stages, instance)
		rs.pctx.Config = ref.Config

		stageStart := time.Now()
		out, err := e.invokeStage(ctx, instance, prev, rs.pctx)
		stageSpan.SetAttributes(attribute.Int64("stage.duration_ms", time.Since(stageStart).Milliseconds()))
		if err != nil {
			runErr = fmt.Errorf("stage %q: %w", ref.Name, err)
			stageSpan.RecordError(err)
			stageSpan.SetStatus(codes.Error, err.Error())
			stageSpan.End()
			span.RecordError(runErr)
			span.SetStatus(codes.Error, runErr.Error())
			break
		}
		stageSpan.SetStatus(codes.Ok, "")
		stageSpan.End()
		prev = out
	}

	if runErr == nil && !rs.pctx.CancelRequested() {
		span.SetAttributes(attribute.Int64("pipeline.duration_ms", time.Since(start).Milliseconds()))
		span.SetStatus(codes.Ok, "")
		rs.pctx.Icon.SetIcon("idle")
	}
}

// invokeStage runs a single stage, converting a panic into an error so that
// the finalizer's cleanup guarantee holds regardless of whether a stage
// fails by error return or by panic.
func (e *Executor) invokeStage(ctx context.Context, stage Stage, input any, pctx *Context) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return stage.Execute(ctx, input, pctx)
}

// finalize runs the guaranteed per-run cleanup: cleanup every live stage in
// reverse creation order (swallowing and logging each error individually),
// release resources, and remove the run from the active-run map.
func (e *Executor) finalize(rs *runState) {
	for i := len(rs.stages) - 1; i >= 0; i-- {
		cleaner, ok := rs.stages[i].(Cleanup)
		if !ok {
			continue
		}
		if err := e.safeCleanup(cleaner); err != nil {
			slog.Warn("pipeline: stage cleanup failed", "pipeline", rs.name, "run_id", rs.runID, "err", err)
		}
	}

	e.arbiter.Release(rs.runID)

	e.mu.Lock()
	delete(e.active, rs.runID)
	e.mu.Unlock()
}

func (e *Executor) safeCleanup(c Cleanup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cleanup panicked: %v", r)
		}
	}()
	return c.Cleanup()
}

// Cancel sets run's cancel flag. The worker observes it at the next
// cooperative check point; cancellation is never forceful.
func (e *Executor) Cancel(runID string) {
	e.mu.Lock()
	rs, ok := e.active[runID]
	e.mu.Unlock()
	if ok {
		rs.pctx.RequestCancel()
	}
}

// CancelAll sets every active run's cancel flag.
func (e *Executor) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rs := range e.active {
		rs.pctx.RequestCancel()
	}
}

// Shutdown sets a process-wide shutdown flag (future Execute calls are
// refused), cancels every active run, and waits up to timeout for workers to
// finish. Workers still running when timeout elapses are left to drain in
// the background; Shutdown returns regardless.
func (e *Executor) Shutdown(timeout time.Duration) {
	e.mu.Lock()
	e.shuttingDown = true
	e.mu.Unlock()

	e.CancelAll()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		slog.Warn("pipeline: shutdown timeout exceeded; remaining workers left to drain")
	}
}

// ActiveRunIDs returns the run ids currently executing. Used by tests and by
// the manager's diagnostics.
func (e *Executor) ActiveRunIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	return ids
}
