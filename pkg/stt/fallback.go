package stt

import (
	"context"

	"github.com/holdtalk/holdtalk/internal/resilience"
)

// Fallback implements Backend with automatic failover across multiple
// transcription back ends — useful for falling back from a local model to
// a remote one (or the reverse) when the preferred one starts erroring.
// Each entry has its own circuit breaker, so a persistently failing back
// end is skipped rather than retried on every call.
//
// Since Fallback implements Backend, an embedder wires it in the same way
// as any single back end, e.g. app.WithSTTBackend(stt.NewFallback(...)).
type Fallback struct {
	group *resilience.FallbackGroup[Backend]
}

// NewFallback creates a Fallback with primary as the preferred back end.
func NewFallback(primary Backend, primaryName string, cfg resilience.FallbackConfig) *Fallback {
	return &Fallback{group: resilience.NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional back end, tried after the primary and
// any previously added fallbacks.
func (f *Fallback) AddFallback(name string, backend Backend) {
	f.group.AddFallback(name, backend)
}

// Transcribe tries each back end in order until one succeeds.
func (f *Fallback) Transcribe(ctx context.Context, path string, cfg map[string]any) (string, error) {
	return resilience.ExecuteWithResult(f.group, func(b Backend) (string, error) {
		return b.Transcribe(ctx, path, cfg)
	})
}
