package agent

import (
	"context"

	"github.com/holdtalk/holdtalk/internal/resilience"
)

// Fallback implements Backend with automatic failover across multiple
// completion back ends. Each entry has its own circuit breaker, so a
// persistently failing back end is skipped rather than retried on every
// call.
//
// Since Fallback implements Backend, an embedder wires it in the same way
// as any single back end, e.g. app.WithAgentBackend(agent.NewFallback(...)).
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

// Complete tries each back end in order until one succeeds.
func (f *Fallback) Complete(ctx context.Context, systemPrompt, input string, opts map[string]any) (string, error) {
	return resilience.ExecuteWithResult(f.group, func(b Backend) (string, error) {
		return b.Complete(ctx, systemPrompt, input, opts)
	})
}
