package keyboard

import (
	"context"

	"github.com/holdtalk/holdtalk/internal/resilience"
)

// ResilientBackend wraps a Backend with a circuit breaker, so a back end
// that starts failing repeatedly (a missing wtype binary, a portal session
// stuck re-prompting) is short-circuited instead of being retried, and
// silently recovers once it trips back through to half-open.
type ResilientBackend struct {
	backend Backend
	breaker *resilience.CircuitBreaker
}

// NewResilientBackend wraps backend with a circuit breaker named name, using
// cfg's tuning (zero-value fields take resilience's defaults).
func NewResilientBackend(name string, backend Backend, cfg resilience.CircuitBreakerConfig) *ResilientBackend {
	cfg.Name = name
	return &ResilientBackend{backend: backend, breaker: resilience.NewCircuitBreaker(cfg)}
}

// TypeText forwards to the wrapped backend through the circuit breaker.
func (r *ResilientBackend) TypeText(ctx context.Context, text string) error {
	return r.breaker.Execute(func() error {
		return r.backend.TypeText(ctx, text)
	})
}

// State reports the breaker's current state, for diagnostics.
func (r *ResilientBackend) State() resilience.State {
	return r.breaker.State()
}
