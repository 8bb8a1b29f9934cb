package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/lexiqai/translation-gateway/internal/config"
	"github.com/lexiqai/translation-gateway/internal/observability"
)

// Guard wraps every call to one remote adapter in retry and a circuit breaker
type Guard struct {
	Breaker *CircuitBreaker
	Retry   *RetryConfig
}

// NewGuard creates a guard whose breaker transitions are exported as metrics
func NewGuard(name string, maxFailures int, resetTimeout time.Duration, retry *RetryConfig) *Guard {
	cb := NewCircuitBreaker(name, maxFailures, resetTimeout)
	cb.OnStateChange = func(name string, from, to CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger := observability.GetLogger()
		logger.Warn().
			Str("service", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	return &Guard{Breaker: cb, Retry: retry}
}

// NewAdapterGuard builds a guard from the circuit breaker and retry settings
func NewAdapterGuard(name string, cfg *config.Config) *Guard {
	return NewGuard(name, cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerReset(), &RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryBackoff(),
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	})
}

// Do runs fn under the breaker, retrying retryable network errors
func (g *Guard) Do(ctx context.Context, fn RetryableFunc) error {
	return Retry(ctx, func(ctx context.Context) error {
		err := g.Breaker.Execute(ctx, fn)
		if err != nil && err != ErrCircuitOpen && ctx.Err() == nil {
			observability.IncrementCircuitBreakerFailures(g.Breaker.Name())
		}
		return err
	}, g.Retry, IsRetryableNetworkError)
}

// Check reports the breaker as a readiness probe; an open circuit is not ready
func (g *Guard) Check(ctx context.Context) (bool, error) {
	if state := g.Breaker.GetState(); state == StateOpen {
		return false, fmt.Errorf("%s circuit is %s", g.Breaker.Name(), state)
	}
	return true, nil
}
