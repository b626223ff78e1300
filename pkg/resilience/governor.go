// Package resilience wraps outbound API calls with a circuit breaker, a
// per-key debounce limiter and status-aware retries.
package resilience

import (
	"context"

	"go.uber.org/zap"

	"github.com/jwalitptl/contract-admin/pkg/circuitbreaker"
)

// Governor applies, in order: breaker gate, limiter admission, the call
// with retries, then breaker feedback.
type Governor struct {
	breaker *circuitbreaker.CircuitBreaker
	limiter *Limiter
	retrier *Retrier
	logger  *zap.Logger
}

func NewGovernor(breaker *circuitbreaker.CircuitBreaker, limiter *Limiter, retrier *Retrier, logger *zap.Logger) *Governor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Governor{breaker: breaker, limiter: limiter, retrier: retrier, logger: logger}
}

func (g *Governor) Do(ctx context.Context, key string, fn Func) ([]byte, error) {
	if err := g.breaker.Allow(); err != nil {
		g.logger.Warn("request rejected", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	return g.limiter.Do(ctx, key, func(ctx context.Context) ([]byte, error) {
		body, err := g.retrier.Do(ctx, fn)
		switch {
		case err == nil:
			g.breaker.RecordSuccess()
		case CountsAsFailure(err):
			g.breaker.RecordFailure()
			g.logger.Warn("request failed",
				zap.String("key", key),
				zap.Int("breaker_failures", g.breaker.Failures()),
				zap.Error(err))
		}
		return body, err
	})
}

func (g *Governor) Breaker() *circuitbreaker.CircuitBreaker {
	return g.breaker
}
