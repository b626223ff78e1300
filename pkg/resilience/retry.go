package resilience

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// RetryPolicy holds the per-class backoff tables. The delay for retry n is
// table[n], or the last entry once n runs past the table.
type RetryPolicy struct {
	MaxRetries int
	Backoff    map[Class][]time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Backoff: map[Class][]time.Duration{
			ClassNetwork:        {500 * time.Millisecond, time.Second},
			ClassRateLimited:    {2 * time.Second, 5 * time.Second},
			ClassBadGateway:     {time.Second, 2 * time.Second},
			ClassUnavailable:    {time.Second, 3 * time.Second},
			ClassGatewayTimeout: {time.Second, 3 * time.Second},
		},
	}
}

// Delay returns the wait before retry number attempt (0-based) and whether
// the class is retryable at all.
func (p RetryPolicy) Delay(class Class, attempt int) (time.Duration, bool) {
	table, ok := p.Backoff[class]
	if !ok || len(table) == 0 {
		return 0, false
	}
	if attempt >= len(table) {
		return table[len(table)-1], true
	}
	return table[attempt], true
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Retrier struct {
	policy RetryPolicy
	sleep  SleepFunc
	logger *zap.Logger
}

func NewRetrier(policy RetryPolicy, sleep SleepFunc, logger *zap.Logger) *Retrier {
	if sleep == nil {
		sleep = sleepCtx
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{policy: policy, sleep: sleep, logger: logger}
}

// Do calls fn and retries qualifying failures. The last error is returned
// once retries are exhausted.
func (r *Retrier) Do(ctx context.Context, fn Func) ([]byte, error) {
	var attempt int
	for {
		body, err := fn(ctx)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		class := Classify(err)
		delay, retryable := r.policy.Delay(class, attempt)
		if !retryable || attempt >= r.policy.MaxRetries {
			return nil, err
		}

		r.logger.Debug("retrying request",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		if serr := r.sleep(ctx, delay); serr != nil {
			return nil, err
		}
		attempt++
	}
}
