package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Func is one outbound request.
type Func func(ctx context.Context) ([]byte, error)

type call struct {
	submitted time.Time
	prev      *call
	done      chan struct{}
	body      []byte
	err       error
}

// Limiter debounces calls per key and caps the number of calls in flight.
//
// A call submitted less than Debounce after the previous submission for the
// same key shares that call's result, as long as the previous call has not
// finished yet. Otherwise it queues behind the previous call for the key,
// so calls under one key run in arrival order and a finished result is
// never handed to a later submission.
// Calls beyond the in-flight cap wait for a slot.
type Limiter struct {
	debounce time.Duration
	sem      *semaphore.Weighted
	now      func() time.Time

	mu   sync.Mutex
	last map[string]*call
}

type LimiterConfig struct {
	Debounce    time.Duration
	MaxInFlight int64
	Now         func() time.Time
}

func NewLimiter(cfg LimiterConfig) *Limiter {
	if cfg.Debounce < 0 {
		cfg.Debounce = 0
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 6
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Limiter{
		debounce: cfg.Debounce,
		sem:      semaphore.NewWeighted(cfg.MaxInFlight),
		now:      cfg.Now,
		last:     make(map[string]*call),
	}
}

func (l *Limiter) Do(ctx context.Context, key string, fn Func) ([]byte, error) {
	now := l.now()

	l.mu.Lock()
	prev := l.last[key]
	if prev != nil && now.Sub(prev.submitted) < l.debounce && !prev.finished() {
		l.mu.Unlock()
		return wait(ctx, prev)
	}
	c := &call{submitted: now, prev: prev, done: make(chan struct{})}
	l.last[key] = c
	l.mu.Unlock()

	go l.run(context.WithoutCancel(ctx), key, c, fn)
	return wait(ctx, c)
}

func (c *call) finished() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// run executes c once its predecessor for the key has finished. It is
// detached from the caller's cancellation so collapsed waiters still get
// a result.
func (l *Limiter) run(ctx context.Context, key string, c *call, fn Func) {
	defer func() {
		close(c.done)
		l.forget(key, c)
	}()

	if c.prev != nil {
		<-c.prev.done
		c.prev = nil
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		c.err = err
		return
	}
	defer l.sem.Release(1)

	c.body, c.err = fn(ctx)
}

func (l *Limiter) forget(key string, c *call) {
	remaining := l.debounce - l.now().Sub(c.submitted)
	drop := func() {
		l.mu.Lock()
		if l.last[key] == c {
			delete(l.last, key)
		}
		l.mu.Unlock()
	}
	if remaining <= 0 {
		drop()
		return
	}
	time.AfterFunc(remaining, drop)
}

func wait(ctx context.Context, c *call) ([]byte, error) {
	select {
	case <-c.done:
		return c.body, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
