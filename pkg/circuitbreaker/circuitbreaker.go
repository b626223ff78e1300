// Package circuitbreaker short-circuits calls to a failing dependency.
//
// The breaker has two states. While Closed, failures increment a counter
// and successes decrement it (never below zero). Reaching the threshold
// opens the breaker; while Open every call is rejected with ErrOpen until
// the cooldown elapses, at which point the next check closes it again with
// the counter reset.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned instead of calling through while the breaker is open.
var ErrOpen = errors.New("service unavailable: circuit breaker is open")

type State string

const (
	StateClosed State = "closed"
	StateOpen   State = "open"
)

type Settings struct {
	Name      string
	Threshold int
	Cooldown  time.Duration
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
	// Now overrides the clock, for tests.
	Now func() time.Time
}

type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	onChange  func(name string, from, to State)
	now       func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

func NewCircuitBreaker(settings Settings) *CircuitBreaker {
	if settings.Threshold <= 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	if settings.Now == nil {
		settings.Now = time.Now
	}
	return &CircuitBreaker{
		name:      settings.Name,
		threshold: settings.Threshold,
		cooldown:  settings.Cooldown,
		onChange:  settings.OnStateChange,
		now:       settings.Now,
		state:     StateClosed,
	}
}

// Allow reports whether a call may proceed. It returns ErrOpen while the
// breaker is open and the cooldown has not elapsed.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	if cb.state == StateOpen {
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			cb.mu.Unlock()
			return ErrOpen
		}
		cb.state = StateClosed
		cb.failures = 0
		cb.mu.Unlock()
		cb.notify(StateOpen, StateClosed)
		return nil
	}
	cb.mu.Unlock()
	return nil
}

func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failures > 0 {
		cb.failures--
	}
}

func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	cb.failures++
	opened := false
	if cb.state == StateClosed && cb.failures >= cb.threshold {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		opened = true
	}
	cb.mu.Unlock()

	if opened {
		cb.notify(StateClosed, StateOpen)
	}
}

// Execute runs fn through the breaker. fn's error counts as a failure
// unless isFailure says otherwise; a nil isFailure counts every error.
func (cb *CircuitBreaker) Execute(fn func() error, isFailure func(error) bool) error {
	if err := cb.Allow(); err != nil {
		return err
	}

	err := fn()
	switch {
	case err == nil:
		cb.RecordSuccess()
	case isFailure == nil || isFailure(err):
		cb.RecordFailure()
	}
	return err
}

// State returns the current state without advancing the cooldown.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) Name() string {
	return cb.name
}

func (cb *CircuitBreaker) notify(from, to State) {
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}
