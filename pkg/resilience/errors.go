package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jwalitptl/contract-admin/pkg/circuitbreaker"
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

// Class groups failures that share a retry schedule.
type Class int

const (
	ClassNone Class = iota
	ClassNetwork
	ClassRateLimited
	ClassBadGateway
	ClassUnavailable
	ClassGatewayTimeout
	// ClassPermanent covers every other non-2xx status.
	ClassPermanent
)

// Classify maps err to its retry class. Cancellation and a rejected
// breaker are permanent. Timeouts, including http.Client.Timeout which
// matches context.DeadlineExceeded, are network failures; whether the
// caller's own deadline has passed is decided by the Retrier.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, circuitbreaker.ErrOpen) {
		return ClassPermanent
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return ClassNetwork
	}
	switch se.StatusCode {
	case http.StatusTooManyRequests:
		return ClassRateLimited
	case http.StatusBadGateway:
		return ClassBadGateway
	case http.StatusServiceUnavailable:
		return ClassUnavailable
	case http.StatusGatewayTimeout:
		return ClassGatewayTimeout
	default:
		return ClassPermanent
	}
}

// CountsAsFailure reports whether err should move the breaker towards open.
// Client errors other than 429 say nothing about server health.
func CountsAsFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500 || se.StatusCode == http.StatusTooManyRequests
	}
	return true
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
