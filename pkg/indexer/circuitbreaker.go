package indexer

import (
	"errors"

	"github.com/sony/gobreaker"
)

// CircuitBreaker gates calls to external collaborators (chain client,
// checkpoint store): Closed -> Open on FailureThreshold consecutive
// failures, Open -> HalfOpen after ResetTimeout, HalfOpen -> Closed on
// success or back to Open on failure.
//
// It is a thin, domain-named wrapper around sony/gobreaker.CircuitBreaker
// rather than a hand-rolled state machine: gobreaker already serializes the
// Closed/Open/HalfOpen transitions so two concurrent callers can never both
// observe HalfOpen as permissive.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[any]
}

// NewCircuitBreaker builds a breaker from cfg. The breaker is a shared value,
// not a singleton: callers may pass the same *CircuitBreaker to multiple
// Indexer instances talking to the same chain endpoint.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "chain-client",
		MaxRequests: 1, // HalfOpen allows exactly one probe
		Timeout:     cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// IsOpen reports whether a call would currently fail fast. Reading the
// state also performs the Open -> HalfOpen transition as a side effect once
// ResetTimeout has elapsed.
func (b *CircuitBreaker) IsOpen() bool {
	return b.cb.State() == gobreaker.StateOpen
}

// State exposes the breaker's current state name for observability
// (Stats(), logging). Values: "closed", "open", "half-open".
func (b *CircuitBreaker) State() string {
	switch b.cb.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// execute runs fn gated by the breaker: fails fast with CircuitOpenError
// without invoking fn when the breaker is open, otherwise invokes fn and
// feeds its success/failure back into the breaker's state machine. This is
// the single atomic primitive retryWithBackoff builds on, the way gobreaker's
// API is meant to be used.
func execute[T any](b *CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	result, err := b.cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, newCircuitOpen("circuit_breaker")
		}
		return zero, err
	}
	typed, _ := result.(T)
	return typed, nil
}
