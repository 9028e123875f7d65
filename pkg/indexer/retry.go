package indexer

import (
	"context"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryWithBackoff runs thunk under circuit-breaker protection: given a
// thunk producing (T, error), a RetryConfig, and a CircuitBreaker, it fails
// fast when the breaker is open, retries retryable failures with exponential
// backoff bounded by MaxDelay, and wraps terminal exhaustion as
// RetriesExhaustedError. Non-retryable errors (per isRetryable) return
// immediately after recording the failure against the breaker.
//
// The exponential schedule is built with cenkalti/backoff/v4's
// ExponentialBackOff rather than hand-rolled math.Pow bookkeeping.
func retryWithBackoff[T any](ctx context.Context, op string, cfg RetryConfig, breaker *CircuitBreaker, thunk func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialDelay
	bo.MaxInterval = cfg.MaxDelay
	bo.Multiplier = cfg.BackoffMultiplier
	bo.RandomizationFactor = 0 // keep the delay schedule deterministic, no jitter
	bo.MaxElapsedTime = 0     // bounded by MaxRetries below, not wall-clock
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		result, err := execute(breaker, func() (T, error) {
			return thunk(ctx)
		})
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsCircuitOpen(err) {
			// Fail fast: the thunk was never invoked, so there is nothing
			// further to retry against.
			return zero, err
		}
		if !isRetryable(err) {
			return zero, err
		}

		if attempt == cfg.MaxRetries {
			break
		}

		delay := bo.NextBackOff()
		if delay == backoff.Stop {
			break
		}
		log.Printf("indexer: %s attempt %d/%d failed, retrying in %s: %v", op, attempt+1, cfg.MaxRetries+1, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, newRetriesExhausted(op, cfg.MaxRetries+1, lastErr)
}
