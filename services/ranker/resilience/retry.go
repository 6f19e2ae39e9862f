// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/AleutianAI/Kodiak/services/ranker/faults"
)

// RetryConfig configures retry behavior with exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 3
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// InitialBackoff is the initial wait duration before first retry.
	// Default: 100ms
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`

	// MaxBackoff is the maximum wait duration between retries.
	// Default: 5s
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`

	// BackoffFactor is the multiplier for exponential backoff.
	// Default: 2.0
	BackoffFactor float64 `json:"backoff_factor" yaml:"backoff_factor"`

	// JitterFactor is the maximum jitter as a fraction of backoff (0-1).
	// Adds randomness to prevent thundering herd. Default: 0.2
	JitterFactor float64 `json:"jitter_factor" yaml:"jitter_factor"`
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0.2,
	}
}

// Validate checks if the retry configuration is valid.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be at least 1", faults.ErrInvalid)
	}
	if c.InitialBackoff <= 0 {
		return fmt.Errorf("%w: initial_backoff must be positive", faults.ErrInvalid)
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("%w: max_backoff must be >= initial_backoff", faults.ErrInvalid)
	}
	if c.BackoffFactor < 1.0 {
		return fmt.Errorf("%w: backoff_factor must be >= 1.0", faults.ErrInvalid)
	}
	return nil
}

// RetryableFunc is a function that can be retried. It should return nil
// on success. faults.IsRetryable decides whether an error triggers a
// further attempt.
type RetryableFunc func(ctx context.Context, attempt int) error

// Retry executes fn with exponential backoff.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - config: Retry configuration.
//   - fn: The function to execute and potentially retry.
//
// Outputs:
//   - error: Nil on success. A non-retryable error is returned as-is on
//     the attempt that produced it; a spent budget is returned wrapped in
//     faults.ErrExhausted with the last error attached.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	backoff := config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return nil
		}

		if !faults.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(backoff, config.JitterFactor)):
		}

		backoff = nextBackoff(backoff, config.BackoffFactor, config.MaxBackoff)
	}

	return fmt.Errorf("%w after %d attempts: %v", faults.ErrExhausted, config.MaxAttempts, lastErr)
}

// Execute runs fn behind both the given circuit breaker and the retry
// policy.
//
// If the breaker rejects the call, faults.ErrCircuitOpen is returned
// immediately without touching the backend. Each attempt's outcome is
// recorded against the breaker, so a backend that keeps failing mid-retry
// can open the circuit for subsequent attempts of the same call.
func Execute(ctx context.Context, cb *CircuitBreaker, config RetryConfig, fn RetryableFunc) error {
	backoff := config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !cb.Allow() {
			return faults.ErrCircuitOpen
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			cb.RecordSuccess()
			return nil
		}

		cb.RecordFailure()

		if !faults.IsRetryable(lastErr) {
			return lastErr
		}

		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(jittered(backoff, config.JitterFactor)):
		}

		backoff = nextBackoff(backoff, config.BackoffFactor, config.MaxBackoff)
	}

	return fmt.Errorf("%w after %d attempts: %v", faults.ErrExhausted, config.MaxAttempts, lastErr)
}

// jittered spreads the backoff over [base*(1-jitter), base*(1+jitter)].
func jittered(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}
	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1.0 + jitter))
}

// nextBackoff calculates the next backoff value.
func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
