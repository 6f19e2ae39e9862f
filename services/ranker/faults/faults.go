// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package faults defines the shared error taxonomy for the ranking engine.
//
// Every backend-facing package wraps its failures into one of these
// classes so the resilience layer can decide uniformly what to retry,
// what to surface, and what to degrade on:
//
//   - Transient: timeouts and connection failures. Retried per policy,
//     then surfaced as degraded-mode operation. Never crashes a request.
//   - NotFound:  unknown element or feedback target. Surfaced, not retried.
//   - Invalid:   malformed input rejected at the boundary. Not retried.
//   - CircuitOpen: fast-fail while a breaker is open. Served from cache
//     or degraded mode where possible.
//   - Exhausted: retry budget spent. Escalates to the degradation manager.
package faults

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors for the engine's failure classes. Wrap with
// fmt.Errorf("...: %w", ...) and test with errors.Is.
var (
	// ErrTransient marks a failure worth retrying (network, timeout).
	ErrTransient = errors.New("transient backend failure")

	// ErrNotFound marks an unknown element, relation, or feedback target.
	ErrNotFound = errors.New("not found")

	// ErrInvalid marks input rejected at a boundary (bad polarity,
	// out-of-range confidence, malformed request).
	ErrInvalid = errors.New("invalid input")

	// ErrCircuitOpen marks a call rejected without touching the backend
	// because its circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrExhausted marks a call whose retry budget is spent.
	ErrExhausted = errors.New("retry budget exhausted")

	// ErrNoSignals marks a retrieval for which every signal source
	// failed. A query with partial signals is never an error; the total
	// absence of all of them is.
	ErrNoSignals = errors.New("no signal source produced results")

	// ErrUnavailable marks a request that cannot be served at all in the
	// current operating mode, not even from cache.
	ErrUnavailable = errors.New("service unavailable in current operating mode")
)

// Kind names a failure class for classification and metrics labels.
type Kind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown Kind = iota
	// KindTransient is a retryable backend failure.
	KindTransient
	// KindNotFound is a missing element or target.
	KindNotFound
	// KindInvalid is boundary-rejected input.
	KindInvalid
	// KindCircuitOpen is a breaker fast-fail.
	KindCircuitOpen
	// KindExhausted is a spent retry budget.
	KindExhausted
	// KindUnavailable is a request unservable in the current mode.
	KindUnavailable
)

// String returns the metrics-label name for the kind.
func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindCircuitOpen:
		return "circuit_open"
	case KindExhausted:
		return "exhausted"
	case KindUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// Classify maps an error onto the taxonomy.
//
// Wrapped sentinels take precedence; unwrapped network errors and
// deadline expiry classify as transient so the retry policy and circuit
// breakers treat raw client errors the same as tagged ones.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalid):
		return KindInvalid
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrCircuitOpen):
		return KindCircuitOpen
	case errors.Is(err, ErrExhausted):
		return KindExhausted
	case errors.Is(err, ErrUnavailable):
		return KindUnavailable
	case errors.Is(err, ErrTransient):
		return KindTransient
	case errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}

	return KindUnknown
}

// IsRetryable reports whether the retry policy should attempt the call
// again. Context cancellation is never retryable: the caller left.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	return Classify(err) == KindTransient
}
