// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resilience guards every call to an external backend (graph,
// vector, reasoner, LLM) with a retry policy, a per-service circuit
// breaker, and a degradation manager that maps backend health onto one
// operating mode for the whole engine.
package resilience

import (
	"sync"
	"time"
)

// ServiceType names a logical backend guarded by its own breaker.
type ServiceType int

const (
	// ServiceGraph is the knowledge-graph store.
	ServiceGraph ServiceType = iota

	// ServiceVector is the vector search backend.
	ServiceVector

	// ServiceReasoner is the Narsese translation/inference backend.
	ServiceReasoner

	// ServiceLLM is the embeddings/LLM backend.
	ServiceLLM

	serviceCount
)

// String returns the metrics-label name for the service type.
func (s ServiceType) String() string {
	switch s {
	case ServiceGraph:
		return "graph"
	case ServiceVector:
		return "vector"
	case ServiceReasoner:
		return "reasoner"
	case ServiceLLM:
		return "llm"
	default:
		return "unknown"
	}
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed allows requests through normally.
	CircuitClosed CircuitState = iota

	// CircuitOpen rejects all requests immediately.
	CircuitOpen

	// CircuitHalfOpen allows a single trial request to test recovery.
	CircuitHalfOpen
)

// String returns the human-readable name for the circuit state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before opening.
	// Default: 5
	FailureThreshold int `json:"failure_threshold" yaml:"failure_threshold"`

	// Cooldown is how long the circuit stays open before admitting a
	// half-open trial. Default: 30s
	Cooldown time.Duration `json:"cooldown" yaml:"cooldown"`
}

// DefaultBreakerConfig returns sensible defaults for the circuit breaker.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// CircuitBreaker implements the circuit breaker pattern for one backend.
//
// Lifecycle: Closed → Open on failure-threshold breach → HalfOpen after
// cooldown → Closed on trial success, back to Open on trial failure.
// Half-open admits exactly one trial call; concurrent callers during the
// trial are rejected as if the circuit were still open.
//
// Thread Safety: Safe for concurrent use.
type CircuitBreaker struct {
	config BreakerConfig

	mu              sync.Mutex
	state           CircuitState
	failureCount    int
	openedAt        time.Time
	trialInFlight   bool
	lastStateChange time.Time
}

// NewCircuitBreaker creates a breaker in the closed state.
func NewCircuitBreaker(config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold < 1 {
		config.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &CircuitBreaker{
		config:          config,
		state:           CircuitClosed,
		lastStateChange: time.Now(),
	}
}

// Allow checks if a request may proceed.
//
// Outputs:
//   - bool: True if the caller may invoke the backend. While open, false
//     until the cooldown expires; then exactly one caller gets the
//     half-open trial slot.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case CircuitClosed:
		return true

	case CircuitOpen:
		if now.Sub(cb.openedAt) >= cb.config.Cooldown {
			cb.transitionTo(CircuitHalfOpen, now)
			cb.trialInFlight = true
			return true
		}
		return false

	case CircuitHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true

	default:
		return false
	}
}

// RecordSuccess records a successful request. A half-open trial success
// closes the circuit and resets the failure count.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.trialInFlight = false
		cb.transitionTo(CircuitClosed, time.Now())
	}
}

// RecordFailure records a failed request. Threshold consecutive failures
// open the circuit; a half-open trial failure reopens it and restarts
// the cooldown timer.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.config.FailureThreshold {
			cb.openedAt = now
			cb.transitionTo(CircuitOpen, now)
		}
	case CircuitHalfOpen:
		cb.trialInFlight = false
		cb.openedAt = now
		cb.transitionTo(CircuitOpen, now)
	}
}

// State returns the current circuit state.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Blocking reports whether the breaker is rejecting calls with no
// chance of a trial: open and still inside its cooldown. An open
// breaker whose cooldown has elapsed is not blocking, because the next
// Allow admits the half-open trial.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) Blocking() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state == CircuitOpen && time.Since(cb.openedAt) < cb.config.Cooldown
}

// Stats returns a snapshot of the breaker's internals.
//
// Thread Safety: Safe for concurrent use.
func (cb *CircuitBreaker) Stats() BreakerStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return BreakerStats{
		State:           cb.state,
		FailureCount:    cb.failureCount,
		OpenedAt:        cb.openedAt,
		LastStateChange: cb.lastStateChange,
	}
}

// Reset forces the breaker back to closed. For tests and manual
// intervention only.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.transitionTo(CircuitClosed, time.Now())
	cb.trialInFlight = false
}

// transitionTo changes state. Must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(newState CircuitState, now time.Time) {
	cb.state = newState
	cb.lastStateChange = now
	if newState == CircuitClosed {
		cb.failureCount = 0
	}
}

// BreakerStats is a point-in-time view of a circuit breaker.
type BreakerStats struct {
	State           CircuitState
	FailureCount    int
	OpenedAt        time.Time
	LastStateChange time.Time
}

// BreakerSet holds one circuit breaker per logical backend.
//
// Thread Safety: Safe for concurrent use; breakers are fixed at creation.
type BreakerSet struct {
	breakers [serviceCount]*CircuitBreaker
}

// NewBreakerSet creates a breaker per service, all from the same config.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	s := &BreakerSet{}
	for i := range s.breakers {
		s.breakers[i] = NewCircuitBreaker(config)
	}
	return s
}

// For returns the breaker guarding the given service.
func (s *BreakerSet) For(service ServiceType) *CircuitBreaker {
	return s.breakers[service]
}

// States returns the current state of every breaker, keyed by service name.
func (s *BreakerSet) States() map[string]CircuitState {
	states := make(map[string]CircuitState, serviceCount)
	for i, cb := range s.breakers {
		states[ServiceType(i).String()] = cb.State()
	}
	return states
}
