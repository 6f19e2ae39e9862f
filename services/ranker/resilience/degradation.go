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
	"log/slog"
	"sync"
	"time"
)

// ServiceHealth classifies a backend's recent behavior.
type ServiceHealth int

const (
	// HealthHealthy means the backend is serving normally.
	HealthHealthy ServiceHealth = iota

	// HealthDegraded means recent error rate is elevated but the circuit
	// is still closed.
	HealthDegraded

	// HealthDown means the backend's circuit is open.
	HealthDown
)

// String returns a human-readable health name.
func (h ServiceHealth) String() string {
	switch h {
	case HealthHealthy:
		return "healthy"
	case HealthDegraded:
		return "degraded"
	case HealthDown:
		return "down"
	default:
		return "unknown"
	}
}

// OperatingMode is the engine-wide policy for which signal sources to
// use given backend health. Centralizing the health-to-behavior mapping
// here keeps scattered backend-down checks out of the ranker and
// orchestrator.
type OperatingMode int

const (
	// ModeFull uses vector, graph, and reasoner signals.
	ModeFull OperatingMode = iota

	// ModePartialVector serves from vector search only (graph down).
	ModePartialVector

	// ModePartialGraph serves from graph match only (vector down).
	ModePartialGraph

	// ModeCachedOnly serves recent cached responses; both retrieval
	// backends are down.
	ModeCachedOnly
)

// String returns the human-readable mode name.
func (m OperatingMode) String() string {
	switch m {
	case ModeFull:
		return "full"
	case ModePartialVector:
		return "partial_vector"
	case ModePartialGraph:
		return "partial_graph"
	case ModeCachedOnly:
		return "cached_only"
	default:
		return "unknown"
	}
}

// DegradationConfig configures health classification.
type DegradationConfig struct {
	// ErrorRateWindow is the sliding window over which error rate is
	// measured. Default: 30s
	ErrorRateWindow time.Duration `json:"error_rate_window" yaml:"error_rate_window"`

	// DegradedErrorRate is the windowed error rate at which a service
	// with a closed circuit is still considered degraded. Default: 0.5
	DegradedErrorRate float64 `json:"degraded_error_rate" yaml:"degraded_error_rate"`

	// MinWindowSamples is how many observations the window needs before
	// the error rate is trusted. Default: 4
	MinWindowSamples int `json:"min_window_samples" yaml:"min_window_samples"`
}

// DefaultDegradationConfig returns sensible defaults.
func DefaultDegradationConfig() DegradationConfig {
	return DegradationConfig{
		ErrorRateWindow:   30 * time.Second,
		DegradedErrorRate: 0.5,
		MinWindowSamples:  4,
	}
}

// observation is one recorded call outcome for the sliding window.
type observation struct {
	at     time.Time
	failed bool
}

// windowSize caps the per-service observation ring.
const windowSize = 64

// DegradationManager derives per-service health and the engine-wide
// operating mode from circuit state and recent error rates.
//
// Thread Safety: Safe for concurrent use. Mode-change callbacks are
// invoked outside the lock.
type DegradationManager struct {
	config   DegradationConfig
	breakers *BreakerSet
	logger   *slog.Logger

	mu      sync.Mutex
	windows [serviceCount][]observation
	mode    OperatingMode

	onModeChange func(from, to OperatingMode)
}

// NewDegradationManager creates a manager over the given breaker set.
//
// Inputs:
//   - config: Health classification thresholds.
//   - breakers: The per-service breaker set; must not be nil.
//   - logger: Logger for mode transitions. Nil uses slog.Default().
func NewDegradationManager(config DegradationConfig, breakers *BreakerSet, logger *slog.Logger) *DegradationManager {
	if config.ErrorRateWindow <= 0 {
		config.ErrorRateWindow = DefaultDegradationConfig().ErrorRateWindow
	}
	if config.DegradedErrorRate <= 0 {
		config.DegradedErrorRate = DefaultDegradationConfig().DegradedErrorRate
	}
	if config.MinWindowSamples <= 0 {
		config.MinWindowSamples = DefaultDegradationConfig().MinWindowSamples
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DegradationManager{
		config:   config,
		breakers: breakers,
		logger:   logger.With(slog.String("component", "degradation_manager")),
		mode:     ModeFull,
	}
}

// SetModeChangeCallback registers a callback invoked when the operating
// mode transitions. The callback runs outside the manager's lock.
func (m *DegradationManager) SetModeChangeCallback(fn func(from, to OperatingMode)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onModeChange = fn
}

// Observe records one call outcome against a service and recomputes the
// operating mode.
//
// Thread Safety: Safe for concurrent use.
func (m *DegradationManager) Observe(service ServiceType, err error) {
	m.mu.Lock()

	window := m.windows[service]
	window = append(window, observation{at: time.Now(), failed: err != nil})
	if len(window) > windowSize {
		window = window[len(window)-windowSize:]
	}
	m.windows[service] = window

	from := m.mode
	to := m.computeModeLocked()
	m.mode = to
	callback := m.onModeChange
	m.mu.Unlock()

	if from != to {
		m.logger.Warn("operating mode changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
			slog.String("service", service.String()))
		if callback != nil {
			callback(from, to)
		}
	}
}

// Mode returns the current operating mode, recomputed against live
// circuit state so cooldown expiry is reflected without an Observe call.
//
// Thread Safety: Safe for concurrent use.
func (m *DegradationManager) Mode() OperatingMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mode = m.computeModeLocked()
	return m.mode
}

// Health returns the health classification for one service.
//
// Thread Safety: Safe for concurrent use.
func (m *DegradationManager) Health(service ServiceType) ServiceHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthLocked(service)
}

// HealthByService returns the health of every backend keyed by name,
// for the /v1/mode endpoint.
func (m *DegradationManager) HealthByService() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, serviceCount)
	for i := ServiceType(0); i < serviceCount; i++ {
		out[i.String()] = m.healthLocked(i).String()
	}
	return out
}

// computeModeLocked maps retrieval-backend health onto an operating
// mode. The reasoner and LLM never lower the mode on their own: the
// ranker fills their signals with neutral defaults instead.
func (m *DegradationManager) computeModeLocked() OperatingMode {
	graphDown := m.healthLocked(ServiceGraph) == HealthDown
	vectorDown := m.healthLocked(ServiceVector) == HealthDown

	switch {
	case graphDown && vectorDown:
		return ModeCachedOnly
	case graphDown:
		return ModePartialVector
	case vectorDown:
		return ModePartialGraph
	default:
		return ModeFull
	}
}

func (m *DegradationManager) healthLocked(service ServiceType) ServiceHealth {
	// An open breaker past its cooldown is due a half-open trial, so the
	// service is not down. Reporting it down would hold the mode in a
	// floor no request path ever lifts, since cache-served queries never
	// reach Allow.
	if m.breakers.For(service).Blocking() {
		return HealthDown
	}

	windowStart := time.Now().Add(-m.config.ErrorRateWindow)
	total, failed := 0, 0
	for _, obs := range m.windows[service] {
		if obs.at.After(windowStart) {
			total++
			if obs.failed {
				failed++
			}
		}
	}

	if total >= m.config.MinWindowSamples &&
		float64(failed)/float64(total) >= m.config.DegradedErrorRate {
		return HealthDegraded
	}
	return HealthHealthy
}
