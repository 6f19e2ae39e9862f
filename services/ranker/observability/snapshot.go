// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the aggregate metrics context.
type Snapshot struct {
	AvgQueryLatencyMs      float64   `json:"avg_query_latency_ms"`
	AvgGenerationLatencyMs float64   `json:"avg_generation_latency_ms"`
	QueryCount             uint64    `json:"query_count"`
	PositiveFeedback       uint64    `json:"positive_feedback"`
	NegativeFeedback       uint64    `json:"negative_feedback"`
	WindowStartedAt        time.Time `json:"window_started_at"`
}

// MetricsContext is the explicitly owned aggregate that components
// record observations into. It is created at service start, passed by
// reference to every recorder, and lives until shutdown.
//
// Unlike the Prometheus registry it supports an atomic read-and-reset,
// so the snapshot endpoint reports per-window averages.
//
// Thread Safety: All methods are safe for concurrent use.
type MetricsContext struct {
	mu sync.Mutex

	queryCount      uint64
	queryLatencySum time.Duration
	genCount        uint64
	genLatencySum   time.Duration
	positive        uint64
	negative        uint64
	windowStart     time.Time
}

// NewMetricsContext creates an empty aggregate with the window starting
// now.
func NewMetricsContext() *MetricsContext {
	return &MetricsContext{windowStart: time.Now().UTC()}
}

// RecordQuery adds one retrieval observation.
func (m *MetricsContext) RecordQuery(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queryCount++
	m.queryLatencySum += latency
}

// RecordGeneration adds one embedding/reasoning generation observation.
func (m *MetricsContext) RecordGeneration(latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.genCount++
	m.genLatencySum += latency
}

// RecordFeedback adds one feedback observation.
func (m *MetricsContext) RecordFeedback(positive bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if positive {
		m.positive++
	} else {
		m.negative++
	}
}

// Read returns the current snapshot without resetting the window.
func (m *MetricsContext) Read() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// ReadAndReset returns the current snapshot and starts a fresh window.
func (m *MetricsContext) ReadAndReset() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snapshotLocked()
	m.queryCount = 0
	m.queryLatencySum = 0
	m.genCount = 0
	m.genLatencySum = 0
	m.positive = 0
	m.negative = 0
	m.windowStart = time.Now().UTC()
	return snap
}

func (m *MetricsContext) snapshotLocked() Snapshot {
	snap := Snapshot{
		QueryCount:       m.queryCount,
		PositiveFeedback: m.positive,
		NegativeFeedback: m.negative,
		WindowStartedAt:  m.windowStart,
	}
	if m.queryCount > 0 {
		snap.AvgQueryLatencyMs = float64(m.queryLatencySum.Milliseconds()) / float64(m.queryCount)
	}
	if m.genCount > 0 {
		snap.AvgGenerationLatencyMs = float64(m.genLatencySum.Milliseconds()) / float64(m.genCount)
	}
	return snap
}
