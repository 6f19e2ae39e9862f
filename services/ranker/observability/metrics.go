// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides metrics and instrumentation for the
// ranking engine.
//
// # Description
//
// This package implements Prometheus metrics for monitoring retrieval
// and feedback operations. Metrics include:
//   - Query counters (by status and operating mode)
//   - Query latency histograms
//   - Feedback counters (by polarity)
//   - Propagation fan-out histograms
//   - Circuit breaker state gauges
//   - Response cache hit/miss counters
//
// It also maintains an in-process Snapshot aggregate served by the
// metrics snapshot endpoint, independent of Prometheus scraping.
//
// # Thread Safety
//
// Prometheus metric operations are thread-safe via the client's
// internal locking; the Snapshot aggregate is guarded by a mutex.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics.
const metricsNamespace = "kodiak"

// Subsystem for ranking engine metrics.
const rankerSubsystem = "ranker"

// RankerMetrics holds all Prometheus metrics for the ranking engine.
//
// # Fields
//
//   - QueriesTotal: Counter of retrieval queries by status and mode
//   - QueryDurationSeconds: Histogram of end-to-end query latency
//   - FeedbackTotal: Counter of feedback submissions by polarity and status
//   - PropagationTouched: Histogram of elements touched per propagation pass
//   - CircuitState: Gauge of circuit breaker state per backend service
//   - CacheEventsTotal: Counter of response cache hits and misses
//
// # Thread Safety
//
// All operations are thread-safe.
type RankerMetrics struct {
	// QueriesTotal counts retrieval queries.
	// Labels: status (success, degraded, error), mode (full, partial_vector,
	// partial_graph, cached_only)
	QueriesTotal *prometheus.CounterVec

	// QueryDurationSeconds measures end-to-end retrieval latency.
	// Labels: mode
	QueryDurationSeconds *prometheus.HistogramVec

	// FeedbackTotal counts feedback submissions.
	// Labels: polarity (positive, negative), status (success, partial, error)
	FeedbackTotal *prometheus.CounterVec

	// PropagationTouched measures how many elements a single feedback
	// event updated, including the hop-0 target.
	PropagationTouched prometheus.Histogram

	// CircuitState reports circuit breaker state per backend service.
	// 0 = closed, 1 = open, 2 = half-open.
	// Labels: service (graph, vector, reasoner, llm)
	CircuitState *prometheus.GaugeVec

	// CacheEventsTotal counts response cache lookups.
	// Labels: result (hit, stale_hit, miss)
	CacheEventsTotal *prometheus.CounterVec
}

// NewRankerMetrics creates and registers all Prometheus metrics.
//
// Inputs:
//   - reg: Registry to register with. Nil uses the default registry.
//     Tests pass their own prometheus.NewRegistry() to avoid duplicate
//     registration panics.
//
// Outputs:
//   - *RankerMetrics: The initialized metrics instance.
func NewRankerMetrics(reg prometheus.Registerer) *RankerMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &RankerMetrics{
		QueriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rankerSubsystem,
				Name:      "queries_total",
				Help:      "Total retrieval queries by status and operating mode",
			},
			[]string{"status", "mode"},
		),

		QueryDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: rankerSubsystem,
				Name:      "query_duration_seconds",
				Help:      "End-to-end retrieval latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"mode"},
		),

		FeedbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rankerSubsystem,
				Name:      "feedback_total",
				Help:      "Total feedback submissions by polarity and status",
			},
			[]string{"polarity", "status"},
		),

		PropagationTouched: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: rankerSubsystem,
				Name:      "propagation_touched_elements",
				Help:      "Elements updated per feedback propagation pass",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		CircuitState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: rankerSubsystem,
				Name:      "circuit_state",
				Help:      "Circuit breaker state per backend (0=closed, 1=open, 2=half-open)",
			},
			[]string{"service"},
		),

		CacheEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: rankerSubsystem,
				Name:      "cache_events_total",
				Help:      "Response cache lookups by result",
			},
			[]string{"result"},
		),
	}
}
