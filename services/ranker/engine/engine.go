// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates hybrid retrieval and feedback propagation.
//
// # Description
//
// The engine composes the graph store, vector store, reasoner, and
// feedback journal behind the two public operations: Retrieve fuses
// vector similarity, symbolic confidence, and graph connectivity into a
// ranked result list; SubmitFeedback journals a feedback event,
// propagates its confidence delta through the graph, and computes a
// reward signal.
//
// Every backend call runs behind its own circuit breaker and retry
// policy. A failing subsystem degrades the response (neutral signal
// defaults, degraded source tags, cached fallback) instead of failing
// the query; only the loss of every signal source is an error.
//
// # Thread Safety
//
// Engine is safe for concurrent use after New returns.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/feedback"
	"github.com/AleutianAI/Kodiak/services/ranker/graph"
	"github.com/AleutianAI/Kodiak/services/ranker/observability"
	"github.com/AleutianAI/Kodiak/services/ranker/propagation"
	"github.com/AleutianAI/Kodiak/services/ranker/ranking"
	"github.com/AleutianAI/Kodiak/services/ranker/reasoner"
	"github.com/AleutianAI/Kodiak/services/ranker/resilience"
	"github.com/AleutianAI/Kodiak/services/ranker/reward"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
	"github.com/AleutianAI/Kodiak/services/ranker/vector"
)

var engineTracer = otel.Tracer("kodiak/engine")

// DefaultBackendTimeout bounds a single backend branch (embed+search,
// or pattern match) within a query.
const DefaultBackendTimeout = 2 * time.Second

// Config carries the tunable parameters of the engine.
type Config struct {
	Ranking     ranking.Config     `json:"ranking"     yaml:"ranking"`
	Propagation propagation.Config `json:"propagation" yaml:"propagation"`
	Reward      reward.Weights     `json:"reward"      yaml:"reward"`

	Retry       resilience.RetryConfig       `json:"retry"       yaml:"retry"`
	Breaker     resilience.BreakerConfig     `json:"breaker"     yaml:"breaker"`
	Degradation resilience.DegradationConfig `json:"degradation" yaml:"degradation"`
	Cache       resilience.CacheConfig       `json:"cache"       yaml:"cache"`

	// BackendTimeout bounds each backend branch within a query.
	BackendTimeout time.Duration `json:"backend_timeout" yaml:"backend_timeout"`
}

// DefaultConfig returns the default engine parameters.
func DefaultConfig() Config {
	return Config{
		Ranking:        ranking.DefaultConfig(),
		Propagation:    propagation.DefaultConfig(),
		Reward:         reward.DefaultWeights(),
		Retry:          resilience.DefaultRetryConfig(),
		Breaker:        resilience.DefaultBreakerConfig(),
		Degradation:    resilience.DefaultDegradationConfig(),
		Cache:          resilience.DefaultCacheConfig(),
		BackendTimeout: DefaultBackendTimeout,
	}
}

// Validate checks all nested parameter sets.
func (c Config) Validate() error {
	if err := c.Ranking.Validate(); err != nil {
		return fmt.Errorf("ranking: %w", err)
	}
	if err := c.Propagation.Validate(); err != nil {
		return fmt.Errorf("propagation: %w", err)
	}
	if err := c.Reward.Validate(); err != nil {
		return fmt.Errorf("reward: %w", err)
	}
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("%w: backend_timeout must be positive", faults.ErrInvalid)
	}
	return nil
}

// Deps are the backend collaborators the engine orchestrates. Graph,
// Vectors, Embedder, and Reason are contracts; tests inject doubles
// with controlled latency and failure.
type Deps struct {
	Graph    graph.Store
	Vectors  vector.Store
	Embedder vector.Embedder
	Reason   reasoner.Reasoner
	Journal  *feedback.Journal
}

// Engine is the hybrid ranking and confidence propagation orchestrator.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	graph    graph.Store
	vectors  vector.Store
	embedder vector.Embedder
	reason   reasoner.Reasoner
	journal  *feedback.Journal

	truths     *truth.Store
	propagator *propagation.Propagator
	ranker     *ranking.Ranker

	breakers    *resilience.BreakerSet
	degradation *resilience.DegradationManager
	cache       *resilience.ResponseCache

	metrics    *observability.RankerMetrics
	metricsCtx *observability.MetricsContext
}

// New wires an engine from its collaborators.
//
// Inputs:
//   - deps: Backend collaborators. Graph, Vectors, Embedder, and Reason
//     are required; Journal may be nil (feedback auditing disabled).
//   - cfg: Engine parameters, typically DefaultConfig() with overrides.
//   - metrics: Prometheus metric set. Nil registers on the default
//     registry.
//   - logger: Structured logger. Nil falls back to slog.Default().
//
// Outputs:
//   - *Engine: Ready for concurrent Retrieve/SubmitFeedback calls.
//   - error: Non-nil on missing collaborators or invalid parameters.
func New(deps Deps, cfg Config, metrics *observability.RankerMetrics, logger *slog.Logger) (*Engine, error) {
	if deps.Graph == nil {
		return nil, errors.New("graph store is required")
	}
	if deps.Vectors == nil {
		return nil, errors.New("vector store is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if deps.Reason == nil {
		return nil, errors.New("reasoner is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewRankerMetrics(nil)
	}

	truths := truth.NewStore(deps.Graph)
	propagator, err := propagation.NewPropagator(truths, deps.Graph, cfg.Propagation, logger)
	if err != nil {
		return nil, fmt.Errorf("propagator: %w", err)
	}
	ranker, err := ranking.NewRanker(cfg.Ranking)
	if err != nil {
		return nil, fmt.Errorf("ranker: %w", err)
	}

	breakers := resilience.NewBreakerSet(cfg.Breaker)
	e := &Engine{
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "engine")),
		graph:       deps.Graph,
		vectors:     deps.Vectors,
		embedder:    deps.Embedder,
		reason:      deps.Reason,
		journal:     deps.Journal,
		truths:      truths,
		propagator:  propagator,
		ranker:      ranker,
		breakers:    breakers,
		degradation: resilience.NewDegradationManager(cfg.Degradation, breakers, logger),
		cache:       resilience.NewResponseCache(cfg.Cache),
		metrics:     metrics,
		metricsCtx:  observability.NewMetricsContext(),
	}
	e.degradation.SetModeChangeCallback(func(from, to resilience.OperatingMode) {
		e.logger.Warn("operating mode changed",
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})
	return e, nil
}

// OperatingMode returns the current degradation mode.
func (e *Engine) OperatingMode() resilience.OperatingMode {
	return e.degradation.Mode()
}

// ModeInfo returns the mode plus per-service health for the mode
// endpoint.
func (e *Engine) ModeInfo() datatypes.ModeResponse {
	return datatypes.ModeResponse{
		Mode:     e.degradation.Mode().String(),
		Services: e.degradation.HealthByService(),
	}
}

// MetricsSnapshot returns the aggregate metrics window, optionally
// resetting it.
func (e *Engine) MetricsSnapshot(reset bool) observability.Snapshot {
	if reset {
		return e.metricsCtx.ReadAndReset()
	}
	return e.metricsCtx.Read()
}

// execute runs fn behind the named service's circuit breaker and the
// engine retry policy, recording the outcome with the degradation
// manager and refreshing the circuit state gauge.
func (e *Engine) execute(ctx context.Context, service resilience.ServiceType, fn resilience.RetryableFunc) error {
	cb := e.breakers.For(service)
	err := resilience.Execute(ctx, cb, e.cfg.Retry, fn)
	e.degradation.Observe(service, err)
	e.metrics.CircuitState.WithLabelValues(service.String()).Set(float64(cb.State()))
	return err
}

// span starts an engine-scoped trace span.
func span(ctx context.Context, name string) (context.Context, trace.Span) {
	return engineTracer.Start(ctx, name)
}
