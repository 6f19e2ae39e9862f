// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/graph"
	"github.com/AleutianAI/Kodiak/services/ranker/ranking"
	"github.com/AleutianAI/Kodiak/services/ranker/reasoner"
	"github.com/AleutianAI/Kodiak/services/ranker/resilience"
	"github.com/AleutianAI/Kodiak/services/ranker/vector"
)

// Retrieve answers a natural-language query with a ranked list of
// elements, fusing vector similarity, symbolic confidence, and graph
// connectivity.
//
// A fresh cached entry answers without touching the backends, and
// concurrent identical queries share one backend round trip.
//
// Degradation is per-subsystem: the vector and graph branches run in
// parallel behind their own circuit breakers, and a branch failure
// narrows the signal set instead of failing the query. When both
// retrieval backends are down the engine serves from the response cache
// (stale entries included); a cache miss in that state is
// faults.ErrUnavailable. Reasoner failure empties the symbolic signal
// and marks every result degraded.
//
// Inputs:
//   - ctx: Bounds the whole query, including backend branches.
//   - req: Validated externally or not at all; Retrieve validates again.
//
// Outputs:
//   - *datatypes.RetrieveResponse: Ranked results plus the operating
//     mode they were produced under.
//   - error: faults.ErrInvalid on a bad request, faults.ErrUnavailable
//     when only the cache could serve and it missed,
//     faults.ErrNoSignals when no subsystem produced a usable signal.
func (e *Engine) Retrieve(ctx context.Context, req datatypes.RetrieveRequest) (*datatypes.RetrieveResponse, error) {
	ctx, sp := span(ctx, "engine.retrieve")
	defer sp.End()
	start := time.Now()

	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", faults.ErrInvalid, err)
	}

	normalized := resilience.NormalizeQuery(req.Query)
	cacheKey := resilience.QueryKey(normalized, req.DesignSystem, req.Limit)
	mode := e.degradation.Mode()
	sp.SetAttributes(
		attribute.String("query.normalized", normalized),
		attribute.Int("query.limit", req.Limit),
		attribute.String("engine.mode", mode.String()),
	)

	if mode == resilience.ModeCachedOnly {
		return e.serveFromCache(req, cacheKey, mode, start)
	}

	// The cache deduplicates the compute path: a fresh entry answers
	// without touching the backends, and concurrent identical queries
	// share one backend round trip. Only the goroutine that actually
	// computes sets computed; joiners and fresh hits are cache-served.
	computed := false
	status := "success"
	results, err := e.cache.GetOrCompute(ctx, cacheKey, func(ctx context.Context) ([]datatypes.ScoredElement, error) {
		computed = true

		statements := e.translateAndInfer(ctx, normalized)
		branches := e.runRetrievalBranches(ctx, normalized, req)
		if !branches.vectorOK && !branches.graphOK {
			return nil, fmt.Errorf("%w: vector and graph retrieval both failed", faults.ErrNoSignals)
		}
		if len(statements) == 0 || !branches.vectorOK || !branches.graphOK {
			status = "degraded"
		}

		narsese := e.narseseConfidences(ctx, statements, branches)
		return e.ranker.Rank(ranking.Input{
			VectorHits:         branches.vectorHits,
			GraphHits:          branches.graphHits,
			NarseseConfidences: narsese,
			VectorAvailable:    branches.vectorOK,
			GraphAvailable:     branches.graphOK,
		}, req.Limit), nil
	})
	if err != nil {
		// Both branches failed during this query even though the mode
		// said otherwise when it started. Fall back to the cache, stale
		// entries included, before giving up.
		if resp, cacheErr := e.serveFromCache(req, cacheKey, e.degradation.Mode(), start); cacheErr == nil {
			return resp, nil
		}
		return nil, err
	}

	if !computed {
		e.metrics.CacheEventsTotal.WithLabelValues("hit").Inc()
	}
	latency := time.Since(start)
	e.metrics.QueriesTotal.WithLabelValues(status, mode.String()).Inc()
	e.metrics.QueryDurationSeconds.WithLabelValues(mode.String()).Observe(latency.Seconds())
	e.metricsCtx.RecordQuery(latency)

	return &datatypes.RetrieveResponse{
		RequestID: uuid.NewString(),
		Query:     req.Query,
		Mode:      mode.String(),
		Cached:    !computed,
		Results:   results,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// serveFromCache answers from the response cache, accepting stale
// entries. Used when both retrieval backends are down.
func (e *Engine) serveFromCache(req datatypes.RetrieveRequest, cacheKey string, mode resilience.OperatingMode, start time.Time) (*datatypes.RetrieveResponse, error) {
	results, fresh, ok := e.cache.Get(cacheKey)
	if !ok {
		e.metrics.CacheEventsTotal.WithLabelValues("miss").Inc()
		e.metrics.QueriesTotal.WithLabelValues("error", mode.String()).Inc()
		return nil, fmt.Errorf("%w: retrieval backends down and no cached response", faults.ErrUnavailable)
	}
	if fresh {
		e.metrics.CacheEventsTotal.WithLabelValues("hit").Inc()
	} else {
		e.metrics.CacheEventsTotal.WithLabelValues("stale_hit").Inc()
	}

	latency := time.Since(start)
	e.metrics.QueriesTotal.WithLabelValues("degraded", mode.String()).Inc()
	e.metrics.QueryDurationSeconds.WithLabelValues(mode.String()).Observe(latency.Seconds())
	e.metricsCtx.RecordQuery(latency)

	return &datatypes.RetrieveResponse{
		RequestID: uuid.NewString(),
		Query:     req.Query,
		Mode:      mode.String(),
		Cached:    true,
		Results:   results,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// translateAndInfer produces the symbolic signal. Reasoner failure is
// absorbed: an empty statement set degrades the ranking rather than
// failing the query.
func (e *Engine) translateAndInfer(ctx context.Context, query string) []datatypes.NarseseStatement {
	ctx, sp := span(ctx, "engine.reason")
	defer sp.End()
	genStart := time.Now()

	var statements []datatypes.NarseseStatement
	err := e.execute(ctx, resilience.ServiceReasoner, func(ctx context.Context, attempt int) error {
		translated, err := e.reason.Translate(ctx, query)
		if err != nil {
			return err
		}
		derived, err := e.reason.Infer(ctx, translated)
		if err != nil {
			return err
		}
		statements = append(translated, derived...)
		return nil
	})
	if err != nil {
		e.logger.Warn("reasoner unavailable, continuing without symbolic signal",
			slog.String("error", err.Error()))
		return nil
	}
	e.metricsCtx.RecordGeneration(time.Since(genStart))
	return statements
}

// branchResults carries the outcome of the two parallel retrieval
// branches.
type branchResults struct {
	vectorHits []datatypes.VectorHit
	graphHits  []datatypes.GraphHit
	vectorOK   bool
	graphOK    bool
}

// runRetrievalBranches runs vector search and graph pattern matching in
// parallel, each with its own timeout, breaker, and retry policy. A
// failure in one branch never cancels the other.
func (e *Engine) runRetrievalBranches(ctx context.Context, normalized string, req datatypes.RetrieveRequest) branchResults {
	var (
		wg  sync.WaitGroup
		res branchResults
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		branchCtx, cancel := context.WithTimeout(ctx, e.cfg.BackendTimeout)
		defer cancel()
		hits, err := e.vectorBranch(branchCtx, normalized, req)
		if err != nil {
			e.logger.Warn("vector branch failed", slog.String("error", err.Error()))
			return
		}
		res.vectorHits = hits
		res.vectorOK = true
	}()
	go func() {
		defer wg.Done()
		branchCtx, cancel := context.WithTimeout(ctx, e.cfg.BackendTimeout)
		defer cancel()
		hits, err := e.graphBranch(branchCtx, normalized, req)
		if err != nil {
			e.logger.Warn("graph branch failed", slog.String("error", err.Error()))
			return
		}
		res.graphHits = hits
		res.graphOK = true
	}()
	wg.Wait()
	return res
}

// vectorBranch embeds the query and searches the vector store. The
// embedder runs behind the LLM breaker, the search behind the vector
// breaker.
func (e *Engine) vectorBranch(ctx context.Context, normalized string, req datatypes.RetrieveRequest) ([]datatypes.VectorHit, error) {
	ctx, sp := span(ctx, "engine.vector_branch")
	defer sp.End()

	var embedding []float32
	genStart := time.Now()
	err := e.execute(ctx, resilience.ServiceLLM, func(ctx context.Context, attempt int) error {
		var err error
		embedding, err = e.embedder.Embed(ctx, normalized)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	e.metricsCtx.RecordGeneration(time.Since(genStart))

	var hits []datatypes.VectorHit
	err = e.execute(ctx, resilience.ServiceVector, func(ctx context.Context, attempt int) error {
		var err error
		hits, err = e.vectors.Search(ctx, embedding, req.Limit, vectorFilter(req))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return hits, nil
}

// graphBranch pattern-matches query terms against the graph store.
func (e *Engine) graphBranch(ctx context.Context, normalized string, req datatypes.RetrieveRequest) ([]datatypes.GraphHit, error) {
	ctx, sp := span(ctx, "engine.graph_branch")
	defer sp.End()

	terms := reasoner.Terms(normalized)
	var hits []datatypes.GraphHit
	err := e.execute(ctx, resilience.ServiceGraph, func(ctx context.Context, attempt int) error {
		var err error
		hits, err = e.graph.PatternMatch(ctx, terms, graphFilter(req), req.Limit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("graph pattern match: %w", err)
	}
	return hits, nil
}

// narseseConfidences computes the per-element symbolic confidence: the
// best statement match against the element's category, tags, and CSS
// classes, weighted by the element's stored truth confidence. Elements
// the graph cannot resolve simply stay out of the map and pick up the
// neutral default at ranking time.
func (e *Engine) narseseConfidences(ctx context.Context, statements []datatypes.NarseseStatement, branches branchResults) map[uuid.UUID]float64 {
	if len(statements) == 0 {
		return nil
	}
	ctx, sp := span(ctx, "engine.narsese_join")
	defer sp.End()

	candidates := make(map[uuid.UUID]struct{}, len(branches.vectorHits)+len(branches.graphHits))
	for _, hit := range branches.vectorHits {
		candidates[hit.ElementID] = struct{}{}
	}
	for _, hit := range branches.graphHits {
		candidates[hit.ElementID] = struct{}{}
	}

	confidences := make(map[uuid.UUID]float64, len(candidates))
	for id := range candidates {
		element, err := e.graph.GetElement(ctx, id)
		if err != nil {
			continue
		}
		match, ok := reasoner.BestMatch(statements, element)
		if !ok {
			continue
		}
		confidences[id] = match * element.Truth.Confidence
	}
	return confidences
}

func vectorFilter(req datatypes.RetrieveRequest) vector.Filter {
	return vector.Filter{DesignSystem: req.DesignSystem}
}

func graphFilter(req datatypes.RetrieveRequest) graph.Filter {
	return graph.Filter{DesignSystem: req.DesignSystem}
}
