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

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/resilience"
	"github.com/AleutianAI/Kodiak/services/ranker/reward"
)

// SubmitFeedback journals a feedback event, propagates its confidence
// delta through the graph, computes the reward signal, and journals the
// outcome.
//
// Journal failures are logged and absorbed: auditing must not block
// learning. Propagation errors surface when the target is unknown
// (faults.ErrNotFound) or the event is malformed (faults.ErrInvalid);
// everything else produces a partial result rather than an error.
//
// Outputs:
//   - *datatypes.FeedbackOutcome: Propagation result plus reward.
//   - error: Non-nil only for invalid events or unknown targets.
func (e *Engine) SubmitFeedback(ctx context.Context, event datatypes.FeedbackEvent) (*datatypes.FeedbackOutcome, error) {
	ctx, sp := span(ctx, "engine.submit_feedback")
	defer sp.End()
	sp.SetAttributes(
		attribute.String("feedback.target", event.TargetElement.String()),
		attribute.String("feedback.polarity", string(event.Polarity)),
	)

	if !event.Polarity.Valid() {
		return nil, fmt.Errorf("%w: polarity %q", faults.ErrInvalid, event.Polarity)
	}

	seq := e.journalEvent(ctx, event)

	result, err := e.propagator.Propagate(ctx, event)
	if err != nil {
		e.recordFeedback(event, "error")
		return nil, err
	}

	outcome := &datatypes.FeedbackOutcome{
		Propagation: *result,
		Reward:      e.computeReward(ctx, event, result),
	}
	e.journalOutcome(ctx, seq, outcome)

	status := "success"
	if result.Partial {
		status = "partial"
	}
	e.recordFeedback(event, status)
	e.metrics.PropagationTouched.Observe(float64(len(result.Touched)))
	e.metricsCtx.RecordFeedback(event.Polarity == datatypes.PolarityPositive)
	return outcome, nil
}

// computeReward assembles reward signals from the propagation result,
// best-effort graph lookups, and the similarity the response cache
// recorded for the event's query context. A failed lookup contributes a
// zero signal, never an error.
func (e *Engine) computeReward(ctx context.Context, event datatypes.FeedbackEvent, result *datatypes.PropagationResult) datatypes.RewardResult {
	signals := datatypes.RewardSignals{}
	for _, touched := range result.Touched {
		if touched.ElementID == event.TargetElement {
			signals.BaseConfidence = touched.NewTruth.Confidence
			break
		}
	}
	if degree, err := e.graph.Degree(ctx, event.TargetElement); err == nil {
		signals.GraphDegree = degree
	} else {
		e.logger.Debug("degree lookup failed for reward",
			slog.String("element", event.TargetElement.String()),
			slog.String("error", err.Error()))
	}
	if event.QueryContext != "" {
		// The similarity the target showed when this query was last
		// served. Feedback on a never-cached query contributes nothing.
		normalized := resilience.NormalizeQuery(event.QueryContext)
		if sim, ok := e.cache.SimilarityFor(normalized, event.TargetElement); ok {
			signals.SimilarityBonus = sim
		}
	}
	if event.Polarity == datatypes.PolarityNegative {
		signals.NegativePenalty = 1.0
	}
	return reward.Compute(signals, e.cfg.Reward)
}

// journalEvent appends the event, returning 0 when auditing is disabled
// or the append fails.
func (e *Engine) journalEvent(ctx context.Context, event datatypes.FeedbackEvent) uint64 {
	if e.journal == nil {
		return 0
	}
	seq, err := e.journal.AppendEvent(ctx, event)
	if err != nil {
		e.logger.Warn("feedback journal append failed",
			slog.String("event_id", event.ID.String()),
			slog.String("error", err.Error()))
		return 0
	}
	return seq
}

func (e *Engine) journalOutcome(ctx context.Context, seq uint64, outcome *datatypes.FeedbackOutcome) {
	if e.journal == nil || seq == 0 {
		return
	}
	if err := e.journal.AppendOutcome(ctx, seq, *outcome); err != nil {
		e.logger.Warn("feedback outcome append failed",
			slog.Uint64("sequence", seq),
			slog.String("error", err.Error()))
	}
}

func (e *Engine) recordFeedback(event datatypes.FeedbackEvent, status string) {
	e.metrics.FeedbackTotal.WithLabelValues(string(event.Polarity), status).Inc()
}
