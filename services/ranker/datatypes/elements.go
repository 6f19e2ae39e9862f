// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides the data structures shared across the ranker
// service: knowledge-graph elements, feedback events, propagation results,
// ranking outputs, and the HTTP request/response types.
//
// This file contains the graph-side currency. For HTTP types, see api.go.
package datatypes

import (
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

// Element is a UI-component node in the knowledge graph.
//
// Elements are created by the extraction pipeline (outside this service)
// and mutated here only through truth-value revision. Deletion is a graph
// store concern; the engine never removes elements.
type Element struct {
	ID           uuid.UUID        `json:"id"`
	Category     string           `json:"category"`
	DesignSystem string           `json:"design_system"`
	Truth        truth.TruthValue `json:"truth"`
	Tags         []string         `json:"tags,omitempty"`
	CSSClasses   []string         `json:"css_classes,omitempty"`
}

// PropagationRelation is a directed edge read from the graph store.
//
// BaseWeight in (0, 1] acts as a per-hop decay multiplier on top of the
// propagator's global decay factor.
type PropagationRelation struct {
	From       uuid.UUID `json:"from"`
	To         uuid.UUID `json:"to"`
	Kind       string    `json:"relation_kind"`
	BaseWeight float64   `json:"base_weight"`
}

// NarseseStatement is the reasoner contract currency: a symbolic
// statement with an attached truth value. Derived marks statements
// produced by inference rather than direct query translation.
type NarseseStatement struct {
	Statement string           `json:"statement"`
	Truth     truth.TruthValue `json:"truth"`
	Derived   bool             `json:"derived"`
}

// Polarity is the sign of a feedback event.
type Polarity string

const (
	// PolarityPositive is a thumbs-up on a retrieved element.
	PolarityPositive Polarity = "positive"

	// PolarityNegative is a thumbs-down on a retrieved element.
	PolarityNegative Polarity = "negative"
)

// signalConfidence is the fixed confidence attached to user feedback
// evidence. Confidence in the signal itself is configuration, not
// something learned from the feedback stream.
const signalConfidence = 0.8

// Valid reports whether the polarity is one of the two known values.
func (p Polarity) Valid() bool {
	return p == PolarityPositive || p == PolarityNegative
}

// Evidence returns the fixed evidence carried by feedback of this
// polarity: (f=1.0, c=0.8) for positive, (f=0.0, c=0.8) for negative.
func (p Polarity) Evidence() truth.TruthValue {
	if p == PolarityPositive {
		return truth.New(1.0, signalConfidence)
	}
	return truth.New(0.0, signalConfidence)
}

// ConfidenceDelta returns the additive fast-path delta for this polarity.
func (p Polarity) ConfidenceDelta() float64 {
	if p == PolarityPositive {
		return truth.PositiveDelta
	}
	return truth.NegativeDelta
}

// FeedbackEvent is the unit of work for propagation and reward
// computation. Immutable once recorded.
type FeedbackEvent struct {
	ID            uuid.UUID `json:"id"`
	TargetElement uuid.UUID `json:"target_element"`
	Polarity      Polarity  `json:"polarity"`
	QueryContext  string    `json:"query_context,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// TouchedElement records one truth-value change applied during a
// propagation pass, for auditing and testing.
type TouchedElement struct {
	ElementID   uuid.UUID        `json:"element_id"`
	OldTruth    truth.TruthValue `json:"old_truth"`
	NewTruth    truth.TruthValue `json:"new_truth"`
	HopDistance int              `json:"hop_distance"`
}

// PropagationResult is the full set of elements touched by one feedback
// event. Partial is true when the relation resolver was unavailable and
// propagation degraded to the hop-0 update only.
type PropagationResult struct {
	EventID uuid.UUID        `json:"event_id"`
	Touched []TouchedElement `json:"touched"`
	Partial bool             `json:"partial"`
}

// RewardSignals are the inputs to reward computation for one feedback
// event. All fields are best-effort observations; zero values are valid.
type RewardSignals struct {
	BaseConfidence  float64 `json:"base_confidence"`
	GraphDegree     int     `json:"graph_degree"`
	SimilarityBonus float64 `json:"similarity_bonus"`
	NegativePenalty float64 `json:"negative_penalty"`
}

// RewardResult is the bounded scalar reward plus its component
// breakdown. Logged and journaled, never stored as graph state.
type RewardResult struct {
	Reward            float64 `json:"reward"`
	BaseComponent     float64 `json:"base_component"`
	ConnectivityBonus float64 `json:"connectivity_bonus"`
	SimilarityBonus   float64 `json:"similarity_bonus"`
	NegativePenalty   float64 `json:"negative_penalty"`
}

// FeedbackOutcome is what gets journaled for one feedback event.
type FeedbackOutcome struct {
	Propagation PropagationResult `json:"propagation"`
	Reward      RewardResult      `json:"reward"`
}

// SignalSource records which subsystems contributed to a scored element.
type SignalSource string

const (
	// SourceVector means only the vector search produced the element.
	SourceVector SignalSource = "vector"

	// SourceGraph means only the graph match produced the element.
	SourceGraph SignalSource = "graph"

	// SourceBoth means vector and graph both produced the element.
	SourceBoth SignalSource = "both"

	// SourceDegraded means a subsystem was unavailable for the query and
	// the score was filled in with neutral defaults.
	SourceDegraded SignalSource = "degraded"
)

// VectorHit is one vector-search result: element plus cosine-certainty
// similarity in [0, 1].
type VectorHit struct {
	ElementID  uuid.UUID `json:"element_id"`
	Similarity float64   `json:"similarity"`
}

// GraphHit is one graph pattern-match result: element plus its degree.
type GraphHit struct {
	ElementID uuid.UUID `json:"element_id"`
	Degree    int       `json:"degree"`
}

// ScoredElement is the ephemeral ranking output. Recomputed per query,
// never persisted.
type ScoredElement struct {
	ElementID          uuid.UUID    `json:"element_id"`
	SemanticSimilarity float64      `json:"semantic_similarity"`
	NarseseConfidence  float64      `json:"narsese_confidence"`
	GraphDegree        int          `json:"graph_degree"`
	FinalScore         float64      `json:"final_score"`
	Source             SignalSource `json:"source"`
}
