// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ranking fuses per-element signals from up to three
// independently-failing sources (vector similarity, Narsese confidence,
// graph connectivity) into one deterministic ordered result list.
//
// Fusion never fails on missing signals: an element absent from a signal
// set is scored with a configured neutral default rather than zero, so a
// degraded subsystem cannot unfairly bury elements it never saw.
package ranking

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
)

// Config holds the documented fusion constants. The three weights sum
// to 1.0 so the final score stays in [0, 1].
type Config struct {
	// SimilarityWeight is α, the semantic similarity weight. Default: 0.5
	SimilarityWeight float64 `json:"similarity_weight" yaml:"similarity_weight"`

	// ConfidenceWeight is β, the Narsese confidence weight. Default: 0.3
	ConfidenceWeight float64 `json:"confidence_weight" yaml:"confidence_weight"`

	// ConnectivityWeight is γ, the normalized graph degree weight.
	// Default: 0.2
	ConnectivityWeight float64 `json:"connectivity_weight" yaml:"connectivity_weight"`

	// NeutralSimilarity fills the similarity signal for elements the
	// vector search never returned. Default: 0.5
	NeutralSimilarity float64 `json:"neutral_similarity" yaml:"neutral_similarity"`

	// NeutralConfidence fills the Narsese confidence for elements the
	// reasoner never scored. Default: 0.5
	NeutralConfidence float64 `json:"neutral_confidence" yaml:"neutral_confidence"`

	// NeutralConnectivity fills the normalized connectivity for elements
	// the graph match never returned. Default: 0.25
	NeutralConnectivity float64 `json:"neutral_connectivity" yaml:"neutral_connectivity"`

	// SaturationDegree is the k in degree/(degree+k). Default: 5
	SaturationDegree float64 `json:"saturation_degree" yaml:"saturation_degree"`
}

// DefaultConfig returns the documented fusion defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityWeight:    0.5,
		ConfidenceWeight:    0.3,
		ConnectivityWeight:  0.2,
		NeutralSimilarity:   0.5,
		NeutralConfidence:   0.5,
		NeutralConnectivity: 0.25,
		SaturationDegree:    5,
	}
}

// Validate checks the fusion constants.
func (c Config) Validate() error {
	if c.SimilarityWeight < 0 || c.ConfidenceWeight < 0 || c.ConnectivityWeight < 0 {
		return fmt.Errorf("%w: ranking weights must be non-negative", faults.ErrInvalid)
	}
	sum := c.SimilarityWeight + c.ConfidenceWeight + c.ConnectivityWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("%w: ranking weights must sum to 1.0, got %v", faults.ErrInvalid, sum)
	}
	for _, neutral := range []float64{c.NeutralSimilarity, c.NeutralConfidence, c.NeutralConnectivity} {
		if neutral < 0 || neutral > 1 {
			return fmt.Errorf("%w: neutral defaults must be in [0,1]", faults.ErrInvalid)
		}
	}
	if c.SaturationDegree <= 0 {
		return fmt.Errorf("%w: saturation_degree must be positive", faults.ErrInvalid)
	}
	return nil
}

// Input carries the three partial result sets for one query, along with
// which subsystems were actually consulted. An unavailable subsystem is
// different from one that returned nothing: the former marks every
// result degraded, the latter is a real empty signal.
type Input struct {
	VectorHits         []datatypes.VectorHit
	GraphHits          []datatypes.GraphHit
	NarseseConfidences map[uuid.UUID]float64

	VectorAvailable bool
	GraphAvailable  bool
}

// Ranker fuses partial signal sets. Pure and stateless: safe for
// concurrent use, deterministic for identical inputs.
type Ranker struct {
	config Config
}

// NewRanker creates a ranker with validated fusion constants.
func NewRanker(config Config) (*Ranker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Ranker{config: config}, nil
}

// Rank joins the partial result sets by element id, scores each element,
// and returns an ordered list truncated to limit.
//
// final_score = α·similarity + β·narsese_confidence + γ·connectivity,
// all components in [0, 1]. Ties break by (1) higher Narsese confidence,
// (2) lexicographic element id — the ordering is fully reproducible.
//
// Inputs:
//   - input: Partial signal sets plus subsystem availability.
//   - limit: Maximum results returned; non-positive means unlimited.
//
// Outputs:
//   - []datatypes.ScoredElement: Ordered, never nil. Empty only when no
//     subsystem produced any element.
func (r *Ranker) Rank(input Input, limit int) []datatypes.ScoredElement {
	type signals struct {
		similarity    float64
		hasSimilarity bool
		degree        int
		hasDegree     bool
	}
	joined := make(map[uuid.UUID]*signals)

	for _, hit := range input.VectorHits {
		s := joined[hit.ElementID]
		if s == nil {
			s = &signals{}
			joined[hit.ElementID] = s
		}
		// Keep the best similarity if the backend returns duplicates.
		if !s.hasSimilarity || hit.Similarity > s.similarity {
			s.similarity = hit.Similarity
			s.hasSimilarity = true
		}
	}
	for _, hit := range input.GraphHits {
		s := joined[hit.ElementID]
		if s == nil {
			s = &signals{}
			joined[hit.ElementID] = s
		}
		s.degree = hit.Degree
		s.hasDegree = true
	}

	// Map iteration order is random; sort ids up front so scoring and
	// tie-breaking never depend on it.
	ids := make([]uuid.UUID, 0, len(joined))
	for id := range joined {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	degraded := len(input.NarseseConfidences) == 0 ||
		!input.VectorAvailable || !input.GraphAvailable

	results := make([]datatypes.ScoredElement, 0, len(ids))
	for _, id := range ids {
		s := joined[id]

		similarity := r.config.NeutralSimilarity
		if s.hasSimilarity {
			similarity = s.similarity
		}

		confidence := r.config.NeutralConfidence
		if c, ok := input.NarseseConfidences[id]; ok {
			confidence = c
		}

		connectivity := r.config.NeutralConnectivity
		degree := 0
		if s.hasDegree {
			degree = s.degree
			connectivity = normalizeConnectivity(degree, r.config.SaturationDegree)
		}

		source := datatypes.SourceVector
		switch {
		case degraded:
			source = datatypes.SourceDegraded
		case s.hasSimilarity && s.hasDegree:
			source = datatypes.SourceBoth
		case s.hasDegree:
			source = datatypes.SourceGraph
		}

		results = append(results, datatypes.ScoredElement{
			ElementID:          id,
			SemanticSimilarity: similarity,
			NarseseConfidence:  confidence,
			GraphDegree:        degree,
			FinalScore: r.config.SimilarityWeight*similarity +
				r.config.ConfidenceWeight*confidence +
				r.config.ConnectivityWeight*connectivity,
			Source: source,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].FinalScore != results[j].FinalScore {
			return results[i].FinalScore > results[j].FinalScore
		}
		if results[i].NarseseConfidence != results[j].NarseseConfidence {
			return results[i].NarseseConfidence > results[j].NarseseConfidence
		}
		return results[i].ElementID.String() < results[j].ElementID.String()
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// normalizeConnectivity maps raw degree through degree/(degree+k):
// monotonic, 0 at degree 0, asymptotic to 1.
func normalizeConnectivity(degree int, k float64) float64 {
	if degree <= 0 {
		return 0
	}
	d := float64(degree)
	return d / (d + k)
}
