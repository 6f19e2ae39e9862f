// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package reward derives a bounded scalar reward from a feedback event's
// observed signals. The reward is a logged tuning signal only; nothing
// trains on it and nothing stores it as graph state.
package reward

import (
	"fmt"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
)

// DefaultSaturationDegree is the graph degree at which the connectivity
// bonus reaches 0.5. The saturating map degree/(degree+k) keeps hub
// elements from dominating the reward no matter how connected they get.
const DefaultSaturationDegree = 5.0

// Weights are the documented configuration constants of the reward
// formula. They are configuration, not learned parameters.
type Weights struct {
	// BaseConfidence weighs the element's post-feedback confidence.
	// Default: 0.5
	BaseConfidence float64 `json:"base_confidence" yaml:"base_confidence"`

	// ConnectivityBonus weighs normalized graph degree. Default: 0.2
	ConnectivityBonus float64 `json:"connectivity_bonus" yaml:"connectivity_bonus"`

	// SimilarityBonus weighs the query-element similarity observed when
	// the feedback was given. Default: 0.3
	SimilarityBonus float64 `json:"similarity_bonus" yaml:"similarity_bonus"`

	// NegativePenalty weighs the penalty term for negative feedback.
	// Default: 1.0
	NegativePenalty float64 `json:"negative_penalty" yaml:"negative_penalty"`

	// SaturationDegree is the k in degree/(degree+k).
	// Default: DefaultSaturationDegree
	SaturationDegree float64 `json:"saturation_degree" yaml:"saturation_degree"`
}

// DefaultWeights returns the documented default weights.
func DefaultWeights() Weights {
	return Weights{
		BaseConfidence:    0.5,
		ConnectivityBonus: 0.2,
		SimilarityBonus:   0.3,
		NegativePenalty:   1.0,
		SaturationDegree:  DefaultSaturationDegree,
	}
}

// Validate checks the weights.
func (w Weights) Validate() error {
	if w.BaseConfidence < 0 || w.ConnectivityBonus < 0 || w.SimilarityBonus < 0 || w.NegativePenalty < 0 {
		return fmt.Errorf("%w: reward weights must be non-negative", faults.ErrInvalid)
	}
	if w.SaturationDegree <= 0 {
		return fmt.Errorf("%w: saturation_degree must be positive", faults.ErrInvalid)
	}
	return nil
}

// Compute derives the reward for one feedback event.
//
// reward = w_base·base_confidence
//        + w_conn·normalizeConnectivity(degree)
//        + w_sim·similarity_bonus
//        − w_neg·negative_penalty
//
// clamped to [-1, 1]. Pure function: deterministic for identical inputs,
// no side effects.
func Compute(signals datatypes.RewardSignals, weights Weights) datatypes.RewardResult {
	result := datatypes.RewardResult{
		BaseComponent:     weights.BaseConfidence * signals.BaseConfidence,
		ConnectivityBonus: weights.ConnectivityBonus * normalizeConnectivity(signals.GraphDegree, weights.SaturationDegree),
		SimilarityBonus:   weights.SimilarityBonus * signals.SimilarityBonus,
		NegativePenalty:   weights.NegativePenalty * signals.NegativePenalty,
	}

	raw := result.BaseComponent + result.ConnectivityBonus + result.SimilarityBonus - result.NegativePenalty
	result.Reward = clamp(raw, -1, 1)
	return result
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

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
