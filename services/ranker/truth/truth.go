// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package truth implements NARS-style truth values and evidence revision.
//
// A truth value is a (frequency, confidence) pair describing how often a
// statement held and how much evidence backs that estimate. Three update
// paths exist and are deliberately kept separate:
//
//   - Revise: full evidence-weight combination with accumulated
//     confidence, used when recomputing a truth value from scratch.
//   - ReviseFeedback: the feedback-acknowledgment variant applied to the
//     target element of a feedback event. Frequency combines like Revise,
//     but confidence adopts the observation's weight only. Do not unify
//     the two: accumulated stores would drift if acknowledgments started
//     compounding confidence.
//   - Nudge: a cheap additive confidence delta, used on the hot path when
//     spreading decayed feedback to neighboring elements.
//
// All paths clamp confidence to [MinConfidence, MaxConfidence] and
// frequency to [0, 1]. Confidence never reaches 1.0: evidence is finite.
package truth

import (
	"errors"
	"fmt"
)

const (
	// MinConfidence is the floor for any stored confidence value.
	MinConfidence = 0.01

	// MaxConfidence is the ceiling for any stored confidence value.
	// Kept strictly below 1.0 so no statement is ever treated as certain.
	MaxConfidence = 0.99

	// PositiveDelta is the additive confidence nudge for positive feedback.
	PositiveDelta = 0.10

	// NegativeDelta is the additive confidence nudge for negative feedback.
	NegativeDelta = -0.15
)

// ErrOutOfRange is returned when a caller supplies a frequency or
// confidence outside [0, 1].
var ErrOutOfRange = errors.New("truth value component out of [0,1] range")

// TruthValue is a NARS (frequency, confidence) pair.
//
// Invariant: Frequency is in [0, 1] and Confidence is in
// [MinConfidence, MaxConfidence] for every value produced by this package.
type TruthValue struct {
	Frequency  float64 `json:"frequency"`
	Confidence float64 `json:"confidence"`
}

// New builds a clamped truth value from raw components.
func New(frequency, confidence float64) TruthValue {
	return TruthValue{
		Frequency:  clamp(frequency, 0, 1),
		Confidence: clamp(confidence, MinConfidence, MaxConfidence),
	}
}

// Validate reports whether both components are within [0, 1].
// Unlike New, it rejects out-of-range input instead of clamping, for use
// at API boundaries where silent correction would hide caller bugs.
func (t TruthValue) Validate() error {
	if t.Frequency < 0 || t.Frequency > 1 {
		return fmt.Errorf("frequency %v: %w", t.Frequency, ErrOutOfRange)
	}
	if t.Confidence < 0 || t.Confidence > 1 {
		return fmt.Errorf("confidence %v: %w", t.Confidence, ErrOutOfRange)
	}
	return nil
}

// Evidence returns the evidence weight k = c / (1 - c).
//
// The weight grows without bound as confidence approaches 1, which is what
// makes revision commutative: combining evidence is addition in k-space.
// The conversion must stay exact — any fudge term in the denominator makes
// the k↔c round-trip lossy and revision order-dependent. Values produced
// by this package are capped at MaxConfidence, so the denominator is at
// least 1-MaxConfidence; raw values at exactly 1 are pinned to the cap's
// weight.
func (t TruthValue) Evidence() float64 {
	if t.Confidence >= 1 {
		return MaxConfidence / (1 - MaxConfidence)
	}
	return t.Confidence / (1 - t.Confidence)
}

// Revise combines two independent evidence sources about the same
// statement into one updated truth value.
//
// The combined evidence weight is the sum of the per-source weights; the
// new frequency is the evidence-weighted average; the new confidence is
// k_total / (k_total + 1), which is monotonically non-decreasing in
// evidence count and asymptotic to (but never reaching) 1.
//
// Inputs:
//   - old: The statement's current truth value.
//   - evidence: The new observation to merge.
//
// Outputs:
//   - TruthValue: The revised, clamped truth value.
//
// Revision is commutative and associative up to floating-point tolerance.
func Revise(old, evidence TruthValue) TruthValue {
	kOld := old.Evidence()
	kNew := evidence.Evidence()
	kTotal := kOld + kNew
	if kTotal <= 0 {
		return New(old.Frequency, old.Confidence)
	}

	frequency := (kOld*old.Frequency + kNew*evidence.Frequency) / kTotal
	confidence := kTotal / (kTotal + 1)
	return New(frequency, confidence)
}

// ReviseFeedback merges a feedback observation into the target
// element's truth value.
//
// Frequency is the evidence-weighted average, exactly as in Revise.
// Confidence becomes k_new / (k_new + 1) — the observation's own weight
// mapped back to confidence — rather than the accumulated total. A
// thumbs-up with 0.8-confidence evidence therefore leaves the element at
// confidence 0.8 no matter how much history it carries, which keeps
// repeated feedback from saturating confidence at the ceiling.
func ReviseFeedback(old, evidence TruthValue) TruthValue {
	kOld := old.Evidence()
	kNew := evidence.Evidence()
	kTotal := kOld + kNew
	if kTotal <= 0 {
		return New(old.Frequency, old.Confidence)
	}

	frequency := (kOld*old.Frequency + kNew*evidence.Frequency) / kTotal
	confidence := kNew / (kNew + 1)
	return New(frequency, confidence)
}

// Nudge applies a direct additive confidence delta, leaving frequency
// untouched. This is the simplified low-latency path used for propagated
// updates where a full revision per neighbor would be wasted work; the
// result is clamped like every other truth value.
func Nudge(old TruthValue, delta float64) TruthValue {
	return New(old.Frequency, old.Confidence+delta)
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
