// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package truth

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Backend is the minimal persistence contract the store needs.
// The graph store satisfies it; tests inject an in-memory double.
type Backend interface {
	// GetTruth returns the current truth value for an element.
	GetTruth(ctx context.Context, id uuid.UUID) (TruthValue, error)

	// UpdateTruth overwrites the stored truth value for an element.
	UpdateTruth(ctx context.Context, id uuid.UUID, tv TruthValue) error
}

// lockStripes is the number of key mutexes. Contention is per-element,
// so a modest fixed stripe count keeps memory flat under unbounded
// feedback volume while still serializing same-element updates.
const lockStripes = 64

// Store serializes read-modify-write truth updates per element.
//
// Concurrent feedback on the same element must not lose updates, so the
// revision step (read, revise, write) runs under a striped key mutex.
// This is the single required mutual-exclusion point of the engine;
// everything downstream of it is pure computation.
//
// Thread Safety: Safe for concurrent use.
type Store struct {
	backend Backend
	locks   [lockStripes]chan struct{}
}

// NewStore creates a truth store over the given backend.
func NewStore(backend Backend) *Store {
	s := &Store{backend: backend}
	for i := range s.locks {
		s.locks[i] = make(chan struct{}, 1)
	}
	return s
}

// ApplyEvidence merges a feedback observation into an element's truth
// value via the feedback revision path.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - id: The element to update.
//   - evidence: The observation to merge via ReviseFeedback.
//
// Outputs:
//   - old: The truth value before revision.
//   - updated: The truth value after revision.
//   - err: Non-nil if the backend read or write fails.
//
// Thread Safety: Updates to the same element are serialized.
func (s *Store) ApplyEvidence(ctx context.Context, id uuid.UUID, evidence TruthValue) (old, updated TruthValue, err error) {
	return s.apply(ctx, id, func(current TruthValue) TruthValue {
		return ReviseFeedback(current, evidence)
	})
}

// ApplyDelta runs the additive fast path for an element.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - id: The element to update.
//   - delta: Signed confidence delta, already decayed by the caller.
//
// Outputs mirror ApplyEvidence.
//
// Thread Safety: Updates to the same element are serialized.
func (s *Store) ApplyDelta(ctx context.Context, id uuid.UUID, delta float64) (old, updated TruthValue, err error) {
	return s.apply(ctx, id, func(current TruthValue) TruthValue {
		return Nudge(current, delta)
	})
}

func (s *Store) apply(ctx context.Context, id uuid.UUID, update func(TruthValue) TruthValue) (TruthValue, TruthValue, error) {
	lock := s.locks[stripeFor(id)]

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return TruthValue{}, TruthValue{}, ctx.Err()
	}
	defer func() { <-lock }()

	current, err := s.backend.GetTruth(ctx, id)
	if err != nil {
		return TruthValue{}, TruthValue{}, fmt.Errorf("read truth for %s: %w", id, err)
	}

	next := update(current)
	if err := s.backend.UpdateTruth(ctx, id, next); err != nil {
		return TruthValue{}, TruthValue{}, fmt.Errorf("write truth for %s: %w", id, err)
	}

	return current, next, nil
}

// stripeFor maps an element id onto a lock stripe. UUIDs are uniformly
// random, so the low bytes distribute evenly.
func stripeFor(id uuid.UUID) int {
	return int(id[15]) % lockStripes
}
