// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package propagation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

// memBackend is a truth.Backend double.
type memBackend struct {
	mu     sync.Mutex
	values map[uuid.UUID]truth.TruthValue
}

func newMemBackend() *memBackend {
	return &memBackend{values: make(map[uuid.UUID]truth.TruthValue)}
}

func (b *memBackend) GetTruth(ctx context.Context, id uuid.UUID) (truth.TruthValue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tv, ok := b.values[id]
	if !ok {
		return truth.TruthValue{}, fmt.Errorf("element %s: %w", id, faults.ErrNotFound)
	}
	return tv, nil
}

func (b *memBackend) UpdateTruth(ctx context.Context, id uuid.UUID, tv truth.TruthValue) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[id] = tv
	return nil
}

// fakeResolver serves a static adjacency list, optionally failing after
// a number of calls.
type fakeResolver struct {
	edges     map[uuid.UUID][]datatypes.PropagationRelation
	calls     int
	failAfter int // fail once calls reaches this, 0 disables
}

func (r *fakeResolver) GetRelations(ctx context.Context, id uuid.UUID) ([]datatypes.PropagationRelation, error) {
	r.calls++
	if r.failAfter > 0 && r.calls >= r.failAfter {
		return nil, errors.New("resolver down")
	}
	return r.edges[id], nil
}

// chainGraph builds target -> a -> b -> c with unit edge weights.
func chainGraph() (backend *memBackend, resolver *fakeResolver, ids [4]uuid.UUID) {
	for i := range ids {
		ids[i] = uuid.New()
	}
	backend = newMemBackend()
	for _, id := range ids {
		backend.values[id] = truth.New(0.5, 0.5)
	}
	edge := func(from, to uuid.UUID) datatypes.PropagationRelation {
		return datatypes.PropagationRelation{From: from, To: to, Kind: "contains", BaseWeight: 1.0}
	}
	resolver = &fakeResolver{edges: map[uuid.UUID][]datatypes.PropagationRelation{
		ids[0]: {edge(ids[0], ids[1])},
		ids[1]: {edge(ids[0], ids[1]), edge(ids[1], ids[2])},
		ids[2]: {edge(ids[1], ids[2]), edge(ids[2], ids[3])},
		ids[3]: {edge(ids[2], ids[3])},
	}}
	return backend, resolver, ids
}

func event(target uuid.UUID, polarity datatypes.Polarity) datatypes.FeedbackEvent {
	return datatypes.FeedbackEvent{
		ID:            uuid.New(),
		TargetElement: target,
		Polarity:      polarity,
	}
}

func newPropagator(t *testing.T, backend *memBackend, resolver *fakeResolver, config Config) *Propagator {
	t.Helper()
	p, err := NewPropagator(truth.NewStore(backend), resolver, config, nil)
	if err != nil {
		t.Fatalf("NewPropagator: %v", err)
	}
	return p
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"defaults are valid", DefaultConfig(), false},
		{"zero hops is valid", Config{MaxHops: 0, DecayFactor: 0.5}, false},
		{"negative hops is invalid", Config{MaxHops: -1, DecayFactor: 0.5}, true},
		{"zero decay is invalid", Config{MaxHops: 2, DecayFactor: 0}, true},
		{"decay of one is invalid", Config{MaxHops: 2, DecayFactor: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPropagate_ZeroHopsTouchesOnlyTarget(t *testing.T) {
	backend, resolver, ids := chainGraph()
	p := newPropagator(t, backend, resolver, Config{MaxHops: 0, DecayFactor: 0.5})

	result, err := p.Propagate(context.Background(), event(ids[0], datatypes.PolarityPositive))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Touched) != 1 {
		t.Fatalf("touched %d elements, want 1", len(result.Touched))
	}
	if result.Touched[0].ElementID != ids[0] || result.Touched[0].HopDistance != 0 {
		t.Errorf("touched = %+v, want target at hop 0", result.Touched[0])
	}
}

func TestPropagate_RespectsHopBound(t *testing.T) {
	backend, resolver, ids := chainGraph()
	p := newPropagator(t, backend, resolver, Config{MaxHops: 2, DecayFactor: 0.5})

	result, err := p.Propagate(context.Background(), event(ids[0], datatypes.PolarityPositive))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	maxHop := 0
	touched := make(map[uuid.UUID]int)
	for _, te := range result.Touched {
		touched[te.ElementID] = te.HopDistance
		if te.HopDistance > maxHop {
			maxHop = te.HopDistance
		}
	}
	if maxHop != 2 {
		t.Errorf("max hop = %d, want 2", maxHop)
	}
	if _, ok := touched[ids[3]]; ok {
		t.Errorf("element 3 hops away was touched with MaxHops=2")
	}
	if hop := touched[ids[1]]; hop != 1 {
		t.Errorf("first neighbor at hop %d, want 1", hop)
	}
	if hop := touched[ids[2]]; hop != 2 {
		t.Errorf("second neighbor at hop %d, want 2", hop)
	}
}

func TestPropagate_DeltaStrictlyDecreasesWithHop(t *testing.T) {
	backend, resolver, ids := chainGraph()
	p := newPropagator(t, backend, resolver, Config{MaxHops: 3, DecayFactor: 0.5})

	result, err := p.Propagate(context.Background(), event(ids[0], datatypes.PolarityNegative))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deltaAtHop := make(map[int]float64)
	for _, te := range result.Touched {
		if te.HopDistance == 0 {
			continue
		}
		deltaAtHop[te.HopDistance] = math.Abs(te.NewTruth.Confidence - te.OldTruth.Confidence)
	}
	for hop := 2; hop <= 3; hop++ {
		if deltaAtHop[hop] >= deltaAtHop[hop-1] {
			t.Errorf("delta at hop %d (%v) not smaller than hop %d (%v)",
				hop, deltaAtHop[hop], hop-1, deltaAtHop[hop-1])
		}
	}
}

func TestPropagate_CycleTerminatesWithOneUpdatePerElement(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	backend := newMemBackend()
	for _, id := range []uuid.UUID{a, b, c} {
		backend.values[id] = truth.New(0.5, 0.5)
	}
	edge := func(from, to uuid.UUID) datatypes.PropagationRelation {
		return datatypes.PropagationRelation{From: from, To: to, Kind: "references", BaseWeight: 1.0}
	}
	// Triangle: a -> b -> c -> a.
	resolver := &fakeResolver{edges: map[uuid.UUID][]datatypes.PropagationRelation{
		a: {edge(a, b), edge(c, a)},
		b: {edge(a, b), edge(b, c)},
		c: {edge(b, c), edge(c, a)},
	}}
	p := newPropagator(t, backend, resolver, Config{MaxHops: 10, DecayFactor: 0.5})

	result, err := p.Propagate(context.Background(), event(a, datatypes.PolarityPositive))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[uuid.UUID]bool)
	for _, te := range result.Touched {
		if seen[te.ElementID] {
			t.Errorf("element %s updated more than once", te.ElementID)
		}
		seen[te.ElementID] = true
	}
	if len(result.Touched) != 3 {
		t.Errorf("touched %d elements, want 3", len(result.Touched))
	}
}

func TestPropagate_MultiPathArrivalsAccumulateOnce(t *testing.T) {
	// Diamond: target -> a, target -> b, a -> c, b -> c. Both paths reach
	// c at hop 2; their deltas sum into a single update.
	target, a, b, c := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	backend := newMemBackend()
	for _, id := range []uuid.UUID{target, a, b, c} {
		backend.values[id] = truth.New(0.5, 0.5)
	}
	edge := func(from, to uuid.UUID) datatypes.PropagationRelation {
		return datatypes.PropagationRelation{From: from, To: to, Kind: "contains", BaseWeight: 1.0}
	}
	resolver := &fakeResolver{edges: map[uuid.UUID][]datatypes.PropagationRelation{
		target: {edge(target, a), edge(target, b)},
		a:      {edge(target, a), edge(a, c)},
		b:      {edge(target, b), edge(b, c)},
		c:      {edge(a, c), edge(b, c)},
	}}
	p := newPropagator(t, backend, resolver, Config{MaxHops: 2, DecayFactor: 0.5})

	result, err := p.Propagate(context.Background(), event(target, datatypes.PolarityPositive))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var cTouched *datatypes.TouchedElement
	for i := range result.Touched {
		if result.Touched[i].ElementID == c {
			if cTouched != nil {
				t.Fatal("c updated twice")
			}
			cTouched = &result.Touched[i]
		}
	}
	if cTouched == nil {
		t.Fatal("c never touched")
	}
	// Two paths, each 0.1 * 0.5^2 * 1.0 = 0.025, summed to 0.05.
	gotDelta := cTouched.NewTruth.Confidence - cTouched.OldTruth.Confidence
	if math.Abs(gotDelta-0.05) > 1e-9 {
		t.Errorf("accumulated delta = %v, want 0.05", gotDelta)
	}
}

func TestPropagate_UnknownTargetSurfacesNotFound(t *testing.T) {
	backend, resolver, _ := chainGraph()
	p := newPropagator(t, backend, resolver, DefaultConfig())

	_, err := p.Propagate(context.Background(), event(uuid.New(), datatypes.PolarityPositive))
	if !errors.Is(err, faults.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPropagate_InvalidPolarityRejected(t *testing.T) {
	backend, resolver, ids := chainGraph()
	p := newPropagator(t, backend, resolver, DefaultConfig())

	_, err := p.Propagate(context.Background(), event(ids[0], datatypes.Polarity("shrug")))
	if !errors.Is(err, faults.ErrInvalid) {
		t.Errorf("err = %v, want ErrInvalid", err)
	}
}

func TestPropagate_ResolverFailureDegradesToPartial(t *testing.T) {
	backend, resolver, ids := chainGraph()
	resolver.failAfter = 1 // first resolver call fails
	p := newPropagator(t, backend, resolver, DefaultConfig())

	result, err := p.Propagate(context.Background(), event(ids[0], datatypes.PolarityPositive))
	if err != nil {
		t.Fatalf("resolver failure must not fail the pass: %v", err)
	}
	if !result.Partial {
		t.Error("Partial = false, want true after resolver failure")
	}
	if len(result.Touched) != 1 {
		t.Errorf("touched %d elements, want just the hop-0 target", len(result.Touched))
	}
}

func TestPropagate_DanglingEdgeSkipped(t *testing.T) {
	target := uuid.New()
	ghost := uuid.New() // referenced by an edge but absent from the store
	backend := newMemBackend()
	backend.values[target] = truth.New(0.5, 0.5)
	resolver := &fakeResolver{edges: map[uuid.UUID][]datatypes.PropagationRelation{
		target: {{From: target, To: ghost, Kind: "contains", BaseWeight: 1.0}},
	}}
	p := newPropagator(t, backend, resolver, DefaultConfig())

	result, err := p.Propagate(context.Background(), event(target, datatypes.PolarityPositive))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Partial {
		t.Error("dangling edge should not mark the pass partial")
	}
	if len(result.Touched) != 1 {
		t.Errorf("touched %d elements, want 1", len(result.Touched))
	}
}
