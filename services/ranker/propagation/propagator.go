// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package propagation spreads feedback across the knowledge graph.
//
// A feedback event first updates its target element at full strength
// (hop 0, full truth revision), then walks outward through propagation
// relations breadth-first, applying a decayed confidence delta at each
// hop. The walk is bounded by a hop limit and a per-pass visited set, so
// it always terminates and a cycle can never amplify a signal.
package propagation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

const (
	// DefaultMaxHops bounds the breadth-first walk from the target.
	DefaultMaxHops = 2

	// DefaultDecayFactor attenuates the confidence delta per hop.
	DefaultDecayFactor = 0.5
)

// RelationResolver supplies the edges incident to an element. The graph
// store satisfies it; tests inject doubles with controlled failures.
type RelationResolver interface {
	GetRelations(ctx context.Context, id uuid.UUID) ([]datatypes.PropagationRelation, error)
}

// Config configures a propagation pass.
type Config struct {
	// MaxHops is the farthest hop distance updated. Zero means the
	// target element only.
	MaxHops int `json:"max_hops" yaml:"max_hops"`

	// DecayFactor in (0, 1) multiplies the delta once per hop, on top of
	// each edge's base weight.
	DecayFactor float64 `json:"decay_factor" yaml:"decay_factor"`
}

// DefaultConfig returns the default propagation bounds.
func DefaultConfig() Config {
	return Config{
		MaxHops:     DefaultMaxHops,
		DecayFactor: DefaultDecayFactor,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MaxHops < 0 {
		return fmt.Errorf("%w: max_hops must be non-negative", faults.ErrInvalid)
	}
	if c.DecayFactor <= 0 || c.DecayFactor >= 1 {
		return fmt.Errorf("%w: decay_factor must be in (0,1)", faults.ErrInvalid)
	}
	return nil
}

// Propagator applies feedback events to the graph.
//
// Thread Safety: Safe for concurrent use; per-element write ordering is
// delegated to the truth store.
type Propagator struct {
	truths    *truth.Store
	relations RelationResolver
	config    Config
	logger    *slog.Logger
}

// NewPropagator creates a propagator.
//
// Inputs:
//   - truths: Serialized truth store. Must not be nil.
//   - relations: Edge resolver, typically the graph store. Must not be nil.
//   - config: Hop limit and decay factor.
//   - logger: Logger for degraded passes. Nil uses slog.Default().
func NewPropagator(truths *truth.Store, relations RelationResolver, config Config, logger *slog.Logger) (*Propagator, error) {
	if truths == nil {
		return nil, errors.New("truth store must not be nil")
	}
	if relations == nil {
		return nil, errors.New("relation resolver must not be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Propagator{
		truths:    truths,
		relations: relations,
		config:    config,
		logger:    logger.With(slog.String("component", "propagator")),
	}, nil
}

// Propagate applies one feedback event to the graph.
//
// The target element receives a full-strength revision with the
// polarity's fixed evidence. Neighbors at hop n receive the additive
// fast-path delta base_delta × decay^n × edge_weight; multiple paths
// reaching the same element at its shortest hop distance accumulate into
// one summed delta, applied once. An element is never updated twice in
// one pass.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - event: The feedback event. Its target must exist in the graph.
//
// Outputs:
//   - *PropagationResult: Every (element, old, new, hop) tuple touched.
//     Partial is set when the relation resolver failed and the pass
//     degraded to fewer hops than configured.
//   - error: faults.ErrNotFound if the target is unknown,
//     faults.ErrInvalid for a bad polarity. Resolver failures are NOT
//     errors: they degrade the result instead, because propagation must
//     never fail the enclosing feedback submission.
func (p *Propagator) Propagate(ctx context.Context, event datatypes.FeedbackEvent) (*datatypes.PropagationResult, error) {
	if !event.Polarity.Valid() {
		return nil, fmt.Errorf("%w: polarity %q", faults.ErrInvalid, event.Polarity)
	}

	result := &datatypes.PropagationResult{EventID: event.ID}

	// Hop 0: full revision on the target. An unknown target surfaces.
	oldTruth, newTruth, err := p.truths.ApplyEvidence(ctx, event.TargetElement, event.Polarity.Evidence())
	if err != nil {
		return nil, err
	}
	result.Touched = append(result.Touched, datatypes.TouchedElement{
		ElementID:   event.TargetElement,
		OldTruth:    oldTruth,
		NewTruth:    newTruth,
		HopDistance: 0,
	})

	// visited maps element -> shortest hop distance at which it was
	// updated. Tracked per pass, never globally.
	visited := map[uuid.UUID]int{event.TargetElement: 0}
	frontier := []uuid.UUID{event.TargetElement}
	baseDelta := event.Polarity.ConfidenceDelta()

	for hop := 1; hop <= p.config.MaxHops && len(frontier) > 0; hop++ {
		decay := math.Pow(p.config.DecayFactor, float64(hop))

		// Accumulate per-neighbor deltas across all paths arriving at
		// this hop before applying, so multi-path arrivals sum instead
		// of overwriting.
		pending := make(map[uuid.UUID]float64)
		for _, id := range frontier {
			relations, err := p.relations.GetRelations(ctx, id)
			if err != nil {
				p.logger.Warn("relation resolver unavailable, degrading propagation",
					slog.String("event_id", event.ID.String()),
					slog.Int("hop", hop),
					slog.String("error", err.Error()))
				result.Partial = true
				return result, nil
			}

			for _, edge := range relations {
				neighbor := edge.To
				if neighbor == id {
					neighbor = edge.From
				}
				if _, seen := visited[neighbor]; seen {
					continue
				}
				pending[neighbor] += baseDelta * decay * edge.BaseWeight
			}
		}

		// Deterministic application order for reproducible audits.
		ids := make([]uuid.UUID, 0, len(pending))
		for id := range pending {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

		frontier = frontier[:0]
		for _, id := range ids {
			oldTruth, newTruth, err := p.truths.ApplyDelta(ctx, id, pending[id])
			if err != nil {
				if errors.Is(err, faults.ErrNotFound) {
					// Dangling edge; skip the neighbor, keep the pass.
					continue
				}
				p.logger.Warn("truth update failed during propagation",
					slog.String("element_id", id.String()),
					slog.Int("hop", hop),
					slog.String("error", err.Error()))
				result.Partial = true
				return result, nil
			}

			visited[id] = hop
			frontier = append(frontier, id)
			result.Touched = append(result.Touched, datatypes.TouchedElement{
				ElementID:   id,
				OldTruth:    oldTruth,
				NewTruth:    newTruth,
				HopDistance: hop,
			})
		}
	}

	return result, nil
}
