// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph defines the knowledge-graph store contract consumed by
// the ranking engine, plus the in-memory implementation that ships as
// the default backend and test double.
//
// A production deployment would put a Neo4j-class client behind the same
// Store interface; the propagator, ranker, and orchestrator depend only
// on the contract.
package graph

import (
	"context"

	"github.com/google/uuid"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

// Filter narrows pattern matches and searches.
type Filter struct {
	// Category restricts results to one element category ("button",
	// "form", ...). Empty matches all.
	Category string

	// DesignSystem restricts results to one design system. Empty
	// matches all.
	DesignSystem string
}

// Store is the graph backend contract.
//
// Implementations must be safe for concurrent use. Read methods tolerate
// concurrent truth updates; callers that need read-modify-write truth
// semantics go through truth.Store, never directly through UpdateTruth.
type Store interface {
	// GetElement returns an element by id, or faults.ErrNotFound.
	GetElement(ctx context.Context, id uuid.UUID) (datatypes.Element, error)

	// GetRelations returns all propagation edges incident to an element,
	// both outgoing and incoming.
	GetRelations(ctx context.Context, id uuid.UUID) ([]datatypes.PropagationRelation, error)

	// GetTruth returns the element's current truth value, or
	// faults.ErrNotFound.
	GetTruth(ctx context.Context, id uuid.UUID) (truth.TruthValue, error)

	// UpdateTruth overwrites the element's truth value, or returns
	// faults.ErrNotFound.
	UpdateTruth(ctx context.Context, id uuid.UUID, tv truth.TruthValue) error

	// PatternMatch returns elements whose category, tags, or CSS classes
	// match any of the query terms, subject to the filter, up to limit.
	// Each hit carries the element's degree for connectivity scoring.
	PatternMatch(ctx context.Context, terms []string, filter Filter, limit int) ([]datatypes.GraphHit, error)

	// Degree returns the number of edges incident to an element.
	// Unknown elements have degree 0.
	Degree(ctx context.Context, id uuid.UUID) (int, error)

	// CountByCategory returns element counts grouped by category.
	CountByCategory(ctx context.Context) (map[string]int, error)

	// CountByDesignSystem returns element counts grouped by design system.
	CountByDesignSystem(ctx context.Context) (map[string]int, error)

	// UpsertElement inserts or replaces an element. Population path;
	// the engine itself only ever mutates truth values.
	UpsertElement(ctx context.Context, element datatypes.Element) error

	// AddRelation inserts a directed propagation edge. Both endpoints
	// must exist. BaseWeight outside (0, 1] is rejected as invalid.
	AddRelation(ctx context.Context, relation datatypes.PropagationRelation) error
}

var _ truth.Backend = (Store)(nil)
