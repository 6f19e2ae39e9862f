// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

// MemoryStore is the in-memory Store implementation.
//
// Iteration order is deterministic (sorted by element id) so ranking and
// propagation tests are reproducible.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	elements map[uuid.UUID]datatypes.Element
	outgoing map[uuid.UUID][]datatypes.PropagationRelation
	incoming map[uuid.UUID][]datatypes.PropagationRelation
}

// NewMemoryStore creates an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		elements: make(map[uuid.UUID]datatypes.Element),
		outgoing: make(map[uuid.UUID][]datatypes.PropagationRelation),
		incoming: make(map[uuid.UUID][]datatypes.PropagationRelation),
	}
}

// GetElement returns an element by id.
func (s *MemoryStore) GetElement(ctx context.Context, id uuid.UUID) (datatypes.Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	element, ok := s.elements[id]
	if !ok {
		return datatypes.Element{}, fmt.Errorf("element %s: %w", id, faults.ErrNotFound)
	}
	return element, nil
}

// GetRelations returns all edges incident to an element.
func (s *MemoryStore) GetRelations(ctx context.Context, id uuid.UUID) ([]datatypes.PropagationRelation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.elements[id]; !ok {
		return nil, fmt.Errorf("element %s: %w", id, faults.ErrNotFound)
	}

	relations := make([]datatypes.PropagationRelation, 0,
		len(s.outgoing[id])+len(s.incoming[id]))
	relations = append(relations, s.outgoing[id]...)
	relations = append(relations, s.incoming[id]...)
	return relations, nil
}

// GetTruth returns the element's current truth value.
func (s *MemoryStore) GetTruth(ctx context.Context, id uuid.UUID) (truth.TruthValue, error) {
	element, err := s.GetElement(ctx, id)
	if err != nil {
		return truth.TruthValue{}, err
	}
	return element.Truth, nil
}

// UpdateTruth overwrites the element's truth value.
func (s *MemoryStore) UpdateTruth(ctx context.Context, id uuid.UUID, tv truth.TruthValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	element, ok := s.elements[id]
	if !ok {
		return fmt.Errorf("element %s: %w", id, faults.ErrNotFound)
	}
	element.Truth = tv
	s.elements[id] = element
	return nil
}

// PatternMatch returns elements matching any query term, in a
// deterministic order: descending match count, then ascending id.
func (s *MemoryStore) PatternMatch(ctx context.Context, terms []string, filter Filter, limit int) ([]datatypes.GraphHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lowered := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}

	type match struct {
		id    uuid.UUID
		count int
	}
	var matches []match

	for id, element := range s.elements {
		if filter.Category != "" && !strings.EqualFold(element.Category, filter.Category) {
			continue
		}
		if filter.DesignSystem != "" && !strings.EqualFold(element.DesignSystem, filter.DesignSystem) {
			continue
		}
		if count := matchCount(element, lowered); count > 0 {
			matches = append(matches, match{id: id, count: count})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].count != matches[j].count {
			return matches[i].count > matches[j].count
		}
		return matches[i].id.String() < matches[j].id.String()
	})

	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}

	hits := make([]datatypes.GraphHit, len(matches))
	for i, m := range matches {
		hits[i] = datatypes.GraphHit{
			ElementID: m.id,
			Degree:    s.degreeLocked(m.id),
		}
	}
	return hits, nil
}

// Degree returns the number of edges incident to an element.
func (s *MemoryStore) Degree(ctx context.Context, id uuid.UUID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degreeLocked(id), nil
}

// CountByCategory returns element counts grouped by category.
func (s *MemoryStore) CountByCategory(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, element := range s.elements {
		counts[element.Category]++
	}
	return counts, nil
}

// CountByDesignSystem returns element counts grouped by design system.
func (s *MemoryStore) CountByDesignSystem(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, element := range s.elements {
		counts[element.DesignSystem]++
	}
	return counts, nil
}

// UpsertElement inserts or replaces an element.
func (s *MemoryStore) UpsertElement(ctx context.Context, element datatypes.Element) error {
	if element.ID == uuid.Nil {
		return fmt.Errorf("%w: element id must not be nil", faults.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements[element.ID] = element
	return nil
}

// AddRelation inserts a directed propagation edge.
func (s *MemoryStore) AddRelation(ctx context.Context, relation datatypes.PropagationRelation) error {
	if relation.BaseWeight <= 0 || relation.BaseWeight > 1 {
		return fmt.Errorf("%w: base_weight %v outside (0,1]", faults.ErrInvalid, relation.BaseWeight)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.elements[relation.From]; !ok {
		return fmt.Errorf("relation source %s: %w", relation.From, faults.ErrNotFound)
	}
	if _, ok := s.elements[relation.To]; !ok {
		return fmt.Errorf("relation target %s: %w", relation.To, faults.ErrNotFound)
	}

	s.outgoing[relation.From] = append(s.outgoing[relation.From], relation)
	s.incoming[relation.To] = append(s.incoming[relation.To], relation)
	return nil
}

func (s *MemoryStore) degreeLocked(id uuid.UUID) int {
	return len(s.outgoing[id]) + len(s.incoming[id])
}

// matchCount counts query terms present in the element's category, tags,
// or CSS classes.
func matchCount(element datatypes.Element, terms []string) int {
	count := 0
	for _, term := range terms {
		if strings.Contains(strings.ToLower(element.Category), term) {
			count++
			continue
		}
		if containsFold(element.Tags, term) || containsFold(element.CSSClasses, term) {
			count++
		}
	}
	return count
}

func containsFold(values []string, term string) bool {
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), term) {
			return true
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
