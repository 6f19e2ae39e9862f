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
	"reflect"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
	"github.com/AleutianAI/Kodiak/services/ranker/truth"
)

func element(category, system string, tags ...string) datatypes.Element {
	return datatypes.Element{
		ID:           uuid.New(),
		Category:     category,
		DesignSystem: system,
		Truth:        truth.New(0.5, 0.5),
		Tags:         tags,
	}
}

func seedStore(t *testing.T, elements ...datatypes.Element) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	for _, e := range elements {
		require.NoError(t, s.UpsertElement(context.Background(), e))
	}
	return s
}

func TestMemoryStore_GetElement(t *testing.T) {
	ctx := context.Background()
	button := element("button", "material")
	s := seedStore(t, button)

	got, err := s.GetElement(ctx, button.ID)
	require.NoError(t, err)
	assert.Equal(t, button, got)

	_, err = s.GetElement(ctx, uuid.New())
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestMemoryStore_UpsertReplacesExisting(t *testing.T) {
	ctx := context.Background()
	e := element("button", "material")
	s := seedStore(t, e)

	e.Category = "icon-button"
	require.NoError(t, s.UpsertElement(ctx, e))

	got, err := s.GetElement(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "icon-button", got.Category)
}

func TestMemoryStore_UpsertRejectsNilID(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpsertElement(context.Background(), datatypes.Element{Category: "button"})
	assert.ErrorIs(t, err, faults.ErrInvalid)
}

func TestMemoryStore_TruthRoundTrip(t *testing.T) {
	ctx := context.Background()
	e := element("button", "material")
	s := seedStore(t, e)

	updated := truth.New(0.9, 0.7)
	require.NoError(t, s.UpdateTruth(ctx, e.ID, updated))

	got, err := s.GetTruth(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, updated, got)

	assert.ErrorIs(t, s.UpdateTruth(ctx, uuid.New(), updated), faults.ErrNotFound)
	_, err = s.GetTruth(ctx, uuid.New())
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestMemoryStore_RelationsAndDegree(t *testing.T) {
	ctx := context.Background()
	form := element("form", "material")
	input := element("input", "material")
	label := element("label", "material")
	s := seedStore(t, form, input, label)

	require.NoError(t, s.AddRelation(ctx, datatypes.PropagationRelation{
		From: form.ID, To: input.ID, Kind: "contains", BaseWeight: 1.0,
	}))
	require.NoError(t, s.AddRelation(ctx, datatypes.PropagationRelation{
		From: label.ID, To: input.ID, Kind: "references", BaseWeight: 0.5,
	}))

	// Incident edges include both directions.
	relations, err := s.GetRelations(ctx, input.ID)
	require.NoError(t, err)
	assert.Len(t, relations, 2)

	degree, err := s.Degree(ctx, input.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, degree)

	// Unknown elements have degree 0, not an error.
	degree, err = s.Degree(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, degree)

	_, err = s.GetRelations(ctx, uuid.New())
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestMemoryStore_AddRelationValidation(t *testing.T) {
	ctx := context.Background()
	a := element("button", "material")
	b := element("form", "material")
	s := seedStore(t, a, b)

	tests := []struct {
		name     string
		relation datatypes.PropagationRelation
		wantErr  error
	}{
		{
			"zero weight",
			datatypes.PropagationRelation{From: a.ID, To: b.ID, BaseWeight: 0},
			faults.ErrInvalid,
		},
		{
			"weight above one",
			datatypes.PropagationRelation{From: a.ID, To: b.ID, BaseWeight: 1.5},
			faults.ErrInvalid,
		},
		{
			"unknown source",
			datatypes.PropagationRelation{From: uuid.New(), To: b.ID, BaseWeight: 0.5},
			faults.ErrNotFound,
		},
		{
			"unknown target",
			datatypes.PropagationRelation{From: a.ID, To: uuid.New(), BaseWeight: 0.5},
			faults.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, s.AddRelation(ctx, tt.relation), tt.wantErr)
		})
	}
}

func TestMemoryStore_PatternMatch(t *testing.T) {
	ctx := context.Background()
	primary := element("button", "material", "primary", "cta")
	secondary := element("button", "material", "secondary")
	card := element("card", "material", "primary")
	antButton := element("button", "ant", "primary")
	s := seedStore(t, primary, secondary, card, antButton)

	t.Run("matches category and tags", func(t *testing.T) {
		hits, err := s.PatternMatch(ctx, []string{"button", "primary"}, Filter{}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 4)
		// Elements matching both terms outrank single-term matches.
		twoTerm := map[uuid.UUID]bool{primary.ID: true, antButton.ID: true}
		assert.True(t, twoTerm[hits[0].ElementID])
		assert.True(t, twoTerm[hits[1].ElementID])
	})

	t.Run("design system filter", func(t *testing.T) {
		hits, err := s.PatternMatch(ctx, []string{"primary"}, Filter{DesignSystem: "material"}, 10)
		require.NoError(t, err)
		got := make(map[uuid.UUID]bool)
		for _, h := range hits {
			got[h.ElementID] = true
		}
		assert.Equal(t, map[uuid.UUID]bool{primary.ID: true, card.ID: true}, got)
	})

	t.Run("category filter", func(t *testing.T) {
		hits, err := s.PatternMatch(ctx, []string{"primary"}, Filter{Category: "card"}, 10)
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, card.ID, hits[0].ElementID)
	})

	t.Run("limit truncates", func(t *testing.T) {
		hits, err := s.PatternMatch(ctx, []string{"button"}, Filter{}, 2)
		require.NoError(t, err)
		assert.Len(t, hits, 2)
	})

	t.Run("blank terms ignored", func(t *testing.T) {
		hits, err := s.PatternMatch(ctx, []string{"  ", ""}, Filter{}, 10)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("deterministic ordering", func(t *testing.T) {
		first, err := s.PatternMatch(ctx, []string{"button", "primary"}, Filter{}, 10)
		require.NoError(t, err)
		for i := 0; i < 10; i++ {
			again, err := s.PatternMatch(ctx, []string{"button", "primary"}, Filter{}, 10)
			require.NoError(t, err)
			if !reflect.DeepEqual(first, again) {
				t.Fatalf("run %d produced a different ordering", i)
			}
		}
	})
}

func TestMemoryStore_Counts(t *testing.T) {
	ctx := context.Background()
	s := seedStore(t,
		element("button", "material"),
		element("button", "ant"),
		element("card", "material"),
	)

	byCategory, err := s.CountByCategory(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"button": 2, "card": 1}, byCategory)

	bySystem, err := s.CountByDesignSystem(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"material": 2, "ant": 1}, bySystem)
}

func TestMemoryStore_PatternMatchIncludesDegree(t *testing.T) {
	ctx := context.Background()
	form := element("form", "material", "signup")
	input := element("input", "material", "signup")
	s := seedStore(t, form, input)
	require.NoError(t, s.AddRelation(ctx, datatypes.PropagationRelation{
		From: form.ID, To: input.ID, Kind: "contains", BaseWeight: 1.0,
	}))

	hits, err := s.PatternMatch(ctx, []string{"signup"}, Filter{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, 1, h.Degree, "element %s", h.ElementID)
	}
}
