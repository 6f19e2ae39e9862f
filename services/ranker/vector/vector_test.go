// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/AleutianAI/Kodiak/services/ranker/faults"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	embedder := NewHashEmbedder()
	ctx := context.Background()

	first, err := embedder.Embed(ctx, "primary action button")
	require.NoError(t, err)
	second, err := embedder.Embed(ctx, "primary action button")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, EmbeddingDim)
}

func TestHashEmbedder_L2Normalized(t *testing.T) {
	embedder := NewHashEmbedder()
	embedding, err := embedder.Embed(context.Background(), "navigation drawer with icons")
	require.NoError(t, err)

	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_EmptyTextYieldsZeroVector(t *testing.T) {
	embedder := NewHashEmbedder()
	embedding, err := embedder.Embed(context.Background(), "   ")
	require.NoError(t, err)

	require.Len(t, embedding, EmbeddingDim)
	for i, v := range embedding {
		if v != 0 {
			t.Fatalf("dim %d = %f, want all zeros", i, v)
		}
	}
}

func TestHashEmbedder_CaseInsensitive(t *testing.T) {
	embedder := NewHashEmbedder()
	ctx := context.Background()

	lower, err := embedder.Embed(ctx, "modal dialog")
	require.NoError(t, err)
	upper, err := embedder.Embed(ctx, "MODAL Dialog")
	require.NoError(t, err)

	assert.Equal(t, lower, upper)
}

func TestHashEmbedder_DistinctTextsDiffer(t *testing.T) {
	embedder := NewHashEmbedder()
	ctx := context.Background()

	a, err := embedder.Embed(ctx, "button")
	require.NoError(t, err)
	b, err := embedder.Embed(ctx, "table")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestNewOpenAIEmbedder_RequiresAPIKey(t *testing.T) {
	_, err := NewOpenAIEmbedder("")
	assert.Error(t, err)

	embedder, err := NewOpenAIEmbedder("sk-test")
	require.NoError(t, err)
	assert.NotNil(t, embedder)
}

func TestNewWeaviateStore_Validation(t *testing.T) {
	_, err := NewWeaviateStore(WeaviateConfig{})
	assert.ErrorIs(t, err, faults.ErrInvalid)

	store, err := NewWeaviateStore(WeaviateConfig{URL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.Equal(t, DefaultClass, store.class)

	store, err = NewWeaviateStore(WeaviateConfig{
		URL:    "https://weaviate.internal:443",
		Class:  "CustomElement",
		APIKey: "secret",
	})
	require.NoError(t, err)
	assert.Equal(t, "CustomElement", store.class)
}

func TestWeaviateStore_SearchRejectsWrongDimension(t *testing.T) {
	store, err := NewWeaviateStore(WeaviateConfig{URL: "http://localhost:8080"})
	require.NoError(t, err)

	_, err = store.Search(context.Background(), make([]float32, 3), 10, Filter{})
	assert.ErrorIs(t, err, faults.ErrInvalid)
}

func TestWeaviateStore_ParseHits(t *testing.T) {
	store, err := NewWeaviateStore(WeaviateConfig{URL: "http://localhost:8080"})
	require.NoError(t, err)

	goodID := uuid.New()
	response := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				DefaultClass: []interface{}{
					map[string]interface{}{
						"element_id": goodID.String(),
						"_additional": map[string]interface{}{
							"certainty": 0.91,
						},
					},
					map[string]interface{}{
						// Unparseable id is skipped, not fatal.
						"element_id": "not-a-uuid",
						"_additional": map[string]interface{}{
							"certainty": 0.5,
						},
					},
					map[string]interface{}{
						// Missing certainty defaults to zero similarity.
						"element_id": uuid.New().String(),
					},
				},
			},
		},
	}

	hits, err := store.parseHits(response)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, goodID, hits[0].ElementID)
	assert.InDelta(t, 0.91, hits[0].Similarity, 1e-9)
	assert.Zero(t, hits[1].Similarity)
}

func TestWeaviateStore_ParseHitsEmptyClassIsEmptyResult(t *testing.T) {
	store, err := NewWeaviateStore(WeaviateConfig{URL: "http://localhost:8080"})
	require.NoError(t, err)

	hits, err := store.parseHits(&models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{},
		},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestWeaviateStore_ParseHitsMissingGetBlockFails(t *testing.T) {
	store, err := NewWeaviateStore(WeaviateConfig{URL: "http://localhost:8080"})
	require.NoError(t, err)

	_, err = store.parseHits(&models.GraphQLResponse{Data: map[string]models.JSONObject{}})
	assert.Error(t, err)
}

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "dial tcp: i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestWrapBackendError(t *testing.T) {
	assert.NoError(t, wrapBackendError(nil))

	err := wrapBackendError(context.DeadlineExceeded)
	assert.ErrorIs(t, err, faults.ErrTransient)

	err = wrapBackendError(fmt.Errorf("search: %w", timeoutNetError{}))
	assert.ErrorIs(t, err, faults.ErrTransient)

	err = wrapBackendError(errors.New("class does not exist"))
	assert.NotErrorIs(t, err, faults.ErrTransient)
}

// Guard against accidentally making the context parameter load-bearing in
// the local embedder; it must not block or inspect deadlines.
func TestHashEmbedder_IgnoresContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	embedding, err := NewHashEmbedder().Embed(ctx, "card")
	require.NoError(t, err)
	assert.Len(t, embedding, EmbeddingDim)
}
