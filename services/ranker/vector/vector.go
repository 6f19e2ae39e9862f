// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package vector defines the vector search contract consumed by the
// engine, the Weaviate-backed implementation, and the embedders that
// turn query text into vectors.
package vector

import (
	"context"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
)

// EmbeddingDim is the expected query embedding dimensionality
// (text-embedding-ada-002 and compatible models).
const EmbeddingDim = 1536

// Filter narrows a vector search.
type Filter struct {
	// DesignSystem restricts hits to one design system. Empty matches all.
	DesignSystem string
}

// Store is the vector search contract.
//
// Implementations must be safe for concurrent use and must return
// similarities in [0, 1], higher meaning closer.
type Store interface {
	// Search returns up to limit elements nearest to the embedding.
	Search(ctx context.Context, embedding []float32, limit int, filter Filter) ([]datatypes.VectorHit, error)
}

// Embedder turns query text into a search vector.
type Embedder interface {
	// Embed returns an EmbeddingDim-length vector for the text.
	Embed(ctx context.Context, text string) ([]float32, error)
}
