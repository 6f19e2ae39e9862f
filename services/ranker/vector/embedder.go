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
	"hash/fnv"
	"math"
	"net"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AleutianAI/Kodiak/services/ranker/faults"
)

// OpenAIEmbedder produces query embeddings via the OpenAI embeddings
// API. Used for the query side only; element vectors are written by the
// extraction pipeline.
//
// Thread Safety: Safe for concurrent use.
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an embedder using text-embedding-ada-002
// (1536 dims), matching the dimensionality of the stored element vectors.
func NewOpenAIEmbedder(apiKey string) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key must not be empty")
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(apiKey),
		model:  openai.AdaEmbeddingV2,
	}, nil
}

// Embed returns the embedding for the text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", faults.ErrTransient, err)
		}
		var netErr net.Error
		if errors.As(err, &netErr) {
			return nil, fmt.Errorf("%w: %v", faults.ErrTransient, err)
		}
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response contained no data")
	}

	embedding := resp.Data[0].Embedding
	if len(embedding) != EmbeddingDim {
		return nil, fmt.Errorf("embedding has %d dims, want %d", len(embedding), EmbeddingDim)
	}
	return embedding, nil
}

// HashEmbedder is a deterministic, dependency-free embedder for local
// mode and tests. Each token hashes into a handful of dimensions; the
// result is L2-normalized so cosine comparisons behave. It carries no
// semantics beyond token overlap.
type HashEmbedder struct{}

// NewHashEmbedder creates a deterministic local embedder.
func NewHashEmbedder() *HashEmbedder {
	return &HashEmbedder{}
}

// Embed returns a deterministic EmbeddingDim-length vector for the text.
func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	embedding := make([]float32, EmbeddingDim)

	for _, token := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(token))
		seed := h.Sum64()

		// Spread each token across four dimensions with alternating sign.
		for i := 0; i < 4; i++ {
			dim := int((seed >> (i * 16)) & 0xffff % EmbeddingDim)
			sign := float32(1)
			if (seed>>(i*16+15))&1 == 1 {
				sign = -1
			}
			embedding[dim] += sign
		}
	}

	var norm float64
	for _, v := range embedding {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range embedding {
			embedding[i] *= scale
		}
	}
	return embedding, nil
}

var (
	_ Embedder = (*OpenAIEmbedder)(nil)
	_ Embedder = (*HashEmbedder)(nil)
)
