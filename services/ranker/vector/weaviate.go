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
	"log/slog"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
	"github.com/AleutianAI/Kodiak/services/ranker/faults"
)

// DefaultClass is the Weaviate class holding UI-component vectors.
const DefaultClass = "UIComponent"

var vectorTracer = otel.Tracer("kodiak.ranker.vector")

// WeaviateConfig configures the Weaviate-backed vector store.
type WeaviateConfig struct {
	// URL is the Weaviate server URL (e.g., "http://localhost:8080").
	URL string

	// Class is the Weaviate class to query. Default: DefaultClass.
	Class string

	// APIKey authenticates against Weaviate. Empty means anonymous.
	APIKey string

	// Logger for search operations. Nil uses slog.Default().
	Logger *slog.Logger
}

// WeaviateStore implements Store against a Weaviate instance using
// nearVector GraphQL queries. Certainty (always in [0,1]) is used as the
// similarity score rather than distance, which varies by metric.
//
// Thread Safety: Safe for concurrent use; the underlying client pools
// connections.
type WeaviateStore struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger
}

// NewWeaviateStore creates a Weaviate-backed vector store.
//
// Inputs:
//   - config: Connection settings. URL is required.
//
// Outputs:
//   - *WeaviateStore: Ready-to-use store.
//   - error: Non-nil if the URL is empty or the client cannot be built.
func NewWeaviateStore(config WeaviateConfig) (*WeaviateStore, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: weaviate url must not be empty", faults.ErrInvalid)
	}
	if config.Class == "" {
		config.Class = DefaultClass
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	cfg := weaviate.Config{Host: config.URL, Scheme: "http"}
	if strings.HasPrefix(config.URL, "https://") {
		cfg.Scheme = "https"
		cfg.Host = strings.TrimPrefix(config.URL, "https://")
	} else if strings.HasPrefix(config.URL, "http://") {
		cfg.Host = strings.TrimPrefix(config.URL, "http://")
	}
	if config.APIKey != "" {
		cfg.AuthConfig = auth.ApiKey{Value: config.APIKey}
	}

	client, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}

	return &WeaviateStore{
		client: client,
		class:  config.Class,
		logger: config.Logger.With(slog.String("component", "weaviate_vector_store")),
	}, nil
}

// Search runs a nearVector query and maps certainty onto similarity.
//
// Inputs:
//   - ctx: Context carrying the caller's timeout.
//   - embedding: EmbeddingDim-length query vector.
//   - limit: Maximum hits.
//   - filter: Optional design-system restriction.
//
// Outputs:
//   - []datatypes.VectorHit: Hits with similarity in [0, 1].
//   - error: Transient failures are wrapped in faults.ErrTransient so the
//     resilience layer retries them.
func (s *WeaviateStore) Search(ctx context.Context, embedding []float32, limit int, filter Filter) ([]datatypes.VectorHit, error) {
	if len(embedding) != EmbeddingDim {
		return nil, fmt.Errorf("%w: embedding has %d dims, want %d", faults.ErrInvalid, len(embedding), EmbeddingDim)
	}

	ctx, span := vectorTracer.Start(ctx, "vector.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("limit", limit),
		attribute.String("class", s.class),
	)

	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(embedding)

	// Certainty is requested instead of distance: always [0,1].
	fields := []graphql.Field{
		{Name: "element_id"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
		}},
	}

	query := s.client.GraphQL().Get().
		WithClassName(s.class).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit)

	if filter.DesignSystem != "" {
		query = query.WithWhere(filters.Where().
			WithPath([]string{"design_system"}).
			WithOperator(filters.Equal).
			WithValueString(filter.DesignSystem))
	}

	result, err := query.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate search failed")
		return nil, wrapBackendError(err)
	}
	if len(result.Errors) > 0 {
		err := fmt.Errorf("weaviate graphql: %s", result.Errors[0].Message)
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate graphql error")
		return nil, err
	}

	hits, err := s.parseHits(result)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	span.SetStatus(codes.Ok, "success")
	return hits, nil
}

// parseHits walks the untyped GraphQL response shape:
// Data["Get"][class] → []{element_id, _additional{certainty}}.
func (s *WeaviateStore) parseHits(result *models.GraphQLResponse) ([]datatypes.VectorHit, error) {
	get, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, errors.New("weaviate response missing Get block")
	}
	objects, ok := get[s.class].([]interface{})
	if !ok {
		// No results for the class is a valid empty result.
		return []datatypes.VectorHit{}, nil
	}

	hits := make([]datatypes.VectorHit, 0, len(objects))
	for _, raw := range objects {
		obj, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		idStr, _ := obj["element_id"].(string)
		id, err := uuid.Parse(idStr)
		if err != nil {
			s.logger.Warn("skipping hit with unparseable element_id",
				slog.String("element_id", idStr))
			continue
		}

		similarity := 0.0
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				similarity = certainty
			}
		}

		hits = append(hits, datatypes.VectorHit{ElementID: id, Similarity: similarity})
	}
	return hits, nil
}

// wrapBackendError tags timeouts and connection failures as transient so
// the retry policy and circuit breaker treat them uniformly.
func wrapBackendError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", faults.ErrTransient, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", faults.ErrTransient, err)
	}
	return fmt.Errorf("weaviate error: %w", err)
}

var _ Store = (*WeaviateStore)(nil)
