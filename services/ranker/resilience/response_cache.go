// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"container/list"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/Kodiak/services/ranker/datatypes"
)

// CacheConfig configures the response cache.
type CacheConfig struct {
	// Capacity is the maximum number of cached queries. Default: 256
	Capacity int `json:"capacity" yaml:"capacity"`

	// TTL is how long an entry stays servable. In cached-only mode a
	// stale entry is still better than nothing, so Get distinguishes
	// fresh from stale rather than deleting on expiry. Default: 5m
	TTL time.Duration `json:"ttl" yaml:"ttl"`
}

// DefaultCacheConfig returns sensible defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Capacity: 256,
		TTL:      5 * time.Minute,
	}
}

// cacheEntry is one cached ranked result list.
type cacheEntry struct {
	key      string
	results  []datatypes.ScoredElement
	storedAt time.Time
}

// ResponseCache is a bounded LRU of recent successful query results,
// keyed by normalized query text. It backs cached-only operation when
// both retrieval backends are down, and deduplicates concurrent
// identical queries via singleflight.
//
// Thread Safety: Safe for concurrent use.
type ResponseCache struct {
	config CacheConfig

	mu      sync.Mutex
	order   *list.List               // front = most recently used
	entries map[string]*list.Element // key -> *list.Element holding *cacheEntry

	group singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResponseCache creates an empty cache.
func NewResponseCache(config CacheConfig) *ResponseCache {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCacheConfig().Capacity
	}
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig().TTL
	}
	return &ResponseCache{
		config:  config,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// NormalizeQuery canonicalizes query text for use as a cache key:
// lowercase, whitespace collapsed.
func NormalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// QueryKey builds the cache key for one query: the normalized text plus
// the filter parameters that change its result set.
func QueryKey(normalized, designSystem string, limit int) string {
	return fmt.Sprintf("%s|%s|%d", normalized, designSystem, limit)
}

// Get returns the cached results for a normalized query key.
//
// Outputs:
//   - results: The cached ranked list, nil on miss.
//   - fresh: True if the entry is within its TTL.
//   - ok: True if an entry exists at all (fresh or stale).
//
// Thread Safety: Safe for concurrent use.
func (c *ResponseCache) Get(key string) (results []datatypes.ScoredElement, fresh, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.entries[key]
	if !exists {
		c.misses.Add(1)
		return nil, false, false
	}

	c.order.MoveToFront(elem)
	entry := elem.Value.(*cacheEntry)
	c.hits.Add(1)
	return entry.results, time.Since(entry.storedAt) < c.config.TTL, true
}

// Put stores results for a normalized query key, evicting the least
// recently used entry when over capacity.
//
// Thread Safety: Safe for concurrent use.
func (c *ResponseCache) Put(key string, results []datatypes.ScoredElement) {
	if key == "" || len(results) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.entries[key]; exists {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.results = results
		entry.storedAt = time.Now()
		return
	}

	elem := c.order.PushFront(&cacheEntry{
		key:      key,
		results:  results,
		storedAt: time.Now(),
	})
	c.entries[key] = elem

	for c.order.Len() > c.config.Capacity {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

// GetOrCompute returns fresh cached results or runs compute, storing its
// output. Concurrent calls for the same key share one compute invocation.
//
// Inputs:
//   - ctx: Context passed through to compute.
//   - key: Normalized query key.
//   - compute: Produces the ranked results on a miss.
//
// Thread Safety: Safe for concurrent use.
func (c *ResponseCache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]datatypes.ScoredElement, error)) ([]datatypes.ScoredElement, error) {
	if results, fresh, ok := c.Get(key); ok && fresh {
		return results, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		results, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Put(key, results)
		return results, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]datatypes.ScoredElement), nil
}

// SimilarityFor scans cached responses carrying the given normalized
// query and returns the semantic similarity recorded for one element.
// Keys are built by QueryKey, so entries for any design system or limit
// under the same query text match. The scan does not touch LRU order.
//
// Outputs:
//   - float64: The element's cached semantic similarity.
//   - bool: False when no cached ranking for the query holds the element.
//
// Thread Safety: Safe for concurrent use.
func (c *ResponseCache) SimilarityFor(normalizedQuery string, elementID uuid.UUID) (float64, bool) {
	if normalizedQuery == "" {
		return 0, false
	}
	prefix := normalizedQuery + "|"

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, elem := range c.entries {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		for _, scored := range elem.Value.(*cacheEntry).results {
			if scored.ElementID == elementID {
				return scored.SemanticSimilarity, true
			}
		}
	}
	return 0, false
}

// Stats returns hit/miss counters and the current size.
func (c *ResponseCache) Stats() (hits, misses int64, size int) {
	c.mu.Lock()
	size = c.order.Len()
	c.mu.Unlock()
	return c.hits.Load(), c.misses.Load(), size
}
