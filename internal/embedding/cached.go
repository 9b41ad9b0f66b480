package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedEngine memoizes embeddings of an underlying engine in an LRU cache.
// Re-ingesting an unchanged catalog and repeating a query hit the cache
// instead of the embedding service.
type CachedEngine struct {
	inner EmbeddingEngine
	cache *lru.Cache[string, []float32]
}

// NewCachedEngine wraps inner with a cache holding up to size vectors.
func NewCachedEngine(inner EmbeddingEngine, size int) (*CachedEngine, error) {
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}
	return &CachedEngine{inner: inner, cache: cache}, nil
}

func cacheKey(task, text string) string {
	return task + "\x00" + text
}

func copyVec(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// Embed returns a cached vector or embeds text with the inner engine.
func (c *CachedEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	return c.EmbedWithTask(ctx, text, "")
}

// EmbedWithTask embeds text for a task type, forwarding the task when the
// inner engine supports it.
func (c *CachedEngine) EmbedWithTask(ctx context.Context, text, task string) ([]float32, error) {
	key := cacheKey(task, text)
	if v, ok := c.cache.Get(key); ok {
		return copyVec(v), nil
	}

	var (
		vec []float32
		err error
	)
	if te, ok := c.inner.(TaskEmbedder); ok && task != "" {
		vec, err = te.EmbedWithTask(ctx, text, task)
	} else {
		vec, err = c.inner.Embed(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, copyVec(vec))
	return vec, nil
}

// EmbedBatch embeds only the texts missing from the cache.
func (c *CachedEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if v, ok := c.cache.Get(cacheKey("", text)); ok {
			out[i] = copyVec(v)
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedding batch returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		c.cache.Add(cacheKey("", missing[j]), copyVec(vec))
		out[missingIdx[j]] = vec
	}
	return out, nil
}

// Dimensions returns the inner engine's dimensionality.
func (c *CachedEngine) Dimensions() int {
	return c.inner.Dimensions()
}

// Name returns the inner engine's name.
func (c *CachedEngine) Name() string {
	return c.inner.Name()
}

// HealthCheck forwards to the inner engine when it supports health checks.
func (c *CachedEngine) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

// Len returns the number of cached vectors.
func (c *CachedEngine) Len() int {
	return c.cache.Len()
}

// Purge empties the cache. Call after switching models.
func (c *CachedEngine) Purge() {
	c.cache.Purge()
}
