package embedding

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"pdfchat/internal/domain"
)

// CachedEmbedder memoizes single-text embeddings for a fixed embedder
// instance. Batches of more than one text go straight to the wrapped embedder.
type CachedEmbedder struct {
	next  domain.Embedder
	cache *cache.Cache
}

// NewCachedEmbedder wraps next with a TTL cache. A non-positive ttl disables
// caching and returns next unchanged.
func NewCachedEmbedder(next domain.Embedder, ttl time.Duration) domain.Embedder {
	if ttl <= 0 {
		return next
	}
	return &CachedEmbedder{
		next:  next,
		cache: cache.New(ttl, 2*ttl),
	}
}

func (c *CachedEmbedder) Name() string { return c.next.Name() }

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) != 1 {
		return c.next.Embed(ctx, texts)
	}
	if v, ok := c.cache.Get(texts[0]); ok {
		return [][]float64{v.([]float64)}, nil
	}
	vecs, err := c.next.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) == 1 {
		c.cache.SetDefault(texts[0], vecs[0])
	}
	return vecs, nil
}

// Len reports the number of cached entries, expired ones included until the
// janitor runs.
func (c *CachedEmbedder) Len() int { return c.cache.ItemCount() }
