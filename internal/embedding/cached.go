package embedding

import (
	"context"
	"slices"
	"time"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/jellydator/ttlcache/v3"
)

// Cached memoizes another embedder per exact text.
type Cached struct {
	next  embedding.Embedder
	cache *ttlcache.Cache[string, []float64]
}

// NewCached wraps next with a TTL cache bounded to capacity entries.
func NewCached(next embedding.Embedder, ttl time.Duration, capacity uint64) *Cached {
	opts := []ttlcache.Option[string, []float64]{ttlcache.WithTTL[string, []float64](ttl)}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[string, []float64](capacity))
	}
	return &Cached{next: next, cache: ttlcache.New(opts...)}
}

// EmbedStrings serves cached vectors and embeds the misses in one batch.
func (c *Cached) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	out := make([][]float64, len(texts))
	var missIdx []int
	var missText []string
	for i, text := range texts {
		if item := c.cache.Get(text); item != nil {
			out[i] = slices.Clone(item.Value())
			continue
		}
		missIdx = append(missIdx, i)
		missText = append(missText, text)
	}
	if len(missText) == 0 {
		return out, nil
	}

	vecs, err := c.next.EmbedStrings(ctx, missText, opts...)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		c.cache.Set(missText[j], slices.Clone(vecs[j]), ttlcache.DefaultTTL)
	}
	return out, nil
}

// Len reports the number of cached texts.
func (c *Cached) Len() int { return c.cache.Len() }
