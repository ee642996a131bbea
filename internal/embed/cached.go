package embed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Cached wraps a *Client with an LRU cache keyed by
// sha256(text + model), grounded on the teacher's CachedEmbedder. It
// saves a round trip when the Scheduler's checksum re-check still decides
// to re-embed a chunk whose text is unchanged from a prior revision.
type Cached struct {
	inner *Client
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU of the given size.
func NewCached(inner *Client, size int) *Cached {
	c, _ := lru.New[string, []float32](size)
	return &Cached{inner: inner, cache: c}
}

func cacheKey(text, model string) string {
	sum := sha256.Sum256([]byte(text + "\x00" + model))
	return hex.EncodeToString(sum[:])
}

// EmbedOne serves from cache when available, otherwise delegates and
// stores the result.
func (c *Cached) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text, c.inner.ModelName())
	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}
	vec, err := c.inner.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, vec)
	return vec, nil
}

// EmbedMany serves whatever it can from cache and only sends the misses
// to the underlying Client, then reassembles in input order.
func (c *Cached) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missTexts []string
	var missIdx []int

	model := c.inner.ModelName()
	for i, t := range texts {
		key := cacheKey(t, model)
		if v, ok := c.cache.Get(key); ok {
			out[i] = v
			continue
		}
		missTexts = append(missTexts, t)
		missIdx = append(missIdx, i)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := c.inner.EmbedMany(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		out[idx] = vecs[j]
		c.cache.Add(cacheKey(missTexts[j], model), vecs[j])
	}
	return out, nil
}

// UpdateConfig clears the cache (entries are keyed by model name, so a
// model swap alone would not require this, but an endpoint swap against
// the same model name could silently serve stale vectors from a
// differently-configured server).
func (c *Cached) UpdateConfig(endpoint, model string) {
	c.inner.UpdateConfig(endpoint, model)
	c.cache.Purge()
}

// Dimensions delegates to the wrapped Client.
func (c *Cached) Dimensions() int { return c.inner.Dimensions() }

// ModelName delegates to the wrapped Client.
func (c *Cached) ModelName() string { return c.inner.ModelName() }

// Test delegates to the wrapped Client.
func (c *Cached) Test(ctx context.Context) (bool, int, error) { return c.inner.Test(ctx) }
