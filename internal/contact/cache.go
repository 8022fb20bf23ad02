package contact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedInferrer memoizes successful inferences by text. Sellers reuse the
// same profile text across many products.
type CachedInferrer struct {
	next  Inferrer
	cache *lru.Cache[string, Contact]
}

func NewCachedInferrer(next Inferrer, size int) (*CachedInferrer, error) {
	cache, err := lru.New[string, Contact](size)
	if err != nil {
		return nil, err
	}
	return &CachedInferrer{next: next, cache: cache}, nil
}

func (c *CachedInferrer) Infer(ctx context.Context, text string) (Contact, error) {
	sum := sha256.Sum256([]byte(text))
	key := hex.EncodeToString(sum[:])

	if v, ok := c.cache.Get(key); ok {
		return v, nil
	}

	v, err := c.next.Infer(ctx, text)
	if err != nil {
		return Contact{}, err
	}
	c.cache.Add(key, v)
	return v, nil
}
