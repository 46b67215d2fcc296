package ml

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// ModelCache keeps recently trained forests so identical seeded requests skip
// training. Only seeded requests are cached; an unseeded forest is not reproducible.
type ModelCache struct {
	cache *lru.Cache[string, *RandomForest]
}

// NewModelCache returns nil when size is not positive, which disables caching.
func NewModelCache(size int) (*ModelCache, error) {
	if size <= 0 {
		return nil, nil
	}
	cache, err := lru.New[string, *RandomForest](size)
	if err != nil {
		return nil, err
	}
	return &ModelCache{cache: cache}, nil
}

// Key identifies a trained forest by its data, column layout and settings.
func (c *ModelCache) Key(fingerprint string, columns []string, hp Hyperparameters) string {
	seed := int64(0)
	if hp.Seed != nil {
		seed = *hp.Seed
	}
	return fmt.Sprintf("%s|%s|%d|%d|%d|%d",
		fingerprint, strings.Join(columns, ","), hp.TreeCount, hp.MaxFeatures, hp.MaxDepth, seed)
}

func (c *ModelCache) Get(key string) (*RandomForest, bool) {
	return c.cache.Get(key)
}

func (c *ModelCache) Add(key string, forest *RandomForest) {
	c.cache.Add(key, forest)
}

func (c *ModelCache) Len() int {
	return c.cache.Len()
}

func (c *ModelCache) Purge() {
	c.cache.Purge()
}
