package geom

import (
	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/openpoi/placecache/internal/core/model"
)

type parsed struct {
	ll model.LatLng
	ok bool
}

// Cache memoizes Parse for string-valued geometries. The bounds path
// re-parses the full remote table on every viewport change, so repeated
// rows dominate; keys are xxhash sums so the cache never retains the raw
// column text.
type Cache struct {
	lru *lru.Cache[uint64, parsed]
}

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = 4096
	}
	c, err := lru.New[uint64, parsed](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: c}, nil
}

// Parse behaves exactly like the package-level Parse; only string values
// are memoized since object values are not hashable.
func (c *Cache) Parse(raw any) (model.LatLng, bool) {
	s, isString := raw.(string)
	if !isString || c == nil || c.lru == nil {
		return Parse(raw)
	}
	key := xxhash.Sum64String(s)
	if v, ok := c.lru.Get(key); ok {
		return v.ll, v.ok
	}
	ll, ok := Parse(raw)
	c.lru.Add(key, parsed{ll: ll, ok: ok})
	return ll, ok
}
