package pricing

import (
	"math/big"
	"sync"
)

type tokenMeta struct {
	Symbol   string
	Decimals uint8
}

// MetaCache caches token metadata by chain and address. It grows without bound.
type MetaCache struct {
	mu   sync.RWMutex
	data map[tokenKey]tokenMeta
}

func NewMetaCache() *MetaCache {
	return &MetaCache{data: make(map[tokenKey]tokenMeta)}
}

func (c *MetaCache) get(key tokenKey) (tokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[key]
	c.mu.RUnlock()
	return meta, ok
}

func (c *MetaCache) set(key tokenKey, meta tokenMeta) {
	c.mu.Lock()
	c.data[key] = meta
	c.mu.Unlock()
}

// Len returns the number of cached entries.
func (c *MetaCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// PriceCache caches USD prices by feed id. Entries never expire.
type PriceCache struct {
	mu   sync.RWMutex
	data map[string]*big.Rat
}

func NewPriceCache() *PriceCache {
	return &PriceCache{data: make(map[string]*big.Rat)}
}

func (c *PriceCache) get(feedID string) (*big.Rat, bool) {
	c.mu.RLock()
	price, ok := c.data[feedID]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return new(big.Rat).Set(price), true
}

func (c *PriceCache) set(feedID string, price *big.Rat) {
	c.mu.Lock()
	c.data[feedID] = new(big.Rat).Set(price)
	c.mu.Unlock()
}
