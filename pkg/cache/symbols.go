package cache

import (
	"hash/fnv"
	"sync"
	"time"

	"scalping-core/pkg/broker"
)

const numShards = 16

// SymbolCache is a sharded TTL cache for symbol metadata. Trading constraints
// (digits, volume bounds, contract size) change rarely, so callers on the hot
// path can skip a bridge round-trip per placement.
type SymbolCache struct {
	ttl    time.Duration
	shards [numShards]*symbolShard
}

type symbolShard struct {
	mu    sync.RWMutex
	items map[string]symbolEntry
}

type symbolEntry struct {
	info      broker.SymbolInfo
	updatedAt time.Time
}

// NewSymbolCache creates a cache whose entries expire after ttl.
func NewSymbolCache(ttl time.Duration) *SymbolCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	c := &SymbolCache{ttl: ttl}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &symbolShard{items: make(map[string]symbolEntry)}
	}
	return c
}

func (c *SymbolCache) getShard(key string) *symbolShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores symbol metadata.
func (c *SymbolCache) Set(symbol string, info broker.SymbolInfo) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	shard.items[symbol] = symbolEntry{info: info, updatedAt: time.Now()}
	shard.mu.Unlock()
}

// Get retrieves unexpired symbol metadata.
func (c *SymbolCache) Get(symbol string) (broker.SymbolInfo, bool) {
	shard := c.getShard(symbol)
	shard.mu.RLock()
	entry, ok := shard.items[symbol]
	shard.mu.RUnlock()
	if !ok || time.Since(entry.updatedAt) > c.ttl {
		return broker.SymbolInfo{}, false
	}
	return entry.info, true
}

// Delete removes a symbol from the cache.
func (c *SymbolCache) Delete(symbol string) {
	shard := c.getShard(symbol)
	shard.mu.Lock()
	delete(shard.items, symbol)
	shard.mu.Unlock()
}

// Len returns total items across all shards, expired or not.
func (c *SymbolCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes expired entries and returns how many were dropped.
func (c *SymbolCache) Cleanup() int {
	removed := 0
	cutoff := time.Now().Add(-c.ttl)

	for _, shard := range c.shards {
		shard.mu.Lock()
		for sym, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, sym)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}
