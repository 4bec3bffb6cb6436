package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/core/ports"
)

// GenerationSearcher is a searcher whose results change only when its
// generation counter moves.
type GenerationSearcher interface {
	ports.VectorSearcher
	Generation() uint64
}

// SearchCache memoizes search results per (query, k, filter). Entries from
// an older index generation or past their TTL are dropped on access.
type SearchCache struct {
	next GenerationSearcher

	mu      sync.Mutex
	entries map[string]*cacheEntry
	order   []string
	maxSize int
	ttl     time.Duration
	now     func() time.Time
}

type cacheEntry struct {
	results  []domain.RetrievalResult
	storedAt time.Time
	indexGen uint64
}

func NewSearchCache(next GenerationSearcher, maxSize int, ttl time.Duration) *SearchCache {
	if maxSize <= 0 {
		maxSize = 256
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SearchCache{
		next:    next,
		entries: make(map[string]*cacheEntry),
		order:   make([]string, 0, maxSize),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *SearchCache) Search(ctx context.Context, query string, k int, filter domain.SearchFilter) ([]domain.RetrievalResult, error) {
	key := cacheKey(query, k, filter)
	gen := c.next.Generation()
	if results, ok := c.get(key, gen); ok {
		return results, nil
	}

	results, err := c.next.Search(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	c.put(key, gen, results)
	return cloneResults(results), nil
}

func (c *SearchCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *SearchCache) get(key string, gen uint64) ([]domain.RetrievalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if entry.indexGen != gen || c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}
	c.removeFromOrder(key)
	c.order = append(c.order, key)
	return cloneResults(entry.results), true
}

func (c *SearchCache) put(key string, gen uint64, results []domain.RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeFromOrder(key)
	} else if len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[key] = &cacheEntry{
		results:  cloneResults(results),
		storedAt: c.now(),
		indexGen: gen,
	}
	c.order = append(c.order, key)
}

func (c *SearchCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

func cacheKey(query string, k int, filter domain.SearchFilter) string {
	h := sha256.New()
	for _, part := range []string{query, strconv.Itoa(k), filter.Source, filter.DocType} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func cloneResults(in []domain.RetrievalResult) []domain.RetrievalResult {
	return append([]domain.RetrievalResult(nil), in...)
}
