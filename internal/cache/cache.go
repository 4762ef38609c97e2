// Package cache provides the in-memory TTL result cache keyed by document
// fingerprint. Two namespaces share one store: "raw:" entries hold provider
// extraction output and "norm:" entries hold final normalized results.
package cache

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Entry is a cached payload plus the bookkeeping used for savings reporting.
type Entry struct {
	Key         string          `json:"key"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
	ExpiresAt   time.Time       `json:"expiresAt"`
	TokensSaved int             `json:"tokensSaved"`
	CostSaved   float64         `json:"costSaved"`
}

// Stats is a point-in-time snapshot of cache effectiveness.
type Stats struct {
	Entries      int     `json:"entries"`
	Hits         int64   `json:"hits"`
	Misses       int64   `json:"misses"`
	Evictions    int64   `json:"evictions"`
	Expirations  int64   `json:"expirations"`
	HitRate      float64 `json:"hitRate"`
	TokensSaved  int64   `json:"tokensSaved"`
	CostSavedUSD float64 `json:"costSavedUsd"`
	MaxEntries   int     `json:"maxEntries"`
	TTLSeconds   float64 `json:"ttlSeconds"`
}

// Cache is a bounded TTL map with LRU eviction. Expired entries are dropped
// lazily on read.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	log        *zap.SugaredLogger

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
	tokensSaved int64
	costSaved   float64
}

func New(ttl time.Duration, maxEntries int, log *zap.SugaredLogger) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		log:        log.Named("cache"),
	}
}

// Get returns the live entry for key, or nil on a miss. An expired entry
// counts as a miss and is removed.
func (c *Cache) Get(key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	ent := el.Value.(*Entry)
	if c.now().After(ent.ExpiresAt) {
		c.removeLocked(el)
		c.expirations++
		c.misses++
		return nil
	}
	c.order.MoveToFront(el)
	c.hits++
	c.tokensSaved += int64(ent.TokensSaved)
	c.costSaved += ent.CostSaved
	return ent
}

// Put stores payload under key. tokensSaved and costSaved record what a
// future hit on this entry avoids re-spending.
func (c *Cache) Put(key string, payload json.RawMessage, tokensSaved int, costSaved float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	ent := &Entry{
		Key:         key,
		Payload:     payload,
		CreatedAt:   now,
		ExpiresAt:   now.Add(c.ttl),
		TokensSaved: tokensSaved,
		CostSaved:   costSaved,
	}
	if el, ok := c.entries[key]; ok {
		el.Value = ent
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(ent)
	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// Delete removes key if present.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
}

// Clear drops every entry and returns how many were removed. Hit and savings
// counters survive a clear.
func (c *Cache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.entries)
	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.log.Infow("cache cleared", "removed", n)
	return n
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.hits + c.misses
	rate := 0.0
	if total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return Stats{
		Entries:      len(c.entries),
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		Expirations:  c.expirations,
		HitRate:      rate,
		TokensSaved:  c.tokensSaved,
		CostSavedUSD: c.costSaved,
		MaxEntries:   c.maxEntries,
		TTLSeconds:   c.ttl.Seconds(),
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	ent := el.Value.(*Entry)
	delete(c.entries, ent.Key)
	c.order.Remove(el)
}
