package countcache

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"DocrestAPI/internal/logger"
)

const sweepFreq = time.Minute

type memoryEntry struct {
	total     int64
	createdAt time.Time
}

// Memory is an in-process cache with a TTL and an entry cap.
type Memory struct {
	mu         sync.Mutex
	items      map[string]*memoryEntry
	ttl        time.Duration
	maxEntries int
	lastSweep  time.Time
	now        func() time.Time
}

// NewMemory returns a cache whose entries expire after ttl. maxEntries <= 0
// means unbounded.
func NewMemory(ttl time.Duration, maxEntries int) *Memory {
	return &Memory{
		items:      make(map[string]*memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *Memory) Get(_ context.Context, key string) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.maybeSweepLocked(now)
	entry, ok := c.items[key]
	if !ok {
		return 0, false
	}
	if c.ttl > 0 && now.Sub(entry.createdAt) > c.ttl {
		delete(c.items, key)
		return 0, false
	}
	return entry.total, true
}

func (c *Memory) Set(_ context.Context, key string, total int64) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("count_cache_store_failed", map[string]any{
				"error": fmt.Sprintf("%v", r),
			})
		}
	}()
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.maybeSweepLocked(now)

	if _, exists := c.items[key]; !exists && c.maxEntries > 0 && len(c.items) >= c.maxEntries {
		logger.Warn("count_cache_limit_exceeded", map[string]any{
			"entries":     len(c.items),
			"max_entries": c.maxEntries,
		})
		return
	}
	c.items[key] = &memoryEntry{total: total, createdAt: now}
}

func (c *Memory) Invalidate(_ context.Context, collection string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := collectionPrefix(collection)
	for key := range c.items {
		if strings.HasPrefix(key, prefix) {
			delete(c.items, key)
		}
	}
	return nil
}

func (c *Memory) maybeSweepLocked(now time.Time) {
	if c.ttl <= 0 {
		return
	}
	if !c.lastSweep.IsZero() && now.Sub(c.lastSweep) < sweepFreq {
		return
	}
	for key, entry := range c.items {
		if now.Sub(entry.createdAt) > c.ttl {
			delete(c.items, key)
		}
	}
	c.lastSweep = now
}
