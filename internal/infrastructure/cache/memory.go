package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
)

// entry is a cached payload and its deadline
type entry struct {
	payload  []byte
	deadline time.Time
}

// MemoryCache is a thread-safe in-memory cache with TTL support
type MemoryCache struct {
	entries map[string]entry
	mutex   sync.RWMutex
	now     func() time.Time

	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryCache creates a cache that sweeps expired entries every interval.
// A non-positive interval defaults to 10 minutes.
func NewMemoryCache(interval time.Duration) *MemoryCache {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	c := &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go c.sweep(interval)
	return c
}

// Get returns a copy of the payload stored under key
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.deadline) {
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), e.payload...), nil
}

// Set stores a copy of value for ttl
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = entry{
		payload:  append([]byte(nil), value...),
		deadline: c.now().Add(ttl),
	}
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.entries, key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.entries[key]
	return ok && !c.now().After(e.deadline), nil
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryCache) removeExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.deadline) {
			delete(c.entries, key)
		}
	}
}

// Close stops the sweeper
func (c *MemoryCache) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Size returns the number of entries, expired ones included until swept
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.entries = make(map[string]entry)
}

// GetJSON decodes the value under key into out
func GetJSON(ctx context.Context, repo domain.CacheRepository, key string, out any) error {
	payload, err := repo.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(payload, out)
}

// SetJSON encodes value and stores it under key
func SetJSON(ctx context.Context, repo domain.CacheRepository, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return repo.Set(ctx, key, payload, ttl)
}
