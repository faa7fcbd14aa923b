package session

import (
	"context"
	"sync"

	"github.com/lac-hong-legacy/lms_api/model"
)

// ProgressCache is the device-local copy of progress records, private to one
// (device, user) pair.
type ProgressCache interface {
	// Get reports a miss with ok=false. Malformed entries are misses.
	Get(ctx context.Context, key string) (rec *model.ProgressRecord, ok bool, err error)
	Set(ctx context.Context, key string, rec model.ProgressRecord) error
	Delete(ctx context.Context, key string) error
	// Clear drops every entry this cache owns.
	Clear(ctx context.Context) error
}

// CacheFactory builds the cache for a freshly bound (device, user) pair.
type CacheFactory func(deviceID, userID string) ProgressCache

type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]model.ProgressRecord
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]model.ProgressRecord)}
}

func MemoryCacheFactory(deviceID, userID string) ProgressCache {
	return NewMemoryCache()
}

func (c *MemoryCache) Get(_ context.Context, key string) (*model.ProgressRecord, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rec, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, rec model.ProgressRecord) error {
	c.mu.Lock()
	c.entries[key] = rec
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]model.ProgressRecord)
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
