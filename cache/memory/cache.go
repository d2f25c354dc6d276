// Package memory implements an in-process LRU content cache.
package memory

import (
	"bytes"
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opencontainers/go-digest"
)

// DefaultMaxEntries bounds the entry count when no limit is configured.
const DefaultMaxEntries = 4096

// Cache implements cache.Cache in memory with least-recently-used eviction
// by entry count and, optionally, by total bytes.
// The cache is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lru      *lru.Cache[digest.Digest, []byte]
	maxBytes int64
	bytes    int64
}

// Option configures a memory cache.
type Option func(*config)

type config struct {
	maxEntries int
	maxBytes   int64
}

// WithMaxEntries sets the maximum number of cached entries.
func WithMaxEntries(n int) Option {
	return func(c *config) {
		c.maxEntries = n
	}
}

// WithMaxBytes sets the maximum total size of cached content.
// Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *config) {
		c.maxBytes = n
	}
}

// New creates a memory cache.
func New(opts ...Option) (*Cache, error) {
	cfg := config{maxEntries: DefaultMaxEntries}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	c := &Cache{maxBytes: cfg.maxBytes}
	l, err := lru.NewWithEvict(cfg.maxEntries, func(_ digest.Digest, v []byte) {
		c.bytes -= int64(len(v))
	})
	if err != nil {
		return nil, err
	}
	c.lru = l
	return c, nil
}

// Get returns a copy of the cached content for key.
func (c *Cache) Get(key digest.Digest) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Put stores a copy of data, evicting older entries as needed.
// Content larger than the byte limit is not cached.
func (c *Cache) Put(key digest.Digest, data []byte) error {
	size := int64(len(data))
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxBytes > 0 && size > c.maxBytes {
		return nil
	}
	if c.lru.Contains(key) {
		return nil
	}
	c.lru.Add(key, bytes.Clone(data))
	c.bytes += size
	if c.maxBytes > 0 {
		c.shrink(c.maxBytes)
	}
	return nil
}

// Delete removes cached content for key.
func (c *Cache) Delete(key digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Prune evicts least recently used entries until the cache is at or below
// targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	before := c.bytes
	c.shrink(targetBytes)
	return before - c.bytes, nil
}

// shrink evicts until bytes <= target. Callers hold mu.
func (c *Cache) shrink(target int64) {
	for c.bytes > target {
		if _, _, ok := c.lru.RemoveOldest(); !ok {
			return
		}
	}
}
