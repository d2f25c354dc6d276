package testutil

import (
	"bytes"
	"sync"

	"github.com/opencontainers/go-digest"
)

// MockCache implements a basic concurrency-safe cache for tests.
type MockCache struct {
	mu   sync.RWMutex
	data map[digest.Digest][]byte
	max  int64
	puts int
	gets int
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get returns a copy of the cached content.
func (c *MockCache) Get(d digest.Digest) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	data, ok := c.data[d]
	if !ok {
		return nil, false
	}
	return bytes.Clone(data), true
}

// Put stores a copy of data.
func (c *MockCache) Put(d digest.Digest, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[d] = bytes.Clone(data)
	return nil
}

// Delete removes cached content for the given key.
func (c *MockCache) Delete(d digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, d)
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *MockCache) MaxBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.max
}

// SizeBytes returns the current cache size in bytes.
func (c *MockCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var total int64
	for _, data := range c.data {
		total += int64(len(data))
	}
	return total
}

// Prune removes cached entries until the cache is at or below targetBytes.
func (c *MockCache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for _, data := range c.data {
		total += int64(len(data))
	}
	var freed int64
	for key, data := range c.data {
		if total <= targetBytes {
			break
		}
		delete(c.data, key)
		total -= int64(len(data))
		freed += int64(len(data))
	}
	return freed, nil
}

// Set overwrites an entry without counting it as a Put.
func (c *MockCache) Set(d digest.Digest, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[d] = data
}

// Keys returns the cached keys.
func (c *MockCache) Keys() []digest.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]digest.Digest, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Puts returns the number of Put calls.
func (c *MockCache) Puts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.puts
}

// Gets returns the number of Get calls.
func (c *MockCache) Gets() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gets
}
