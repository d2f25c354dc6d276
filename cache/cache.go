// Package cache defines the content cache used to keep extracted archive
// files across reads.
//
// Keys are digests that identify a stored file by its location and storage
// parameters inside one archive source, so a key always names the same
// decoded bytes. Implementations live in the disk and memory subpackages.
package cache

import "github.com/opencontainers/go-digest"

// Cache stores decoded file content.
//
// Implementations should handle their own size limits and eviction policies.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached content for key.
	// Returns nil, false if content is not cached.
	// Callers may modify the returned slice.
	Get(key digest.Digest) ([]byte, bool)

	// Put stores content for key. The cache keeps its own copy.
	Put(key digest.Digest, data []byte) error

	// Delete removes cached content for key.
	// Implementations should treat missing entries as a no-op.
	Delete(key digest.Digest) error

	// MaxBytes returns the configured cache size limit (0 = unlimited).
	MaxBytes() int64

	// SizeBytes returns the current cache size in bytes.
	SizeBytes() int64

	// Prune removes cached entries until the cache is at or below targetBytes.
	// Returns the number of bytes freed.
	Prune(targetBytes int64) (int64, error)
}
