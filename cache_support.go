package mpq

import (
	"fmt"

	"github.com/opencontainers/go-digest"
)

// cacheKey derives the content key of a resolved file.
//
// The key covers everything that determines the extracted bytes: the source
// identity, the block index and entry, the archive-relative offset and the
// file key. Two archives sharing a source ID and a block layout share keys.
func (a *Archive) cacheKey(r resolved, fileKey uint32) digest.Digest {
	return digest.FromString(fmt.Sprintf("mpq:v1:%s:%d:%d:%d:%d:%08x:%08x",
		a.sourceID,
		r.hash.BlockIndex,
		r.offset,
		r.block.CompressedSize,
		r.block.FileSize,
		uint32(r.block.Flags),
		fileKey,
	))
}

// cachedContent returns cached content for key. Entries whose length does
// not match the block's logical size are treated as corrupt and removed.
func (a *Archive) cachedContent(key digest.Digest, r resolved) ([]byte, bool) {
	data, ok := a.cache.Get(key)
	if !ok {
		return nil, false
	}
	if uint64(len(data)) != uint64(r.block.FileSize) {
		a.log().Warn("discarding corrupt cache entry", "path", r.path, "size", len(data), "want", r.block.FileSize)
		_ = a.cache.Delete(key) //nolint:errcheck // best-effort cache cleanup
		return nil, false
	}
	return data, true
}
