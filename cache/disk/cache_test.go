package disk

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opencontainers/go-digest"
)

func TestCachePutGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := []byte("hello")
	key := digest.FromBytes([]byte("archive:test.txt"))
	if putErr := c.Put(key, content); putErr != nil {
		t.Fatalf("Put() error = %v", putErr)
	}

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("Get() content = %q, want %q", got, content)
	}
	if c.SizeBytes() != int64(len(content)) {
		t.Fatalf("SizeBytes() = %d, want %d", c.SizeBytes(), len(content))
	}

	hexHash := key.Encoded()
	path := filepath.Join(dir, "sha256", hexHash[:defaultShardPrefixLen], hexHash)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file at %s: %v", path, err)
	}
}

func TestCacheShardDisable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithShardPrefixLen(0))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := digest.FromString("flat")
	if err := c.Put(key, []byte("flat")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	path := filepath.Join(dir, "sha256", key.Encoded())
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected cache file at %s: %v", path, err)
	}
}

func TestNewInvalidOptions(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Fatal("New(\"\") error = nil, want error")
	}
	if _, err := New(t.TempDir(), WithShardPrefixLen(-1)); err == nil {
		t.Fatal("New(shard -1) error = nil, want error")
	}
	if _, err := New(t.TempDir(), WithMaxBytes(-1)); err == nil {
		t.Fatal("New(max -1) error = nil, want error")
	}
}

func TestCacheInvalidKey(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Put(digest.Digest("bogus"), []byte("x")); err == nil {
		t.Fatal("Put(bogus) error = nil, want error")
	}
	if _, ok := c.Get(digest.Digest("sha256:../../etc")); ok {
		t.Fatal("Get(traversal) ok = true")
	}
}

func TestCacheCompression(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithCompression(true))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	content := bytes.Repeat([]byte("compressible "), 4096)
	key := digest.FromString("big")
	if err := c.Put(key, content); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if c.SizeBytes() >= int64(len(content)) {
		t.Fatalf("SizeBytes() = %d, want less than %d", c.SizeBytes(), len(content))
	}
	got, ok := c.Get(key)
	if !ok || !bytes.Equal(got, content) {
		t.Fatalf("Get() ok = %v, content match = %v", ok, bytes.Equal(got, content))
	}

	// A corrupt entry is dropped on read.
	path := filepath.Join(dir, "sha256", key.Encoded()[:2], key.Encoded())
	if err := os.WriteFile(path, []byte("not zstd"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatal("Get(corrupt) ok = true, want false")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt entry still present: %v", err)
	}
}

func TestCacheAlreadyCached(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := digest.FromString("twice")
	if err := c.Put(key, []byte("first")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Put(key, []byte("second")); err != nil {
		t.Fatalf("Put() error = %v (should be no-op)", err)
	}
	got, _ := c.Get(key)
	if string(got) != "first" {
		t.Fatalf("Get() = %q, want %q", got, "first")
	}
	if c.SizeBytes() != 5 {
		t.Fatalf("SizeBytes() = %d, want 5", c.SizeBytes())
	}
}

func TestCacheDelete(t *testing.T) {
	t.Parallel()

	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	key := digest.FromString("gone")
	if err := c.Put(key, []byte("gone")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := c.Delete(key); err != nil {
		t.Fatalf("Delete(missing) error = %v", err)
	}
	if _, ok := c.Get(key); ok {
		t.Fatal("Get() after Delete ok = true")
	}
	if c.SizeBytes() != 0 {
		t.Fatalf("SizeBytes() = %d, want 0", c.SizeBytes())
	}
}

func TestCacheMaxBytesEvictsOldest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir, WithMaxBytes(10))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	old := digest.FromString("old")
	if err := c.Put(old, []byte("123456")); err != nil {
		t.Fatalf("Put(old) error = %v", err)
	}
	past := time.Now().Add(-time.Hour)
	oldPath := filepath.Join(dir, "sha256", old.Encoded()[:2], old.Encoded())
	if err := os.Chtimes(oldPath, past, past); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	fresh := digest.FromString("new")
	if err := c.Put(fresh, []byte("abcdef")); err != nil {
		t.Fatalf("Put(new) error = %v", err)
	}
	if _, ok := c.Get(old); ok {
		t.Fatal("old entry survived eviction")
	}
	if _, ok := c.Get(fresh); !ok {
		t.Fatal("new entry missing")
	}
	if c.SizeBytes() > 10 {
		t.Fatalf("SizeBytes() = %d, want <= 10", c.SizeBytes())
	}

	// Entries larger than the limit are skipped.
	huge := digest.FromString("huge")
	if err := c.Put(huge, make([]byte, 11)); err != nil {
		t.Fatalf("Put(huge) error = %v", err)
	}
	if _, ok := c.Get(huge); ok {
		t.Fatal("oversized entry cached")
	}
}

func TestCacheReopenCountsExisting(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := c.Put(digest.FromString("a"), []byte("abc")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	reopened, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if reopened.SizeBytes() != 3 {
		t.Fatalf("SizeBytes() = %d, want 3", reopened.SizeBytes())
	}
	freed, err := reopened.Prune(0)
	if err != nil {
		t.Fatalf("Prune() error = %v", err)
	}
	if freed != 3 || reopened.SizeBytes() != 0 {
		t.Fatalf("Prune() freed = %d size = %d", freed, reopened.SizeBytes())
	}
}
