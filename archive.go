package mpq

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/mpq/cache"
	"github.com/meigma/mpq/internal/attributes"
	"github.com/meigma/mpq/internal/blocktable"
	"github.com/meigma/mpq/internal/codec"
	"github.com/meigma/mpq/internal/crypt"
	"github.com/meigma/mpq/internal/hashtable"
	"github.com/meigma/mpq/internal/header"
	"github.com/meigma/mpq/internal/listfile"
	"github.com/meigma/mpq/internal/sector"
	"github.com/meigma/mpq/internal/sizing"
)

// DefaultMaxFileSize is the default limit on a single file's stored and
// logical size.
const DefaultMaxFileSize = 1 << 30

// Names of the special files an archive may carry.
const (
	ListfileName   = listfile.Name
	AttributesName = attributes.Name
)

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
	_ io.Closer     = (*Archive)(nil)
)

// Archive provides read access to the files of an MPQ archive.
//
// The hash and block tables are loaded and decrypted once by New and are
// immutable afterwards. All reads go through io.ReaderAt, so an Archive is
// safe for concurrent use. After Close every operation fails with ErrClosed.
type Archive struct {
	mu     sync.RWMutex
	closed bool
	closer io.Closer // released by Close; nil for caller-owned sources

	src       ByteSource
	header    *header.Header
	hashes    *hashtable.Table
	blocks    *blocktable.Table
	extractor *sector.Extractor
	attrs     *attributes.Attributes // nil when absent or unreadable
	manifest  []string

	locale          uint16
	localeSet       bool
	policy          ChecksumPolicy
	maxFileSize     uint64
	codecs          []codec.Option
	external        bool
	listfilePaths   []string
	listfileEntries []string
	sourceID        string
	cache           cache.Cache        // nil = no caching
	readGroup       singleflight.Group // zero value is valid
	logger          *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// New reads the archive header and tables from src.
//
// The source is not closed by Close; the caller keeps ownership. A source
// that does not start with an archive or user data signature fails with
// ErrInvalidSignature, and no Archive is produced on any error.
func New(src ByteSource, opts ...Option) (*Archive, error) {
	a := &Archive{
		src:         src,
		policy:      ChecksumWarn,
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.sourceID == "" {
		a.sourceID = src.SourceID()
	}

	h, err := header.Read(src)
	if err != nil {
		return nil, err
	}
	a.header = h
	if err := a.loadTables(); err != nil {
		return nil, err
	}

	a.extractor = sector.NewExtractor(src,
		sector.WithCodecs(codec.NewRegistry(a.codecs...)),
		sector.WithChecksumPolicy(a.policy),
		sector.WithMaxFileSize(a.maxFileSize),
		sector.WithLogger(a.logger),
	)
	a.log().Debug("archive opened",
		"version", h.FormatVersion,
		"archive_offset", h.ArchiveOffset,
		"sector_size", h.SectorSize(),
		"hash_slots", a.hashes.Len(),
		"blocks", a.blocks.Len(),
		"hi_block_table", a.blocks.HasHighBits())

	a.loadAttributes()
	if err := a.loadManifest(); err != nil {
		return nil, err
	}
	return a, nil
}

// Open opens the archive file at path.
//
// The returned Archive owns the file handle and releases it on Close.
func Open(path string, opts ...Option) (*Archive, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return nil, err
	}
	src, err := newFileSource(f)
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup on open failure
		return nil, err
	}
	a, err := New(src, opts...)
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup on open failure
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	a.closer = f
	return a, nil
}

// loadTables reads, decrypts and parses the hash, block and extended block tables.
func (a *Archive) loadTables() error {
	h := a.header

	blob, err := a.readTable(h.HashTableOffset(), h.HashTableEntries, hashtable.EntrySize)
	if err != nil {
		return fmt.Errorf("hash table: %w", err)
	}
	if err := hashtable.Decrypt(blob); err != nil {
		return fmt.Errorf("hash table: %w", err)
	}
	if a.hashes, err = hashtable.Load(blob, h.HashTableEntries); err != nil {
		return err
	}

	blob, err = a.readTable(h.BlockTableOffset(), h.BlockTableEntries, blocktable.EntrySize)
	if err != nil {
		return fmt.Errorf("block table: %w", err)
	}
	if err := blocktable.Decrypt(blob); err != nil {
		return fmt.Errorf("block table: %w", err)
	}
	if a.blocks, err = blocktable.Load(blob, h.BlockTableEntries); err != nil {
		return err
	}

	if off, ok := h.HiBlockTableOffset(); ok {
		blob, err = a.readTable(off, h.BlockTableEntries, blocktable.HiEntrySize)
		if err != nil {
			return fmt.Errorf("extended block table: %w", err)
		}
		if err := a.blocks.AttachHighBits(blob); err != nil {
			return err
		}
	}
	return nil
}

// readTable reads count entries of entrySize bytes at an archive-relative offset.
func (a *Archive) readTable(rel uint64, count uint32, entrySize uint64) ([]byte, error) {
	n, ok := sizing.MulUint64(uint64(count), entrySize)
	if !ok {
		return nil, ErrSizeOverflow
	}
	off, ok := a.header.Absolute(rel)
	if !ok {
		return nil, ErrSizeOverflow
	}
	end, ok := sizing.AddUint64(off, n)
	if !ok {
		return nil, ErrSizeOverflow
	}
	if size := a.src.Size(); size >= 0 && end > uint64(size) {
		return nil, fmt.Errorf("%w: table ends at %d, source is %d bytes", ErrTruncatedRead, end, size)
	}
	return sizing.ReadFullAt(a.src, off, n)
}

// loadAttributes parses the (attributes) file when present. Failures are
// logged and leave the archive without attributes.
func (a *Archive) loadAttributes() {
	r, err := a.resolve(AttributesName)
	if err != nil {
		return
	}
	req, err := a.request(r)
	if err != nil {
		a.log().Warn("attributes unreadable", "error", err)
		return
	}
	data, err := a.extractor.Extract(req)
	if err != nil {
		a.log().Warn("attributes unreadable", "error", err)
		return
	}
	attrs, err := attributes.Parse(data, a.header.BlockTableEntries)
	if err != nil {
		a.log().Warn("attributes unreadable", "error", err)
		return
	}
	a.attrs = attrs
	a.log().Debug("attributes loaded", "entries", attrs.Len(), "flags", attrs.Flags)
}

// Close releases the underlying file when the Archive owns it.
// Close is idempotent; later operations fail with ErrClosed.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	if a.closer == nil {
		return nil
	}
	err := a.closer.Close()
	a.closer = nil
	return err
}

// Header returns a copy of the parsed archive header.
func (a *Archive) Header() Header {
	return *a.header
}

// ContainsFile reports whether path has a hash table entry.
//
// A file that exists may still be a deletion marker. ContainsFile returns
// false after Close.
func (a *Archive) ContainsFile(path string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	_, ok := a.lookup(path)
	return ok
}

// FileInfo returns the stored metadata for path without extracting it.
// Deletion markers are reported like any other file.
func (a *Archive) FileInfo(path string) (FileInfo, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return FileInfo{}, &fs.PathError{Op: "info", Path: path, Err: ErrClosed}
	}
	r, err := a.resolve(path)
	if err != nil {
		return FileInfo{}, &fs.PathError{Op: "info", Path: path, Err: err}
	}
	return a.fileInfo(r), nil
}

// ExtractFile returns the full content of the file at the archive path.
//
// Deletion markers fail with ErrFileDeleted. No partial content is returned
// on error. When a cache is configured, content is served from it and
// concurrent extractions of the same file are deduplicated.
func (a *Archive) ExtractFile(path string) ([]byte, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, &fs.PathError{Op: "extract", Path: path, Err: ErrClosed}
	}
	r, err := a.resolve(path)
	if err != nil {
		return nil, &fs.PathError{Op: "extract", Path: path, Err: err}
	}
	data, err := a.extract(r)
	if err != nil {
		return nil, &fs.PathError{Op: "extract", Path: path, Err: err}
	}
	return data, nil
}

// resolved is a path matched to its hash and block table entries.
type resolved struct {
	path   string
	hash   hashtable.Entry
	block  blocktable.Entry
	offset uint64 // archive-relative
}

// lookup finds the hash table entry for path.
func (a *Archive) lookup(path string) (hashtable.Entry, bool) {
	if a.localeSet {
		return a.hashes.FindLocale(path, a.locale)
	}
	return a.hashes.Find(path)
}

// resolve finds the hash and block table entries for path.
func (a *Archive) resolve(path string) (resolved, error) {
	he, ok := a.lookup(path)
	if !ok {
		return resolved{}, ErrFileNotFound
	}
	be, err := a.blocks.Entry(he.BlockIndex)
	if err != nil {
		return resolved{}, err
	}
	off, err := a.blocks.PhysicalOffset(he.BlockIndex)
	if err != nil {
		return resolved{}, err
	}
	return resolved{path: path, hash: he, block: be, offset: off}, nil
}

// request builds the extraction request for a resolved file.
func (a *Archive) request(r resolved) (sector.Request, error) {
	abs, ok := a.header.Absolute(r.offset)
	if !ok {
		return sector.Request{}, ErrSizeOverflow
	}
	req := sector.Request{
		Path:       r.path,
		Offset:     abs,
		Block:      r.block,
		SectorSize: a.header.SectorSize(),
	}
	if r.block.Flags.IsEncrypted() {
		req.Key = crypt.FileKey(r.path, r.block.Flags.HasAdjustedKey(), r.offset, r.block.FileSize)
	}
	return req, nil
}

func (a *Archive) fileInfo(r resolved) FileInfo {
	fi := FileInfo{
		Path:           r.path,
		Locale:         r.hash.Locale,
		Platform:       r.hash.Platform,
		BlockIndex:     r.hash.BlockIndex,
		Offset:         r.offset,
		CompressedSize: r.block.CompressedSize,
		FileSize:       r.block.FileSize,
		Flags:          r.block.Flags,
		Plan:           sector.PlanFor(r.block.Flags),
	}
	if a.attrs == nil {
		return fi
	}
	if e, ok := a.attrs.Entry(r.hash.BlockIndex); ok {
		fi.CRC32 = e.CRC32
		fi.MD5 = e.MD5
		fi.ModTime = e.ModTime()
		fi.HasAttributes = e.CRC32 != 0 || e.Filetime != 0 || e.MD5 != ([16]byte{})
	}
	return fi
}

// extract returns the content of a resolved file, consulting the cache.
func (a *Archive) extract(r resolved) ([]byte, error) {
	if r.block.Flags.IsDeleted() || !r.block.Flags.IsFile() {
		return nil, ErrFileDeleted
	}
	req, err := a.request(r)
	if err != nil {
		return nil, err
	}
	if a.cache == nil {
		return a.extractVerified(r, req)
	}

	key := a.cacheKey(r, req.Key)
	if data, ok := a.cachedContent(key, r); ok {
		a.log().Debug("file cache hit", "path", r.path)
		return data, nil
	}
	a.log().Debug("file cache miss", "path", r.path)

	result, err, shared := a.readGroup.Do(key.String(), func() (any, error) {
		if data, ok := a.cachedContent(key, r); ok {
			return data, nil
		}
		data, err := a.extractVerified(r, req)
		if err != nil {
			return nil, err
		}
		if err := a.cache.Put(key, data); err != nil {
			a.log().Debug("file cache put failed", "path", r.path, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	data := result.([]byte) //nolint:errcheck // type assertion always succeeds when err is nil
	if shared {
		data = bytes.Clone(data)
	}
	return data, nil
}

// extractVerified extracts a file and checks it against (attributes).
func (a *Archive) extractVerified(r resolved, req sector.Request) ([]byte, error) {
	data, err := a.extractor.Extract(req)
	if err != nil {
		return nil, err
	}
	if a.attrs == nil || a.policy == ChecksumIgnore {
		return data, nil
	}
	if err := a.attrs.Verify(r.hash.BlockIndex, data); err != nil {
		if a.policy == ChecksumStrict {
			return nil, err
		}
		a.log().Warn("file checksum mismatch", "path", r.path, "error", err)
	}
	return data, nil
}

// fileSource wraps *os.File to implement ByteSource.
// os.File has ReadAt but not Size, so the size is cached at construction.
type fileSource struct {
	file *os.File
	size int64
	id   string
}

// newFileSource creates a fileSource from an open file.
func newFileSource(f *os.File) (*fileSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	abs, err := filepath.Abs(f.Name())
	if err != nil {
		abs = f.Name()
	}
	id := fmt.Sprintf("file:%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano())
	return &fileSource{file: f, size: info.Size(), id: id}, nil
}

// ReadAt implements io.ReaderAt.
func (s *fileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.file.ReadAt(p, off)
}

// Size returns the total size of the file.
func (s *fileSource) Size() int64 {
	return s.size
}

// SourceID identifies the file by absolute path, size and modification time.
func (s *fileSource) SourceID() string {
	return s.id
}

// Interface compliance for fileSource.
var _ ByteSource = (*fileSource)(nil)
