// Package sector extracts stored files from archive data.
//
// A file is stored in one of three layouts, chosen once from its block flags:
// a single unit, raw fixed-size sectors, or compressed sectors located through
// a sector offset table. Each layout may be encrypted with the file key.
package sector

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/meigma/mpq/internal/blocktable"
	"github.com/meigma/mpq/internal/codec"
	"github.com/meigma/mpq/internal/crypt"
	"github.com/meigma/mpq/internal/mpqtype"
	"github.com/meigma/mpq/internal/sizing"
)

// Plan is the storage layout of a file.
type Plan uint8

const (
	// SingleUnit files are one block, optionally compressed as a whole.
	SingleUnit Plan = iota
	// RawSectored files are uncompressed fixed-size sectors.
	RawSectored
	// CompressedSectored files are sectors addressed by an offset table.
	CompressedSectored
)

func (p Plan) String() string {
	switch p {
	case SingleUnit:
		return "single-unit"
	case RawSectored:
		return "raw-sectored"
	case CompressedSectored:
		return "compressed-sectored"
	default:
		return "unknown"
	}
}

// PlanFor returns the storage layout for the given block flags.
func PlanFor(flags mpqtype.Flags) Plan {
	switch {
	case flags.IsSingleUnit():
		return SingleUnit
	case flags.IsCompressed():
		return CompressedSectored
	default:
		return RawSectored
	}
}

// Request describes one file to extract.
type Request struct {
	// Path is used only for log messages.
	Path string
	// Offset is the absolute position of the file data in the source.
	Offset uint64
	// Block is the file's block table entry.
	Block blocktable.Entry
	// Key is the file key. It is ignored for unencrypted files.
	Key uint32
	// SectorSize is the archive's maximum sector size.
	SectorSize uint32
}

// Extractor reads and decodes files from a source.
// It holds no per-request state and is safe for concurrent use.
type Extractor struct {
	src         io.ReaderAt
	codecs      *codec.Registry
	policy      mpqtype.ChecksumPolicy
	maxFileSize uint64
	logger      *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithCodecs sets the codec registry. Defaults to codec.NewRegistry().
func WithCodecs(r *codec.Registry) Option {
	return func(x *Extractor) {
		x.codecs = r
	}
}

// WithChecksumPolicy sets how sector checksums are handled.
func WithChecksumPolicy(p mpqtype.ChecksumPolicy) Option {
	return func(x *Extractor) {
		x.policy = p
	}
}

// WithMaxFileSize limits stored and logical file sizes. Zero disables the limit.
func WithMaxFileSize(limit uint64) Option {
	return func(x *Extractor) {
		x.maxFileSize = limit
	}
}

// WithLogger sets the logger for checksum warnings and debug output.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Extractor) {
		x.logger = logger
	}
}

// NewExtractor returns an Extractor reading from src.
func NewExtractor(src io.ReaderAt, opts ...Option) *Extractor {
	x := &Extractor{src: src}
	for _, opt := range opts {
		opt(x)
	}
	if x.codecs == nil {
		x.codecs = codec.NewRegistry()
	}
	return x
}

// log returns the logger, falling back to a discard logger if nil.
func (x *Extractor) log() *slog.Logger {
	if x.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return x.logger
}

// Extract returns the full logical content of the requested file.
// On any failure it returns a nil slice.
func (x *Extractor) Extract(req Request) ([]byte, error) {
	flags := req.Block.Flags
	switch {
	case flags.IsDeleted() || !flags.IsFile():
		return nil, mpqtype.ErrFileDeleted
	case flags.IsPatch():
		return nil, fmt.Errorf("%w: patch file", mpqtype.ErrUnsupportedFile)
	}
	if x.maxFileSize > 0 &&
		(uint64(req.Block.FileSize) > x.maxFileSize || uint64(req.Block.CompressedSize) > x.maxFileSize) {
		return nil, fmt.Errorf("%w: file size %d exceeds limit %d", mpqtype.ErrSizeOverflow, req.Block.FileSize, x.maxFileSize)
	}
	if req.Block.FileSize == 0 {
		return []byte{}, nil
	}
	if req.SectorSize == 0 {
		return nil, fmt.Errorf("%w: zero sector size", mpqtype.ErrInvalidHeader)
	}

	plan := PlanFor(flags)
	x.log().Debug("extract", "path", req.Path, "plan", plan, "flags", flags,
		"stored", req.Block.CompressedSize, "size", req.Block.FileSize)

	switch plan {
	case SingleUnit:
		return x.extractSingleUnit(req)
	case RawSectored:
		return x.extractRaw(req)
	default:
		return x.extractCompressed(req)
	}
}

func (x *Extractor) extractSingleUnit(req Request) ([]byte, error) {
	b := req.Block
	data, err := sizing.ReadFullAt(x.src, req.Offset, uint64(b.CompressedSize))
	if err != nil {
		return nil, err
	}
	if b.Flags.IsEncrypted() {
		crypt.DecryptSector(data, req.Key)
	}
	return x.decodeUnit(data, int(b.FileSize), b.Flags)
}

func (x *Extractor) extractRaw(req Request) ([]byte, error) {
	b := req.Block
	data, err := sizing.ReadFullAt(x.src, req.Offset, uint64(b.FileSize))
	if err != nil {
		return nil, err
	}
	size := int(b.FileSize)
	step := int(req.SectorSize)
	sectors := make([][]byte, 0, sectorCount(b.FileSize, req.SectorSize))
	for i, start := 0, 0; start < size; i, start = i+1, start+step {
		sec := data[start:min(start+step, size)]
		if b.Flags.IsEncrypted() {
			crypt.DecryptSector(sec, req.Key+uint32(i)) //nolint:gosec // sector count fits in 32 bits
		}
		sectors = append(sectors, sec)
	}
	return Stitch(sectors)
}

func (x *Extractor) extractCompressed(req Request) ([]byte, error) {
	b := req.Block
	n := sectorCount(b.FileSize, req.SectorSize)

	data, err := sizing.ReadFullAt(x.src, req.Offset, uint64(b.CompressedSize))
	if err != nil {
		return nil, err
	}
	table, err := ReadSectorTable(data, n, b.Flags, req.Key)
	if err != nil {
		return nil, err
	}
	if err := ValidateSectorTable(table.Offsets, b.CompressedSize); err != nil {
		return nil, err
	}
	if uint64(table.Offsets[0]) < uint64(table.Len()) {
		return nil, fmt.Errorf("%w: first sector at %d overlaps the %d-byte table", mpqtype.ErrInvalidSectorTable, table.Offsets[0], table.Len())
	}
	if table.HasChecksums() {
		if err := validateChecksumBounds(table, b.CompressedSize); err != nil {
			return nil, err
		}
	}

	var sums []uint32
	if table.HasChecksums() && x.policy != mpqtype.ChecksumIgnore {
		sums, err = x.loadChecksums(data, table, n)
		if err != nil {
			if x.policy == mpqtype.ChecksumStrict {
				return nil, err
			}
			x.log().Warn("sector checksums unreadable", "path", req.Path, "error", err)
			sums = nil
		}
	}

	size := int(b.FileSize)
	step := int(req.SectorSize)
	sectors := make([][]byte, n)
	for i := range n {
		raw := data[table.Offsets[i]:table.Offsets[i+1]]
		if b.Flags.IsEncrypted() {
			crypt.DecryptSector(raw, req.Key+uint32(i)) //nolint:gosec // sector count fits in 32 bits
		}
		if sums != nil {
			if err := x.checkSector(req.Path, i, raw, sums[i]); err != nil {
				return nil, err
			}
		}
		expected := min(step, size-i*step)
		sec, err := x.decodeSector(raw, expected, b.Flags)
		if err != nil {
			return nil, fmt.Errorf("sector %d: %w", i, err)
		}
		sectors[i] = sec
	}
	return Stitch(sectors)
}

// decodeUnit decodes a whole single-unit file.
func (x *Extractor) decodeUnit(data []byte, size int, flags mpqtype.Flags) ([]byte, error) {
	if flags.IsCompressed() {
		switch {
		case len(data) < size:
			return x.decompress(data, size, flags)
		case len(data) > size:
			return nil, fmt.Errorf("%w: stored %d bytes, want at most %d", mpqtype.ErrDecompression, len(data), size)
		}
	}
	if len(data) < size {
		return nil, fmt.Errorf("%w: stored %d bytes, want %d", mpqtype.ErrTruncatedRead, len(data), size)
	}
	return data[:size], nil
}

// decodeSector decodes one compressed-sectored sector. Sectors are stored
// verbatim when compression did not shrink them.
func (x *Extractor) decodeSector(raw []byte, expected int, flags mpqtype.Flags) ([]byte, error) {
	switch {
	case len(raw) == expected:
		return raw, nil
	case len(raw) > expected:
		return nil, fmt.Errorf("%w: stored %d bytes, want at most %d", mpqtype.ErrDecompression, len(raw), expected)
	default:
		return x.decompress(raw, expected, flags)
	}
}

func (x *Extractor) decompress(data []byte, size int, flags mpqtype.Flags) ([]byte, error) {
	var out []byte
	var err error
	if flags.IsImploded() {
		out, err = x.codecs.Explode(data, size)
	} else {
		out, err = x.codecs.Decompress(data, size)
	}
	if err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, fmt.Errorf("%w: decoded %d bytes, want %d", mpqtype.ErrDecompression, len(out), size)
	}
	return out, nil
}

func sectorCount(fileSize, sectorSize uint32) int {
	return int((uint64(fileSize) + uint64(sectorSize) - 1) / uint64(sectorSize))
}
