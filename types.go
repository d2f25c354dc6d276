package mpq

import (
	"io"
	"time"

	"github.com/meigma/mpq/internal/codec"
	"github.com/meigma/mpq/internal/header"
	"github.com/meigma/mpq/internal/mpqtype"
	"github.com/meigma/mpq/internal/sector"
)

// Re-export types from internal packages for the public API.
type (
	// Flags is a block table flag set.
	Flags = mpqtype.Flags

	// Compression is a sector compression tag.
	Compression = mpqtype.Compression

	// ChecksumPolicy controls how recorded checksums are enforced.
	ChecksumPolicy = mpqtype.ChecksumPolicy

	// Header is the parsed archive header.
	Header = header.Header

	// Version is the archive header format version.
	Version = header.Version

	// StoragePlan is the layout a file is stored in.
	StoragePlan = sector.Plan

	// CodecFunc decompresses one compression stage. It must return exactly
	// maxSize bytes for the final stage of a sector.
	CodecFunc = codec.Func
)

// Re-export flag constants.
const (
	FlagImplode      = mpqtype.FlagImplode
	FlagCompress     = mpqtype.FlagCompress
	FlagEncrypted    = mpqtype.FlagEncrypted
	FlagFixKey       = mpqtype.FlagFixKey
	FlagPatchFile    = mpqtype.FlagPatchFile
	FlagSingleUnit   = mpqtype.FlagSingleUnit
	FlagDeleteMarker = mpqtype.FlagDeleteMarker
	FlagSectorCRC    = mpqtype.FlagSectorCRC
	FlagExists       = mpqtype.FlagExists
)

// Re-export compression constants.
const (
	CompressionHuffman     = mpqtype.CompressionHuffman
	CompressionZlib        = mpqtype.CompressionZlib
	CompressionPKWare      = mpqtype.CompressionPKWare
	CompressionBzip2       = mpqtype.CompressionBzip2
	CompressionSparse      = mpqtype.CompressionSparse
	CompressionADPCMMono   = mpqtype.CompressionADPCMMono
	CompressionADPCMStereo = mpqtype.CompressionADPCMStereo
	CompressionLZMA        = mpqtype.CompressionLZMA
)

// Re-export checksum policies.
const (
	ChecksumWarn   = mpqtype.ChecksumWarn
	ChecksumIgnore = mpqtype.ChecksumIgnore
	ChecksumStrict = mpqtype.ChecksumStrict
)

// Re-export header format versions.
const (
	VersionBasic      = header.Basic
	VersionExtendedV1 = header.ExtendedV1
	VersionExtendedV2 = header.ExtendedV2
	VersionExtendedV3 = header.ExtendedV3
)

// Re-export storage plans.
const (
	PlanSingleUnit         = sector.SingleUnit
	PlanRawSectored        = sector.RawSectored
	PlanCompressedSectored = sector.CompressedSectored
)

// ParseChecksumPolicy parses "warn", "ignore" or "strict".
var ParseChecksumPolicy = mpqtype.ParseChecksumPolicy

// ByteSource provides random access to archive bytes.
//
// Implementations exist for local files (via Open) and HTTP range requests
// (package http). SourceID must return a stable identifier for the
// underlying content; it scopes cache keys.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// FileInfo describes one stored file without extracting it.
type FileInfo struct {
	// Path is the archive path that was looked up.
	Path string
	// Locale and Platform are the matched hash table entry's tags.
	Locale   uint16
	Platform uint16
	// BlockIndex is the file's block table index.
	BlockIndex uint32
	// Offset is the archive-relative offset of the file data.
	Offset uint64
	// CompressedSize is the stored size in bytes.
	CompressedSize uint32
	// FileSize is the logical size in bytes.
	FileSize uint32
	// Flags is the block's flag set.
	Flags Flags
	// Plan is the storage layout derived from Flags.
	Plan StoragePlan

	// The fields below come from the (attributes) file, when the archive
	// records them.

	// CRC32 is the IEEE CRC-32 of the content, or zero.
	CRC32 uint32
	// MD5 is the MD5 digest of the content, or all zeros.
	MD5 [16]byte
	// ModTime is the recorded modification time, or the zero time.
	ModTime time.Time
	// HasAttributes reports whether any of the fields above were recorded.
	HasAttributes bool
}

// Deleted reports whether the file is a deletion marker.
func (fi FileInfo) Deleted() bool {
	return fi.Flags.IsDeleted()
}

// Encrypted reports whether the file data is encrypted.
func (fi FileInfo) Encrypted() bool {
	return fi.Flags.IsEncrypted()
}

// Compressed reports whether the file data is compressed.
func (fi FileInfo) Compressed() bool {
	return fi.Flags.IsCompressed()
}
