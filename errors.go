package mpq

import "github.com/meigma/mpq/internal/mpqtype"

// Sentinel errors re-exported from internal/mpqtype.
var (
	// ErrInvalidSignature is returned when the source is not an archive.
	ErrInvalidSignature = mpqtype.ErrInvalidSignature

	// ErrInvalidHeader is returned when header fields are out of range.
	ErrInvalidHeader = mpqtype.ErrInvalidHeader

	// ErrUnsupportedFormatVersion is returned for unknown header versions.
	ErrUnsupportedFormatVersion = mpqtype.ErrUnsupportedFormatVersion

	// ErrFileNotFound is returned when a path is not in the hash table.
	// It matches fs.ErrNotExist.
	ErrFileNotFound = mpqtype.ErrFileNotFound

	// ErrFileDeleted is returned when extracting a file marked deleted.
	ErrFileDeleted = mpqtype.ErrFileDeleted

	// ErrInvalidSectorTable is returned for corrupt sector offset tables.
	ErrInvalidSectorTable = mpqtype.ErrInvalidSectorTable

	// ErrTruncatedRead is returned when the source ends early.
	ErrTruncatedRead = mpqtype.ErrTruncatedRead

	// ErrClosed is returned by every operation after Close.
	// It matches fs.ErrClosed.
	ErrClosed = mpqtype.ErrClosed

	// ErrInvalidBlockIndex is returned when a hash entry points past the block table.
	ErrInvalidBlockIndex = mpqtype.ErrInvalidBlockIndex

	// ErrInvalidTable is returned when a table cannot be loaded.
	ErrInvalidTable = mpqtype.ErrInvalidTable

	// ErrUnsupportedCompression is returned for compression without a registered codec.
	ErrUnsupportedCompression = mpqtype.ErrUnsupportedCompression

	// ErrDecompression is returned when sector data fails to decode.
	ErrDecompression = mpqtype.ErrDecompression

	// ErrChecksumMismatch is returned under ChecksumStrict when content
	// does not match a recorded checksum.
	ErrChecksumMismatch = mpqtype.ErrChecksumMismatch

	// ErrSizeOverflow is returned when sizes exceed supported limits.
	ErrSizeOverflow = mpqtype.ErrSizeOverflow

	// ErrUnsupportedFile is returned for patch files.
	ErrUnsupportedFile = mpqtype.ErrUnsupportedFile
)
