package mpqtype

import (
	"errors"
	"fmt"
	"io/fs"
)

var (
	// ErrInvalidSignature is returned when the archive header magic is wrong.
	ErrInvalidSignature = errors.New("mpq: invalid signature")

	// ErrInvalidHeader is returned when header fields are out of range.
	ErrInvalidHeader = errors.New("mpq: invalid header")

	// ErrUnsupportedFormatVersion is returned for header versions this reader does not parse.
	ErrUnsupportedFormatVersion = errors.New("mpq: unsupported format version")

	// ErrFileNotFound is returned when a path has no hash table entry.
	ErrFileNotFound = fmt.Errorf("mpq: file not found: %w", fs.ErrNotExist)

	// ErrFileDeleted is returned when extracting a file whose block is a deletion marker.
	ErrFileDeleted = errors.New("mpq: file deleted")

	// ErrInvalidSectorTable is returned when sector offsets are non-monotonic,
	// duplicated, or exceed the stored block size.
	ErrInvalidSectorTable = errors.New("mpq: invalid sector table")

	// ErrTruncatedRead is returned when the source ends before the expected bytes.
	ErrTruncatedRead = errors.New("mpq: truncated read")

	// ErrClosed is returned by every operation on a closed archive.
	ErrClosed = fmt.Errorf("mpq: archive closed: %w", fs.ErrClosed)

	// ErrInvalidBlockIndex is returned when a block index is out of range.
	ErrInvalidBlockIndex = errors.New("mpq: invalid block index")

	// ErrInvalidTable is returned when a table blob has an invalid length.
	ErrInvalidTable = errors.New("mpq: invalid table")

	// ErrUnsupportedCompression is returned for compression tags without a codec.
	ErrUnsupportedCompression = errors.New("mpq: unsupported compression")

	// ErrDecompression is returned when a codec fails to decode sector data.
	ErrDecompression = errors.New("mpq: decompression failed")

	// ErrChecksumMismatch is returned under the strict checksum policy.
	ErrChecksumMismatch = errors.New("mpq: checksum mismatch")

	// ErrSizeOverflow is returned when sizes exceed supported limits.
	ErrSizeOverflow = errors.New("mpq: size overflow")

	// ErrUnsupportedFile is returned for file kinds this reader cannot extract.
	ErrUnsupportedFile = errors.New("mpq: unsupported file")
)
