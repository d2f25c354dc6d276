// Package attributes parses the (attributes) sidecar file, which records a
// CRC32, a modification time, an MD5 digest and a patch bit per block.
package attributes

import (
	"crypto/md5" //nolint:gosec // the format records MD5 digests
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"

	"github.com/meigma/mpq/internal/mpqtype"
)

// Name is the sidecar's name inside the archive.
const Name = "(attributes)"

// Version is the only supported attributes version.
const Version = 100

// Flags selects which per-block arrays are present.
type Flags uint32

const (
	FlagCRC32    Flags = 0x1
	FlagFiletime Flags = 0x2
	FlagMD5      Flags = 0x4
	FlagPatchBit Flags = 0x8
)

// filetimeEpoch is the number of 100ns intervals between 1601 and 1970.
const filetimeEpoch = 116444736000000000

const headerSize = 8

// Entry holds the recorded attributes of one block.
type Entry struct {
	CRC32    uint32
	Filetime uint64
	MD5      [16]byte
	Patch    bool
}

// ModTime converts the FILETIME to a time. A zero FILETIME yields the zero time.
func (e Entry) ModTime() time.Time {
	if e.Filetime == 0 || e.Filetime < filetimeEpoch {
		return time.Time{}
	}
	d := e.Filetime - filetimeEpoch
	return time.Unix(int64(d/10_000_000), int64(d%10_000_000)*100).UTC() //nolint:gosec // bounded by uint64 / 1e7
}

// Attributes is a parsed sidecar.
type Attributes struct {
	Flags   Flags
	entries []Entry
}

// Len returns the number of entries.
func (a *Attributes) Len() int {
	return len(a.entries)
}

// Entry returns the attributes for a block index.
func (a *Attributes) Entry(index uint32) (Entry, bool) {
	if uint64(index) >= uint64(len(a.entries)) {
		return Entry{}, false
	}
	return a.entries[index], true
}

// Has reports whether the sidecar records the given arrays.
func (a *Attributes) Has(f Flags) bool {
	return a.Flags&f == f
}

// Verify checks data against the CRC32 and MD5 recorded for a block.
// Blocks without an entry and zero-valued digests are not checked.
func (a *Attributes) Verify(index uint32, data []byte) error {
	e, ok := a.Entry(index)
	if !ok {
		return nil
	}
	if a.Has(FlagCRC32) && e.CRC32 != 0 {
		if got := crc32.ChecksumIEEE(data); got != e.CRC32 {
			return fmt.Errorf("%w: crc32 %08x, want %08x", mpqtype.ErrChecksumMismatch, got, e.CRC32)
		}
	}
	if a.Has(FlagMD5) && e.MD5 != ([16]byte{}) {
		if got := md5.Sum(data); got != e.MD5 { //nolint:gosec // format-defined digest
			return fmt.Errorf("%w: md5 %x, want %x", mpqtype.ErrChecksumMismatch, got, e.MD5)
		}
	}
	return nil
}

// Parse decodes a sidecar for an archive with blockCount blocks.
//
// Some writers omit the sidecar's own entry, so arrays sized for
// blockCount-1 blocks are accepted too.
func Parse(data []byte, blockCount uint32) (*Attributes, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: attributes: %d-byte header", mpqtype.ErrInvalidTable, len(data))
	}
	version := binary.LittleEndian.Uint32(data[0:])
	if version != Version {
		return nil, fmt.Errorf("%w: attributes version %d", mpqtype.ErrUnsupportedFormatVersion, version)
	}
	flags := Flags(binary.LittleEndian.Uint32(data[4:]))
	body := data[headerSize:]

	var lastErr error
	for _, n := range []uint32{blockCount, blockCount - 1} {
		if n > blockCount {
			break
		}
		if size(flags, n) > uint64(len(body)) {
			lastErr = fmt.Errorf("%w: attributes: %d bytes for %d blocks", mpqtype.ErrInvalidTable, len(body), n)
			continue
		}
		return &Attributes{Flags: flags, entries: decode(body, flags, int(n))}, nil
	}
	return nil, lastErr
}

func size(flags Flags, n uint32) uint64 {
	var total uint64
	count := uint64(n)
	if flags&FlagCRC32 != 0 {
		total += count * 4
	}
	if flags&FlagFiletime != 0 {
		total += count * 8
	}
	if flags&FlagMD5 != 0 {
		total += count * 16
	}
	if flags&FlagPatchBit != 0 {
		total += (count + 7) / 8
	}
	return total
}

func decode(body []byte, flags Flags, n int) []Entry {
	entries := make([]Entry, n)
	pos := 0
	if flags&FlagCRC32 != 0 {
		for i := range entries {
			entries[i].CRC32 = binary.LittleEndian.Uint32(body[pos:])
			pos += 4
		}
	}
	if flags&FlagFiletime != 0 {
		for i := range entries {
			entries[i].Filetime = binary.LittleEndian.Uint64(body[pos:])
			pos += 8
		}
	}
	if flags&FlagMD5 != 0 {
		for i := range entries {
			copy(entries[i].MD5[:], body[pos:pos+16])
			pos += 16
		}
	}
	if flags&FlagPatchBit != 0 {
		for i := range entries {
			entries[i].Patch = body[pos+i/8]&(0x80>>(i%8)) != 0
		}
	}
	return entries
}
