// Package header parses the archive preamble.
package header

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/meigma/mpq/internal/mpqtype"
	"github.com/meigma/mpq/internal/sizing"
)

const (
	// Magic is the archive header signature "MPQ\x1A".
	Magic = 0x1A51504D
	// UserDataMagic is the user data block signature "MPQ\x1B".
	UserDataMagic = 0x1B51504D

	userDataSize = 16

	// maxSectorShift keeps sector sizes at or below 4 MiB.
	maxSectorShift = 13
)

// Version is the header format version.
type Version uint16

const (
	Basic      Version = 0
	ExtendedV1 Version = 1
	ExtendedV2 Version = 2
	ExtendedV3 Version = 3
)

// Size returns the on-disk header size of the version.
func (v Version) Size() int {
	switch v {
	case Basic:
		return 0x20
	case ExtendedV1:
		return 0x2C
	case ExtendedV2:
		return 0x44
	case ExtendedV3:
		return 0xD0
	default:
		return 0
	}
}

func (v Version) String() string {
	switch v {
	case Basic:
		return "basic"
	case ExtendedV1:
		return "extended-v1"
	case ExtendedV2:
		return "extended-v2"
	case ExtendedV3:
		return "extended-v3"
	default:
		return fmt.Sprintf("v%d", uint16(v))
	}
}

// UserData is the optional block at the start of the source that points at
// the archive header.
type UserData struct {
	// Size is the size of the user data payload.
	Size uint32
	// HeaderOffset is the distance from the user data block to the header.
	HeaderOffset uint32
	// HeaderSize is the size of the user data header.
	HeaderSize uint32
}

// Header is a parsed archive header.
//
// Table offsets are relative to ArchiveOffset, the header's position in the
// source.
type Header struct {
	ArchiveOffset int64
	UserData      *UserData

	HeaderSize      uint32
	ArchiveSize     uint32
	FormatVersion   Version
	SectorSizeShift uint16

	HashTableOffsetLo  uint32
	BlockTableOffsetLo uint32
	HashTableEntries   uint32
	BlockTableEntries  uint32

	// ExtendedV1 fields.
	HiBlockTableOffset64 uint64
	HashTableOffsetHi    uint16
	BlockTableOffsetHi   uint16

	// ExtendedV2 fields.
	ArchiveSize64  uint64
	BetTableOffset uint64
	HetTableOffset uint64

	// ExtendedV3 fields.
	HashTableSize64    uint64
	BlockTableSize64   uint64
	HiBlockTableSize64 uint64
	HetTableSize64     uint64
	BetTableSize64     uint64
	RawChunkSize       uint32
	MD5BlockTable      [16]byte
	MD5HashTable       [16]byte
	MD5HiBlockTable    [16]byte
	MD5BetTable        [16]byte
	MD5HetTable        [16]byte
	MD5Header          [16]byte
}

type rawBasic struct {
	Magic             uint32
	HeaderSize        uint32
	ArchiveSize       uint32
	FormatVersion     uint16
	SectorSizeShift   uint16
	HashTableOffset   uint32
	BlockTableOffset  uint32
	HashTableEntries  uint32
	BlockTableEntries uint32
}

type rawV1 struct {
	HiBlockTableOffset64 uint64
	HashTableOffsetHi    uint16
	BlockTableOffsetHi   uint16
}

type rawV2 struct {
	ArchiveSize64  uint64
	BetTableOffset uint64
	HetTableOffset uint64
}

type rawV3 struct {
	HashTableSize64    uint64
	BlockTableSize64   uint64
	HiBlockTableSize64 uint64
	HetTableSize64     uint64
	BetTableSize64     uint64
	RawChunkSize       uint32
	MD5                [6][16]byte
}

// Read locates and parses the archive header in src.
//
// The header is expected at offset 0, or at the offset named by a user data
// block found there. Nothing is retained on failure.
func Read(src io.ReaderAt) (*Header, error) {
	sig, err := sizing.ReadFullAt(src, 0, 4)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mpqtype.ErrInvalidSignature, err)
	}

	var ud *UserData
	var off uint64
	switch binary.LittleEndian.Uint32(sig) {
	case Magic:
	case UserDataMagic:
		ud, err = readUserData(src)
		if err != nil {
			return nil, err
		}
		off = uint64(ud.HeaderOffset)
	default:
		return nil, mpqtype.ErrInvalidSignature
	}

	h, err := readAt(src, off)
	if err != nil {
		return nil, err
	}
	h.UserData = ud
	return h, nil
}

func readUserData(src io.ReaderAt) (*UserData, error) {
	buf, err := sizing.ReadFullAt(src, 0, userDataSize)
	if err != nil {
		return nil, fmt.Errorf("user data: %w", err)
	}
	ud := &UserData{
		Size:         binary.LittleEndian.Uint32(buf[4:]),
		HeaderOffset: binary.LittleEndian.Uint32(buf[8:]),
		HeaderSize:   binary.LittleEndian.Uint32(buf[12:]),
	}
	if ud.HeaderOffset < userDataSize {
		return nil, fmt.Errorf("%w: user data header offset %d", mpqtype.ErrInvalidHeader, ud.HeaderOffset)
	}
	return ud, nil
}

func readAt(src io.ReaderAt, off uint64) (*Header, error) {
	buf, err := sizing.ReadFullAt(src, off, uint64(Basic.Size()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", mpqtype.ErrInvalidSignature, err)
	}
	var basic rawBasic
	if err := binary.Read(bytes.NewReader(buf), binary.LittleEndian, &basic); err != nil {
		return nil, fmt.Errorf("%w: %w", mpqtype.ErrInvalidSignature, err)
	}
	if basic.Magic != Magic {
		return nil, mpqtype.ErrInvalidSignature
	}

	version := Version(basic.FormatVersion)
	if version > ExtendedV3 {
		return nil, fmt.Errorf("%w: %d", mpqtype.ErrUnsupportedFormatVersion, basic.FormatVersion)
	}
	if basic.SectorSizeShift > maxSectorShift {
		return nil, fmt.Errorf("%w: sector size shift %d", mpqtype.ErrInvalidHeader, basic.SectorSizeShift)
	}

	h := &Header{
		ArchiveOffset:      int64(off), //nolint:gosec // off comes from a 32-bit field
		HeaderSize:         basic.HeaderSize,
		ArchiveSize:        basic.ArchiveSize,
		FormatVersion:      version,
		SectorSizeShift:    basic.SectorSizeShift,
		HashTableOffsetLo:  basic.HashTableOffset,
		BlockTableOffsetLo: basic.BlockTableOffset,
		HashTableEntries:   basic.HashTableEntries,
		BlockTableEntries:  basic.BlockTableEntries,
	}
	if version == Basic {
		return h, nil
	}

	ext, err := sizing.ReadFullAt(src, off+uint64(Basic.Size()), uint64(version.Size()-Basic.Size()))
	if err != nil {
		return nil, fmt.Errorf("%s header: %w", version, err)
	}
	r := bytes.NewReader(ext)

	var v1 rawV1
	if err := binary.Read(r, binary.LittleEndian, &v1); err != nil {
		return nil, fmt.Errorf("%s header: %w", version, err)
	}
	h.HiBlockTableOffset64 = v1.HiBlockTableOffset64
	h.HashTableOffsetHi = v1.HashTableOffsetHi
	h.BlockTableOffsetHi = v1.BlockTableOffsetHi
	if version == ExtendedV1 {
		return h, nil
	}

	var v2 rawV2
	if err := binary.Read(r, binary.LittleEndian, &v2); err != nil {
		return nil, fmt.Errorf("%s header: %w", version, err)
	}
	h.ArchiveSize64 = v2.ArchiveSize64
	h.BetTableOffset = v2.BetTableOffset
	h.HetTableOffset = v2.HetTableOffset
	if version == ExtendedV2 {
		return h, nil
	}

	var v3 rawV3
	if err := binary.Read(r, binary.LittleEndian, &v3); err != nil {
		return nil, fmt.Errorf("%s header: %w", version, err)
	}
	h.HashTableSize64 = v3.HashTableSize64
	h.BlockTableSize64 = v3.BlockTableSize64
	h.HiBlockTableSize64 = v3.HiBlockTableSize64
	h.HetTableSize64 = v3.HetTableSize64
	h.BetTableSize64 = v3.BetTableSize64
	h.RawChunkSize = v3.RawChunkSize
	h.MD5BlockTable = v3.MD5[0]
	h.MD5HashTable = v3.MD5[1]
	h.MD5HiBlockTable = v3.MD5[2]
	h.MD5BetTable = v3.MD5[3]
	h.MD5HetTable = v3.MD5[4]
	h.MD5Header = v3.MD5[5]
	return h, nil
}

// SectorSize returns the maximum sector size in bytes.
func (h *Header) SectorSize() uint32 {
	return 512 << h.SectorSizeShift
}

// Extended reports whether the header carries 64-bit offset fields.
func (h *Header) Extended() bool {
	return h.FormatVersion >= ExtendedV1
}

// HashTableOffset returns the hash table offset relative to the archive start.
func (h *Header) HashTableOffset() uint64 {
	if !h.Extended() {
		return uint64(h.HashTableOffsetLo)
	}
	return uint64(h.HashTableOffsetHi)<<32 | uint64(h.HashTableOffsetLo)
}

// BlockTableOffset returns the block table offset relative to the archive start.
func (h *Header) BlockTableOffset() uint64 {
	if !h.Extended() {
		return uint64(h.BlockTableOffsetLo)
	}
	return uint64(h.BlockTableOffsetHi)<<32 | uint64(h.BlockTableOffsetLo)
}

// HiBlockTableOffset returns the extended block table offset relative to the
// archive start, and whether the archive has one.
func (h *Header) HiBlockTableOffset() (uint64, bool) {
	if !h.Extended() || h.HiBlockTableOffset64 == 0 {
		return 0, false
	}
	return h.HiBlockTableOffset64, true
}

// Size returns the archive size, preferring the 64-bit field when present.
func (h *Header) Size() uint64 {
	if h.FormatVersion >= ExtendedV2 && h.ArchiveSize64 != 0 {
		return h.ArchiveSize64
	}
	return uint64(h.ArchiveSize)
}

// Absolute converts an archive-relative offset to a source offset.
func (h *Header) Absolute(rel uint64) (uint64, bool) {
	return sizing.AddUint64(uint64(h.ArchiveOffset), rel) //nolint:gosec // ArchiveOffset is never negative
}

// Encode returns the on-disk form of the header for its format version.
// The magic is always written; HeaderSize is written as stored.
func (h *Header) Encode() []byte {
	var buf bytes.Buffer
	buf.Grow(h.FormatVersion.Size())
	write := func(v any) {
		_ = binary.Write(&buf, binary.LittleEndian, v) //nolint:errcheck // bytes.Buffer writes never fail
	}
	write(rawBasic{
		Magic:             Magic,
		HeaderSize:        h.HeaderSize,
		ArchiveSize:       h.ArchiveSize,
		FormatVersion:     uint16(h.FormatVersion),
		SectorSizeShift:   h.SectorSizeShift,
		HashTableOffset:   h.HashTableOffsetLo,
		BlockTableOffset:  h.BlockTableOffsetLo,
		HashTableEntries:  h.HashTableEntries,
		BlockTableEntries: h.BlockTableEntries,
	})
	if h.FormatVersion >= ExtendedV1 {
		write(rawV1{
			HiBlockTableOffset64: h.HiBlockTableOffset64,
			HashTableOffsetHi:    h.HashTableOffsetHi,
			BlockTableOffsetHi:   h.BlockTableOffsetHi,
		})
	}
	if h.FormatVersion >= ExtendedV2 {
		write(rawV2{
			ArchiveSize64:  h.ArchiveSize64,
			BetTableOffset: h.BetTableOffset,
			HetTableOffset: h.HetTableOffset,
		})
	}
	if h.FormatVersion >= ExtendedV3 {
		write(rawV3{
			HashTableSize64:    h.HashTableSize64,
			BlockTableSize64:   h.BlockTableSize64,
			HiBlockTableSize64: h.HiBlockTableSize64,
			HetTableSize64:     h.HetTableSize64,
			BetTableSize64:     h.BetTableSize64,
			RawChunkSize:       h.RawChunkSize,
			MD5: [6][16]byte{
				h.MD5BlockTable, h.MD5HashTable, h.MD5HiBlockTable,
				h.MD5BetTable, h.MD5HetTable, h.MD5Header,
			},
		})
	}
	return buf.Bytes()
}

// EncodeUserData returns the on-disk form of a user data block header.
func EncodeUserData(ud UserData) []byte {
	buf := make([]byte, userDataSize)
	binary.LittleEndian.PutUint32(buf[0:], UserDataMagic)
	binary.LittleEndian.PutUint32(buf[4:], ud.Size)
	binary.LittleEndian.PutUint32(buf[8:], ud.HeaderOffset)
	binary.LittleEndian.PutUint32(buf[12:], ud.HeaderSize)
	return buf
}
