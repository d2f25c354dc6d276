// Package blocktable implements the per-file layout table.
package blocktable

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/mpq/internal/crypt"
	"github.com/meigma/mpq/internal/mpqtype"
)

// EntrySize is the on-disk size of one block table entry.
const EntrySize = 16

// HiEntrySize is the on-disk size of one extended block table entry.
const HiEntrySize = 2

// offsetMask limits merged offsets to 48 bits.
const offsetMask = 0x0000FFFFFFFFFFFF

// Entry describes where and how one file is stored.
type Entry struct {
	// Offset is the low 32 bits of the file's archive-relative offset.
	Offset         uint32
	CompressedSize uint32
	FileSize       uint32
	Flags          mpqtype.Flags
}

// Table is a loaded, decrypted block table. It is immutable once built.
type Table struct {
	entries []Entry
	hi      []uint16
}

// Load builds a table from a decrypted blob of count entries.
func Load(blob []byte, count uint32) (*Table, error) {
	if uint64(len(blob)) < uint64(count)*EntrySize {
		return nil, fmt.Errorf("%w: block table is %d bytes, need %d entries", mpqtype.ErrInvalidTable, len(blob), count)
	}
	entries := make([]Entry, count)
	for i := range entries {
		b := blob[i*EntrySize:]
		entries[i] = Entry{
			Offset:         binary.LittleEndian.Uint32(b[0:]),
			CompressedSize: binary.LittleEndian.Uint32(b[4:]),
			FileSize:       binary.LittleEndian.Uint32(b[8:]),
			Flags:          mpqtype.Flags(binary.LittleEndian.Uint32(b[12:])),
		}
	}
	return &Table{entries: entries}, nil
}

// Decrypt decrypts a raw block table blob in place with the well-known key.
func Decrypt(blob []byte) error {
	return crypt.DecryptBlock(blob, crypt.BlockTableKey)
}

// AttachHighBits attaches the unencrypted extended block table blob.
func (t *Table) AttachHighBits(blob []byte) error {
	if len(blob) < len(t.entries)*HiEntrySize {
		return fmt.Errorf("%w: extended block table is %d bytes, need %d entries", mpqtype.ErrInvalidTable, len(blob), len(t.entries))
	}
	hi := make([]uint16, len(t.entries))
	for i := range hi {
		hi[i] = binary.LittleEndian.Uint16(blob[i*HiEntrySize:])
	}
	t.hi = hi
	return nil
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// HasHighBits reports whether an extended block table is attached.
func (t *Table) HasHighBits() bool {
	return t.hi != nil
}

// Entry returns the entry at index.
func (t *Table) Entry(index uint32) (Entry, error) {
	if uint64(index) >= uint64(len(t.entries)) {
		return Entry{}, fmt.Errorf("%w: %d of %d", mpqtype.ErrInvalidBlockIndex, index, len(t.entries))
	}
	return t.entries[index], nil
}

// PhysicalOffset returns the archive-relative offset of the file at index,
// merging the extended high bits when present.
func (t *Table) PhysicalOffset(index uint32) (uint64, error) {
	e, err := t.Entry(index)
	if err != nil {
		return 0, err
	}
	if t.hi == nil {
		return uint64(e.Offset), nil
	}
	return (uint64(t.hi[index])<<32 | uint64(e.Offset)) & offsetMask, nil
}

// Encode returns the plaintext on-disk form of entries.
func Encode(entries []Entry) []byte {
	out := make([]byte, len(entries)*EntrySize)
	for i, e := range entries {
		b := out[i*EntrySize:]
		binary.LittleEndian.PutUint32(b[0:], e.Offset)
		binary.LittleEndian.PutUint32(b[4:], e.CompressedSize)
		binary.LittleEndian.PutUint32(b[8:], e.FileSize)
		binary.LittleEndian.PutUint32(b[12:], uint32(e.Flags))
	}
	return out
}

// EncodeHighBits returns the on-disk form of an extended block table.
func EncodeHighBits(hi []uint16) []byte {
	out := make([]byte, len(hi)*HiEntrySize)
	for i, v := range hi {
		binary.LittleEndian.PutUint16(out[i*HiEntrySize:], v)
	}
	return out
}
