package sector

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/mpq/internal/crypt"
	"github.com/meigma/mpq/internal/mpqtype"
)

// Table is a decoded sector offset table. Offsets are relative to the start
// of the file data.
type Table struct {
	// Offsets holds one start offset per sector plus the end of the last sector.
	Offsets []uint32
	// ChecksumEnd is the end of the checksum block, when present.
	ChecksumEnd uint32

	checksums bool
}

// HasChecksums reports whether the table addresses a checksum block.
func (t *Table) HasChecksums() bool {
	return t.checksums
}

// Len returns the stored size of the table in bytes.
func (t *Table) Len() int {
	n := len(t.Offsets)
	if t.checksums {
		n++
	}
	return n * 4
}

// ReadSectorTable decodes the offset table at the start of a compressed
// file's data. Encrypted tables use the file key minus one.
func ReadSectorTable(data []byte, sectors int, flags mpqtype.Flags, key uint32) (*Table, error) {
	entries := sectors + 1
	if flags.HasSectorCRC() {
		entries++
	}
	size := entries * 4
	if size > len(data) {
		return nil, fmt.Errorf("%w: %d-byte table exceeds %d-byte block", mpqtype.ErrInvalidSectorTable, size, len(data))
	}

	raw := make([]byte, size)
	copy(raw, data)
	if flags.IsEncrypted() {
		crypt.DecryptSector(raw, key-1)
	}

	t := &Table{Offsets: make([]uint32, sectors+1)}
	for i := range t.Offsets {
		t.Offsets[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	if flags.HasSectorCRC() {
		t.checksums = true
		t.ChecksumEnd = binary.LittleEndian.Uint32(raw[(sectors+1)*4:])
	}
	return t, nil
}

// ValidateSectorTable checks that offsets are strictly increasing and that
// none exceeds the stored block size.
func ValidateSectorTable(offsets []uint32, storedSize uint32) error {
	if len(offsets) == 0 {
		return fmt.Errorf("%w: empty", mpqtype.ErrInvalidSectorTable)
	}
	for i, off := range offsets {
		if off > storedSize {
			return fmt.Errorf("%w: offset %d at index %d exceeds stored size %d", mpqtype.ErrInvalidSectorTable, off, i, storedSize)
		}
		if i > 0 && off <= offsets[i-1] {
			return fmt.Errorf("%w: offset %d at index %d does not follow %d", mpqtype.ErrInvalidSectorTable, off, i, offsets[i-1])
		}
	}
	return nil
}

// validateChecksumBounds checks the checksum block lies between the last
// sector and the end of the stored block. An empty block is allowed.
func validateChecksumBounds(t *Table, storedSize uint32) error {
	last := t.Offsets[len(t.Offsets)-1]
	if t.ChecksumEnd < last || t.ChecksumEnd > storedSize {
		return fmt.Errorf("%w: checksum block end %d outside [%d, %d]", mpqtype.ErrInvalidSectorTable, t.ChecksumEnd, last, storedSize)
	}
	return nil
}
