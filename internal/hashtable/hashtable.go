// Package hashtable implements the archive's open-addressing name index.
package hashtable

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/mpq/internal/crypt"
	"github.com/meigma/mpq/internal/mpqtype"
)

// EntrySize is the on-disk size of one hash table entry.
const EntrySize = 16

const (
	// BlockIndexEmpty marks a slot that was never used. Probing stops here.
	BlockIndexEmpty uint32 = 0xFFFFFFFF
	// BlockIndexDeleted marks a slot whose file was removed. Probing continues.
	BlockIndexDeleted uint32 = 0xFFFFFFFE
)

// LocaleNeutral is the locale of files without a language variant.
const LocaleNeutral uint16 = 0

// Entry is one hash table slot.
type Entry struct {
	NameHashA  uint32
	NameHashB  uint32
	Locale     uint16
	Platform   uint16
	BlockIndex uint32
}

// Empty reports whether the slot was never used.
func (e Entry) Empty() bool { return e.BlockIndex == BlockIndexEmpty }

// Deleted reports whether the slot held a removed file.
func (e Entry) Deleted() bool { return e.BlockIndex == BlockIndexDeleted }

// Table is a loaded, decrypted hash table. It is immutable.
type Table struct {
	entries []Entry
}

// Load builds a table from a decrypted blob of count entries.
func Load(blob []byte, count uint32) (*Table, error) {
	if uint64(len(blob)) < uint64(count)*EntrySize {
		return nil, fmt.Errorf("%w: hash table is %d bytes, need %d entries", mpqtype.ErrInvalidTable, len(blob), count)
	}
	entries := make([]Entry, count)
	for i := range entries {
		b := blob[i*EntrySize:]
		entries[i] = Entry{
			NameHashA:  binary.LittleEndian.Uint32(b[0:]),
			NameHashB:  binary.LittleEndian.Uint32(b[4:]),
			Locale:     binary.LittleEndian.Uint16(b[8:]),
			Platform:   binary.LittleEndian.Uint16(b[10:]),
			BlockIndex: binary.LittleEndian.Uint32(b[12:]),
		}
	}
	return &Table{entries: entries}, nil
}

// Decrypt decrypts a raw hash table blob in place with the well-known key.
func Decrypt(blob []byte) error {
	return crypt.DecryptBlock(blob, crypt.HashTableKey)
}

// Len returns the number of slots.
func (t *Table) Len() int {
	return len(t.entries)
}

// Find returns the first entry matching path in probe order.
func (t *Table) Find(path string) (Entry, bool) {
	var found Entry
	ok := false
	t.probe(path, func(e Entry) bool {
		found, ok = e, true
		return false
	})
	return found, ok
}

// FindLocale returns the entry for path in the given locale. If no entry has
// that locale, the neutral entry is returned, then the first match.
func (t *Table) FindLocale(path string, locale uint16) (Entry, bool) {
	var first, neutral Entry
	var haveFirst, haveNeutral bool
	var exact Entry
	var haveExact bool
	t.probe(path, func(e Entry) bool {
		if !haveFirst {
			first, haveFirst = e, true
		}
		switch e.Locale {
		case locale:
			exact, haveExact = e, true
			return false
		case LocaleNeutral:
			if !haveNeutral {
				neutral, haveNeutral = e, true
			}
		}
		return true
	})
	switch {
	case haveExact:
		return exact, true
	case haveNeutral:
		return neutral, true
	default:
		return first, haveFirst
	}
}

// probe walks the slots for path starting at its home index and calls fn for
// every slot whose name hashes match. The walk stops at a never-used slot,
// when fn returns false, or after visiting every slot once.
func (t *Table) probe(path string, fn func(Entry) bool) {
	n := uint32(len(t.entries)) //nolint:gosec // count comes from a 32-bit header field
	if n == 0 {
		return
	}
	start := crypt.Hash(path, crypt.HashTableOffset) % n
	a := crypt.Hash(path, crypt.HashNameA)
	b := crypt.Hash(path, crypt.HashNameB)

	for step := range n {
		e := t.entries[(start+step)%n]
		if e.Empty() {
			return
		}
		if e.Deleted() {
			continue
		}
		if e.NameHashA == a && e.NameHashB == b {
			if !fn(e) {
				return
			}
		}
	}
}

// Encode returns the plaintext on-disk form of entries.
func Encode(entries []Entry) []byte {
	out := make([]byte, len(entries)*EntrySize)
	for i, e := range entries {
		b := out[i*EntrySize:]
		binary.LittleEndian.PutUint32(b[0:], e.NameHashA)
		binary.LittleEndian.PutUint32(b[4:], e.NameHashB)
		binary.LittleEndian.PutUint16(b[8:], e.Locale)
		binary.LittleEndian.PutUint16(b[10:], e.Platform)
		binary.LittleEndian.PutUint32(b[12:], e.BlockIndex)
	}
	return out
}
