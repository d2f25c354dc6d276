// Package crypt implements the archive stream cipher and its name hash.
//
// The cipher and the hash share one 0x500-entry table derived from a fixed
// seed. The table is built once per process on first use and is read-only
// afterwards, so every function here is safe for concurrent use.
package crypt

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/meigma/mpq/internal/mpqtype"
)

// HashType selects the table plane used by Hash.
type HashType uint32

const (
	// HashTableOffset computes the initial probe index into the hash table.
	HashTableOffset HashType = 0
	// HashNameA computes the first verification hash.
	HashNameA HashType = 1
	// HashNameB computes the second verification hash.
	HashNameB HashType = 2
	// HashFileKey computes encryption keys.
	HashFileKey HashType = 3
)

const (
	tableSize = 0x500
	tableSeed = 0x00100001

	hashSeed1 = 0x7FED7FED
	hashSeed2 = 0xEEEEEEEE

	// keyPlane is the table plane mixed into the decrypt stream state.
	keyPlane = 0x400
)

// Well-known keys of the two table blobs.
var (
	HashTableKey  = Hash("(hash table)", HashFileKey)
	BlockTableKey = Hash("(block table)", HashFileKey)
)

// Table returns the shared cipher table, building it on first call.
var Table = sync.OnceValue(buildTable)

func buildTable() *[tableSize]uint32 {
	var table [tableSize]uint32
	seed := uint32(tableSeed)
	for i := range 0x100 {
		for plane := range 5 {
			seed = (seed*125 + 3) % 0x2AAAAB
			hi := (seed & 0xFFFF) << 16
			seed = (seed*125 + 3) % 0x2AAAAB
			lo := seed & 0xFFFF
			table[i+plane*0x100] = hi | lo
		}
	}
	return &table
}

// Hash computes the name hash of path for the given plane.
// Paths are compared case-insensitively and '/' is equivalent to '\'.
func Hash(path string, t HashType) uint32 {
	table := Table()
	seed1 := uint32(hashSeed1)
	seed2 := uint32(hashSeed2)
	base := uint32(t) << 8
	for i := range len(path) {
		ch := uint32(normalize(path[i]))
		seed1 = table[base+ch] ^ (seed1 + seed2)
		seed2 = ch + seed1 + seed2 + (seed2 << 5) + 3
	}
	return seed1
}

func normalize(c byte) byte {
	switch {
	case c >= 'a' && c <= 'z':
		return c - 'a' + 'A'
	case c == '/':
		return '\\'
	default:
		return c
	}
}

// DecryptBlock decrypts data in place. The length must be a multiple of 4.
func DecryptBlock(data []byte, key uint32) error {
	if len(data)%4 != 0 {
		return fmt.Errorf("%w: length %d is not a multiple of 4", mpqtype.ErrInvalidTable, len(data))
	}
	decrypt(data, key)
	return nil
}

// DecryptSector decrypts data in place. A trailing partial word is left
// untouched, matching how the format stores short sector tails.
func DecryptSector(data []byte, key uint32) {
	decrypt(data[:len(data)&^3], key)
}

// EncryptBlock encrypts data in place. Trailing bytes past the last full word
// are left untouched.
func EncryptBlock(data []byte, key uint32) {
	table := Table()
	seed := uint32(hashSeed2)
	for i := 0; i+4 <= len(data); i += 4 {
		seed += table[keyPlane+(key&0xFF)]
		plain := binary.LittleEndian.Uint32(data[i:])
		binary.LittleEndian.PutUint32(data[i:], plain^(key+seed))
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
	}
}

func decrypt(data []byte, key uint32) {
	table := Table()
	seed := uint32(hashSeed2)
	for i := 0; i+4 <= len(data); i += 4 {
		seed += table[keyPlane+(key&0xFF)]
		plain := binary.LittleEndian.Uint32(data[i:]) ^ (key + seed)
		binary.LittleEndian.PutUint32(data[i:], plain)
		key = ((^key << 0x15) + 0x11111111) | (key >> 0x0B)
		seed = plain + seed + (seed << 5) + 3
	}
}

// FileKey derives the encryption key of a stored file from its archive path.
// Only the base name contributes. When adjust is set, the key is further
// mixed with the file's archive-relative offset and logical size.
func FileKey(path string, adjust bool, offset uint64, fileSize uint32) uint32 {
	key := Hash(baseName(path), HashFileKey)
	if adjust {
		key = (key + uint32(offset)) ^ fileSize //nolint:gosec // the format truncates offsets to 32 bits
	}
	return key
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `\/`); i >= 0 {
		return path[i+1:]
	}
	return path
}
