// Package mpqtype holds the types and sentinel errors shared between the
// archive packages.
package mpqtype

import "strings"

// Flags is the block table flags bitmask.
type Flags uint32

const (
	FlagImplode      Flags = 0x00000100
	FlagCompress     Flags = 0x00000200
	FlagEncrypted    Flags = 0x00010000
	FlagFixKey       Flags = 0x00020000
	FlagPatchFile    Flags = 0x00100000
	FlagSingleUnit   Flags = 0x01000000
	FlagDeleteMarker Flags = 0x02000000
	FlagSectorCRC    Flags = 0x04000000
	FlagExists       Flags = 0x80000000

	// FlagCompressMask covers every compression bit.
	FlagCompressMask Flags = 0x0000FF00
)

// IsFile reports whether the block describes a stored file.
func (f Flags) IsFile() bool { return f&FlagExists != 0 }

// IsSingleUnit reports whether the file is stored as one unit without sectors.
func (f Flags) IsSingleUnit() bool { return f&FlagSingleUnit != 0 }

// IsDeleted reports whether the block is a deletion marker.
func (f Flags) IsDeleted() bool { return f&FlagDeleteMarker != 0 }

// IsCompressed reports whether any compression bit is set.
func (f Flags) IsCompressed() bool { return f&FlagCompressMask != 0 }

// IsImploded reports whether the file uses PKWARE implode without a tag byte.
func (f Flags) IsImploded() bool { return f&FlagImplode != 0 }

// IsEncrypted reports whether the file data is encrypted.
func (f Flags) IsEncrypted() bool { return f&FlagEncrypted != 0 }

// HasAdjustedKey reports whether the file key is adjusted by offset and size.
func (f Flags) HasAdjustedKey() bool { return f&FlagFixKey != 0 }

// HasSectorCRC reports whether a checksum block follows the sectors.
func (f Flags) HasSectorCRC() bool { return f&FlagSectorCRC != 0 }

// IsPatch reports whether the file is an incremental patch.
func (f Flags) IsPatch() bool { return f&FlagPatchFile != 0 }

// String returns the set flags as a |-separated list.
func (f Flags) String() string {
	names := []struct {
		flag Flags
		name string
	}{
		{FlagImplode, "implode"},
		{FlagCompress, "compress"},
		{FlagEncrypted, "encrypted"},
		{FlagFixKey, "fixkey"},
		{FlagPatchFile, "patch"},
		{FlagSingleUnit, "single"},
		{FlagDeleteMarker, "deleted"},
		{FlagSectorCRC, "crc"},
		{FlagExists, "exists"},
	}
	var parts []string
	for _, n := range names {
		if f&n.flag != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
