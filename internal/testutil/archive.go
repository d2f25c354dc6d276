package testutil

import (
	"bytes"
	"crypto/md5" //nolint:gosec // the attributes format stores MD5
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math/bits"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"

	"github.com/meigma/mpq/internal/blocktable"
	"github.com/meigma/mpq/internal/crypt"
	"github.com/meigma/mpq/internal/hashtable"
	"github.com/meigma/mpq/internal/header"
	"github.com/meigma/mpq/internal/mpqtype"
)

// ByteSource is the read interface archives are opened from.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// File is one file to store in a synthetic archive.
type File struct {
	Name string
	Data []byte
	// Flags selects the storage layout. FlagExists is always added.
	Flags mpqtype.Flags
	// Locale tags the hash table entry.
	Locale uint16
	// HighBits places the file data above 4 GiB at (HighBits << 32) plus a
	// small offset. The archive must use an extended header.
	HighBits uint16
	// CorruptChecksum stores a wrong checksum for the first sector.
	CorruptChecksum bool
}

// Builder assembles an archive image in memory.
type Builder struct {
	Version     header.Version
	SectorShift uint16
	// HashTableSize defaults to the next power of two holding twice the files.
	HashTableSize uint32
	// UserDataOffset, when non-zero, puts a user data block at offset 0 that
	// points at the header stored at this offset.
	UserDataOffset uint32
	// Listfile adds a (listfile) naming every file.
	Listfile bool
	// Attributes adds an (attributes) file with CRC32, FILETIME and MD5.
	Attributes bool
	// ModTime is recorded in the attributes. Defaults to a fixed time.
	ModTime time.Time
	Files   []File
}

// Image is a built archive.
type Image struct {
	// Data holds the archive bytes below 4 GiB, starting at offset 0 of the source.
	Data []byte
	// Segments holds file data placed above 4 GiB.
	Segments []Segment
	// ArchiveOffset is where the header starts.
	ArchiveOffset uint64
	// Blocks is the plaintext block table.
	Blocks []blocktable.Entry
	// Offsets holds each block's archive-relative offset.
	Offsets []uint64
}

// Source returns a byte source over the image.
func (img *Image) Source() ByteSource {
	if len(img.Segments) == 0 {
		return NewMockByteSource(img.Data)
	}
	segs := append([]Segment{{Offset: 0, Data: img.Data}}, img.Segments...)
	var size int64
	for _, s := range segs {
		size = max(size, s.Offset+int64(len(s.Data)))
	}
	return NewSparseSource(size, fmt.Sprintf("%d", len(img.Data)), segs...)
}

// BlockIndex returns the block index of the named file, or -1.
func (b *Builder) BlockIndex(name string) int {
	for i, f := range b.allFiles() {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// MustBuild builds the image or fails the test.
func (b *Builder) MustBuild(tb testing.TB) *Image {
	tb.Helper()
	img, err := b.Build()
	if err != nil {
		tb.Fatalf("build archive: %v", err)
	}
	return img
}

const (
	// ListfileName is the conventional name of the internal manifest.
	ListfileName = "(listfile)"
	// AttributesName is the conventional name of the attributes file.
	AttributesName = "(attributes)"

	highDataOffset = 0x200
)

var defaultModTime = time.Date(2004, 11, 23, 12, 0, 0, 0, time.UTC)

func (b *Builder) allFiles() []File {
	files := append([]File(nil), b.Files...)
	if b.Listfile {
		names := make([]string, 0, len(b.Files))
		for _, f := range b.Files {
			names = append(names, f.Name)
		}
		files = append(files, File{
			Name:  ListfileName,
			Data:  []byte(strings.Join(names, "\r\n") + "\r\n"),
			Flags: mpqtype.FlagCompress | mpqtype.FlagEncrypted | mpqtype.FlagFixKey,
		})
	}
	if b.Attributes {
		files = append(files, File{Name: AttributesName, Flags: mpqtype.FlagCompress})
	}
	return files
}

// Build assembles the archive.
func (b *Builder) Build() (*Image, error) {
	shift := b.SectorShift
	if shift == 0 {
		shift = 3
	}
	sectorSize := uint32(512) << shift

	files := b.allFiles()
	if b.Attributes {
		files[len(files)-1].Data = b.attributes(files)
	}

	img := &Image{
		ArchiveOffset: uint64(b.UserDataOffset),
		Blocks:        make([]blocktable.Entry, len(files)),
		Offsets:       make([]uint64, len(files)),
	}

	var body bytes.Buffer
	cursor := uint64(b.Version.Size())
	highCursor := map[uint16]uint64{}
	var hi []uint16
	needHi := false

	for i, f := range files {
		var rel uint64
		if f.HighBits != 0 {
			if b.Version < header.ExtendedV1 {
				return nil, fmt.Errorf("%s: high offsets need an extended header", f.Name)
			}
			needHi = true
			lo, ok := highCursor[f.HighBits]
			if !ok {
				lo = highDataOffset
			}
			rel = uint64(f.HighBits)<<32 | lo
		} else {
			rel = cursor
		}

		payload, entry, err := encodeFile(f, rel, sectorSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		img.Blocks[i] = entry
		img.Offsets[i] = rel
		hi = append(hi, uint16(rel>>32))

		if f.HighBits != 0 {
			highCursor[f.HighBits] = (rel & 0xFFFFFFFF) + uint64(len(payload))
			img.Segments = append(img.Segments, Segment{
				Offset: int64(img.ArchiveOffset + rel), //nolint:gosec // test offsets are small
				Data:   payload,
			})
			continue
		}
		body.Write(payload)
		cursor += uint64(len(payload))
	}

	hashSize := b.HashTableSize
	if hashSize == 0 {
		hashSize = max(16, uint32(1)<<bits.Len32(uint32(2*len(files))))
	}
	hashEntries := make([]hashtable.Entry, hashSize)
	for i := range hashEntries {
		hashEntries[i] = hashtable.Entry{
			NameHashA: 0xFFFFFFFF, NameHashB: 0xFFFFFFFF,
			Locale: 0xFFFF, Platform: 0xFFFF,
			BlockIndex: hashtable.BlockIndexEmpty,
		}
	}
	for i, f := range files {
		slot := crypt.Hash(f.Name, crypt.HashTableOffset) % hashSize
		placed := false
		for range hashSize {
			if hashEntries[slot].Empty() {
				hashEntries[slot] = hashtable.Entry{
					NameHashA:  crypt.Hash(f.Name, crypt.HashNameA),
					NameHashB:  crypt.Hash(f.Name, crypt.HashNameB),
					Locale:     f.Locale,
					BlockIndex: uint32(i), //nolint:gosec // test file counts are small
				}
				placed = true
				break
			}
			slot = (slot + 1) % hashSize
		}
		if !placed {
			return nil, fmt.Errorf("hash table of %d entries is full", hashSize)
		}
	}

	hashBlob := hashtable.Encode(hashEntries)
	crypt.EncryptBlock(hashBlob, crypt.HashTableKey)
	blockBlob := blocktable.Encode(img.Blocks)
	crypt.EncryptBlock(blockBlob, crypt.BlockTableKey)

	hashOff := cursor
	blockOff := hashOff + uint64(len(hashBlob))
	end := blockOff + uint64(len(blockBlob))
	body.Write(hashBlob)
	body.Write(blockBlob)

	h := &header.Header{
		HeaderSize:         uint32(b.Version.Size()), //nolint:gosec // fixed header sizes
		FormatVersion:      b.Version,
		SectorSizeShift:    shift,
		HashTableOffsetLo:  uint32(hashOff), //nolint:gosec // test archives stay below 4 GiB
		BlockTableOffsetLo: uint32(blockOff), //nolint:gosec // test archives stay below 4 GiB
		HashTableEntries:   hashSize,
		BlockTableEntries:  uint32(len(files)), //nolint:gosec // test file counts are small
	}
	if needHi {
		h.HiBlockTableOffset64 = end
		body.Write(blocktable.EncodeHighBits(hi))
		end += uint64(len(hi) * blocktable.HiEntrySize)
	}
	h.ArchiveSize = uint32(end) //nolint:gosec // test archives stay below 4 GiB
	if b.Version >= header.ExtendedV2 {
		h.ArchiveSize64 = end
	}

	var out bytes.Buffer
	if b.UserDataOffset != 0 {
		prefix := make([]byte, b.UserDataOffset)
		copy(prefix, header.EncodeUserData(header.UserData{
			Size:         b.UserDataOffset - 16,
			HeaderOffset: b.UserDataOffset,
			HeaderSize:   16,
		}))
		out.Write(prefix)
	}
	out.Write(h.Encode())
	out.Write(body.Bytes())
	img.Data = out.Bytes()
	return img, nil
}

// attributes encodes an (attributes) file for files, whose last entry is
// the attributes file itself.
func (b *Builder) attributes(files []File) []byte {
	const (
		flagCRC32    = 0x1
		flagFiletime = 0x2
		flagMD5      = 0x4
	)
	mod := b.ModTime
	if mod.IsZero() {
		mod = defaultModTime
	}
	ft := uint64(mod.UnixNano()/100) + 116444736000000000 //nolint:gosec // positive for test times

	var buf bytes.Buffer
	le := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) } //nolint:errcheck // bytes.Buffer
	le(uint32(100))
	le(uint32(flagCRC32 | flagFiletime | flagMD5))
	self := len(files) - 1
	for i, f := range files {
		if i == self {
			le(uint32(0))
			continue
		}
		le(crc32.ChecksumIEEE(f.Data))
	}
	for i := range files {
		if i == self {
			le(uint64(0))
			continue
		}
		le(ft)
	}
	for i, f := range files {
		if i == self {
			buf.Write(make([]byte, md5.Size))
			continue
		}
		sum := md5.Sum(f.Data) //nolint:gosec // format-defined digest
		buf.Write(sum[:])
	}
	return buf.Bytes()
}

func encodeFile(f File, rel uint64, sectorSize uint32) ([]byte, blocktable.Entry, error) {
	flags := f.Flags | mpqtype.FlagExists
	size := uint32(len(f.Data)) //nolint:gosec // test files are small
	entry := blocktable.Entry{
		Offset:   uint32(rel), //nolint:gosec // low 32 bits by definition
		FileSize: size,
		Flags:    flags,
	}
	if flags.IsDeleted() {
		entry.FileSize = 0
		return nil, entry, nil
	}
	key := crypt.FileKey(f.Name, flags.HasAdjustedKey(), rel, size)

	var payload []byte
	switch {
	case flags.IsSingleUnit():
		payload = bytes.Clone(f.Data)
		if flags.IsCompressed() {
			c, err := compressZlib(f.Data)
			if err != nil {
				return nil, entry, err
			}
			if len(c) < len(f.Data) {
				payload = c
			}
		}
		if flags.IsEncrypted() {
			crypt.EncryptBlock(payload, key)
		}
	case !flags.IsCompressed():
		payload = bytes.Clone(f.Data)
		if flags.IsEncrypted() {
			for i, start := 0, 0; start < len(payload); i, start = i+1, start+int(sectorSize) {
				crypt.EncryptBlock(payload[start:min(start+int(sectorSize), len(payload))], key+uint32(i)) //nolint:gosec // small counts
			}
		}
	default:
		var err error
		payload, err = encodeSectored(f, flags, key, sectorSize)
		if err != nil {
			return nil, entry, err
		}
	}
	entry.CompressedSize = uint32(len(payload)) //nolint:gosec // test files are small
	return payload, entry, nil
}

func encodeSectored(f File, flags mpqtype.Flags, key, sectorSize uint32) ([]byte, error) {
	n := (len(f.Data) + int(sectorSize) - 1) / int(sectorSize)
	entries := n + 1
	if flags.HasSectorCRC() {
		entries++
	}
	offsets := make([]uint32, entries)
	sectors := make([][]byte, n)
	sums := make([]uint32, n)
	pos := uint32(entries * 4) //nolint:gosec // small counts
	for i := range n {
		plain := f.Data[i*int(sectorSize) : min((i+1)*int(sectorSize), len(f.Data))]
		stored, err := compressZlib(plain)
		if err != nil {
			return nil, err
		}
		if len(stored) >= len(plain) {
			stored = bytes.Clone(plain)
		}
		sums[i] = adler32Zero(stored)
		if f.CorruptChecksum && i == 0 {
			sums[i] ^= 0x5A5A
		}
		if flags.IsEncrypted() {
			crypt.EncryptBlock(stored, key+uint32(i)) //nolint:gosec // small counts
		}
		offsets[i] = pos
		sectors[i] = stored
		pos += uint32(len(stored)) //nolint:gosec // small sizes
	}
	offsets[n] = pos

	var crcBlock []byte
	if flags.HasSectorCRC() {
		crcBlock = make([]byte, n*4)
		for i, s := range sums {
			binary.LittleEndian.PutUint32(crcBlock[i*4:], s)
		}
		offsets[n+1] = pos + uint32(len(crcBlock)) //nolint:gosec // small sizes
	}

	table := make([]byte, entries*4)
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(table[i*4:], off)
	}
	if flags.IsEncrypted() {
		crypt.EncryptBlock(table, key-1)
	}

	out := table
	for _, s := range sectors {
		out = append(out, s...)
	}
	return append(out, crcBlock...), nil
}

// CompressZlib returns a zlib-tagged sector for data.
func CompressZlib(data []byte) ([]byte, error) {
	return compressZlib(data)
}

func compressZlib(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(byte(mpqtype.CompressionZlib))
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// adler32Zero is Adler-32 seeded with zero.
func adler32Zero(data []byte) uint32 {
	var s1, s2 uint32
	for _, c := range data {
		s1 = (s1 + uint32(c)) % 65521
		s2 = (s2 + s1) % 65521
	}
	return s2<<16 | s1
}
