package sector

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mpq/internal/blocktable"
	"github.com/meigma/mpq/internal/crypt"
	"github.com/meigma/mpq/internal/mpqtype"
	"github.com/meigma/mpq/internal/testutil"
)

const testSectorSize = 4096

// noise returns n incompressible bytes.
func noise(n int) []byte {
	out := make([]byte, 0, n+sha256.Size)
	sum := sha256.Sum256([]byte("noise"))
	for len(out) < n {
		out = append(out, sum[:]...)
		sum = sha256.Sum256(sum[:])
	}
	return out[:n]
}

func buildFile(t *testing.T, f testutil.File) (*testutil.Image, Request) {
	t.Helper()
	b := &testutil.Builder{Files: []testutil.File{f}}
	img := b.MustBuild(t)
	blk := img.Blocks[0]
	return img, Request{
		Path:       f.Name,
		Offset:     img.ArchiveOffset + img.Offsets[0],
		Block:      blk,
		Key:        crypt.FileKey(f.Name, blk.Flags.HasAdjustedKey(), img.Offsets[0], blk.FileSize),
		SectorSize: testSectorSize,
	}
}

func TestPlanFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		flags mpqtype.Flags
		want  Plan
	}{
		{mpqtype.FlagExists, RawSectored},
		{mpqtype.FlagExists | mpqtype.FlagEncrypted, RawSectored},
		{mpqtype.FlagExists | mpqtype.FlagCompress, CompressedSectored},
		{mpqtype.FlagExists | mpqtype.FlagImplode, CompressedSectored},
		{mpqtype.FlagExists | mpqtype.FlagSingleUnit, SingleUnit},
		{mpqtype.FlagExists | mpqtype.FlagSingleUnit | mpqtype.FlagCompress, SingleUnit},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PlanFor(tt.flags), "flags %s", tt.flags)
	}
}

func TestExtractSingleUnit(t *testing.T) {
	t.Parallel()

	img, req := buildFile(t, testutil.File{
		Name:  "test.txt",
		Data:  []byte("hello"),
		Flags: mpqtype.FlagSingleUnit,
	})
	got, err := NewExtractor(img.Source()).Extract(req)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), got)
}

func TestExtractSingleUnitCompressed(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("single unit "), 1000)
	img, req := buildFile(t, testutil.File{
		Name:  "units\\big.txt",
		Data:  data,
		Flags: mpqtype.FlagSingleUnit | mpqtype.FlagCompress | mpqtype.FlagEncrypted,
	})
	require.Less(t, req.Block.CompressedSize, req.Block.FileSize)

	got, err := NewExtractor(img.Source()).Extract(req)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestExtractEncryptedKey(t *testing.T) {
	t.Parallel()

	data := []byte("hello world!")
	img, req := buildFile(t, testutil.File{
		Name:  "secret.txt",
		Data:  data,
		Flags: mpqtype.FlagSingleUnit | mpqtype.FlagEncrypted,
	})
	x := NewExtractor(img.Source())

	got, err := x.Extract(req)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	req.Key++
	got, err = x.Extract(req)
	require.NoError(t, err)
	assert.Len(t, got, len(data))
	assert.NotEqual(t, data, got)
}

func TestExtractRawSectored(t *testing.T) {
	t.Parallel()

	data := noise(2*testSectorSize + 100)
	for _, flags := range []mpqtype.Flags{0, mpqtype.FlagEncrypted, mpqtype.FlagEncrypted | mpqtype.FlagFixKey} {
		img, req := buildFile(t, testutil.File{Name: "war3map.w3e", Data: data, Flags: flags})
		require.Equal(t, RawSectored, PlanFor(req.Block.Flags))

		got, err := NewExtractor(img.Source()).Extract(req)
		require.NoError(t, err, "flags %s", flags)
		assert.Equal(t, data, got, "flags %s", flags)
	}
}

func TestExtractCompressedSectored(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		data  []byte
		flags mpqtype.Flags
	}{
		{"compressible", bytes.Repeat([]byte("abcdefgh"), 3*testSectorSize/8+17), mpqtype.FlagCompress},
		{"incompressible", noise(2*testSectorSize + 9), mpqtype.FlagCompress},
		{"mixed", append(bytes.Repeat([]byte{'z'}, testSectorSize), noise(testSectorSize+3)...), mpqtype.FlagCompress},
		{"encrypted", bytes.Repeat([]byte("key+i "), 2000), mpqtype.FlagCompress | mpqtype.FlagEncrypted},
		{"fixkey", bytes.Repeat([]byte("adjusted "), 2000), mpqtype.FlagCompress | mpqtype.FlagEncrypted | mpqtype.FlagFixKey},
		{"checksums", bytes.Repeat([]byte("crc "), 5000), mpqtype.FlagCompress | mpqtype.FlagSectorCRC},
		{"encrypted checksums", noise(3 * testSectorSize), mpqtype.FlagCompress | mpqtype.FlagEncrypted | mpqtype.FlagSectorCRC},
		{"exact sector", bytes.Repeat([]byte{1, 2, 3, 4}, testSectorSize/4), mpqtype.FlagCompress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			img, req := buildFile(t, testutil.File{Name: "data\\" + tt.name, Data: tt.data, Flags: tt.flags})
			got, err := NewExtractor(img.Source(), WithChecksumPolicy(mpqtype.ChecksumStrict)).Extract(req)
			require.NoError(t, err)
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestExtractFlagsWithoutData(t *testing.T) {
	t.Parallel()

	x := NewExtractor(testutil.NewMockByteSource(nil))
	tests := []struct {
		name  string
		block blocktable.Entry
		want  error
	}{
		{"deleted", blocktable.Entry{FileSize: 5, Flags: mpqtype.FlagExists | mpqtype.FlagDeleteMarker}, mpqtype.ErrFileDeleted},
		{"not a file", blocktable.Entry{FileSize: 5}, mpqtype.ErrFileDeleted},
		{"patch", blocktable.Entry{FileSize: 5, Flags: mpqtype.FlagExists | mpqtype.FlagPatchFile}, mpqtype.ErrUnsupportedFile},
		{"zero sector size", blocktable.Entry{FileSize: 5, CompressedSize: 5, Flags: mpqtype.FlagExists}, mpqtype.ErrInvalidHeader},
		{"truncated", blocktable.Entry{FileSize: 5, CompressedSize: 5, Flags: mpqtype.FlagExists | mpqtype.FlagSingleUnit}, mpqtype.ErrTruncatedRead},
	}
	for _, tt := range tests {
		req := Request{Path: tt.name, Block: tt.block}
		if tt.name == "truncated" {
			req.SectorSize = testSectorSize
		}
		got, err := x.Extract(req)
		assert.ErrorIs(t, err, tt.want, tt.name)
		assert.Nil(t, got, tt.name)
	}
}

func TestExtractEmptyFile(t *testing.T) {
	t.Parallel()

	x := NewExtractor(testutil.NewMockByteSource(nil))
	got, err := x.Extract(Request{Block: blocktable.Entry{Flags: mpqtype.FlagExists | mpqtype.FlagCompress}})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestExtractMaxFileSize(t *testing.T) {
	t.Parallel()

	img, req := buildFile(t, testutil.File{Name: "big", Data: noise(1000)})
	_, err := NewExtractor(img.Source(), WithMaxFileSize(999)).Extract(req)
	require.ErrorIs(t, err, mpqtype.ErrSizeOverflow)

	got, err := NewExtractor(img.Source(), WithMaxFileSize(1000)).Extract(req)
	require.NoError(t, err)
	assert.Len(t, got, 1000)
}

// craftCompressed returns a source holding a sector table followed by payload.
func craftCompressed(offsets []uint32, payload []byte) (*testutil.MockByteSource, blocktable.Entry) {
	data := make([]byte, 4*len(offsets), 4*len(offsets)+len(payload))
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(data[i*4:], off)
	}
	data = append(data, payload...)
	return testutil.NewMockByteSource(data), blocktable.Entry{
		CompressedSize: uint32(len(data)), //nolint:gosec // small test data
		Flags:          mpqtype.FlagExists | mpqtype.FlagCompress,
	}
}

func TestExtractInvalidSectorTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		offsets []uint32
	}{
		{"decreasing", []uint32{12, 10, 20}},
		{"duplicate", []uint32{12, 12, 20}},
		{"out of bounds", []uint32{12, 20, 100}},
		{"overlaps table", []uint32{4, 16, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src, blk := craftCompressed(tt.offsets, make([]byte, 20))
			blk.FileSize = 2 * testSectorSize
			_, err := NewExtractor(src).Extract(Request{Path: tt.name, Block: blk, SectorSize: testSectorSize})
			require.ErrorIs(t, err, mpqtype.ErrInvalidSectorTable)
		})
	}
}

func TestExtractSingleUnitStoredSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		flags   mpqtype.Flags
		stored  uint32
		want    []byte
		wantErr error
	}{
		{"compressed larger than logical", mpqtype.FlagCompress, 8, nil, mpqtype.ErrDecompression},
		{"compressed equal to logical", mpqtype.FlagCompress, 5, []byte("hello"), nil},
		{"raw larger than logical", 0, 8, []byte("hello"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := testutil.NewMockByteSource([]byte("hello..."))
			blk := blocktable.Entry{
				FileSize:       5,
				CompressedSize: tt.stored,
				Flags:          mpqtype.FlagExists | mpqtype.FlagSingleUnit | tt.flags,
			}
			got, err := NewExtractor(src).Extract(Request{Path: tt.name, Block: blk, SectorSize: testSectorSize})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractTableLargerThanBlock(t *testing.T) {
	t.Parallel()

	src := testutil.NewMockByteSource(make([]byte, 8))
	blk := blocktable.Entry{CompressedSize: 8, FileSize: 10 * testSectorSize, Flags: mpqtype.FlagExists | mpqtype.FlagCompress}
	_, err := NewExtractor(src).Extract(Request{Block: blk, SectorSize: testSectorSize})
	require.ErrorIs(t, err, mpqtype.ErrInvalidSectorTable)
}

func TestExtractOversizedSector(t *testing.T) {
	t.Parallel()

	src, blk := craftCompressed([]uint32{8, 8 + testSectorSize + 4}, noise(testSectorSize+4))
	blk.FileSize = testSectorSize
	_, err := NewExtractor(src).Extract(Request{Block: blk, SectorSize: testSectorSize})
	require.ErrorIs(t, err, mpqtype.ErrDecompression)
}

func TestExtractCorruptSector(t *testing.T) {
	t.Parallel()

	payload := append([]byte{byte(mpqtype.CompressionZlib)}, noise(40)...)
	src, blk := craftCompressed([]uint32{8, 8 + uint32(len(payload))}, payload) //nolint:gosec // small test data
	blk.FileSize = 100
	_, err := NewExtractor(src).Extract(Request{Block: blk, SectorSize: testSectorSize})
	require.ErrorIs(t, err, mpqtype.ErrDecompression)
}

func TestExtractImploded(t *testing.T) {
	t.Parallel()

	stored := []byte{0x00, 0x04, 0x82, 0x24, 0x25, 0x8f, 0x80, 0x7f}
	src := testutil.NewMockByteSource(stored)
	blk := blocktable.Entry{
		CompressedSize: uint32(len(stored)),
		FileSize:       13,
		Flags:          mpqtype.FlagExists | mpqtype.FlagSingleUnit | mpqtype.FlagImplode,
	}
	got, err := NewExtractor(src).Extract(Request{Block: blk, SectorSize: testSectorSize})
	require.NoError(t, err)
	assert.Equal(t, "AIAIAIAIAIAIA", string(got))
}

func TestChecksumPolicy(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("checksum policy "), 1024)
	img, req := buildFile(t, testutil.File{
		Name:            "crc.bin",
		Data:            data,
		Flags:           mpqtype.FlagCompress | mpqtype.FlagSectorCRC,
		CorruptChecksum: true,
	})

	t.Run("warn", func(t *testing.T) {
		t.Parallel()
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		got, err := NewExtractor(img.Source(), WithLogger(logger)).Extract(req)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Contains(t, logs.String(), "sector checksum mismatch")
	})

	t.Run("ignore", func(t *testing.T) {
		t.Parallel()
		var logs bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&logs, nil))
		x := NewExtractor(img.Source(), WithLogger(logger), WithChecksumPolicy(mpqtype.ChecksumIgnore))
		got, err := x.Extract(req)
		require.NoError(t, err)
		assert.Equal(t, data, got)
		assert.Empty(t, logs.String())
	})

	t.Run("strict", func(t *testing.T) {
		t.Parallel()
		got, err := NewExtractor(img.Source(), WithChecksumPolicy(mpqtype.ChecksumStrict)).Extract(req)
		require.ErrorIs(t, err, mpqtype.ErrChecksumMismatch)
		assert.Nil(t, got)
	})
}

func TestAdler32(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(0), adler32(nil))
	// "a": s1 = 97, s2 = 97 with a zero seed.
	assert.Equal(t, uint32(97<<16|97), adler32([]byte("a")))

	// Long input crosses the 5552-byte reduction boundary.
	long := bytes.Repeat([]byte{0xFF}, 20000)
	var s1, s2 uint64
	for _, c := range long {
		s1 = (s1 + uint64(c)) % adlerMod
		s2 = (s2 + s1) % adlerMod
	}
	assert.Equal(t, uint32(s2<<16|s1), adler32(long)) //nolint:gosec // both halves are below 65521
}

func TestValidateSectorTable(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateSectorTable([]uint32{8, 20, 30}, 30))
	require.NoError(t, ValidateSectorTable([]uint32{8, 20}, 100))

	for _, offsets := range [][]uint32{nil, {8, 8}, {8, 4}, {8, 31}} {
		err := ValidateSectorTable(offsets, 30)
		assert.ErrorIs(t, err, mpqtype.ErrInvalidSectorTable, "offsets %v", offsets)
	}
}

func TestReadSectorTableEncrypted(t *testing.T) {
	t.Parallel()

	const key = 0x12345678
	raw := make([]byte, 16)
	for i, v := range []uint32{16, 100, 200, 210} {
		binary.LittleEndian.PutUint32(raw[i*4:], v)
	}
	crypt.EncryptBlock(raw, key-1)

	table, err := ReadSectorTable(raw, 2, mpqtype.FlagEncrypted|mpqtype.FlagSectorCRC, key)
	require.NoError(t, err)
	assert.Equal(t, []uint32{16, 100, 200}, table.Offsets)
	assert.True(t, table.HasChecksums())
	assert.Equal(t, uint32(210), table.ChecksumEnd)
	assert.Equal(t, 16, table.Len())
}

func TestStitch(t *testing.T) {
	t.Parallel()

	got, err := Stitch([][]byte{[]byte("ab"), nil, []byte("cde")})
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(got))

	got, err = Stitch(nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExtractConcurrent(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("concurrent "), 3000)
	img, req := buildFile(t, testutil.File{Name: "shared", Data: data, Flags: mpqtype.FlagCompress | mpqtype.FlagEncrypted})
	x := NewExtractor(img.Source())

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			got, err := x.Extract(req)
			if err == nil && !bytes.Equal(got, data) {
				err = errors.New("content mismatch")
			}
			errs <- err
		}()
	}
	for range 8 {
		require.NoError(t, <-errs)
	}
}
