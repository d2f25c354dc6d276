package sector

import (
	"encoding/binary"
	"fmt"

	"github.com/meigma/mpq/internal/mpqtype"
)

const adlerMod = 65521

// adler32 computes Adler-32 starting from zero rather than one, which is how
// the format seeds its sector checksums.
func adler32(data []byte) uint32 {
	var s1, s2 uint32
	for len(data) > 0 {
		// 5552 is the largest run that cannot overflow s2.
		n := min(len(data), 5552)
		for _, c := range data[:n] {
			s1 += uint32(c)
			s2 += s1
		}
		s1 %= adlerMod
		s2 %= adlerMod
		data = data[n:]
	}
	return s2<<16 | s1
}

// loadChecksums returns the per-sector checksums. The checksum block is
// compressed when it is smaller than one word per sector. An empty block
// yields nil.
func (x *Extractor) loadChecksums(data []byte, t *Table, sectors int) ([]uint32, error) {
	block := data[t.Offsets[len(t.Offsets)-1]:t.ChecksumEnd]
	if len(block) == 0 {
		return nil, nil
	}
	want := sectors * 4
	if len(block) < want {
		out, err := x.codecs.Decompress(block, want)
		if err != nil {
			return nil, fmt.Errorf("sector checksums: %w", err)
		}
		block = out
	}
	if len(block) < want {
		return nil, fmt.Errorf("%w: checksum block is %d bytes, want %d", mpqtype.ErrChecksumMismatch, len(block), want)
	}
	sums := make([]uint32, sectors)
	for i := range sums {
		sums[i] = binary.LittleEndian.Uint32(block[i*4:])
	}
	return sums, nil
}

// checkSector verifies one sector's stored bytes against its checksum.
// Zero and all-ones checksums mean "not recorded".
func (x *Extractor) checkSector(path string, index int, raw []byte, want uint32) error {
	if want == 0 || want == 0xFFFFFFFF {
		return nil
	}
	got := adler32(raw)
	if got == want {
		return nil
	}
	if x.policy == mpqtype.ChecksumStrict {
		return fmt.Errorf("%w: sector %d: adler32 %08x, want %08x", mpqtype.ErrChecksumMismatch, index, got, want)
	}
	x.log().Warn("sector checksum mismatch", "path", path, "sector", index, "got", got, "want", want)
	return nil
}
