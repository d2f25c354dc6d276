package codec

import (
	"errors"
	"fmt"
)

// PKWARE Data Compression Library "implode" decoder. Codes are canonical
// Huffman codes stored bit-inverted, read least significant bit first.

const explodeMaxBits = 13

var (
	explodeLitLen = []byte{
		11, 124, 8, 7, 28, 7, 188, 13, 76, 4, 10, 8, 12, 10, 12, 10, 8, 23, 8,
		9, 7, 6, 7, 8, 7, 6, 55, 8, 23, 24, 12, 11, 7, 9, 11, 12, 6, 7, 22, 5,
		7, 24, 6, 11, 9, 6, 7, 22, 7, 11, 38, 7, 9, 8, 25, 11, 8, 11, 9, 12,
		8, 12, 5, 38, 5, 38, 5, 11, 7, 5, 6, 21, 6, 10, 53, 8, 7, 24, 10, 27,
		44, 253, 253, 253, 252, 252, 252, 13, 12, 45, 12, 45, 12, 61, 12, 45,
		44, 173,
	}
	explodeLenLen  = []byte{2, 35, 36, 53, 38, 23}
	explodeDistLen = []byte{2, 20, 53, 230, 247, 151, 248}
	explodeBase    = [16]int{3, 2, 4, 5, 6, 7, 8, 9, 10, 12, 16, 24, 40, 72, 136, 264}
	explodeExtra   = [16]uint{0, 0, 0, 0, 0, 0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8}
)

const explodeEndLen = 519

type huffman struct {
	count  [explodeMaxBits + 1]int
	symbol []int
}

// newHuffman builds a decoding table from run-length encoded code lengths.
// Each byte holds a length in its low nibble and a repeat count minus one in
// its high nibble.
func newHuffman(rep []byte) *huffman {
	var lengths []int
	for _, r := range rep {
		n := int(r>>4) + 1
		for range n {
			lengths = append(lengths, int(r&0x0F))
		}
	}

	h := &huffman{symbol: make([]int, len(lengths))}
	for _, l := range lengths {
		h.count[l]++
	}
	var offs [explodeMaxBits + 1]int
	for l := 1; l < explodeMaxBits; l++ {
		offs[l+1] = offs[l] + h.count[l]
	}
	for sym, l := range lengths {
		if l != 0 {
			h.symbol[offs[l]] = sym
			offs[l]++
		}
	}
	return h
}

var (
	explodeLitCode  = newHuffman(explodeLitLen)
	explodeLenCode  = newHuffman(explodeLenLen)
	explodeDistCode = newHuffman(explodeDistLen)
)

var errExplodeInput = errors.New("pkware: unexpected end of input")

type bitReader struct {
	in     []byte
	bitbuf uint32
	bitcnt uint
}

func (b *bitReader) bits(need uint) (int, error) {
	val := b.bitbuf
	for b.bitcnt < need {
		if len(b.in) == 0 {
			return 0, errExplodeInput
		}
		val |= uint32(b.in[0]) << b.bitcnt
		b.in = b.in[1:]
		b.bitcnt += 8
	}
	b.bitbuf = val >> need
	b.bitcnt -= need
	return int(val & (1<<need - 1)), nil
}

func (b *bitReader) decode(h *huffman) (int, error) {
	code, first, index := 0, 0, 0
	for l := 1; l <= explodeMaxBits; l++ {
		bit, err := b.bits(1)
		if err != nil {
			return 0, err
		}
		code |= bit ^ 1
		count := h.count[l]
		if code < first+count {
			return h.symbol[index+code-first], nil
		}
		index += count
		first += count
		first <<= 1
		code <<= 1
	}
	return 0, errors.New("pkware: invalid code")
}

// Explode decodes a PKWARE DCL stream into at most maxSize bytes.
//
// TODO: decode through github.com/JoshVarga/blast once a version can be pinned.
func Explode(data []byte, maxSize int) ([]byte, error) {
	br := &bitReader{in: data}

	lit, err := br.bits(8)
	if err != nil {
		return nil, err
	}
	if lit > 1 {
		return nil, fmt.Errorf("pkware: invalid literal mode %d", lit)
	}
	dict, err := br.bits(8)
	if err != nil {
		return nil, err
	}
	if dict < 4 || dict > 6 {
		return nil, fmt.Errorf("pkware: invalid dictionary size %d", dict)
	}

	out := make([]byte, 0, min(maxSize, 64<<10))
	for {
		isCopy, err := br.bits(1)
		if err != nil {
			return nil, err
		}
		if isCopy == 0 {
			var sym int
			if lit == 1 {
				sym, err = br.decode(explodeLitCode)
			} else {
				sym, err = br.bits(8)
			}
			if err != nil {
				return nil, err
			}
			if len(out) >= maxSize {
				return nil, fmt.Errorf("pkware: output exceeds %d bytes", maxSize)
			}
			out = append(out, byte(sym))
			continue
		}

		sym, err := br.decode(explodeLenCode)
		if err != nil {
			return nil, err
		}
		extra, err := br.bits(explodeExtra[sym])
		if err != nil {
			return nil, err
		}
		length := explodeBase[sym] + extra
		if length == explodeEndLen {
			return out, nil
		}

		shift := uint(dict) //nolint:gosec // dict is 4..6
		if length == 2 {
			shift = 2
		}
		hi, err := br.decode(explodeDistCode)
		if err != nil {
			return nil, err
		}
		lo, err := br.bits(shift)
		if err != nil {
			return nil, err
		}
		dist := hi<<shift + lo + 1
		if dist > len(out) {
			return nil, fmt.Errorf("pkware: distance %d too far back", dist)
		}
		if len(out)+length > maxSize {
			return nil, fmt.Errorf("pkware: output exceeds %d bytes", maxSize)
		}
		for range length {
			out = append(out, out[len(out)-dist])
		}
	}
}
