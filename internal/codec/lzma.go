package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ulikunitz/xz/lzma"
)

const (
	lzmaPropsSize  = 5
	lzmaHeaderSize = 1 + lzmaPropsSize + 8
)

// decodeLZMA decodes an LZMA sector: a filter byte (always 0), the five
// property bytes, an eight-byte size field and the raw stream. The size field
// is not trusted; the expected size is used instead.
func decodeLZMA(data []byte, maxSize int) ([]byte, error) {
	if len(data) < lzmaHeaderSize {
		return nil, fmt.Errorf("lzma: sector is %d bytes, header needs %d", len(data), lzmaHeaderSize)
	}
	if data[0] != 0 {
		return nil, fmt.Errorf("lzma: unsupported filter %d", data[0])
	}

	hdr := make([]byte, lzmaPropsSize+8, lzmaPropsSize+8+len(data)-lzmaHeaderSize)
	copy(hdr, data[1:1+lzmaPropsSize])
	binary.LittleEndian.PutUint64(hdr[lzmaPropsSize:], uint64(maxSize)) //nolint:gosec // maxSize is never negative
	stream := append(hdr, data[lzmaHeaderSize:]...)

	lr, err := lzma.NewReader(bytes.NewReader(stream))
	if err != nil {
		return nil, fmt.Errorf("lzma: %w", err)
	}
	return readBounded(lr, maxSize)
}
