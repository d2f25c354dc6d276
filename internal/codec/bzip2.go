package codec

import (
	"bytes"
	"compress/bzip2"
)

func decodeBzip2(data []byte, maxSize int) ([]byte, error) {
	return readBounded(bzip2.NewReader(bytes.NewReader(data)), maxSize)
}
