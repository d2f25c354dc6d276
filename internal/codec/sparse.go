package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// decodeSparse expands zero-run encoded data. The stream starts with the
// big-endian output size. Each control byte either copies (b&0x7F)+1 literal
// bytes (high bit set) or writes (b&0x7F)+3 zero bytes.
func decodeSparse(data []byte, maxSize int) ([]byte, error) {
	if len(data) < 4 {
		return nil, errors.New("sparse: missing size")
	}
	size := int(binary.BigEndian.Uint32(data))
	if size > maxSize {
		return nil, fmt.Errorf("sparse: declared size %d exceeds %d", size, maxSize)
	}
	out := make([]byte, 0, size)
	in := data[4:]
	for len(in) > 0 && len(out) < size {
		ctl := in[0]
		in = in[1:]
		if ctl&0x80 != 0 {
			n := int(ctl&0x7F) + 1
			if n > len(in) {
				return nil, errors.New("sparse: literal run past end of input")
			}
			n = min(n, size-len(out))
			out = append(out, in[:n]...)
			in = in[n:]
			continue
		}
		n := min(int(ctl&0x7F)+3, size-len(out))
		out = append(out, make([]byte, n)...)
	}
	if len(out) != size {
		return nil, fmt.Errorf("sparse: produced %d bytes, want %d", len(out), size)
	}
	return out, nil
}
