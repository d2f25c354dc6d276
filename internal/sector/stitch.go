package sector

import (
	"fmt"

	"github.com/meigma/mpq/internal/mpqtype"
	"github.com/meigma/mpq/internal/sizing"
)

// Stitch concatenates sectors in order. The result always has exactly the
// summed sector length.
func Stitch(sectors [][]byte) ([]byte, error) {
	var total uint64
	for _, s := range sectors {
		next, ok := sizing.AddUint64(total, uint64(len(s)))
		if !ok {
			return nil, mpqtype.ErrSizeOverflow
		}
		total = next
	}
	n, err := sizing.ToInt(total)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, n)
	for _, s := range sectors {
		out = append(out, s...)
	}
	if len(out) != n {
		return nil, fmt.Errorf("%w: stitched %d bytes, want %d", mpqtype.ErrSizeOverflow, len(out), n)
	}
	return out, nil
}
