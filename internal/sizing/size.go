// Package sizing provides overflow-safe size arithmetic and positioned reads.
package sizing

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/meigma/mpq/internal/mpqtype"
)

// ToInt converts a uint64 to int, returning ErrSizeOverflow if it doesn't fit.
func ToInt(size uint64) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, mpqtype.ErrSizeOverflow
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64, returning ErrSizeOverflow if it doesn't fit.
func ToInt64(size uint64) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, mpqtype.ErrSizeOverflow
	}
	return int64(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}

// MulUint64 multiplies two uint64 values, returning (result, false) on overflow.
func MulUint64(a, b uint64) (uint64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}

// ReadFullAt reads exactly n bytes at off.
// A short read is reported as ErrTruncatedRead.
func ReadFullAt(r io.ReaderAt, off uint64, n uint64) ([]byte, error) {
	size, err := ToInt(n)
	if err != nil {
		return nil, err
	}
	pos, err := ToInt64(off)
	if err != nil {
		return nil, err
	}
	if _, ok := AddUint64(off, n); !ok {
		return nil, mpqtype.ErrSizeOverflow
	}
	buf := make([]byte, size)
	if size == 0 {
		return buf, nil
	}
	got, err := r.ReadAt(buf, pos)
	if got == size {
		return buf, nil
	}
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("%w: %d of %d bytes at offset %d", mpqtype.ErrTruncatedRead, got, size, off)
	}
	return nil, fmt.Errorf("read at offset %d: %w", off, err)
}
