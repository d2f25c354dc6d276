// Package testutil builds synthetic archives and in-memory sources for tests.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"slices"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data     []byte
	sourceID string
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	sum := sha256.Sum256(data)
	return &MockByteSource{
		data:     data,
		sourceID: "mock:" + hex.EncodeToString(sum[:]),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a stable identifier for the source data.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// Segment is a run of bytes at an absolute offset.
type Segment struct {
	Offset int64
	Data   []byte
}

// SparseSource is a byte source of a fixed size where only the given
// segments hold data. Everything else reads as zero. It lets tests place
// data beyond 4 GiB without allocating it.
type SparseSource struct {
	size     int64
	segments []Segment
	sourceID string
}

// NewSparseSource returns a sparse source. Segments must not overlap.
func NewSparseSource(size int64, id string, segments ...Segment) *SparseSource {
	segs := slices.Clone(segments)
	slices.SortFunc(segs, func(a, b Segment) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		default:
			return 0
		}
	})
	return &SparseSource{size: size, segments: segs, sourceID: "sparse:" + id}
}

// ReadAt implements io.ReaderAt.
func (s *SparseSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.size {
		return 0, io.EOF
	}
	n := len(p)
	if rem := s.size - off; int64(n) > rem {
		n = int(rem)
	}
	clear(p[:n])
	end := off + int64(n)
	for _, seg := range s.segments {
		segEnd := seg.Offset + int64(len(seg.Data))
		if segEnd <= off || seg.Offset >= end {
			continue
		}
		lo := max(off, seg.Offset)
		hi := min(end, segEnd)
		copy(p[lo-off:hi-off], seg.Data[lo-seg.Offset:hi-seg.Offset])
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the logical size of the source.
func (s *SparseSource) Size() int64 {
	return s.size
}

// SourceID returns the source identifier.
func (s *SparseSource) SourceID() string {
	return s.sourceID
}
