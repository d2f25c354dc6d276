package codec

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// zlibPool manages reusable zlib readers to reduce allocation overhead.
type zlibPool struct {
	pool sync.Pool
}

func newZlibPool() *zlibPool {
	return &zlibPool{}
}

// get returns a reader positioned on r and a release function.
func (p *zlibPool) get(r io.Reader) (io.ReadCloser, func(), error) {
	if v := p.pool.Get(); v != nil {
		zr, ok := v.(io.ReadCloser)
		resetter, canReset := v.(zlib.Resetter)
		if ok && canReset {
			if err := resetter.Reset(r, nil); err == nil {
				return zr, func() { p.pool.Put(zr) }, nil
			}
		}
	}
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	return zr, func() { p.pool.Put(zr) }, nil
}

func (p *zlibPool) decode(data []byte, maxSize int) ([]byte, error) {
	zr, release, err := p.get(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer release()
	return readBounded(zr, maxSize)
}

// readBounded reads r to EOF, failing if it yields more than maxSize bytes.
func readBounded(r io.Reader, maxSize int) ([]byte, error) {
	out := bytes.NewBuffer(make([]byte, 0, min(maxSize, 64<<10)))
	n, err := io.Copy(out, io.LimitReader(r, int64(maxSize)+1))
	if err != nil {
		return nil, err
	}
	if n > int64(maxSize) {
		return nil, fmt.Errorf("output exceeds %d bytes", maxSize)
	}
	return out.Bytes(), nil
}
