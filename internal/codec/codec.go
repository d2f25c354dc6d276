// Package codec decodes compressed sector data.
//
// Compressed sectors start with a one-byte tag whose bits name the
// compression stages that were applied. Stages are undone in a fixed order.
// LZMA is never combined with other stages.
package codec

import (
	"fmt"
	"math"

	"github.com/meigma/mpq/internal/mpqtype"
)

// Func decodes one compression stage. maxSize bounds the decoded length;
// stages that know their exact output size must produce exactly maxSize
// bytes when they are the last stage.
type Func func(data []byte, maxSize int) ([]byte, error)

// stageOrder lists the combinable stages in decode order.
var stageOrder = []mpqtype.Compression{
	mpqtype.CompressionBzip2,
	mpqtype.CompressionPKWare,
	mpqtype.CompressionZlib,
	mpqtype.CompressionHuffman,
	mpqtype.CompressionADPCMStereo,
	mpqtype.CompressionADPCMMono,
	mpqtype.CompressionSparse,
}

// Registry maps compression bits to decoders. It is safe for concurrent use
// once constructed.
type Registry struct {
	codecs map[mpqtype.Compression]Func
}

// Option configures a Registry.
type Option func(*Registry)

// WithCodec registers fn for a compression bit, replacing any built-in codec.
// A nil fn removes the codec.
func WithCodec(c mpqtype.Compression, fn Func) Option {
	return func(r *Registry) {
		if fn == nil {
			delete(r.codecs, c)
			return
		}
		r.codecs[c] = fn
	}
}

// NewRegistry returns a registry with the built-in codecs: zlib, bzip2,
// PKWARE DCL, LZMA and sparse. Huffman and ADPCM require WithCodec.
func NewRegistry(opts ...Option) *Registry {
	zp := newZlibPool()
	r := &Registry{
		codecs: map[mpqtype.Compression]Func{
			mpqtype.CompressionZlib:   zp.decode,
			mpqtype.CompressionBzip2:  decodeBzip2,
			mpqtype.CompressionPKWare: Explode,
			mpqtype.CompressionLZMA:   decodeLZMA,
			mpqtype.CompressionSparse: decodeSparse,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Decompress decodes tag-prefixed sector data into at most outSize bytes.
func (r *Registry) Decompress(data []byte, outSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty sector", mpqtype.ErrDecompression)
	}
	tag := mpqtype.Compression(data[0])
	payload := data[1:]

	if tag == mpqtype.CompressionLZMA {
		return r.stage(tag, payload, outSize)
	}

	if unknown := tag &^ knownStages(); unknown != 0 {
		return nil, fmt.Errorf("%w: tag 0x%02x", mpqtype.ErrUnsupportedCompression, uint8(tag))
	}

	var stages []mpqtype.Compression
	for _, stage := range stageOrder {
		if tag&stage != 0 {
			stages = append(stages, stage)
		}
	}

	out := payload
	for i, stage := range stages {
		limit := outSize
		if i < len(stages)-1 {
			limit = intermediateLimit(outSize)
		}
		var err error
		out, err = r.stage(stage, out, limit)
		if err != nil {
			return nil, err
		}
	}
	if len(out) > outSize {
		return nil, fmt.Errorf("%w: %s produced %d bytes, want at most %d", mpqtype.ErrDecompression, tag, len(out), outSize)
	}
	return out, nil
}

// intermediateLimit bounds the output of a stage that feeds another stage.
// Sparse and ADPCM input can be longer than what it decodes to.
func intermediateLimit(outSize int) int {
	const factor, slack = 4, 64
	if outSize > (math.MaxInt-slack)/factor {
		return math.MaxInt
	}
	return outSize*factor + slack
}

// Explode decodes PKWARE DCL data stored without a tag byte.
func (r *Registry) Explode(data []byte, outSize int) ([]byte, error) {
	return r.stage(mpqtype.CompressionPKWare, data, outSize)
}

func (r *Registry) stage(c mpqtype.Compression, data []byte, outSize int) ([]byte, error) {
	fn, ok := r.codecs[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", mpqtype.ErrUnsupportedCompression, c)
	}
	out, err := fn(data, outSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", mpqtype.ErrDecompression, c, err)
	}
	return out, nil
}

func knownStages() mpqtype.Compression {
	var m mpqtype.Compression
	for _, s := range stageOrder {
		m |= s
	}
	return m
}
