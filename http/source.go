// Package http opens archives served over HTTP range requests.
package http //nolint:revive // intentional naming for domain clarity

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	nethttp "net/http"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultBlockSize is the read-ahead unit when block caching is enabled.
	DefaultBlockSize int64 = 64 << 10
	// DefaultMaxBlocks bounds the block cache.
	DefaultMaxBlocks = 256
)

// ErrRangeUnsupported is returned when the server ignores Range headers.
var ErrRangeUnsupported = errors.New("http: range requests not supported")

// Source implements random access reads via HTTP range requests.
// It satisfies mpq.ByteSource (io.ReaderAt plus Size and SourceID).
//
// Archive reads are small and scattered (header, tables, sector tables), so
// by default ReadAt fetches whole aligned blocks and keeps them in an LRU.
type Source struct {
	ctx                   context.Context
	url                   string
	client                *nethttp.Client
	headers               nethttp.Header
	size                  int64
	etag                  string
	lastModified          string
	sourceID              string
	useConditionalHeaders bool
	logger                *slog.Logger

	blockSize int64
	maxBlocks int
	blocks    *lru.Cache[int64, []byte] // nil = no block caching
	fetches   singleflight.Group
}

// Option configures a Source.
type Option func(*Source)

// WithClient sets the HTTP client used for requests.
func WithClient(client *nethttp.Client) Option {
	return func(s *Source) {
		s.client = client
	}
}

// WithHeaders sets additional headers on each request.
func WithHeaders(headers nethttp.Header) Option {
	return func(s *Source) {
		if headers == nil {
			return
		}
		s.headers = headers.Clone()
	}
}

// WithHeader sets a single header on each request.
func WithHeader(key, value string) Option {
	return func(s *Source) {
		if s.headers == nil {
			s.headers = make(nethttp.Header)
		}
		s.headers.Set(key, value)
	}
}

// WithSourceID overrides the default source identifier used for caching.
func WithSourceID(id string) Option {
	return func(s *Source) {
		s.sourceID = id
	}
}

// WithConditionalHeaders enables conditional range reads using ETag or
// Last-Modified. A 412 response is retried once without them.
func WithConditionalHeaders() Option {
	return func(s *Source) {
		s.useConditionalHeaders = true
	}
}

// WithBlockCache sets the block size and the number of cached blocks.
// A block size or count of zero disables block caching.
func WithBlockCache(blockSize int64, maxBlocks int) Option {
	return func(s *Source) {
		s.blockSize = blockSize
		s.maxBlocks = maxBlocks
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		s.logger = logger
	}
}

// NewSource creates a Source backed by HTTP range requests.
// It probes the remote to determine the content size. ctx bounds every
// request the Source makes, including later reads.
func NewSource(ctx context.Context, url string, opts ...Option) (*Source, error) {
	s := &Source{
		ctx:       ctx,
		url:       url,
		client:    nethttp.DefaultClient,
		blockSize: DefaultBlockSize,
		maxBlocks: DefaultMaxBlocks,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = nethttp.DefaultClient
	}
	if s.blockSize < 0 || s.maxBlocks < 0 {
		return nil, errors.New("block cache limits must be >= 0")
	}
	if s.blockSize > 0 && s.maxBlocks > 0 {
		blocks, err := lru.New[int64, []byte](s.maxBlocks)
		if err != nil {
			return nil, err
		}
		s.blocks = blocks
	}

	size, etag, lastModified, err := s.fetchMetadata()
	if err != nil {
		return nil, err
	}
	s.size = size
	s.etag = etag
	s.lastModified = lastModified
	if s.sourceID == "" {
		s.sourceID = s.defaultSourceID()
	}
	s.log().Debug("http source opened", "url", url, "size", size, "etag", etag)
	return s, nil
}

func (s *Source) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Size returns the total size of the remote content.
func (s *Source) Size() int64 {
	return s.size
}

// SourceID returns a stable identifier for the remote content.
func (s *Source) SourceID() string {
	return s.sourceID
}

// ReadAt reads len(p) bytes at off. It implements [io.ReaderAt]: if fewer
// bytes are available than requested, it returns the count along with io.EOF.
func (s *Source) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}

	want := min(int64(len(p)), s.size-off)
	var n int
	var err error
	if s.blocks == nil {
		var data []byte
		data, err = s.fetchRange(off, off+want-1)
		n = copy(p, data)
	} else {
		n, err = s.readBlocks(p[:want], off)
	}
	if err != nil {
		return n, err
	}
	if want < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

// readBlocks fills p from aligned blocks. p never extends past the end.
func (s *Source) readBlocks(p []byte, off int64) (int, error) {
	n := 0
	for n < len(p) {
		pos := off + int64(n)
		start := pos - pos%s.blockSize
		block, err := s.block(start)
		if err != nil {
			return n, err
		}
		copied := copy(p[n:], block[pos-start:])
		if copied == 0 {
			return n, io.ErrUnexpectedEOF
		}
		n += copied
	}
	return n, nil
}

// block returns the cached block at start, fetching it once across
// concurrent callers.
func (s *Source) block(start int64) ([]byte, error) {
	if data, ok := s.blocks.Get(start); ok {
		return data, nil
	}
	v, err, _ := s.fetches.Do(strconv.FormatInt(start, 10), func() (any, error) {
		if data, ok := s.blocks.Get(start); ok {
			return data, nil
		}
		end := min(start+s.blockSize, s.size) - 1
		data, err := s.fetchRange(start, end)
		if err != nil {
			return nil, err
		}
		s.blocks.Add(start, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:forcetypeassert // only []byte is stored
}

// fetchRange GETs the inclusive range [off, end], which must lie inside the
// content.
func (s *Source) fetchRange(off, end int64) ([]byte, error) {
	s.log().Debug("http range", "url", s.url, "off", off, "end", end)
	resp, err := s.rangeRequest(off, end, true)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == nethttp.StatusPreconditionFailed && s.hasConditionalHeaders() {
		resp.Body.Close()
		resp, err = s.rangeRequest(off, end, false)
		if err != nil {
			return nil, err
		}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusRequestedRangeNotSatisfiable:
		return nil, io.EOF
	case nethttp.StatusOK:
		return nil, ErrRangeUnsupported
	default:
		return nil, fmt.Errorf("http: range request failed: %s", resp.Status)
	}

	buf := make([]byte, end-off+1)
	n, err := io.ReadFull(resp.Body, buf)
	if err != nil {
		return buf[:n], fmt.Errorf("http: range %d-%d: %w", off, end, err)
	}
	return buf, nil
}

// defaultSourceID builds a source identifier from the URL and available metadata.
func (s *Source) defaultSourceID() string {
	if s.etag != "" {
		return fmt.Sprintf("url:%s|etag:%s", s.url, s.etag)
	}
	if s.lastModified != "" {
		return fmt.Sprintf("url:%s|mod:%s|size:%d", s.url, s.lastModified, s.size)
	}
	return fmt.Sprintf("url:%s|size:%d", s.url, s.size)
}

// fetchMetadata retrieves content size and cache validators. HEAD is
// advisory; the range probe is authoritative.
func (s *Source) fetchMetadata() (size int64, etag, lastModified string, err error) {
	size = -1
	if resp, headErr := s.do(nethttp.MethodHead, "", false); headErr == nil {
		size = resp.ContentLength
		etag = resp.Header.Get("ETag")
		lastModified = resp.Header.Get("Last-Modified")
		resp.Body.Close()
	}

	rangeSize, rangeETag, rangeLastModified, err := s.rangeProbe()
	if err != nil {
		return 0, "", "", err
	}
	if size > 0 && size != rangeSize {
		return 0, "", "", fmt.Errorf("http: content size mismatch: head=%d range=%d", size, rangeSize)
	}
	if etag == "" {
		etag = rangeETag
	}
	if lastModified == "" {
		lastModified = rangeLastModified
	}
	return rangeSize, etag, lastModified, nil
}

// rangeProbe checks range support and reads the size from Content-Range.
func (s *Source) rangeProbe() (size int64, etag, lastModified string, err error) {
	resp, err := s.do(nethttp.MethodGet, "bytes=0-0", false)
	if err != nil {
		return 0, "", "", err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()

	switch resp.StatusCode {
	case nethttp.StatusPartialContent:
	case nethttp.StatusOK:
		return 0, "", "", ErrRangeUnsupported
	default:
		return 0, "", "", fmt.Errorf("http: range probe failed: %s", resp.Status)
	}

	size, err = parseContentRange(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, "", "", err
	}
	return size, resp.Header.Get("ETag"), resp.Header.Get("Last-Modified"), nil
}

// rangeRequest performs a GET request for the specified byte range.
func (s *Source) rangeRequest(off, end int64, withConditions bool) (*nethttp.Response, error) {
	return s.do(nethttp.MethodGet, fmt.Sprintf("bytes=%d-%d", off, end), withConditions)
}

// do sends a request with the configured headers. Conditional headers are
// added to ranged GETs when enabled.
func (s *Source) do(method, byteRange string, withConditions bool) (*nethttp.Response, error) {
	req, err := nethttp.NewRequestWithContext(s.ctx, method, s.url, nethttp.NoBody)
	if err != nil {
		return nil, err
	}
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "identity")
	}
	if byteRange != "" {
		req.Header.Set("Range", byteRange)
	}
	if method == nethttp.MethodGet && withConditions && s.useConditionalHeaders {
		if s.etag != "" && req.Header.Get("If-Match") == "" {
			req.Header.Set("If-Match", s.etag)
		}
		if s.lastModified != "" && req.Header.Get("If-Unmodified-Since") == "" {
			req.Header.Set("If-Unmodified-Since", s.lastModified)
		}
	}
	return s.client.Do(req)
}

// hasConditionalHeaders reports whether conditional headers are enabled and available.
func (s *Source) hasConditionalHeaders() bool {
	return s.useConditionalHeaders && (s.etag != "" || s.lastModified != "")
}

// parseContentRange extracts the total size from "bytes start-end/size".
func parseContentRange(value string) (int64, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes ")
	if !ok {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	_, total, ok := strings.Cut(rest, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	size, err := strconv.ParseInt(total, 10, 64)
	if err != nil || size < 0 {
		return 0, fmt.Errorf("http: invalid Content-Range %q", value)
	}
	return size, nil
}
