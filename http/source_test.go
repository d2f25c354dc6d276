package http_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	mpqhttp "github.com/meigma/mpq/http"
)

func serve(t *testing.T, data []byte, gets *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodGet && gets != nil {
			gets.Add(1)
		}
		nethttp.ServeContent(w, r, "archive.mpq", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestSource_ReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	server := serve(t, data, nil)

	for _, opts := range [][]mpqhttp.Option{
		{mpqhttp.WithConditionalHeaders()},
		{mpqhttp.WithBlockCache(0, 0)},
		{mpqhttp.WithBlockCache(4, 2)},
	} {
		src, err := mpqhttp.NewSource(context.Background(), server.URL, opts...)
		if err != nil {
			t.Fatalf("NewSource() error = %v", err)
		}
		if src.Size() != int64(len(data)) {
			t.Fatalf("Size() = %d, want %d", src.Size(), len(data))
		}

		tests := []struct {
			name    string
			bufSize int
			offset  int64
			wantN   int
			wantErr error
			want    string
		}{
			{"read from middle", 5, 6, 5, nil, "world"},
			{"read past end returns EOF", 10, int64(len(data) - 3), 3, io.EOF, "rld"},
			{"offset at end", 1, int64(len(data)), 0, io.EOF, ""},
			{"whole", len(data), 0, len(data), nil, "hello world"},
		}
		for _, tt := range tests {
			buf := make([]byte, tt.bufSize)
			n, err := src.ReadAt(buf, tt.offset)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("%s: ReadAt() error = %v, want %v", tt.name, err, tt.wantErr)
			}
			if n != tt.wantN {
				t.Fatalf("%s: ReadAt() n = %d, want %d", tt.name, n, tt.wantN)
			}
			if got := string(buf[:n]); got != tt.want {
				t.Fatalf("%s: ReadAt() got %q, want %q", tt.name, got, tt.want)
			}
		}
	}
}

func TestSource_BlockCacheReusesBlocks(t *testing.T) {
	t.Parallel()

	data := bytes.Repeat([]byte("0123456789abcdef"), 64)
	var gets atomic.Int32
	server := serve(t, data, &gets)

	src, err := mpqhttp.NewSource(context.Background(), server.URL, mpqhttp.WithBlockCache(256, 8))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	probe := gets.Load()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			buf := make([]byte, 16)
			off := int64(i%4) * 16
			if _, err := src.ReadAt(buf, off); err != nil {
				t.Errorf("ReadAt(%d) error = %v", off, err)
				return
			}
			if !bytes.Equal(buf, data[off:off+16]) {
				t.Errorf("ReadAt(%d) = %q", off, buf)
			}
		}()
	}
	wg.Wait()
	if got := gets.Load() - probe; got != 1 {
		t.Fatalf("range GETs = %d, want 1", got)
	}

	// A read spanning two blocks fetches the second one.
	buf := make([]byte, 32)
	if _, err := src.ReadAt(buf, 240); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if !bytes.Equal(buf, data[240:272]) {
		t.Fatalf("ReadAt() = %q", buf)
	}
	if got := gets.Load() - probe; got != 2 {
		t.Fatalf("range GETs = %d, want 2", got)
	}
}

func TestNewSource_RangeUnsupported(t *testing.T) {
	t.Parallel()

	data := []byte("range unsupported")
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method == nethttp.MethodHead {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(server.Close)

	_, err := mpqhttp.NewSource(context.Background(), server.URL)
	if !errors.Is(err, mpqhttp.ErrRangeUnsupported) {
		t.Fatalf("NewSource() error = %v, want ErrRangeUnsupported", err)
	}
}

func TestNewSource_InvalidBlockCache(t *testing.T) {
	t.Parallel()

	server := serve(t, []byte("x"), nil)
	if _, err := mpqhttp.NewSource(context.Background(), server.URL, mpqhttp.WithBlockCache(-1, 1)); err == nil {
		t.Fatal("NewSource() error = nil, want error")
	}
}

func TestSource_SourceID(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("ETag", `"v1"`)
		nethttp.ServeContent(w, r, "a", time.Time{}, bytes.NewReader([]byte("abc")))
	}))
	t.Cleanup(server.Close)

	src, err := mpqhttp.NewSource(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if want := "url:" + server.URL + `|etag:"v1"`; src.SourceID() != want {
		t.Fatalf("SourceID() = %q, want %q", src.SourceID(), want)
	}

	src, err = mpqhttp.NewSource(context.Background(), server.URL, mpqhttp.WithSourceID("fixed"))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if src.SourceID() != "fixed" {
		t.Fatalf("SourceID() = %q, want fixed", src.SourceID())
	}
}

func TestSource_HeadersForwarded(t *testing.T) {
	t.Parallel()

	var missing atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Header.Get("Authorization") != "Bearer token" || r.Header.Get("X-Extra") != "1" {
			missing.Add(1)
		}
		nethttp.ServeContent(w, r, "a", time.Time{}, bytes.NewReader([]byte("abc")))
	}))
	t.Cleanup(server.Close)

	hdr := nethttp.Header{}
	hdr.Set("Authorization", "Bearer token")
	src, err := mpqhttp.NewSource(context.Background(), server.URL,
		mpqhttp.WithHeaders(hdr), mpqhttp.WithHeader("X-Extra", "1"), mpqhttp.WithClient(server.Client()))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	if _, err := src.ReadAt(make([]byte, 3), 0); err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if missing.Load() != 0 {
		t.Fatalf("%d requests without configured headers", missing.Load())
	}
}

func TestSource_ReadAt_RetriesWithoutIfMatchOn412(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	etag := `"retry-test"`
	var withIfMatchRange, withoutIfMatchRange atomic.Int32

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		switch r.Method {
		case nethttp.MethodHead:
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("ETag", etag)
		case nethttp.MethodGet:
			if r.Header.Get("Range") == "bytes=6-10" {
				if r.Header.Get("If-Match") != "" {
					withIfMatchRange.Add(1)
					w.WriteHeader(nethttp.StatusPreconditionFailed)
					return
				}
				withoutIfMatchRange.Add(1)
			}
			w.Header().Set("ETag", etag)
			nethttp.ServeContent(w, r, "data", time.Time{}, bytes.NewReader(data))
		default:
			w.WriteHeader(nethttp.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(server.Close)

	src, err := mpqhttp.NewSource(context.Background(), server.URL,
		mpqhttp.WithConditionalHeaders(), mpqhttp.WithBlockCache(0, 0))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}

	buf := make([]byte, 5)
	n, err := src.ReadAt(buf, 6)
	if err != nil {
		t.Fatalf("ReadAt() error = %v", err)
	}
	if got := string(buf[:n]); got != "world" {
		t.Fatalf("ReadAt() got %q, want %q", got, "world")
	}
	if withIfMatchRange.Load() != 1 {
		t.Fatalf("expected one range request with If-Match, got %d", withIfMatchRange.Load())
	}
	if withoutIfMatchRange.Load() != 1 {
		t.Fatalf("expected one range retry without If-Match, got %d", withoutIfMatchRange.Load())
	}
}
