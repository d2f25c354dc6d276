package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/meigma/mpq"
	"github.com/meigma/mpq/cache"
	"github.com/meigma/mpq/cache/disk"
	"github.com/meigma/mpq/cache/memory"
	mpqhttp "github.com/meigma/mpq/http"
)

// openArchive opens target, a local path or an http(s) URL, with the
// configured options.
func (a *app) openArchive(ctx context.Context, target string) (*mpq.Archive, error) {
	opts, err := a.archiveOptions()
	if err != nil {
		return nil, err
	}
	if !isURL(target) {
		return mpq.Open(target, opts...)
	}

	blockSize, err := parseSize("http.block_size", a.cfg.HTTP.BlockSize)
	if err != nil {
		return nil, err
	}
	httpOpts := []mpqhttp.Option{
		mpqhttp.WithLogger(a.logger),
		mpqhttp.WithBlockCache(int64(blockSize), a.cfg.HTTP.MaxBlocks), //nolint:gosec // parsed sizes are far below 2^63
	}
	for k, v := range a.cfg.HTTP.Headers {
		httpOpts = append(httpOpts, mpqhttp.WithHeader(k, v))
	}
	src, err := mpqhttp.NewSource(ctx, target, httpOpts...)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", target, err)
	}
	return mpq.New(src, opts...)
}

func (a *app) archiveOptions() ([]mpq.Option, error) {
	policy, err := a.cfg.checksumPolicy()
	if err != nil {
		return nil, err
	}
	maxSize, err := parseSize("max_file_size", a.cfg.MaxFileSize)
	if err != nil {
		return nil, err
	}
	opts := []mpq.Option{
		mpq.WithLogger(a.logger),
		mpq.WithChecksumPolicy(policy),
		mpq.WithMaxFileSize(maxSize),
	}

	locale, ok, err := a.cfg.locale()
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, mpq.WithLocale(locale))
	}
	if len(a.cfg.Listfiles) > 0 {
		opts = append(opts, mpq.WithListfile(a.cfg.Listfiles...))
	}

	c, err := a.openCache()
	if err != nil {
		return nil, err
	}
	if c != nil {
		opts = append(opts, mpq.WithCache(c))
	}
	return opts, nil
}

func (a *app) openCache() (cache.Cache, error) {
	maxSize, err := parseSize("cache.max_size", a.cfg.Cache.MaxSize)
	if err != nil {
		return nil, err
	}
	limit := int64(maxSize) //nolint:gosec // parsed sizes are far below 2^63

	switch a.cfg.Cache.Kind {
	case "", cacheNone:
		return nil, nil
	case cacheMemory:
		return memory.New(memory.WithMaxBytes(limit))
	case cacheDisk:
		if a.cfg.Cache.Dir == "" {
			return nil, errors.New("disk cache needs cache.dir or --cache-dir")
		}
		return disk.New(a.cfg.Cache.Dir, disk.WithMaxBytes(limit), disk.WithCompression(true))
	default:
		return nil, fmt.Errorf("cache kind %q: want none, memory or disk", a.cfg.Cache.Kind)
	}
}

func isURL(target string) bool {
	return strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://")
}
