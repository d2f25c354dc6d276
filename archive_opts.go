package mpq

import (
	"log/slog"

	"github.com/meigma/mpq/cache"
	"github.com/meigma/mpq/internal/codec"
)

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for debug output and checksum warnings.
// A nil logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithLocale selects which language variant lookups prefer.
//
// Without it, lookups return the first entry in probe order. With it, an
// entry tagged with locale wins, then the neutral variant, then the first
// entry.
func WithLocale(locale uint16) Option {
	return func(a *Archive) {
		a.locale = locale
		a.localeSet = true
	}
}

// WithChecksumPolicy sets how sector checksums and (attributes) digests are
// enforced (default: ChecksumWarn).
func WithChecksumPolicy(p ChecksumPolicy) Option {
	return func(a *Archive) {
		a.policy = p
	}
}

// WithListfile supplies an external manifest read from the named files.
//
// An external manifest replaces the archive's (listfile) entirely.
func WithListfile(paths ...string) Option {
	return func(a *Archive) {
		a.listfilePaths = append(a.listfilePaths, paths...)
		a.external = true
	}
}

// WithListfileEntries supplies external manifest entries directly.
//
// An external manifest replaces the archive's (listfile) entirely.
func WithListfileEntries(names ...string) Option {
	return func(a *Archive) {
		a.listfileEntries = append(a.listfileEntries, names...)
		a.external = true
	}
}

// WithCache enables caching of extracted file content.
//
// Keys are derived from the source identity and the file's block entry, so
// one cache may be shared between archives. Concurrent misses for the same
// file are deduplicated.
func WithCache(c cache.Cache) Option {
	return func(a *Archive) {
		a.cache = c
	}
}

// WithCodec registers a decompressor for a compression tag, replacing any
// built-in codec for that tag.
func WithCodec(c Compression, fn CodecFunc) Option {
	return func(a *Archive) {
		a.codecs = append(a.codecs, codec.WithCodec(c, fn))
	}
}

// WithMaxFileSize limits the stored and logical size of extracted files.
// Set limit to 0 to disable the limit (default: 1 GiB).
func WithMaxFileSize(limit uint64) Option {
	return func(a *Archive) {
		a.maxFileSize = limit
	}
}

// WithSourceID overrides the source identity used to scope cache keys.
func WithSourceID(id string) Option {
	return func(a *Archive) {
		a.sourceID = id
	}
}

// ExtractOption configures ExtractTo.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	overwrite       bool
	preserveTimes   bool
	workers         int
	continueOnError bool
	patterns        []string
}

// ExtractWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithPreserveTimes sets file modification times from (attributes).
// By default, files use the current time.
func ExtractWithPreserveTimes(preserve bool) ExtractOption {
	return func(c *extractConfig) {
		c.preserveTimes = preserve
	}
}

// ExtractWithWorkers sets the number of concurrent extractions.
// Values < 1 use GOMAXPROCS.
func ExtractWithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = n
	}
}

// ExtractWithContinueOnError keeps extracting after a file fails. The
// returned error joins every failure.
func ExtractWithContinueOnError(enabled bool) ExtractOption {
	return func(c *extractConfig) {
		c.continueOnError = enabled
	}
}

// ExtractWithPatterns limits extraction to manifest names matching any of
// the doublestar patterns, written with slash separators.
func ExtractWithPatterns(patterns ...string) ExtractOption {
	return func(c *extractConfig) {
		c.patterns = append(c.patterns, patterns...)
	}
}
