package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/meigma/mpq"
)

// Cache kinds accepted by the cache.kind setting.
const (
	cacheNone   = "none"
	cacheMemory = "memory"
	cacheDisk   = "disk"
)

// config is the merged configuration: defaults, then the YAML file, then flags.
type config struct {
	LogLevel    string       `yaml:"log_level"`
	Checksum    string       `yaml:"checksum"`
	Locale      string       `yaml:"locale"`
	Listfiles   []string     `yaml:"listfiles"`
	MaxFileSize string       `yaml:"max_file_size"`
	Cache       cacheConfig  `yaml:"cache"`
	HTTP        httpConfig   `yaml:"http"`
	Extract     extractFlags `yaml:"extract"`
}

type cacheConfig struct {
	Kind    string `yaml:"kind"`
	Dir     string `yaml:"dir"`
	MaxSize string `yaml:"max_size"`
}

type httpConfig struct {
	Headers   map[string]string `yaml:"headers"`
	BlockSize string            `yaml:"block_size"`
	MaxBlocks int               `yaml:"max_blocks"`
}

type extractFlags struct {
	Workers       int  `yaml:"workers"`
	Overwrite     bool `yaml:"overwrite"`
	PreserveTimes bool `yaml:"preserve_times"`
	KeepGoing     bool `yaml:"keep_going"`
}

func defaultConfig() config {
	return config{
		LogLevel:    "warn",
		Checksum:    "warn",
		MaxFileSize: "1GiB",
		Cache: cacheConfig{
			Kind:    cacheNone,
			MaxSize: "256MiB",
		},
		HTTP: httpConfig{
			BlockSize: "64KiB",
			MaxBlocks: 256,
		},
	}
}

// loadConfig reads a YAML config file over the defaults. A missing file at
// the default location is not an error.
func loadConfig(path string, required bool) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // user-provided path is intentional
	if err != nil {
		if !required && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

func (c config) level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

func (c config) checksumPolicy() (mpq.ChecksumPolicy, error) {
	p, ok := mpq.ParseChecksumPolicy(c.Checksum)
	if !ok {
		return 0, fmt.Errorf("checksum policy %q: want warn, ignore or strict", c.Checksum)
	}
	return p, nil
}

// locale parses a locale ID in decimal or 0x-prefixed hex. An empty value
// means no preference.
func (c config) locale() (uint16, bool, error) {
	s := strings.TrimSpace(c.Locale)
	if s == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, false, fmt.Errorf("locale %q: %w", c.Locale, err)
	}
	return uint16(v), true, nil
}

// parseSize parses a human-readable size such as "64KiB". Empty means zero.
func parseSize(name, s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("%s %q: %w", name, s, err)
	}
	return n, nil
}
