package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mpq"
	"github.com/meigma/mpq/internal/testutil"
)

var testModTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// writeArchive builds a small archive on disk and returns its path.
func writeArchive(t *testing.T) string {
	t.Helper()
	img := (&testutil.Builder{
		Listfile:   true,
		Attributes: true,
		Files: []testutil.File{
			{Name: `Units\Human\Footman.mdx`, Data: bytes.Repeat([]byte("footman "), 1000), Flags: mpq.FlagCompress | mpq.FlagEncrypted},
			{Name: `Units\Orc\Grunt.mdx`, Data: []byte("grunt")},
			{Name: "war3map.j", Data: []byte("function main takes nothing returns nothing\n")},
		},
	}).MustBuild(t)
	path := filepath.Join(t.TempDir(), "test.mpq")
	require.NoError(t, os.WriteFile(path, img.Data, 0o600))
	return path
}

// run executes mpqx with args and returns stdout and stderr.
func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("MPQX_CONFIG", "")
	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestHeader(t *testing.T) {
	path := writeArchive(t)

	out, _, err := run(t, "header", path)
	require.NoError(t, err)
	assert.Contains(t, out, "format:")
	assert.Contains(t, out, "basic")
	assert.Contains(t, out, "sector size:     4.0 KiB")
	assert.Contains(t, out, "block table:     5 entries")
}

func TestLs(t *testing.T) {
	path := writeArchive(t)

	out, _, err := run(t, "ls", path)
	require.NoError(t, err)
	assert.Equal(t, "Units\\Human\\Footman.mdx\nUnits\\Orc\\Grunt.mdx\nwar3map.j\n", out)

	out, _, err = run(t, "ls", path, "Units/Orc/*", "*.j")
	require.NoError(t, err)
	assert.Equal(t, "Units\\Orc\\Grunt.mdx\nwar3map.j\n", out)

	out, _, err = run(t, "ls", "-l", path, "Units/Orc/*")
	require.NoError(t, err)
	assert.Contains(t, out, "5 B")
	assert.Contains(t, out, "raw-sectored")

	listfile := filepath.Join(t.TempDir(), "names.txt")
	require.NoError(t, os.WriteFile(listfile, []byte("war3map.j\n"), 0o600))
	out, _, err = run(t, "ls", "--listfile", listfile, path)
	require.NoError(t, err)
	assert.Equal(t, "war3map.j\n", out)
}

func TestInfo(t *testing.T) {
	path := writeArchive(t)

	out, _, err := run(t, "info", path, `Units\Human\Footman.mdx`)
	require.NoError(t, err)
	assert.Contains(t, out, "size:            7.8 KiB (8000 bytes)")
	assert.Contains(t, out, "layout:          compressed-sectored")
	assert.Contains(t, out, "crc32:")
	assert.Contains(t, out, "md5:")

	_, _, err = run(t, "info", path, "missing.txt")
	require.ErrorIs(t, err, mpq.ErrFileNotFound)
}

func TestCat(t *testing.T) {
	path := writeArchive(t)

	out, _, err := run(t, "cat", path, "war3map.j", `units\orc\grunt.mdx`)
	require.NoError(t, err)
	assert.Equal(t, "function main takes nothing returns nothing\ngrunt", out)
}

func TestExtract(t *testing.T) {
	path := writeArchive(t)
	dest := t.TempDir()

	out, _, err := run(t, "extract", "-j", "2", path, dest)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "extracted 3 files"), out)

	got, err := os.ReadFile(filepath.Join(dest, "Units", "Human", "Footman.mdx"))
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte("footman "), 1000), got)

	out, _, err = run(t, "extract", path, dest)
	require.NoError(t, err)
	assert.Contains(t, out, "skipped 3")
}

func TestConfigFile(t *testing.T) {
	path := writeArchive(t)
	cacheDir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "mpqx.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
log_level: debug
checksum: strict
cache:
  kind: disk
  dir: `+cacheDir+`
  max_size: 1MiB
`), 0o600))

	out, stderr, err := run(t, "--config", cfgPath, "cat", path, "war3map.j")
	require.NoError(t, err)
	assert.Equal(t, "function main takes nothing returns nothing\n", out)
	assert.Contains(t, stderr, "archive opened")

	entries, err := os.ReadDir(cacheDir)
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	// Flags override the file.
	_, stderr, err = run(t, "--config", cfgPath, "--log-level", "error", "cat", path, "war3map.j")
	require.NoError(t, err)
	assert.Empty(t, stderr)
}

func TestConfigErrors(t *testing.T) {
	path := writeArchive(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing config", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "ls", path}},
		{"bad checksum", []string{"--checksum", "sometimes", "ls", path}},
		{"bad level", []string{"--log-level", "loud", "ls", path}},
		{"bad locale", []string{"--locale", "german", "ls", path}},
		{"bad cache", []string{"--cache", "cloud", "ls", path}},
		{"disk cache without dir", []string{"--cache", "disk", "ls", path}},
		{"bad size", []string{"--max-file-size", "lots", "ls", path}},
		{"not an archive", []string{"ls", filepath.Join(t.TempDir(), "missing.mpq")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := run(t, tt.args...)
			require.Error(t, err)
		})
	}
}

func TestRemoteArchive(t *testing.T) {
	path := writeArchive(t)
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "test.mpq", testModTime, bytes.NewReader(data))
	}))
	defer srv.Close()

	out, _, err := run(t, "--cache", "memory", "cat", srv.URL+"/test.mpq", "war3map.j")
	require.NoError(t, err)
	assert.Equal(t, "function main takes nothing returns nothing\n", out)
}
