package mpq

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mpq/internal/testutil"
)

var manifestFiles = []testutil.File{
	{Name: `Units\Human\Footman.mdx`, Data: []byte("footman")},
	{Name: `Units\Orc\Grunt.mdx`, Data: []byte("grunt")},
	{Name: "war3map.j", Data: []byte("main")},
}

func TestFileList_Internal(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, &testutil.Builder{Listfile: true, Files: manifestFiles})

	got := slices.Collect(a.FileList())
	assert.Equal(t, []string{`Units\Human\Footman.mdx`, `Units\Orc\Grunt.mdx`, "war3map.j"}, got)
}

func TestFileList_Empty(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, &testutil.Builder{Files: manifestFiles})
	assert.Empty(t, slices.Collect(a.FileList()))
}

func TestFileList_ExternalOverrides(t *testing.T) {
	t.Parallel()

	b := &testutil.Builder{Listfile: true, Files: manifestFiles}

	a, _ := openTestArchive(t, b, WithListfileEntries("war3map.j", "WAR3MAP.J", "extra.txt"))
	assert.Equal(t, []string{"war3map.j", "extra.txt"}, slices.Collect(a.FileList()))

	path := filepath.Join(t.TempDir(), "listfile.txt")
	require.NoError(t, os.WriteFile(path, []byte("Units\\Orc\\Grunt.mdx\r\nscripts/common.j;war3map.j\n"), 0o600))
	a, _ = openTestArchive(t, b, WithListfile(path))
	assert.Equal(t, []string{`Units\Orc\Grunt.mdx`, "scripts/common.j", "war3map.j"}, slices.Collect(a.FileList()))

	// An empty external manifest still replaces the internal one.
	a, _ = openTestArchive(t, b, WithListfileEntries())
	assert.Empty(t, slices.Collect(a.FileList()))
}

func TestFileList_MissingExternal(t *testing.T) {
	t.Parallel()

	img := (&testutil.Builder{Files: manifestFiles}).MustBuild(t)
	_, err := New(img.Source(), WithListfile(filepath.Join(t.TempDir(), "nope.txt")))
	require.Error(t, err)
}

func TestMatch(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, &testutil.Builder{Files: manifestFiles},
		WithListfileEntries(`Units\Human\Footman.mdx`, `Units\Orc\Grunt.mdx`, `Units\Orc\Peon.mdx`, "war3map.j"))

	tests := []struct {
		pattern string
		want    []string
	}{
		{"Units/**/*.mdx", []string{`Units\Human\Footman.mdx`, `Units\Orc\Grunt.mdx`}},
		{"Units/Orc/*", []string{`Units\Orc\Grunt.mdx`}},
		{"*.j", []string{"war3map.j"}},
		{"**", []string{`Units\Human\Footman.mdx`, `Units\Orc\Grunt.mdx`, "war3map.j"}},
		{"Sound/**", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			t.Parallel()
			got, err := a.Match(tt.pattern)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := a.Match("Units/[")
	require.ErrorIs(t, err, doublestar.ErrBadPattern)
}
