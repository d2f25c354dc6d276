package mpq

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/mpq/internal/testutil"
)

func TestExtractTo(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, &testutil.Builder{
		Listfile: true,
		Files: []testutil.File{
			{Name: `Units\Human\Footman.mdx`, Data: text(9000), Flags: FlagCompress | FlagEncrypted},
			{Name: `Units\Orc\Grunt.mdx`, Data: []byte("grunt")},
			{Name: `Units\Orc\Peon.mdx`, Flags: FlagDeleteMarker},
			{Name: "war3map.j", Data: []byte("main")},
		},
	})

	dest := t.TempDir()
	stats, err := a.ExtractTo(context.Background(), dest, ExtractWithWorkers(2))
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Extracted)
	assert.Equal(t, 0, stats.Skipped)
	assert.Equal(t, uint64(9000+5+4), stats.Bytes)

	got, err := os.ReadFile(filepath.Join(dest, "Units", "Human", "Footman.mdx"))
	require.NoError(t, err)
	assert.Equal(t, text(9000), got)
	_, err = os.Stat(filepath.Join(dest, "Units", "Orc", "Peon.mdx"))
	require.ErrorIs(t, err, fs.ErrNotExist)

	stats, err = a.ExtractTo(context.Background(), dest)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Extracted)
	assert.Equal(t, 3, stats.Skipped)

	stats, err = a.ExtractTo(context.Background(), dest, ExtractWithOverwrite(true), ExtractWithPatterns("Units/Orc/*"))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Extracted)
}

func TestExtractTo_PreserveTimes(t *testing.T) {
	t.Parallel()

	mod := time.Date(2008, 3, 1, 10, 0, 0, 0, time.UTC)
	a, _ := openTestArchive(t, &testutil.Builder{
		Listfile:   true,
		Attributes: true,
		ModTime:    mod,
		Files:      []testutil.File{{Name: "a.txt", Data: []byte("alpha")}},
	})

	dest := t.TempDir()
	_, err := a.ExtractTo(context.Background(), dest, ExtractWithPreserveTimes(true))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.True(t, mod.Equal(info.ModTime()), "mod time %v, want %v", info.ModTime(), mod)
}

func TestExtractTo_RejectsTraversal(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, &testutil.Builder{
		Listfile: true,
		Files: []testutil.File{
			{Name: `..\pwned.txt`, Data: []byte("pwned")},
			{Name: "safe.txt", Data: []byte("safe")},
		},
	})

	root := t.TempDir()
	dest := filepath.Join(root, "out")
	stats, err := a.ExtractTo(context.Background(), dest, ExtractWithContinueOnError(true))
	var pathErr *fs.PathError
	require.ErrorAs(t, err, &pathErr)
	require.ErrorIs(t, err, fs.ErrInvalid)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Extracted)

	_, statErr := os.Stat(filepath.Join(root, "pwned.txt"))
	require.ErrorIs(t, statErr, fs.ErrNotExist)
}

func TestExtractTo_Errors(t *testing.T) {
	t.Parallel()

	a, _ := openTestArchive(t, &testutil.Builder{
		Listfile: true,
		Files:    []testutil.File{{Name: "a.txt", Data: []byte("alpha")}},
	})

	_, err := a.ExtractTo(context.Background(), t.TempDir(), ExtractWithPatterns("["))
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.ExtractTo(ctx, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, a.Close())
	_, err = a.ExtractTo(context.Background(), t.TempDir())
	require.ErrorIs(t, err, ErrClosed)
}
