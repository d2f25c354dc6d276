package mpq

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/meigma/mpq/internal/pathutil"
)

// errDeletedEntry hides deletion markers from the fs surface.
var errDeletedEntry = fmt.Errorf("%w: %w", ErrFileDeleted, fs.ErrNotExist)

// Open implements fs.FS.
//
// Names are slash-separated and converted to archive paths. Files are
// extracted in full when opened. Directories are synthesized from the
// manifest, since the archive does not store them.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, &fs.PathError{Op: "open", Path: name, Err: ErrClosed}
	}

	if name != "." {
		r, err := a.resolveFS(name)
		switch {
		case err == nil:
			data, err := a.extract(r)
			if err != nil {
				return nil, &fs.PathError{Op: "open", Path: name, Err: err}
			}
			return &memFile{Reader: bytes.NewReader(data), info: a.fileStat(name, r)}, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
	}

	if entries, ok := a.dirEntries(name); ok {
		return &openDir{info: dirStat{name: pathutil.Base(name)}, entries: entries}, nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS.
//
// Stat returns file info without extracting content. The returned info's
// Sys method yields the file's FileInfo.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: ErrClosed}
	}

	if name != "." {
		r, err := a.resolveFS(name)
		switch {
		case err == nil:
			return a.fileStat(name, r), nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
		}
	}
	if name == "." || a.isDir(name) {
		return dirStat{name: pathutil.Base(name)}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
//
// ReadFile is ExtractFile for slash-separated names. Deletion markers are
// reported as fs.ErrNotExist.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: ErrClosed}
	}
	r, err := a.resolveFS(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	data, err := a.extract(r)
	if err != nil {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: err}
	}
	return data, nil
}

// ReadDir implements fs.ReadDirFS.
//
// Entries are synthesized from the manifest and sorted by name. Manifest
// names without a hash table entry are omitted.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: ErrClosed}
	}
	entries, ok := a.dirEntries(name)
	if !ok {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return entries, nil
}

// resolveFS resolves a slash-separated name, hiding deletion markers.
func (a *Archive) resolveFS(name string) (resolved, error) {
	r, err := a.resolve(pathutil.FromSlash(name))
	if err != nil {
		return resolved{}, err
	}
	if r.block.Flags.IsDeleted() || !r.block.Flags.IsFile() {
		return resolved{}, errDeletedEntry
	}
	return r, nil
}

// isDir reports whether any manifest name lies below name.
func (a *Archive) isDir(name string) bool {
	prefix := pathutil.DirPrefix(name)
	for _, m := range a.manifest {
		if _, _, ok := pathutil.Child(pathutil.ToSlash(m), prefix); ok {
			return true
		}
	}
	return false
}

// dirEntries lists the immediate children of name. ok is false when name
// is neither the root nor a directory of the manifest.
func (a *Archive) dirEntries(name string) ([]fs.DirEntry, bool) {
	prefix := pathutil.DirPrefix(name)
	seen := make(map[string]struct{})
	entries := make([]fs.DirEntry, 0)
	found := name == "."

	for _, m := range a.manifest {
		slash := pathutil.ToSlash(m)
		child, isSubDir, ok := pathutil.Child(slash, prefix)
		if !ok {
			continue
		}
		found = true
		key := strings.ToUpper(child)
		if _, dup := seen[key]; dup {
			continue
		}
		if isSubDir {
			seen[key] = struct{}{}
			entries = append(entries, fs.FileInfoToDirEntry(dirStat{name: child}))
			continue
		}
		r, err := a.resolveFS(slash)
		if err != nil {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, fs.FileInfoToDirEntry(a.fileStat(slash, r)))
	}
	if !found {
		return nil, false
	}
	slices.SortFunc(entries, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return entries, true
}

func (a *Archive) fileStat(name string, r resolved) fileStat {
	return fileStat{name: pathutil.Base(name), info: a.fileInfo(r)}
}

// fileStat adapts FileInfo to fs.FileInfo.
type fileStat struct {
	name string
	info FileInfo
}

func (s fileStat) Name() string       { return s.name }
func (s fileStat) Size() int64        { return int64(s.info.FileSize) }
func (s fileStat) Mode() fs.FileMode  { return 0o444 }
func (s fileStat) ModTime() time.Time { return s.info.ModTime }
func (s fileStat) IsDir() bool        { return false }
func (s fileStat) Sys() any           { return s.info }

// dirStat describes a synthesized directory.
type dirStat struct {
	name string
}

func (d dirStat) Name() string       { return d.name }
func (d dirStat) Size() int64        { return 0 }
func (d dirStat) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (d dirStat) ModTime() time.Time { return time.Time{} }
func (d dirStat) IsDir() bool        { return true }
func (d dirStat) Sys() any           { return nil }

// memFile is an extracted file served from memory.
type memFile struct {
	*bytes.Reader
	info fileStat
}

func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }
func (f *memFile) Close() error               { return nil }

// openDir is a synthesized directory handle.
type openDir struct {
	info    dirStat
	entries []fs.DirEntry
	offset  int
}

func (d *openDir) Stat() (fs.FileInfo, error) { return d.info, nil }
func (d *openDir) Close() error               { return nil }

func (d *openDir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.info.name, Err: fs.ErrInvalid}
}

// ReadDir implements fs.ReadDirFile.
func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	rest := d.entries[d.offset:]
	if n <= 0 {
		d.offset = len(d.entries)
		return slices.Clone(rest), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.offset += n
	return slices.Clone(rest[:n]), nil
}
