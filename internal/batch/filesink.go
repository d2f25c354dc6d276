package batch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSink writes files beneath a destination directory.
//
// Files are written to a temporary file in the same directory and renamed to
// the final path on Commit, so partially written files are never visible.
// All filesystem access goes through an os.Root, which rejects paths that
// would escape the destination.
type FileSink struct {
	destDir       string
	overwrite     bool
	preserveTimes bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithPreserveTimes applies recorded modification times to written files.
func WithPreserveTimes(preserve bool) FileSinkOption {
	return func(s *FileSink) {
		s.preserveTimes = preserve
	}
}

// NewFileSink creates a FileSink that writes to destDir.
// Parent directories are created as needed.
func NewFileSink(destDir string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{destDir: destDir}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldProcess returns false for invalid destinations and, unless
// overwriting, for destinations that already exist.
func (s *FileSink) ShouldProcess(job *Job) bool {
	if !fs.ValidPath(job.Dest) {
		return true // Writer reports the invalid path
	}
	if s.overwrite {
		return true
	}
	_, err := os.Lstat(filepath.Join(s.destDir, filepath.FromSlash(job.Dest)))
	return errors.Is(err, fs.ErrNotExist)
}

// Writer returns a Committer that writes to a temp file and renames on Commit.
func (s *FileSink) Writer(job *Job) (Committer, error) {
	if !fs.ValidPath(job.Dest) || job.Dest == "." {
		return nil, &fs.PathError{Op: "extract", Path: job.Dest, Err: fs.ErrInvalid}
	}
	destRel := filepath.FromSlash(job.Dest)

	if err := os.MkdirAll(s.destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination %s: %w", s.destDir, err)
	}
	root, err := os.OpenRoot(s.destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", s.destDir, err)
	}
	if err := root.MkdirAll(filepath.Dir(destRel), 0o750); err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create directory for %s: %w", job.Dest, err)
	}

	tempFile, tempRel, err := createTempFile(root, filepath.Dir(destRel), ".mpq-")
	if err != nil {
		_ = root.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileCommitter{
		job:      job,
		destRel:  destRel,
		tempFile: tempFile,
		tempRel:  tempRel,
		root:     root,
		sink:     s,
	}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	job      *Job
	destRel  string
	tempFile *os.File
	tempRel  string
	root     *os.Root
	sink     *FileSink
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file, applies metadata, and renames to the final path.
func (c *fileCommitter) Commit() error {
	defer c.root.Close()

	if err := c.tempFile.Close(); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if c.sink.preserveTimes && !c.job.ModTime.IsZero() {
		if err := c.root.Chtimes(c.tempRel, c.job.ModTime, c.job.ModTime); err != nil {
			_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	if err := c.root.Rename(c.tempRel, c.destRel); err != nil {
		_ = c.root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.job.Dest, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	defer c.root.Close()
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.root.Remove(c.tempRel)
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := filepath.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
