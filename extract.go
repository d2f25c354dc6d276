package mpq

import (
	"context"
	"fmt"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/meigma/mpq/internal/batch"
	"github.com/meigma/mpq/internal/pathutil"
)

// ExtractStats counts the outcome of ExtractTo.
type ExtractStats = batch.Stats

// ExtractTo extracts the manifest's files into destDir.
//
// Archive paths become slash-separated paths below destDir; names that
// would escape it fail. Files are written atomically through temp files and
// parent directories are created as needed. Manifest names without a hash
// table entry and deletion markers are skipped.
//
// By default:
//   - Existing files are skipped (use ExtractWithOverwrite to overwrite)
//   - Extraction stops at the first error (use ExtractWithContinueOnError)
//   - GOMAXPROCS files are extracted concurrently (use ExtractWithWorkers)
func (a *Archive) ExtractTo(ctx context.Context, destDir string, opts ...ExtractOption) (ExtractStats, error) {
	cfg := extractConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, p := range cfg.patterns {
		if !doublestar.ValidatePattern(p) {
			return ExtractStats{}, fmt.Errorf("extract pattern %q: %w", p, doublestar.ErrBadPattern)
		}
	}

	jobs, err := a.extractJobs(cfg.patterns)
	if err != nil {
		return ExtractStats{}, err
	}
	a.log().Debug("extracting", "dest", destDir, "files", len(jobs))

	sink := batch.NewFileSink(destDir,
		batch.WithOverwrite(cfg.overwrite),
		batch.WithPreserveTimes(cfg.preserveTimes),
	)
	proc := batch.NewProcessor(a.readJob,
		batch.WithWorkers(cfg.workers),
		batch.WithContinueOnError(cfg.continueOnError),
		batch.WithProcessorLogger(a.logger),
	)
	return proc.Process(ctx, jobs, sink)
}

// extractJobs builds one job per extractable manifest name matching any
// pattern. An empty pattern list matches everything.
func (a *Archive) extractJobs(patterns []string) ([]*batch.Job, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil, ErrClosed
	}

	jobs := make([]*batch.Job, 0, len(a.manifest))
	for _, name := range a.manifest {
		dest := pathutil.ToSlash(name)
		if !matchAny(patterns, dest) {
			continue
		}
		r, err := a.resolve(name)
		if err != nil || r.block.Flags.IsDeleted() || !r.block.Flags.IsFile() {
			continue
		}
		info := a.fileInfo(r)
		jobs = append(jobs, &batch.Job{
			Name:    name,
			Dest:    dest,
			Size:    uint64(info.FileSize),
			ModTime: info.ModTime,
		})
	}
	return jobs, nil
}

func (a *Archive) readJob(ctx context.Context, job *batch.Job) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return a.ExtractFile(job.Name)
}

func matchAny(patterns []string, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if doublestar.MatchUnvalidated(p, name) {
			return true
		}
	}
	return false
}
