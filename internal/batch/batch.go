// Package batch extracts many archive files concurrently into a sink.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is one file to extract.
type Job struct {
	// Name is the file's path inside the archive.
	Name string
	// Dest is the slash-separated destination path relative to the sink root.
	Dest string
	// Size is the file's logical size.
	Size uint64
	// ModTime is the recorded modification time, or zero.
	ModTime time.Time
}

// ReadFunc returns the full content of a job's file.
type ReadFunc func(ctx context.Context, job *Job) ([]byte, error)

// Stats counts the outcome of a Process call.
type Stats struct {
	// Extracted is the number of files written to the sink.
	Extracted int
	// Skipped is the number of files the sink declined.
	Skipped int
	// Failed is the number of files that could not be read or written.
	Failed int
	// Bytes is the total content size written.
	Bytes uint64
}

// Processor runs jobs through a bounded worker pool.
type Processor struct {
	read            ReadFunc
	workers         int
	continueOnError bool
	logger          *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of concurrent workers.
// Values < 1 use GOMAXPROCS.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// WithContinueOnError keeps processing after a failed job. All failures are
// joined into the returned error.
func WithContinueOnError(enabled bool) ProcessorOption {
	return func(p *Processor) {
		p.continueOnError = enabled
	}
}

// WithProcessorLogger sets the logger for batch processing operations.
// If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a processor that reads file content with read.
func NewProcessor(read ReadFunc, opts ...ProcessorOption) *Processor {
	p := &Processor{read: read}
	for _, opt := range opts {
		opt(p)
	}
	if p.workers < 1 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	return p
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// Process reads each job accepted by the sink and commits it.
//
// By default processing stops at the first error and the remaining jobs are
// abandoned. Stats always reflect the work that completed.
func (p *Processor) Process(ctx context.Context, jobs []*Job, sink Sink) (Stats, error) {
	var (
		mu    sync.Mutex
		stats Stats
		errs  []error
	)
	record := func(fn func(*Stats)) {
		mu.Lock()
		fn(&stats)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	p.log().Debug("batch processing", "jobs", len(jobs), "workers", p.workers)

	for _, job := range jobs {
		if gctx.Err() != nil {
			break
		}
		if !sink.ShouldProcess(job) {
			record(func(s *Stats) { s.Skipped++ })
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			n, err := p.processJob(gctx, job, sink)
			if err != nil {
				err = fmt.Errorf("batch: %s: %w", job.Name, err)
				record(func(s *Stats) { s.Failed++ })
				if p.continueOnError {
					p.log().Warn("extract failed", "path", job.Name, "error", err)
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
					return nil
				}
				return err
			}
			record(func(s *Stats) {
				s.Extracted++
				s.Bytes += uint64(n)
			})
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, errors.Join(errs...)
}

func (p *Processor) processJob(ctx context.Context, job *Job, sink Sink) (int, error) {
	content, err := p.read(ctx, job)
	if err != nil {
		return 0, err
	}
	w, err := sink.Writer(job)
	if err != nil {
		return 0, err
	}
	if err := writeAll(w, content); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return 0, err
	}
	if err := w.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(content), nil
}

func writeAll(w Committer, data []byte) error {
	for len(data) > 0 {
		n, err := w.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("short write")
		}
		data = data[n:]
	}
	return nil
}
