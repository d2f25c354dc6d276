package batch

import "io"

// Sink receives extracted file content.
//
// Implementations determine where content is written and can filter which
// jobs to process.
type Sink interface {
	// ShouldProcess returns false if this job should be skipped,
	// for example because the destination already exists.
	ShouldProcess(job *Job) bool

	// Writer returns a writer for the job's content. The caller calls
	// Commit after writing everything, or Discard on any error.
	Writer(job *Job) (Committer, error)
}

// Committer is a writer that can be committed or discarded.
type Committer interface {
	io.Writer

	// Commit finalizes the write, making content available.
	Commit() error

	// Discard aborts the write and cleans up any temporary resources.
	Discard() error
}
