package batch

import (
	"io"

	"github.com/meigma/s4a/internal/archivetype"
)

// Entry is an alias for archivetype.Entry.
type Entry = archivetype.Entry

// Sink receives decompressed and verified content during batch processing.
type Sink interface {
	// ShouldProcess returns false if the entry should be skipped, for
	// example because the destination file already exists.
	ShouldProcess(entry *Entry) bool

	// Writer returns a writer for the entry's content. The processor writes
	// the content, verifies it, and then calls Commit, or Discard on any
	// error.
	Writer(entry *Entry) (Committer, error)
}

// Committer is a writer that can be committed or discarded.
type Committer interface {
	io.Writer

	// Commit makes the written content visible.
	Commit() error

	// Discard aborts the write and removes temporary state.
	Discard() error
}
