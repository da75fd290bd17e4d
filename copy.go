package s4a

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"

	"github.com/meigma/s4a/internal/batch"
)

// defaultCopyReadConcurrency is used when no CopyWithReadConcurrency option is set.
const defaultCopyReadConcurrency = 4

// CopyStats reports the outcome of a copy.
type CopyStats = batch.ProcessStats

// CopyOption configures CopyDir and CopyMatching.
type CopyOption func(*copyConfig)

type copyConfig struct {
	ctx               context.Context
	overwrite         bool
	readConcurrency   int
	readAheadBytes    uint64
	readAheadBytesSet bool
	maxGroupBytes     uint64
	maxGroupBytesSet  bool
	progress          ProgressFunc
}

// CopyWithContext sets the context that cancels the copy.
// Defaults to context.Background.
func CopyWithContext(ctx context.Context) CopyOption {
	return func(c *copyConfig) {
		c.ctx = ctx
	}
}

// CopyWithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func CopyWithOverwrite(overwrite bool) CopyOption {
	return func(c *copyConfig) {
		c.overwrite = overwrite
	}
}

// CopyWithReadConcurrency sets the number of concurrent range reads.
// Use 1 to force serial reads. Zero uses the default concurrency (4).
func CopyWithReadConcurrency(n int) CopyOption {
	return func(c *copyConfig) {
		if n <= 0 {
			n = defaultCopyReadConcurrency
		}
		c.readConcurrency = n
	}
}

// CopyWithReadAheadBytes caps the total size of fetched but unwritten data.
// A value of 0 disables the byte budget.
func CopyWithReadAheadBytes(limit uint64) CopyOption {
	return func(c *copyConfig) {
		c.readAheadBytes = limit
		c.readAheadBytesSet = true
	}
}

// CopyWithMaxGroupBytes caps the size of one grouped range read.
// A value of 0 disables the cap. Defaults to 16MB.
func CopyWithMaxGroupBytes(limit uint64) CopyOption {
	return func(c *copyConfig) {
		c.maxGroupBytes = limit
		c.maxGroupBytesSet = true
	}
}

// CopyWithProgress sets a callback to receive progress updates.
// The callback receives one event per extracted file.
func CopyWithProgress(fn ProgressFunc) CopyOption {
	return func(c *copyConfig) {
		c.progress = fn
	}
}

// CopyDir extracts all files under a directory prefix to destDir.
//
// If prefix is "" or ".", all files in the archive are extracted. Files
// keep their archive paths below destDir.
//
// Adjacent entries are fetched with one range read per group, and groups
// are read concurrently (4 by default). Files are written atomically using
// temp files and renames, and parent directories are created as needed.
// Existing files are skipped unless CopyWithOverwrite is set.
//
// The copy stops at the first error. Files already written stay in place;
// a corrupt entry is never written.
func (a *Archive) CopyDir(destDir, prefix string, opts ...CopyOption) (CopyStats, error) {
	prefix = NormalizePath(prefix)
	if !fs.ValidPath(prefix) {
		return CopyStats{}, &fs.PathError{Op: "copy", Path: prefix, Err: fs.ErrInvalid}
	}
	entries, err := a.store.EntriesWithPrefix(prefix)
	if err != nil {
		return CopyStats{}, err
	}
	return a.copyEntries(destDir, entries, opts)
}

// CopyMatching extracts every file whose path matches the regular
// expression pattern to destDir. The pattern is unanchored, so "\.go$"
// selects every Go file at any depth. Behavior otherwise matches CopyDir.
func (a *Archive) CopyMatching(destDir, pattern string, opts ...CopyOption) (CopyStats, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return CopyStats{}, fmt.Errorf("copy: invalid pattern: %w", err)
	}
	all, err := a.store.EntriesWithPrefix("")
	if err != nil {
		return CopyStats{}, err
	}
	matched := all[:0]
	for _, e := range all {
		if re.MatchString(e.Path) {
			matched = append(matched, e)
		}
	}
	a.log().Debug("pattern matched", "pattern", pattern, "matched", len(matched), "total", len(all))
	return a.copyEntries(destDir, matched, opts)
}

// copyEntries uses the batch processor to copy entries to destDir.
func (a *Archive) copyEntries(destDir string, entries []Entry, opts []CopyOption) (CopyStats, error) {
	cfg := copyConfig{
		ctx:             context.Background(),
		readConcurrency: defaultCopyReadConcurrency,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(entries) == 0 {
		return CopyStats{}, nil
	}
	if destDir == "" {
		return CopyStats{}, errors.New("copy: destination is empty")
	}
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return CopyStats{}, fmt.Errorf("copy: create destination: %w", err)
	}
	for i := range entries {
		if !fs.ValidPath(entries[i].Path) {
			return CopyStats{}, &fs.PathError{Op: "copy", Path: entries[i].Path, Err: fs.ErrInvalid}
		}
	}

	sink := batch.NewFileSink(destDir, batch.WithOverwrite(cfg.overwrite))

	procOpts := []batch.ProcessorOption{
		batch.WithReadConcurrency(cfg.readConcurrency),
	}
	if cfg.readAheadBytesSet {
		procOpts = append(procOpts, batch.WithReadAheadBytes(cfg.readAheadBytes))
	}
	if cfg.maxGroupBytesSet {
		procOpts = append(procOpts, batch.WithMaxGroupBytes(cfg.maxGroupBytes))
	}
	if cfg.progress != nil {
		procOpts = append(procOpts, batch.WithProcessorProgress(cfg.progress))
	}
	if a.logger != nil {
		procOpts = append(procOpts, batch.WithProcessorLogger(a.logger))
	}
	proc := batch.NewProcessor(a.reader, procOpts...)

	ptrs := make([]*batch.Entry, len(entries))
	for i := range entries {
		ptrs[i] = &entries[i]
	}
	return proc.Process(cfg.ctx, ptrs, sink)
}
