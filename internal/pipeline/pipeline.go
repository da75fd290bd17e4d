// Package pipeline compresses enumerated files in parallel and writes them
// to the blob in enumeration order.
//
// A feeder hands tasks to N workers. Workers compress independently and send
// finished blocks to a single sequencer, which holds early arrivals in a
// reorder buffer and appends blocks strictly by sequence number, recording
// each index entry as its bytes land. The blob and index are therefore
// identical for any worker count.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/opencontainers/go-digest"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/enumerate"
)

const (
	// DefaultMaxInMemorySize is the file size above which a worker
	// compresses into a spill file instead of memory (8MB).
	DefaultMaxInMemorySize = 8 << 20

	// DefaultWriteBufferSize is the default blob write buffer (32MB).
	DefaultWriteBufferSize = 32 << 20

	// MinWriteBufferSize is the smallest blob write buffer accepted (128KB).
	MinWriteBufferSize = 128 << 10

	// windowPerWorker bounds how far ahead of the sequencer workers may run.
	windowPerWorker = 4
)

// Config configures a pipeline run.
type Config struct {
	// Workers is the number of compression workers. Must be at least 1.
	Workers int

	// Codec is applied to every file not matched by Skip.
	Codec archivetype.Codec

	// Level is the codec compression level; 0 selects the codec default.
	Level int

	// Algorithm is the checksum algorithm. Empty selects SHA-256.
	Algorithm digest.Algorithm

	// Skip predicates select files stored with the NONE codec.
	Skip []SkipCompressionFunc

	// MaxInMemorySize is the file size above which blocks spill to SpillDir.
	// Zero spills every file; negative never spills.
	MaxInMemorySize int64

	// SpillDir holds spill files. Empty uses the OS temp directory.
	SpillDir string

	// WriteBufferSize is the blob write buffer size. Values below
	// MinWriteBufferSize are raised to it.
	WriteBufferSize int

	// Logger receives debug output. Nil disables logging.
	Logger *slog.Logger

	// Progress, if set, is called after each block is written.
	Progress archivetype.ProgressFunc
}

// log returns the logger, falling back to a discard logger if nil.
func (c *Config) log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("pipeline: worker count must be at least 1, got %d", c.Workers)
	}
	if err := c.Codec.Valid(); err != nil {
		return err
	}
	if c.Algorithm == "" {
		c.Algorithm = digest.Canonical
	}
	if !c.Algorithm.Available() {
		return fmt.Errorf("pipeline: checksum algorithm %q is not available", c.Algorithm)
	}
	if c.WriteBufferSize < MinWriteBufferSize {
		c.WriteBufferSize = MinWriteBufferSize
	}
	return nil
}

// Run compresses every task of tree and writes the blocks to blob in Seq
// order, putting one entry per block into idx.
//
// Any error cancels the whole run: workers stop taking tasks, the sequencer
// stops writing, and the first error is returned. blob is left partially
// written; the caller discards it.
func Run(ctx context.Context, tree *enumerate.Tree, blob io.Writer, idx Indexer, cfg Config) (Stats, error) {
	if err := cfg.validate(); err != nil {
		return Stats{}, err
	}
	total := len(tree.Tasks)
	if total == 0 {
		return Stats{}, nil
	}
	if tree.Root == nil {
		return Stats{}, errors.New("pipeline: tree has tasks but no root")
	}

	workers := min(cfg.Workers, total)
	cfg.log().Debug("pipeline starting", "tasks", total, "workers", workers, "codec", cfg.Codec.String())

	window := semaphore.NewWeighted(int64(workers * windowPerWorker))
	taskCh := make(chan enumerate.Task, workers)
	doneCh := make(chan Block, workers)
	eg, ctx := errgroup.WithContext(ctx)

	// Feeder. Tasks are released in order and each holds a window slot
	// until the sequencer writes it, so the lowest unwritten Seq is always
	// in flight.
	eg.Go(func() error {
		defer close(taskCh)
		for _, t := range tree.Tasks {
			if err := window.Acquire(ctx, 1); err != nil {
				return err
			}
			select {
			case taskCh <- t:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	var workerWg sync.WaitGroup
	workerWg.Add(workers)
	for range workers {
		eg.Go(func() error {
			defer workerWg.Done()
			w := newWorker(tree.Root, &cfg)
			defer w.close()
			for t := range taskCh {
				if err := ctx.Err(); err != nil {
					return err
				}
				block, err := w.process(t)
				if err != nil {
					return err
				}
				select {
				case doneCh <- block:
				case <-ctx.Done():
					discard(block)
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workerWg.Wait()
		close(doneCh)
	}()

	seq := &sequencer{
		blob:    bufio.NewWriterSize(blob, cfg.WriteBufferSize),
		idx:     idx,
		window:  window,
		pending: make(map[int]Block, workers*windowPerWorker),
	}
	if cfg.Progress != nil {
		seq.report = func(path string, s Stats) {
			cfg.Progress(archivetype.ProgressEvent{
				Stage:      archivetype.StageCompressing,
				Path:       path,
				BytesDone:  s.OriginalBytes,
				FilesDone:  s.Entries,
				FilesTotal: total,
			})
		}
	}
	eg.Go(func() error {
		return seq.run(ctx, doneCh, total)
	})

	err := eg.Wait()
	// Blocks still buffered in the channel after a failure own spill files.
	for b := range doneCh {
		discard(b)
	}
	if err != nil {
		return Stats{}, err
	}
	cfg.log().Debug("pipeline finished", "entries", seq.stats.Entries, "blob_size", seq.stats.BlobSize)
	return seq.stats, nil
}
