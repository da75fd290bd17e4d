// Package batch extracts many entries at once.
//
// Entries are sorted by blob offset and merged into contiguous groups so
// that each group costs one range read. Groups can be fetched concurrently
// with a read-ahead byte budget while a single consumer decodes them in
// order.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/extract"
	"github.com/meigma/s4a/internal/sizing"
)

// DefaultMaxGroupBytes caps a single grouped range read (16MB).
const DefaultMaxGroupBytes = 16 << 20

// Processor reads, verifies, and writes batches of entries.
type Processor struct {
	reader           *extract.Reader
	readConcurrency  int
	readAheadBytes   uint64
	readAheadEnabled bool
	maxGroupBytes    uint64
	logger           *slog.Logger
	progress         archivetype.ProgressFunc
}

// log returns the logger, falling back to a discard logger if nil.
func (p *Processor) log() *slog.Logger {
	if p.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return p.logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithReadConcurrency sets the number of concurrent range reads.
// Values < 1 force serial reads.
func WithReadConcurrency(n int) ProcessorOption {
	return func(p *Processor) {
		p.readConcurrency = max(n, 1)
	}
}

// WithReadAheadBytes caps the total size of fetched but unprocessed group
// data. 0 disables the budget.
func WithReadAheadBytes(limit uint64) ProcessorOption {
	return func(p *Processor) {
		p.readAheadBytes = limit
		p.readAheadEnabled = limit > 0
	}
}

// WithMaxGroupBytes caps the size of one grouped read. 0 disables the cap.
func WithMaxGroupBytes(limit uint64) ProcessorOption {
	return func(p *Processor) {
		p.maxGroupBytes = limit
	}
}

// WithProcessorLogger sets the logger. If not set, logging is disabled.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithProcessorProgress sets a callback invoked after each entry is written.
func WithProcessorProgress(fn archivetype.ProgressFunc) ProcessorOption {
	return func(p *Processor) {
		p.progress = fn
	}
}

// NewProcessor creates a Processor reading through reader.
func NewProcessor(reader *extract.Reader, opts ...ProcessorOption) *Processor {
	p := &Processor{
		reader:          reader,
		readConcurrency: 1,
		maxGroupBytes:   DefaultMaxGroupBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process extracts entries into sink and stops at the first error.
//
// Entries rejected by sink.ShouldProcess are skipped. Every remaining entry
// is validated against the blob before any read is issued.
func (p *Processor) Process(ctx context.Context, entries []*Entry, sink Sink) (ProcessStats, error) {
	var stats ProcessStats
	toProcess := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		if sink.ShouldProcess(entry) {
			toProcess = append(toProcess, entry)
		} else {
			stats.Skipped++
		}
	}
	if len(toProcess) == 0 {
		return stats, nil
	}

	blobSize := p.reader.Source().Size()
	for _, entry := range toProcess {
		if err := extract.Validate(entry, blobSize, p.reader.MaxFileSize()); err != nil {
			return stats, archivetype.Corrupt(entry.Path, err)
		}
	}

	slices.SortFunc(toProcess, func(a, b *Entry) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	})

	groups := groupAdjacentEntries(toProcess, p.maxGroupBytes)
	p.log().Debug("batch processing", "entries", len(toProcess), "groups", len(groups))

	run := &runState{total: len(toProcess), stats: &stats}
	var err error
	if len(groups) > 1 && (p.readConcurrency > 1 || p.readAheadEnabled) {
		err = p.processGroupsPipelined(ctx, groups, sink, run)
	} else {
		err = p.processGroupsSequential(ctx, groups, sink, run)
	}
	return stats, err
}

// runState tracks progress across groups.
type runState struct {
	total int
	stats *ProcessStats
}

// groupTask is a pending group read.
type groupTask struct {
	index int
	group rangeGroup
	size  int64
}

// groupResult is a completed group read.
type groupResult struct {
	index int
	group rangeGroup
	data  []byte
	size  int64
}

func (p *Processor) processGroupsSequential(ctx context.Context, groups []rangeGroup, sink Sink, run *runState) error {
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := p.readGroupData(group)
		if err != nil {
			return err
		}
		if err := p.processGroupWithData(group, data, sink, run); err != nil {
			return err
		}
	}
	return nil
}

// processGroupsPipelined fetches groups with several readers and processes
// them strictly in group order. Results that arrive early wait in pending.
//
//nolint:gocognit // producer, readers, and the ordered consumer share one errgroup
func (p *Processor) processGroupsPipelined(ctx context.Context, groups []rangeGroup, sink Sink, run *runState) error {
	var budget *semaphore.Weighted
	if p.readAheadEnabled {
		limit, err := sizing.Signed[int64](p.readAheadBytes)
		if err != nil {
			return fmt.Errorf("batch: %w", err)
		}
		budget = semaphore.NewWeighted(limit)
	}
	release := func(n int64) {
		if budget != nil {
			budget.Release(n)
		}
	}

	readWorkers := p.readConcurrency
	readCh := make(chan groupTask)
	readyCh := make(chan groupResult, readWorkers)
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		defer close(readCh)
		for i, group := range groups {
			size, err := sizing.Signed[int64](group.end-group.start)
			if err != nil {
				return err
			}
			// A group larger than the whole budget would never fit; let it
			// through alone by clamping its weight.
			if budget != nil && size > int64(p.readAheadBytes) { //nolint:gosec // checked by Signed above
				size = int64(p.readAheadBytes) //nolint:gosec // checked by Signed above
			}
			// Budget is taken here, in group order, so the group the
			// consumer waits for always holds its share before any later one.
			if budget != nil {
				if err := budget.Acquire(ctx, size); err != nil {
					return err
				}
			}
			select {
			case readCh <- groupTask{index: i, group: group, size: size}:
			case <-ctx.Done():
				release(size)
				return ctx.Err()
			}
		}
		return nil
	})

	var readWg sync.WaitGroup
	readWg.Add(readWorkers)
	for range readWorkers {
		eg.Go(func() error {
			defer readWg.Done()
			for task := range readCh {
				data, err := p.readGroupData(task.group)
				if err != nil {
					release(task.size)
					return err
				}
				select {
				case readyCh <- groupResult{index: task.index, group: task.group, data: data, size: task.size}:
				case <-ctx.Done():
					release(task.size)
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		readWg.Wait()
		close(readyCh)
	}()

	eg.Go(func() error {
		next := 0
		pending := make(map[int]groupResult, readWorkers)
		for next < len(groups) {
			select {
			case res, ok := <-readyCh:
				if !ok {
					if err := ctx.Err(); err != nil {
						return err
					}
					return errors.New("batch: read pipeline ended unexpectedly")
				}
				pending[res.index] = res
				for {
					res, ok := pending[next]
					if !ok {
						break
					}
					delete(pending, next)
					err := p.processGroupWithData(res.group, res.data, sink, run)
					release(res.size)
					if err != nil {
						return err
					}
					next++
				}
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	return eg.Wait()
}

// readGroupData reads the contiguous byte range of a group.
func (p *Processor) readGroupData(group rangeGroup) ([]byte, error) {
	size, err := sizing.Signed[int](group.end-group.start)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	off, err := sizing.Signed[int64](group.start)
	if err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	data := make([]byte, size)
	if size == 0 {
		return data, nil
	}

	if rr, ok := p.reader.Source().(extract.RangeReader); ok {
		body, err := rr.ReadRange(off, int64(size))
		if err != nil {
			return nil, fmt.Errorf("batch: %w", err)
		}
		defer body.Close()
		if _, err := io.ReadFull(body, data); err != nil {
			return nil, fmt.Errorf("batch: read [%d, %d): %w", group.start, group.end, err)
		}
		return data, nil
	}

	n, err := p.reader.Source().ReadAt(data, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("batch: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("batch: short read (%d of %d bytes)", n, size)
	}
	return data, nil
}

// processGroupWithData decodes and writes each entry of a fetched group.
func (p *Processor) processGroupWithData(group rangeGroup, data []byte, sink Sink, run *runState) error {
	for _, entry := range group.entries {
		local := entry.Offset - group.start
		payload := data[local : local+entry.CompressedSize]
		if err := p.processEntry(entry, payload, sink); err != nil {
			return err
		}
		run.stats.Processed++
		run.stats.TotalBytes += entry.OriginalSize
		if p.progress != nil {
			p.progress(archivetype.ProgressEvent{
				Stage:      archivetype.StageExtracting,
				Path:       entry.Path,
				BytesDone:  run.stats.TotalBytes,
				FilesDone:  run.stats.Processed,
				FilesTotal: run.total,
			})
		}
	}
	return nil
}

// processEntry decodes, verifies, and commits a single entry.
func (p *Processor) processEntry(entry *Entry, payload []byte, sink Sink) error {
	w, err := sink.Writer(entry)
	if err != nil {
		return fmt.Errorf("batch: %s: %w", entry.Path, err)
	}
	if err := p.reader.DecodeTo(entry, payload, w); err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return archivetype.Corrupt(entry.Path, err)
	}
	if err := w.Commit(); err != nil {
		return fmt.Errorf("batch: %s: commit: %w", entry.Path, err)
	}
	return nil
}
