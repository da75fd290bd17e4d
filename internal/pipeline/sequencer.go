package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sync/semaphore"

	"github.com/meigma/s4a/internal/archivetype"
)

// ErrPipeline is returned when the sequencer's ordering bookkeeping breaks.
// It always indicates a bug, never bad input.
var ErrPipeline = errors.New("pipeline: internal invariant violated")

// sequencer appends blocks to the blob in Seq order and records an index
// entry for each one. Blocks that arrive early wait in pending until every
// lower Seq has been written.
type sequencer struct {
	blob    *bufio.Writer
	idx     Indexer
	window  *semaphore.Weighted
	offset  uint64
	next    int
	pending map[int]Block
	stats   Stats
	report  func(path string, stats Stats)
}

func (s *sequencer) run(ctx context.Context, done <-chan Block, total int) (err error) {
	defer func() {
		if err != nil {
			for _, b := range s.pending {
				discard(b)
			}
			clear(s.pending)
		}
	}()

	for s.next < total {
		select {
		case b, ok := <-done:
			if !ok {
				if err := ctx.Err(); err != nil {
					return err
				}
				return fmt.Errorf("%w: workers stopped after %d of %d blocks", ErrPipeline, s.next, total)
			}
			if _, dup := s.pending[b.Seq]; dup || b.Seq < s.next || b.Seq >= total {
				discard(b)
				return fmt.Errorf("%w: unexpected block %d for %s", ErrPipeline, b.Seq, b.Path)
			}
			s.pending[b.Seq] = b
			if err := s.drain(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.next != total || len(s.pending) != 0 {
		return fmt.Errorf("%w: wrote %d of %d blocks", ErrPipeline, s.next, total)
	}
	if err := s.blob.Flush(); err != nil {
		return fmt.Errorf("flush blob: %w", err)
	}
	return nil
}

// drain writes every pending block that is next in line.
func (s *sequencer) drain() error {
	for {
		b, ok := s.pending[s.next]
		if !ok {
			return nil
		}
		delete(s.pending, s.next)
		err := s.write(b)
		discard(b)
		if err != nil {
			return err
		}
		s.next++
		s.window.Release(1)
	}
}

// write appends one block to the blob and indexes it at the offset it
// landed on.
func (s *sequencer) write(b Block) error {
	entry := archivetype.Entry{
		Path:           b.Path,
		Offset:         s.offset,
		CompressedSize: b.CompressedSize,
		OriginalSize:   b.OriginalSize,
		Codec:          b.Codec,
		Checksum:       b.Checksum,
	}
	end, ok := entry.End()
	if !ok {
		return fmt.Errorf("%s: %w", b.Path, archivetype.ErrSizeOverflow)
	}

	if b.Spill != "" {
		if err := s.copySpill(b); err != nil {
			return err
		}
	} else {
		if uint64(len(b.Data)) != b.CompressedSize {
			return fmt.Errorf("%w: %s payload is %d bytes, recorded %d", ErrPipeline, b.Path, len(b.Data), b.CompressedSize)
		}
		if _, err := s.blob.Write(b.Data); err != nil {
			return fmt.Errorf("write blob: %w", err)
		}
	}

	if err := s.idx.Put(&entry); err != nil {
		return err
	}
	s.offset = end
	s.stats.Entries++
	s.stats.OriginalBytes += b.OriginalSize
	s.stats.BlobSize = end
	if s.report != nil {
		s.report(b.Path, s.stats)
	}
	return nil
}

func (s *sequencer) copySpill(b Block) error {
	f, err := os.Open(b.Spill)
	if err != nil {
		return fmt.Errorf("open spill for %s: %w", b.Path, err)
	}
	defer f.Close()

	n, err := io.Copy(s.blob, f)
	if err != nil {
		return fmt.Errorf("write blob: %w", err)
	}
	if uint64(n) != b.CompressedSize { //nolint:gosec // n is never negative
		return fmt.Errorf("%w: %s spill is %d bytes, recorded %d", ErrPipeline, b.Path, n, b.CompressedSize)
	}
	return nil
}
