package extract

import (
	"fmt"
	"slices"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/sizing"
)

// Validate checks that e is safe to read from a blob of blobSize bytes
// without touching the blob.
//
// maxFileSize of 0 disables the size limit.
func Validate(e *archivetype.Entry, blobSize int64, maxFileSize uint64) error {
	if blobSize < 0 {
		return archivetype.ErrSizeOverflow
	}
	if err := e.Codec.Valid(); err != nil {
		return err
	}
	if maxFileSize > 0 && (e.CompressedSize > maxFileSize || e.OriginalSize > maxFileSize) {
		return fmt.Errorf("%w: %d bytes, limit %d", archivetype.ErrFileTooLarge,
			max(e.CompressedSize, e.OriginalSize), maxFileSize)
	}
	end, ok := sizing.End(e.Offset, e.CompressedSize)
	if !ok {
		return archivetype.ErrSizeOverflow
	}
	if end > uint64(blobSize) {
		return fmt.Errorf("%w: [%d, %d) past blob end %d", archivetype.ErrOutOfRange, e.Offset, end, blobSize)
	}
	if err := checksumValid(e); err != nil {
		return err
	}
	if e.Codec == archivetype.CodecNone && e.CompressedSize != e.OriginalSize {
		return fmt.Errorf("%w: stored entry is %d bytes, recorded %d", archivetype.ErrDecompression, e.CompressedSize, e.OriginalSize)
	}
	return nil
}

// CheckLayout verifies the blob layout described by entries: sorted by
// offset, the first starts at 0, each starts where the previous ends, and
// the last ends at blobSize. expectedCount is the entry count recorded in
// the archive metadata.
func CheckLayout(entries []archivetype.Entry, blobSize int64, expectedCount int) error {
	if len(entries) != expectedCount {
		return fmt.Errorf("%w: %d entries, metadata records %d", archivetype.ErrLayout, len(entries), expectedCount)
	}
	sorted := slices.IsSortedFunc(entries, func(a, b archivetype.Entry) int {
		switch {
		case a.Offset < b.Offset:
			return -1
		case a.Offset > b.Offset:
			return 1
		}
		return 0
	})
	if !sorted {
		return fmt.Errorf("%w: entries are not ordered by offset", archivetype.ErrLayout)
	}

	var next uint64
	for i := range entries {
		e := &entries[i]
		if e.Offset != next {
			return fmt.Errorf("%w: %s starts at %d, expected %d", archivetype.ErrLayout, e.Path, e.Offset, next)
		}
		end, ok := e.End()
		if !ok {
			return fmt.Errorf("%w: %s: %w", archivetype.ErrLayout, e.Path, archivetype.ErrSizeOverflow)
		}
		next = end
	}
	if blobSize < 0 || next != uint64(blobSize) {
		return fmt.Errorf("%w: entries end at %d, blob is %d bytes", archivetype.ErrLayout, next, blobSize)
	}
	return nil
}
