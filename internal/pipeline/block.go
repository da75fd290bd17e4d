package pipeline

import (
	"io"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/s4a/internal/archivetype"
)

// Block is one compressed file on its way from a worker to the sequencer.
//
// The payload lives either in Data or, for large files, in the spill file
// at Spill. Whoever holds the Block owns the spill file.
type Block struct {
	Seq            int
	Path           string
	Codec          archivetype.Codec
	Data           []byte
	Spill          string
	CompressedSize uint64
	OriginalSize   uint64
	Checksum       digest.Digest
}

// Indexer records entries as the sequencer writes them.
// *index.Builder satisfies it.
type Indexer interface {
	Put(e *archivetype.Entry) error
}

// Stats summarizes a pipeline run.
type Stats struct {
	// Entries is the number of files written.
	Entries int

	// OriginalBytes is the sum of the uncompressed file sizes.
	OriginalBytes uint64

	// BlobSize is the number of bytes written to the blob.
	BlobSize uint64
}

// countingWriter counts bytes written through it.
type countingWriter struct {
	w io.Writer
	n uint64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += uint64(n) //nolint:gosec // n is never negative
	return n, err
}
