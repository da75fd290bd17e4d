package archivetype

import (
	"time"

	"github.com/opencontainers/go-digest"
)

// FormatVersion is the index format version written by this module.
const FormatVersion = 1

// Entry is the index record for one archived file.
type Entry struct {
	// Path is the slash-separated path relative to the input root (e.g., "src/main.go").
	Path string

	// Offset is the byte offset in the blob where this entry's payload begins.
	Offset uint64

	// CompressedSize is the length of the payload in the blob.
	CompressedSize uint64

	// OriginalSize is the length of the file before compression.
	OriginalSize uint64

	// Codec is the algorithm the payload was compressed with.
	Codec Codec

	// Checksum is the digest of the original (uncompressed) bytes.
	Checksum digest.Digest
}

// End returns the offset one past the last payload byte.
func (e *Entry) End() (uint64, bool) {
	end := e.Offset + e.CompressedSize
	if end < e.Offset {
		return 0, false
	}
	return end, true
}

// Meta holds archive-level metadata stored alongside the entries.
type Meta struct {
	Version           int
	EntryCount        int
	CreatedAt         time.Time
	Codec             Codec
	ChecksumAlgorithm digest.Algorithm
}
