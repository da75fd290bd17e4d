package s4a

import (
	"io"
	"io/fs"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/pipeline"
)

// Re-export types from internal/archivetype for public API.
type (
	// Entry is the index record for one archived file.
	Entry = archivetype.Entry

	// Codec identifies the compression algorithm of an entry.
	Codec = archivetype.Codec

	// Meta holds archive-level metadata.
	Meta = archivetype.Meta

	// EntryError reports a failure to extract a single entry.
	EntryError = archivetype.EntryError

	// SkipCompressionFunc returns true when a file should be stored uncompressed.
	// It is called once per file and should be inexpensive.
	SkipCompressionFunc = pipeline.SkipCompressionFunc

	// File is an extracted archive file. Content is verified before the
	// file is returned, so reads never see unverified bytes.
	File interface {
		fs.File
		io.ReaderAt
		io.Seeker
	}
)

// Codec constants.
const (
	CodecNone = archivetype.CodecNone
	CodecZstd = archivetype.CodecZstd
	CodecLZ4  = archivetype.CodecLZ4
	CodecLZMA = archivetype.CodecLZMA
)

// FormatVersion is the index format version written by Create.
const FormatVersion = archivetype.FormatVersion

// ParseCodec parses a codec name ("none", "zstd", "lz4", "lzma"), ignoring case.
var ParseCodec = archivetype.ParseCodec

// DefaultSkipCompression returns a SkipCompressionFunc that skips files
// smaller than minSize and known already-compressed extensions.
var DefaultSkipCompression = pipeline.DefaultSkipCompression

// ByteSource provides random access to blob bytes.
//
// Implementations exist for local files and HTTP range requests. SourceID
// must return a stable identifier for the underlying content.
type ByteSource interface {
	io.ReaderAt
	Size() int64
	SourceID() string
}

// Interface compliance.
var (
	_ fs.FS         = (*Archive)(nil)
	_ fs.StatFS     = (*Archive)(nil)
	_ fs.ReadFileFS = (*Archive)(nil)
	_ fs.ReadDirFS  = (*Archive)(nil)
)
