package s4a

import "github.com/meigma/s4a/internal/archivetype"

// Sentinel errors re-exported from internal/archivetype.
var (
	// ErrUnknownCodec is returned for codec names or identifiers that are not supported.
	ErrUnknownCodec = archivetype.ErrUnknownCodec

	// ErrInput is returned when the input path is missing or cannot be read.
	ErrInput = archivetype.ErrInput

	// ErrUnsupportedFile is returned when the input tree holds a symlink or special file.
	ErrUnsupportedFile = archivetype.ErrUnsupportedFile

	// ErrTooManyFiles is returned when the file count exceeds the configured limit.
	ErrTooManyFiles = archivetype.ErrTooManyFiles

	// ErrFileChanged is returned when a file changes size while it is archived.
	ErrFileChanged = archivetype.ErrFileChanged

	// ErrDuplicatePath is returned when two entries share a path.
	ErrDuplicatePath = archivetype.ErrDuplicatePath

	// ErrLayout is returned when entries are not contiguous in the blob.
	ErrLayout = archivetype.ErrLayout

	// ErrIndex is returned when an index is missing, unreadable, or inconsistent.
	ErrIndex = archivetype.ErrIndex

	// ErrCorrupt matches every per-entry corruption error.
	ErrCorrupt = archivetype.ErrCorrupt

	// ErrChecksumMismatch is returned when extracted content does not match its checksum.
	ErrChecksumMismatch = archivetype.ErrChecksumMismatch

	// ErrDecompression is returned when decompression fails.
	ErrDecompression = archivetype.ErrDecompression

	// ErrOutOfRange is returned when an entry's range lies outside the blob.
	ErrOutOfRange = archivetype.ErrOutOfRange

	// ErrSizeOverflow is returned when a size value overflows.
	ErrSizeOverflow = archivetype.ErrSizeOverflow

	// ErrFileTooLarge is returned when an entry exceeds WithMaxFileSize.
	ErrFileTooLarge = archivetype.ErrFileTooLarge
)
