package archivetype

import (
	"errors"
	"fmt"
)

// Sentinel errors for archive operations.
var (
	// ErrUnknownCodec is returned for codec identifiers this build does not know.
	ErrUnknownCodec = errors.New("s4a: unknown codec")

	// ErrInput is returned when the input path is missing or cannot be read.
	ErrInput = errors.New("s4a: invalid input")

	// ErrUnsupportedFile is returned when enumeration meets a symlink or special file.
	ErrUnsupportedFile = errors.New("s4a: unsupported file type")

	// ErrTooManyFiles is returned when the file count exceeds the configured limit.
	ErrTooManyFiles = errors.New("s4a: too many files")

	// ErrFileChanged is returned when a file's size differs from what enumeration saw.
	ErrFileChanged = errors.New("s4a: file changed during archiving")

	// ErrDuplicatePath is returned when the index already holds an entry for a path.
	ErrDuplicatePath = errors.New("s4a: duplicate path")

	// ErrLayout is returned when entries would break blob contiguity.
	ErrLayout = errors.New("s4a: layout invariant violated")

	// ErrIndex is returned when an index store is missing, unreadable, or inconsistent.
	ErrIndex = errors.New("s4a: invalid index")

	// ErrCorrupt matches every per-entry corruption error.
	ErrCorrupt = errors.New("s4a: corrupt entry")

	// ErrChecksumMismatch is returned when extracted content does not match its checksum.
	ErrChecksumMismatch = errors.New("s4a: checksum mismatch")

	// ErrDecompression is returned when a payload fails to decompress to its recorded size.
	ErrDecompression = errors.New("s4a: decompression failed")

	// ErrOutOfRange is returned when an entry's byte range lies outside the blob.
	ErrOutOfRange = errors.New("s4a: entry range outside blob")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("s4a: size overflow")

	// ErrFileTooLarge is returned when an entry exceeds the reader's
	// configured size limit. The entry itself may be intact.
	ErrFileTooLarge = errors.New("s4a: entry exceeds size limit")
)

// EntryError reports a failure to extract a single entry.
//
// errors.Is(err, ErrCorrupt) reports true when the cause is one of the
// corruption sentinels, so callers can tell a damaged entry apart from a
// transport failure.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Is reports ErrCorrupt for corruption causes.
func (e *EntryError) Is(target error) bool {
	if target != ErrCorrupt {
		return false
	}
	return errors.Is(e.Err, ErrChecksumMismatch) ||
		errors.Is(e.Err, ErrDecompression) ||
		errors.Is(e.Err, ErrOutOfRange) ||
		errors.Is(e.Err, ErrSizeOverflow) ||
		errors.Is(e.Err, ErrUnknownCodec)
}

// Corrupt wraps err as a corruption of the entry at path.
func Corrupt(path string, err error) error {
	return &EntryError{Path: path, Err: err}
}
