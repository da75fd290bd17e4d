package s4a

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/meigma/s4a/cache"
	"github.com/meigma/s4a/internal/codec"
	"github.com/meigma/s4a/internal/extract"
	"github.com/meigma/s4a/internal/index"
)

// Archive provides random access to the files of an archive.
//
// Archive implements fs.FS, fs.StatFS, fs.ReadFileFS, and fs.ReadDirFS.
// It is safe for concurrent use.
type Archive struct {
	store            *index.Store
	reader           *extract.Reader
	maxFileSize      uint64
	maxDecoderMemory uint64
	cache            cache.Cache        // nil = no caching
	readGroup        singleflight.Group // zero value is valid
	logger           *slog.Logger

	closeOnce sync.Once
	closeErr  error
	closers   []func() error // run in order; the index closes first
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Open opens an archive from disk.
//
// path may be the base name, the ".s4a.db" index, the ".s4a.blob" blob, or a
// single-object ".s4a" file written by Mux. The index is opened before the
// blob. The returned Archive must be closed.
func Open(path string, opts ...OpenOption) (*Archive, error) {
	if isMuxPath(path) {
		return openMuxedFile(path, opts...)
	}
	indexPath, blobPath := Paths(path)

	store, err := index.Open(indexPath)
	if err != nil {
		return nil, err
	}
	src, err := openFileSource(blobPath)
	if err != nil {
		_ = store.Close() //nolint:errcheck // reporting the open error
		return nil, fmt.Errorf("open blob: %w", err)
	}
	a := newArchive(store, src, opts)
	a.closers = append(a.closers, src.Close)
	return a, nil
}

// OpenWithSource opens the index at indexPath and reads file content from
// source, which may be any ranged-read source such as an HTTP blob.
// Closing the Archive does not close source.
func OpenWithSource(indexPath string, source ByteSource, opts ...OpenOption) (*Archive, error) {
	if source == nil {
		return nil, errors.New("open: source is nil")
	}
	store, err := index.Open(indexPath)
	if err != nil {
		return nil, err
	}
	return newArchive(store, source, opts), nil
}

func newArchive(store *index.Store, source ByteSource, opts []OpenOption) *Archive {
	a := &Archive{
		store:            store,
		maxDecoderMemory: codec.DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.reader = extract.NewReader(source,
		extract.WithMaxFileSize(a.maxFileSize),
		extract.WithDecompressor(codec.NewDecompressor(a.maxDecoderMemory)),
	)
	a.closers = append(a.closers, store.Close)
	a.log().Debug("archive opened",
		"index", store.Path(),
		"source", source.SourceID(),
		"entries", store.Len())
	return a
}

// Close releases the index and any files opened by Open. Close is
// idempotent.
func (a *Archive) Close() error {
	a.closeOnce.Do(func() {
		var errs []error
		for _, closeFn := range a.closers {
			errs = append(errs, closeFn())
		}
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

// Meta returns the archive metadata.
func (a *Archive) Meta() Meta {
	return a.store.Meta()
}

// Len returns the number of entries in the archive.
func (a *Archive) Len() int {
	return a.store.Len()
}

// Size returns the size of the blob in bytes.
func (a *Archive) Size() int64 {
	return a.reader.Source().Size()
}

// Stream returns a reader over the whole blob.
func (a *Archive) Stream() io.Reader {
	src := a.reader.Source()
	return io.NewSectionReader(src, 0, src.Size())
}

// Lookup returns the index entry for path. A missing path is reported as an
// *fs.PathError wrapping fs.ErrNotExist.
func (a *Archive) Lookup(path string) (Entry, error) {
	return a.lookup("lookup", path)
}

func (a *Archive) lookup(op, path string) (Entry, error) {
	e, ok, err := a.store.Lookup(path)
	if err != nil {
		return Entry{}, &fs.PathError{Op: op, Path: path, Err: err}
	}
	if !ok {
		return Entry{}, &fs.PathError{Op: op, Path: path, Err: fs.ErrNotExist}
	}
	return e, nil
}

// Extract returns the verified content of the file at path.
//
// The entry's byte range is read from the blob, decompressed with its
// recorded codec, and checked against its recorded size and checksum. A
// damaged entry fails with an *EntryError matching ErrCorrupt and the
// specific cause; other entries remain readable.
func (a *Archive) Extract(path string) ([]byte, error) {
	e, err := a.lookup("extract", path)
	if err != nil {
		return nil, err
	}
	return a.readEntry(&e)
}

// Entries returns every entry ordered by blob offset.
func (a *Archive) Entries() ([]Entry, error) {
	return a.store.Entries()
}

// EntriesWithPrefix returns the entries under the directory prefix, ordered
// by path. The prefix "" or "." selects every entry.
func (a *Archive) EntriesWithPrefix(prefix string) ([]Entry, error) {
	return a.store.EntriesWithPrefix(prefix)
}

// Verify checks the blob layout without reading file content: entries are
// contiguous from offset 0, the last one ends at the blob size, and the
// entry count matches the metadata.
func (a *Archive) Verify() error {
	entries, err := a.store.Entries()
	if err != nil {
		return err
	}
	return extract.CheckLayout(entries, a.Size(), a.store.Len())
}

// VerifyContents runs Verify and then extracts every entry, discarding the
// content. Layout and corruption errors are collected and joined rather
// than stopping at the first one.
func (a *Archive) VerifyContents(ctx context.Context) error {
	var errs []error
	if err := a.Verify(); err != nil {
		if !errors.Is(err, ErrLayout) {
			return err
		}
		errs = append(errs, err)
	}
	entries, err := a.store.Entries()
	if err != nil {
		return err
	}
	for i := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.reader.ReadAll(&entries[i]); err != nil {
			if !errors.Is(err, ErrCorrupt) {
				return err
			}
			a.log().Warn("corrupt entry", "path", entries[i].Path, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
