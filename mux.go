package s4a

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ulikunitz/xz"

	"github.com/meigma/s4a/internal/extract"
	"github.com/meigma/s4a/internal/index"
)

// muxHeaderSize is the length of the big-endian index length prefix.
const muxHeaderSize = 8

// Mux combines an index and its blob into one object at outPath:
//
//	[8-byte big-endian N][N bytes: xz-compressed index][blob bytes]
//
// The pair is validated first. outPath is written through a temp file and
// rename.
func Mux(indexPath, blobPath, outPath string) error {
	blob, err := os.Open(blobPath) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return fmt.Errorf("mux: open blob: %w", err)
	}
	defer blob.Close()
	info, err := blob.Stat()
	if err != nil {
		return fmt.Errorf("mux: stat blob: %w", err)
	}
	if err := checkPair(indexPath, info.Size()); err != nil {
		return fmt.Errorf("mux: %w", err)
	}

	var compressed bytes.Buffer
	if err := compressIndex(indexPath, &compressed); err != nil {
		return fmt.Errorf("mux: %w", err)
	}

	return writeFileAtomic(outPath, func(w io.Writer) error {
		var hdr [muxHeaderSize]byte
		binary.BigEndian.PutUint64(hdr[:], uint64(compressed.Len()))
		if _, err := w.Write(hdr[:]); err != nil {
			return err
		}
		if _, err := w.Write(compressed.Bytes()); err != nil {
			return err
		}
		_, err := io.Copy(w, blob)
		return err
	})
}

// Demux splits a single-object archive back into <outBase>.s4a.blob and
// <outBase>.s4a.db, committing the blob before the index.
func Demux(muxPath, outBase string) error {
	src, err := openFileSource(muxPath)
	if err != nil {
		return fmt.Errorf("demux: %w", err)
	}
	defer src.Close()
	compressed, blobOff, err := readMuxHeader(src)
	if err != nil {
		return fmt.Errorf("demux: %w", err)
	}

	indexPath, blobPath := Paths(outBase)
	if err := os.MkdirAll(filepath.Dir(indexPath), 0o750); err != nil {
		return fmt.Errorf("demux: create output directory: %w", err)
	}
	if err := os.Remove(indexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("demux: remove previous index: %w", err)
	}
	err = writeFileAtomic(blobPath, func(w io.Writer) error {
		_, err := io.Copy(w, io.NewSectionReader(src, blobOff, src.Size()-blobOff))
		return err
	})
	if err != nil {
		return fmt.Errorf("demux: write blob: %w", err)
	}
	err = writeFileAtomic(indexPath, func(w io.Writer) error {
		return decompressIndex(compressed, w)
	})
	if err != nil {
		_ = os.Remove(blobPath) //nolint:errcheck // the blob is useless without its index
		return fmt.Errorf("demux: write index: %w", err)
	}
	return nil
}

// OpenMuxed opens a single-object archive read through src.
//
// The header and compressed index are fetched with two reads, the index is
// unpacked to a temporary file that is removed on Close, and file content
// is served from a view of src that starts after the index. Closing the
// Archive does not close src.
func OpenMuxed(src ByteSource, opts ...OpenOption) (*Archive, error) {
	compressed, blobOff, err := readMuxHeader(src)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "s4a-index-*.db")
	if err != nil {
		return nil, fmt.Errorf("create temp index: %w", err)
	}
	tmpPath := tmp.Name()
	err = decompressIndex(compressed, tmp)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // reporting the unpack error
		return nil, err
	}

	store, err := index.Open(tmpPath)
	if err != nil {
		_ = os.Remove(tmpPath) //nolint:errcheck // reporting the open error
		return nil, err
	}
	a := newArchive(store, newSectionSource(src, blobOff, src.Size()-blobOff), opts)
	a.closers = append(a.closers, func() error { return os.Remove(tmpPath) })
	return a, nil
}

func openMuxedFile(path string, opts ...OpenOption) (*Archive, error) {
	src, err := openFileSource(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	a, err := OpenMuxed(src, opts...)
	if err != nil {
		_ = src.Close() //nolint:errcheck // reporting the open error
		return nil, err
	}
	a.closers = append(a.closers, src.Close)
	return a, nil
}

// readMuxHeader reads the length prefix and the compressed index, returning
// the index bytes and the offset of the blob.
func readMuxHeader(src ByteSource) ([]byte, int64, error) {
	size := src.Size()
	if size < muxHeaderSize {
		return nil, 0, fmt.Errorf("%w: object is %d bytes, too short for a header", ErrIndex, size)
	}
	var hdr [muxHeaderSize]byte
	if _, err := io.ReadFull(io.NewSectionReader(src, 0, muxHeaderSize), hdr[:]); err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	n := binary.BigEndian.Uint64(hdr[:])
	if n == 0 || n > uint64(size-muxHeaderSize) {
		return nil, 0, fmt.Errorf("%w: index length %d does not fit a %d byte object", ErrIndex, n, size)
	}
	compressed := make([]byte, n)
	if _, err := io.ReadFull(io.NewSectionReader(src, muxHeaderSize, int64(n)), compressed); err != nil {
		return nil, 0, fmt.Errorf("read index: %w", err)
	}
	return compressed, muxHeaderSize + int64(n), nil
}

// checkPair validates the index at indexPath against a blob of blobSize bytes.
func checkPair(indexPath string, blobSize int64) error {
	store, err := index.Open(indexPath)
	if err != nil {
		return err
	}
	defer store.Close()
	entries, err := store.Entries()
	if err != nil {
		return err
	}
	return extract.CheckLayout(entries, blobSize, store.Len())
}

func compressIndex(indexPath string, w io.Writer) error {
	f, err := os.Open(indexPath) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer f.Close()
	xw, err := xz.NewWriter(w)
	if err != nil {
		return fmt.Errorf("compress index: %w", err)
	}
	if _, err := io.Copy(xw, f); err != nil {
		_ = xw.Close() //nolint:errcheck // reporting the copy error
		return fmt.Errorf("compress index: %w", err)
	}
	if err := xw.Close(); err != nil {
		return fmt.Errorf("compress index: %w", err)
	}
	return nil
}

func decompressIndex(compressed []byte, w io.Writer) error {
	xr, err := xz.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("%w: decompress index: %w", ErrIndex, err)
	}
	if _, err := io.Copy(w, xr); err != nil {
		return fmt.Errorf("%w: decompress index: %w", ErrIndex, err)
	}
	return nil
}

// writeFileAtomic streams content from fn into a temp file next to target,
// syncs it, and renames it into place.
func writeFileAtomic(target string, fn func(w io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+"-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()        //nolint:errcheck // already failing
			_ = os.Remove(tmpPath) //nolint:errcheck // best-effort temp cleanup
		}
	}()

	if err := fn(tmp); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return err
	}
	success = true
	return nil
}
