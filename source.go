package s4a

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/meigma/s4a/internal/extract"
)

// fileSource is a ByteSource over a local file. The size is fixed when the
// file is opened.
type fileSource struct {
	*os.File
	size int64
	id   string
}

// openFileSource opens path for ranged reads. The source ID combines the
// absolute path, size, and modification time, so a rewritten file gets a
// new ID.
func openFileSource(path string) (*fileSource, error) {
	f, err := os.Open(path) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // reporting the stat error
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &fileSource{
		File: f,
		size: info.Size(),
		id:   fmt.Sprintf("file:%s:%d:%d", abs, info.Size(), info.ModTime().UnixNano()),
	}, nil
}

func (s *fileSource) Size() int64      { return s.size }
func (s *fileSource) SourceID() string { return s.id }

// sectionSource is a ByteSource over [off, off+size) of another source.
type sectionSource struct {
	src  ByteSource
	off  int64
	size int64
	id   string
}

func newSectionSource(src ByteSource, off, size int64) *sectionSource {
	return &sectionSource{
		src:  src,
		off:  off,
		size: size,
		id:   fmt.Sprintf("%s#%d", src.SourceID(), off),
	}
}

// ReadAt implements io.ReaderAt relative to the start of the section.
func (s *sectionSource) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("read at %d: negative offset", off)
	}
	if off >= s.size {
		return 0, io.EOF
	}
	want := p
	if remaining := s.size - off; int64(len(want)) > remaining {
		want = want[:remaining]
	}
	n, err := s.src.ReadAt(want, s.off+off)
	if err == nil && len(want) < len(p) {
		err = io.EOF
	}
	return n, err
}

// ReadRange streams [off, off+length) of the section, using the underlying
// source's ranged reads when it has them.
func (s *sectionSource) ReadRange(off, length int64) (io.ReadCloser, error) {
	if off < 0 || length < 0 {
		return nil, fmt.Errorf("read range %d+%d: negative offset or length", off, length)
	}
	length = max(0, min(length, s.size-off))
	if rr, ok := s.src.(extract.RangeReader); ok {
		return rr.ReadRange(s.off+off, length)
	}
	return io.NopCloser(io.NewSectionReader(s.src, s.off+off, length)), nil
}

func (s *sectionSource) Size() int64      { return s.size }
func (s *sectionSource) SourceID() string { return s.id }

var (
	_ ByteSource = (*fileSource)(nil)
	_ ByteSource = (*sectionSource)(nil)
)
