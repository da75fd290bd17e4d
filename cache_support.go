package s4a

import (
	"bytes"
	"io"
	"io/fs"
	"time"
)

// readEntry extracts e, going through the cache when one is configured.
func (a *Archive) readEntry(e *Entry) ([]byte, error) {
	if a.cache == nil {
		return a.reader.ReadAll(e)
	}

	if content, ok := a.readCached(e); ok {
		a.log().Debug("extract cache hit", "path", e.Path)
		return content, nil
	}
	a.log().Debug("extract cache miss", "path", e.Path)

	// Concurrent misses for one path share a read. Entries that share a
	// checksum still read separately: one of them may be damaged.
	result, err, _ := a.readGroup.Do(e.Path, func() (any, error) {
		if content, ok := a.readCached(e); ok {
			return content, nil
		}
		content, err := a.reader.ReadAll(e)
		if err != nil {
			return nil, err
		}
		_ = a.cache.Put(e.Checksum, &bytesFile{ //nolint:errcheck // caching is opportunistic
			Reader: bytes.NewReader(content),
			size:   int64(len(content)),
		})
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

// readCached returns verified content from the cache. Content that fails
// verification is evicted.
func (a *Archive) readCached(e *Entry) ([]byte, bool) {
	f, ok := a.cache.Get(e.Checksum)
	if !ok {
		return nil, false
	}
	defer f.Close()

	if err := e.Checksum.Validate(); err != nil {
		return nil, false
	}
	verifier := e.Checksum.Verifier()
	content, err := io.ReadAll(io.TeeReader(f, verifier))
	if err != nil {
		return nil, false
	}
	if uint64(len(content)) != e.OriginalSize || !verifier.Verified() {
		a.log().Warn("evicting corrupt cache entry", "digest", e.Checksum.String())
		_ = a.cache.Delete(e.Checksum) //nolint:errcheck // best-effort cache cleanup on mismatch
		return nil, false
	}
	return content, true
}

// bytesFile wraps []byte as fs.File for cache.Put.
type bytesFile struct {
	*bytes.Reader
	size int64
}

// Stat returns synthetic file info with the content size.
func (f *bytesFile) Stat() (fs.FileInfo, error) {
	return &bytesFileInfo{size: f.size}, nil
}

// Close is a no-op since the underlying bytes.Reader needs no cleanup.
func (f *bytesFile) Close() error { return nil }

// bytesFileInfo implements fs.FileInfo for bytesFile.
type bytesFileInfo struct {
	size int64
}

func (fi *bytesFileInfo) Name() string       { return "" }
func (fi *bytesFileInfo) Size() int64        { return fi.size }
func (fi *bytesFileInfo) Mode() fs.FileMode  { return 0o644 }
func (fi *bytesFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *bytesFileInfo) IsDir() bool        { return false }
func (fi *bytesFileInfo) Sys() any           { return nil }
