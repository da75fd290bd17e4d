package s4a

import (
	"bytes"
	"io/fs"
	"path"
	"time"

	"github.com/meigma/s4a/internal/sizing"
)

// memFile is an extracted file. Its content was verified before the file
// was handed out.
type memFile struct {
	*bytes.Reader
	info *fileInfo
}

// Stat returns file info from the entry metadata.
func (f *memFile) Stat() (fs.FileInfo, error) { return f.info, nil }

// Close is a no-op since the content lives in memory.
func (f *memFile) Close() error { return nil }

var _ File = (*memFile)(nil)

// fileInfo implements fs.FileInfo for archive entries.
type fileInfo struct {
	entry   Entry
	name    string
	size    int64
	modTime time.Time
}

func newFileInfo(e *Entry, modTime time.Time) (*fileInfo, error) {
	size, err := sizing.Signed[int64](e.OriginalSize)
	if err != nil {
		return nil, err
	}
	return &fileInfo{entry: *e, name: path.Base(e.Path), size: size, modTime: modTime}, nil
}

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return 0o444 }
func (fi *fileInfo) ModTime() time.Time { return fi.modTime }
func (fi *fileInfo) IsDir() bool        { return false }

// Sys returns the *Entry backing the info.
func (fi *fileInfo) Sys() any { return &fi.entry }

// dirInfo implements fs.FileInfo for synthesized directories.
type dirInfo struct {
	name    string
	modTime time.Time
}

func (di *dirInfo) Name() string       { return di.name }
func (di *dirInfo) Size() int64        { return 0 }
func (di *dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (di *dirInfo) ModTime() time.Time { return di.modTime }
func (di *dirInfo) IsDir() bool        { return true }
func (di *dirInfo) Sys() any           { return nil }

// dirEntry adapts an fs.FileInfo to fs.DirEntry.
type dirEntry struct {
	info    fs.FileInfo
	infoErr error
}

func (de *dirEntry) Name() string               { return de.info.Name() }
func (de *dirEntry) IsDir() bool                { return de.info.IsDir() }
func (de *dirEntry) Type() fs.FileMode          { return de.info.Mode().Type() }
func (de *dirEntry) Info() (fs.FileInfo, error) { return de.info, de.infoErr }
func (de *dirEntry) String() string             { return fs.FormatDirEntry(de) }
