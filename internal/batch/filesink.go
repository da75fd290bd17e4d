package batch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// stagePrefix names the temp file an entry is written to before Commit.
const stagePrefix = ".s4a-"

// FileSink writes entries below a destination directory.
//
// Every filesystem call goes through an os.Root opened on the destination,
// so no entry path, symlinks included, can resolve outside it. Entries are
// staged next to their final path and renamed into place on Commit.
type FileSink struct {
	dest      string
	overwrite bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite replaces existing files instead of skipping them.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) { s.overwrite = overwrite }
}

// NewFileSink returns a FileSink writing below dest.
func NewFileSink(dest string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{dest: dest}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShouldProcess reports whether entry needs writing. Invalid paths are let
// through so that Writer can reject them.
func (s *FileSink) ShouldProcess(entry *Entry) bool {
	if s.overwrite || !fs.ValidPath(entry.Path) {
		return true
	}
	_, err := os.Lstat(filepath.Join(s.dest, filepath.FromSlash(entry.Path)))
	return errors.Is(err, fs.ErrNotExist)
}

// Writer stages entry in a temp file beside its destination.
func (s *FileSink) Writer(entry *Entry) (Committer, error) {
	if entry.Path == "." || !fs.ValidPath(entry.Path) {
		return nil, &fs.PathError{Op: "extract", Path: entry.Path, Err: fs.ErrInvalid}
	}
	root, err := os.OpenRoot(s.dest)
	if err != nil {
		return nil, fmt.Errorf("open destination %s: %w", s.dest, err)
	}
	st := &stagedFile{root: root, target: filepath.FromSlash(entry.Path)}
	if err := st.create(); err != nil {
		_ = root.Close() //nolint:errcheck // reporting the create error
		return nil, fmt.Errorf("stage %s: %w", entry.Path, err)
	}
	return st, nil
}

// stagedFile is a temp file that becomes target on Commit.
type stagedFile struct {
	root   *os.Root
	target string
	temp   string
	*os.File
}

func (f *stagedFile) create() error {
	dir := filepath.Dir(f.target)
	if err := f.root.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	for range 10 {
		name := filepath.Join(dir, stagePrefix+rand.Text())
		file, err := f.root.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return err
		}
		f.File, f.temp = file, name
		return nil
	}
	return errors.New("no unused temp name")
}

// Commit renames the temp file over the target. A directory at the target
// is never replaced.
func (f *stagedFile) Commit() error {
	defer f.root.Close()

	err := f.File.Close()
	if err == nil {
		if info, statErr := f.root.Lstat(f.target); statErr == nil && info.IsDir() {
			err = &fs.PathError{Op: "extract", Path: filepath.ToSlash(f.target), Err: errors.New("is a directory")}
		}
	}
	if err == nil {
		err = f.root.Rename(f.temp, f.target)
	}
	if err != nil {
		_ = f.root.Remove(f.temp) //nolint:errcheck // reporting the commit error
		return fmt.Errorf("commit %s: %w", filepath.ToSlash(f.target), err)
	}
	return nil
}

// Discard removes the temp file.
func (f *stagedFile) Discard() error {
	defer f.root.Close()
	_ = f.File.Close() //nolint:errcheck // the file is being removed
	return f.root.Remove(f.temp)
}
