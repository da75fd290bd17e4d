package s4a

import (
	"bytes"
	"io"
	"io/fs"
	"path"
	"slices"
	"strings"

	"github.com/meigma/s4a/internal/pathutil"
)

// Open implements fs.FS.
//
// Files are extracted and verified in full before Open returns, so a
// corrupt entry fails here with an error matching ErrCorrupt. Directories
// are synthesized from entry paths; the archive does not store them.
func (a *Archive) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return a.openDir(name), nil
	}

	e, ok, err := a.store.Lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if ok {
		info, err := newFileInfo(&e, a.Meta().CreatedAt)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		content, err := a.readEntry(&e)
		if err != nil {
			return nil, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		return &memFile{Reader: bytes.NewReader(content), info: info}, nil
	}

	isDir, err := a.store.HasPrefix(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if isDir {
		return a.openDir(name), nil
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

// Stat implements fs.StatFS without reading file content.
func (a *Archive) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	if name == "." {
		return a.dirInfo(name), nil
	}

	e, ok, err := a.store.Lookup(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if ok {
		info, err := newFileInfo(&e, a.Meta().CreatedAt)
		if err != nil {
			return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
		}
		return info, nil
	}

	isDir, err := a.store.HasPrefix(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if isDir {
		return a.dirInfo(name), nil
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

// ReadFile implements fs.ReadFileFS.
//
// When caching is enabled, concurrent calls for the same content are
// deduplicated.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	e, err := a.lookup("readfile", name)
	if err != nil {
		return nil, err
	}
	content, err := a.readEntry(&e)
	if err != nil {
		return nil, err
	}
	// The cache may share one slice between callers.
	return slices.Clone(content), nil
}

// ReadDir implements fs.ReadDirFS.
//
// Entries are sorted by name. Subdirectories are synthesized from the
// paths of the files below them.
func (a *Archive) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	entries, err := a.readDir(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	if len(entries) == 0 && name != "." {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	return entries, nil
}

// readDir lists the direct children of the directory name.
func (a *Archive) readDir(name string) ([]fs.DirEntry, error) {
	entries, err := a.store.EntriesWithPrefix(name)
	if err != nil {
		return nil, err
	}
	modTime := a.Meta().CreatedAt

	out := make([]fs.DirEntry, 0, len(entries))
	var last string
	for i := range entries {
		childName, isDir := pathutil.Child(entries[i].Path, name)
		// Files below one subdirectory are adjacent in path order.
		if childName == last {
			continue
		}
		last = childName

		if isDir {
			out = append(out, &dirEntry{info: &dirInfo{name: childName, modTime: modTime}})
			continue
		}
		info, err := newFileInfo(&entries[i], modTime)
		if err != nil {
			out = append(out, &dirEntry{info: &fileInfo{entry: entries[i], name: childName, modTime: modTime}, infoErr: err})
			continue
		}
		out = append(out, &dirEntry{info: info})
	}
	slices.SortFunc(out, func(x, y fs.DirEntry) int {
		return strings.Compare(x.Name(), y.Name())
	})
	return out, nil
}

func (a *Archive) dirInfo(name string) *dirInfo {
	if name != "." {
		name = path.Base(name)
	}
	return &dirInfo{name: name, modTime: a.Meta().CreatedAt}
}

func (a *Archive) openDir(name string) *openDir {
	return &openDir{a: a, name: name}
}

// openDir implements fs.ReadDirFile for synthesized directories.
type openDir struct {
	a       *Archive
	name    string
	entries []fs.DirEntry
	loaded  bool
	pos     int
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return d.a.dirInfo(d.name), nil
}

func (d *openDir) Close() error { return nil }

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if !d.loaded {
		entries, err := d.a.readDir(d.name)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: err}
		}
		d.entries = entries
		d.loaded = true
	}

	rest := d.entries[d.pos:]
	if n <= 0 {
		d.pos = len(d.entries)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	n = min(n, len(rest))
	d.pos += n
	return rest[:n], nil
}
