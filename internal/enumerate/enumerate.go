// Package enumerate turns an input path into the ordered list of files to archive.
package enumerate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/meigma/s4a/internal/archivetype"
)

// Kind distinguishes the two shapes of input.
type Kind uint8

const (
	// KindDirectory archives every regular file beneath the path.
	KindDirectory Kind = iota

	// KindSingleFile archives nothing; the result is an empty archive.
	KindSingleFile
)

// Input is a resolved input path.
type Input struct {
	kind Kind
	path string
}

// Directory returns a directory input.
func Directory(path string) Input { return Input{kind: KindDirectory, path: path} }

// SingleFile returns a plain-file input.
func SingleFile(path string) Input { return Input{kind: KindSingleFile, path: path} }

// Kind returns the input shape.
func (in Input) Kind() Kind { return in.kind }

// Path returns the input path as given.
func (in Input) Path() string { return in.path }

// Resolve stats path and classifies it.
//
// A regular file resolves to SingleFile, which enumerates to nothing. This
// mirrors the long-standing behavior of the command line tool: archiving a
// single file produces a valid zero-entry archive.
func Resolve(path string) (Input, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Input{}, fmt.Errorf("%w: %w", archivetype.ErrInput, err)
	}
	switch {
	case info.IsDir():
		return Directory(path), nil
	case info.Mode().IsRegular():
		return SingleFile(path), nil
	default:
		return Input{}, fmt.Errorf("%w: %s is not a directory or regular file", archivetype.ErrInput, path)
	}
}

// Task is one file to compress.
type Task struct {
	// Seq is the position in enumeration order, starting at 0.
	Seq int

	// Path is the slash-separated path relative to the input root.
	Path string

	// FSPath is Path in OS form, relative to the input root.
	FSPath string

	// Size is the file size observed during enumeration.
	Size int64
}

// Tree is the enumeration result.
type Tree struct {
	// Root is the opened input directory; nil for SingleFile inputs.
	Root *os.Root

	// Tasks are the files to archive in enumeration order.
	Tasks []Task

	// TotalBytes is the sum of all task sizes.
	TotalBytes uint64
}

// Close releases the input root.
func (t *Tree) Close() error {
	if t == nil || t.Root == nil {
		return nil
	}
	return t.Root.Close()
}

// Enumerate lists the files of in.
//
// Directory inputs are walked recursively and the result is sorted by
// byte-wise comparison of the relative slash path, so two runs over an
// unchanged tree produce identical task lists. A positive maxFiles caps
// the number of files; zero or negative means no limit.
func Enumerate(ctx context.Context, in Input, maxFiles int) (*Tree, error) {
	if in.kind == KindSingleFile {
		return &Tree{}, nil
	}
	root, err := os.OpenRoot(in.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", archivetype.ErrInput, err)
	}

	tree := &Tree{Root: root}
	err = fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("%w: walk %s: %w", archivetype.ErrInput, path, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		size, err := regularSize(root, path, d)
		if err != nil {
			return err
		}
		if maxFiles > 0 && len(tree.Tasks) >= maxFiles {
			return archivetype.ErrTooManyFiles
		}
		if size > 0 && uint64(size) > ^uint64(0)-tree.TotalBytes {
			return archivetype.ErrSizeOverflow
		}
		tree.TotalBytes += uint64(size)
		tree.Tasks = append(tree.Tasks, Task{Path: path, FSPath: filepath.FromSlash(path), Size: size})
		return nil
	})
	if err != nil {
		_ = root.Close() //nolint:errcheck // reporting the walk error
		return nil, err
	}

	slices.SortFunc(tree.Tasks, func(a, b Task) int {
		return strings.Compare(a.Path, b.Path)
	})
	for i := range tree.Tasks {
		tree.Tasks[i].Seq = i
	}
	return tree, nil
}

// regularSize returns the size of a regular file entry and rejects
// everything else.
func regularSize(root *os.Root, path string, d fs.DirEntry) (int64, error) {
	dtype := d.Type()
	if dtype&fs.ModeSymlink != 0 {
		return 0, fmt.Errorf("%w: symlink %s", archivetype.ErrUnsupportedFile, path)
	}
	if dtype != 0 && !dtype.IsRegular() {
		return 0, fmt.Errorf("%w: %s (%s)", archivetype.ErrUnsupportedFile, path, dtype.Type())
	}

	info, err := root.Lstat(filepath.FromSlash(path))
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return 0, fmt.Errorf("%w: %w", archivetype.ErrInput, err)
		}
		return 0, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return 0, fmt.Errorf("%w: symlink %s", archivetype.ErrUnsupportedFile, path)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s (%s)", archivetype.ErrUnsupportedFile, path, info.Mode().Type())
	}
	return info.Size(), nil
}
