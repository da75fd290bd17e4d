package disk

import (
	"cmp"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// tempPrefix marks an in-flight Put; such files are never counted or pruned.
const tempPrefix = ".cache-"

type cacheEntry struct {
	path    string
	size    int64
	modTime time.Time
}

// scan lists the committed entries under root and their total size. A
// missing root is an empty cache.
func scan(root string) ([]cacheEntry, int64, error) {
	var (
		entries []cacheEntry
		total   int64
	)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case !d.Type().IsRegular(), strings.HasPrefix(d.Name(), tempPrefix):
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted or pruned concurrently.
			return nil
		}
		if err != nil {
			return err
		}
		entries = append(entries, cacheEntry{path: p, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, 0, nil
	}
	return entries, total, err
}

// evict removes entries least recently used first until at most
// targetBytes remain. It returns the bytes freed and the bytes left.
func evict(root string, targetBytes int64) (freed, remaining int64, err error) {
	entries, remaining, err := scan(root)
	if err != nil || remaining <= targetBytes {
		return 0, remaining, err
	}

	slices.SortFunc(entries, func(a, b cacheEntry) int {
		return cmp.Or(a.modTime.Compare(b.modTime), strings.Compare(a.path, b.path))
	})
	for _, e := range entries {
		if remaining <= targetBytes {
			break
		}
		if err := os.Remove(e.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return freed, remaining, err
		}
		remaining -= e.size
		freed += e.size
	}
	return freed, remaining, nil
}
