// Package disk implements cache.Cache on the local filesystem.
package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/s4a/cache"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700
)

// Cache stores entries as files named by their digest, grouped into a
// directory per algorithm and sharded by the leading hex characters of the
// encoded digest. Writes go through a temp file and rename, so readers never
// see partial content. The cache is safe for concurrent use.
type Cache struct {
	dir            string
	shardPrefixLen int
	dirPerm        os.FileMode
	maxBytes       int64
	bytes          atomic.Int64
	pruneMu        sync.Mutex
}

var _ cache.Cache = (*Cache)(nil)

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the permissions of created directories. Defaults to 0700.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes. 0 (the default)
// disables the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// New creates a disk cache rooted at dir, creating dir if needed.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return nil, err
	}
	_, size, err := scan(dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Get returns a file for reading cached content. A hit refreshes the
// entry's modification time, which orders eviction.
func (c *Cache) Get(d digest.Digest) (fs.File, bool) {
	path, err := c.path(d)
	if err != nil {
		return nil, false
	}
	f, err := os.Open(path) //nolint:gosec // path is derived from a validated digest
	if err != nil {
		return nil, false
	}
	now := time.Now()
	_ = os.Chtimes(path, now, now) //nolint:errcheck // recency is advisory
	return f, true
}

// Put stores the content of f under d. Content that alone exceeds the
// size limit is dropped without error. Concurrent Puts of the same digest
// are harmless: the content is identical and the last rename wins.
func (c *Cache) Put(d digest.Digest, f fs.File) error {
	path, err := c.path(d)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	staged, n, err := c.stage(filepath.Dir(path), f)
	if err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	defer os.Remove(staged) //nolint:errcheck // gone after a successful rename

	if fits, err := c.reserve(n); err != nil || !fits {
		return err
	}
	if err := os.Rename(staged, path); err != nil {
		return err
	}
	c.bytes.Add(n)
	return nil
}

// stage copies r into a new temp file in dir and returns its path and size.
func (c *Cache) stage(dir string, r io.Reader) (string, int64, error) {
	if err := os.MkdirAll(dir, c.dirPerm); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(tmp, r)
	if err = errors.Join(err, tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name()) //nolint:errcheck // reporting the copy error
		return "", 0, err
	}
	return tmp.Name(), n, nil
}

// Delete removes cached content for d.
func (c *Cache) Delete(d digest.Digest) error {
	path, err := c.path(d)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 { return c.maxBytes }

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 { return c.bytes.Load() }

// Prune removes the least recently used entries until the cache holds at
// most targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := evict(c.dir, max(targetBytes, 0))
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(d digest.Digest) (string, error) {
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("cache key: %w", err)
	}
	encoded := d.Encoded()
	dir := filepath.Join(c.dir, d.Algorithm().String())
	if c.shardPrefixLen == 0 {
		return filepath.Join(dir, encoded), nil
	}
	n := min(c.shardPrefixLen, len(encoded))
	return filepath.Join(dir, encoded[:n], encoded), nil
}

// reserve makes room for need more bytes, pruning if necessary. It reports
// false when need can never fit.
func (c *Cache) reserve(need int64) (bool, error) {
	switch {
	case c.maxBytes <= 0:
		return true, nil
	case need > c.maxBytes:
		return false, nil
	case c.SizeBytes()+need <= c.maxBytes:
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}
