package pipeline

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/meigma/s4a/internal/archivetype"
	"github.com/meigma/s4a/internal/codec"
	"github.com/meigma/s4a/internal/enumerate"
	"github.com/meigma/s4a/internal/platform"
)

// worker compresses one task at a time. Each worker owns its compressor.
type worker struct {
	root       *os.Root
	cfg        *Config
	compressor *codec.Compressor
}

func newWorker(root *os.Root, cfg *Config) *worker {
	return &worker{root: root, cfg: cfg, compressor: codec.NewCompressor(cfg.Level)}
}

func (w *worker) close() {
	_ = w.compressor.Close() //nolint:errcheck // encoder close only releases memory
}

// process reads, checksums, and compresses the file behind t.
func (w *worker) process(t enumerate.Task) (Block, error) {
	f, err := platform.OpenNoFollow(w.root, t.FSPath)
	if err != nil {
		return Block{}, fmt.Errorf("open %s: %w", t.Path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return Block{}, fmt.Errorf("stat %s: %w", t.Path, err)
	}
	if !info.Mode().IsRegular() {
		return Block{}, fmt.Errorf("%w: %s", archivetype.ErrUnsupportedFile, t.Path)
	}
	if info.Size() != t.Size {
		return Block{}, fmt.Errorf("%w: %s was %d bytes, now %d", archivetype.ErrFileChanged, t.Path, t.Size, info.Size())
	}

	c := w.cfg.Codec
	if c != archivetype.CodecNone && shouldSkip(t.Path, info, w.cfg.Skip) {
		c = archivetype.CodecNone
	}

	digester := w.cfg.Algorithm.Digester()
	// Reading one byte past the expected size detects files that grew.
	src := io.TeeReader(io.LimitReader(f, t.Size+1), digester.Hash())

	block := Block{
		Seq:          t.Seq,
		Path:         t.Path,
		Codec:        c,
		OriginalSize: uint64(t.Size), //nolint:gosec // sizes from enumeration are non-negative
	}

	var n int64
	if w.spills(t.Size) {
		n, err = w.compressToSpill(&block, src)
	} else {
		n, err = w.compressToMemory(&block, src, t.Size)
	}
	if err != nil {
		return Block{}, fmt.Errorf("compress %s: %w", t.Path, err)
	}
	if n != t.Size {
		discard(block)
		return Block{}, fmt.Errorf("%w: %s was %d bytes, read %d", archivetype.ErrFileChanged, t.Path, t.Size, n)
	}
	block.Checksum = digester.Digest()
	return block, nil
}

// spills reports whether a file of size bytes is compressed to disk.
func (w *worker) spills(size int64) bool {
	limit := w.cfg.MaxInMemorySize
	if limit < 0 {
		return false
	}
	return limit == 0 || size > limit
}

func (w *worker) compressToMemory(b *Block, src io.Reader, size int64) (int64, error) {
	var buf bytes.Buffer
	if b.Codec == archivetype.CodecNone {
		buf.Grow(int(size))
	}
	n, err := w.compressor.Compress(b.Codec, &buf, src)
	if err != nil {
		return n, err
	}
	b.Data = buf.Bytes()
	b.CompressedSize = uint64(buf.Len())
	return n, nil
}

func (w *worker) compressToSpill(b *Block, src io.Reader) (int64, error) {
	f, err := os.CreateTemp(w.cfg.SpillDir, "block-*")
	if err != nil {
		return 0, fmt.Errorf("create spill file: %w", err)
	}
	cw := &countingWriter{w: f}
	n, err := w.compressor.Compress(b.Codec, cw, src)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close spill file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(f.Name()) //nolint:errcheck // best-effort cleanup
		return n, err
	}
	b.Spill = f.Name()
	b.CompressedSize = cw.n
	return n, nil
}

// discard releases the block's spill file, if any.
func discard(b Block) {
	if b.Spill != "" {
		_ = os.Remove(b.Spill) //nolint:errcheck // best-effort cleanup
	}
}
