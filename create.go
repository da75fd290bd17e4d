package s4a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/meigma/s4a/internal/enumerate"
	"github.com/meigma/s4a/internal/index"
	"github.com/meigma/s4a/internal/pipeline"
)

// Result describes a created archive.
type Result struct {
	// Entries is the number of files in the archive.
	Entries int

	// OriginalBytes is the total size of the archived files.
	OriginalBytes uint64

	// BlobSize is the size of the blob file.
	BlobSize uint64

	// IndexPath and BlobPath are the final paths of the archive pair.
	IndexPath string
	BlobPath  string
}

// Create archives inputPath into the pair <outputBase>.s4a.blob and
// <outputBase>.s4a.db.
//
// inputPath is normally a directory; its regular files are stored under
// their slash-separated relative paths in byte-wise path order. Empty
// directories are not preserved, and symlinks or special files fail the
// run with ErrUnsupportedFile. A regular file input yields a valid archive
// with zero entries.
//
// outputBase may carry a ".s4a", ".s4a.db", or ".s4a.blob" suffix, which is
// stripped. Both files are written under temporary names in the output
// directory and committed by rename only after the blob is synced and the
// index is finalized: any previous index is removed, the blob is renamed,
// then the index. On error every temporary file is removed and nothing is
// left at the final names.
//
// The archive bytes are identical for any thread count.
func Create(ctx context.Context, inputPath, outputBase string, opts ...CreateOption) (*Result, error) {
	cfg := defaultCreateConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.threads < 1 {
		return nil, fmt.Errorf("create: thread count must be at least 1, got %d", cfg.threads)
	}
	if err := cfg.codec.Valid(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	if !cfg.algorithm.Available() {
		return nil, fmt.Errorf("create: checksum algorithm %q is not available", cfg.algorithm)
	}

	in, err := enumerate.Resolve(inputPath)
	if err != nil {
		return nil, err
	}

	base := BaseName(outputBase)
	if base == "" {
		return nil, errors.New("create: output path is empty")
	}
	indexPath, blobPath := Paths(base)
	w := &writer{
		cfg:       cfg,
		logger:    cfg.logger,
		dir:       filepath.Dir(base),
		indexPath: indexPath,
		blobPath:  blobPath,
	}
	w.log().Info("creating archive",
		"input", inputPath,
		"output", base,
		"codec", cfg.codec.String(),
		"threads", cfg.threads)

	res, err := w.run(ctx, in)
	if err != nil {
		return nil, err
	}
	w.log().Info("archive created",
		"entries", res.Entries,
		"original_bytes", res.OriginalBytes,
		"blob_size", res.BlobSize)
	return res, nil
}

// writer holds state for one archive creation.
type writer struct {
	cfg    createConfig
	logger *slog.Logger

	dir       string
	indexPath string
	blobPath  string

	tmpBlob  string
	tmpIndex string
	spillDir string
}

// log returns the logger, falling back to a discard logger if nil.
func (w *writer) log() *slog.Logger {
	if w.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return w.logger
}

// reportProgress sends a progress event if a callback is configured.
func (w *writer) reportProgress(stage ProgressStage, filesDone, filesTotal int, bytesDone uint64) {
	if w.cfg.progress == nil {
		return
	}
	w.cfg.progress(ProgressEvent{
		Stage:      stage,
		BytesDone:  bytesDone,
		FilesDone:  filesDone,
		FilesTotal: filesTotal,
	})
}

func (w *writer) run(ctx context.Context, in enumerate.Input) (*Result, error) {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	w.reportProgress(StageEnumerating, 0, 0, 0)
	tree, err := enumerate.Enumerate(ctx, in, w.cfg.maxFiles)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	w.log().Debug("input enumerated", "files", len(tree.Tasks), "bytes", tree.TotalBytes)

	committed := false
	defer func() {
		if !committed {
			w.cleanup()
		}
		if w.spillDir != "" {
			_ = os.RemoveAll(w.spillDir) //nolint:errcheck // best-effort temp cleanup
		}
	}()

	blob, err := w.createTemp(filepath.Base(w.blobPath))
	if err != nil {
		return nil, err
	}
	w.tmpBlob = blob.Name()
	blobOpen := true
	defer func() {
		if blobOpen {
			_ = blob.Close() //nolint:errcheck // reporting the earlier error
		}
	}()

	tmpIndex, err := w.createTemp(filepath.Base(w.indexPath))
	if err != nil {
		return nil, err
	}
	w.tmpIndex = tmpIndex.Name()
	// An empty file is a valid empty SQLite database.
	if err := tmpIndex.Close(); err != nil {
		return nil, fmt.Errorf("create temp index: %w", err)
	}

	builder, err := index.Create(ctx, w.tmpIndex, w.cfg.codec, w.cfg.algorithm)
	if err != nil {
		return nil, err
	}
	defer func() {
		if !committed {
			_ = builder.Abort() //nolint:errcheck // reporting the earlier error
		}
	}()

	w.spillDir, err = os.MkdirTemp(w.dir, ".s4a-spill-*")
	if err != nil {
		return nil, fmt.Errorf("create spill directory: %w", err)
	}

	stats, err := pipeline.Run(ctx, tree, blob, builder, pipeline.Config{
		Workers:         w.cfg.threads,
		Codec:           w.cfg.codec,
		Level:           w.cfg.level,
		Algorithm:       w.cfg.algorithm,
		Skip:            w.cfg.skipCompression,
		MaxInMemorySize: w.cfg.maxInMemorySize,
		SpillDir:        w.spillDir,
		WriteBufferSize: w.cfg.writeBufferSize,
		Logger:          w.logger,
		Progress:        w.cfg.progress,
	})
	if err != nil {
		return nil, err
	}

	w.reportProgress(StageFinalizing, stats.Entries, len(tree.Tasks), stats.OriginalBytes)
	if err := blob.Sync(); err != nil {
		return nil, fmt.Errorf("sync blob: %w", err)
	}
	blobOpen = false
	if err := blob.Close(); err != nil {
		return nil, fmt.Errorf("close blob: %w", err)
	}
	if err := w.checkBlobSize(stats.BlobSize); err != nil {
		return nil, err
	}
	if err := builder.Finalize(len(tree.Tasks), w.cfg.clock()); err != nil {
		return nil, err
	}
	if err := w.commit(); err != nil {
		return nil, err
	}
	committed = true

	return &Result{
		Entries:       stats.Entries,
		OriginalBytes: stats.OriginalBytes,
		BlobSize:      stats.BlobSize,
		IndexPath:     w.indexPath,
		BlobPath:      w.blobPath,
	}, nil
}

// createTemp creates a hidden temporary file next to the final path.
func (w *writer) createTemp(name string) (*os.File, error) {
	f, err := os.CreateTemp(w.dir, "."+name+"-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// checkBlobSize compares the blob on disk with the bytes the pipeline wrote.
func (w *writer) checkBlobSize(want uint64) error {
	info, err := os.Stat(w.tmpBlob)
	if err != nil {
		return fmt.Errorf("stat blob: %w", err)
	}
	if info.Size() < 0 || uint64(info.Size()) != want {
		return fmt.Errorf("%w: blob is %d bytes, index covers %d", ErrLayout, info.Size(), want)
	}
	return nil
}

// commit moves the pair to its final names. The index is renamed last, so
// an index at the final name always describes a complete blob.
func (w *writer) commit() error {
	if err := os.Remove(w.indexPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove previous index: %w", err)
	}
	if err := os.Rename(w.tmpBlob, w.blobPath); err != nil {
		return fmt.Errorf("commit blob: %w", err)
	}
	if err := os.Rename(w.tmpIndex, w.indexPath); err != nil {
		_ = os.Remove(w.blobPath) //nolint:errcheck // the blob is useless without its index
		return fmt.Errorf("commit index: %w", err)
	}
	w.log().Debug("archive committed", "index", w.indexPath, "blob", w.blobPath)
	return nil
}

// cleanup removes the temporary files of a failed run.
func (w *writer) cleanup() {
	paths := []string{w.tmpBlob}
	if w.tmpIndex != "" {
		paths = append(paths, w.tmpIndex, w.tmpIndex+"-journal")
	}
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p) //nolint:errcheck // best-effort temp cleanup
		}
	}
}
