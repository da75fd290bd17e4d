package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/s4a"
)

func runCompress(ctx context.Context, e *env, args []string) error {
	fs, lf := newFlagSet(e, "compress")
	var (
		input, output, codecName string
		threads, level, maxFiles int
		mux                      bool
		maxInMem                 = byteSize(s4a.DefaultMaxInMemorySize)
		writeBuf                 = byteSize(s4a.DefaultWriteBufferSize)
	)
	fs.StringVar(&input, "input-path", "", "directory (or single file) to archive")
	fs.StringVar(&output, "output-path", "", "archive base name; .s4a, .s4a.db, and .s4a.blob suffixes are stripped")
	fs.IntVar(&threads, "thread-count", 1, "number of compression workers")
	fs.StringVar(&codecName, "compression", "zstd", "codec: zstd, lz4, lzma, or none")
	fs.IntVar(&level, "level", 0, "codec compression level (0 = codec default)")
	fs.IntVar(&maxFiles, "max-files", 0, "fail if the input holds more files than this (0 = no limit)")
	fs.BoolVar(&mux, "mux", false, "write a single .s4a file instead of an index and blob pair")
	fs.Var(&maxInMem, "max-in-mem-file-size", "compress files larger than this through a temp file (e.g. 8MiB)")
	fs.Var(&writeBuf, "write-buffer-size", "blob write buffer size (e.g. 32MiB)")
	if err := parse(e, fs, lf, args); err != nil {
		return err
	}
	if err := requireFlag("input-path", input); err != nil {
		return err
	}
	if err := requireFlag("output-path", output); err != nil {
		return err
	}
	codec, err := s4a.ParseCodec(codecName)
	if err != nil {
		return err
	}
	if writeBuf > math.MaxInt32 {
		return fmt.Errorf("--write-buffer-size %s is too large", humanize.IBytes(uint64(writeBuf)))
	}

	start := time.Now()
	res, err := s4a.Create(ctx, input, output,
		s4a.CreateWithThreads(threads),
		s4a.CreateWithCodec(codec),
		s4a.CreateWithLevel(level),
		s4a.CreateWithMaxFiles(maxFiles),
		s4a.CreateWithMaxInMemorySize(int64(maxInMem)),
		s4a.CreateWithWriteBufferSize(int(writeBuf)),
		s4a.CreateWithLogger(e.logger),
	)
	if err != nil {
		return err
	}
	e.logger.Info("archive created",
		"entries", res.Entries,
		"original", humanize.IBytes(res.OriginalBytes),
		"blob", humanize.IBytes(res.BlobSize),
		"elapsed", time.Since(start).Round(time.Millisecond))

	if !mux {
		return nil
	}
	muxPath := s4a.BaseName(output) + s4a.MuxSuffix
	if err := s4a.Mux(res.IndexPath, res.BlobPath, muxPath); err != nil {
		return err
	}
	e.logger.Info("archive muxed", "path", muxPath)
	return errors.Join(os.Remove(res.IndexPath), os.Remove(res.BlobPath))
}

func runDecompress(_ context.Context, e *env, args []string) error {
	fs, lf := newFlagSet(e, "decompress")
	var (
		input, output, pattern string
		threads                int
		overwrite              bool
		maxSize                byteSize
	)
	fs.StringVar(&input, "input-path", "", "archive base name, .s4a.db, .s4a.blob, or .s4a file")
	fs.StringVar(&output, "output-path", "", "destination directory")
	fs.StringVar(&pattern, "pattern", "", "extract only paths matching this regular expression")
	fs.IntVar(&threads, "thread-count", 4, "number of concurrent range reads")
	fs.BoolVar(&overwrite, "overwrite", false, "replace existing files")
	maxFileSizeFlag(fs, &maxSize)
	if err := parse(e, fs, lf, args); err != nil {
		return err
	}
	if err := requireFlag("input-path", input); err != nil {
		return err
	}
	if err := requireFlag("output-path", output); err != nil {
		return err
	}

	a, err := openArchive(e, input, maxSize)
	if err != nil {
		return err
	}
	defer a.Close()

	opts := []s4a.CopyOption{
		s4a.CopyWithReadConcurrency(threads),
		s4a.CopyWithOverwrite(overwrite),
	}
	var stats s4a.CopyStats
	if pattern != "" {
		stats, err = a.CopyMatching(output, pattern, opts...)
	} else {
		stats, err = a.CopyDir(output, ".", opts...)
	}
	if err != nil {
		return err
	}
	e.logger.Info("extracted",
		"files", stats.Processed,
		"skipped", stats.Skipped,
		"bytes", humanize.IBytes(stats.TotalBytes))
	return nil
}

func runCat(_ context.Context, e *env, args []string) error {
	fs, lf := newFlagSet(e, "cat")
	var (
		input   string
		maxSize byteSize
	)
	fs.StringVar(&input, "input-path", "", "archive to read")
	maxFileSizeFlag(fs, &maxSize)
	if err := parse(e, fs, lf, args); err != nil {
		return err
	}
	if err := requireFlag("input-path", input); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("no paths given")
	}

	a, err := openArchive(e, input, maxSize)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, name := range fs.Args() {
		content, err := a.Extract(s4a.NormalizePath(name))
		if err != nil {
			return err
		}
		if _, err := e.stdout.Write(content); err != nil {
			return err
		}
	}
	return nil
}

func runList(_ context.Context, e *env, args []string) error {
	fs, lf := newFlagSet(e, "ls")
	var (
		input string
		long  bool
	)
	fs.StringVar(&input, "input-path", "", "archive to list")
	fs.BoolVar(&long, "long", false, "show codec, sizes, and checksum")
	if err := parse(e, fs, lf, args); err != nil {
		return err
	}
	if err := requireFlag("input-path", input); err != nil {
		return err
	}

	a, err := s4a.Open(input, s4a.WithLogger(e.logger))
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.EntriesWithPrefix("")
	if err != nil {
		return err
	}
	if !long {
		for _, entry := range entries {
			fmt.Fprintln(e.stdout, entry.Path)
		}
		return nil
	}

	tw := tabwriter.NewWriter(e.stdout, 0, 0, 2, ' ', 0)
	for _, entry := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			entry.Codec,
			strconv.FormatUint(entry.OriginalSize, 10),
			strconv.FormatUint(entry.CompressedSize, 10),
			entry.Checksum,
			entry.Path)
	}
	return tw.Flush()
}

func runVerify(ctx context.Context, e *env, args []string) error {
	fs, lf := newFlagSet(e, "verify")
	var (
		input   string
		deep    bool
		maxSize byteSize
	)
	fs.StringVar(&input, "input-path", "", "archive to verify")
	fs.BoolVar(&deep, "deep", false, "also extract and checksum every entry")
	maxFileSizeFlag(fs, &maxSize)
	if err := parse(e, fs, lf, args); err != nil {
		return err
	}
	if err := requireFlag("input-path", input); err != nil {
		return err
	}

	a, err := openArchive(e, input, maxSize)
	if err != nil {
		return err
	}
	defer a.Close()

	if deep {
		err = a.VerifyContents(ctx)
	} else {
		err = a.Verify()
	}
	if err != nil {
		return err
	}
	meta := a.Meta()
	fmt.Fprintf(e.stdout, "ok: %d entries, %s blob, created %s\n",
		meta.EntryCount, humanize.IBytes(uint64(a.Size())), meta.CreatedAt.UTC().Format(time.RFC3339))
	return nil
}

func runMux(_ context.Context, e *env, args []string) error {
	fs, lf := newFlagSet(e, "mux")
	var input, output string
	fs.StringVar(&input, "input-path", "", "archive base name or .s4a.db file")
	fs.StringVar(&output, "output-path", "", "output .s4a file (default <base>.s4a)")
	if err := parse(e, fs, lf, args); err != nil {
		return err
	}
	if err := requireFlag("input-path", input); err != nil {
		return err
	}
	if output == "" {
		output = s4a.BaseName(input) + s4a.MuxSuffix
	}

	indexPath, blobPath := s4a.Paths(input)
	if err := s4a.Mux(indexPath, blobPath, output); err != nil {
		return err
	}
	e.logger.Info("archive muxed", "path", output)
	return nil
}

func runDemux(_ context.Context, e *env, args []string) error {
	fs, lf := newFlagSet(e, "demux")
	var input, output string
	fs.StringVar(&input, "input-path", "", ".s4a file to split")
	fs.StringVar(&output, "output-path", "", "output base name (default: input without .s4a)")
	if err := parse(e, fs, lf, args); err != nil {
		return err
	}
	if err := requireFlag("input-path", input); err != nil {
		return err
	}
	if output == "" {
		output = s4a.BaseName(input)
	}

	if err := s4a.Demux(input, output); err != nil {
		return err
	}
	indexPath, blobPath := s4a.Paths(output)
	e.logger.Info("archive demuxed", "index", indexPath, "blob", blobPath)
	return nil
}

func maxFileSizeFlag(fs *flag.FlagSet, v *byteSize) {
	fs.Var(v, "max-file-size", "refuse to extract entries larger than this, e.g. 1GiB (0 = no limit)")
}

func openArchive(e *env, input string, maxFileSize byteSize) (*s4a.Archive, error) {
	return s4a.Open(input,
		s4a.WithLogger(e.logger),
		s4a.WithMaxFileSize(uint64(maxFileSize)), //nolint:gosec // Set rejects negative sizes
	)
}

// byteSize is a flag.Value accepting sizes such as "8MiB" or "1048576".
type byteSize int64

func (b *byteSize) String() string { return humanize.IBytes(uint64(*b)) }

func (b *byteSize) Set(s string) error {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return err
	}
	if n > math.MaxInt64 {
		return fmt.Errorf("size %s overflows", s)
	}
	*b = byteSize(n)
	return nil
}
