// Command profiler runs s4a operations in a loop under CPU, heap, trace,
// and wall-clock profilers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/meigma/s4a"
	"github.com/meigma/s4a/cache/disk"
	"github.com/meigma/s4a/internal/testutil"
)

const (
	cacheNone = "none"
	sourceMem = "memory"
)

type config struct {
	mode            string
	files           int
	fileSize        int
	dirCount        int
	codec           string
	threads         int
	pattern         string
	source          string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64
	fgProfile       string
	duration        time.Duration
	iterations      int
	pprofAddr       string
	cpuProfile      string
	memProfile      string
	traceFile       string
	cache           string
	prefix          string
	copyWorkers     int
	readRandom      bool
	tempDir         string
	keepTemp        bool
	randomSeed      int64
}

//nolint:unused // sink variables prevent compiler optimizations in profiling
var (
	sinkBytes []byte
	sinkEntry s4a.Entry
	sinkCount int
)

func main() {
	cfg := parseFlags()

	if cfg.pprofAddr != "" {
		go servePprof(cfg.pprofAddr)
	}

	dir, cleanup, err := setupTempDir(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	dataDir := filepath.Join(dir, "data")
	paths, err := generateDataset(dataDir, cfg)
	if err != nil {
		log.Fatal(err) //nolint:gocritic // exitAfterDefer is intentional - cleanup is best-effort
	}

	stopProfiles, err := startProfiles(cfg)
	if err != nil {
		log.Fatal(err)
	}
	stats, err := runProfile(cfg, dataDir, filepath.Join(dir, "archive"), paths)
	stopProfiles()
	if err != nil {
		log.Fatal(err)
	}
	if err := writeHeapProfile(cfg.memProfile); err != nil {
		log.Fatal(err)
	}

	perSec := uint64(float64(stats.bytes) / stats.elapsed.Seconds())
	fmt.Printf("mode=%s ops=%d bytes=%s elapsed=%s throughput=%s/s\n",
		cfg.mode, stats.ops, humanize.IBytes(uint64(stats.bytes)), stats.elapsed, humanize.IBytes(perSec)) //nolint:gosec // byte counts are non-negative
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

// loop runs fn until the iteration count or duration is exhausted.
type loop struct {
	cfg   *config
	start time.Time
	ops   int
	bytes int64
}

func (l *loop) more() bool {
	if l.cfg.iterations > 0 {
		return l.ops < l.cfg.iterations
	}
	return time.Since(l.start) < l.cfg.duration
}

func (l *loop) reset() {
	l.start = time.Now()
	l.ops = 0
	l.bytes = 0
}

func (l *loop) stats() profileStats {
	return profileStats{ops: l.ops, bytes: l.bytes, elapsed: time.Since(l.start)}
}

//nolint:gocognit,gocyclo,gocritic // complexity is inherent to multi-mode profiler dispatch; hugeParam acceptable for profiler
func runProfile(cfg config, dataDir, base string, paths []string) (profileStats, error) {
	codec, err := s4a.ParseCodec(cfg.codec)
	if err != nil {
		return profileStats{}, err
	}
	createOpts := []s4a.CreateOption{
		s4a.CreateWithCodec(codec),
		s4a.CreateWithThreads(cfg.threads),
	}

	l := &loop{cfg: &cfg, start: time.Now()}
	if cfg.mode == "create" {
		for l.more() {
			res, err := s4a.Create(context.Background(), dataDir, base, createOpts...)
			if err != nil {
				return profileStats{}, err
			}
			l.bytes += int64(res.OriginalBytes) //nolint:gosec // generated data is far below MaxInt64
			l.ops++
		}
		return l.stats(), nil
	}

	if _, err := s4a.Create(context.Background(), dataDir, base, createOpts...); err != nil {
		return profileStats{}, err
	}
	a, closeArchive, err := openArchive(cfg, base)
	if err != nil {
		return profileStats{}, err
	}
	defer closeArchive()
	l.reset()

	rng := newRand(cfg.randomSeed)
	switch cfg.mode {
	case "extract":
		for l.more() {
			content, err := a.Extract(pickPath(paths, l.ops, rng, cfg.readRandom))
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
			l.bytes += int64(len(content))
			l.ops++
		}

	case "cached-extract-hit":
		if cfg.cache == cacheNone {
			return profileStats{}, errors.New("cached-extract-hit requires a cache")
		}
		for _, p := range paths {
			if _, err := a.Extract(p); err != nil {
				return profileStats{}, err
			}
		}
		l.reset()
		for l.more() {
			content, err := a.Extract(pickPath(paths, l.ops, rng, cfg.readRandom))
			if err != nil {
				return profileStats{}, err
			}
			sinkBytes = content
			l.bytes += int64(len(content))
			l.ops++
		}

	case "lookup":
		for l.more() {
			e, err := a.Lookup(pickPath(paths, l.ops, rng, cfg.readRandom))
			if err != nil {
				return profileStats{}, err
			}
			sinkEntry = e
			l.ops++
		}

	case "entries-with-prefix":
		for l.more() {
			entries, err := a.EntriesWithPrefix(cfg.prefix)
			if err != nil {
				return profileStats{}, err
			}
			if len(entries) == 0 {
				return profileStats{}, fmt.Errorf("expected at least one entry for prefix %q", cfg.prefix)
			}
			sinkCount = len(entries)
			l.ops++
		}

	case "copydir":
		copyBytes, err := prefixSize(a, cfg.prefix)
		if err != nil {
			return profileStats{}, err
		}
		var opts []s4a.CopyOption
		if cfg.copyWorkers != 0 {
			opts = append(opts, s4a.CopyWithReadConcurrency(cfg.copyWorkers))
		}
		for l.more() {
			destDir := filepath.Join(filepath.Dir(base), "copy", fmt.Sprintf("iter-%d", l.ops))
			if _, err := a.CopyDir(destDir, cfg.prefix, opts...); err != nil {
				return profileStats{}, err
			}
			if err := os.RemoveAll(destDir); err != nil {
				return profileStats{}, err
			}
			l.bytes += copyBytes
			l.ops++
		}

	case "verify":
		for l.more() {
			if err := a.VerifyContents(context.Background()); err != nil {
				return profileStats{}, err
			}
			l.bytes += a.Size()
			l.ops++
		}

	default:
		return profileStats{}, fmt.Errorf("unknown mode: %s", cfg.mode)
	}

	return l.stats(), nil
}

// openArchive opens the archive at base over the configured data source.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func openArchive(cfg config, base string) (*s4a.Archive, func(), error) {
	var opts []s4a.OpenOption
	if cfg.cache != cacheNone {
		cacheDir, err := os.MkdirTemp(filepath.Dir(base), "cache-*")
		if err != nil {
			return nil, nil, err
		}
		c, err := disk.New(cacheDir)
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, s4a.WithCache(c))
	}

	indexPath, blobPath := s4a.Paths(base)
	switch cfg.source {
	case "file":
		a, err := s4a.Open(base, opts...)
		if err != nil {
			return nil, nil, err
		}
		return a, func() { _ = a.Close() }, nil
	case sourceMem, "http":
		data, err := os.ReadFile(blobPath)
		if err != nil {
			return nil, nil, err
		}
		var src s4a.ByteSource = testutil.NewMockByteSource(data)
		stop := func() {}
		if cfg.source == "http" {
			src, stop, err = newHTTPSource(cfg, data)
			if err != nil {
				return nil, nil, err
			}
		}
		a, err := s4a.OpenWithSource(indexPath, src, opts...)
		if err != nil {
			stop()
			return nil, nil, err
		}
		return a, func() { _ = a.Close(); stop() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown source: %s", cfg.source)
	}
}

func parseFlags() config {
	var cfg config
	var dataHTTPBPS string
	flag.StringVar(&cfg.mode, "mode", "extract", "mode: create, extract, cached-extract-hit, lookup, entries-with-prefix, copydir, verify")
	flag.IntVar(&cfg.files, "files", 512, "number of files")
	flag.IntVar(&cfg.fileSize, "file-size", 16<<10, "file size in bytes")
	flag.IntVar(&cfg.dirCount, "dir-count", 16, "number of directories")
	flag.StringVar(&cfg.codec, "compression", "zstd", "codec: none, zstd, lz4, lzma")
	flag.IntVar(&cfg.threads, "threads", runtime.GOMAXPROCS(0), "compression workers")
	flag.StringVar(&cfg.pattern, "pattern", "compressible", "pattern: compressible or random")
	flag.StringVar(&cfg.source, "source", "file", "blob source: file, memory, http (local server)")
	flag.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "per-request latency for the HTTP source")
	flag.StringVar(&dataHTTPBPS, "data-http-bps", "", "bytes/sec throttle for the HTTP source (e.g. 10MiB)")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write fgprof (wall clock) profile to file")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "duration to run (ignored if iterations > 0)")
	flag.IntVar(&cfg.iterations, "iterations", 0, "number of iterations to run")
	flag.StringVar(&cfg.pprofAddr, "pprof-addr", "", "pprof listen address (e.g. :6060)")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write CPU profile to file")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write heap profile to file")
	flag.StringVar(&cfg.traceFile, "trace", "", "write trace to file")
	flag.StringVar(&cfg.cache, "cache", cacheNone, "cache: disk or none")
	flag.StringVar(&cfg.prefix, "prefix", "dir00", "prefix for copydir and entries-with-prefix modes")
	flag.IntVar(&cfg.copyWorkers, "copy-workers", 0, "concurrent range reads for copydir (0 = default)")
	flag.BoolVar(&cfg.readRandom, "read-random", true, "randomize extract path selection")
	flag.StringVar(&cfg.tempDir, "temp-dir", "", "directory to use for dataset")
	flag.BoolVar(&cfg.keepTemp, "keep-temp", false, "keep temp dir after run")
	flag.Int64Var(&cfg.randomSeed, "seed", 1, "random seed")
	flag.Parse()
	if dataHTTPBPS != "" {
		bps, err := humanize.ParseBytes(dataHTTPBPS)
		if err != nil || bps == 0 {
			log.Fatalf("data-http-bps: invalid value %q", dataHTTPBPS)
		}
		cfg.dataHTTPBPS = int64(bps) //nolint:gosec // throttle rates are far below MaxInt64
	}
	return cfg
}

func pickPath(paths []string, idx int, rng *rand.Rand, random bool) string {
	if random {
		return paths[rng.IntN(len(paths))]
	}
	return paths[idx%len(paths)]
}

func prefixSize(a *s4a.Archive, prefix string) (int64, error) {
	entries, err := a.EntriesWithPrefix(prefix)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += int64(e.OriginalSize) //nolint:gosec // generated data is far below MaxInt64
	}
	return total, nil
}
