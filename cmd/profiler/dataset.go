package main

import (
	"bytes"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
)

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0)) //nolint:gosec // reproducible benchmark data
}

// setupTempDir returns the dataset directory and a cleanup function, which
// leaves user-supplied and -keep-temp directories in place.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func setupTempDir(cfg config) (string, func(), error) {
	if cfg.tempDir != "" {
		//nolint:gosec // 0o755 is intentional for profiler temp dirs
		return cfg.tempDir, func() {}, os.MkdirAll(cfg.tempDir, 0o755)
	}
	dir, err := os.MkdirTemp("", "s4a-profiler-*")
	if err != nil {
		return "", nil, err
	}
	return dir, func() {
		if cfg.keepTemp {
			log.Printf("kept %s", dir)
			return
		}
		_ = os.RemoveAll(dir)
	}, nil
}

// generateDataset writes cfg.files files spread across cfg.dirCount
// directories and returns their archive paths. The "random" pattern gives
// incompressible content; anything else repeats one letter per file.
//
//nolint:gocritic // hugeParam acceptable for config struct in CLI tool
func generateDataset(dir string, cfg config) ([]string, error) {
	dirs := max(cfg.dirCount, 1)
	rng := newRand(cfg.randomSeed)
	paths := make([]string, 0, cfg.files)
	for i := range cfg.files {
		rel := fmt.Sprintf("dir%02d/file%05d.dat", i%dirs, i)
		full := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil { //nolint:gosec // 0o755 is intentional for profiler
			return nil, err
		}

		var content []byte
		if cfg.pattern == "random" {
			content = make([]byte, cfg.fileSize)
			for j := range content {
				content[j] = byte(rng.Uint32())
			}
		} else {
			content = bytes.Repeat([]byte{byte('a' + i%26)}, cfg.fileSize)
			if len(content) > 0 {
				content[0] = byte(i)
			}
		}

		if err := os.WriteFile(full, content, 0o644); err != nil { //nolint:gosec // 0o644 is intentional for profiler test files
			return nil, err
		}
		paths = append(paths, rel)
	}
	return paths, nil
}
