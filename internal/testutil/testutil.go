// Package testutil holds shared test helpers.
package testutil

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// MockByteSource implements a simple in-memory byte source for tests.
type MockByteSource struct {
	data     []byte
	sourceID string
}

// NewMockByteSource returns a byte source backed by the provided data.
func NewMockByteSource(data []byte) *MockByteSource {
	sum := sha256.Sum256(data)
	return &MockByteSource{
		data:     data,
		sourceID: "mock:" + hex.EncodeToString(sum[:]),
	}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *MockByteSource) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *MockByteSource) Size() int64 {
	return int64(len(m.data))
}

// SourceID returns a stable identifier for the source data.
func (m *MockByteSource) SourceID() string {
	return m.sourceID
}

// Bytes returns the backing slice for tests that need to mutate data.
func (m *MockByteSource) Bytes() []byte {
	return m.data
}

// WriteTree materializes files under dir. Keys are slash paths; a key
// ending in "/" creates an empty directory.
func WriteTree(t testing.TB, dir string, files map[string][]byte) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if name[len(name)-1] == '/' {
			if err := os.MkdirAll(path, 0o755); err != nil {
				t.Fatalf("mkdir %s: %v", name, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", name, err)
		}
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

// SampleTree returns a small tree with nested directories and mixed content.
func SampleTree() map[string][]byte {
	big := make([]byte, 0, 64<<10)
	for i := 0; len(big) < 64<<10; i++ {
		big = append(big, []byte("line of coverage report data\n")...)
		big = append(big, byte('a'+i%26))
	}
	return map[string][]byte{
		"README.md":             []byte("# sample\n"),
		"a.txt":                 []byte("hello"),
		"a/b.txt":               []byte("nested"),
		"b/c.txt":               []byte("xyz"),
		"src/main.go":           []byte("package main\n\nfunc main() {}\n"),
		"src/lib/util.go":       []byte("package lib\n"),
		"coverage/index.html":   big,
		"coverage/empty.txt":    {},
		"coverage/lcov-report/": nil,
	}
}
