package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/s4a"
	"github.com/meigma/s4a/internal/testutil"
)

// runCLI runs the command in-process and returns its exit code and output.
func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func compressSample(t *testing.T, extra ...string) (string, string) {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, testutil.SampleTree())
	base := filepath.Join(t.TempDir(), "site")
	args := append([]string{"compress", "--input-path", src, "--output-path", base}, extra...)
	code, _, stderr := runCLI(t, args...)
	require.Equal(t, 0, code, stderr)
	return src, base
}

func TestUsage(t *testing.T) {
	t.Parallel()

	code, _, stderr := runCLI(t)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "usage: s4a")

	code, stdout, _ := runCLI(t, "help")
	assert.Equal(t, 0, code)
	for name := range commands {
		assert.Contains(t, stdout, name)
	}

	code, _, stderr = runCLI(t, "explode")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, `unknown command "explode"`)

	code, _, _ = runCLI(t, "compress", "-h")
	assert.Equal(t, 0, code)
}

func TestCompressDecompress(t *testing.T) {
	t.Parallel()

	for _, codec := range []string{"zstd", "lz4", "lzma", "none"} {
		t.Run(codec, func(t *testing.T) {
			t.Parallel()

			src, base := compressSample(t, "--compression", codec, "--thread-count", "3", "--max-in-mem-file-size", "4KiB")
			assert.FileExists(t, base+s4a.IndexSuffix)
			assert.FileExists(t, base+s4a.BlobSuffix)

			dest := t.TempDir()
			code, _, stderr := runCLI(t, "decompress", "--input-path", base, "--output-path", dest)
			require.Equal(t, 0, code, stderr)

			for name, want := range testutil.SampleTree() {
				if strings.HasSuffix(name, "/") {
					continue
				}
				got, err := os.ReadFile(filepath.Join(dest, filepath.FromSlash(name)))
				require.NoError(t, err, name)
				assert.Equal(t, want, got, name)
				srcData, err := os.ReadFile(filepath.Join(src, filepath.FromSlash(name)))
				require.NoError(t, err)
				assert.Equal(t, srcData, got)
			}
		})
	}
}

func TestCompress_Errors(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, map[string][]byte{"a.txt": []byte("a")})
	out := filepath.Join(t.TempDir(), "out")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"missing input flag", []string{"--output-path", out}, "--input-path is required"},
		{"missing output flag", []string{"--input-path", src}, "--output-path is required"},
		{"missing input", []string{"--input-path", filepath.Join(src, "nope"), "--output-path", out}, "input"},
		{"bad codec", []string{"--input-path", src, "--output-path", out, "--compression", "brotli"}, "unknown codec"},
		{"zero threads", []string{"--input-path", src, "--output-path", out, "--thread-count", "0"}, "thread"},
		{"bad size", []string{"--input-path", src, "--output-path", out, "--max-in-mem-file-size", "lots"}, "max-in-mem-file-size"},
		{"bad log level", []string{"--input-path", src, "--output-path", out, "--log-level", "loud"}, "--log-level"},
		{"bad log format", []string{"--input-path", src, "--output-path", out, "--log-format", "xml"}, "--log-format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, _, stderr := runCLI(t, append([]string{"compress"}, tt.args...)...)
			assert.Equal(t, 1, code)
			assert.Contains(t, stderr, tt.wantErr)
		})
	}
	assert.NoFileExists(t, out+s4a.IndexSuffix)
}

func TestCompress_SingleFile(t *testing.T) {
	t.Parallel()

	input := filepath.Join(t.TempDir(), "one.txt")
	require.NoError(t, os.WriteFile(input, []byte("one"), 0o644))
	base := filepath.Join(t.TempDir(), "single")

	code, _, stderr := runCLI(t, "compress", "--input-path", input, "--output-path", base+s4a.BlobSuffix)
	require.Equal(t, 0, code, stderr)

	code, stdout, _ := runCLI(t, "ls", "--input-path", base)
	require.Equal(t, 0, code)
	assert.Empty(t, stdout)

	code, stdout, _ = runCLI(t, "verify", "--input-path", base)
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "ok: 0 entries")
}

func TestDecompress_Pattern(t *testing.T) {
	t.Parallel()

	_, base := compressSample(t)
	dest := t.TempDir()

	code, _, stderr := runCLI(t, "decompress", "--input-path", base, "--output-path", dest, "--pattern", `\.go$`, "--log-level", "debug")
	require.Equal(t, 0, code, stderr)
	assert.FileExists(t, filepath.Join(dest, "src", "main.go"))
	assert.FileExists(t, filepath.Join(dest, "src", "lib", "util.go"))
	assert.NoFileExists(t, filepath.Join(dest, "README.md"))

	code, _, stderr = runCLI(t, "decompress", "--input-path", base, "--output-path", dest, "--pattern", `(`)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid pattern")
}

func TestCatAndList(t *testing.T) {
	t.Parallel()

	_, base := compressSample(t)

	code, stdout, stderr := runCLI(t, "cat", "--input-path", base+s4a.IndexSuffix, "a.txt", "/b/c.txt")
	require.Equal(t, 0, code, stderr)
	tree := testutil.SampleTree()
	assert.Equal(t, string(tree["a.txt"])+string(tree["b/c.txt"]), stdout)

	code, _, stderr = runCLI(t, "cat", "--input-path", base, "missing.txt")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "file does not exist")

	code, _, stderr = runCLI(t, "cat", "--input-path", base)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no paths given")

	code, stdout, _ = runCLI(t, "ls", "--input-path", base)
	require.Equal(t, 0, code)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Equal(t, []string{
		"README.md",
		"a.txt",
		"a/b.txt",
		"b/c.txt",
		"coverage/empty.txt",
		"coverage/index.html",
		"src/lib/util.go",
		"src/main.go",
	}, lines)

	code, stdout, _ = runCLI(t, "ls", "--input-path", base, "--long")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "ZSTD")
	assert.Contains(t, stdout, "sha256:")
	assert.Contains(t, stdout, "coverage/index.html")
}

func TestVerify(t *testing.T) {
	t.Parallel()

	_, base := compressSample(t, "--compression", "none")

	code, stdout, stderr := runCLI(t, "verify", "--input-path", base, "--deep")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "ok: 8 entries")

	blob, err := os.ReadFile(base + s4a.BlobSuffix)
	require.NoError(t, err)
	blob[0] ^= 0xff
	require.NoError(t, os.WriteFile(base+s4a.BlobSuffix, blob, 0o644))

	code, _, stderr = runCLI(t, "verify", "--input-path", base)
	assert.Equal(t, 0, code, "layout is unchanged: %s", stderr)

	code, _, stderr = runCLI(t, "verify", "--input-path", base, "--deep", "--log-format", "json")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "README.md")
	assert.Contains(t, stderr, `"level":"WARN"`)
}

func TestMuxDemux(t *testing.T) {
	t.Parallel()

	_, base := compressSample(t)

	code, _, stderr := runCLI(t, "mux", "--input-path", base+s4a.IndexSuffix)
	require.Equal(t, 0, code, stderr)
	muxPath := base + s4a.MuxSuffix
	require.FileExists(t, muxPath)

	code, stdout, _ := runCLI(t, "cat", "--input-path", muxPath, "a/b.txt")
	require.Equal(t, 0, code)
	assert.Equal(t, string(testutil.SampleTree()["a/b.txt"]), stdout)

	outBase := filepath.Join(t.TempDir(), "restored")
	code, _, stderr = runCLI(t, "demux", "--input-path", muxPath, "--output-path", outBase)
	require.Equal(t, 0, code, stderr)

	want, err := os.ReadFile(base + s4a.BlobSuffix)
	require.NoError(t, err)
	got, err := os.ReadFile(outBase + s4a.BlobSuffix)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	code, _, stderr = runCLI(t, "verify", "--input-path", outBase, "--deep")
	require.Equal(t, 0, code, stderr)
}

func TestCompress_Mux(t *testing.T) {
	t.Parallel()

	_, base := compressSample(t, "--mux")

	assert.FileExists(t, base+s4a.MuxSuffix)
	assert.NoFileExists(t, base+s4a.IndexSuffix)
	assert.NoFileExists(t, base+s4a.BlobSuffix)

	code, stdout, stderr := runCLI(t, "ls", "--input-path", base+s4a.MuxSuffix)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "src/main.go")
}

func TestCompress_MaxFiles(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, testutil.SampleTree())
	base := filepath.Join(t.TempDir(), "site")

	code, _, stderr := runCLI(t, "compress", "--input-path", src, "--output-path", base, "--max-files", "2")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "too many files")
	assert.NoFileExists(t, base+s4a.IndexSuffix)

	code, _, stderr = runCLI(t, "compress", "--input-path", src, "--output-path", base, "--max-files", "8")
	require.Equal(t, 0, code, stderr)
}

func TestMaxFileSize(t *testing.T) {
	t.Parallel()

	_, base := compressSample(t)

	code, stdout, stderr := runCLI(t, "cat", "--input-path", base, "--max-file-size", "1KiB", "a.txt")
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, "hello", stdout)

	limited := [][]string{
		{"cat", "--input-path", base, "--max-file-size", "1KiB", "coverage/index.html"},
		{"decompress", "--input-path", base, "--output-path", t.TempDir(), "--max-file-size", "1KiB"},
		{"verify", "--input-path", base, "--deep", "--max-file-size", "1KiB"},
	}
	for _, args := range limited {
		code, _, stderr := runCLI(t, args...)
		assert.Equal(t, 1, code, args[0])
		assert.Contains(t, stderr, "exceeds size limit", args[0])
		assert.NotContains(t, stderr, "checksum", args[0])
	}

	code, _, stderr = runCLI(t, "verify", "--input-path", base, "--deep")
	require.Equal(t, 0, code, stderr)
}
