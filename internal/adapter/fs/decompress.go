package fs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// OpenDecompressed opens path for sequential reading, transparently
// decompressing .zst, .gz and .lz4 files.
func OpenDecompressed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd":
		dec, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return &stackedCloser{Reader: dec, closers: []func() error{func() error { dec.Close(); return nil }, f.Close}}, nil
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return &stackedCloser{Reader: gz, closers: []func() error{gz.Close, f.Close}}, nil
	case ".lz4":
		return &stackedCloser{Reader: lz4.NewReader(f), closers: []func() error{f.Close}}, nil
	default:
		return f, nil
	}
}

// TrimCompressionExt strips a recognised compression suffix from path, so
// "relations.jsonl.zst" yields "relations.jsonl".
func TrimCompressionExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".zst", ".zstd", ".gz", ".lz4":
		return strings.TrimSuffix(path, filepath.Ext(path))
	}
	return path
}

type stackedCloser struct {
	io.Reader
	closers []func() error
}

func (s *stackedCloser) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
