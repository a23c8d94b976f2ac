// Package hashindex implements an in-memory map from key hashes to the byte
// offsets of corpus records sharing that hash. Record payloads are never
// retained; collisions are kept as ordered buckets and resolved by the caller.
package hashindex

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"kge/internal/adapter/analyzer"
	"kge/internal/domain"
	"kge/internal/port"
)

const (
	readBufferSize   = 1 << 16
	progressInterval = 1 << 20
)

// Index is an offset-bucket index. It is safe for concurrent readers once
// built; Add must not be called concurrently with Lookup.
type Index struct {
	hasher analyzer.Hasher

	// Most buckets hold a single offset, so the first one is stored inline and
	// only collisions pay for a slice.
	primary  map[uint64]int64
	overflow map[uint64][]int64

	stats domain.IndexStats
}

// BuildOptions controls how a corpus is scanned.
type BuildOptions struct {
	// Delimiter separates the key from the embedding payload. Defaults to '\t'.
	Delimiter byte

	// Progress, when set, receives the number of bytes scanned so far.
	Progress func(scanned int64)
}

// New returns an empty index using hasher.
func New(hasher analyzer.Hasher) *Index {
	return &Index{
		hasher:   hasher,
		primary:  make(map[uint64]int64),
		overflow: make(map[uint64][]int64),
	}
}

// BuildFile scans the corpus at path and indexes every record.
func BuildFile(path string, hasher analyzer.Hasher, opts BuildOptions) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open corpus: %w", err)
	}
	defer f.Close()

	return Build(f, hasher, opts)
}

// Build performs a single streaming pass over r. Each non-empty line whose key
// field is terminated by the delimiter contributes its starting offset to the
// bucket of hash(key). Other lines are counted as skipped.
func Build(r io.Reader, hasher analyzer.Hasher, opts BuildOptions) (*Index, error) {
	delim := opts.Delimiter
	if delim == 0 {
		delim = '\t'
	}

	idx := New(hasher)
	br := bufio.NewReaderSize(r, readBufferSize)

	var (
		offset   int64
		reported int64
		key      []byte
	)

	for {
		start := offset
		key = key[:0]
		lineLen := 0
		hasDelim := false

		var err error
		for {
			var chunk []byte
			chunk, err = br.ReadSlice('\n')
			lineLen += len(chunk)
			if !hasDelim {
				if i := bytes.IndexByte(chunk, delim); i >= 0 {
					key = append(key, chunk[:i]...)
					hasDelim = true
				} else {
					key = append(key, chunk...)
				}
			}
			if err != bufio.ErrBufferFull {
				break
			}
		}
		offset += int64(lineLen)

		switch {
		case lineLen == 0:
		case hasDelim && len(key) > 0:
			idx.Add(hasher.Hash(string(key)), start)
		case hasDelim || !isBlank(key):
			idx.stats.SkippedLines++
		}

		if opts.Progress != nil && offset-reported >= progressInterval {
			opts.Progress(offset)
			reported = offset
		}

		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to scan corpus at offset %d: %w", offset, err)
		}
	}

	idx.stats.BytesScanned = offset
	if opts.Progress != nil {
		opts.Progress(offset)
	}

	return idx, nil
}

// Load rebuilds an index from a persisted store.
func Load(store port.IndexStore, hasher analyzer.Hasher) (*Index, error) {
	idx := New(hasher)
	err := store.LoadBuckets(func(hash uint64, offsets []int64) error {
		for _, off := range offsets {
			idx.Add(hash, off)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load index buckets: %w", err)
	}
	return idx, nil
}

// Add appends offset to the bucket for hash.
func (idx *Index) Add(hash uint64, offset int64) {
	idx.stats.Records++

	if _, ok := idx.primary[hash]; !ok {
		idx.primary[hash] = offset
		idx.stats.Buckets++
		if idx.stats.MaxBucket == 0 {
			idx.stats.MaxBucket = 1
		}
		return
	}

	rest := append(idx.overflow[hash], offset)
	idx.overflow[hash] = rest
	if len(rest) == 1 {
		idx.stats.CollidedBuckets++
	}
	if size := len(rest) + 1; size > idx.stats.MaxBucket {
		idx.stats.MaxBucket = size
	}
}

// Lookup returns the offsets sharing hash, in scan order. It returns nil when
// the hash was never observed.
func (idx *Index) Lookup(hash uint64) []int64 {
	first, ok := idx.primary[hash]
	if !ok {
		return nil
	}
	rest := idx.overflow[hash]
	out := make([]int64, 0, len(rest)+1)
	out = append(out, first)
	return append(out, rest...)
}

// Candidates returns the offsets that may hold key.
func (idx *Index) Candidates(key string) []int64 {
	return idx.Lookup(idx.hasher.Hash(key))
}

// ForEach calls fn once per bucket. Iteration order is unspecified.
func (idx *Index) ForEach(fn func(hash uint64, offsets []int64) error) error {
	for hash := range idx.primary {
		if err := fn(hash, idx.Lookup(hash)); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of indexed records.
func (idx *Index) Len() int {
	return idx.stats.Records
}

// Hasher returns the hash function the index was built with.
func (idx *Index) Hasher() analyzer.Hasher {
	return idx.hasher
}

// Stats returns build statistics.
func (idx *Index) Stats() domain.IndexStats {
	return idx.stats
}

func isBlank(b []byte) bool {
	return len(bytes.TrimRight(b, "\r\n")) == 0
}
