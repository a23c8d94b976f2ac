// Package entity resolves entity URIs against a disk-resident corpus through
// an offset-bucket index, verifying every candidate record on disk.
package entity

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"kge/internal/adapter/analyzer"
	"kge/internal/adapter/fs"
	"kge/internal/adapter/hashindex"
	"kge/internal/domain"
)

// Options configures an entity Store.
type Options struct {
	// Delimiter separates the key field from the payload. Defaults to '\t'.
	Delimiter byte

	Reader fs.ReaderOptions
}

// Store is immutable after Open and safe for concurrent use.
type Store struct {
	path   string
	index  *hashindex.Index
	reader *fs.RecordReader
	delim  byte
	logger *slog.Logger
}

// Open wraps an index already built (or loaded) for the corpus at path.
func Open(path string, index *hashindex.Index, opts Options, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reader, err := fs.OpenReader(path, opts.Reader)
	if err != nil {
		return nil, domain.NewStartupError("entity store", path, err)
	}

	delim := opts.Delimiter
	if delim == 0 {
		delim = '\t'
	}

	return &Store{
		path:   path,
		index:  index,
		reader: reader,
		delim:  delim,
		logger: logger.With("component", "entity_store"),
	}, nil
}

// Load scans the corpus at path to build its index and opens it for lookups.
func Load(path string, hasher analyzer.Hasher, opts Options, logger *slog.Logger) (*Store, error) {
	idx, err := hashindex.BuildFile(path, hasher, hashindex.BuildOptions{Delimiter: opts.Delimiter})
	if err != nil {
		return nil, domain.NewStartupError("entity store", path, err)
	}
	return Open(path, idx, opts, logger)
}

// Resolve normalizes rawURI and returns the corpus record whose key field is
// exactly the normalized key. Candidates are checked in bucket order and the
// first exact match wins. A missing key is a Miss result, not an error; the
// error is reserved for failed reads.
func (s *Store) Resolve(rawURI string) (domain.EntityResult, error) {
	key := analyzer.NormalizeKey(rawURI)
	if key == "" {
		return domain.EntityMiss(key), nil
	}

	for _, off := range s.index.Candidates(key) {
		line, err := s.reader.ReadRecord(off)
		if err != nil {
			return domain.EntityMiss(key), fmt.Errorf("failed to read candidate for %q: %w", key, err)
		}
		if s.matches(line, key) {
			return domain.EntityResult{Key: key, Found: true, Record: string(line)}, nil
		}
		s.logger.Debug("hash collision", "key", key, "offset", off)
	}

	return domain.EntityMiss(key), nil
}

// ResolveEntity implements port.EntityResolver.
func (s *Store) ResolveEntity(_ context.Context, rawURI string) (domain.EntityResult, error) {
	return s.Resolve(rawURI)
}

func (s *Store) matches(line []byte, key string) bool {
	i := bytes.IndexByte(line, s.delim)
	if i < 0 {
		return false
	}
	return string(line[:i]) == key
}

// Path returns the corpus file the store reads from.
func (s *Store) Path() string {
	return s.path
}

// Stats returns statistics of the underlying index.
func (s *Store) Stats() domain.IndexStats {
	return s.index.Stats()
}

// Close releases the corpus file.
func (s *Store) Close() error {
	return s.reader.Close()
}
