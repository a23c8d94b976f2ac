package usecase

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"kge/internal/adapter/analyzer"
	"kge/internal/adapter/fs"
	"kge/internal/adapter/hashindex"
	"kge/internal/adapter/store"
	"kge/internal/domain"
)

// IndexUseCase builds, persists and reopens the offset index of an entity corpus.
type IndexUseCase struct {
	hasher    analyzer.Hasher
	delimiter byte
	logger    *slog.Logger
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(hasher analyzer.Hasher, delimiter byte, logger *slog.Logger) *IndexUseCase {
	if logger == nil {
		logger = slog.Default()
	}
	return &IndexUseCase{
		hasher:    hasher,
		delimiter: delimiter,
		logger:    logger.With("component", "index"),
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	Index    *hashindex.Index
	Stats    domain.IndexStats
	Reused   bool   // loaded from the companion file instead of scanning
	Reason   string // why a stored index was not reused
	Duration time.Duration
}

// Fingerprint identifies corpus together with the indexing parameters.
func (u *IndexUseCase) Fingerprint(corpus fs.FileInfo) store.CorpusFingerprint {
	return store.CorpusFingerprint{
		Path:      corpus.Path,
		Size:      corpus.Size,
		ModTime:   corpus.ModTime,
		Hasher:    u.hasher.Name(),
		Delimiter: string(u.delimiter),
	}
}

// Build scans corpus into a fresh in-memory index.
func (u *IndexUseCase) Build(corpus fs.FileInfo, progress func(scanned int64)) (*IndexResult, error) {
	start := time.Now()
	idx, err := hashindex.BuildFile(corpus.Path, u.hasher, hashindex.BuildOptions{
		Delimiter: u.delimiter,
		Progress:  progress,
	})
	if err != nil {
		return nil, err
	}

	result := &IndexResult{Index: idx, Stats: idx.Stats(), Duration: time.Since(start)}
	u.logStats("offset index built", corpus.Path, result)
	return result, nil
}

// Persist writes idx to the companion file at dbPath, replacing any previous index.
func (u *IndexUseCase) Persist(dbPath string, corpus fs.FileInfo, idx *hashindex.Index) error {
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	return u.persistTo(st, corpus, idx)
}

func (u *IndexUseCase) persistTo(st *store.BoltStore, corpus fs.FileInfo, idx *hashindex.Index) error {
	if err := st.Clear(); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	if err := st.SaveBuckets(idx); err != nil {
		return err
	}
	if err := st.UpdateStats(idx.Stats()); err != nil {
		return fmt.Errorf("failed to store index stats: %w", err)
	}
	if err := st.Commit(u.Fingerprint(corpus)); err != nil {
		return fmt.Errorf("failed to commit index: %w", err)
	}
	return nil
}

// Open returns the index for corpus. When dbPath is set, a stored index with a
// matching fingerprint is reused; otherwise the corpus is scanned and the
// result saved to dbPath for the next start.
func (u *IndexUseCase) Open(corpus fs.FileInfo, dbPath string) (*IndexResult, error) {
	if dbPath == "" {
		return u.Build(corpus, nil)
	}

	if err := ensureDir(dbPath); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	st, err := store.NewBoltStore(dbPath)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	migration, err := st.CheckMigration(u.Fingerprint(corpus))
	if err != nil {
		return nil, err
	}

	if !migration.NeedsRebuild {
		start := time.Now()
		idx, err := hashindex.Load(st, u.hasher)
		if err != nil {
			return nil, err
		}
		stats, err := st.GetStats()
		if err != nil {
			return nil, fmt.Errorf("failed to read index stats: %w", err)
		}
		result := &IndexResult{Index: idx, Stats: stats, Reused: true, Duration: time.Since(start)}
		u.logStats("offset index loaded", dbPath, result)
		return result, nil
	}

	u.logger.Info("rebuilding offset index", "reason", migration.Reason, "db", dbPath)
	result, err := u.Build(corpus, nil)
	if err != nil {
		return nil, err
	}
	result.Reason = migration.Reason

	if err := u.persistTo(st, corpus, result.Index); err != nil {
		// the in-memory index is still usable
		u.logger.Warn("failed to persist offset index", "db", dbPath, "error", err)
	}
	return result, nil
}

func (u *IndexUseCase) logStats(msg, path string, r *IndexResult) {
	u.logger.Info(msg,
		"path", path,
		"records", r.Stats.Records,
		"buckets", r.Stats.Buckets,
		"collided_buckets", r.Stats.CollidedBuckets,
		"max_bucket", r.Stats.MaxBucket,
		"skipped_lines", r.Stats.SkippedLines,
		"duration", r.Duration,
	)
}

func ensureDir(dbPath string) error {
	return os.MkdirAll(filepath.Dir(dbPath), 0755)
}
