package usecase

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"kge/internal/adapter/analyzer"
	"kge/internal/adapter/cache"
	"kge/internal/adapter/entity"
	"kge/internal/adapter/fs"
	"kge/internal/adapter/memstore"
	"kge/internal/domain"
	"kge/internal/port"
)

// RuntimeOptions configures Open.
type RuntimeOptions struct {
	Root      string
	Entities  string // pattern matching exactly one entity corpus
	Relations string // pattern matching one or more relation corpora
	Delimiter byte
	HashBits  int

	// IndexDBPath enables the companion index file when set.
	IndexDBPath string

	Reader    fs.ReaderOptions
	Workers   int
	CacheSize int
}

// Runtime is the read-only state built once at startup and handed to every
// request handler.
type Runtime struct {
	Entities  *entity.Store
	Relations *memstore.RelationStore
	Index     *IndexResult
	Cache     *cache.RecordCache
	Lookup    *LookupUseCase
}

// Open loads the entity and relation stores concurrently. Any failure is a
// *domain.StartupError and nothing is left open.
func Open(ctx context.Context, opts RuntimeOptions, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}

	rt := &Runtime{}
	g, _ := errgroup.WithContext(ctx)

	g.Go(func() error {
		corpus, err := fs.LocateOne(opts.Root, opts.Entities)
		if err != nil {
			return domain.NewStartupError("entity store", opts.Entities, err)
		}

		indexUC := NewIndexUseCase(analyzer.NewFNVHasher(opts.HashBits), opts.Delimiter, logger)
		result, err := indexUC.Open(corpus, opts.IndexDBPath)
		if err != nil {
			return domain.NewStartupError("entity index", corpus.Path, err)
		}

		st, err := entity.Open(corpus.Path, result.Index, entity.Options{Delimiter: opts.Delimiter, Reader: opts.Reader}, logger)
		if err != nil {
			return err
		}
		rt.Entities = st
		rt.Index = result
		return nil
	})

	g.Go(func() error {
		files, err := fs.Locate(opts.Root, opts.Relations)
		if err != nil {
			return domain.NewStartupError("relation store", opts.Relations, err)
		}
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = f.Path
		}

		st, err := memstore.LoadRelations(paths, logger)
		if err != nil {
			return err
		}
		rt.Relations = st
		return nil
	})

	if err := g.Wait(); err != nil {
		rt.Close()
		var startupErr *domain.StartupError
		if !errors.As(err, &startupErr) {
			err = domain.NewStartupError("runtime", opts.Root, err)
		}
		return nil, err
	}

	var entities port.EntityResolver = rt.Entities
	if opts.CacheSize > 0 {
		rt.Cache = cache.NewRecordCache(opts.CacheSize)
		entities = cache.NewCachedResolver(rt.Entities, rt.Cache)
	}
	rt.Lookup = NewLookupUseCase(entities, rt.Relations, opts.Workers, logger)

	logger.Info("lookup runtime ready",
		"entity_corpus", rt.Entities.Path(),
		"entity_records", rt.Index.Stats.Records,
		"index_reused", rt.Index.Reused,
		"relations", rt.Relations.Len(),
		"mmap", opts.Reader.Mmap,
		"workers", opts.Workers,
		"cache_size", opts.CacheSize,
	)
	return rt, nil
}

// Close releases the entity corpus file.
func (rt *Runtime) Close() error {
	if rt == nil || rt.Entities == nil {
		return nil
	}
	return rt.Entities.Close()
}

// RuntimeStats is the health snapshot of a Runtime.
type RuntimeStats struct {
	Status       string               `json:"status"`
	EntityCorpus string               `json:"entity_corpus"`
	Index        domain.IndexStats    `json:"index"`
	IndexReused  bool                 `json:"index_reused"`
	Relations    domain.RelationStats `json:"relations"`
	CacheEntries int                  `json:"cache_entries"`
	CacheHitRate float64              `json:"cache_hit_rate"`
}

// Stats reports what was loaded at startup and the cache state.
func (rt *Runtime) Stats() RuntimeStats {
	stats := RuntimeStats{
		Status:       "ok",
		EntityCorpus: rt.Entities.Path(),
		Index:        rt.Index.Stats,
		IndexReused:  rt.Index.Reused,
		Relations:    rt.Relations.Stats(),
	}
	if rt.Cache != nil {
		stats.CacheEntries = rt.Cache.Size()
		stats.CacheHitRate = rt.Cache.HitRate()
	}
	return stats
}
