package usecase

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"kge/internal/domain"
	"kge/internal/port"
)

// LookupUseCase resolves batches of entity and relation URIs. Results are
// always index-aligned with the request: one result per input, in input
// order, duplicates and misses included.
type LookupUseCase struct {
	entities  port.EntityResolver
	relations port.RelationResolver
	workers   int
	logger    *slog.Logger
}

// NewLookupUseCase creates a lookup use case. workers > 1 resolves the
// entities of a batch concurrently.
func NewLookupUseCase(entities port.EntityResolver, relations port.RelationResolver, workers int, logger *slog.Logger) *LookupUseCase {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LookupUseCase{
		entities:  entities,
		relations: relations,
		workers:   workers,
		logger:    logger.With("component", "lookup"),
	}
}

// Process resolves every URI of req. A key that cannot be found, or whose
// candidate record cannot be read, yields a miss in its slot. The only error
// is the context's, in which case no partial result is returned.
func (u *LookupUseCase) Process(ctx context.Context, req domain.BatchRequest) (domain.BatchResult, error) {
	entities, err := u.resolveEntities(ctx, req.Entities)
	if err != nil {
		return domain.BatchResult{}, err
	}

	relations := make([]domain.RelationResult, len(req.Relations))
	for i, uri := range req.Relations {
		relations[i] = u.relations.ResolveRelation(uri)
	}

	return domain.BatchResult{Entities: entities, Relations: relations}, nil
}

func (u *LookupUseCase) resolveEntities(ctx context.Context, uris []string) ([]domain.EntityResult, error) {
	results := make([]domain.EntityResult, len(uris))

	if u.workers == 1 || len(uris) < 2 {
		for i, uri := range uris {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			results[i] = u.resolveEntity(ctx, uri)
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.workers)
	for i, uri := range uris {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = u.resolveEntity(gctx, uri)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (u *LookupUseCase) resolveEntity(ctx context.Context, uri string) domain.EntityResult {
	res, err := u.entities.ResolveEntity(ctx, uri)
	if err != nil {
		u.logger.Error("entity read failed, reporting miss", "uri", uri, "error", err)
		return domain.EntityMiss(res.Key)
	}
	return res
}
