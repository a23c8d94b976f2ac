package port

import (
	"context"

	"kge/internal/domain"
)

// EntityResolver resolves a raw entity URI to its stored corpus record.
// A miss is reported through the result, never as an error.
type EntityResolver interface {
	ResolveEntity(ctx context.Context, rawURI string) (domain.EntityResult, error)
}

// RelationResolver resolves a raw relation URI to its embedding.
type RelationResolver interface {
	ResolveRelation(rawURI string) domain.RelationResult
}

// BatchProcessor resolves an ordered batch of entity and relation URIs.
type BatchProcessor interface {
	Process(ctx context.Context, req domain.BatchRequest) (domain.BatchResult, error)
}
