package entity

import (
	"context"
	"errors"

	"github.com/oddsgrid/sportpipe/internal/domain/record"
)

var (
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateMapping reports that another mapping already exists for
	// the same (source, external id) pair.
	ErrDuplicateMapping = errors.New("duplicate external id mapping")
)

// Repository describes canonical entity persistence needs from use cases.
type Repository interface {
	GetByID(ctx context.Context, entityID string) (CanonicalEntity, error)
	Create(ctx context.Context, ent CanonicalEntity) error
	ListByType(ctx context.Context, entityType record.EntityType) ([]CanonicalEntity, error)

	FindMapping(ctx context.Context, source, externalID string) (Mapping, error)
	// CreateMapping fails with ErrDuplicateMapping when the (source,
	// external id) pair is already bound to an entity.
	CreateMapping(ctx context.Context, m Mapping) error
}
