package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/oddsgrid/sportpipe/internal/domain/entity"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
)

type EntityRepository struct {
	db *sqlx.DB
}

func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

func (r *EntityRepository) GetByID(ctx context.Context, entityID string) (entity.CanonicalEntity, error) {
	const query = `
		SELECT id, entity_type, name, attributes, created_at, updated_at
		FROM canonical_entities
		WHERE id = $1`

	var row entityTableModel
	if err := r.db.GetContext(ctx, &row, query, entityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.CanonicalEntity{}, fmt.Errorf("%w: id=%s", entity.ErrNotFound, entityID)
		}
		return entity.CanonicalEntity{}, fmt.Errorf("select entity: %w", err)
	}

	return row.toDomain(), nil
}

func (r *EntityRepository) Create(ctx context.Context, ent entity.CanonicalEntity) error {
	if err := ent.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO canonical_entities (id, entity_type, name, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`

	createdAt := ent.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := r.db.ExecContext(ctx, query, ent.ID, string(ent.Type), ent.Name, encodeAttributes(ent.Attributes), createdAt); err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

func (r *EntityRepository) ListByType(ctx context.Context, entityType record.EntityType) ([]entity.CanonicalEntity, error) {
	const query = `
		SELECT id, entity_type, name, attributes, created_at, updated_at
		FROM canonical_entities
		WHERE entity_type = $1
		ORDER BY id`

	var rows []entityTableModel
	if err := r.db.SelectContext(ctx, &rows, query, string(entityType)); err != nil {
		return nil, fmt.Errorf("select entities by type: %w", err)
	}

	out := make([]entity.CanonicalEntity, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *EntityRepository) FindMapping(ctx context.Context, source, externalID string) (entity.Mapping, error) {
	const query = `
		SELECT source, external_id, entity_id, created_at
		FROM external_id_mappings
		WHERE source = $1 AND external_id = $2`

	var row mappingTableModel
	if err := r.db.GetContext(ctx, &row, query, source, externalID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.Mapping{}, fmt.Errorf("%w: source=%s external_id=%s", entity.ErrNotFound, source, externalID)
		}
		return entity.Mapping{}, fmt.Errorf("select mapping: %w", err)
	}

	return row.toDomain(), nil
}

// CreateMapping relies on the primary key over (source, external_id); a
// unique violation surfaces as entity.ErrDuplicateMapping so the resolver
// can re-read the winner.
func (r *EntityRepository) CreateMapping(ctx context.Context, m entity.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}

	const query = `
		INSERT INTO external_id_mappings (source, external_id, entity_id, created_at)
		VALUES ($1, $2, $3, $4)`

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	if _, err := r.db.ExecContext(ctx, query, m.Source, m.ExternalID, m.EntityID, createdAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: source=%s external_id=%s", entity.ErrDuplicateMapping, m.Source, m.ExternalID)
		}
		return fmt.Errorf("insert mapping: %w", err)
	}
	return nil
}
