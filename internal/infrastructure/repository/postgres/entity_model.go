package postgres

import (
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/entity"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
)

type entityTableModel struct {
	ID         string    `db:"id"`
	EntityType string    `db:"entity_type"`
	Name       string    `db:"name"`
	Attributes string    `db:"attributes"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (m entityTableModel) toDomain() entity.CanonicalEntity {
	return entity.CanonicalEntity{
		ID:         m.ID,
		Type:       record.EntityType(m.EntityType),
		Name:       m.Name,
		Attributes: decodeAttributes(m.Attributes),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

type mappingTableModel struct {
	Source     string    `db:"source"`
	ExternalID string    `db:"external_id"`
	EntityID   string    `db:"entity_id"`
	CreatedAt  time.Time `db:"created_at"`
}

func (m mappingTableModel) toDomain() entity.Mapping {
	return entity.Mapping{
		Source:     m.Source,
		ExternalID: m.ExternalID,
		EntityID:   m.EntityID,
		CreatedAt:  m.CreatedAt,
	}
}
