package entity

import (
	"fmt"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/record"
)

// CanonicalEntity is the deduplicated identity a record resolves to.
type CanonicalEntity struct {
	ID         string
	Type       record.EntityType
	Name       string
	Attributes map[string]string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (e CanonicalEntity) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("entity id is required")
	}
	if _, ok := record.AllEntityTypes[e.Type]; !ok {
		return fmt.Errorf("invalid entity type: %s", e.Type)
	}
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}

	return nil
}

// Mapping links one source-scoped external ID to a canonical entity.
// The (Source, ExternalID) pair is unique across the store.
type Mapping struct {
	Source     string
	ExternalID string
	EntityID   string
	CreatedAt  time.Time
}

func (m Mapping) Validate() error {
	if m.Source == "" {
		return fmt.Errorf("mapping source is required")
	}
	if m.ExternalID == "" {
		return fmt.Errorf("mapping external id is required")
	}
	if m.EntityID == "" {
		return fmt.Errorf("mapping entity id is required")
	}

	return nil
}
