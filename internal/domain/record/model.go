package record

import (
	"fmt"
	"strings"
	"time"
)

// EntityType categorizes what a collected record describes.
type EntityType string

const (
	EntityTypePerson EntityType = "person"
	EntityTypeTeam   EntityType = "team"
	EntityTypeEvent  EntityType = "event"
)

var AllEntityTypes = map[EntityType]struct{}{
	EntityTypePerson: {},
	EntityTypeTeam:   {},
	EntityTypeEvent:  {},
}

// NormalizedRecord is one observation of an entity as reported by a source,
// after adapter-specific parsing and field normalization.
type NormalizedRecord struct {
	EntityType EntityType
	Source     string
	ExternalID string
	Name       string
	Attributes map[string]string
	SourceURL  string
	ObservedAt time.Time
}

func (r NormalizedRecord) Validate() error {
	if _, ok := AllEntityTypes[r.EntityType]; !ok {
		return fmt.Errorf("invalid entity type: %s", r.EntityType)
	}
	if r.Source == "" {
		return fmt.Errorf("record source is required")
	}
	if r.ExternalID == "" {
		return fmt.Errorf("record external id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record name is required")
	}

	return nil
}

// NormalizedName lowercases and collapses whitespace, the canonical form
// used for similarity scoring and candidate lookups.
func NormalizedName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
