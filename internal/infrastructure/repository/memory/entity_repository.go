package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/entity"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
)

type EntityRepository struct {
	mu       sync.RWMutex
	entities map[string]entity.CanonicalEntity
	mappings map[string]entity.Mapping
	now      func() time.Time
}

func NewEntityRepository() *EntityRepository {
	return &EntityRepository{
		entities: make(map[string]entity.CanonicalEntity),
		mappings: make(map[string]entity.Mapping),
		now:      time.Now,
	}
}

func mappingKey(source, externalID string) string {
	return source + "\x00" + externalID
}

func (r *EntityRepository) GetByID(_ context.Context, entityID string) (entity.CanonicalEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ent, ok := r.entities[entityID]
	if !ok {
		return entity.CanonicalEntity{}, fmt.Errorf("%w: id=%s", entity.ErrNotFound, entityID)
	}
	return ent, nil
}

func (r *EntityRepository) Create(_ context.Context, ent entity.CanonicalEntity) error {
	if err := ent.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entities[ent.ID]; exists {
		return fmt.Errorf("entity %s already exists", ent.ID)
	}
	if ent.CreatedAt.IsZero() {
		ent.CreatedAt = r.now()
	}
	ent.UpdatedAt = ent.CreatedAt
	r.entities[ent.ID] = ent

	return nil
}

func (r *EntityRepository) ListByType(_ context.Context, entityType record.EntityType) ([]entity.CanonicalEntity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entity.CanonicalEntity, 0)
	for _, ent := range r.entities {
		if ent.Type == entityType {
			out = append(out, ent)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *EntityRepository) FindMapping(_ context.Context, source, externalID string) (entity.Mapping, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.mappings[mappingKey(source, externalID)]
	if !ok {
		return entity.Mapping{}, fmt.Errorf("%w: source=%s external_id=%s", entity.ErrNotFound, source, externalID)
	}
	return m, nil
}

// CreateMapping enforces the (source, external id) uniqueness invariant,
// mirroring the unique constraint the SQL repository relies on.
func (r *EntityRepository) CreateMapping(_ context.Context, m entity.Mapping) error {
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := mappingKey(m.Source, m.ExternalID)
	if _, exists := r.mappings[key]; exists {
		return fmt.Errorf("%w: source=%s external_id=%s", entity.ErrDuplicateMapping, m.Source, m.ExternalID)
	}
	if _, ok := r.entities[m.EntityID]; !ok {
		return fmt.Errorf("%w: entity id=%s", entity.ErrNotFound, m.EntityID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.now()
	}
	r.mappings[key] = m

	return nil
}
