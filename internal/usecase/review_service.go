package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/entity"
	"github.com/oddsgrid/sportpipe/internal/domain/review"
	"github.com/oddsgrid/sportpipe/internal/platform/id"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
)

// ReviewService resolves parked ambiguous records. Its Decide method is the
// only path that mutates review item status.
type ReviewService struct {
	entities entity.Repository
	reviews  review.Repository
	ids      id.Generator
	logger   *logging.Logger
	now      func() time.Time
}

func NewReviewService(
	entities entity.Repository,
	reviews review.Repository,
	ids id.Generator,
	logger *logging.Logger,
) *ReviewService {
	if logger == nil {
		logger = logging.Default()
	}

	return &ReviewService{
		entities: entities,
		reviews:  reviews,
		ids:      ids,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *ReviewService) ListPending(ctx context.Context, limit int) ([]review.Item, error) {
	ctx, span := startUsecaseSpan(ctx, "ReviewService.ListPending")
	defer span.End()

	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", ErrInvalidInput)
	}

	items, err := s.reviews.ListPending(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list pending reviews: %v", ErrDependencyUnavailable, err)
	}
	return items, nil
}

// Decide resolves one pending review item. Confirm binds the record to the
// stored candidate; discard creates a fresh canonical entity from the
// snapshot. Returns the entity ID the record now maps to.
func (s *ReviewService) Decide(ctx context.Context, reviewID string, decision review.Decision) (string, error) {
	ctx, span := startUsecaseSpan(ctx, "ReviewService.Decide")
	defer span.End()

	if reviewID == "" {
		return "", fmt.Errorf("%w: review id is required", ErrInvalidInput)
	}
	if _, ok := review.AllDecisions[decision]; !ok {
		return "", fmt.Errorf("%w: unknown decision %q", ErrInvalidInput, decision)
	}

	item, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, review.ErrNotFound) {
			return "", fmt.Errorf("%w: review id=%s", ErrNotFound, reviewID)
		}
		return "", fmt.Errorf("%w: load review item: %v", ErrDependencyUnavailable, err)
	}
	if item.Status != review.StatusPending {
		return "", fmt.Errorf("%w: review id=%s", ErrReviewAlreadyResolved, reviewID)
	}

	var entityID string
	switch decision {
	case review.DecisionConfirm:
		entityID, err = s.bindMapping(ctx, item, item.CandidateEntityID)
	case review.DecisionDiscard:
		entityID, err = s.createFromSnapshot(ctx, item)
	}
	if err != nil {
		return "", err
	}

	if err := s.reviews.MarkResolved(ctx, reviewID, decision); err != nil {
		return "", fmt.Errorf("%w: mark review resolved: %v", ErrDependencyUnavailable, err)
	}

	s.logger.InfoContext(ctx, "review item resolved",
		"review_id", reviewID,
		"decision", decision,
		"entity_id", entityID,
	)
	return entityID, nil
}

func (s *ReviewService) createFromSnapshot(ctx context.Context, item review.Item) (string, error) {
	entityID, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate entity id: %w", err)
	}

	ent := entity.CanonicalEntity{
		ID:         entityID,
		Type:       item.Record.EntityType,
		Name:       item.Record.Name,
		Attributes: item.Record.Attributes,
		CreatedAt:  s.now(),
	}
	if err := s.entities.Create(ctx, ent); err != nil {
		return "", fmt.Errorf("%w: create entity: %v", ErrDependencyUnavailable, err)
	}

	return s.bindMapping(ctx, item, entityID)
}

// bindMapping creates the mapping, tolerating a concurrent winner: the
// existing mapping's entity is returned instead.
func (s *ReviewService) bindMapping(ctx context.Context, item review.Item, entityID string) (string, error) {
	m := entity.Mapping{
		Source:     item.Record.Source,
		ExternalID: item.Record.ExternalID,
		EntityID:   entityID,
		CreatedAt:  s.now(),
	}
	err := s.entities.CreateMapping(ctx, m)
	if err == nil {
		return entityID, nil
	}
	if !errors.Is(err, entity.ErrDuplicateMapping) {
		return "", fmt.Errorf("%w: create mapping: %v", ErrDependencyUnavailable, err)
	}

	existing, err := s.entities.FindMapping(ctx, item.Record.Source, item.Record.ExternalID)
	if err != nil {
		return "", fmt.Errorf("%w: re-read mapping after conflict: %v", ErrDependencyUnavailable, err)
	}
	return existing.EntityID, nil
}
