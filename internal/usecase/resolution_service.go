package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/entity"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/domain/review"
	"github.com/oddsgrid/sportpipe/internal/platform/id"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
	"github.com/oddsgrid/sportpipe/internal/platform/resilience"
)

type ResolutionOutcome string

const (
	OutcomeMatched ResolutionOutcome = "matched"
	OutcomeCreated ResolutionOutcome = "created"
	OutcomeQueued  ResolutionOutcome = "queued"
)

// Resolution is the result of resolving one record against the canonical
// entity store.
type Resolution struct {
	Outcome  ResolutionOutcome
	EntityID string
	ReviewID string
	Score    float64
}

type ResolutionConfig struct {
	HighThreshold float64
	LowThreshold  float64
	Epsilon       float64
}

func DefaultResolutionConfig() ResolutionConfig {
	return ResolutionConfig{
		HighThreshold: 0.90,
		LowThreshold:  0.75,
		Epsilon:       0.02,
	}
}

func NormalizeResolutionConfig(cfg ResolutionConfig) ResolutionConfig {
	defaults := DefaultResolutionConfig()
	if cfg.HighThreshold <= 0 || cfg.HighThreshold > 1 {
		cfg.HighThreshold = defaults.HighThreshold
	}
	if cfg.LowThreshold <= 0 || cfg.LowThreshold >= cfg.HighThreshold {
		cfg.LowThreshold = defaults.LowThreshold
	}
	if cfg.Epsilon < 0 {
		cfg.Epsilon = defaults.Epsilon
	}
	return cfg
}

// ResolutionService maps (source, external id) pairs to canonical entities.
// The mapping uniqueness constraint in the repository is the only
// concurrency control; losing writers re-read and return Matched.
type ResolutionService struct {
	entities entity.Repository
	reviews  review.Repository
	ids      id.Generator
	cfg      ResolutionConfig
	logger   *logging.Logger
	search   resilience.SingleFlight
	resolves resilience.SingleFlight
	now      func() time.Time
}

func NewResolutionService(
	entities entity.Repository,
	reviews review.Repository,
	ids id.Generator,
	cfg ResolutionConfig,
	logger *logging.Logger,
) *ResolutionService {
	if logger == nil {
		logger = logging.Default()
	}

	return &ResolutionService{
		entities: entities,
		reviews:  reviews,
		ids:      ids,
		cfg:      NormalizeResolutionConfig(cfg),
		logger:   logger,
		now:      time.Now,
	}
}

type scoredCandidate struct {
	ent   entity.CanonicalEntity
	score float64
}

// Resolve determines whether rec refers to an existing canonical entity or
// a new one. Idempotent per (source, external id): repeated and concurrent
// calls converge on the same entity ID.
func (s *ResolutionService) Resolve(ctx context.Context, rec record.NormalizedRecord) (Resolution, error) {
	ctx, span := startUsecaseSpan(ctx, "ResolutionService.Resolve")
	defer span.End()

	if err := rec.Validate(); err != nil {
		return Resolution{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	// Deterministic lookup is authoritative and bypasses fuzzy logic.
	m, err := s.entities.FindMapping(ctx, rec.Source, rec.ExternalID)
	if err == nil {
		return Resolution{Outcome: OutcomeMatched, EntityID: m.EntityID, Score: 1}, nil
	}
	if !errors.Is(err, entity.ErrNotFound) {
		return Resolution{}, fmt.Errorf("%w: find mapping: %v", ErrDependencyUnavailable, err)
	}

	// Concurrent resolves of the same key share one execution; sharers
	// see the winner's entity as a match.
	key := "resolve:" + rec.Source + ":" + rec.ExternalID
	result, err, shared := s.resolves.Do(key, func() (any, error) {
		return s.resolveMiss(ctx, rec)
	})
	if err != nil {
		return Resolution{}, err
	}
	res := result.(Resolution)
	if shared && res.Outcome == OutcomeCreated {
		res.Outcome = OutcomeMatched
	}

	return res, nil
}

func (s *ResolutionService) resolveMiss(ctx context.Context, rec record.NormalizedRecord) (Resolution, error) {
	best, second, err := s.bestCandidates(ctx, rec)
	if err != nil {
		return Resolution{}, err
	}

	switch {
	case best == nil || best.score <= s.cfg.LowThreshold:
		return s.createEntity(ctx, rec, best)
	case best.score >= s.cfg.HighThreshold && (second == nil || best.score-second.score > s.cfg.Epsilon):
		return s.linkEntity(ctx, rec, best)
	default:
		return s.enqueueReview(ctx, rec, best)
	}
}

// bestCandidates scans same-type entities and returns the two best scored.
// Concurrent resolutions of the same normalized name share one scan.
func (s *ResolutionService) bestCandidates(ctx context.Context, rec record.NormalizedRecord) (*scoredCandidate, *scoredCandidate, error) {
	key := fmt.Sprintf("candidates:%s:%s", rec.EntityType, record.NormalizedName(rec.Name))
	result, err, _ := s.search.Do(key, func() (any, error) {
		return s.entities.ListByType(ctx, rec.EntityType)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: list candidates: %v", ErrDependencyUnavailable, err)
	}
	candidates := result.([]entity.CanonicalEntity)

	var best, second *scoredCandidate
	for _, ent := range candidates {
		score := Similarity(rec.Name, rec.Attributes, ent.Name, ent.Attributes)
		c := &scoredCandidate{ent: ent, score: score}
		switch {
		case best == nil || c.score > best.score:
			second = best
			best = c
		case second == nil || c.score > second.score:
			second = c
		}
	}

	return best, second, nil
}

func (s *ResolutionService) linkEntity(ctx context.Context, rec record.NormalizedRecord, best *scoredCandidate) (Resolution, error) {
	res, err := s.createMapping(ctx, rec, best.ent.ID)
	if err != nil {
		return Resolution{}, err
	}
	// Auto-link reports Matched whether we won or lost the mapping race.
	res.Outcome = OutcomeMatched
	res.Score = best.score

	s.logger.InfoContext(ctx, "record auto-linked",
		"source", rec.Source,
		"external_id", rec.ExternalID,
		"entity_id", res.EntityID,
		"score", best.score,
	)
	return res, nil
}

func (s *ResolutionService) createEntity(ctx context.Context, rec record.NormalizedRecord, best *scoredCandidate) (Resolution, error) {
	entityID, err := s.ids.NewID()
	if err != nil {
		return Resolution{}, fmt.Errorf("generate entity id: %w", err)
	}

	ent := entity.CanonicalEntity{
		ID:         entityID,
		Type:       rec.EntityType,
		Name:       rec.Name,
		Attributes: rec.Attributes,
		CreatedAt:  s.now(),
	}
	if err := s.entities.Create(ctx, ent); err != nil {
		return Resolution{}, fmt.Errorf("%w: create entity: %v", ErrDependencyUnavailable, err)
	}

	res, err := s.createMapping(ctx, rec, entityID)
	if err != nil {
		return Resolution{}, err
	}
	if res.Outcome == OutcomeMatched {
		// Lost a concurrent race; the freshly created entity stays
		// unreachable and the existing mapping wins.
		return res, nil
	}

	score := 0.0
	if best != nil {
		score = best.score
	}

	s.logger.InfoContext(ctx, "canonical entity created",
		"source", rec.Source,
		"external_id", rec.ExternalID,
		"entity_id", entityID,
		"best_score", score,
	)
	return Resolution{Outcome: OutcomeCreated, EntityID: entityID, Score: score}, nil
}

func (s *ResolutionService) enqueueReview(ctx context.Context, rec record.NormalizedRecord, best *scoredCandidate) (Resolution, error) {
	reviewID, err := s.ids.NewID()
	if err != nil {
		return Resolution{}, fmt.Errorf("generate review id: %w", err)
	}

	item := review.Item{
		ID:                reviewID,
		Record:            rec,
		CandidateEntityID: best.ent.ID,
		Score:             best.score,
		Status:            review.StatusPending,
		CreatedAt:         s.now(),
	}
	if err := s.reviews.Create(ctx, item); err != nil {
		return Resolution{}, fmt.Errorf("%w: enqueue review: %v", ErrDependencyUnavailable, err)
	}

	s.logger.InfoContext(ctx, "record queued for review",
		"source", rec.Source,
		"external_id", rec.ExternalID,
		"review_id", reviewID,
		"candidate_id", best.ent.ID,
		"score", best.score,
	)
	return Resolution{Outcome: OutcomeQueued, ReviewID: reviewID, Score: best.score}, nil
}

// createMapping writes the mapping, treating a uniqueness violation as a
// lost race: re-read the winner and return Matched.
func (s *ResolutionService) createMapping(ctx context.Context, rec record.NormalizedRecord, entityID string) (Resolution, error) {
	m := entity.Mapping{
		Source:     rec.Source,
		ExternalID: rec.ExternalID,
		EntityID:   entityID,
		CreatedAt:  s.now(),
	}
	err := s.entities.CreateMapping(ctx, m)
	if err == nil {
		return Resolution{Outcome: OutcomeCreated, EntityID: entityID}, nil
	}
	if !errors.Is(err, entity.ErrDuplicateMapping) {
		return Resolution{}, fmt.Errorf("%w: create mapping: %v", ErrDependencyUnavailable, err)
	}

	existing, err := s.entities.FindMapping(ctx, rec.Source, rec.ExternalID)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: re-read mapping after conflict: %v", ErrDependencyUnavailable, err)
	}

	s.logger.DebugContext(ctx, "mapping race lost, reusing existing entity",
		"source", rec.Source,
		"external_id", rec.ExternalID,
		"entity_id", existing.EntityID,
	)
	return Resolution{Outcome: OutcomeMatched, EntityID: existing.EntityID, Score: 1}, nil
}
