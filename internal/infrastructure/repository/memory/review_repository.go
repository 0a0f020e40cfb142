package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/review"
)

type ReviewRepository struct {
	mu    sync.RWMutex
	items map[string]review.Item
	now   func() time.Time
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{
		items: make(map[string]review.Item),
		now:   time.Now,
	}
}

func (r *ReviewRepository) Create(_ context.Context, item review.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[item.ID]; exists {
		return fmt.Errorf("review item %s already exists", item.ID)
	}
	if item.Status == "" {
		item.Status = review.StatusPending
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = r.now()
	}
	r.items[item.ID] = item

	return nil
}

func (r *ReviewRepository) GetByID(_ context.Context, itemID string) (review.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, ok := r.items[itemID]
	if !ok {
		return review.Item{}, fmt.Errorf("%w: id=%s", review.ErrNotFound, itemID)
	}
	return item, nil
}

func (r *ReviewRepository) ListPending(_ context.Context, limit int) ([]review.Item, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]review.Item, 0)
	for _, item := range r.items {
		if item.Status == review.StatusPending {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ReviewRepository) MarkResolved(_ context.Context, itemID string, decision review.Decision) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	item, ok := r.items[itemID]
	if !ok {
		return fmt.Errorf("%w: id=%s", review.ErrNotFound, itemID)
	}

	item.Status = decision.TerminalStatus()
	item.Decision = decision
	item.ResolvedAt = r.now()
	r.items[itemID] = item

	return nil
}
