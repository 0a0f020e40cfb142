package review

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("review item not found")

// Repository describes review queue persistence needs from use cases.
type Repository interface {
	Create(ctx context.Context, item Item) error
	GetByID(ctx context.Context, itemID string) (Item, error)
	ListPending(ctx context.Context, limit int) ([]Item, error)
	// MarkResolved records the decision and flips the item to resolved.
	MarkResolved(ctx context.Context, itemID string, decision Decision) error
}
