package jobrun

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("job run not found")

// Repository describes job run persistence needs from the orchestrator.
type Repository interface {
	Create(ctx context.Context, run Run) error
	Update(ctx context.Context, run Run) error
	ListByJob(ctx context.Context, jobName string, limit int) ([]Run, error)
}
