package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/oddsgrid/sportpipe/internal/domain/jobrun"
)

type JobRunRepository struct {
	mu   sync.RWMutex
	runs map[string]jobrun.Run
}

func NewJobRunRepository() *JobRunRepository {
	return &JobRunRepository{runs: make(map[string]jobrun.Run)}
}

func (r *JobRunRepository) Create(_ context.Context, run jobrun.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("job run %s already exists", run.ID)
	}
	r.runs[run.ID] = run

	return nil
}

func (r *JobRunRepository) Update(_ context.Context, run jobrun.Run) error {
	if err := run.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; !exists {
		return fmt.Errorf("%w: id=%s", jobrun.ErrNotFound, run.ID)
	}
	r.runs[run.ID] = run

	return nil
}

func (r *JobRunRepository) ListByJob(_ context.Context, jobName string, limit int) ([]jobrun.Run, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]jobrun.Run, 0)
	for _, run := range r.runs {
		if run.JobName == jobName {
			out = append(out, run)
		}
	}
	// Newest runs first.
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
