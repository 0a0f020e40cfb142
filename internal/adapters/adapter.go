package adapters

import (
	"context"

	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/fetch"
)

// Fetcher is the slice of the fetch layer adapters depend on.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request, hooks fetch.Hooks) (fetch.Outcome, error)
}

// EmitFunc receives each extracted record as soon as the adapter produces
// it. Returning an error stops the run.
type EmitFunc func(rec record.NormalizedRecord) error

// Adapter extracts normalized records from one source. Implementations are
// stateless; the orchestrator owns scheduling and failure handling.
type Adapter interface {
	Name() string
	DefaultSchedule() job.Schedule
	Run(ctx context.Context, fetcher Fetcher, emit EmitFunc) error
}
