package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/jobrun"
	"github.com/oddsgrid/sportpipe/internal/infrastructure/repository/memory"
	"github.com/oddsgrid/sportpipe/internal/platform/id"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
	"github.com/stretchr/testify/mock"
)

type jobRunRepositoryMock struct {
	mock.Mock
}

func (m *jobRunRepositoryMock) Create(ctx context.Context, run jobrun.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *jobRunRepositoryMock) Update(ctx context.Context, run jobrun.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *jobRunRepositoryMock) ListByJob(ctx context.Context, jobName string, limit int) ([]jobrun.Run, error) {
	args := m.Called(ctx, jobName, limit)
	runs, _ := args.Get(0).([]jobrun.Run)
	return runs, args.Error(1)
}

// A broken run store must not take the pipeline down with it: the run
// still executes and its result is returned to the caller.
func TestOrchestratorRun_ToleratesRunStoreFailures(t *testing.T) {
	entities := memory.NewEntityRepository()
	reviews := memory.NewReviewRepository()
	ids := id.NewSequenceGenerator("run")
	logger := logging.NewNop()
	resolver := NewResolutionService(entities, reviews, ids, DefaultResolutionConfig(), logger)

	runs := &jobRunRepositoryMock{}
	runs.On("Create", mock.Anything, mock.Anything).Return(errors.New("store down")).Once()
	runs.On("Update", mock.Anything, mock.Anything).Return(errors.New("store down")).Once()

	orchestrator := NewOrchestrator(resolver, nopFetcher{}, runs, ids, logger)
	adapter := emittingAdapter("squadlist", 2)
	if err := orchestrator.Register(job.SourceJob{Name: "squadlist", Enabled: true}, adapter); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := orchestrator.Run(context.Background(), "squadlist")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != jobrun.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", run.Status)
	}
	if run.RecordsSeen != 2 {
		t.Fatalf("records seen = %d, want 2", run.RecordsSeen)
	}

	runs.AssertExpectations(t)
}

// The final update carries the terminal status and tallies.
func TestOrchestratorRun_PersistsTerminalState(t *testing.T) {
	entities := memory.NewEntityRepository()
	reviews := memory.NewReviewRepository()
	ids := id.NewSequenceGenerator("run")
	logger := logging.NewNop()
	resolver := NewResolutionService(entities, reviews, ids, DefaultResolutionConfig(), logger)

	runs := &jobRunRepositoryMock{}
	runs.On("Create", mock.Anything, mock.MatchedBy(func(run jobrun.Run) bool {
		return run.Status == jobrun.StatusRunning && run.JobName == "squadlist"
	})).Return(nil).Once()
	runs.On("Update", mock.Anything, mock.MatchedBy(func(run jobrun.Run) bool {
		return run.Status == jobrun.StatusSucceeded &&
			run.RecordsSeen == 1 &&
			!run.FinishedAt.IsZero() &&
			!run.FinishedAt.Before(run.StartedAt)
	})).Return(nil).Once()

	orchestrator := NewOrchestrator(resolver, nopFetcher{}, runs, ids, logger)
	adapter := emittingAdapter("squadlist", 1)
	if err := orchestrator.Register(job.SourceJob{
		Name:     "squadlist",
		Schedule: job.Schedule{Kind: job.ScheduleKindInterval, Every: time.Hour},
		Enabled:  true,
	}, adapter); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := orchestrator.Run(context.Background(), "squadlist"); err != nil {
		t.Fatalf("run: %v", err)
	}

	runs.AssertExpectations(t)
}
