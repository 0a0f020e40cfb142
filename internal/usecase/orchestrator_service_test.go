package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/oddsgrid/sportpipe/internal/adapters"
	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/jobrun"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/fetch"
	"github.com/oddsgrid/sportpipe/internal/infrastructure/repository/memory"
	"github.com/oddsgrid/sportpipe/internal/platform/id"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
)

type stubAdapter struct {
	name     string
	schedule job.Schedule
	run      func(ctx context.Context, fetcher adapters.Fetcher, emit adapters.EmitFunc) error
}

func (a *stubAdapter) Name() string                  { return a.name }
func (a *stubAdapter) DefaultSchedule() job.Schedule { return a.schedule }
func (a *stubAdapter) Run(ctx context.Context, fetcher adapters.Fetcher, emit adapters.EmitFunc) error {
	return a.run(ctx, fetcher, emit)
}

type nopFetcher struct{}

func (nopFetcher) Fetch(ctx context.Context, req fetch.Request, hooks fetch.Hooks) (fetch.Outcome, error) {
	return fetch.Outcome{HTML: "<html></html>", Meta: map[string]any{}}, nil
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *memory.JobRunRepository) {
	t.Helper()
	entities := memory.NewEntityRepository()
	reviews := memory.NewReviewRepository()
	runs := memory.NewJobRunRepository()
	resolver := NewResolutionService(entities, reviews, id.NewSequenceGenerator("res"), DefaultResolutionConfig(), logging.NewNop())
	return NewOrchestrator(resolver, nopFetcher{}, runs, id.NewSequenceGenerator("run"), logging.NewNop()), runs
}

func emittingAdapter(name string, count int) *stubAdapter {
	return &stubAdapter{
		name:     name,
		schedule: job.Schedule{Kind: job.ScheduleKindInterval, Every: time.Hour},
		run: func(ctx context.Context, fetcher adapters.Fetcher, emit adapters.EmitFunc) error {
			for i := 0; i < count; i++ {
				rec := record.NormalizedRecord{
					EntityType: record.EntityTypePerson,
					Source:     name,
					ExternalID: fmt.Sprintf("ext-%d", i),
					Name:       fmt.Sprintf("Player %s %d", name, i),
					ObservedAt: time.Now(),
				}
				if err := emit(rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func TestOrchestrator_RunTalliesOutcomes(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.Register(job.SourceJob{Enabled: true}, emittingAdapter("clubsite", 3)); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := o.Run(context.Background(), "clubsite")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if run.Status != jobrun.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", run.Status, run.Error)
	}
	if run.RecordsSeen != 3 || run.Created != 3 {
		t.Fatalf("unexpected tallies: %+v", run)
	}

	// Same externals again: all deterministic matches now.
	run, err = o.Run(context.Background(), "clubsite")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if run.Matched != 3 || run.Created != 0 {
		t.Fatalf("expected 3 matches on repeat run, got %+v", run)
	}
}

func TestOrchestrator_RegisterValidation(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	err := o.Register(job.SourceJob{
		Schedule: job.Schedule{Kind: job.ScheduleKindCron, Expr: "not a cron"},
	}, emittingAdapter("clubsite", 0))
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected cron parse failure at register time, got %v", err)
	}

	if err := o.Register(job.SourceJob{}, emittingAdapter("clubsite", 0)); err != nil {
		t.Fatalf("register with defaults: %v", err)
	}
	if err := o.Register(job.SourceJob{}, emittingAdapter("clubsite", 0)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected duplicate registration error, got %v", err)
	}

	if _, err := o.Run(context.Background(), "unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown job, got %v", err)
	}
}

func TestOrchestrator_AdapterErrorMarksRunFailed(t *testing.T) {
	o, runs := newTestOrchestrator(t)
	failing := &stubAdapter{
		name:     "flaky",
		schedule: job.Schedule{Kind: job.ScheduleKindInterval, Every: time.Hour},
		run: func(context.Context, adapters.Fetcher, adapters.EmitFunc) error {
			return errors.New("selector not found")
		},
	}
	if err := o.Register(job.SourceJob{Enabled: true}, failing); err != nil {
		t.Fatalf("register: %v", err)
	}

	run, err := o.Run(context.Background(), "flaky")
	if err != nil {
		t.Fatalf("run must not propagate adapter errors: %v", err)
	}
	if run.Status != jobrun.StatusFailed || run.Error == "" {
		t.Fatalf("expected failed run with error detail, got %+v", run)
	}

	history, err := runs.ListByJob(context.Background(), "flaky", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(history) != 1 || history[0].Status != jobrun.StatusFailed {
		t.Fatalf("expected one persisted failed run, got %v", history)
	}
}

func TestOrchestrator_AdapterPanicIsolated(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	panicking := &stubAdapter{
		name:     "panicky",
		schedule: job.Schedule{Kind: job.ScheduleKindInterval, Every: time.Hour},
		run: func(context.Context, adapters.Fetcher, adapters.EmitFunc) error {
			panic("nil dereference in parser")
		},
	}
	if err := o.Register(job.SourceJob{Enabled: true}, panicking); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Register(job.SourceJob{Enabled: true}, emittingAdapter("healthy", 2)); err != nil {
		t.Fatalf("register: %v", err)
	}

	runs, err := o.RunAll(context.Background(), nil, 2)
	if err != nil {
		t.Fatalf("run all: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}

	byName := map[string]jobrun.Run{}
	for _, run := range runs {
		byName[run.JobName] = run
	}
	if byName["healthy"].Status != jobrun.StatusSucceeded {
		t.Fatalf("healthy job affected by sibling panic: %+v", byName["healthy"])
	}
	if byName["panicky"].Status != jobrun.StatusFailed {
		t.Fatalf("expected panicking job marked failed, got %+v", byName["panicky"])
	}
}

func TestOrchestrator_OverlapSkipped(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := &stubAdapter{
		name:     "slow",
		schedule: job.Schedule{Kind: job.ScheduleKindInterval, Every: time.Hour},
		run: func(ctx context.Context, _ adapters.Fetcher, _ adapters.EmitFunc) error {
			close(started)
			<-release
			return nil
		},
	}
	if err := o.Register(job.SourceJob{Enabled: true}, blocking); err != nil {
		t.Fatalf("register: %v", err)
	}

	firstDone := make(chan jobrun.Run, 1)
	go func() {
		run, _ := o.Run(context.Background(), "slow")
		firstDone <- run
	}()
	<-started

	overlap, err := o.Run(context.Background(), "slow")
	if err != nil {
		t.Fatalf("overlapping run: %v", err)
	}
	if overlap.Status != jobrun.StatusSkipped {
		t.Fatalf("expected overlapping run skipped, got %s", overlap.Status)
	}

	close(release)
	if run := <-firstDone; run.Status != jobrun.StatusSucceeded {
		t.Fatalf("expected first run to succeed, got %+v", run)
	}
}

func TestOrchestrator_JobIsolationOnSchedule(t *testing.T) {
	o, runs := newTestOrchestrator(t)

	failing := &stubAdapter{
		name:     "always-fails",
		schedule: job.Schedule{Kind: job.ScheduleKindInterval, Every: 10 * time.Millisecond},
		run: func(context.Context, adapters.Fetcher, adapters.EmitFunc) error {
			return errors.New("blocked by upstream")
		},
	}
	healthy := emittingAdapter("steady", 1)
	healthy.schedule = job.Schedule{Kind: job.ScheduleKindInterval, Every: 10 * time.Millisecond}

	if err := o.Register(job.SourceJob{Enabled: true}, failing); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Register(job.SourceJob{Enabled: true}, healthy); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(120 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	healthyRuns, err := runs.ListByJob(ctx, "steady", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	succeeded := 0
	for _, run := range healthyRuns {
		if run.Status == jobrun.StatusSucceeded {
			succeeded++
		}
	}
	if succeeded < 2 {
		t.Fatalf("healthy job starved by failing sibling: %d successful runs", succeeded)
	}
}

func TestOrchestrator_OnceScheduleRunsAtStart(t *testing.T) {
	o, runs := newTestOrchestrator(t)
	once := emittingAdapter("bootstrap", 1)
	once.schedule = job.Schedule{Kind: job.ScheduleKindOnce}

	if err := o.Register(job.SourceJob{Enabled: true}, once); err != nil {
		t.Fatalf("register: %v", err)
	}
	ctx := context.Background()
	if err := o.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := o.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	history, err := runs.ListByJob(ctx, "bootstrap", 0)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected exactly one run for once schedule, got %d", len(history))
	}
}

func TestOrchestrator_StopDeadline(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	release := make(chan struct{})
	started := make(chan struct{})
	blocking := &stubAdapter{
		name:     "slow",
		schedule: job.Schedule{Kind: job.ScheduleKindOnce},
		run: func(ctx context.Context, _ adapters.Fetcher, _ adapters.EmitFunc) error {
			close(started)
			<-release
			return nil
		},
	}
	if err := o.Register(job.SourceJob{Enabled: true}, blocking); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := o.Stop(stopCtx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected stop deadline error while run in flight, got %v", err)
	}
	close(release)
}

func TestOrchestrator_StopDrainsInFlightRun(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	release := make(chan struct{})
	started := make(chan struct{})
	var finished bool
	blocking := &stubAdapter{
		name:     "slow",
		schedule: job.Schedule{Kind: job.ScheduleKindInterval, Every: time.Hour},
		run: func(ctx context.Context, _ adapters.Fetcher, _ adapters.EmitFunc) error {
			close(started)
			<-release
			finished = true
			return nil
		},
	}
	if err := o.Register(job.SourceJob{Enabled: true}, blocking); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if _, err := o.Run(context.Background(), "slow"); err != nil {
			t.Errorf("run: %v", err)
		}
	}()
	<-started

	stopDone := make(chan error, 1)
	go func() { stopDone <- o.Stop(context.Background()) }()

	select {
	case err := <-stopDone:
		t.Fatalf("stop returned while run in flight: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	<-runDone
	if err := <-stopDone; err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !finished {
		t.Fatal("stop returned before the in-flight run finished")
	}
}

func TestOrchestrator_History(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.Register(job.SourceJob{Enabled: true}, emittingAdapter("clubsite", 1)); err != nil {
		t.Fatalf("register: %v", err)
	}

	ctx := context.Background()
	before := time.Now().Add(-time.Minute)
	if _, err := o.Run(ctx, "clubsite"); err != nil {
		t.Fatalf("run: %v", err)
	}

	history, err := o.History(ctx, "clubsite", before, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one run in range, got %d", len(history))
	}

	history, err = o.History(ctx, "clubsite", time.Now().Add(time.Hour), time.Time{})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no runs after future cutoff, got %d", len(history))
	}

	if _, err := o.History(ctx, "unknown", time.Time{}, time.Time{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOrchestrator_JobsListing(t *testing.T) {
	o, _ := newTestOrchestrator(t)
	if err := o.Register(job.SourceJob{Enabled: true, RateLimit: 2}, emittingAdapter("clubsite", 0)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := o.Register(job.SourceJob{}, emittingAdapter("leaguesite", 0)); err != nil {
		t.Fatalf("register: %v", err)
	}

	jobs := o.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Name != "clubsite" || !jobs[0].Enabled || jobs[0].RateLimit != 2 {
		t.Fatalf("unexpected first job: %+v", jobs[0])
	}
	if jobs[1].Name != "leaguesite" || jobs[1].Enabled {
		t.Fatalf("unexpected second job: %+v", jobs[1])
	}
}
