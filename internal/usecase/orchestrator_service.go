package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/robfig/cron/v3"
	"github.com/sourcegraph/conc/panics"
	"golang.org/x/time/rate"

	"github.com/oddsgrid/sportpipe/internal/adapters"
	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/jobrun"
	"github.com/oddsgrid/sportpipe/internal/domain/record"
	"github.com/oddsgrid/sportpipe/internal/fetch"
	"github.com/oddsgrid/sportpipe/internal/platform/id"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
)

// managedJob is one registered job with its runtime state.
type managedJob struct {
	spec    job.SourceJob
	adapter adapters.Adapter
	limiter *rate.Limiter
	// slots bounds overlapping runs of this job; size = Concurrency.
	slots chan struct{}
}

// JobStatus is the externally visible state of a registered job.
type JobStatus struct {
	Name        string
	Adapter     string
	Schedule    job.Schedule
	Concurrency int
	RateLimit   float64
	Enabled     bool
	Running     int
}

// Orchestrator owns registered source jobs, runs them on independent
// schedules, and streams emitted records into the resolver. Jobs are fully
// isolated: one failing or slow job never delays another's schedule.
type Orchestrator struct {
	resolver *ResolutionService
	fetcher  adapters.Fetcher
	runs     jobrun.Repository
	ids      id.Generator
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	jobs    map[string]*managedJob
	started bool
	stopCh  chan struct{}
	cron    *cron.Cron

	inflight sync.WaitGroup
}

func NewOrchestrator(
	resolver *ResolutionService,
	fetcher adapters.Fetcher,
	runs jobrun.Repository,
	ids id.Generator,
	logger *logging.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}

	return &Orchestrator{
		resolver: resolver,
		fetcher:  fetcher,
		runs:     runs,
		ids:      ids,
		logger:   logger,
		now:      time.Now,
		jobs:     make(map[string]*managedJob),
		stopCh:   make(chan struct{}),
	}
}

// Register adds a job before Start. A zero-valued schedule falls back to
// the adapter's default. Cron expressions are validated here so bad config
// fails at startup, not at the first tick.
func (o *Orchestrator) Register(spec job.SourceJob, adapter adapters.Adapter) error {
	if adapter == nil {
		return fmt.Errorf("%w: adapter is required", ErrInvalidInput)
	}
	if spec.Name == "" {
		spec.Name = adapter.Name()
	}
	if spec.Adapter == "" {
		spec.Adapter = adapter.Name()
	}
	if spec.Schedule == (job.Schedule{}) {
		spec.Schedule = adapter.DefaultSchedule()
	}
	if spec.Concurrency < 1 {
		spec.Concurrency = 1
	}
	if err := spec.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if spec.Schedule.Kind == job.ScheduleKindCron {
		if _, err := cron.ParseStandard(spec.Schedule.Expr); err != nil {
			return fmt.Errorf("%w: job %s: parse cron expression: %v", ErrInvalidInput, spec.Name, err)
		}
	}

	mj := &managedJob{
		spec:    spec,
		adapter: adapter,
		slots:   make(chan struct{}, spec.Concurrency),
	}
	if spec.RateLimit > 0 {
		burst := int(spec.RateLimit)
		if burst < 1 {
			burst = 1
		}
		mj.limiter = rate.NewLimiter(rate.Limit(spec.RateLimit), burst)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.started {
		return fmt.Errorf("%w: orchestrator already started", ErrInvalidInput)
	}
	if _, exists := o.jobs[spec.Name]; exists {
		return fmt.Errorf("%w: job %s already registered", ErrInvalidInput, spec.Name)
	}
	o.jobs[spec.Name] = mj

	return nil
}

// Run executes one job immediately. An overlapping run past the job's
// concurrency cap is skipped, not queued.
func (o *Orchestrator) Run(ctx context.Context, name string) (jobrun.Run, error) {
	ctx, span := startUsecaseSpan(ctx, "Orchestrator.Run")
	defer span.End()

	o.mu.Lock()
	mj, ok := o.jobs[name]
	o.mu.Unlock()
	if !ok {
		return jobrun.Run{}, fmt.Errorf("%w: job %s", ErrNotFound, name)
	}

	return o.execute(ctx, mj), nil
}

// RunAll executes the named jobs (all registered jobs when names is empty)
// on a bounded worker pool and returns their runs, used for manual and
// bootstrap collection sweeps.
func (o *Orchestrator) RunAll(ctx context.Context, names []string, workers int) ([]jobrun.Run, error) {
	ctx, span := startUsecaseSpan(ctx, "Orchestrator.RunAll")
	defer span.End()

	if len(names) == 0 {
		names = o.jobNames()
	}
	if len(names) == 0 {
		return nil, nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(names) {
		workers = len(names)
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	defer pool.Release()

	results := make(chan jobrun.Run, len(names))
	var wg sync.WaitGroup
	for _, name := range names {
		name := name
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			run, err := o.Run(ctx, name)
			if err != nil {
				o.logger.ErrorContext(ctx, "manual job run failed",
					"job", name,
					"error", err,
				)
				return
			}
			results <- run
		}); err != nil {
			wg.Done()
			return nil, fmt.Errorf("submit job to worker pool: %w", err)
		}
	}

	wg.Wait()
	close(results)

	runs := make([]jobrun.Run, 0, len(names))
	for run := range results {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].JobName < runs[j].JobName })

	return runs, nil
}

// Start begins scheduling every enabled job. Interval jobs get their own
// ticker goroutine, cron jobs share one cron runner, once jobs run
// immediately.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("%w: orchestrator already started", ErrInvalidInput)
	}
	o.started = true
	o.cron = cron.New()
	jobs := make([]*managedJob, 0, len(o.jobs))
	for _, mj := range o.jobs {
		jobs = append(jobs, mj)
	}
	o.mu.Unlock()

	for _, mj := range jobs {
		if !mj.spec.Enabled {
			o.logger.Info("job disabled, not scheduling", "job", mj.spec.Name)
			continue
		}

		mj := mj
		switch mj.spec.Schedule.Kind {
		case job.ScheduleKindInterval:
			go o.runInterval(ctx, mj)
		case job.ScheduleKindCron:
			if _, err := o.cron.AddFunc(mj.spec.Schedule.Expr, func() {
				o.scheduledRun(ctx, mj)
			}); err != nil {
				return fmt.Errorf("schedule cron job %s: %w", mj.spec.Name, err)
			}
		case job.ScheduleKindOnce:
			go o.scheduledRun(ctx, mj)
		}

		o.logger.Info("job scheduled",
			"job", mj.spec.Name,
			"kind", string(mj.spec.Schedule.Kind),
			"every", mj.spec.Schedule.Every,
			"expr", mj.spec.Schedule.Expr,
		)
	}

	o.cron.Start()
	return nil
}

// Stop halts scheduling and waits for in-flight runs until ctx expires.
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	select {
	case <-o.stopCh:
	default:
		close(o.stopCh)
	}
	cronRunner := o.cron
	o.mu.Unlock()

	if cronRunner != nil {
		cronRunner.Stop()
	}

	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop orchestrator: %w", ctx.Err())
	}
}

// History returns the job's runs within [from, to]; zero bounds are open.
func (o *Orchestrator) History(ctx context.Context, jobName string, from, to time.Time) ([]jobrun.Run, error) {
	ctx, span := startUsecaseSpan(ctx, "Orchestrator.History")
	defer span.End()

	o.mu.Lock()
	_, ok := o.jobs[jobName]
	o.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobName)
	}

	runs, err := o.runs.ListByJob(ctx, jobName, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: list job runs: %v", ErrDependencyUnavailable, err)
	}

	out := make([]jobrun.Run, 0, len(runs))
	for _, run := range runs {
		if !from.IsZero() && run.StartedAt.Before(from) {
			continue
		}
		if !to.IsZero() && run.StartedAt.After(to) {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

// Jobs lists registered jobs and their current run counts.
func (o *Orchestrator) Jobs() []JobStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]JobStatus, 0, len(o.jobs))
	for _, mj := range o.jobs {
		out = append(out, JobStatus{
			Name:        mj.spec.Name,
			Adapter:     mj.spec.Adapter,
			Schedule:    mj.spec.Schedule,
			Concurrency: mj.spec.Concurrency,
			RateLimit:   mj.spec.RateLimit,
			Enabled:     mj.spec.Enabled,
			Running:     len(mj.slots),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (o *Orchestrator) jobNames() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	names := make([]string, 0, len(o.jobs))
	for name := range o.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (o *Orchestrator) runInterval(ctx context.Context, mj *managedJob) {
	ticker := time.NewTicker(mj.spec.Schedule.Every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			o.scheduledRun(ctx, mj)
		case <-o.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (o *Orchestrator) scheduledRun(ctx context.Context, mj *managedJob) {
	run := o.execute(ctx, mj)
	if run.Status == jobrun.StatusFailed {
		o.logger.WarnContext(ctx, "scheduled run failed",
			"job", mj.spec.Name,
			"run_id", run.ID,
			"error", run.Error,
		)
	}
}

// execute performs one run of the job. Every failure mode, adapter error,
// adapter panic, resolver unavailability, ends in a failed run record and
// never escapes to the caller's scheduling loop.
func (o *Orchestrator) execute(ctx context.Context, mj *managedJob) jobrun.Run {
	// Register before taking a slot so Stop's drain sees the run from its
	// first instruction.
	o.inflight.Add(1)
	defer o.inflight.Done()

	select {
	case mj.slots <- struct{}{}:
	default:
		o.logger.Info("overlapping run skipped",
			"job", mj.spec.Name,
			"concurrency", mj.spec.Concurrency,
		)
		return jobrun.Run{JobName: mj.spec.Name, Status: jobrun.StatusSkipped, StartedAt: o.now()}
	}
	defer func() { <-mj.slots }()

	runID, err := o.ids.NewID()
	if err != nil {
		o.logger.ErrorContext(ctx, "generate run id failed", "job", mj.spec.Name, "error", err)
		return jobrun.Run{JobName: mj.spec.Name, Status: jobrun.StatusFailed, Error: err.Error()}
	}

	run := jobrun.Run{
		ID:        runID,
		JobName:   mj.spec.Name,
		Status:    jobrun.StatusRunning,
		StartedAt: o.now(),
	}
	if err := o.runs.Create(ctx, run); err != nil {
		o.logger.ErrorContext(ctx, "persist run start failed", "job", mj.spec.Name, "error", err)
	}

	fetcher := o.fetcher
	if mj.limiter != nil {
		fetcher = &ratedFetcher{inner: o.fetcher, limiter: mj.limiter}
	}

	emit := func(rec record.NormalizedRecord) error {
		run.RecordsSeen++
		res, err := o.resolver.Resolve(ctx, rec)
		if err != nil {
			// Record-level failures do not abort the run; partial
			// progress already persisted stays.
			run.Failed++
			o.logger.WarnContext(ctx, "record resolution failed",
				"job", mj.spec.Name,
				"source", rec.Source,
				"external_id", rec.ExternalID,
				"error", err,
			)
			return nil
		}
		switch res.Outcome {
		case OutcomeMatched:
			run.Matched++
		case OutcomeCreated:
			run.Created++
		case OutcomeQueued:
			run.Queued++
		}
		return nil
	}

	var runErr error
	var catcher panics.Catcher
	catcher.Try(func() {
		runErr = mj.adapter.Run(ctx, fetcher, emit)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		runErr = fmt.Errorf("adapter panic: %w", recovered.AsError())
	}

	run.FinishedAt = o.now()
	if runErr != nil {
		run.Status = jobrun.StatusFailed
		run.Error = runErr.Error()
		o.logger.ErrorContext(ctx, "job run failed",
			"job", mj.spec.Name,
			"run_id", run.ID,
			"records_seen", run.RecordsSeen,
			"error", runErr,
		)
	} else {
		run.Status = jobrun.StatusSucceeded
		o.logger.InfoContext(ctx, "job run finished",
			"job", mj.spec.Name,
			"run_id", run.ID,
			"records_seen", run.RecordsSeen,
			"matched", run.Matched,
			"created", run.Created,
			"queued", run.Queued,
			"failed", run.Failed,
		)
	}

	if err := o.runs.Update(ctx, run); err != nil {
		o.logger.ErrorContext(ctx, "persist run result failed", "job", mj.spec.Name, "error", err)
	}

	return run
}

// ratedFetcher gates fetches through the job's token bucket before hitting
// the shared fetch layer.
type ratedFetcher struct {
	inner   adapters.Fetcher
	limiter *rate.Limiter
}

func (f *ratedFetcher) Fetch(ctx context.Context, req fetch.Request, hooks fetch.Hooks) (fetch.Outcome, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return fetch.Outcome{}, fmt.Errorf("rate limit wait: %w", err)
	}
	return f.inner.Fetch(ctx, req, hooks)
}
