package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/oddsgrid/sportpipe/internal/adapters"
	"github.com/oddsgrid/sportpipe/internal/config"
	"github.com/oddsgrid/sportpipe/internal/domain/entity"
	"github.com/oddsgrid/sportpipe/internal/domain/job"
	"github.com/oddsgrid/sportpipe/internal/domain/jobrun"
	"github.com/oddsgrid/sportpipe/internal/domain/review"
	"github.com/oddsgrid/sportpipe/internal/fetch"
	"github.com/oddsgrid/sportpipe/internal/infrastructure/repository/memory"
	"github.com/oddsgrid/sportpipe/internal/infrastructure/repository/postgres"
	"github.com/oddsgrid/sportpipe/internal/interfaces/httpapi"
	idgen "github.com/oddsgrid/sportpipe/internal/platform/id"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
	"github.com/oddsgrid/sportpipe/internal/platform/resilience"
	"github.com/oddsgrid/sportpipe/internal/usecase"
	"github.com/uptrace/opentelemetry-go-extra/otelsql"
	"github.com/uptrace/opentelemetry-go-extra/otelsqlx"
)

// Application holds the wired collector: repositories, the fetch stack,
// resolution services, the job orchestrator, and the HTTP server.
type Application struct {
	Config       config.Config
	Logger       *logging.Logger
	Orchestrator *usecase.Orchestrator
	Server       *http.Server

	db *sqlx.DB
}

func New(cfg config.Config, logger *logging.Logger) (*Application, error) {
	if logger == nil {
		logger = logging.Default()
	}

	var (
		entityRepo entity.Repository
		reviewRepo review.Repository
		runRepo    jobrun.Repository
		db         *sqlx.DB
	)
	if cfg.DBURL == "" {
		logger.Info("using in-memory repositories", "reason", "DB_URL is empty")
		entityRepo = memory.NewEntityRepository()
		reviewRepo = memory.NewReviewRepository()
		runRepo = memory.NewJobRunRepository()
	} else {
		var err error
		db, err = otelsqlx.Connect("postgres", cfg.DBURL,
			otelsql.WithDBSystem("postgresql"),
			otelsql.WithDBName(dbNameFromURL(cfg.DBURL)),
		)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		entityRepo = postgres.NewEntityRepository(db)
		reviewRepo = postgres.NewReviewRepository(db)
		runRepo = postgres.NewJobRunRepository(db)
	}

	ids := idgen.NewRandomGenerator()

	pool := fetch.NewPool(cfg.FetchMaxBrowsers)
	driver := fetch.NewChromeDriver(logger)
	fetcher := fetch.New(driver, pool, logger, fetch.WithBackoffCap(cfg.FetchBackoffCap))

	var breakers *resilience.BreakerGroup
	if cfg.FetchCircuitEnabled {
		breakers = resilience.NewBreakerGroup(resilience.BreakerConfig{
			Enabled:          true,
			FailureThreshold: cfg.FetchCircuitFailureCount,
			OpenTimeout:      cfg.FetchCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.FetchCircuitHalfOpenMaxReq,
		})
	}
	guarded := newGuardedFetcher(fetcher, breakers, fetchDefaults{
		Timeout:      cfg.FetchNavTimeout,
		Retries:      cfg.FetchRetries,
		BackoffBase:  cfg.FetchBackoffBase,
		Headless:     cfg.FetchHeadless,
		ScrollRounds: cfg.FetchScrollRounds,
	}, logger)

	resolver := usecase.NewResolutionService(entityRepo, reviewRepo, ids, usecase.ResolutionConfig{
		HighThreshold: cfg.ResolveHighThreshold,
		LowThreshold:  cfg.ResolveLowThreshold,
		Epsilon:       cfg.ResolveEpsilon,
	}, logger)
	reviewService := usecase.NewReviewService(entityRepo, reviewRepo, ids, logger)
	orchestrator := usecase.NewOrchestrator(resolver, guarded, runRepo, ids, logger)

	if err := registerJobs(orchestrator, cfg.Jobs); err != nil {
		if db != nil {
			_ = db.Close()
		}
		return nil, err
	}

	handler := httpapi.NewHandler(reviewService, orchestrator, logger)
	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      httpapi.NewRouter(handler, logger),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if server.Addr == "" {
		return nil, fmt.Errorf("http server addr cannot be empty")
	}

	return &Application{
		Config:       cfg,
		Logger:       logger,
		Orchestrator: orchestrator,
		Server:       server,
		db:           db,
	}, nil
}

// Start launches the job schedules. The HTTP server is started separately
// by the caller so it can own the listen error.
func (a *Application) Start(ctx context.Context) error {
	return a.Orchestrator.Start(ctx)
}

func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

func registerJobs(orchestrator *usecase.Orchestrator, jobs []config.JobConfig) error {
	registry := adapters.NewRegistry()
	for _, jc := range jobs {
		adapter, err := buildAdapter(jc)
		if err != nil {
			return err
		}
		if err := registry.Register(adapter); err != nil {
			return fmt.Errorf("register adapter for job %s: %w", jc.Name, err)
		}

		spec := job.SourceJob{
			Name:        jc.Name,
			Adapter:     jc.Adapter,
			Concurrency: jc.Concurrency,
			RateLimit:   jc.RateLimit,
			Enabled:     jc.Enabled,
		}
		switch {
		case jc.Once:
			spec.Schedule = job.Schedule{Kind: job.ScheduleKindOnce}
		case jc.Every > 0:
			spec.Schedule = job.Schedule{Kind: job.ScheduleKindInterval, Every: jc.Every}
		case jc.CronExpr != "":
			spec.Schedule = job.Schedule{Kind: job.ScheduleKindCron, Expr: jc.CronExpr}
		}

		if err := orchestrator.Register(spec, adapter); err != nil {
			return fmt.Errorf("register job %s: %w", jc.Name, err)
		}
	}
	return nil
}

func buildAdapter(jc config.JobConfig) (adapters.Adapter, error) {
	switch jc.Adapter {
	case "squadlist":
		return adapters.NewSquadListAdapter(jc.Name, jc.URL), nil
	case "matchevents":
		return adapters.NewMatchEventsAdapter(jc.Name, jc.URL), nil
	default:
		return nil, fmt.Errorf("unknown adapter %q for job %s", jc.Adapter, jc.Name)
	}
}
