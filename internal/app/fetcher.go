package app

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/oddsgrid/sportpipe/internal/adapters"
	"github.com/oddsgrid/sportpipe/internal/fetch"
	"github.com/oddsgrid/sportpipe/internal/platform/logging"
	"github.com/oddsgrid/sportpipe/internal/platform/resilience"
)

// fetchDefaults fills zero-valued request knobs before a fetch runs so
// adapters only declare what they actually care about.
type fetchDefaults struct {
	Timeout      time.Duration
	Retries      int
	BackoffBase  time.Duration
	Headless     bool
	ScrollRounds int
}

// guardedFetcher wraps the shared fetcher with per-host circuit breakers.
// Breakers are keyed by host rather than job name because several jobs can
// hammer the same site, and it is the site that degrades.
type guardedFetcher struct {
	inner    adapters.Fetcher
	breakers *resilience.BreakerGroup
	defaults fetchDefaults
	logger   *logging.Logger
}

func newGuardedFetcher(
	inner adapters.Fetcher,
	breakers *resilience.BreakerGroup,
	defaults fetchDefaults,
	logger *logging.Logger,
) *guardedFetcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &guardedFetcher{
		inner:    inner,
		breakers: breakers,
		defaults: defaults,
		logger:   logger,
	}
}

func (f *guardedFetcher) Fetch(ctx context.Context, req fetch.Request, hooks fetch.Hooks) (fetch.Outcome, error) {
	req = f.applyDefaults(req)

	host := hostOf(req.URL)
	var breaker *resilience.CircuitBreaker
	if f.breakers != nil && host != "" {
		breaker = f.breakers.Get(host)
		if err := breaker.Allow(); err != nil {
			f.logger.WarnContext(ctx, "fetch rejected by circuit breaker", "host", host, "url", req.URL)
			return fetch.Outcome{}, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
	}

	out, err := f.inner.Fetch(ctx, req, hooks)
	if breaker != nil {
		if err != nil {
			breaker.RecordFailure()
		} else {
			breaker.RecordSuccess()
		}
	}
	return out, err
}

func (f *guardedFetcher) applyDefaults(req fetch.Request) fetch.Request {
	if req.Timeout <= 0 {
		req.Timeout = f.defaults.Timeout
	}
	if req.Retries <= 0 {
		req.Retries = f.defaults.Retries
	}
	if req.BackoffBase <= 0 {
		req.BackoffBase = f.defaults.BackoffBase
	}
	if req.ScrollRounds <= 0 {
		req.ScrollRounds = f.defaults.ScrollRounds
	}
	// FETCH_HEADLESS=false forces every session headful for local
	// debugging, regardless of what the adapter asked for.
	req.Headless = req.Headless && f.defaults.Headless
	return req
}

func hostOf(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return ""
	}
	return parsed.Host
}
