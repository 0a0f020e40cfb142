package fetch

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/oddsgrid/sportpipe/internal/platform/logging"
)

const defaultBackoffCap = 30 * time.Second

// Fetcher runs the retry loop around a browser driver. Stateless per call;
// safe for concurrent use.
type Fetcher struct {
	driver Driver
	pool   *Pool
	logger *logging.Logger

	backoffCap time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
	jitter     func(base time.Duration) time.Duration
	now        func() time.Time
}

type Option func(*Fetcher)

func WithBackoffCap(cap time.Duration) Option {
	return func(f *Fetcher) {
		if cap > 0 {
			f.backoffCap = cap
		}
	}
}

// WithSleep replaces the inter-attempt sleep. Test use.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(f *Fetcher) { f.sleep = sleep }
}

// WithJitter replaces the jitter source. Test use.
func WithJitter(jitter func(base time.Duration) time.Duration) Option {
	return func(f *Fetcher) { f.jitter = jitter }
}

func New(driver Driver, pool *Pool, logger *logging.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = logging.Default()
	}
	if pool == nil {
		pool = NewPool(1)
	}

	f := &Fetcher{
		driver:     driver,
		pool:       pool,
		logger:     logger,
		backoffCap: defaultBackoffCap,
		sleep:      sleepContext,
		jitter:     defaultJitter,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch navigates to req.URL and returns the rendered outcome, retrying per
// attempt with capped exponential backoff. After the last failed attempt it
// returns ErrExhausted wrapping the last error.
func (f *Fetcher) Fetch(ctx context.Context, req Request, hooks Hooks) (Outcome, error) {
	if err := req.Validate(); err != nil {
		return Outcome{}, err
	}

	attempts := req.attempts()
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Outcome{}, fmt.Errorf("fetch %s: %w", req.URL, err)
		}

		profile := req.Profile
		if req.Profiles != nil {
			profile = req.Profiles.Next()
		}

		out, err := f.attempt(ctx, req, profile, hooks, attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if hooks.OnError != nil {
			hooks.OnError(err, attempt)
		}
		f.logger.WarnContext(ctx, "fetch attempt failed",
			"url", req.URL,
			"attempt", attempt,
			"attempts", attempts,
			"error", err,
		)

		if attempt == attempts {
			break
		}

		delay := backoffDelay(req.BackoffBase, attempt, f.backoffCap)
		if delay > 0 {
			delay += f.jitter(delay)
		}
		if err := f.sleep(ctx, delay); err != nil {
			return Outcome{}, fmt.Errorf("fetch %s: %w", req.URL, err)
		}
	}

	return Outcome{}, fmt.Errorf("%w: url=%s attempts=%d: %w", ErrExhausted, req.URL, attempts, lastErr)
}

func (f *Fetcher) attempt(ctx context.Context, req Request, profile Profile, hooks Hooks, attempt int) (Outcome, error) {
	started := f.now()

	lease, err := f.pool.Acquire(ctx)
	if err != nil {
		return Outcome{}, err
	}
	defer lease.Release()

	attemptCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	sess, err := f.driver.NewSession(attemptCtx, SessionConfig{
		Profile:  profile,
		Headless: req.Headless,
		Timeout:  req.Timeout,
		Hooks:    hooks,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: new session: %w", errTransient, err)
	}
	defer sess.Close()

	if err := sess.Navigate(attemptCtx, req.URL); err != nil {
		return Outcome{}, fmt.Errorf("%w: navigate: %w", errTransient, err)
	}
	if err := sess.WaitReady(attemptCtx, req.Readiness); err != nil {
		return Outcome{}, fmt.Errorf("%w: wait ready: %w", errTransient, err)
	}
	if hooks.OnReady != nil {
		hooks.OnReady()
	}

	if req.HandleConsent {
		if err := sess.DismissConsent(attemptCtx); err != nil {
			// Consent dismissal is best-effort and never fails the call.
			f.logger.DebugContext(attemptCtx, "consent dismissal failed",
				"url", req.URL,
				"error", err,
			)
		}
	}

	if req.ScrollRounds > 0 {
		if err := sess.Scroll(attemptCtx, req.ScrollRounds); err != nil {
			return Outcome{}, fmt.Errorf("%w: scroll: %w", errTransient, err)
		}
	}

	html, err := sess.HTML(attemptCtx)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: capture html: %w", errTransient, err)
	}

	out := Outcome{
		HTML:      html,
		Exchanges: sess.Exchanges(),
		Console:   sess.Console(),
		Meta: map[string]any{
			"attempt":     attempt,
			"user_agent":  profile.UserAgent,
			"duration_ms": f.now().Sub(started).Milliseconds(),
		},
	}
	if hooks.PreReturn != nil {
		hooks.PreReturn(&out)
	}

	return out, nil
}

func backoffDelay(base time.Duration, attempt int, cap time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

func defaultJitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int64N(int64(base)/4 + 1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
