package fetch

import (
	"context"
	"time"
)

// SessionConfig carries the per-attempt browser parameters. Hooks are
// installed before the session subscribes to browser events, so they see
// the full exchange stream including startup traffic.
type SessionConfig struct {
	Profile  Profile
	Headless bool
	Timeout  time.Duration
	Hooks    Hooks
}

// Driver creates browser sessions. Production uses the chromedp driver;
// tests plug in fakes.
type Driver interface {
	NewSession(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Session is one browser page lifecycle.
type Session interface {
	Navigate(ctx context.Context, url string) error
	WaitReady(ctx context.Context, ready Readiness) error
	DismissConsent(ctx context.Context) error
	Scroll(ctx context.Context, rounds int) error
	HTML(ctx context.Context) (string, error)
	Exchanges() []NetworkExchange
	Console() []ConsoleMessage
	Close() error
}
