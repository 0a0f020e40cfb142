package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	cdplog "github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/valyala/bytebufferpool"

	"github.com/oddsgrid/sportpipe/internal/platform/logging"
)

const (
	defaultSettle = 2 * time.Second
	scrollSettle  = 750 * time.Millisecond
)

// consentSelectors are tried in order before falling back to a text scan
// over visible buttons.
var consentSelectors = []string{
	"#onetrust-accept-btn-handler",
	"#didomi-notice-agree-button",
	".fc-cta-consent",
	"button[data-testid='uc-accept-all-button']",
	"button[mode='primary']",
}

var consentButtonWords = []string{"accept", "agree", "allow all", "i understand", "got it"}

// ChromeDriver renders pages in headless Chrome through chromedp.
type ChromeDriver struct {
	logger *logging.Logger
}

func NewChromeDriver(logger *logging.Logger) *ChromeDriver {
	if logger == nil {
		logger = logging.Default()
	}
	return &ChromeDriver{logger: logger}
}

func (d *ChromeDriver) NewSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.Profile.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.Profile.UserAgent))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	sess := &chromeSession{
		ctx:    browserCtx,
		logger: d.logger,
		hooks:  cfg.Hooks,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		sess.Close()
		return nil, fmt.Errorf("enable network domain: %w", err)
	}
	if err := chromedp.Run(browserCtx, cdplog.Enable()); err != nil {
		d.logger.WarnContext(ctx, "enable log domain failed", "error", err)
	}

	var actions []chromedp.Action
	if cfg.Profile.ViewportWidth > 0 && cfg.Profile.ViewportHeight > 0 {
		actions = append(actions, chromedp.EmulateViewport(cfg.Profile.ViewportWidth, cfg.Profile.ViewportHeight))
	}
	if len(cfg.Profile.Headers) > 0 {
		headers := make(network.Headers, len(cfg.Profile.Headers))
		for k, v := range cfg.Profile.Headers {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if len(actions) > 0 {
		if err := chromedp.Run(browserCtx, actions...); err != nil {
			sess.Close()
			return nil, fmt.Errorf("apply spoofing profile: %w", err)
		}
	}

	sess.listen()

	return sess, nil
}

type chromeSession struct {
	ctx    context.Context
	cancel func()
	logger *logging.Logger

	// hooks is set before listen subscribes and never written after, so the
	// event goroutine reads it without a lock.
	hooks Hooks

	mu        sync.Mutex
	exchanges []NetworkExchange
	console   []ConsoleMessage
}

// listen subscribes to CDP events once per session. Callbacks run on
// chromedp's target event-loop goroutine, so the accumulators are
// mutex-guarded against the fetch goroutine's reads.
func (s *chromeSession) listen() {
	chromedp.ListenTarget(s.ctx, func(ev any) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			if s.hooks.OnRequest != nil {
				s.hooks.OnRequest(ev.Request.URL)
			}
		case *network.EventResponseReceived:
			ex := NetworkExchange{
				URL:         ev.Response.URL,
				Status:      int(ev.Response.Status),
				ContentType: ev.Response.MimeType,
			}
			s.mu.Lock()
			s.exchanges = append(s.exchanges, ex)
			s.mu.Unlock()
			if s.hooks.OnResponse != nil {
				s.hooks.OnResponse(ex)
			}
		case *cdplog.EventEntryAdded:
			msg := ConsoleMessage{
				Level: ev.Entry.Level.String(),
				Text:  ev.Entry.Text,
			}
			s.mu.Lock()
			s.console = append(s.console, msg)
			s.mu.Unlock()
			if s.hooks.OnConsole != nil {
				s.hooks.OnConsole(msg)
			}
		}
	})
}

func (s *chromeSession) Navigate(ctx context.Context, url string) error {
	if err := chromedp.Run(s.ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *chromeSession) WaitReady(ctx context.Context, ready Readiness) error {
	switch {
	case ready.WaitSelector != "":
		return chromedp.Run(s.ctx, chromedp.WaitVisible(ready.WaitSelector, chromedp.ByQuery))
	case ready.WaitTextContains != "":
		var seen bool
		expr := fmt.Sprintf("document.body && document.body.innerText.includes(%q)", ready.WaitTextContains)
		return chromedp.Run(s.ctx, chromedp.Poll(expr, &seen))
	case ready.WaitSettle > 0:
		return chromedp.Run(s.ctx, chromedp.Sleep(ready.WaitSettle))
	default:
		return chromedp.Run(s.ctx,
			chromedp.WaitReady("body", chromedp.ByQuery),
			chromedp.Sleep(defaultSettle),
		)
	}
}

func (s *chromeSession) DismissConsent(ctx context.Context) error {
	var clicked bool
	if err := chromedp.Run(s.ctx, chromedp.Evaluate(consentScript(), &clicked)); err != nil {
		return fmt.Errorf("consent script: %w", err)
	}
	if clicked {
		s.logger.DebugContext(ctx, "consent dialog dismissed")
		return chromedp.Run(s.ctx, chromedp.Sleep(scrollSettle))
	}
	return nil
}

func (s *chromeSession) Scroll(ctx context.Context, rounds int) error {
	for i := 0; i < rounds; i++ {
		err := chromedp.Run(s.ctx,
			chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil),
			chromedp.Sleep(scrollSettle),
		)
		if err != nil {
			return fmt.Errorf("scroll round %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(s.ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", fmt.Errorf("capture outer html: %w", err)
	}
	if html == "" {
		return "", fmt.Errorf("empty html content returned")
	}
	return html, nil
}

func (s *chromeSession) Exchanges() []NetworkExchange {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]NetworkExchange, len(s.exchanges))
	copy(out, s.exchanges)
	return out
}

func (s *chromeSession) Console() []ConsoleMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ConsoleMessage, len(s.console))
	copy(out, s.console)
	return out
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

// consentScript clicks the first matching consent button and reports
// whether anything was clicked.
func consentScript() string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	buf.WriteString("(() => {\n")
	buf.WriteString("  const selectors = [")
	for i, sel := range consentSelectors {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(buf, "%q", sel)
	}
	buf.WriteString("];\n")
	buf.WriteString("  for (const sel of selectors) {\n")
	buf.WriteString("    const el = document.querySelector(sel);\n")
	buf.WriteString("    if (el) { el.click(); return true; }\n")
	buf.WriteString("  }\n")
	buf.WriteString("  const words = [")
	for i, w := range consentButtonWords {
		if i > 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(buf, "%q", w)
	}
	buf.WriteString("];\n")
	buf.WriteString("  for (const btn of document.querySelectorAll('button, [role=\"button\"]')) {\n")
	buf.WriteString("    const text = (btn.innerText || '').trim().toLowerCase();\n")
	buf.WriteString("    if (words.some(w => text.includes(w))) { btn.click(); return true; }\n")
	buf.WriteString("  }\n")
	buf.WriteString("  return false;\n")
	buf.WriteString("})()")

	return buf.String()
}
