// Package headless renders pages with a scripted Chrome session via
// chromedp, for sources that only produce content under JavaScript.
package headless

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// Config controls the behavior of the headless browser.
type Config struct {
	// MaxParallel bounds concurrent tabs. Default 2.
	MaxParallel int
	// NavigationTimeout bounds one render, scrolls included. Default 45s.
	NavigationTimeout time.Duration
	// ScrollCount is how many incremental scrolls are performed to trigger
	// lazy-loaded content. Default 4.
	ScrollCount int
	// ScrollDelay is the pause between scrolls. Default 750ms.
	ScrollDelay time.Duration
	// LoadMoreSelector, when set, is clicked once per scroll if present.
	LoadMoreSelector string
	// DomainQPS rate-limits renders per domain; zero disables limiting.
	DomainQPS float64
}

func (c Config) withDefaults() Config {
	if c.MaxParallel <= 0 {
		c.MaxParallel = 2
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = 45 * time.Second
	}
	if c.ScrollCount <= 0 {
		c.ScrollCount = 4
	}
	if c.ScrollDelay <= 0 {
		c.ScrollDelay = 750 * time.Millisecond
	}
	return c
}

// Browser owns a shared Chrome allocator and renders pages on demand.
type Browser struct {
	cfg            Config
	limiter        chan struct{}
	allocator      context.Context
	allocCancel    context.CancelFunc
	domainLimiters sync.Map
}

// New launches the allocator with anti-automation signals suppressed.
func New(cfg Config) (*Browser, error) {
	cfg = cfg.withDefaults()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     make(chan struct{}, cfg.MaxParallel),
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context, tearing down Chrome.
func (b *Browser) Close() {
	b.allocCancel()
}

// Fetch navigates with a fresh tab, performs the configured scroll/"load
// more" interactions, and returns the fully rendered DOM.
func (b *Browser) Fetch(ctx context.Context, rawURL, userAgent string) (string, error) {
	if err := b.acquire(ctx); err != nil {
		return "", err
	}
	defer b.release()

	if err := b.waitDomainBudget(ctx, rawURL); err != nil {
		return "", fmt.Errorf("render rate limit: %w", err)
	}

	tabCtx, cancelTab := chromedp.NewContext(b.allocator)
	defer cancelTab()

	taskCtx, cancelTask := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancelTask()

	stopForward := forwardCancel(ctx, cancelTask)
	defer stopForward()

	var html string
	actions := []chromedp.Action{
		b.networkSetupAction(userAgent),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	actions = append(actions, b.interactionActions()...)
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (b *Browser) networkSetupAction(userAgent string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if userAgent != "" {
			if err := emulation.SetUserAgentOverride(userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// interactionActions scrolls the page in increments, optionally clicking a
// "load more" control, so lazy-loaded listings materialize.
func (b *Browser) interactionActions() []chromedp.Action {
	actions := make([]chromedp.Action, 0, b.cfg.ScrollCount*3)
	for i := 0; i < b.cfg.ScrollCount; i++ {
		actions = append(actions,
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(b.cfg.ScrollDelay),
		)
		if b.cfg.LoadMoreSelector != "" {
			actions = append(actions, clickIfPresent(b.cfg.LoadMoreSelector))
		}
	}
	return actions
}

func clickIfPresent(selector string) chromedp.Action {
	script := fmt.Sprintf(
		`(function() { const el = document.querySelector(%q); if (el) { el.click(); return true; } return false; })()`,
		selector,
	)
	return chromedp.Evaluate(script, nil)
}

func (b *Browser) acquire(ctx context.Context) error {
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("browser slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) waitDomainBudget(ctx context.Context, rawURL string) error {
	if b.cfg.DomainQPS <= 0 {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse render url: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	val, _ := b.domainLimiters.LoadOrStore(host, rate.NewLimiter(rate.Limit(b.cfg.DomainQPS), 1))
	limiter, ok := val.(*rate.Limiter)
	if !ok {
		return fmt.Errorf("unexpected limiter type %T", val)
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait limiter: %w", err)
	}
	return nil
}

func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
