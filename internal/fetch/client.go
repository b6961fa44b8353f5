// Package fetch implements the resilient retrieval layer shared by all
// source extractors: bounded retries with jittered backoff, identity
// rotation, block detection, and escalation to a scripted browser session.
package fetch

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"net"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/scout"
)

// Browser renders a page in a scripted headless session and returns the
// fully rendered DOM. Strictly more expensive than the plain path.
type Browser interface {
	Fetch(ctx context.Context, rawURL, userAgent string) (string, error)
}

// Config controls Client retry and escalation behavior.
type Config struct {
	// MaxAttempts bounds attempts for one logical fetch. Default 3.
	MaxAttempts int
	// BaseDelay seeds the exponential backoff. Default 500ms.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Default 10s.
	MaxDelay time.Duration
	// RequestTimeout bounds each plain attempt. Default 15s.
	RequestTimeout time.Duration
	// BrowserThreshold is how many plain-path failures trigger escalation
	// to the browser when one is available. Default 2.
	BrowserThreshold int
	// SnapshotPrefix namespaces archived failure bodies.
	SnapshotPrefix string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 15 * time.Second
	}
	if c.BrowserThreshold <= 0 {
		c.BrowserThreshold = 2
	}
	if c.SnapshotPrefix == "" {
		c.SnapshotPrefix = "failures"
	}
	return c
}

// Client implements scout.Fetcher. Identity state is serialized internally,
// so a single Client is safe for concurrent callers within a run.
type Client struct {
	cfg        Config
	identities *IdentityPool
	detector   *RenderDetector
	browser    Browser
	getter     pageGetter
	snapshots  scout.BlobStore
	logger     *zap.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithBrowser enables the headless fallback path.
func WithBrowser(b Browser) Option {
	return func(c *Client) { c.browser = b }
}

// WithDetector enables JS-shell detection on the plain path.
func WithDetector(d *RenderDetector) Option {
	return func(c *Client) { c.detector = d }
}

// WithSnapshots archives the last body seen for fetches that end blocked,
// as a debugging aid. Archive failures are logged and ignored.
func WithSnapshots(store scout.BlobStore) Option {
	return func(c *Client) { c.snapshots = store }
}

func withGetter(g pageGetter) Option {
	return func(c *Client) { c.getter = g }
}

// NewClient constructs a Client drawing identities from the given pool.
func NewClient(cfg Config, identities *IdentityPool, logger *zap.Logger, opts ...Option) *Client {
	if identities == nil {
		identities = NewIdentityPool(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:        cfg.withDefaults(),
		identities: identities,
		getter:     &collyGetter{},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves rawURL, retrying on network errors, timeouts, and
// detected blocking. After exhausting retries it returns one of the typed
// errors (ErrBlocked, ErrTimeout, ErrNetwork, ErrEmptyResponse).
func (c *Client) Fetch(ctx context.Context, rawURL string, opts scout.FetchOptions) (string, error) {
	useBrowser := opts.ForceBrowser && c.browser != nil
	plainFailures := 0

	var (
		lastErr  error
		lastBody string
	)
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			scout.FetchRetries.Inc()
			if err := c.sleep(ctx, c.backoff(attempt-1)); err != nil {
				return "", c.finalError(lastErr)
			}
		}

		id := c.identities.Next()
		body, err := c.attempt(ctx, rawURL, id, useBrowser)
		if err != nil {
			if ctx.Err() != nil {
				return "", c.finalError(err)
			}
			lastErr = err
			c.logger.Debug("fetch attempt failed",
				zap.String("url", rawURL),
				zap.Int("attempt", attempt+1),
				zap.Bool("browser", useBrowser),
				zap.Error(err),
			)
			if id.Proxy != "" && isConnectionError(err) {
				c.identities.MarkBad(id.Proxy)
			}
			if !useBrowser {
				plainFailures++
				useBrowser = c.maybeEscalate(plainFailures)
			}
			continue
		}

		if marker := BlockIndicator(body); marker != "" {
			scout.FetchBlocks.Inc()
			lastErr = fmt.Errorf("%w: matched %q", ErrBlocked, marker)
			lastBody = body
			c.logger.Debug("fetch blocked, rotating identity",
				zap.String("url", rawURL),
				zap.String("marker", marker),
				zap.Int("attempt", attempt+1),
			)
			c.identities.MarkBad(id.Proxy)
			if !useBrowser {
				plainFailures++
				useBrowser = c.maybeEscalate(plainFailures)
			}
			continue
		}

		if !useBrowser && c.browser != nil && c.detector.NeedsBrowser(body) {
			useBrowser = true
			scout.BrowserEscalations.Inc()
			lastErr = fmt.Errorf("%w: content requires rendering", ErrEmptyResponse)
			lastBody = body
			continue
		}

		if strings.TrimSpace(body) == "" {
			return "", fmt.Errorf("fetch %s: %w", rawURL, ErrEmptyResponse)
		}
		return body, nil
	}

	c.archive(ctx, rawURL, lastBody)
	return "", c.finalError(lastErr)
}

func (c *Client) attempt(ctx context.Context, rawURL string, id Identity, useBrowser bool) (string, error) {
	if useBrowser {
		scout.FetchAttempts.WithLabelValues("browser").Inc()
		return c.browser.Fetch(ctx, rawURL, id.UserAgent)
	}
	scout.FetchAttempts.WithLabelValues("plain").Inc()
	return c.getter.Get(ctx, rawURL, id, c.cfg.RequestTimeout)
}

func (c *Client) maybeEscalate(plainFailures int) bool {
	if c.browser == nil || plainFailures < c.cfg.BrowserThreshold {
		return false
	}
	scout.BrowserEscalations.Inc()
	return true
}

// backoff returns base × 2^attempt capped at MaxDelay, half of it fixed and
// half jittered.
func (c *Client) backoff(attempt int) time.Duration {
	delay := float64(c.cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if delay > float64(c.cfg.MaxDelay) {
		delay = float64(c.cfg.MaxDelay)
	}
	half := time.Duration(delay / 2)
	return half + randomJitter(half)
}

func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) finalError(lastErr error) error {
	switch {
	case lastErr == nil:
		return ErrNetwork
	case errors.Is(lastErr, ErrBlocked),
		errors.Is(lastErr, ErrEmptyResponse):
		return lastErr
	case errors.Is(lastErr, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, lastErr)
	}
	var netErr net.Error
	if errors.As(lastErr, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, lastErr)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, lastErr)
}

func (c *Client) archive(ctx context.Context, rawURL, body string) {
	if c.snapshots == nil || body == "" {
		return
	}
	path := fmt.Sprintf("%s/%s/%d.html", c.cfg.SnapshotPrefix, hostOf(rawURL), time.Now().UnixNano())
	if _, err := c.snapshots.PutObject(ctx, path, "text/html; charset=utf-8", []byte(body)); err != nil {
		c.logger.Warn("snapshot archive failed", zap.String("url", rawURL), zap.Error(err))
	}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func isConnectionError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"proxyconnect",
		"no such host",
		"i/o timeout",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	bound := big.NewInt(int64(limit))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
