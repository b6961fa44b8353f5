package fetch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/scout"
	"github.com/jobscout/jobscout/internal/snapshot"
)

// scriptedGetter plays back a sequence of canned responses, one per call.
type scriptedGetter struct {
	mu        sync.Mutex
	responses []response
	calls     int
	proxies   []string
}

type response struct {
	body string
	err  error
}

func (g *scriptedGetter) Get(_ context.Context, _ string, id Identity, _ time.Duration) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.proxies = append(g.proxies, id.Proxy)
	idx := g.calls
	g.calls++
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	r := g.responses[idx]
	return r.body, r.err
}

func (g *scriptedGetter) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type scriptedBrowser struct {
	mu    sync.Mutex
	body  string
	err   error
	calls int
}

func (b *scriptedBrowser) Fetch(context.Context, string, string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	return b.body, b.err
}

func (b *scriptedBrowser) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

var fastCfg = Config{
	MaxAttempts: 3,
	BaseDelay:   time.Millisecond,
	MaxDelay:    2 * time.Millisecond,
}

func TestFetchSucceedsFirstTry(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{{body: "<html>jobs</html>"}}}
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter))

	body, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, "<html>jobs</html>", body)
	require.Equal(t, 1, getter.callCount())
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{
		{err: errors.New("connection refused")},
		{body: "<html>jobs</html>"},
	}}
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter))

	body, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, "<html>jobs</html>", body)
	require.Equal(t, 2, getter.callCount())
}

// The attempt bound holds even under permanent failure.
func TestFetchNeverExceedsMaxAttempts(t *testing.T) {
	t.Parallel()

	for _, maxAttempts := range []int{1, 2, 3, 5} {
		getter := &scriptedGetter{responses: []response{{err: errors.New("connection refused")}}}
		cfg := fastCfg
		cfg.MaxAttempts = maxAttempts
		c := NewClient(cfg, nil, zap.NewNop(), withGetter(getter))

		_, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
		require.ErrorIs(t, err, ErrNetwork)
		require.Equal(t, maxAttempts, getter.callCount())
	}
}

func TestFetchBlockedExhaustsAndReturnsErrBlocked(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{
		{body: "<html>please verify you are human</html>"},
	}}
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter))

	_, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.ErrorIs(t, err, ErrBlocked)
	require.Equal(t, fastCfg.MaxAttempts, getter.callCount())
}

func TestFetchBlockedRotatesProxies(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{
		{body: "<html>access denied</html>"},
	}}
	pool := NewIdentityPool(nil, []string{"http://p1:8080", "http://p2:8080", "http://p3:8080"})
	c := NewClient(fastCfg, pool, zap.NewNop(), withGetter(getter))

	_, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.ErrorIs(t, err, ErrBlocked)

	// Each blocked attempt burns its proxy, so no proxy repeats.
	seen := make(map[string]bool)
	for _, p := range getter.proxies {
		require.False(t, seen[p], "proxy %s reused", p)
		seen[p] = true
	}
}

func TestFetchEscalatesToBrowserAfterThreshold(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{
		{err: errors.New("connection reset")},
	}}
	browser := &scriptedBrowser{body: "<html>rendered jobs</html>"}
	cfg := fastCfg
	cfg.MaxAttempts = 4
	cfg.BrowserThreshold = 2
	c := NewClient(cfg, nil, zap.NewNop(), withGetter(getter), WithBrowser(browser))

	body, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.NoError(t, err)
	require.Equal(t, "<html>rendered jobs</html>", body)
	require.Equal(t, 2, getter.callCount())
	require.Equal(t, 1, browser.callCount())
}

func TestFetchForceBrowserSkipsPlainPath(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{{body: "unused"}}}
	browser := &scriptedBrowser{body: "<html>rendered</html>"}
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter), WithBrowser(browser))

	body, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{ForceBrowser: true})
	require.NoError(t, err)
	require.Equal(t, "<html>rendered</html>", body)
	require.Zero(t, getter.callCount())
}

func TestFetchForceBrowserWithoutBrowserUsesPlain(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{{body: "<html>static jobs</html>"}}}
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter))

	body, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{ForceBrowser: true})
	require.NoError(t, err)
	require.Equal(t, "<html>static jobs</html>", body)
	require.Equal(t, 1, getter.callCount())
}

func TestFetchEmptyBody(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{{body: "   \n  "}}}
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter))

	_, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestFetchTimeoutClassification(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{{err: context.DeadlineExceeded}}}
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter))

	_, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestFetchCancelledContext(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{{err: errors.New("connection refused")}}}
	cfg := fastCfg
	cfg.BaseDelay = time.Minute
	c := NewClient(cfg, nil, zap.NewNop(), withGetter(getter))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Fetch(ctx, "https://a.example.com", scout.FetchOptions{})
	require.Error(t, err)
	require.LessOrEqual(t, getter.callCount(), 1)
}

func TestFetchArchivesBlockedBody(t *testing.T) {
	t.Parallel()

	getter := &scriptedGetter{responses: []response{
		{body: "<html>checking your browser</html>"},
	}}
	store := snapshot.NewMemoryStore()
	c := NewClient(fastCfg, nil, zap.NewNop(), withGetter(getter), WithSnapshots(store))

	_, err := c.Fetch(context.Background(), "https://a.example.com", scout.FetchOptions{})
	require.ErrorIs(t, err, ErrBlocked)
	require.Equal(t, 1, store.Len())
}
