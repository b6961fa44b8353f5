package run

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/fetch"
	"github.com/jobscout/jobscout/internal/persist"
	"github.com/jobscout/jobscout/internal/scout"
	"github.com/jobscout/jobscout/internal/source"
	"github.com/jobscout/jobscout/internal/store/memory"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n), nil
}

// fakeFetcher returns the body registered for a URL, or a default error.
// failFirst makes the first N calls fail regardless of registered bodies.
type fakeFetcher struct {
	mu        sync.Mutex
	bodies    map[string]string
	err       error
	failFirst int
	calls     []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, _ scout.FetchOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)
	if f.failFirst > 0 {
		f.failFirst--
		return "", fetch.ErrNetwork
	}
	if body, ok := f.bodies[rawURL]; ok {
		return body, nil
	}
	if f.err != nil {
		return "", f.err
	}
	return "", fetch.ErrNetwork
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// listExtractor yields a fixed candidate list from a single search URL.
type listExtractor struct {
	id         string
	api        bool
	candidates []scout.Candidate
}

func (e listExtractor) ID() string { return e.id }

func (e listExtractor) SearchURLs(keyword string) []string {
	return []string{"https://" + e.id + ".example.com/search?q=" + keyword}
}

func (e listExtractor) Extract(content string) []scout.Candidate {
	if content == "" {
		return nil
	}
	return e.candidates
}

func (e listExtractor) RequiresBrowser() bool { return false }
func (e listExtractor) APIBacked() bool       { return e.api }

type harness struct {
	coordinator *Coordinator
	jobs        *memory.JobStore
	runs        *memory.RunStore
	fetcher     *fakeFetcher
	clock       fakeClock
}

func newHarness(t *testing.T, extractors ...scout.Extractor) *harness {
	t.Helper()

	jobs := memory.NewJobStore()
	runs := memory.NewRunStore()
	clock := fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	persister := persist.New(jobs, clock, &seqIDs{}, zap.NewNop())

	registry := source.NewRegistry()
	for _, ex := range extractors {
		require.NoError(t, registry.Register(ex))
	}

	fetcher := &fakeFetcher{bodies: make(map[string]string)}
	coordinator, err := NewCoordinator(
		func() scout.Fetcher { return fetcher },
		registry,
		persister,
		runs,
		nil, nil, nil,
		clock,
		zap.NewNop(),
		Config{MaxWorkers: 2, SourceTimeout: 5 * time.Second},
	)
	require.NoError(t, err)

	return &harness{
		coordinator: coordinator,
		jobs:        jobs,
		runs:        runs,
		fetcher:     fetcher,
		clock:       clock,
	}
}

func (h *harness) createRun(t *testing.T, runID string, spec scout.SearchSpec) {
	t.Helper()
	require.NoError(t, h.runs.Create(context.Background(), scout.Run{
		ID:        runID,
		Status:    scout.RunStatusPending,
		Spec:      spec,
		Submitted: h.clock.now,
	}))
}

func candidate(n int) scout.Candidate {
	return scout.Candidate{
		Title:    fmt.Sprintf("Go Engineer %d", n),
		Company:  "Acme",
		Link:     fmt.Sprintf("https://jobs.example.com/%d", n),
		SourceID: "src",
	}
}

func TestExecuteSavesAndCompletes(t *testing.T) {
	t.Parallel()

	ex := listExtractor{id: "src", api: true, candidates: []scout.Candidate{candidate(1), candidate(2)}}
	h := newHarness(t, ex)
	h.fetcher.bodies["https://src.example.com/search?q=go"] = "page"

	spec := scout.SearchSpec{Keywords: []string{"go"}}
	h.createRun(t, "run-1", spec)
	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusCompleted, run.Status)
	require.Equal(t, 2, run.Counters.JobsSaved)
	require.Equal(t, 1, run.Counters.SourcesSucceeded)
	require.Zero(t, run.Counters.SourcesFailed)
	require.Len(t, h.jobs.All(), 2)
}

func TestExecuteDuplicatesAcrossSources(t *testing.T) {
	t.Parallel()

	// Both sources report the same canonical link; exactly one insert wins.
	shared := candidate(1)
	a := listExtractor{id: "a", candidates: []scout.Candidate{shared}}
	b := listExtractor{id: "b", candidates: []scout.Candidate{shared}}
	h := newHarness(t, a, b)
	h.fetcher.bodies["https://a.example.com/search?q=go"] = "page"
	h.fetcher.bodies["https://b.example.com/search?q=go"] = "page"

	spec := scout.SearchSpec{Keywords: []string{"go"}}
	h.createRun(t, "run-1", spec)
	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusCompleted, run.Status)
	require.Equal(t, 1, run.Counters.JobsSaved)
	require.Equal(t, 1, run.Counters.Skips[scout.SkipDuplicate])
	require.Len(t, h.jobs.All(), 1)
}

func TestExecuteAllSourcesBlocked(t *testing.T) {
	t.Parallel()

	a := listExtractor{id: "a", api: true, candidates: []scout.Candidate{candidate(1)}}
	b := listExtractor{id: "b", candidates: []scout.Candidate{candidate(2)}}
	h := newHarness(t, a, b)
	h.fetcher.err = fetch.ErrBlocked

	spec := scout.SearchSpec{Keywords: []string{"go"}}
	h.createRun(t, "run-1", spec)
	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	// A fully blocked run still finishes cleanly with the failure counted.
	require.Equal(t, scout.RunStatusCompleted, run.Status)
	require.Zero(t, run.Counters.JobsSaved)
	require.Equal(t, 3, run.Counters.SourcesAttempted) // 2 primary + 1 fallback
	require.Equal(t, 3, run.Counters.SourcesFailed)
	require.Empty(t, h.jobs.All())
}

func TestExecuteFallbackPass(t *testing.T) {
	t.Parallel()

	ex := listExtractor{id: "src", api: true, candidates: []scout.Candidate{candidate(1)}}
	h := newHarness(t, ex)
	h.fetcher.bodies["https://src.example.com/search?q=go"] = "page"
	// A transient failure empties the first pass; the fallback retries the
	// API source and saves.
	h.fetcher.failFirst = 1

	spec := scout.SearchSpec{Keywords: []string{"go"}}
	h.createRun(t, "run-1", spec)
	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusCompleted, run.Status)
	require.Equal(t, 1, run.Counters.JobsSaved)
	require.Equal(t, 2, run.Counters.SourcesAttempted)
	require.Equal(t, 2, h.fetcher.callCount())
}

func TestExecuteFallbackKeepsFilters(t *testing.T) {
	t.Parallel()

	// A posting 20 days old never passes a 24h window, fallback included:
	// the fallback retries sources, it does not loosen the caller's filters.
	old := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	stale := candidate(1)
	stale.PostedAt = &old
	ex := listExtractor{id: "src", api: true, candidates: []scout.Candidate{stale}}
	h := newHarness(t, ex)
	h.fetcher.bodies["https://src.example.com/search?q=go"] = "page"

	spec := scout.SearchSpec{Keywords: []string{"go"}, Window: scout.Window24h}
	h.createRun(t, "run-1", spec)
	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusCompleted, run.Status)
	require.Zero(t, run.Counters.JobsSaved)
	require.Equal(t, 2, run.Counters.Skips[scout.SkipFilterMismatch])
	require.Equal(t, 2, h.fetcher.callCount())
	require.Empty(t, h.jobs.All())
}

func TestExecuteCancelledBeforeDispatch(t *testing.T) {
	t.Parallel()

	ex := listExtractor{id: "src", candidates: []scout.Candidate{candidate(1)}}
	h := newHarness(t, ex)
	h.fetcher.bodies["https://src.example.com/search?q=go"] = "page"

	spec := scout.SearchSpec{Keywords: []string{"go"}}
	h.createRun(t, "run-1", spec)
	require.NoError(t, h.runs.Update(context.Background(), "run-1", scout.RunStatusCancelled, "", scout.RunCounters{}))

	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusCancelled, run.Status)
	require.Empty(t, h.jobs.All())
}

// gatedFetcher parks the first fetch of gateURL until released, letting a
// test change run state while a source task is in flight.
type gatedFetcher struct {
	inner   *fakeFetcher
	gateURL string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *gatedFetcher) Fetch(ctx context.Context, rawURL string, opts scout.FetchOptions) (string, error) {
	if rawURL == f.gateURL {
		f.once.Do(func() { close(f.started) })
		<-f.release
	}
	return f.inner.Fetch(ctx, rawURL, opts)
}

// midRunHarness wires a two-source coordinator whose second source's fetch
// parks until the test releases it.
type midRunHarness struct {
	coordinator *Coordinator
	jobs        *memory.JobStore
	runs        *memory.RunStore
	inner       *fakeFetcher
	gate        *gatedFetcher
}

func newMidRunHarness(t *testing.T, a, b listExtractor) *midRunHarness {
	t.Helper()

	jobs := memory.NewJobStore()
	runs := memory.NewRunStore()
	clock := fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	persister := persist.New(jobs, clock, &seqIDs{}, zap.NewNop())

	registry := source.NewRegistry()
	require.NoError(t, registry.Register(a))
	require.NoError(t, registry.Register(b))

	inner := &fakeFetcher{bodies: map[string]string{
		"https://a.example.com/search?q=go": "page",
		"https://b.example.com/search?q=go": "page",
	}}
	gate := &gatedFetcher{
		inner:   inner,
		gateURL: "https://b.example.com/search?q=go",
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	coordinator, err := NewCoordinator(
		func() scout.Fetcher { return gate },
		registry, persister, runs,
		nil, nil, nil,
		clock, zap.NewNop(),
		Config{MaxWorkers: 1, SourceTimeout: 5 * time.Second},
	)
	require.NoError(t, err)

	return &midRunHarness{coordinator: coordinator, jobs: jobs, runs: runs, inner: inner, gate: gate}
}

// executeAndCancelMidFlight starts the run, cancels it while the gated
// source's fetch is in flight, then releases the gate and waits.
func (h *midRunHarness) executeAndCancelMidFlight(t *testing.T, spec scout.SearchSpec) {
	t.Helper()

	require.NoError(t, h.runs.Create(context.Background(), scout.Run{
		ID: "run-1", Status: scout.RunStatusPending, Spec: spec,
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.coordinator.Execute(context.Background(), "run-1", spec)
	}()

	<-h.gate.started
	require.NoError(t, h.runs.Update(context.Background(), "run-1", scout.RunStatusCancelled, "cancelled by operator", scout.RunCounters{}))
	close(h.gate.release)
	<-done
}

func TestExecuteCancelledMidRun(t *testing.T) {
	t.Parallel()

	a := listExtractor{id: "a", api: true, candidates: []scout.Candidate{candidate(1)}}
	b := listExtractor{id: "b", candidates: []scout.Candidate{candidate(2)}}
	h := newMidRunHarness(t, a, b)

	h.executeAndCancelMidFlight(t, scout.SearchSpec{Keywords: []string{"go"}})

	// The in-flight task's insert is allowed to finish; the run must end
	// CANCELLED, never COMPLETED, and its final record must still carry the
	// statistics of everything persisted before the cancel was observed.
	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusCancelled, run.Status)
	require.Equal(t, "cancelled by operator", run.ErrorText)
	require.Equal(t, 2, run.Counters.JobsSaved)
	require.Equal(t, 2, run.Counters.SourcesSucceeded)
	require.Len(t, h.jobs.All(), 2)
}

func TestExecuteCancelledSuppressesFallback(t *testing.T) {
	t.Parallel()

	// Both candidates miss the 24h window, so a completed run would enter
	// the zero-result fallback. With the cancel observed first, no further
	// fetch starts: the API source is hit exactly once.
	old := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	staleA := candidate(1)
	staleA.PostedAt = &old
	staleB := candidate(2)
	staleB.PostedAt = &old
	a := listExtractor{id: "a", api: true, candidates: []scout.Candidate{staleA}}
	b := listExtractor{id: "b", candidates: []scout.Candidate{staleB}}
	h := newMidRunHarness(t, a, b)

	h.executeAndCancelMidFlight(t, scout.SearchSpec{Keywords: []string{"go"}, Window: scout.Window24h})

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusCancelled, run.Status)
	require.Zero(t, run.Counters.JobsSaved)
	require.Equal(t, 2, run.Counters.Skips[scout.SkipFilterMismatch])
	require.Empty(t, h.jobs.All())
	require.Equal(t, 2, h.inner.callCount())
}

func TestExecuteVanishedRunTreatedAsCancelled(t *testing.T) {
	t.Parallel()

	ex := listExtractor{id: "src", candidates: []scout.Candidate{candidate(1)}}
	h := newHarness(t, ex)
	h.fetcher.bodies["https://src.example.com/search?q=go"] = "page"

	spec := scout.SearchSpec{Keywords: []string{"go"}}
	h.createRun(t, "run-1", spec)
	h.runs.Delete("run-1")

	h.coordinator.Execute(context.Background(), "run-1", spec)
	require.Empty(t, h.jobs.All())
}

func TestExecuteRejectsEmptyKeywords(t *testing.T) {
	t.Parallel()

	ex := listExtractor{id: "src"}
	h := newHarness(t, ex)

	spec := scout.SearchSpec{}
	h.createRun(t, "run-1", spec)
	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "keyword")
}

func TestExecuteRejectsUnknownSource(t *testing.T) {
	t.Parallel()

	ex := listExtractor{id: "src"}
	h := newHarness(t, ex)

	spec := scout.SearchSpec{Keywords: []string{"go"}, Sources: []string{"nope"}}
	h.createRun(t, "run-1", spec)
	h.coordinator.Execute(context.Background(), "run-1", spec)

	run, err := h.runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "nope")
}

// failingJobStore fails on Insert to simulate storage loss mid-run.
type failingJobStore struct{}

func (failingJobStore) Exists(context.Context, string) (bool, error) { return false, nil }
func (failingJobStore) Insert(context.Context, scout.PersistedJob) error {
	return fmt.Errorf("connection refused")
}

func TestExecuteStoreFailureFailsRun(t *testing.T) {
	t.Parallel()

	ex := listExtractor{id: "src", candidates: []scout.Candidate{candidate(1), candidate(2)}}
	runs := memory.NewRunStore()
	clock := fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
	persister := persist.New(failingJobStore{}, clock, &seqIDs{}, zap.NewNop())

	registry := source.NewRegistry()
	require.NoError(t, registry.Register(ex))

	fetcher := &fakeFetcher{bodies: map[string]string{
		"https://src.example.com/search?q=go": "page",
	}}
	coordinator, err := NewCoordinator(
		func() scout.Fetcher { return fetcher },
		registry, persister, runs,
		nil, nil, nil,
		clock, zap.NewNop(), Config{},
	)
	require.NoError(t, err)

	spec := scout.SearchSpec{Keywords: []string{"go"}}
	require.NoError(t, runs.Create(context.Background(), scout.Run{
		ID: "run-1", Status: scout.RunStatusPending, Spec: spec, Submitted: clock.now,
	}))

	coordinator.Execute(context.Background(), "run-1", spec)

	run, err := runs.Get(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, scout.RunStatusFailed, run.Status)
	require.Contains(t, run.ErrorText, "store failure")
}
