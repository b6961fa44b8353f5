// Package run coordinates scrape runs: fan-out over sources with a bounded
// worker pool, incremental persistence, cooperative cancellation, and a
// zero-result fallback pass.
package run

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/filter"
	"github.com/jobscout/jobscout/internal/persist"
	"github.com/jobscout/jobscout/internal/scout"
	"github.com/jobscout/jobscout/internal/source"
)

// Event topics published during a run.
const (
	TopicJobPersisted = "job.persisted"
	TopicRunFinished  = "run.finished"
)

// Config tunes the coordinator.
type Config struct {
	MaxWorkers    int
	SourceTimeout time.Duration
	MaxContacts   int
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers <= 0 {
		c.MaxWorkers = 6
	}
	if c.SourceTimeout <= 0 {
		c.SourceTimeout = 3 * time.Minute
	}
	if c.MaxContacts <= 0 {
		c.MaxContacts = 3
	}
	return c
}

// FetcherFactory builds a fresh fetcher per run so identity state (bad
// proxies, rotation position) never leaks across runs.
type FetcherFactory func() scout.Fetcher

// Coordinator executes one run end to end.
type Coordinator struct {
	fetchers  FetcherFactory
	registry  *source.Registry
	persister *persist.Persister
	runs      scout.RunStore
	sizer     scout.CompanySizeLookup
	contacts  scout.ContactFinder
	publisher scout.Publisher
	clock     scout.Clock
	logger    *zap.Logger
	cfg       Config
}

// NewCoordinator wires the coordinator. All collaborators are required
// except sizer, contacts and publisher, which default to no-ops.
func NewCoordinator(
	fetchers FetcherFactory,
	registry *source.Registry,
	persister *persist.Persister,
	runs scout.RunStore,
	sizer scout.CompanySizeLookup,
	contacts scout.ContactFinder,
	publisher scout.Publisher,
	clock scout.Clock,
	logger *zap.Logger,
	cfg Config,
) (*Coordinator, error) {
	if fetchers == nil {
		return nil, fmt.Errorf("fetcher factory is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if persister == nil {
		return nil, fmt.Errorf("persister is required")
	}
	if runs == nil {
		return nil, fmt.Errorf("run store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Coordinator{
		fetchers:  fetchers,
		registry:  registry,
		persister: persister,
		runs:      runs,
		sizer:     sizer,
		contacts:  contacts,
		publisher: publisher,
		clock:     clock,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}, nil
}

// runState is the mutable per-run bookkeeping shared by source tasks.
// cancelled flips exactly once and is checked immediately before every
// insert: no insert starts after the flag is observed set.
type runState struct {
	mu        sync.Mutex
	counters  scout.RunCounters
	cancelled atomic.Bool
	failed    atomic.Bool
	errText   string
}

func (s *runState) recordSkip(reason scout.SkipReason) {
	s.mu.Lock()
	if s.counters.Skips == nil {
		s.counters.Skips = make(map[scout.SkipReason]int)
	}
	s.counters.Skips[reason]++
	s.mu.Unlock()
	scout.CandidatesSkipped.WithLabelValues(string(reason)).Inc()
}

func (s *runState) recordSaved() {
	s.mu.Lock()
	s.counters.JobsSaved++
	s.mu.Unlock()
}

func (s *runState) recordSource(succeeded bool) {
	s.mu.Lock()
	if succeeded {
		s.counters.SourcesSucceeded++
	} else {
		s.counters.SourcesFailed++
	}
	s.mu.Unlock()
}

func (s *runState) fail(errText string) {
	if s.failed.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.errText = errText
		s.mu.Unlock()
	}
}

func (s *runState) snapshot() (scout.RunCounters, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters, s.errText
}

// Execute runs the full pipeline for an already-created run record. It
// never returns an error to the caller; every failure mode is folded into
// the run's terminal status.
func (c *Coordinator) Execute(ctx context.Context, runID string, spec scout.SearchSpec) {
	logger := c.logger.With(zap.String("run_id", runID))

	state := &runState{}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("run panicked", zap.Any("panic", r))
			counters, _ := state.snapshot()
			c.finalize(runID, scout.RunStatusFailed, fmt.Sprintf("internal error: %v", r), counters, logger)
		}
	}()

	sources, err := c.resolveSources(spec)
	if err != nil {
		logger.Warn("run rejected", zap.Error(err))
		c.finalize(runID, scout.RunStatusFailed, err.Error(), scout.RunCounters{}, logger)
		return
	}

	if err := c.runs.Update(ctx, runID, scout.RunStatusRunning, "", scout.RunCounters{}); err != nil {
		logger.Error("mark run running failed", zap.Error(err))
		if errors.Is(err, scout.ErrRunNotFound) {
			return
		}
	}
	logger.Info("run started",
		zap.Strings("keywords", spec.Keywords),
		zap.Int("sources", len(sources)),
	)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	fetcher := c.fetchers()
	c.dispatch(runCtx, cancel, runID, spec, sources, fetcher, state, logger)

	// Zero-result fallback: one more attempt over the structured API
	// sources before declaring an empty run. The spec's filters apply
	// unchanged; the fallback only retries transient source failures.
	counters, _ := state.snapshot()
	if counters.JobsSaved == 0 && !state.cancelled.Load() && !state.failed.Load() {
		fallback := apiBackedOnly(sources)
		if len(fallback) > 0 {
			logger.Info("zero jobs saved, running fallback pass",
				zap.Int("sources", len(fallback)))
			c.dispatch(runCtx, cancel, runID, spec, fallback, fetcher, state, logger)
		}
	}

	c.checkCancelled(ctx, runID, state, logger)
	counters, errText := state.snapshot()
	status := scout.RunStatusCompleted
	switch {
	case state.cancelled.Load():
		status = scout.RunStatusCancelled
	case state.failed.Load():
		status = scout.RunStatusFailed
	}
	c.finalize(runID, status, errText, counters, logger)
}

// dispatch fans the sources out over a bounded pool and waits for all of
// them. Cancellation is polled before every dispatch and after the pool
// drains; an observed cancellation stops further dispatch immediately.
func (c *Coordinator) dispatch(
	ctx context.Context,
	cancel context.CancelFunc,
	runID string,
	spec scout.SearchSpec,
	sources []scout.Extractor,
	fetcher scout.Fetcher,
	state *runState,
	logger *zap.Logger,
) {
	workers := c.cfg.MaxWorkers
	if len(sources) < workers {
		workers = len(sources)
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for _, ex := range sources {
		if c.checkCancelled(ctx, runID, state, logger) || state.failed.Load() {
			break
		}
		state.mu.Lock()
		state.counters.SourcesAttempted++
		state.mu.Unlock()

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return
		}
		wg.Add(1)
		go func(ex scout.Extractor) {
			defer wg.Done()
			defer func() { <-sem }()
			scout.ActiveSourceTasks.Inc()
			defer scout.ActiveSourceTasks.Dec()

			ok := c.runSource(ctx, cancel, runID, spec, ex, fetcher, state, logger)
			state.recordSource(ok)
			c.checkCancelled(ctx, runID, state, logger)
		}(ex)
	}
	wg.Wait()
}

// runSource fetches, extracts and persists one source's results. It
// reports false when every page fetch failed.
func (c *Coordinator) runSource(
	ctx context.Context,
	cancelRun context.CancelFunc,
	runID string,
	spec scout.SearchSpec,
	ex scout.Extractor,
	fetcher scout.Fetcher,
	state *runState,
	logger *zap.Logger,
) (succeeded bool) {
	logger = logger.With(zap.String("source", ex.ID()))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("source task panicked", zap.Any("panic", r))
			state.recordSkip(scout.SkipException)
			succeeded = false
		}
	}()

	srcCtx, cancel := context.WithTimeout(ctx, c.cfg.SourceTimeout)
	defer cancel()

	opts := scout.FetchOptions{ForceBrowser: ex.RequiresBrowser()}
	pagesFetched := 0
	for _, kw := range spec.Keywords {
		for _, pageURL := range ex.SearchURLs(kw) {
			if srcCtx.Err() != nil || state.cancelled.Load() || state.failed.Load() {
				return pagesFetched > 0
			}
			body, err := fetcher.Fetch(srcCtx, pageURL, opts)
			if err != nil {
				logger.Warn("page fetch failed",
					zap.String("url", pageURL),
					zap.Error(err))
				continue
			}
			pagesFetched++
			for _, cand := range ex.Extract(body) {
				if !c.handleCandidate(srcCtx, cancelRun, runID, spec, cand, state, logger) {
					return pagesFetched > 0
				}
			}
		}
	}
	return pagesFetched > 0
}

// handleCandidate runs the filter/persist/enrich/notify pipeline for one
// candidate. It returns false when the run must stop (cancelled or store
// failure).
func (c *Coordinator) handleCandidate(
	ctx context.Context,
	cancelRun context.CancelFunc,
	runID string,
	spec scout.SearchSpec,
	cand scout.Candidate,
	state *runState,
	logger *zap.Logger,
) bool {
	if !filter.Matches(spec, cand, c.clock.Now()) {
		state.recordSkip(scout.SkipFilterMismatch)
		return true
	}

	// Cancellation gate: once the flag is observed, no further insert
	// starts, though an insert already in flight is allowed to finish.
	if state.cancelled.Load() {
		return false
	}

	outcome, err := c.persister.TryPersist(ctx, runID, cand)
	if err != nil {
		logger.Error("store failure, aborting run", zap.Error(err))
		state.fail(fmt.Sprintf("store failure: %v", err))
		cancelRun()
		return false
	}
	if outcome.Skipped {
		state.recordSkip(outcome.Reason)
		return true
	}

	state.recordSaved()
	job := *outcome.Job
	c.enrich(ctx, &job, logger)
	c.publish(ctx, TopicJobPersisted, job, logger)
	return true
}

// enrich is advisory: lookups degrade internally and publish nothing on
// failure, so a broken enrichment API cannot fail a run.
func (c *Coordinator) enrich(ctx context.Context, job *scout.PersistedJob, logger *zap.Logger) {
	if c.sizer != nil {
		size := c.sizer.LookupCompanySize(ctx, job.Company, job.CompanyURL)
		if size != scout.CompanySizeUnknown {
			logger.Debug("company size resolved",
				zap.String("company", job.Company),
				zap.String("size", size))
		}
	}
	if c.contacts != nil {
		found := c.contacts.FindContacts(ctx, job.Company, job.CompanyURL, c.cfg.MaxContacts)
		if len(found) > 0 {
			logger.Debug("contacts resolved",
				zap.String("company", job.Company),
				zap.Int("count", len(found)))
		}
	}
}

func (c *Coordinator) publish(ctx context.Context, topic string, payload any, logger *zap.Logger) {
	if c.publisher == nil {
		return
	}
	if _, err := c.publisher.Publish(ctx, topic, payload); err != nil {
		logger.Warn("event publish failed",
			zap.String("topic", topic),
			zap.Error(err))
	}
}

// checkCancelled polls the run store, the cancellation authority. A
// vanished record is treated as cancellation.
func (c *Coordinator) checkCancelled(ctx context.Context, runID string, state *runState, logger *zap.Logger) bool {
	if state.cancelled.Load() {
		return true
	}
	status, err := c.runs.GetStatus(ctx, runID)
	if err != nil {
		if errors.Is(err, scout.ErrRunNotFound) {
			state.cancelled.Store(true)
			return true
		}
		logger.Warn("cancellation poll failed", zap.Error(err))
		return false
	}
	if status == scout.RunStatusCancelled {
		state.cancelled.Store(true)
		return true
	}
	return false
}

// finalize writes the terminal record and emits the run.finished event.
// The terminal update uses a fresh context so a cancelled run context
// cannot block bookkeeping.
func (c *Coordinator) finalize(
	runID string,
	status scout.RunStatus,
	errText string,
	counters scout.RunCounters,
	logger *zap.Logger,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.runs.Update(ctx, runID, status, errText, counters); err != nil {
		logger.Error("finalize run failed", zap.Error(err))
	}
	scout.RunsTotal.WithLabelValues(string(status)).Inc()
	c.publish(ctx, TopicRunFinished, map[string]any{
		"run_id":   runID,
		"status":   status,
		"counters": counters,
	}, logger)

	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("jobs_saved", counters.JobsSaved),
		zap.Int("sources_succeeded", counters.SourcesSucceeded),
		zap.Int("sources_failed", counters.SourcesFailed),
	)
}

// resolveSources validates the spec and expands it into extractors,
// API-backed sources first so fast structured results land early.
func (c *Coordinator) resolveSources(spec scout.SearchSpec) ([]scout.Extractor, error) {
	if len(nonEmptyKeywords(spec.Keywords)) == 0 {
		return nil, fmt.Errorf("at least one keyword is required")
	}

	var sources []scout.Extractor
	if len(spec.Sources) == 0 {
		sources = c.registry.All()
	} else {
		for _, id := range spec.Sources {
			ex, ok := c.registry.Get(id)
			if !ok {
				return nil, fmt.Errorf("unknown source %q", id)
			}
			sources = append(sources, ex)
		}
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source is required")
	}

	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].APIBacked() && !sources[j].APIBacked()
	})
	return sources, nil
}

func nonEmptyKeywords(keywords []string) []string {
	out := keywords[:0:0]
	for _, kw := range keywords {
		if kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func apiBackedOnly(sources []scout.Extractor) []scout.Extractor {
	var out []scout.Extractor
	for _, ex := range sources {
		if ex.APIBacked() {
			out = append(out, ex)
		}
	}
	return out
}
