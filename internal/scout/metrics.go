package scout

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttempts tracks fetch attempts, labeled by transport path.
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobscout_fetch_attempts_total",
		Help: "The total number of fetch attempts, labeled by path (plain or browser).",
	}, []string{"path"})
	// FetchBlocks tracks fetches rejected by block/CAPTCHA detection.
	FetchBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobscout_fetch_blocks_total",
		Help: "The total number of responses rejected as blocked or challenged.",
	})
	// FetchRetries tracks retried fetch attempts.
	FetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobscout_fetch_retries_total",
		Help: "The total number of fetch retries after a retryable failure.",
	})
	// BrowserEscalations tracks escalations from the plain path to a
	// scripted browser session.
	BrowserEscalations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jobscout_browser_escalations_total",
		Help: "The total number of fetches escalated to a headless browser.",
	})
	// RunsTotal tracks finalized runs, labeled by terminal status.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobscout_runs_total",
		Help: "The total number of finalized runs, labeled by status.",
	}, []string{"status"})
	// JobsSaved tracks persisted jobs, labeled by source.
	JobsSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobscout_jobs_saved_total",
		Help: "The total number of jobs persisted, labeled by source.",
	}, []string{"source"})
	// CandidatesSkipped tracks discarded candidates, labeled by reason.
	CandidatesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jobscout_candidates_skipped_total",
		Help: "The total number of candidates discarded, labeled by skip reason.",
	}, []string{"reason"})
	// ActiveSourceTasks gauges in-flight source tasks across runs.
	ActiveSourceTasks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jobscout_active_source_tasks",
		Help: "Number of source tasks currently executing.",
	})
)
