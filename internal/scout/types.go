// Package scout defines core types shared across subsystems.
package scout

import "time"

// JobType classifies a posting's employment arrangement.
type JobType string

// Job type filter values. JobTypeAll matches every candidate.
const (
	JobTypeAll       JobType = "all"
	JobTypeRemote    JobType = "remote"
	JobTypeFullTime  JobType = "full_time"
	JobTypeFreelance JobType = "freelance"
	JobTypeHybrid    JobType = "hybrid"
	JobTypePartTime  JobType = "part_time"
)

// TimeWindow bounds how old a posting may be.
type TimeWindow string

// Time window filter values.
const (
	WindowAll TimeWindow = "all"
	Window24h TimeWindow = "24h"
	Window3d  TimeWindow = "3d"
	Window7d  TimeWindow = "7d"
)

// Days returns the window bound in days; zero means unbounded.
func (w TimeWindow) Days() int {
	switch w {
	case Window24h:
		return 1
	case Window3d:
		return 3
	case Window7d:
		return 7
	default:
		return 0
	}
}

// Location restricts candidates to a target market.
type Location string

// Location filter values.
const (
	LocationAll Location = "all"
	LocationUSA Location = "usa"
	LocationUK  Location = "uk"
)

// SkipReason classifies why a candidate was discarded instead of persisted.
type SkipReason string

// Skip reasons recorded in run statistics.
const (
	SkipFilterMismatch        SkipReason = "filter_mismatch"
	SkipDuplicate             SkipReason = "duplicate"
	SkipMissingCompanyOrTitle SkipReason = "missing_company_or_title"
	SkipUnreliableCompanyName SkipReason = "unreliable_company_name"
	SkipException             SkipReason = "exception"
)

// RunStatus represents the lifecycle state of a scrape run.
type RunStatus string

// Run status values persisted in the run store.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// SearchSpec is the immutable per-run configuration supplied by the caller.
// An empty Sources slice means every registered source.
type SearchSpec struct {
	Keywords []string   `json:"keywords"`
	JobType  JobType    `json:"job_type"`
	Window   TimeWindow `json:"time_window"`
	Location Location   `json:"location"`
	Sources  []string   `json:"sources,omitempty"`
}

// Candidate is a single scraped posting as produced by an Extractor,
// before validation and deduplication. Link is the canonical link used as
// the dedup key; candidates without one are discarded.
type Candidate struct {
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	CompanyURL  string     `json:"company_url,omitempty"`
	Link        string     `json:"link"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	JobType     JobType    `json:"job_type,omitempty"`
	SalaryRange string     `json:"salary_range,omitempty"`
	SourceID    string     `json:"source_id"`
}

// PersistedJob is the durable, deduplicated, validated record. Link is
// unique across all persisted jobs for the lifetime of the store.
type PersistedJob struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Title       string     `json:"title"`
	Company     string     `json:"company"`
	CompanyURL  string     `json:"company_url,omitempty"`
	Link        string     `json:"link"`
	Location    string     `json:"location,omitempty"`
	Description string     `json:"description,omitempty"`
	JobType     JobType    `json:"job_type,omitempty"`
	SalaryRange string     `json:"salary_range,omitempty"`
	SourceID    string     `json:"source_id"`
	PostedAt    *time.Time `json:"posted_at,omitempty"`
	SavedAt     time.Time  `json:"saved_at"`
}

// RunCounters tracks aggregate statistics for one run.
type RunCounters struct {
	SourcesAttempted int                `json:"sources_attempted"`
	SourcesSucceeded int                `json:"sources_succeeded"`
	SourcesFailed    int                `json:"sources_failed"`
	JobsSaved        int                `json:"jobs_saved"`
	Skips            map[SkipReason]int `json:"skips,omitempty"`
}

// Run is the metadata persisted for each coordinator invocation.
type Run struct {
	ID        string      `json:"id"`
	Status    RunStatus   `json:"status"`
	Spec      SearchSpec  `json:"spec"`
	Submitted time.Time   `json:"submitted_at"`
	Started   *time.Time  `json:"started_at,omitempty"`
	Finished  *time.Time  `json:"finished_at,omitempty"`
	ErrorText string      `json:"error_text,omitempty"`
	Counters  RunCounters `json:"counters"`
}

// Contact is a decision-maker surfaced by the enrichment layer.
type Contact struct {
	Name       string `json:"name"`
	Title      string `json:"title,omitempty"`
	Email      string `json:"email,omitempty"`
	ProfileURL string `json:"profile_url,omitempty"`
}

// CompanySizeUnknown is returned by enrichment lookups that cannot classify
// a company.
const CompanySizeUnknown = "unknown"
