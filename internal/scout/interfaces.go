package scout

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateLink is returned by JobStore.Insert when the canonical link is
// already persisted. Persisters map it to the duplicate skip reason.
var ErrDuplicateLink = errors.New("canonical link already persisted")

// ErrRunNotFound is returned by RunStore lookups when the run record does
// not exist. The coordinator treats a vanished record as cancellation.
var ErrRunNotFound = errors.New("run not found")

// FetchOptions tune a single logical fetch.
type FetchOptions struct {
	ForceBrowser bool
}

// Fetcher issues one logical retrieval of a URL, owning retries, identity
// rotation, block detection and browser escalation.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string, opts FetchOptions) (string, error)
}

// Extractor is the per-source plugin contract consumed by the coordinator.
type Extractor interface {
	// ID returns the stable source identifier.
	ID() string
	// SearchURLs expands one keyword into the listing URLs to fetch.
	SearchURLs(keyword string) []string
	// Extract parses fetched content into zero or more candidates.
	Extract(content string) []Candidate
	// RequiresBrowser reports whether the source only renders under JS.
	RequiresBrowser() bool
	// APIBacked reports whether the source is a fast structured API;
	// such sources are dispatched first and used for the fallback pass.
	APIBacked() bool
}

// JobStore persists deduplicated jobs and answers existence checks.
type JobStore interface {
	Exists(ctx context.Context, link string) (bool, error)
	// Insert must surface a uniqueness violation as ErrDuplicateLink so it
	// can be mapped to a duplicate skip rather than a run failure.
	Insert(ctx context.Context, job PersistedJob) error
}

// RunStore persists run lifecycle state. GetStatus is the cancellation
// authority polled by the coordinator.
type RunStore interface {
	Create(ctx context.Context, run Run) error
	Get(ctx context.Context, runID string) (Run, error)
	GetStatus(ctx context.Context, runID string) (RunStatus, error)
	Update(ctx context.Context, runID string, status RunStatus, errText string, counters RunCounters) error
}

// Publisher pushes incremental and terminal run events downstream.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore archives raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// CompanySizeLookup classifies employer size. Implementations must be safe
// to call with empty inputs and must degrade to CompanySizeUnknown instead
// of failing.
type CompanySizeLookup interface {
	LookupCompanySize(ctx context.Context, name, companyURL string) string
}

// ContactFinder surfaces decision-maker contacts. Implementations must
// degrade to an empty slice instead of failing.
type ContactFinder interface {
	FindContacts(ctx context.Context, name, companyURL string, max int) []Contact
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
