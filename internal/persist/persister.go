// Package persist promotes validated candidates to durable, deduplicated
// records, applying company inference and URL sanitization on the way in.
package persist

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/scout"
)

// Outcome is the result of one TryPersist call: either a persisted job or
// a recorded skip reason.
type Outcome struct {
	Job     *scout.PersistedJob
	Skipped bool
	Reason  scout.SkipReason
}

func skipped(reason scout.SkipReason) Outcome {
	return Outcome{Skipped: true, Reason: reason}
}

// Persister writes candidates through the job store. Data-quality problems
// are skip outcomes, never errors; an error return means the store itself
// failed and the run should abort.
type Persister struct {
	jobs   scout.JobStore
	clock  scout.Clock
	ids    scout.IDGenerator
	logger *zap.Logger
}

// New constructs a Persister.
func New(jobs scout.JobStore, clock scout.Clock, ids scout.IDGenerator, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Persister{
		jobs:   jobs,
		clock:  clock,
		ids:    ids,
		logger: logger,
	}
}

// TryPersist validates data quality, infers a missing company from the
// canonical link, checks the dedup index, and writes the job. At most one
// persist succeeds per canonical link for the store's lifetime; a racing
// insert losing to the unique constraint is a duplicate skip, not an error.
func (p *Persister) TryPersist(ctx context.Context, runID string, c scout.Candidate) (Outcome, error) {
	link, err := scout.NormalizeLink(c.Link)
	if err != nil {
		p.logger.Debug("candidate discarded: bad canonical link",
			zap.String("source", c.SourceID),
			zap.String("link", c.Link),
			zap.Error(err),
		)
		return skipped(scout.SkipException), nil
	}

	if c.Title == "" {
		return skipped(scout.SkipMissingCompanyOrTitle), nil
	}

	company := c.Company
	if company == "" {
		company = inferCompanyFromLink(link)
	}
	if company == "" {
		return skipped(scout.SkipMissingCompanyOrTitle), nil
	}
	if !reliableCompanyName(company) {
		return skipped(scout.SkipUnreliableCompanyName), nil
	}

	exists, err := p.jobs.Exists(ctx, link)
	if err != nil {
		return Outcome{}, fmt.Errorf("dedup check %s: %w", link, err)
	}
	if exists {
		return skipped(scout.SkipDuplicate), nil
	}

	id, err := p.ids.NewID()
	if err != nil {
		return Outcome{}, fmt.Errorf("generate job id: %w", err)
	}
	job := scout.PersistedJob{
		ID:          id,
		RunID:       runID,
		Title:       c.Title,
		Company:     company,
		CompanyURL:  sanitizeCompanyURL(company, c.CompanyURL),
		Link:        link,
		Location:    c.Location,
		Description: c.Description,
		JobType:     c.JobType,
		SalaryRange: c.SalaryRange,
		SourceID:    c.SourceID,
		PostedAt:    c.PostedAt,
		SavedAt:     p.clock.Now(),
	}

	if err := p.jobs.Insert(ctx, job); err != nil {
		if errors.Is(err, scout.ErrDuplicateLink) {
			return skipped(scout.SkipDuplicate), nil
		}
		return Outcome{}, fmt.Errorf("insert %s: %w", link, err)
	}

	scout.JobsSaved.WithLabelValues(c.SourceID).Inc()
	return Outcome{Job: &job}, nil
}
