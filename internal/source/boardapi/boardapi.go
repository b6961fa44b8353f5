// Package boardapi extracts candidates from a structured job-board search
// API. It is the fast path: no rendering, one JSON document per page.
package boardapi

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jobscout/jobscout/internal/scout"
)

// Config points the extractor at a board API deployment.
type Config struct {
	BaseURL string
	AppID   string
	AppKey  string
	Country string
	Pages   int
	PerPage int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.adzuna.com/v1/api/jobs"
	}
	if c.Country == "" {
		c.Country = "us"
	}
	if c.Pages <= 0 {
		c.Pages = 2
	}
	if c.PerPage <= 0 {
		c.PerPage = 50
	}
	return c
}

// Extractor implements scout.Extractor over the board search API.
type Extractor struct {
	cfg Config
}

// New builds the extractor.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg.withDefaults()}
}

// ID returns the stable source identifier.
func (e *Extractor) ID() string { return "boardapi" }

// RequiresBrowser is false: the API serves JSON directly.
func (e *Extractor) RequiresBrowser() bool { return false }

// APIBacked is true: this source is dispatched first and reused for the
// zero-result fallback pass.
func (e *Extractor) APIBacked() bool { return true }

// SearchURLs expands one keyword into paginated search endpoints.
func (e *Extractor) SearchURLs(keyword string) []string {
	urls := make([]string, 0, e.cfg.Pages)
	for page := 1; page <= e.cfg.Pages; page++ {
		q := url.Values{
			"app_id":           {e.cfg.AppID},
			"app_key":          {e.cfg.AppKey},
			"what":             {keyword},
			"results_per_page": {fmt.Sprintf("%d", e.cfg.PerPage)},
			"content-type":     {"application/json"},
		}
		urls = append(urls, fmt.Sprintf("%s/%s/search/%d?%s",
			e.cfg.BaseURL, e.cfg.Country, page, q.Encode()))
	}
	return urls
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	Title   string `json:"title"`
	Company struct {
		DisplayName string `json:"display_name"`
	} `json:"company"`
	Location struct {
		DisplayName string `json:"display_name"`
	} `json:"location"`
	RedirectURL  string   `json:"redirect_url"`
	Description  string   `json:"description"`
	Created      string   `json:"created"`
	ContractTime string   `json:"contract_time"`
	SalaryMin    *float64 `json:"salary_min"`
	SalaryMax    *float64 `json:"salary_max"`
}

// Extract parses a search response. Malformed content yields nil; results
// missing a link are dropped here because they can never be deduplicated.
func (e *Extractor) Extract(content string) []scout.Candidate {
	var resp searchResponse
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return nil
	}
	out := make([]scout.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		if r.RedirectURL == "" {
			continue
		}
		c := scout.Candidate{
			Title:       strings.TrimSpace(r.Title),
			Company:     strings.TrimSpace(r.Company.DisplayName),
			Link:        r.RedirectURL,
			Location:    r.Location.DisplayName,
			Description: r.Description,
			JobType:     mapContractTime(r.ContractTime),
			SalaryRange: salaryRange(r.SalaryMin, r.SalaryMax),
			SourceID:    e.ID(),
		}
		if ts, err := time.Parse(time.RFC3339, r.Created); err == nil {
			c.PostedAt = &ts
		}
		out = append(out, c)
	}
	return out
}

func mapContractTime(contractTime string) scout.JobType {
	switch contractTime {
	case "full_time":
		return scout.JobTypeFullTime
	case "part_time":
		return scout.JobTypePartTime
	default:
		return ""
	}
}

func salaryRange(min, max *float64) string {
	switch {
	case min != nil && max != nil:
		return fmt.Sprintf("%.0f-%.0f", *min, *max)
	case min != nil:
		return fmt.Sprintf("%.0f+", *min)
	case max != nil:
		return fmt.Sprintf("up to %.0f", *max)
	default:
		return ""
	}
}
