// Package htmlboard extracts candidates from rendered job-board listing
// pages. The board serves its cards from a JS shell, so RequiresBrowser
// is true and the fetch layer renders before this extractor runs.
package htmlboard

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jobscout/jobscout/internal/scout"
)

// Config points the extractor at a board deployment.
type Config struct {
	BaseURL string
	Pages   int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://www.jobboard.example.com"
	}
	if c.Pages <= 0 {
		c.Pages = 3
	}
	return c
}

// Extractor implements scout.Extractor over rendered listing HTML.
type Extractor struct {
	cfg  Config
	base *url.URL
}

// New builds the extractor. The base URL must parse.
func New(cfg Config) (*Extractor, error) {
	cfg = cfg.withDefaults()
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	return &Extractor{cfg: cfg, base: base}, nil
}

// ID returns the stable source identifier.
func (e *Extractor) ID() string { return "htmlboard" }

// RequiresBrowser is true: the listing only renders under JS.
func (e *Extractor) RequiresBrowser() bool { return true }

// APIBacked is false: this source is slow and never used for fallback.
func (e *Extractor) APIBacked() bool { return false }

// SearchURLs expands one keyword into paginated listing URLs.
func (e *Extractor) SearchURLs(keyword string) []string {
	urls := make([]string, 0, e.cfg.Pages)
	for page := 1; page <= e.cfg.Pages; page++ {
		q := url.Values{
			"q":    {keyword},
			"page": {fmt.Sprintf("%d", page)},
		}
		urls = append(urls, e.cfg.BaseURL+"/jobs?"+q.Encode())
	}
	return urls
}

// Extract parses job cards out of a rendered listing page. Cards missing
// a link are dropped; everything else is left to the validator.
func (e *Extractor) Extract(content string) []scout.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	var out []scout.Candidate
	doc.Find("div.job-card, li.job-card, article.job-card").Each(func(_ int, card *goquery.Selection) {
		link := card.Find("a.job-title, h2 a, h3 a").First()
		href, ok := link.Attr("href")
		if !ok || href == "" {
			return
		}
		c := scout.Candidate{
			Title:       strings.TrimSpace(link.Text()),
			Company:     strings.TrimSpace(card.Find(".company, .company-name").First().Text()),
			Link:        e.absolute(href),
			Location:    strings.TrimSpace(card.Find(".location, .job-location").First().Text()),
			Description: strings.TrimSpace(card.Find(".description, .job-snippet").First().Text()),
			SalaryRange: strings.TrimSpace(card.Find(".salary, .job-salary").First().Text()),
			JobType:     mapTypeLabel(card.Find(".job-type, .contract-type").First().Text()),
			SourceID:    e.ID(),
		}
		if ts, ok := card.Find("time").First().Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
				c.PostedAt = &parsed
			}
		}
		if href, ok := card.Find("a.company-link, .company a").First().Attr("href"); ok {
			c.CompanyURL = e.absolute(href)
		}
		out = append(out, c)
	})
	return out
}

func (e *Extractor) absolute(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return e.base.ResolveReference(ref).String()
}

func mapTypeLabel(label string) scout.JobType {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "full time", "full-time", "full_time":
		return scout.JobTypeFullTime
	case "part time", "part-time", "part_time":
		return scout.JobTypePartTime
	case "remote":
		return scout.JobTypeRemote
	case "hybrid":
		return scout.JobTypeHybrid
	case "freelance", "contract":
		return scout.JobTypeFreelance
	default:
		return ""
	}
}
