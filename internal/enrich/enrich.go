// Package enrich implements best-effort post-persistence enrichment.
// Lookups never fail a run: every error path degrades to a neutral value.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jobscout/jobscout/internal/scout"
)

// Config points the enrichers at an external company-data API.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return c
}

// HTTPCompanySizer classifies employer size via a company-data API.
type HTTPCompanySizer struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewHTTPCompanySizer builds a sizer. The logger is required.
func NewHTTPCompanySizer(cfg Config, logger *zap.Logger) (*HTTPCompanySizer, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg = cfg.withDefaults()
	return &HTTPCompanySizer{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type companyProfile struct {
	Name     string `json:"name"`
	SizeBand string `json:"size_band"`
	Domain   string `json:"domain"`
}

// LookupCompanySize returns a size band or CompanySizeUnknown. It never
// returns an error and never panics; enrichment is advisory.
func (s *HTTPCompanySizer) LookupCompanySize(ctx context.Context, name, companyURL string) (size string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("company size lookup panicked", zap.Any("panic", r))
			size = scout.CompanySizeUnknown
		}
	}()
	if name == "" {
		return scout.CompanySizeUnknown
	}

	var profile companyProfile
	if err := s.getJSON(ctx, "/v1/companies/profile", url.Values{
		"name":   {name},
		"domain": {hostOf(companyURL)},
	}, &profile); err != nil {
		s.logger.Debug("company size lookup failed",
			zap.String("company", name),
			zap.Error(err))
		return scout.CompanySizeUnknown
	}
	if profile.SizeBand == "" {
		return scout.CompanySizeUnknown
	}
	return profile.SizeBand
}

func (s *HTTPCompanySizer) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return getJSON(ctx, s.client, s.cfg, path, query, out)
}

// HTTPContactFinder surfaces decision-maker contacts via the same API.
type HTTPContactFinder struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// NewHTTPContactFinder builds a finder. The logger is required.
func NewHTTPContactFinder(cfg Config, logger *zap.Logger) (*HTTPContactFinder, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	cfg = cfg.withDefaults()
	return &HTTPContactFinder{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

type contactsResponse struct {
	Contacts []scout.Contact `json:"contacts"`
}

// FindContacts returns up to max contacts, or nil on any failure.
func (f *HTTPContactFinder) FindContacts(ctx context.Context, name, companyURL string, max int) (contacts []scout.Contact) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Warn("contact lookup panicked", zap.Any("panic", r))
			contacts = nil
		}
	}()
	if name == "" || max <= 0 {
		return nil
	}

	var resp contactsResponse
	if err := getJSON(ctx, f.client, f.cfg, "/v1/companies/contacts", url.Values{
		"name":   {name},
		"domain": {hostOf(companyURL)},
		"limit":  {fmt.Sprintf("%d", max)},
	}, &resp); err != nil {
		f.logger.Debug("contact lookup failed",
			zap.String("company", name),
			zap.Error(err))
		return nil
	}
	if len(resp.Contacts) > max {
		resp.Contacts = resp.Contacts[:max]
	}
	return resp.Contacts
}

func getJSON(ctx context.Context, client *http.Client, cfg Config, path string, query url.Values, out any) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("enrichment api not configured")
	}
	endpoint := cfg.BaseURL + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func hostOf(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// NoopCompanySizer always answers CompanySizeUnknown. It is the default
// when no enrichment API is configured.
type NoopCompanySizer struct{}

func (NoopCompanySizer) LookupCompanySize(context.Context, string, string) string {
	return scout.CompanySizeUnknown
}

// NoopContactFinder never finds contacts.
type NoopContactFinder struct{}

func (NoopContactFinder) FindContacts(context.Context, string, string, int) []scout.Contact {
	return nil
}
