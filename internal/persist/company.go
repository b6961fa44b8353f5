package persist

import (
	"net/url"
	"strings"
)

// genericCompanyNames are tokens that carry no employer identity. A company
// name reducing to one of these is rejected as unreliable.
var genericCompanyNames = map[string]struct{}{
	"company":      {},
	"unknown":      {},
	"na":           {},
	"confidential": {},
	"employer":     {},
	"hiring":       {},
	"recruiter":    {},
	"recruiting":   {},
	"staffing":     {},
	"agency":       {},
	"various":      {},
	"multiple":     {},
}

// jobBoardHosts are aggregator/ATS domains that must never be attributed as
// the employer, either when inferring a company from a link or when
// accepting a company URL.
var jobBoardHosts = map[string]struct{}{
	"linkedin.com":      {},
	"indeed.com":        {},
	"glassdoor.com":     {},
	"monster.com":       {},
	"ziprecruiter.com":  {},
	"dice.com":          {},
	"wellfound.com":     {},
	"angel.co":          {},
	"greenhouse.io":     {},
	"lever.co":          {},
	"workable.com":      {},
	"ashbyhq.com":       {},
	"bamboohr.com":      {},
	"smartrecruiters.com": {},
	"remoteok.com":      {},
	"weworkremotely.com": {},
	"totaljobs.com":     {},
	"reed.co.uk":        {},
}

// multiPartTLDLabels are second-level labels of compound TLDs (co.uk,
// com.au, ...); inference falls back one label further when it lands on one.
var multiPartTLDLabels = map[string]struct{}{
	"co":  {},
	"com": {},
	"org": {},
	"net": {},
	"ac":  {},
	"gov": {},
	"edu": {},
}

// reduceCompanyName strips non-alphanumerics and lowercases, producing the
// form checked against length and the generic-token blocklist.
func reduceCompanyName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// reliableCompanyName reports whether the name survives reduction: at least
// two characters and not a generic token.
func reliableCompanyName(name string) bool {
	reduced := reduceCompanyName(name)
	if len(reduced) < 2 {
		return false
	}
	_, generic := genericCompanyNames[reduced]
	return !generic
}

// inferCompanyFromLink derives an employer name from the canonical link's
// hostname. It strips www, skips known job-board hosts, and takes the
// most specific remaining label, e.g. "foo" in foo.example.com. Compound
// TLD labels like co/com are skipped. Returns "" when no reliable name
// can be derived.
func inferCompanyFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if host == "" || isJobBoardHost(host) {
		return ""
	}

	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return ""
	}
	for _, label := range labels[:len(labels)-1] {
		if _, compound := multiPartTLDLabels[label]; compound {
			continue
		}
		if reliableCompanyName(label) {
			return titleCase(label)
		}
	}
	return ""
}

// sanitizeCompanyURL accepts a company URL only when its scheme is
// http/https, its host is not a job-board/ATS domain, and at least one
// token of the company name (or its initials) appears in the host.
// Anything else is dropped rather than stored.
func sanitizeCompanyURL(company, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || isJobBoardHost(host) {
		return ""
	}

	tokens := companyTokens(company)
	if len(tokens) == 0 {
		return ""
	}
	hostFlat := strings.ReplaceAll(host, "-", "")
	for _, token := range tokens {
		if strings.Contains(hostFlat, token) {
			return rawURL
		}
	}
	if initials := companyInitials(tokens); len(initials) >= 2 && strings.Contains(hostFlat, initials) {
		return rawURL
	}
	return ""
}

func isJobBoardHost(host string) bool {
	host = strings.TrimPrefix(host, "www.")
	if _, board := jobBoardHosts[host]; board {
		return true
	}
	for board := range jobBoardHosts {
		if strings.HasSuffix(host, "."+board) {
			return true
		}
	}
	return false
}

func companyTokens(company string) []string {
	fields := strings.FieldsFunc(strings.ToLower(company), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

func companyInitials(tokens []string) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteByte(t[0])
	}
	return b.String()
}

func titleCase(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
