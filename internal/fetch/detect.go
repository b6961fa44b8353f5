package fetch

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// renderHints are markers of a JS-only shell page.
var renderHints = []string{
	"enable javascript",
	"javascript is required",
	"javascript is disabled",
	"<noscript",
}

// RenderDetector decides whether content looks like an unrendered JS shell
// that warrants escalation to the browser path.
type RenderDetector struct {
	minHTMLBytes int
	minTextBytes int
}

// NewRenderDetector constructs a detector with the configured thresholds.
// Non-positive values fall back to defaults.
func NewRenderDetector(minHTMLBytes, minTextBytes int) *RenderDetector {
	if minHTMLBytes <= 0 {
		minHTMLBytes = 2048
	}
	if minTextBytes <= 0 {
		minTextBytes = 200
	}
	return &RenderDetector{
		minHTMLBytes: minHTMLBytes,
		minTextBytes: minTextBytes,
	}
}

// NeedsBrowser inspects the body for signals that JS rendering is required.
func (d *RenderDetector) NeedsBrowser(body string) bool {
	if d == nil {
		return false
	}
	if len(body) < d.minHTMLBytes {
		return true
	}
	lower := strings.ToLower(body)
	for _, hint := range renderHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return d.visibleTextBelowThreshold(body)
}

func (d *RenderDetector) visibleTextBelowThreshold(body string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return true
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	return len(text) < d.minTextBytes
}
