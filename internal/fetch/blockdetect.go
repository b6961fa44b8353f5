package fetch

import "strings"

// blockIndicators is the fixed vocabulary scanned (case-insensitively) in
// fetched content before it is accepted. A match means the site served a
// challenge or denial page instead of real content.
var blockIndicators = []string{
	"captcha",
	"recaptcha",
	"hcaptcha",
	"cloudflare",
	"cf-browser-verification",
	"checking your browser",
	"access denied",
	"too many requests",
	"rate limit exceeded",
	"unusual traffic",
	"are you a robot",
	"verify you are human",
	"request blocked",
	"temporarily blocked",
}

// BlockIndicator returns the first matched indicator in body, or "" if the
// content shows no sign of anti-bot interference.
func BlockIndicator(body string) string {
	if body == "" {
		return ""
	}
	lower := strings.ToLower(body)
	for _, marker := range blockIndicators {
		if strings.Contains(lower, marker) {
			return marker
		}
	}
	return ""
}
