// Package filter applies a saved search's rules to scraped candidates.
// All functions are pure; no I/O, no retries.
package filter

import (
	"strings"
	"time"

	"github.com/jobscout/jobscout/internal/scout"
)

// Matches reports whether the candidate satisfies every rule of the spec.
// Rules are conjunctive and evaluation stops at the first failure.
func Matches(spec scout.SearchSpec, c scout.Candidate, now time.Time) bool {
	return MatchesKeywords(spec, c) &&
		MatchesJobType(spec, c) &&
		MatchesLocation(spec, c) &&
		MatchesWindow(spec, c, now)
}

// MatchesKeywords passes when the keyword list is empty or the title
// contains at least one keyword as a case-insensitive substring.
func MatchesKeywords(spec scout.SearchSpec, c scout.Candidate) bool {
	if len(spec.Keywords) == 0 {
		return true
	}
	title := strings.ToLower(c.Title)
	for _, kw := range spec.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		if strings.Contains(title, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// MatchesJobType requires an exact match unless the filter is JobTypeAll.
func MatchesJobType(spec scout.SearchSpec, c scout.Candidate) bool {
	if spec.JobType == "" || spec.JobType == scout.JobTypeAll {
		return true
	}
	return c.JobType == spec.JobType
}

// MatchesLocation requires the candidate's inferred market to equal the
// filter exactly unless the filter is LocationAll.
func MatchesLocation(spec scout.SearchSpec, c scout.Candidate) bool {
	if spec.Location == "" || spec.Location == scout.LocationAll {
		return true
	}
	return inferMarket(c.Location) == spec.Location
}

// MatchesWindow passes candidates without a posted date; absence of data is
// not grounds for rejection. Otherwise the gap in days between now and the
// posted date must not exceed the window bound.
func MatchesWindow(spec scout.SearchSpec, c scout.Candidate, now time.Time) bool {
	days := spec.Window.Days()
	if days == 0 || c.PostedAt == nil {
		return true
	}
	age := now.Sub(*c.PostedAt)
	return age <= time.Duration(days)*24*time.Hour
}

// usMarkers and ukMarkers are the location tokens used to infer a
// candidate's market from its free-text location.
var (
	usMarkers = []string{"united states", "usa", "u.s.", ", us", "(us)", "new york", "san francisco", "austin", "seattle", "boston", "chicago", "denver", "los angeles"}
	ukMarkers = []string{"united kingdom", "uk", "u.k.", "england", "scotland", "wales", "london", "manchester", "edinburgh", "birmingham"}
)

func inferMarket(location string) scout.Location {
	loc := strings.ToLower(strings.TrimSpace(location))
	if loc == "" {
		return scout.LocationAll
	}
	for _, marker := range ukMarkers {
		if containsToken(loc, marker) {
			return scout.LocationUK
		}
	}
	for _, marker := range usMarkers {
		if containsToken(loc, marker) {
			return scout.LocationUSA
		}
	}
	return scout.LocationAll
}

// containsToken matches marker as a whole token, so "uk" does not match
// inside "ukraine".
func containsToken(haystack, marker string) bool {
	idx := strings.Index(haystack, marker)
	for idx >= 0 {
		before := idx == 0 || !isWordByte(haystack[idx-1])
		end := idx + len(marker)
		after := end == len(haystack) || !isWordByte(haystack[end])
		if before && after {
			return true
		}
		next := strings.Index(haystack[idx+1:], marker)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
