package fetch

import "errors"

// Typed terminal errors returned after retries are exhausted. The
// coordinator records them against the source; they are never fatal to a
// run as a whole.
var (
	ErrBlocked       = errors.New("fetch blocked by anti-bot protection")
	ErrTimeout       = errors.New("fetch timed out")
	ErrNetwork       = errors.New("fetch failed with a network error")
	ErrEmptyResponse = errors.New("fetch returned an empty response")
)
