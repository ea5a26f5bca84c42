package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for upstream failures. The orchestrator retries
// ErrUnavailable and ErrRateLimited (the latter with longer backoff)
// and treats anything else as fatal for the turn.
var (
	// ErrUnavailable indicates a transient upstream failure (5xx,
	// connection problems, timeouts).
	ErrUnavailable = errors.New("model upstream unavailable")

	// ErrRateLimited indicates the upstream rejected the request for
	// quota or rate reasons.
	ErrRateLimited = errors.New("model upstream rate limited")

	// ErrMalformed indicates the upstream answered with something
	// that could not be interpreted as a model response.
	ErrMalformed = errors.New("malformed model response")
)

// Provider SDKs do not expose stable error types, so classification
// matches on message substrings grouped by failure class.
var (
	rateLimitPatterns = []string{
		"rate limit",
		"quota exceeded",
		"resource exhausted",
		"429",
	}
	unavailablePatterns = []string{
		"500", "502", "503", "504",
		"unavailable",
		"overloaded",
		"connection reset",
		"connection refused",
		"timeout",
		"temporary",
	}
	malformedPatterns = []string{
		"unexpected end of json",
		"invalid character",
		"unmarshal",
		"malformed",
	}
)

// classify wraps err with the matching sentinel, or returns it
// unchanged when it fits no known class.
func classify(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case matchesAny(msg, rateLimitPatterns):
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	case matchesAny(msg, unavailablePatterns):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case matchesAny(msg, malformedPatterns):
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	default:
		return err
	}
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
