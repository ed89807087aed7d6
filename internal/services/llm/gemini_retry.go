package llm

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// GeminiRetryConfig defines retry behavior for rate-limited provider calls.
// Only 429 / RESOURCE_EXHAUSTED responses are retried.
type GeminiRetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (default: 2)
	MaxRetries int

	// InitialBackoff is the wait before the first retry when the API gives no hint (default: 10s)
	InitialBackoff time.Duration

	// MaxBackoff caps any single wait (default: 60s)
	MaxBackoff time.Duration

	// BackoffMultiplier is applied to backoff on each retry (default: 1.5)
	BackoffMultiplier float64
}

// Interactive requests wait at most a couple of minutes before the failure is surfaced.
const (
	DefaultMaxRetries        = 2
	DefaultInitialBackoff    = 10 * time.Second
	DefaultMaxBackoff        = 60 * time.Second
	DefaultBackoffMultiplier = 1.5
)

// NewDefaultRetryConfig returns the retry settings used by ProviderFactory
func NewDefaultRetryConfig() *GeminiRetryConfig {
	return &GeminiRetryConfig{
		MaxRetries:        DefaultMaxRetries,
		InitialBackoff:    DefaultInitialBackoff,
		MaxBackoff:        DefaultMaxBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
	}
}

// IsRateLimitError checks if an error is a provider rate limit error.
// Matches 429 status codes, RESOURCE_EXHAUSTED and quota messages.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(errStr), "quota") ||
		strings.Contains(strings.ToLower(errStr), "rate limit")
}

// retryDelayRegex matches "Please retry in Xs" or "retryDelay:Xs" patterns
var retryDelayRegex = regexp.MustCompile(`(?i)(?:Please retry in |retryDelay[:\s]+)(\d+(?:\.\d+)?)\s*s`)

// ExtractRetryDelay parses the API-suggested retry delay from a Gemini error.
// Returns 0 if no delay is found in the error message.
//
// Example error message:
// "Error 429, Message: ... Please retry in 45.387061394s., Status: RESOURCE_EXHAUSTED"
func ExtractRetryDelay(err error) time.Duration {
	if err == nil {
		return 0
	}

	matches := retryDelayRegex.FindStringSubmatch(err.Error())
	if len(matches) < 2 {
		return 0
	}

	seconds, parseErr := strconv.ParseFloat(matches[1], 64)
	if parseErr != nil {
		return 0
	}

	return time.Duration(seconds * float64(time.Second))
}

// CalculateBackoff computes the backoff duration for a given attempt.
// If apiDelay > 0 (from ExtractRetryDelay), it's used as the base.
// Otherwise, InitialBackoff is used.
// The result is capped at MaxBackoff.
func (c *GeminiRetryConfig) CalculateBackoff(attempt int, apiDelay time.Duration) time.Duration {
	base := c.InitialBackoff
	if apiDelay > 0 {
		base = apiDelay + time.Second
	}

	// Apply exponential multiplier
	multiplier := 1.0
	for i := 0; i < attempt; i++ {
		multiplier *= c.BackoffMultiplier
	}

	backoff := time.Duration(float64(base) * multiplier)
	if backoff > c.MaxBackoff {
		backoff = c.MaxBackoff
	}

	return backoff
}
