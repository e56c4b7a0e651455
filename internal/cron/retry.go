package cron

import (
	"math/rand"
	"time"
)

// RetryConfig controls exponential backoff retry for failed maintenance tasks.
type RetryConfig struct {
	MaxRetries int           // max retry attempts (default 3, 0 = no retry)
	BaseDelay  time.Duration // initial backoff delay (default 2s)
	MaxDelay   time.Duration // maximum backoff delay (default 30s)
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// ExecuteWithRetry runs fn, retrying on error with exponential backoff + jitter.
// Returns the number of attempts made and the last error, if any.
func ExecuteWithRetry(fn func() error, cfg RetryConfig) (attempts int, err error) {
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		err = fn()
		if err == nil {
			return attempt + 1, nil
		}

		if attempt < cfg.MaxRetries {
			delay := backoffWithJitter(cfg.BaseDelay, cfg.MaxDelay, attempt)
			time.Sleep(delay)
		}
	}
	return cfg.MaxRetries + 1, err
}

// backoffWithJitter computes delay = min(base * 2^attempt, max) + jitter(±25%).
func backoffWithJitter(base, max time.Duration, attempt int) time.Duration {
	delay := base << uint(attempt) // base * 2^attempt
	if delay > max {
		delay = max
	}

	// Jitter: ±25% of delay
	quarter := delay / 4
	if quarter > 0 {
		jitter := time.Duration(rand.Int63n(int64(quarter*2))) - quarter
		delay += jitter
	}

	return delay
}
