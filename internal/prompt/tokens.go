// Package prompt assembles the token-budgeted context block injected
// ahead of a model query, and provides token estimation helpers.
package prompt

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerTokenEstimate is the cheap token approximation used for
// budget accounting.
const charsPerTokenEstimate = 4

// EstimateTokens approximates the token count of text as chars/4.
func EstimateTokens(s string) int {
	return len(s) / charsPerTokenEstimate
}

// Counter counts tokens with a tiktoken BPE. If the encoding cannot be
// loaded it falls back to the chars/4 estimate for the life of the
// process.
type Counter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewCounter creates a lazy tiktoken counter (cl100k_base).
func NewCounter() *Counter {
	return &Counter{}
}

// Count returns the token count of text.
func (c *Counter) Count(text string) int {
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("tiktoken encoding unavailable, using chars/4 estimate", "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return EstimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}
