package convo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/recall/internal/summarize"
)

// SummaryPrefix marks the synthetic assistant message holding the
// compacted history at the head of a rewritten transcript.
const SummaryPrefix = "[summary] "

// Compaction defaults.
const (
	DefaultThreshold = 100 // messages before compaction triggers
	DefaultKeepLast  = 20  // raw messages preserved after compaction
)

// TokenCounter estimates token counts for the secondary token-based
// compaction trigger.
type TokenCounter interface {
	Count(text string) int
}

// CompactorConfig controls when and how transcripts are compacted.
type CompactorConfig struct {
	Threshold   int // message-count trigger (default 100)
	KeepLast    int // raw messages kept after compaction (default 20)
	TokenBudget int // optional token-count trigger; 0 disables
}

// DefaultCompactorConfig returns the default compaction settings.
func DefaultCompactorConfig() CompactorConfig {
	return CompactorConfig{
		Threshold: DefaultThreshold,
		KeepLast:  DefaultKeepLast,
	}
}

// Compactor bounds transcript growth: once a channel crosses the
// threshold, everything but the last K messages is summarized into the
// guild's daily log and the transcript is rewritten as
// [summary message] + last K raw messages.
type Compactor struct {
	store      *Store
	summarizer summarize.Summarizer
	counter    TokenCounter // optional
	cfg        CompactorConfig
}

// NewCompactor creates a compactor over the given raw log store.
func NewCompactor(store *Store, s summarize.Summarizer, cfg CompactorConfig) *Compactor {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.KeepLast <= 0 {
		cfg.KeepLast = DefaultKeepLast
	}
	return &Compactor{store: store, summarizer: s, cfg: cfg}
}

// SetTokenCounter enables the secondary token-count trigger.
func (c *Compactor) SetTokenCounter(tc TokenCounter) {
	c.counter = tc
}

func (c *Compactor) shouldCompact(msgs []Message) bool {
	if len(msgs) > c.cfg.Threshold {
		return true
	}
	if c.counter != nil && c.cfg.TokenBudget > 0 && len(msgs) > c.cfg.KeepLast {
		return c.counter.Count(RenderMessages(msgs)) > c.cfg.TokenBudget
	}
	return false
}

// Compact checks the channel's trigger and, if crossed, runs one
// compaction cycle. The transcript is held exclusively for the whole
// rewrite; a summarizer failure aborts the cycle with the log
// untouched, so a retry on the next trigger is always safe. The
// daily-log entry is written only after the rewrite has landed, so a
// retried cycle never records the same summary twice; the summary
// itself survives in the transcript's head message either way.
// Returns whether a compaction was applied.
func (c *Compactor) Compact(ctx context.Context, guild, channel string) (bool, error) {
	if c.summarizer == nil {
		return false, nil
	}

	compacted := false
	dailyEntry := ""
	err := c.store.Rewrite(guild, channel, func(msgs []Message) ([]Message, bool, error) {
		if !c.shouldCompact(msgs) {
			return nil, false, nil
		}

		keep := c.cfg.KeepLast
		if len(msgs) <= keep {
			// Nothing to summarize.
			return nil, false, nil
		}

		toSummarize := msgs[:len(msgs)-keep]
		toKeep := msgs[len(msgs)-keep:]

		summary, err := c.summarizer.Summarize(ctx, RenderMessages(toSummarize))
		if err != nil {
			return nil, false, fmt.Errorf("compact %s/%s: %w", guild, channel, err)
		}

		if summarize.IsSilent(summary) {
			summary = "No notable content."
		} else {
			dailyEntry = summary
		}

		out := make([]Message, 0, keep+1)
		out = append(out, Message{
			Role:      "assistant",
			Content:   SummaryPrefix + summary,
			Timestamp: time.Now(),
		})
		out = append(out, toKeep...)

		slog.Info("transcript compacted",
			"guild", guild, "channel", channel,
			"summarized", len(toSummarize), "kept", keep)
		compacted = true
		return out, true, nil
	})
	if err != nil || !compacted {
		return compacted, err
	}

	if dailyEntry != "" {
		if err := c.store.AppendDailyLog(guild, time.Now(), dailyEntry); err != nil {
			return true, fmt.Errorf("compact %s/%s: daily log: %w", guild, channel, err)
		}
	}
	return true, nil
}

// CompactAll runs the compaction check over every known channel.
// Per-channel failures are logged and do not stop the sweep.
func (c *Compactor) CompactAll(ctx context.Context) (int, error) {
	refs, err := c.store.ListChannels()
	if err != nil {
		return 0, err
	}

	compacted := 0
	for _, ref := range refs {
		ok, err := c.Compact(ctx, ref.Guild, ref.Channel)
		if err != nil {
			slog.Warn("compaction cycle failed", "guild", ref.Guild, "channel", ref.Channel, "error", err)
			continue
		}
		if ok {
			compacted++
		}
	}
	return compacted, nil
}
