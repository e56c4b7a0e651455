package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/recall/internal/convo"
	"github.com/nextlevelbuilder/recall/internal/memory"
)

// Builder defaults.
const (
	DefaultTokenBudget    = 2000
	DefaultRecentMessages = 10
	DefaultMessageCharCap = 500
	DefaultSearchFloor    = 200 // min remaining tokens before search runs
	DefaultSearchResults  = 6
)

// sectionSlack pads each section's estimated cost so separators and
// rounding can never push the assembled block over budget.
const sectionSlack = 2

// BuilderConfig controls context assembly.
type BuilderConfig struct {
	TokenBudget    int
	RecentMessages int
	MessageCharCap int
	SearchFloor    int
	SearchResults  int
	MinScore       float64
}

// DefaultBuilderConfig returns the default assembly settings.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{
		TokenBudget:    DefaultTokenBudget,
		RecentMessages: DefaultRecentMessages,
		MessageCharCap: DefaultMessageCharCap,
		SearchFloor:    DefaultSearchFloor,
		SearchResults:  DefaultSearchResults,
	}
}

// Builder assembles the background block injected before a model query:
// permanent notes, recent daily logs, recent raw conversation and
// memory search hits, in strict priority order under one token budget.
// A section that would overflow the remaining budget is omitted whole;
// only raw messages and snippets are pre-truncated per item.
type Builder struct {
	mgr   *memory.Manager
	store *convo.Store
	cfg   BuilderConfig
}

// NewBuilder creates a context builder over the memory manager and raw
// log store.
func NewBuilder(mgr *memory.Manager, store *convo.Store, cfg BuilderConfig) *Builder {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = DefaultTokenBudget
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = DefaultRecentMessages
	}
	if cfg.MessageCharCap <= 0 {
		cfg.MessageCharCap = DefaultMessageCharCap
	}
	if cfg.SearchFloor <= 0 {
		cfg.SearchFloor = DefaultSearchFloor
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = DefaultSearchResults
	}
	return &Builder{mgr: mgr, store: store, cfg: cfg}
}

// Build assembles the context block for one query on one channel.
// Returns "" when nothing fits the budget.
func (b *Builder) Build(ctx context.Context, guild, channel, query string) (string, error) {
	remaining := b.cfg.TokenBudget
	var sections []string

	add := func(section string) bool {
		if strings.TrimSpace(section) == "" {
			return false
		}
		cost := EstimateTokens(section) + sectionSlack
		if cost > remaining {
			return false
		}
		sections = append(sections, section)
		remaining -= cost
		return true
	}

	// 1. Permanent notes.
	notes, err := b.store.ReadNotes(guild)
	if err != nil {
		slog.Warn("context: notes unavailable", "guild", guild, "error", err)
	} else if notes != "" {
		add("[Memory]\n" + strings.TrimSpace(notes))
	}

	// 2. Yesterday's + today's daily log, most recent last.
	if daily := b.dailySection(guild); daily != "" {
		add("[Recent daily log]\n" + daily)
	}

	// 3. Last N raw messages, pre-truncated per item.
	if recent := b.recentSection(guild, channel); recent != "" {
		add("[Recent conversation]\n" + recent)
	}

	// 4. Memory search hits, only when enough budget remains and the
	// query is worth searching.
	if remaining >= b.cfg.SearchFloor && nonTrivialQuery(query) {
		if hits := b.searchSection(ctx, guild, query); hits != "" {
			add("[Related memory]\n" + hits)
		}
	}

	return strings.Join(sections, "\n\n"), nil
}

func (b *Builder) dailySection(guild string) string {
	now := time.Now()
	var parts []string
	for _, day := range []time.Time{now.AddDate(0, 0, -1), now} {
		text, err := b.store.ReadDailyLog(guild, day)
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, strings.TrimSpace(text))
	}
	return strings.Join(parts, "\n---\n")
}

func (b *Builder) recentSection(guild, channel string) string {
	msgs, err := b.store.Recent(guild, channel, b.cfg.RecentMessages)
	if err != nil {
		slog.Warn("context: transcript unavailable", "guild", guild, "channel", channel, "error", err)
		return ""
	}

	var lines []string
	for _, m := range msgs {
		content := m.Content
		if len(content) > b.cfg.MessageCharCap {
			content = content[:b.cfg.MessageCharCap] + "..."
		}
		lines = append(lines, m.Speaker()+": "+content)
	}
	return strings.Join(lines, "\n")
}

func (b *Builder) searchSection(ctx context.Context, guild, query string) string {
	results, err := b.mgr.Search(ctx, query, memory.SearchOptions{
		MaxResults: b.cfg.SearchResults,
		MinScore:   b.cfg.MinScore,
		PathPrefix: convo.GuildPrefix(guild),
	})
	if err != nil {
		slog.Warn("context: memory search failed", "error", err)
		return ""
	}

	var lines []string
	for _, r := range results {
		snippet := strings.ReplaceAll(r.Snippet, "\n", " ")
		lines = append(lines, fmt.Sprintf("- %s:%d-%d %s", r.Path, r.StartLine, r.EndLine, snippet))
	}
	return strings.Join(lines, "\n")
}

// nonTrivialQuery filters out one-word pings and empty prompts that
// would only retrieve noise.
func nonTrivialQuery(query string) bool {
	return len(strings.TrimSpace(query)) >= 3
}
