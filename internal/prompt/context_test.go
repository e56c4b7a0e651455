package prompt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/recall/internal/convo"
	"github.com/nextlevelbuilder/recall/internal/memory"
)

func testBuilder(t *testing.T, cfg BuilderConfig) (*Builder, *convo.Store, string) {
	t.Helper()
	root := t.TempDir()

	mgr, err := memory.NewManager(memory.DefaultManagerConfig(root))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })

	store := convo.NewStore(root)
	return NewBuilder(mgr, store, cfg), store, root
}

func TestBuild_SectionsInPriorityOrder(t *testing.T) {
	b, store, root := testBuilder(t, DefaultBuilderConfig())

	os.WriteFile(filepath.Join(root, "MEMORY.md"), []byte("User prefers terse answers."), 0644)
	store.WriteNotes("", "User prefers terse answers.")
	store.AppendDailyLog("", time.Now(), "Shipped the indexer today.")
	store.Append("", "main", convo.Message{Role: "user", Content: "what about the indexer"})

	// Index so search has something to hit
	if _, err := b.mgr.IndexAll(context.Background()); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	block, err := b.Build(context.Background(), "", "main", "terse answers")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	for _, want := range []string{"[Memory]", "[Recent daily log]", "[Recent conversation]"} {
		if !strings.Contains(block, want) {
			t.Errorf("missing section %s in:\n%s", want, block)
		}
	}

	memIdx := strings.Index(block, "[Memory]")
	dailyIdx := strings.Index(block, "[Recent daily log]")
	convIdx := strings.Index(block, "[Recent conversation]")
	if !(memIdx < dailyIdx && dailyIdx < convIdx) {
		t.Errorf("sections out of order: memory=%d daily=%d conv=%d", memIdx, dailyIdx, convIdx)
	}
}

func TestBuild_NeverExceedsBudget(t *testing.T) {
	cfg := DefaultBuilderConfig()
	cfg.TokenBudget = 120
	b, store, _ := testBuilder(t, cfg)

	store.WriteNotes("", strings.Repeat("Important preference. ", 10))
	for i := 0; i < 10; i++ {
		store.Append("", "main", convo.Message{
			Role: "user", Content: strings.Repeat("chatter ", 30) + fmt.Sprint(i),
		})
	}

	block, err := b.Build(context.Background(), "", "main", "anything relevant")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := EstimateTokens(block); got > cfg.TokenBudget {
		t.Errorf("block estimates %d tokens, budget %d", got, cfg.TokenBudget)
	}
}

func TestBuild_OverflowingSectionOmittedWhole(t *testing.T) {
	cfg := DefaultBuilderConfig()
	cfg.TokenBudget = 30
	b, store, _ := testBuilder(t, cfg)

	// Notes fit the tiny budget; the conversation section would not.
	store.WriteNotes("", "Short note.")
	for i := 0; i < 10; i++ {
		store.Append("", "main", convo.Message{
			Role: "user", Content: strings.Repeat("long message content ", 20),
		})
	}

	block, err := b.Build(context.Background(), "", "main", "query text")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(block, "[Memory]") {
		t.Errorf("notes section missing: %q", block)
	}
	if strings.Contains(block, "[Recent conversation]") {
		t.Errorf("oversized section included partially:\n%s", block)
	}
}

func TestBuild_MessagesTruncatedPerItem(t *testing.T) {
	cfg := DefaultBuilderConfig()
	cfg.MessageCharCap = 50
	b, store, _ := testBuilder(t, cfg)

	long := strings.Repeat("x", 200)
	store.Append("", "main", convo.Message{Role: "user", Content: long})

	block, err := b.Build(context.Background(), "", "main", "query text")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(block, long) {
		t.Error("long message not truncated")
	}
	if !strings.Contains(block, strings.Repeat("x", 50)+"...") {
		t.Errorf("expected capped message with ellipsis in:\n%s", block)
	}
}

func TestBuild_SearchSkippedForTrivialQuery(t *testing.T) {
	b, store, root := testBuilder(t, DefaultBuilderConfig())

	os.WriteFile(filepath.Join(root, "MEMORY.md"), []byte("The zeppelin project uses helium."), 0644)
	store.WriteNotes("", "The zeppelin project uses helium.")
	if _, err := b.mgr.IndexAll(context.Background()); err != nil {
		t.Fatalf("IndexAll: %v", err)
	}

	block, err := b.Build(context.Background(), "", "main", "ok")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if strings.Contains(block, "[Related memory]") {
		t.Error("search ran for a trivial query")
	}

	block, err = b.Build(context.Background(), "", "main", "zeppelin helium")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(block, "[Related memory]") {
		t.Errorf("search section missing for real query:\n%s", block)
	}
}

func TestBuild_EmptyWorkspace(t *testing.T) {
	b, _, _ := testBuilder(t, DefaultBuilderConfig())

	block, err := b.Build(context.Background(), "", "main", "anything")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if block != "" {
		t.Errorf("empty workspace produced context: %q", block)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d", got)
	}
	if got := EstimateTokens("abcdefgh"); got != 2 {
		t.Errorf("EstimateTokens(8 chars) = %d, want 2", got)
	}
}
