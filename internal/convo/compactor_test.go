package convo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/recall/internal/summarize"
)

// fakeSummarizer records its input and returns a canned summary.
type fakeSummarizer struct {
	summary string
	err     error
	gotText string
	calls   int
}

func (f *fakeSummarizer) Summarize(_ context.Context, text string) (string, error) {
	f.calls++
	f.gotText = text
	if f.err != nil {
		return "", f.err
	}
	return f.summary, nil
}

func seedTranscript(t *testing.T, store *Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		err := store.Append("", "main", Message{
			Role: role, Content: fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
}

func TestCompactor_Compact(t *testing.T) {
	store := NewStore(t.TempDir())
	seedTranscript(t, store, 25)

	summarizer := &fakeSummarizer{summary: "Discussed 5 messages of planning."}
	compactor := NewCompactor(store, summarizer, CompactorConfig{Threshold: 20, KeepLast: 20})

	compacted, err := compactor.Compact(context.Background(), "", "main")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if !compacted {
		t.Fatal("expected compaction to run")
	}

	msgs, err := store.All("", "main")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	// 1 summary message + last 20 raw
	if len(msgs) != 21 {
		t.Fatalf("got %d messages after compaction, want 21", len(msgs))
	}
	if msgs[0].Role != "assistant" || !strings.HasPrefix(msgs[0].Content, SummaryPrefix) {
		t.Errorf("head message = %+v, want assistant %q prefix", msgs[0], SummaryPrefix)
	}
	if msgs[1].Content != "message 5" || msgs[20].Content != "message 24" {
		t.Errorf("kept range wrong: first=%q last=%q", msgs[1].Content, msgs[20].Content)
	}

	// The first 5 messages went to the summarizer
	if !strings.Contains(summarizer.gotText, "message 0") || strings.Contains(summarizer.gotText, "message 5") {
		t.Errorf("summarizer input = %q", summarizer.gotText)
	}

	// Summary landed in today's daily log
	daily, err := store.ReadDailyLog("", time.Now())
	if err != nil {
		t.Fatalf("ReadDailyLog: %v", err)
	}
	if !strings.Contains(daily, "Discussed 5 messages of planning.") {
		t.Errorf("daily log = %q", daily)
	}
}

func TestCompactor_BelowThresholdNoOp(t *testing.T) {
	store := NewStore(t.TempDir())
	seedTranscript(t, store, 20)

	summarizer := &fakeSummarizer{summary: "unused"}
	compactor := NewCompactor(store, summarizer, CompactorConfig{Threshold: 20, KeepLast: 20})

	compacted, err := compactor.Compact(context.Background(), "", "main")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if compacted {
		t.Error("compaction ran at exactly the threshold; trigger is count > threshold")
	}
	if summarizer.calls != 0 {
		t.Errorf("summarizer called %d times, want 0", summarizer.calls)
	}

	count, _ := store.Count("", "main")
	if count != 20 {
		t.Errorf("transcript changed: %d messages", count)
	}
}

func TestCompactor_SummarizerFailureLeavesLogIntact(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	seedTranscript(t, store, 25)

	path := filepath.Join(root, "sessions", "main.jsonl")
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	summarizer := &fakeSummarizer{err: errors.New("model unreachable")}
	compactor := NewCompactor(store, summarizer, CompactorConfig{Threshold: 20, KeepLast: 20})

	compacted, err := compactor.Compact(context.Background(), "", "main")
	if err == nil {
		t.Fatal("expected error from failed summarizer")
	}
	if compacted {
		t.Error("compaction reported applied despite failure")
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("transcript mutated despite aborted compaction")
	}
}

func TestCompactor_DailyLogFailureAfterRewrite(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)
	seedTranscript(t, store, 25)

	// A plain file where the memory/ dir should go makes the
	// daily-log append fail.
	if err := os.WriteFile(filepath.Join(root, "memory"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	summarizer := &fakeSummarizer{summary: "Planning recap."}
	compactor := NewCompactor(store, summarizer, CompactorConfig{Threshold: 20, KeepLast: 20})

	compacted, err := compactor.Compact(context.Background(), "", "main")
	if err == nil {
		t.Fatal("expected error from failed daily-log write")
	}
	if !compacted {
		t.Error("rewrite landed, Compact should report applied")
	}

	// The daily-log entry is written only after the rewrite, so the
	// transcript is already compacted and the summary survives in its
	// head message.
	msgs, err := store.All("", "main")
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(msgs) != 21 {
		t.Fatalf("got %d messages, want 21", len(msgs))
	}
	if !strings.HasPrefix(msgs[0].Content, SummaryPrefix) {
		t.Errorf("head message = %q, want %q prefix", msgs[0].Content, SummaryPrefix)
	}
}

func TestCompactor_SilentSentinel(t *testing.T) {
	store := NewStore(t.TempDir())
	seedTranscript(t, store, 25)

	summarizer := &fakeSummarizer{summary: summarize.SilentSentinel}
	compactor := NewCompactor(store, summarizer, CompactorConfig{Threshold: 20, KeepLast: 20})

	compacted, err := compactor.Compact(context.Background(), "", "main")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if !compacted {
		t.Fatal("expected compaction to run")
	}

	// Transcript is still rewritten, with a placeholder summary
	msgs, _ := store.All("", "main")
	if len(msgs) != 21 {
		t.Fatalf("got %d messages, want 21", len(msgs))
	}
	if strings.Contains(msgs[0].Content, summarize.SilentSentinel) {
		t.Errorf("sentinel leaked into transcript: %q", msgs[0].Content)
	}

	// Nothing written to the daily log
	daily, _ := store.ReadDailyLog("", time.Now())
	if daily != "" {
		t.Errorf("daily log written for silent summary: %q", daily)
	}
}

func TestCompactor_TokenTrigger(t *testing.T) {
	store := NewStore(t.TempDir())
	seedTranscript(t, store, 30)

	summarizer := &fakeSummarizer{summary: "Long conversation condensed."}
	// High count threshold; the token budget is what fires.
	compactor := NewCompactor(store, summarizer, CompactorConfig{
		Threshold: 1000, KeepLast: 20, TokenBudget: 10,
	})
	compactor.SetTokenCounter(tokenCounterFunc(func(text string) int {
		return len(text) // every char a token, way over budget
	}))

	compacted, err := compactor.Compact(context.Background(), "", "main")
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}
	if !compacted {
		t.Fatal("token budget trigger did not fire")
	}
}

func TestCompactor_CompactAll(t *testing.T) {
	store := NewStore(t.TempDir())
	for i := 0; i < 25; i++ {
		store.Append("", "busy", Message{Role: "user", Content: fmt.Sprintf("m%d", i)})
	}
	store.Append("", "quiet", Message{Role: "user", Content: "only one"})

	summarizer := &fakeSummarizer{summary: "Busy channel summary."}
	compactor := NewCompactor(store, summarizer, CompactorConfig{Threshold: 20, KeepLast: 20})

	n, err := compactor.CompactAll(context.Background())
	if err != nil {
		t.Fatalf("CompactAll: %v", err)
	}
	if n != 1 {
		t.Errorf("compacted %d channels, want 1", n)
	}

	count, _ := store.Count("", "quiet")
	if count != 1 {
		t.Errorf("quiet channel touched: %d messages", count)
	}
}

type tokenCounterFunc func(string) int

func (f tokenCounterFunc) Count(text string) int { return f(text) }
