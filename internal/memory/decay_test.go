package memory

import (
	"math"
	"testing"
)

func TestDecay(t *testing.T) {
	// Zero age leaves the score unchanged
	if got := Decay(0.8, 0, 30); math.Abs(got-0.8) > 1e-9 {
		t.Errorf("Decay(0.8, 0, 30) = %f, want 0.8", got)
	}

	// One half-life halves the score
	if got := Decay(0.8, 30, 30); math.Abs(got-0.4) > 1e-9 {
		t.Errorf("Decay(0.8, 30, 30) = %f, want 0.4", got)
	}

	// Two half-lives quarter it
	if got := Decay(0.8, 60, 30); math.Abs(got-0.2) > 1e-9 {
		t.Errorf("Decay(0.8, 60, 30) = %f, want 0.2", got)
	}

	// Monotonically decreasing in age
	prev := Decay(1.0, 0, 30)
	for age := 1.0; age <= 120; age++ {
		cur := Decay(1.0, age, 30)
		if cur >= prev {
			t.Fatalf("decay not monotonic at age %f: %f >= %f", age, cur, prev)
		}
		prev = cur
	}

	// Negative age treated as zero
	if got := Decay(0.5, -10, 30); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("Decay with negative age = %f, want 0.5", got)
	}

	// Non-positive half-life disables decay
	if got := Decay(0.5, 100, 0); got != 0.5 {
		t.Errorf("Decay with halfLife=0 = %f, want 0.5", got)
	}
	if got := Decay(0.5, 100, -1); got != 0.5 {
		t.Errorf("Decay with halfLife=-1 = %f, want 0.5", got)
	}
}

func TestPathDate(t *testing.T) {
	d, ok := PathDate("memory/2026-03-15.md")
	if !ok {
		t.Fatal("expected date in memory/2026-03-15.md")
	}
	if d.Year() != 2026 || int(d.Month()) != 3 || d.Day() != 15 {
		t.Errorf("parsed date = %v", d)
	}

	if _, ok := PathDate("memory/notes.md"); ok {
		t.Error("notes.md should have no date")
	}
	if _, ok := PathDate("MEMORY.md"); ok {
		t.Error("MEMORY.md should have no date")
	}
}

func TestEvergreen(t *testing.T) {
	cases := []struct {
		path string
		want bool
	}{
		{"MEMORY.md", true},
		{"guilds/dev/MEMORY.md", true},
		{"memory/notes.md", true},
		{"memory/2026-03-15.md", false},
		{"sessions/main.jsonl", false},
		{"guilds/dev/sessions/2026-03-15.jsonl", false},
	}
	for _, c := range cases {
		if got := Evergreen(c.path); got != c.want {
			t.Errorf("Evergreen(%q) = %v, want %v", c.path, got, c.want)
		}
	}
}
