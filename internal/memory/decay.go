package memory

import (
	"math"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// DefaultHalfLifeDays is the default relevance half-life for dated
// content. A 30-day-old daily log scores half of a fresh one.
const DefaultHalfLifeDays = 30.0

var datedPathRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Decay applies exponential temporal decay to a relevance score:
//
//	decayed = score * e^(-ln2/halfLife * max(0, ageDays))
//
// halfLifeDays <= 0 disables decay and returns score unchanged.
func Decay(score, ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return score
	}
	if ageDays < 0 {
		ageDays = 0
	}
	return score * math.Exp(-math.Ln2/halfLifeDays*ageDays)
}

// PathDate extracts an embedded YYYY-MM-DD date from a file path
// (daily logs are named memory/YYYY-MM-DD.md).
func PathDate(path string) (time.Time, bool) {
	m := datedPathRe.FindString(filepath.Base(path))
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Evergreen reports whether a path is exempt from temporal decay.
// Permanent notes (MEMORY.md) and any undated knowledge document never
// decay. Dated daily logs age by their embedded date, and session
// transcripts age by file mtime.
func Evergreen(path string) bool {
	if strings.EqualFold(filepath.Base(path), "MEMORY.md") {
		return true
	}
	if strings.HasSuffix(path, ".jsonl") {
		return false
	}
	_, dated := PathDate(path)
	return !dated
}

// contentAgeDays returns the age used for decay: days since the date
// embedded in the path, falling back to the stored file mtime
// (transcripts carry no path date).
func contentAgeDays(path string, mtime int64, now time.Time) float64 {
	if d, ok := PathDate(path); ok {
		return now.Sub(d).Hours() / 24
	}
	if mtime > 0 {
		return now.Sub(time.Unix(mtime, 0)).Hours() / 24
	}
	return 0
}
