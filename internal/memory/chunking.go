package memory

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Default chunking geometry. Roughly 400 tokens per chunk with a 20%
// overlap so that statements near a boundary are retrievable from
// either side.
const (
	DefaultChunkChars   = 1600
	DefaultChunkOverlap = 320
)

// chunkNamespace is the UUIDv5 namespace for chunk identifiers.
var chunkNamespace = uuid.MustParse("6ba7b815-9dad-11d1-80b4-00c04fd430c8")

// TextChunk is a chunk of text with line number metadata.
type TextChunk struct {
	Text      string
	StartLine int
	EndLine   int
}

// ChunkID derives a stable chunk identifier from the owning path and the
// chunk's starting line. Re-chunking an unchanged file reproduces the
// same IDs, which keeps re-indexing idempotent.
func ChunkID(path string, startLine int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(path+"#"+strconv.Itoa(startLine))).String()
}

// ChunkText splits text into overlapping, line-addressed chunks.
// Lines are accumulated until targetChars is reached, then the window
// backs up by roughly overlapChars (rounded to whole lines) before the
// next chunk starts. Start lines are strictly increasing.
//
// Empty text yields no chunks; text shorter than targetChars yields a
// single chunk spanning the whole input.
func ChunkText(text string, targetChars, overlapChars int) []TextChunk {
	if targetChars <= 0 {
		targetChars = DefaultChunkChars
	}
	if overlapChars < 0 || overlapChars >= targetChars {
		overlapChars = targetChars / 5
	}
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	var chunks []TextChunk

	start := 0 // 0-based line index
	for start < len(lines) {
		// Accumulate lines until the target size is reached.
		size := 0
		end := start
		for end < len(lines) {
			size += len(lines[end]) + 1
			end++
			if size >= targetChars {
				break
			}
		}

		content := strings.Join(lines[start:end], "\n")
		if strings.TrimSpace(content) != "" {
			chunks = append(chunks, TextChunk{
				Text:      content,
				StartLine: start + 1,
				EndLine:   end,
			})
		}

		if end >= len(lines) {
			break
		}

		// Back up by the overlap, measured in characters and rounded
		// down to whole lines. The next start must still advance.
		back := 0
		overlap := 0
		for j := end - 1; j > start; j-- {
			overlap += len(lines[j]) + 1
			if overlap > overlapChars {
				break
			}
			back++
		}

		next := end - back
		if next <= start {
			next = start + 1
		}
		start = next
	}

	return chunks
}
