// Package memory implements the Recall retrieval engine: incremental
// full-text (FTS5) + vector indexing of knowledge files (MEMORY.md,
// memory/*.md) and session transcripts, with hybrid search and
// exponential temporal decay of aged results.
package memory

// Chunk is a text fragment stored in the memory database.
type Chunk struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Source    string    `json:"source"` // "memory" or "sessions"
	StartLine int       `json:"start_line"`
	EndLine   int       `json:"end_line"`
	Hash      string    `json:"hash"` // content hash of Text
	Model     string    `json:"model"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// SearchResult is a single result from a memory search.
type SearchResult struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
	Source    string  `json:"source"`
}

// SearchOptions configures a search query.
type SearchOptions struct {
	Query      string  // search query text
	MaxResults int     // top-K results
	MinScore   float64 // minimum relevance score (0-1)
	Source     string  // filter by source ("memory", "sessions", "")
	PathPrefix string  // filter by path prefix (guild/workspace scoping)
}

// FileInfo is a stored manifest row for an indexed source file.
type FileInfo struct {
	Path   string
	Source string
	Hash   string
	Mtime  int64
	Size   int64
}

// IndexStats reports the outcome of an indexing pass.
type IndexStats struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}
