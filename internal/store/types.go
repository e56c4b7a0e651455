// Package store abstracts over the two memory backends: the standalone
// file+SQLite engine and the managed Postgres store. Both expose the
// same document, search and indexing surface, scoped by guild.
package store

import "context"

// DocumentInfo describes a memory document.
type DocumentInfo struct {
	Path      string `json:"path"`
	Hash      string `json:"hash"`
	UpdatedAt int64  `json:"updated_at"`
}

// MemorySearchResult is a single result from memory search.
type MemorySearchResult struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float64 `json:"score"`
	Snippet   string  `json:"snippet"`
	Source    string  `json:"source"`
}

// MemorySearchOptions configures a memory search query.
type MemorySearchOptions struct {
	MaxResults int
	MinScore   float64
	Source     string // "memory", "sessions", ""
	PathPrefix string
}

// IndexStats reports the outcome of an indexing pass.
type IndexStats struct {
	Indexed int `json:"indexed"`
	Skipped int `json:"skipped"`
}

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	Name() string
	Model() string
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// MemoryStore manages memory documents and search for all guilds.
type MemoryStore interface {
	// Document CRUD
	GetDocument(ctx context.Context, guild, path string) (string, error)
	PutDocument(ctx context.Context, guild, path, content string) error
	DeleteDocument(ctx context.Context, guild, path string) error
	ListDocuments(ctx context.Context, guild string) ([]DocumentInfo, error)

	// Search
	Search(ctx context.Context, query, guild string, opts MemorySearchOptions) ([]MemorySearchResult, error)

	// Indexing
	IndexDocument(ctx context.Context, guild, path string) error
	IndexAll(ctx context.Context) (IndexStats, error)

	SetEmbeddingProvider(provider EmbeddingProvider)
	Close() error
}
