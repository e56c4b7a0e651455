package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nextlevelbuilder/recall/internal/memory"
	"github.com/nextlevelbuilder/recall/internal/store"
)

// PGMemoryConfig configures the Postgres memory store.
type PGMemoryConfig struct {
	ChunkChars   int
	ChunkOverlap int
	MaxResults   int
	VectorWeight float64
	TextWeight   float64
	HalfLifeDays float64
	SnippetLen   int
}

// DefaultPGMemoryConfig returns sensible defaults.
func DefaultPGMemoryConfig() PGMemoryConfig {
	return PGMemoryConfig{
		ChunkChars:   memory.DefaultChunkChars,
		ChunkOverlap: memory.DefaultChunkOverlap,
		MaxResults:   6,
		VectorWeight: 0.7,
		TextWeight:   0.3,
		HalfLifeDays: memory.DefaultHalfLifeDays,
		SnippetLen:   700,
	}
}

// PGMemoryStore implements store.MemoryStore backed by Postgres.
// Documents live in memory_documents, chunks in memory_chunks with a
// generated tsvector column; embeddings use pgvector when the
// extension is installed and degrade to text-only search otherwise.
type PGMemoryStore struct {
	db  *sqlx.DB
	cfg PGMemoryConfig

	providerMu sync.RWMutex
	provider   store.EmbeddingProvider

	hasVector bool
}

// NewPGMemoryStore creates the store and its schema.
func NewPGMemoryStore(db *sqlx.DB, cfg PGMemoryConfig) (*PGMemoryStore, error) {
	s := &PGMemoryStore{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PGMemoryStore) migrate() error {
	s.hasVector = true
	if _, err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		slog.Warn("pgvector unavailable, memory search degrades to text-only", "error", err)
		s.hasVector = false
	}

	embeddingCol := ""
	if s.hasVector {
		embeddingCol = "embedding vector(1536),"
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS memory_documents (
			id UUID PRIMARY KEY,
			guild TEXT NOT NULL DEFAULT '',
			path TEXT NOT NULL,
			content TEXT NOT NULL,
			hash TEXT NOT NULL,
			indexed_hash TEXT,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (guild, path)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS memory_chunks (
			id UUID PRIMARY KEY,
			guild TEXT NOT NULL DEFAULT '',
			document_id UUID NOT NULL REFERENCES memory_documents(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT 'memory',
			start_line INT NOT NULL,
			end_line INT NOT NULL,
			hash TEXT NOT NULL,
			text TEXT NOT NULL,
			tsv tsvector GENERATED ALWAYS AS (to_tsvector('simple', text)) STORED,
			%s
			updated_at TIMESTAMPTZ NOT NULL
		)`, embeddingCol),
		`CREATE INDEX IF NOT EXISTS idx_memory_chunks_tsv ON memory_chunks USING GIN (tsv)`,
		`CREATE INDEX IF NOT EXISTS idx_memory_chunks_guild ON memory_chunks (guild)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// SetEmbeddingProvider installs the embedding backend.
func (s *PGMemoryStore) SetEmbeddingProvider(provider store.EmbeddingProvider) {
	s.providerMu.Lock()
	s.provider = provider
	s.providerMu.Unlock()
}

func (s *PGMemoryStore) embeddingProvider() store.EmbeddingProvider {
	s.providerMu.RLock()
	defer s.providerMu.RUnlock()
	return s.provider
}

func (s *PGMemoryStore) GetDocument(ctx context.Context, guild, path string) (string, error) {
	var content string
	err := s.db.GetContext(ctx, &content,
		`SELECT content FROM memory_documents WHERE guild = $1 AND path = $2`, guild, path)
	if err != nil {
		return "", err
	}
	return content, nil
}

func (s *PGMemoryStore) PutDocument(ctx context.Context, guild, path, content string) error {
	id := uuid.Must(uuid.NewV7())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memory_documents (id, guild, path, content, hash, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (guild, path)
		 DO UPDATE SET content = EXCLUDED.content, hash = EXCLUDED.hash, updated_at = EXCLUDED.updated_at`,
		id, guild, path, content, memory.ContentHash(content), time.Now())
	return err
}

func (s *PGMemoryStore) DeleteDocument(ctx context.Context, guild, path string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM memory_documents WHERE guild = $1 AND path = $2`, guild, path)
	return err
}

func (s *PGMemoryStore) ListDocuments(ctx context.Context, guild string) ([]store.DocumentInfo, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT path, hash, updated_at FROM memory_documents WHERE guild = $1`, guild)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []store.DocumentInfo
	for rows.Next() {
		var path, hash string
		var updatedAt time.Time
		if err := rows.Scan(&path, &hash, &updatedAt); err != nil {
			continue
		}
		docs = append(docs, store.DocumentInfo{
			Path:      path,
			Hash:      hash,
			UpdatedAt: updatedAt.UnixMilli(),
		})
	}
	return docs, nil
}

// IndexDocument chunks a document and stores its chunks (with
// embeddings when available), replacing the previous chunk set.
func (s *PGMemoryStore) IndexDocument(ctx context.Context, guild, path string) error {
	var docID uuid.UUID
	var content, hash string
	err := s.db.QueryRowxContext(ctx,
		`SELECT id, content, hash FROM memory_documents WHERE guild = $1 AND path = $2`,
		guild, path).Scan(&docID, &content, &hash)
	if err != nil {
		return err
	}

	chunks := memory.ChunkText(content, s.cfg.ChunkChars, s.cfg.ChunkOverlap)

	var embeddings [][]float32
	if provider := s.embeddingProvider(); provider != nil && s.hasVector && len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, c := range chunks {
			texts[i] = c.Text
		}
		embeddings, err = provider.Embed(ctx, texts)
		if err != nil {
			slog.Warn("pg memory: embedding failed, chunks indexed text-only",
				"path", path, "error", err)
			embeddings = nil
		}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_chunks WHERE document_id = $1`, docID); err != nil {
		return err
	}

	now := time.Now()
	for i, tc := range chunks {
		chunkID := uuid.Must(uuid.NewV7())
		if embeddings != nil && i < len(embeddings) {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO memory_chunks (id, guild, document_id, path, source, start_line, end_line, hash, text, embedding, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector, $11)`,
				chunkID, guild, docID, path, memory.SourceMemory,
				tc.StartLine, tc.EndLine, memory.ContentHash(tc.Text), tc.Text,
				vectorToString(embeddings[i]), now)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO memory_chunks (id, guild, document_id, path, source, start_line, end_line, hash, text, updated_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
				chunkID, guild, docID, path, memory.SourceMemory,
				tc.StartLine, tc.EndLine, memory.ContentHash(tc.Text), tc.Text, now)
		}
		if err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE memory_documents SET indexed_hash = hash WHERE id = $1`, docID); err != nil {
		return err
	}

	return tx.Commit()
}

// IndexAll re-indexes every document whose content changed since it was
// last indexed.
func (s *PGMemoryStore) IndexAll(ctx context.Context) (store.IndexStats, error) {
	var stats store.IndexStats

	rows, err := s.db.QueryxContext(ctx,
		`SELECT guild, path, hash, COALESCE(indexed_hash, '') FROM memory_documents`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	type doc struct{ guild, path, hash, indexed string }
	var docs []doc
	for rows.Next() {
		var d doc
		if err := rows.Scan(&d.guild, &d.path, &d.hash, &d.indexed); err != nil {
			continue
		}
		docs = append(docs, d)
	}

	for _, d := range docs {
		if d.hash == d.indexed {
			stats.Skipped++
			continue
		}
		if err := s.IndexDocument(ctx, d.guild, d.path); err != nil {
			slog.Warn("pg memory: index document failed", "guild", d.guild, "path", d.path, "error", err)
			continue
		}
		stats.Indexed++
	}
	return stats, nil
}

type scoredChunk struct {
	Path      string  `db:"path"`
	StartLine int     `db:"start_line"`
	EndLine   int     `db:"end_line"`
	Text      string  `db:"text"`
	Source    string  `db:"source"`
	Score     float64 `db:"score"`
}

// Search performs hybrid (tsvector + pgvector) search scoped to a guild.
func (s *PGMemoryStore) Search(ctx context.Context, query, guild string, opts store.MemorySearchOptions) ([]store.MemorySearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = s.cfg.MaxResults
	}
	pool := maxResults * 4

	ftsResults, err := s.ftsSearch(ctx, query, guild, opts, pool)
	if err != nil {
		return nil, err
	}

	var vecResults []scoredChunk
	if provider := s.embeddingProvider(); provider != nil && s.hasVector {
		embs, err := provider.Embed(ctx, []string{query})
		if err == nil && len(embs) > 0 {
			vecResults, err = s.vectorSearch(ctx, embs[0], guild, opts, pool)
			if err != nil {
				slog.Debug("pg memory: vector search failed", "error", err)
				vecResults = nil
			}
		}
	}

	// Normalize tsvector ranks to [0,1] by the best rank.
	if len(ftsResults) > 0 {
		maxScore := ftsResults[0].Score
		if maxScore > 0 {
			for i := range ftsResults {
				ftsResults[i].Score /= maxScore
			}
		}
	}

	textW, vecW := s.cfg.TextWeight, s.cfg.VectorWeight
	if len(vecResults) == 0 {
		textW, vecW = 1.0, 0
	} else if len(ftsResults) == 0 {
		textW, vecW = 0, 1.0
	}

	merged := s.merge(ftsResults, vecResults, textW, vecW)

	var filtered []store.MemorySearchResult
	now := time.Now()
	for _, m := range merged {
		if opts.MinScore > 0 && m.Score < opts.MinScore {
			continue
		}
		if !memory.Evergreen(m.Path) {
			if d, ok := memory.PathDate(m.Path); ok {
				m.Score = memory.Decay(m.Score, now.Sub(d).Hours()/24, s.cfg.HalfLifeDays)
			}
		}
		filtered = append(filtered, m)
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Score > filtered[j].Score })
	if len(filtered) > maxResults {
		filtered = filtered[:maxResults]
	}
	return filtered, nil
}

func (s *PGMemoryStore) ftsSearch(ctx context.Context, query, guild string, opts store.MemorySearchOptions, limit int) ([]scoredChunk, error) {
	q := `SELECT path, start_line, end_line, text, source,
			ts_rank(tsv, plainto_tsquery('simple', $1)) AS score
		FROM memory_chunks
		WHERE guild = $2 AND tsv @@ plainto_tsquery('simple', $1)`
	args := []interface{}{query, guild}

	if opts.PathPrefix != "" {
		args = append(args, opts.PathPrefix+"%")
		q += fmt.Sprintf(" AND path LIKE $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY score DESC LIMIT $%d", len(args))

	var results []scoredChunk
	if err := s.db.SelectContext(ctx, &results, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return results, nil
}

func (s *PGMemoryStore) vectorSearch(ctx context.Context, embedding []float32, guild string, opts store.MemorySearchOptions, limit int) ([]scoredChunk, error) {
	vecStr := vectorToString(embedding)

	q := `SELECT path, start_line, end_line, text, source,
			1 - (embedding <=> $1::vector) AS score
		FROM memory_chunks
		WHERE guild = $2 AND embedding IS NOT NULL`
	args := []interface{}{vecStr, guild}

	if opts.PathPrefix != "" {
		args = append(args, opts.PathPrefix+"%")
		q += fmt.Sprintf(" AND path LIKE $%d", len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(" ORDER BY embedding <=> $1::vector LIMIT $%d", len(args))

	var results []scoredChunk
	if err := s.db.SelectContext(ctx, &results, q, args...); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *PGMemoryStore) merge(fts, vec []scoredChunk, textW, vecW float64) []store.MemorySearchResult {
	type key struct {
		path      string
		startLine int
	}

	merged := make(map[key]*store.MemorySearchResult)

	for _, r := range vec {
		k := key{r.Path, r.StartLine}
		merged[k] = &store.MemorySearchResult{
			Path:      r.Path,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Score:     r.Score * vecW,
			Snippet:   truncate(r.Text, s.cfg.SnippetLen),
			Source:    r.Source,
		}
	}

	for _, r := range fts {
		k := key{r.Path, r.StartLine}
		if existing, ok := merged[k]; ok {
			existing.Score += r.Score * textW
		} else {
			merged[k] = &store.MemorySearchResult{
				Path:      r.Path,
				StartLine: r.StartLine,
				EndLine:   r.EndLine,
				Score:     r.Score * textW,
				Snippet:   truncate(r.Text, s.cfg.SnippetLen),
				Source:    r.Source,
			}
		}
	}

	out := make([]store.MemorySearchResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, *r)
	}
	return out
}

func (s *PGMemoryStore) Close() error {
	return s.db.Close()
}

func vectorToString(v []float32) string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
