package memory

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// candidatePoolFactor widens each retrieval channel beyond the
// requested result count so fusion has enough candidates to re-rank.
const candidatePoolFactor = 4

// HybridSearchConfig controls the hybrid search algorithm.
type HybridSearchConfig struct {
	VectorWeight float64 // alpha: weight for vector score (default 0.7)
	TextWeight   float64 // 1-alpha: weight for FTS score (default 0.3)
	HalfLifeDays float64 // temporal decay half-life; <= 0 disables decay
}

// DefaultHybridConfig returns the default hybrid search weights.
func DefaultHybridConfig() HybridSearchConfig {
	return HybridSearchConfig{
		VectorWeight: 0.7,
		TextWeight:   0.3,
		HalfLifeDays: DefaultHalfLifeDays,
	}
}

// HybridSearch combines vector similarity and FTS results. The two
// retrieval channels run concurrently and are joined before fusion.
// If no embedding provider is configured (or the vector channel fails),
// the text weight is renormalized to 1.0 and results equal pure
// lexical ranking.
func HybridSearch(
	ctx context.Context,
	store *SQLiteStore,
	provider EmbeddingProvider,
	query string,
	opts SearchOptions,
	cfg HybridSearchConfig,
) ([]SearchResult, error) {
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 6
	}

	poolOpts := opts
	poolOpts.MaxResults = maxResults * candidatePoolFactor

	var (
		wg         sync.WaitGroup
		ftsResults []SearchResult
		ftsErr     error
		vecResults []SearchResult
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		ftsResults, ftsErr = store.SearchFTS(query, poolOpts)
	}()

	if provider != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := vectorSearch(ctx, store, provider, query, poolOpts)
			if err != nil {
				// Degraded mode: text-only retrieval for this query.
				slog.Debug("memory: vector search unavailable", "error", err)
				return
			}
			vecResults = results
		}()
	}

	wg.Wait()

	if ftsErr != nil {
		if len(vecResults) == 0 {
			return nil, ftsErr
		}
		ftsResults = nil
	}

	// Renormalize weights when one channel produced nothing.
	textW, vecW := cfg.TextWeight, cfg.VectorWeight
	if len(vecResults) == 0 {
		textW, vecW = 1.0, 0
	} else if len(ftsResults) == 0 {
		textW, vecW = 0, 1.0
	}

	merged := mergeResults(ftsResults, vecResults, textW, vecW)

	if opts.MinScore > 0 {
		filtered := merged[:0]
		for _, r := range merged {
			if r.Score >= opts.MinScore {
				filtered = append(filtered, r)
			}
		}
		merged = filtered
	}

	applyDecay(store, merged, cfg.HalfLifeDays, time.Now())

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if len(merged) > maxResults {
		merged = merged[:maxResults]
	}

	return merged, nil
}

// vectorSearch performs in-memory cosine similarity search.
func vectorSearch(
	ctx context.Context,
	store *SQLiteStore,
	provider EmbeddingProvider,
	query string,
	opts SearchOptions,
) ([]SearchResult, error) {
	embeddings, err := provider.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	queryVec := embeddings[0]

	chunks, err := store.GetAllChunks()
	if err != nil {
		return nil, err
	}

	type scored struct {
		chunk Chunk
		score float64
	}

	var results []scored
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		if opts.Source != "" && c.Source != opts.Source {
			continue
		}
		if opts.PathPrefix != "" && !hasPrefix(c.Path, opts.PathPrefix) {
			continue
		}

		sim := CosineSimilarity(queryVec, c.Embedding)
		if sim > 0 {
			results = append(results, scored{chunk: c, score: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})

	limit := opts.MaxResults
	if limit <= 0 {
		limit = 10
	}
	if len(results) > limit {
		results = results[:limit]
	}

	searchResults := make([]SearchResult, len(results))
	for i, r := range results {
		searchResults[i] = SearchResult{
			Path:      r.chunk.Path,
			StartLine: r.chunk.StartLine,
			EndLine:   r.chunk.EndLine,
			Score:     r.score,
			Snippet:   truncateSnippet(r.chunk.Text, maxSnippetLen),
			Source:    r.chunk.Source,
		}
	}

	return searchResults, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// mergeResults fuses FTS and vector candidates using weighted scoring.
// Candidates are keyed by (path, startLine); a chunk appearing in both
// channels sums its weighted scores.
func mergeResults(fts, vec []SearchResult, textW, vecW float64) []SearchResult {
	type key struct {
		path      string
		startLine int
	}

	merged := make(map[key]*SearchResult)

	for _, r := range vec {
		k := key{r.Path, r.StartLine}
		merged[k] = &SearchResult{
			Path:      r.Path,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Score:     r.Score * vecW,
			Snippet:   r.Snippet,
			Source:    r.Source,
		}
	}

	for _, r := range fts {
		k := key{r.Path, r.StartLine}
		if existing, ok := merged[k]; ok {
			existing.Score += r.Score * textW
		} else {
			merged[k] = &SearchResult{
				Path:      r.Path,
				StartLine: r.StartLine,
				EndLine:   r.EndLine,
				Score:     r.Score * textW,
				Snippet:   r.Snippet,
				Source:    r.Source,
			}
		}
	}

	results := make([]SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, *r)
	}

	return results
}

// applyDecay down-weights dated results by age. Evergreen paths
// (permanent notes, undated documents) keep their score.
func applyDecay(store *SQLiteStore, results []SearchResult, halfLifeDays float64, now time.Time) {
	if halfLifeDays <= 0 || len(results) == 0 {
		return
	}

	mtimes, err := store.FileMtimes()
	if err != nil {
		slog.Warn("memory: mtime lookup failed, skipping decay", "error", err)
		return
	}

	for i := range results {
		if Evergreen(results[i].Path) {
			continue
		}
		age := contentAgeDays(results[i].Path, mtimes[results[i].Path], now)
		results[i].Score = Decay(results[i].Score, age, halfLifeDays)
	}
}
