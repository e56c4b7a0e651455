package memory

import (
	"path/filepath"
	"strings"
	"testing"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_ReplaceChunks(t *testing.T) {
	store := testStore(t)

	chunks := []Chunk{
		{ID: ChunkID("MEMORY.md", 1), Path: "MEMORY.md", Source: "memory", StartLine: 1, EndLine: 5, Hash: ContentHash("a"), Text: "hello world this is a test"},
		{ID: ChunkID("MEMORY.md", 6), Path: "MEMORY.md", Source: "memory", StartLine: 6, EndLine: 10, Hash: ContentHash("b"), Text: "second chunk of the file"},
	}
	if err := store.ReplaceChunks("MEMORY.md", chunks); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if count := store.ChunkCount(); count != 2 {
		t.Errorf("ChunkCount = %d, want 2", count)
	}

	got, err := store.GetChunksByPath("MEMORY.md")
	if err != nil {
		t.Fatalf("GetChunksByPath: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("GetChunksByPath returned %d chunks, want 2", len(got))
	}
	if got[0].Text != "hello world this is a test" {
		t.Errorf("chunk text = %q", got[0].Text)
	}

	// Replacing swaps the whole chunk set for the path
	if err := store.ReplaceChunks("MEMORY.md", chunks[:1]); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}
	if count := store.ChunkCount(); count != 1 {
		t.Errorf("after replace, ChunkCount = %d, want 1", count)
	}

	// Replacing with nil removes everything for the path
	if err := store.ReplaceChunks("MEMORY.md", nil); err != nil {
		t.Fatalf("ReplaceChunks(nil): %v", err)
	}
	if count := store.ChunkCount(); count != 0 {
		t.Errorf("after delete, ChunkCount = %d, want 0", count)
	}
}

func TestSQLiteStore_ReplaceChunksConcurrentReads(t *testing.T) {
	store := testStore(t)
	const path = "memory/notes.md"

	small := []Chunk{
		{ID: ChunkID(path, 1), Path: path, Source: "memory", StartLine: 1, EndLine: 5, Hash: ContentHash("s1"), Text: "generation one alpha"},
		{ID: ChunkID(path, 6), Path: path, Source: "memory", StartLine: 6, EndLine: 10, Hash: ContentHash("s2"), Text: "generation one bravo"},
	}
	large := []Chunk{
		{ID: ChunkID(path, 1), Path: path, Source: "memory", StartLine: 1, EndLine: 5, Hash: ContentHash("l1"), Text: "generation two alpha"},
		{ID: ChunkID(path, 6), Path: path, Source: "memory", StartLine: 6, EndLine: 10, Hash: ContentHash("l2"), Text: "generation two bravo"},
		{ID: ChunkID(path, 11), Path: path, Source: "memory", StartLine: 11, EndLine: 15, Hash: ContentHash("l3"), Text: "generation two charlie"},
	}

	if err := store.ReplaceChunks(path, small); err != nil {
		t.Fatalf("ReplaceChunks: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			set := small
			if i%2 == 1 {
				set = large
			}
			if err := store.ReplaceChunks(path, set); err != nil {
				t.Errorf("ReplaceChunks: %v", err)
				return
			}
		}
	}()

	// Every read must observe exactly the 2-chunk or the 3-chunk set,
	// never a mix of the two generations.
	for {
		select {
		case <-done:
			return
		default:
		}

		got, err := store.GetChunksByPath(path)
		if err != nil {
			t.Fatalf("GetChunksByPath: %v", err)
		}
		if len(got) != 2 && len(got) != 3 {
			t.Fatalf("observed %d chunks, want 2 or 3", len(got))
		}
		want := "generation one"
		if len(got) == 3 {
			want = "generation two"
		}
		for _, c := range got {
			if !strings.HasPrefix(c.Text, want) {
				t.Fatalf("mixed chunk sets: %d chunks but text %q", len(got), c.Text)
			}
		}
	}
}

func TestSQLiteStore_FTSSearch(t *testing.T) {
	store := testStore(t)

	seed := []struct {
		path, text string
		start, end int
	}{
		{"MEMORY.md", "The project uses Go for backend development with SQLite as the database", 1, 3},
		{"MEMORY.md", "Authentication is handled via JWT tokens and API keys", 4, 6},
		{"memory/notes.md", "Go is a compiled programming language designed at Google", 1, 2},
	}
	byPath := map[string][]Chunk{}
	for _, s := range seed {
		byPath[s.path] = append(byPath[s.path], Chunk{
			ID: ChunkID(s.path, s.start), Path: s.path, Source: "memory",
			StartLine: s.start, EndLine: s.end, Hash: ContentHash(s.text), Text: s.text,
		})
	}
	for path, chunks := range byPath {
		if err := store.ReplaceChunks(path, chunks); err != nil {
			t.Fatalf("ReplaceChunks: %v", err)
		}
	}

	results, err := store.SearchFTS("Go", SearchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) < 2 {
		t.Errorf("expected at least 2 results for 'Go', got %d", len(results))
	}
	for _, r := range results {
		if r.Score <= 0 || r.Score > 1 {
			t.Errorf("score %f out of (0,1]", r.Score)
		}
	}

	results, err = store.SearchFTS("authentication", SearchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result for 'authentication', got %d", len(results))
	}

	// Multi-token queries require all tokens (implicit AND)
	results, err = store.SearchFTS("Go Google", SearchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result for 'Go Google', got %d", len(results))
	}

	// Path prefix filter
	results, err = store.SearchFTS("Go", SearchOptions{MaxResults: 10, PathPrefix: "memory/"})
	if err != nil {
		t.Fatalf("SearchFTS with path filter: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected 1 result for 'Go' in memory/, got %d", len(results))
	}

	// No match
	results, err = store.SearchFTS("kubernetes", SearchOptions{MaxResults: 10})
	if err != nil {
		t.Fatalf("SearchFTS: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results for 'kubernetes', got %d", len(results))
	}
}

func TestSQLiteStore_FileManifest(t *testing.T) {
	store := testStore(t)

	if _, ok := store.GetFileHash("MEMORY.md"); ok {
		t.Error("expected no hash for unknown file")
	}

	if err := store.UpsertFile("MEMORY.md", "memory", "h1", 1000, 42); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	hash, ok := store.GetFileHash("MEMORY.md")
	if !ok || hash != "h1" {
		t.Errorf("GetFileHash = %q, %v", hash, ok)
	}

	if err := store.UpsertFile("MEMORY.md", "memory", "h2", 2000, 43); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	hash, _ = store.GetFileHash("MEMORY.md")
	if hash != "h2" {
		t.Errorf("after update, hash = %q, want h2", hash)
	}

	files, err := store.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(files) != 1 || files[0].Path != "MEMORY.md" {
		t.Errorf("ListFiles = %+v", files)
	}

	if err := store.DeleteFile("MEMORY.md"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if _, ok := store.GetFileHash("MEMORY.md"); ok {
		t.Error("expected hash gone after delete")
	}
}

func TestEmbeddingCache(t *testing.T) {
	store := testStore(t)

	emb := []float32{0.1, 0.2, 0.3}
	hash := ContentHash("test text")

	if _, ok := store.GetCachedEmbedding(hash, "openai", "text-embedding-3-small"); ok {
		t.Error("expected cache miss")
	}

	if err := store.CacheEmbedding(hash, "openai", "text-embedding-3-small", emb); err != nil {
		t.Fatalf("CacheEmbedding: %v", err)
	}

	cached, ok := store.GetCachedEmbedding(hash, "openai", "text-embedding-3-small")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if len(cached) != 3 || cached[0] != 0.1 {
		t.Errorf("cached embedding = %v", cached)
	}

	// Different model is a different cache key
	if _, ok := store.GetCachedEmbedding(hash, "openai", "text-embedding-3-large"); ok {
		t.Error("expected miss for different model")
	}
}

func TestCosineSimilarity(t *testing.T) {
	if sim := CosineSimilarity([]float32{1, 0, 0}, []float32{1, 0, 0}); sim < 0.99 {
		t.Errorf("identical vectors: similarity = %f, want ~1.0", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); sim > 0.01 {
		t.Errorf("orthogonal vectors: similarity = %f, want ~0.0", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); sim > -0.99 {
		t.Errorf("opposite vectors: similarity = %f, want ~-1.0", sim)
	}
	if sim := CosineSimilarity([]float32{1, 0}, []float32{1}); sim != 0 {
		t.Errorf("mismatched dims: similarity = %f, want 0", sim)
	}
}
