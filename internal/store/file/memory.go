// Package file implements store.MemoryStore over the standalone
// engine: documents are workspace files, the index is local SQLite.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nextlevelbuilder/recall/internal/convo"
	"github.com/nextlevelbuilder/recall/internal/memory"
	"github.com/nextlevelbuilder/recall/internal/store"
)

// FileMemoryStore wraps memory.Manager and the raw log store so the
// standalone mode satisfies store.MemoryStore.
type FileMemoryStore struct {
	mgr  *memory.Manager
	logs *convo.Store
}

// NewFileMemoryStore creates the standalone store.
func NewFileMemoryStore(mgr *memory.Manager, logs *convo.Store) *FileMemoryStore {
	return &FileMemoryStore{mgr: mgr, logs: logs}
}

// Manager returns the underlying memory.Manager for direct access.
func (f *FileMemoryStore) Manager() *memory.Manager { return f.mgr }

func (f *FileMemoryStore) guildRel(guild, path string) string {
	prefix := convo.GuildPrefix(guild)
	if prefix == "" || strings.HasPrefix(path, prefix) {
		return path
	}
	return prefix + path
}

func (f *FileMemoryStore) GetDocument(_ context.Context, guild, path string) (string, error) {
	return f.mgr.GetFile(f.guildRel(guild, path), 0, 0)
}

func (f *FileMemoryStore) PutDocument(ctx context.Context, guild, path, content string) error {
	rel := f.guildRel(guild, path)
	abs := filepath.Join(f.logs.Root(), filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return f.mgr.IndexFile(ctx, rel)
}

func (f *FileMemoryStore) DeleteDocument(ctx context.Context, guild, path string) error {
	rel := f.guildRel(guild, path)
	abs := filepath.Join(f.logs.Root(), filepath.FromSlash(rel))
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return err
	}
	// Prunes the index rows now that the file is gone.
	return f.mgr.IndexFile(ctx, rel)
}

func (f *FileMemoryStore) ListDocuments(_ context.Context, guild string) ([]store.DocumentInfo, error) {
	prefix := convo.GuildPrefix(guild)
	root := filepath.Join(f.logs.Root(), filepath.FromSlash(prefix))

	var docs []store.DocumentInfo
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		rel, err := filepath.Rel(f.logs.Root(), path)
		if err != nil {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		docs = append(docs, store.DocumentInfo{
			Path:      filepath.ToSlash(rel),
			Hash:      memory.ContentHash(string(data)),
			UpdatedAt: info.ModTime().UnixMilli(),
		})
		return nil
	})
	return docs, nil
}

func (f *FileMemoryStore) Search(ctx context.Context, query, guild string, opts store.MemorySearchOptions) ([]store.MemorySearchResult, error) {
	prefix := opts.PathPrefix
	if prefix == "" {
		prefix = convo.GuildPrefix(guild)
	}
	results, err := f.mgr.Search(ctx, query, memory.SearchOptions{
		MaxResults: opts.MaxResults,
		MinScore:   opts.MinScore,
		Source:     opts.Source,
		PathPrefix: prefix,
	})
	if err != nil {
		return nil, err
	}

	out := make([]store.MemorySearchResult, len(results))
	for i, r := range results {
		out[i] = store.MemorySearchResult{
			Path:      r.Path,
			StartLine: r.StartLine,
			EndLine:   r.EndLine,
			Score:     r.Score,
			Snippet:   r.Snippet,
			Source:    r.Source,
		}
	}
	return out, nil
}

func (f *FileMemoryStore) IndexDocument(ctx context.Context, guild, path string) error {
	return f.mgr.IndexFile(ctx, f.guildRel(guild, path))
}

func (f *FileMemoryStore) IndexAll(ctx context.Context) (store.IndexStats, error) {
	stats, err := f.mgr.IndexAll(ctx)
	return store.IndexStats{Indexed: stats.Indexed, Skipped: stats.Skipped}, err
}

func (f *FileMemoryStore) SetEmbeddingProvider(provider store.EmbeddingProvider) {
	f.mgr.SetEmbeddingProvider(provider)
}

func (f *FileMemoryStore) Close() error {
	return f.mgr.Close()
}
