package memory

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

const (
	SourceMemory   = "memory"
	SourceSessions = "sessions"
)

type sourceFile struct {
	abs    string
	rel    string // slash-separated, workspace-relative
	source string
}

// discoverFiles walks the workspace and returns all indexable files:
// MEMORY.md and memory/*.md (knowledge files, at any depth so guild
// subdirectories are covered) plus sessions/*.jsonl transcripts.
func (m *Manager) discoverFiles() ([]sourceFile, error) {
	var files []sourceFile

	err := filepath.WalkDir(m.cfg.Workspace, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entry, skip
		}
		name := d.Name()
		if d.IsDir() {
			if strings.HasPrefix(name, ".") && path != m.cfg.Workspace {
				return filepath.SkipDir
			}
			return nil
		}

		parent := filepath.Base(filepath.Dir(path))
		var source string
		switch {
		case strings.EqualFold(name, "MEMORY.md"):
			source = SourceMemory
		case parent == "memory" && strings.HasSuffix(name, ".md"):
			source = SourceMemory
		case parent == "sessions" && strings.HasSuffix(name, ".jsonl"):
			source = SourceSessions
		default:
			return nil
		}

		rel, err := filepath.Rel(m.cfg.Workspace, path)
		if err != nil {
			return nil
		}
		files = append(files, sourceFile{abs: path, rel: filepath.ToSlash(rel), source: source})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// IndexAll re-indexes every known source file, skipping files whose
// content hash is unchanged, then prunes index rows for files that no
// longer exist on disk. A single bad file is logged and skipped, never
// fatal to the pass.
func (m *Manager) IndexAll(ctx context.Context) (IndexStats, error) {
	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	ctx, span := m.tracer.Start(ctx, "memory.index_all")
	defer span.End()

	var stats IndexStats

	files, err := m.discoverFiles()
	if err != nil {
		return stats, err
	}

	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.rel] = true
		changed, err := m.indexFileLocked(ctx, f.abs, f.rel, f.source)
		if err != nil {
			slog.Warn("memory: index file failed", "path", f.rel, "error", err)
			continue
		}
		if changed {
			stats.Indexed++
		} else {
			stats.Skipped++
		}
	}

	// Cleanup pass: the current on-disk file set is ground truth.
	known, err := m.store.ListFiles()
	if err == nil {
		for _, f := range known {
			if seen[f.Path] {
				continue
			}
			if _, err := os.Stat(filepath.Join(m.cfg.Workspace, filepath.FromSlash(f.Path))); err == nil {
				continue
			}
			if err := m.store.DeleteByPath(f.Path); err != nil {
				slog.Warn("memory: prune failed", "path", f.Path, "error", err)
				continue
			}
			m.store.DeleteFile(f.Path)
			slog.Info("memory: pruned deleted file", "path", f.Path)
		}
	}

	span.SetAttributes(
		attribute.Int("indexed", stats.Indexed),
		attribute.Int("skipped", stats.Skipped),
	)
	slog.Info("memory: index pass complete", "indexed", stats.Indexed, "skipped", stats.Skipped)
	return stats, nil
}

// IndexFile indexes (or prunes, if deleted) a single file. The path may
// be absolute or workspace-relative.
func (m *Manager) IndexFile(ctx context.Context, path string) error {
	abs, err := m.resolve(path)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(m.cfg.Workspace, abs)
	if err != nil {
		return err
	}
	rel = filepath.ToSlash(rel)

	m.indexMu.Lock()
	defer m.indexMu.Unlock()

	if _, err := os.Stat(abs); os.IsNotExist(err) {
		if err := m.store.DeleteByPath(rel); err != nil {
			return err
		}
		return m.store.DeleteFile(rel)
	}

	source := SourceMemory
	if strings.HasSuffix(rel, ".jsonl") {
		source = SourceSessions
	}

	_, err = m.indexFileLocked(ctx, abs, rel, source)
	return err
}

// indexFileLocked re-chunks one file if its content hash changed and
// atomically replaces its index rows. Embeddings are resolved through
// the content-hash cache first; a provider failure degrades the
// affected chunks to text-only retrieval without failing the file.
func (m *Manager) indexFileLocked(ctx context.Context, absPath, relPath, source string) (bool, error) {
	info, err := os.Stat(absPath)
	if err != nil {
		return false, err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return false, err
	}

	hash := ContentHash(string(data))
	if stored, ok := m.store.GetFileHash(relPath); ok && stored == hash {
		return false, nil
	}

	provider := m.Provider()
	model := ""
	if provider != nil {
		model = provider.Model()
	}

	textChunks := ChunkText(string(data), m.cfg.ChunkChars, m.cfg.ChunkOverlap)
	chunks := make([]Chunk, 0, len(textChunks))

	var missTexts []string
	var missIdx []int

	for i, tc := range textChunks {
		c := Chunk{
			ID:        ChunkID(relPath, tc.StartLine),
			Path:      relPath,
			Source:    source,
			StartLine: tc.StartLine,
			EndLine:   tc.EndLine,
			Hash:      ContentHash(tc.Text),
			Model:     model,
			Text:      tc.Text,
		}
		if provider != nil {
			if emb, ok := m.store.GetCachedEmbedding(c.Hash, provider.Name(), model); ok {
				c.Embedding = emb
			} else {
				missIdx = append(missIdx, i)
				missTexts = append(missTexts, tc.Text)
			}
		}
		chunks = append(chunks, c)
	}

	if provider != nil && len(missTexts) > 0 {
		embs, err := provider.Embed(ctx, missTexts)
		if err != nil {
			slog.Warn("memory: embedding failed, chunks indexed text-only",
				"path", relPath, "chunks", len(missTexts), "error", err)
		} else {
			for j, idx := range missIdx {
				if j >= len(embs) {
					break
				}
				chunks[idx].Embedding = embs[j]
				if err := m.store.CacheEmbedding(chunks[idx].Hash, provider.Name(), model, embs[j]); err != nil {
					slog.Warn("memory: embedding cache write failed", "error", err)
				}
			}
		}
	}

	if err := m.store.ReplaceChunks(relPath, chunks); err != nil {
		return false, err
	}
	if err := m.store.UpsertFile(relPath, source, hash, info.ModTime().Unix(), info.Size()); err != nil {
		return false, err
	}
	return true, nil
}
